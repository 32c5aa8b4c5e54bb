package session

import (
	"time"
)

// Credentials are the portal credentials of one end user. They are handed to the
// Manager on every call and never stored by it.
type Credentials struct {
	Username string
	Password string
	// Club selects which administrable club the session is opened for, matched
	// against the lockerroom entries by name. Empty picks the first one.
	Club string
}

// Tokens is the anti-tampering triple the portal regenerates on every form page load.
type Tokens struct {
	ViewState          string `json:"viewstate"`
	ViewStateGenerator string `json:"viewstate_generator"`
	EventValidation    string `json:"event_validation"`
}

func (t Tokens) Complete() bool {
	return t.ViewState != "" && t.ViewStateGenerator != "" && t.EventValidation != ""
}

type Cookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// State is everything needed to replay an authenticated portal session. It is
// plain data so callers can keep it in whatever per-user storage they have.
type State struct {
	// Username identifies the credentials the state was created with, a state
	// is never reused for a different username.
	Username     string `json:"username"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	// Cookies are keyed by origin (scheme://host).
	Cookies map[string][]Cookie `json:"cookies"`
	// BaseURL is the portal's per-club virtual root, always ending in a slash.
	BaseURL           string    `json:"base_url"`
	Tokens            Tokens    `json:"tokens"`
	LastAuthenticated time.Time `json:"last_authenticated"`
}

// Phase is the position of a State in the login state machine.
type Phase int

const (
	PHASE_NOT_AUTHENTICATED Phase = iota
	PHASE_AUTHENTICATING
	PHASE_AUTHENTICATED
	PHASE_EXPIRED
)

func (p Phase) String() string {
	switch p {
	case PHASE_NOT_AUTHENTICATED:
		return "not_authenticated"
	case PHASE_AUTHENTICATING:
		return "authenticating"
	case PHASE_AUTHENTICATED:
		return "authenticated"
	case PHASE_EXPIRED:
		return "expired"
	}
	return "unknown"
}
