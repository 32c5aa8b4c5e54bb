package session

import "fmt"

// ErrAuthenticationFailed means the portal rejected the credentials or the login
// flow ended somewhere unexpected. It is never returned for transport errors.
var ErrAuthenticationFailed = fmt.Errorf("portal authentication failed")

// ErrSessionExpired means the state is too old or the portal bounced a request back
// to its login page. Logging in again recovers from it.
var ErrSessionExpired = fmt.Errorf("portal session expired")
