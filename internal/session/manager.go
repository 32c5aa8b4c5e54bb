package session

import (
	"context"
	"fmt"
	"gamesync-backend/internal/components/assert"
	"gamesync-backend/internal/components/chrono"
	"gamesync-backend/internal/components/telemetry"
	"gamesync-backend/lib/textutil"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strings"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
)

var tracer = otel.Tracer("gamesync.session")

const (
	report_manager_login      = "manager.login"
	report_manager_ensure     = "manager.ensure-logged-in"
	report_manager_request    = "manager.request"
	report_manager_state_user = "manager.state-identity"
)

const DefaultTTL = time.Hour

type Options struct {
	// AuthUrl receives the credentials and answers with a bearer and refresh token.
	AuthUrl string `json:"auth_url"`
	// LockerroomUrl lists the clubs the account can administer.
	LockerroomUrl string `json:"lockerroom_url"`
	// AdminLinkUrl hands out a one-time admin portal url for a club's metadata id.
	AdminLinkUrl string `json:"admin_link_url"`
	// LoginPagePath is the path fragment of the portal's own login page, landing
	// on it means the portal did not accept the session.
	LoginPagePath string `json:"login_page_path"`

	TTL               time.Duration `json:"ttl"`
	Timeout           time.Duration `json:"timeout"`
	RequestsPerSecond float64       `json:"requests_per_second"`
	BypassCloudflare  bool          `json:"bypass_cloudflare"`
	UserAgent         string        `json:"user_agent"`
}

func (o *Options) setDefaults() {
	if o.LoginPagePath == "" {
		o.LoginPagePath = "/login"
	}
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	if o.Timeout <= 0 {
		o.Timeout = time.Second * 30
	}
	if o.RequestsPerSecond <= 0 {
		o.RequestsPerSecond = 2
	}
	if o.UserAgent == "" {
		o.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
	}
}

// Manager logs users into the admin portal and replays their sessions. It holds
// no per-user state, every call receives the State it works on.
type Manager struct {
	opts    Options
	time    chrono.TimeAPI
	tel     telemetry.API
	limiter *rate.Limiter
}

func NewManager(opts Options, time chrono.TimeAPI, tel telemetry.API) *Manager {
	assert.NotNil(time)
	assert.NotNil(tel)
	assert.NotEmptyStr(opts.AuthUrl)
	assert.NotEmptyStr(opts.LockerroomUrl)
	assert.NotEmptyStr(opts.AdminLinkUrl)

	opts.setDefaults()
	tel = telemetry.NewScopedAPI("session", tel)

	// max burst >= 1 just means that no requests will be dropped
	burst := max(int(opts.RequestsPerSecond), 1)

	return &Manager{
		opts:    opts,
		time:    time,
		tel:     tel,
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst),
	}
}

func (m *Manager) TTL() time.Duration {
	return m.opts.TTL
}

func (m *Manager) newClient(jar http.CookieJar) *resty.Client {
	client := resty.New()
	client.SetCookieJar(jar)
	if m.opts.BypassCloudflare {
		client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	}
	client.SetHeader("user-agent", m.opts.UserAgent)
	client.SetRedirectPolicy(resty.FlexibleRedirectPolicy(10))
	client.SetTimeout(m.opts.Timeout)

	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return m.limiter.Wait(req.Context())
	})
	telemetry.InstrumentResty(client, m.tel)

	return client
}

// IsValid reports whether the state is recent enough to be used without logging
// in again. It never asks the portal.
func (m *Manager) IsValid(state *State) bool {
	return m.Phase(state) == PHASE_AUTHENTICATED
}

func (m *Manager) Phase(state *State) Phase {
	if state == nil || state.LastAuthenticated.IsZero() || state.BaseURL == "" {
		return PHASE_NOT_AUTHENTICATED
	}
	if m.time.Now().Sub(state.LastAuthenticated) > m.opts.TTL {
		return PHASE_EXPIRED
	}
	return PHASE_AUTHENTICATED
}

// EnsureLoggedIn returns state as is when it is still valid for creds, otherwise it
// logs in exactly once and returns the new state.
func (m *Manager) EnsureLoggedIn(ctx context.Context, state *State, creds Credentials) (*State, error) {
	if state != nil && state.Username != "" && state.Username != creds.Username {
		m.tel.ReportWarning(report_manager_state_user, state.Username, creds.Username)
		state = nil
	}
	if m.IsValid(state) {
		return state, nil
	}

	m.tel.ReportDebug(report_manager_ensure, m.Phase(state).String(), creds.Username)
	fresh, err := m.Login(ctx, creds)
	if err != nil {
		return nil, err
	}
	return fresh, nil
}

// Logout drops everything the state authenticates with.
func (m *Manager) Logout(state *State) {
	if state == nil {
		return
	}
	username := state.Username
	*state = State{Username: username}
}

type tokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type lockerroomResponse struct {
	Teams []lockerroomTeam `json:"teams"`
}

type lockerroomTeam struct {
	MetadataId string `json:"metadataId"`
	Name       string `json:"name"`
	IsAdmin    bool   `json:"isAdmin"`
}

type adminLinkRequest struct {
	MetadataId string `json:"metadataId"`
}

type adminLinkResponse struct {
	Url string `json:"url"`
}

var baseUrlRegex = regexp.MustCompile(`(?i)adminBaseUrl\s*[:=]\s*["']([^"']+)["']`)

func loginError(step string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrAuthenticationFailed, step, err)
}

func (m *Manager) selectTeam(teams []lockerroomTeam, club string) (lockerroomTeam, bool) {
	var admin []lockerroomTeam
	for _, t := range teams {
		if t.IsAdmin && t.MetadataId != "" {
			admin = append(admin, t)
		}
	}
	if len(admin) == 0 {
		return lockerroomTeam{}, false
	}
	if club == "" {
		return admin[0], true
	}

	names := make([]string, len(admin))
	for i, t := range admin {
		names[i] = t.Name
	}
	idx, _ := textutil.Closest(club, names)
	return admin[idx], true
}

// Login runs the four step exchange: credentials for a bearer token, the bearer
// token for the club's metadata id, the metadata id for a one-time admin url, and
// finally the admin url itself which reveals the portal's base url.
func (m *Manager) Login(ctx context.Context, creds Credentials) (*State, error) {
	ctx, span := tracer.Start(ctx, "manager:Login")
	defer span.End()
	span.SetAttributes(attribute.String("username", creds.Username))

	m.tel.ReportDebug(report_manager_login, PHASE_AUTHENTICATING.String(), creds.Username)

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client := m.newClient(jar)

	fail := func(step string, err error) (*State, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, step)
		m.tel.ReportWarning(report_manager_login, step, err, creds.Username)
		return nil, err
	}

	var token tokenResponse
	res, err := client.R().
		SetContext(ctx).
		SetBody(tokenRequest{Username: creds.Username, Password: creds.Password}).
		SetResult(&token).
		Post(m.opts.AuthUrl)
	if err != nil {
		return fail("token", fmt.Errorf("token request: %w", err))
	}
	if res.StatusCode() != http.StatusOK || token.AccessToken == "" {
		return fail("token", loginError("token", fmt.Errorf("status %s", res.Status())))
	}

	var lockerroom lockerroomResponse
	res, err = client.R().
		SetContext(ctx).
		SetAuthToken(token.AccessToken).
		SetResult(&lockerroom).
		Get(m.opts.LockerroomUrl)
	if err != nil {
		return fail("lockerroom", fmt.Errorf("lockerroom request: %w", err))
	}
	if res.StatusCode() != http.StatusOK {
		return fail("lockerroom", loginError("lockerroom", fmt.Errorf("status %s", res.Status())))
	}
	team, ok := m.selectTeam(lockerroom.Teams, creds.Club)
	if !ok {
		return fail("lockerroom", loginError("lockerroom", fmt.Errorf("account administers no clubs")))
	}

	var link adminLinkResponse
	res, err = client.R().
		SetContext(ctx).
		SetAuthToken(token.AccessToken).
		SetBody(adminLinkRequest{MetadataId: team.MetadataId}).
		SetResult(&link).
		Post(m.opts.AdminLinkUrl)
	if err != nil {
		return fail("admin-link", fmt.Errorf("admin link request: %w", err))
	}
	if res.StatusCode() != http.StatusOK || link.Url == "" {
		return fail("admin-link", loginError("admin-link", fmt.Errorf("status %s", res.Status())))
	}

	res, err = client.R().
		SetContext(ctx).
		Get(link.Url)
	if err != nil {
		return fail("admin-redeem", fmt.Errorf("redeem admin link: %w", err))
	}
	if res.StatusCode() != http.StatusOK {
		return fail("admin-redeem", loginError("admin-redeem", fmt.Errorf("status %s", res.Status())))
	}
	landed := finalUrl(res)
	if m.isLoginPage(landed) {
		return fail("admin-redeem", loginError("admin-redeem", fmt.Errorf("redirected to login page %s", landed)))
	}

	baseUrl, err := parseBaseUrl(landed, res.Body())
	if err != nil {
		return fail("admin-redeem", loginError("admin-redeem", err))
	}

	state := &State{
		Username:          creds.Username,
		AccessToken:       token.AccessToken,
		RefreshToken:      token.RefreshToken,
		BaseURL:           baseUrl.String(),
		LastAuthenticated: m.time.Now(),
	}
	saveCookies(state, jar, landed, baseUrl)

	m.tel.ReportDebug(report_manager_login, PHASE_AUTHENTICATED.String(), creds.Username, state.BaseURL)
	return state, nil
}

func finalUrl(res *resty.Response) *url.URL {
	if res.RawResponse != nil && res.RawResponse.Request != nil {
		return res.RawResponse.Request.URL
	}
	parsed, _ := url.Parse(res.Request.URL)
	return parsed
}

func (m *Manager) isLoginPage(u *url.URL) bool {
	if u == nil {
		return false
	}
	return strings.Contains(strings.ToLower(u.Path), strings.ToLower(m.opts.LoginPagePath))
}

func parseBaseUrl(landed *url.URL, body []byte) (*url.URL, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("parse admin landing page: %w", err)
	}

	var raw string
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		groups := baseUrlRegex.FindStringSubmatch(s.Text())
		if len(groups) < 2 {
			return true
		}
		raw = groups[1]
		return false
	})
	if raw == "" {
		return nil, fmt.Errorf("could not find admin base url in landing page")
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse admin base url: %w", err)
	}
	if landed != nil {
		parsed = landed.ResolveReference(parsed)
	}
	if !strings.HasSuffix(parsed.Path, "/") {
		parsed.Path += "/"
	}
	return parsed, nil
}
