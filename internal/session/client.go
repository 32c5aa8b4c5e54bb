package session

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Response is a portal page fetched on behalf of a State.
type Response struct {
	// URL is where the request ended up after following redirects.
	URL    *url.URL
	Status int
	Body   []byte
}

func origin(u *url.URL) string {
	return fmt.Sprintf("%s://%s", u.Scheme, u.Host)
}

func restoreCookies(state *State, jar http.CookieJar) {
	for key, cookies := range state.Cookies {
		u, err := url.Parse(key + "/")
		if err != nil {
			continue
		}
		httpCookies := make([]*http.Cookie, len(cookies))
		for i, c := range cookies {
			httpCookies[i] = &http.Cookie{Name: c.Name, Value: c.Value, Path: "/"}
		}
		jar.SetCookies(u, httpCookies)
	}
}

func saveCookies(state *State, jar http.CookieJar, urls ...*url.URL) {
	if state.Cookies == nil {
		state.Cookies = make(map[string][]Cookie)
	}
	for _, u := range urls {
		if u == nil || u.Host == "" {
			continue
		}
		root := &url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"}
		cookies := jar.Cookies(root)
		if len(cookies) == 0 {
			continue
		}
		saved := make([]Cookie, len(cookies))
		for i, c := range cookies {
			saved[i] = Cookie{Name: c.Name, Value: c.Value}
		}
		state.Cookies[origin(u)] = saved
	}
}

// Resolve turns an endpoint relative to the state's portal root into an absolute url.
func (m *Manager) Resolve(state *State, endpoint string) (*url.URL, error) {
	base, err := url.Parse(state.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	ref, err := url.Parse(strings.TrimPrefix(endpoint, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	return base.ResolveReference(ref), nil
}

func (m *Manager) do(ctx context.Context, state *State, method, endpoint string, form url.Values) (Response, error) {
	ctx, span := tracer.Start(ctx, "manager:"+strings.ToLower(method))
	defer span.End()
	span.SetAttributes(attribute.String("endpoint", endpoint))

	if !m.IsValid(state) {
		span.SetStatus(codes.Error, "session not valid")
		return Response{}, ErrSessionExpired
	}

	target, err := m.Resolve(state, endpoint)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Response{}, err
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return Response{}, err
	}
	restoreCookies(state, jar)
	client := m.newClient(jar)

	req := client.R().SetContext(ctx)
	var res *resty.Response
	switch method {
	case http.MethodGet:
		res, err = req.Get(target.String())
	case http.MethodPost:
		res, err = req.SetFormDataFromValues(form).Post(target.String())
	default:
		return Response{}, fmt.Errorf("unsupported method %s", method)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		m.tel.ReportWarning(report_manager_request, method, target.String(), err)
		return Response{}, fmt.Errorf("%s %s: %w", method, endpoint, err)
	}

	landed := finalUrl(res)
	saveCookies(state, jar, target, landed)

	if m.isLoginPage(landed) {
		span.SetStatus(codes.Error, "redirected to login page")
		m.tel.ReportDebug(report_manager_request, "session expired", target.String())
		m.Logout(state)
		return Response{}, ErrSessionExpired
	}

	return Response{
		URL:    landed,
		Status: res.StatusCode(),
		Body:   res.Body(),
	}, nil
}

// Get fetches an endpoint relative to the portal root with the state's cookies.
// Landing on the login page invalidates the state and yields ErrSessionExpired.
func (m *Manager) Get(ctx context.Context, state *State, endpoint string) (Response, error) {
	return m.do(ctx, state, http.MethodGet, endpoint, nil)
}

// PostForm posts url encoded form data, it behaves like Get otherwise.
func (m *Manager) PostForm(ctx context.Context, state *State, endpoint string, form url.Values) (Response, error) {
	return m.do(ctx, state, http.MethodPost, endpoint, form)
}
