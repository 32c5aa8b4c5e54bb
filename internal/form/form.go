// Package form reads and submits the portal's stateful web forms. Every page
// carries a viewstate token triple that must be echoed back on the next post, the
// Scraper takes care of loading it right before each submission.
package form

import (
	"bytes"
	"context"
	"fmt"
	"gamesync-backend/internal/components/assert"
	"gamesync-backend/internal/components/telemetry"
	"gamesync-backend/internal/session"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("gamesync.form")

const (
	report_scraper_load   = "scraper.load-form"
	report_scraper_submit = "scraper.submit"
)

const (
	FIELD_VIEWSTATE          = "__VIEWSTATE"
	FIELD_VIEWSTATEGENERATOR = "__VIEWSTATEGENERATOR"
	FIELD_EVENTVALIDATION    = "__EVENTVALIDATION"
	FIELD_EVENTTARGET        = "__EVENTTARGET"
	FIELD_EVENTARGUMENT      = "__EVENTARGUMENT"
	FIELD_LASTFOCUS          = "__LASTFOCUS"
)

// ErrorRegionId is the id of the textarea the portal renders when it rejects a post.
const ErrorRegionId = "ErrorTextBox"

// Transport is the part of session.Manager the scraper needs.
type Transport interface {
	Get(ctx context.Context, state *session.State, endpoint string) (session.Response, error)
	PostForm(ctx context.Context, state *session.State, endpoint string, form url.Values) (session.Response, error)
}

type Scraper struct {
	transport Transport
	tel       telemetry.API
}

func NewScraper(transport Transport, tel telemetry.API) Scraper {
	assert.NotNil(transport)
	assert.NotNil(tel)
	return Scraper{
		transport: transport,
		tel:       telemetry.NewScopedAPI("form", tel),
	}
}

func parsePage(res session.Response) (*goquery.Document, error) {
	if res.Status != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", res.Status, res.URL)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body))
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// LoadForm fetches the form page at endpoint, parses its fields and stores the
// fresh token triple in state.
func (s Scraper) LoadForm(ctx context.Context, state *session.State, endpoint string) (Context, error) {
	ctx, span := tracer.Start(ctx, "scraper:LoadForm")
	defer span.End()
	span.SetAttributes(attribute.String("endpoint", endpoint))

	res, err := s.transport.Get(ctx, state, endpoint)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch form page")
		return Context{}, err
	}
	doc, err := parsePage(res)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "parse form page")
		s.tel.ReportBroken(report_scraper_load, err, endpoint)
		return Context{}, err
	}

	form, err := parseContext(doc)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.tel.ReportBroken(report_scraper_load, err, endpoint)
		return Context{}, err
	}
	form.URL = res.URL
	state.Tokens = form.Tokens

	return form, nil
}

// Submit loads the form at endpoint, posts fields together with the token triple
// it just received and reports a rejection from the portal as a
// *RemoteValidationError. The portal gives no positive confirmation, anything that
// is not a rejection counts as success.
func (s Scraper) Submit(ctx context.Context, state *session.State, endpoint string, fields url.Values) (Result, error) {
	ctx, span := tracer.Start(ctx, "scraper:Submit")
	defer span.End()
	span.SetAttributes(attribute.String("endpoint", endpoint))

	form, err := s.LoadForm(ctx, state, endpoint)
	if err != nil {
		return Result{}, err
	}

	payload := url.Values{}
	for key, values := range fields {
		payload[key] = append([]string(nil), values...)
	}
	payload.Set(FIELD_EVENTTARGET, "")
	payload.Set(FIELD_EVENTARGUMENT, "")
	payload.Set(FIELD_LASTFOCUS, "")
	payload.Set(FIELD_VIEWSTATE, form.Tokens.ViewState)
	payload.Set(FIELD_VIEWSTATEGENERATOR, form.Tokens.ViewStateGenerator)
	payload.Set(FIELD_EVENTVALIDATION, form.Tokens.EventValidation)

	res, err := s.transport.PostForm(ctx, state, endpoint, payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "post form")
		return Result{}, err
	}
	doc, err := parsePage(res)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "parse submission response")
		s.tel.ReportBroken(report_scraper_submit, err, endpoint)
		return Result{}, err
	}

	errorRegion := doc.Find(fmt.Sprintf("textarea#%s", ErrorRegionId))
	if errorRegion.Length() > 0 {
		rejected := &RemoteValidationError{Message: strings.TrimSpace(errorRegion.First().Text())}
		span.SetStatus(codes.Error, rejected.Error())
		s.tel.ReportWarning(report_scraper_submit, rejected.Message, endpoint)
		return Result{}, rejected
	}

	// the response is usually the form again, keep its tokens for the next load
	if tokens := parseTokens(doc); tokens.Complete() {
		state.Tokens = tokens
	}

	return Result{URL: res.URL, Body: res.Body}, nil
}
