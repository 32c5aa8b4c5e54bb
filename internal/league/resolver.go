// Package league maps a results-service level name onto one of the portal's
// leagues, creating the league when the portal has nothing close enough.
package league

import (
	"context"
	"fmt"
	"gamesync-backend/internal/components/assert"
	"gamesync-backend/internal/components/telemetry"
	"gamesync-backend/internal/form"
	"gamesync-backend/internal/session"
	"gamesync-backend/lib/textutil"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("gamesync.league")

const (
	report_resolver_resolve = "resolver.resolve"
	report_resolver_create  = "resolver.create"
)

const (
	leagueFieldPrefix = "ctl00$MainContentPlaceHolder$LeagueForm$"

	FIELD_LEAGUE_NAME = leagueFieldPrefix + "LeagueNameTextBox"
	FIELD_LEAGUE_SAVE = leagueFieldPrefix + "SaveLeagueButton"
)

// ErrLeagueNotCreated means a league was created for a label but the portal still
// lists nothing that matches it.
var ErrLeagueNotCreated = fmt.Errorf("league was not created")

// League is a portal league option, re-read on every resolution.
type League struct {
	Id   string `json:"id"`
	Name string `json:"name"`
}

// FormAPI is the part of form.Scraper the resolver needs.
type FormAPI interface {
	LoadForm(ctx context.Context, state *session.State, endpoint string) (form.Context, error)
	Submit(ctx context.Context, state *session.State, endpoint string, fields url.Values) (form.Result, error)
}

type Options struct {
	// GameFormPath is the form whose league select lists the existing leagues.
	GameFormPath string `json:"game_form_path"`
	// LeagueFormPath is the league creation form.
	LeagueFormPath string `json:"league_form_path"`
	LeagueSelectId string `json:"league_select_id"`
	// MinPrefix is the shortest common prefix that still counts as the same league.
	MinPrefix int `json:"min_prefix"`
}

func DefaultOptions() Options {
	return Options{
		GameFormPath:   "Games/Game.aspx",
		LeagueFormPath: "Leagues/League.aspx",
		LeagueSelectId: "LeagueDropdownList",
		MinPrefix:      5,
	}
}

type Resolver struct {
	forms FormAPI
	opts  Options
	tel   telemetry.API
}

func NewResolver(forms FormAPI, opts Options, tel telemetry.API) Resolver {
	assert.NotNil(forms)
	assert.NotNil(tel)
	assert.Positive(opts.MinPrefix)
	return Resolver{
		forms: forms,
		opts:  opts,
		tel:   telemetry.NewScopedAPI("league", tel),
	}
}

// best returns the option sharing the longest prefix with label, the first one
// wins a tie. Placeholder options without a usable value are ignored.
func (r Resolver) best(options []form.Option, label string) (League, int) {
	var found League
	longest := -1
	for _, o := range options {
		if o.Value == "" || o.Value == "0" {
			continue
		}
		n := textutil.CommonPrefixLen(label, o.Text)
		if n > longest {
			longest = n
			found = League{Id: o.Value, Name: o.Text}
		}
	}
	return found, longest
}

func (r Resolver) lookup(ctx context.Context, state *session.State, label string) (League, int, error) {
	page, err := r.forms.LoadForm(ctx, state, r.opts.GameFormPath)
	if err != nil {
		return League{}, 0, err
	}
	sel, err := page.Select(r.opts.LeagueSelectId)
	if err != nil {
		r.tel.ReportBroken(report_resolver_resolve, err)
		return League{}, 0, err
	}
	league, n := r.best(sel.Options, label)
	return league, n, nil
}

// Resolve returns the portal league for a level label. When no league shares at
// least MinPrefix leading characters with the label a league named after it is
// created and the lookup runs once more.
func (r Resolver) Resolve(ctx context.Context, state *session.State, label string) (League, error) {
	ctx, span := tracer.Start(ctx, "resolver:Resolve")
	defer span.End()

	label = strings.TrimSpace(label)
	span.SetAttributes(attribute.String("label", label))
	if label == "" {
		return League{}, fmt.Errorf("empty level label")
	}

	league, n, err := r.lookup(ctx, state, label)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "lookup")
		return League{}, err
	}
	if n >= r.opts.MinPrefix {
		return league, nil
	}

	r.tel.ReportDebug(report_resolver_create, label, league.Name, n)
	_, err = r.forms.Submit(ctx, state, r.opts.LeagueFormPath, url.Values{
		FIELD_LEAGUE_NAME: {label},
		FIELD_LEAGUE_SAVE: {"Tallenna"},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create league")
		r.tel.ReportBroken(report_resolver_create, err, label)
		return League{}, fmt.Errorf("create league %q: %w", label, err)
	}

	league, n, err = r.lookup(ctx, state, label)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "lookup after create")
		return League{}, err
	}
	if n < r.opts.MinPrefix {
		err = fmt.Errorf("%w: %q", ErrLeagueNotCreated, label)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.tel.ReportBroken(report_resolver_create, err)
		return League{}, err
	}
	return league, nil
}
