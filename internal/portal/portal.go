// Package portal is what the rest of the system uses to read and write the club
// admin portal: it opens a session and lists, reads, creates and edits games.
package portal

import (
	"context"
	"errors"
	"fmt"
	"gamesync-backend/internal/components/assert"
	"gamesync-backend/internal/components/telemetry"
	"gamesync-backend/internal/league"
	"gamesync-backend/internal/session"
	"net/url"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("gamesync.portal")

const (
	report_conn_create  = "conn.create"
	report_conn_modify  = "conn.modify"
	report_conn_list    = "conn.list-games"
	report_conn_details = "conn.game-details"
	report_conn_relogin = "conn.relogin"
)

// SessionAPI is the part of session.Manager the portal needs.
type SessionAPI interface {
	EnsureLoggedIn(ctx context.Context, state *session.State, creds session.Credentials) (*session.State, error)
	Get(ctx context.Context, state *session.State, endpoint string) (session.Response, error)
}

type LeagueAPI interface {
	Resolve(ctx context.Context, state *session.State, label string) (league.League, error)
}

type Options struct {
	GamesListPath string `json:"games_list_path"`
	GameFormPath  string `json:"game_form_path"`
	SeasonSelect  string `json:"season_select"`
	SubSiteSelect string `json:"sub_site_select"`
}

func DefaultOptions() Options {
	return Options{
		GamesListPath: "Games/Games.aspx",
		GameFormPath:  "Games/Game.aspx",
		SeasonSelect:  "DropDownListSeasons",
		SubSiteSelect: "DropDownListSubSites",
	}
}

type Portal struct {
	sessions SessionAPI
	forms    league.FormAPI
	leagues  LeagueAPI
	opts     Options
	tel      telemetry.API
}

func NewPortal(sessions SessionAPI, forms league.FormAPI, leagues LeagueAPI, opts Options, tel telemetry.API) Portal {
	assert.NotNil(sessions)
	assert.NotNil(forms)
	assert.NotNil(leagues)
	assert.NotNil(tel)
	return Portal{
		sessions: sessions,
		forms:    forms,
		leagues:  leagues,
		opts:     opts,
		tel:      telemetry.NewScopedAPI("portal", tel),
	}
}

// Conn is an open portal session for one set of credentials. It is not safe for
// concurrent use.
type Conn struct {
	portal Portal
	creds  session.Credentials
	state  *session.State
}

// Open makes sure state is logged in for creds, logging in when it is nil, stale
// or belongs to someone else.
func (p Portal) Open(ctx context.Context, state *session.State, creds session.Credentials) (*Conn, error) {
	state, err := p.sessions.EnsureLoggedIn(ctx, state, creds)
	if err != nil {
		return nil, err
	}
	return &Conn{portal: p, creds: creds, state: state}, nil
}

// State is the session the connection currently runs on, callers store it to
// reuse the login later.
func (c *Conn) State() *session.State {
	return c.state
}

// withSession runs fn, and when the portal reports the session as expired logs in
// again and runs it exactly once more.
func (c *Conn) withSession(ctx context.Context, fn func(state *session.State) error) error {
	err := fn(c.state)
	if !errors.Is(err, session.ErrSessionExpired) {
		return err
	}

	c.portal.tel.ReportDebug(report_conn_relogin, c.creds.Username)
	state, err := c.portal.sessions.EnsureLoggedIn(ctx, c.state, c.creds)
	if err != nil {
		return err
	}
	c.state = state
	return fn(c.state)
}

func gameEndpoint(base, uid string) string {
	if uid == "" {
		return base
	}
	return fmt.Sprintf("%s?gId=%s", base, url.QueryEscape(uid))
}

// fillDefaults resolves the league and takes the season and sub-site the form
// currently has selected when the input leaves them empty.
func (c *Conn) fillDefaults(ctx context.Context, state *session.State, in GameInput) (GameInput, error) {
	if in.LeagueId == "" && in.LevelName != "" {
		resolved, err := c.portal.leagues.Resolve(ctx, state, in.LevelName)
		if err != nil {
			return GameInput{}, err
		}
		in.LeagueId = resolved.Id
	}
	if in.SeasonId != "" && in.SubSiteId != "" {
		return in, nil
	}

	page, err := c.portal.forms.LoadForm(ctx, state, c.portal.opts.GameFormPath)
	if err != nil {
		return GameInput{}, err
	}
	if in.SeasonId == "" {
		sel, err := page.Select(c.portal.opts.SeasonSelect)
		if err != nil {
			return GameInput{}, err
		}
		selected, _ := sel.Selected()
		in.SeasonId = selected.Value
	}
	if in.SubSiteId == "" {
		sel, err := page.Select(c.portal.opts.SubSiteSelect)
		if err != nil {
			return GameInput{}, err
		}
		selected, _ := sel.Selected()
		in.SubSiteId = selected.Value
	}
	return in, nil
}

func (c *Conn) save(ctx context.Context, uid string, in GameInput) error {
	return c.withSession(ctx, func(state *session.State) error {
		filled, err := c.fillDefaults(ctx, state, in)
		if err != nil {
			return err
		}
		_, err = c.portal.forms.Submit(ctx, state, gameEndpoint(c.portal.opts.GameFormPath, uid), filled.Fields())
		return err
	})
}

// CreateGame adds a game to the portal.
func (c *Conn) CreateGame(ctx context.Context, in GameInput) error {
	ctx, span := tracer.Start(ctx, "conn:CreateGame")
	defer span.End()
	span.SetAttributes(attribute.String("date", in.Date))

	err := c.save(ctx, "", in)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.portal.tel.ReportWarning(report_conn_create, err, in.Date, in.HomeTeam, in.GuestTeam)
		return err
	}
	return nil
}

// ModifyGame overwrites the game uid with in.
func (c *Conn) ModifyGame(ctx context.Context, uid string, in GameInput) error {
	ctx, span := tracer.Start(ctx, "conn:ModifyGame")
	defer span.End()
	span.SetAttributes(attribute.String("uid", uid))

	if uid == "" {
		return fmt.Errorf("modify game: empty uid")
	}
	err := c.save(ctx, uid, in)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.portal.tel.ReportWarning(report_conn_modify, err, uid)
		return err
	}
	return nil
}

// Outcome is the result of one game of a batch.
type Outcome struct {
	Input GameInput
	Err   error
}

// CreateGames creates every game in order, one failure does not stop the rest.
func (c *Conn) CreateGames(ctx context.Context, inputs []GameInput) []Outcome {
	outcomes := make([]Outcome, len(inputs))
	created := 0
	for i, in := range inputs {
		err := c.CreateGame(ctx, in)
		outcomes[i] = Outcome{Input: in, Err: err}
		if err == nil {
			created++
		}
	}
	c.portal.tel.ReportCount(report_conn_create, int64(created))
	return outcomes
}
