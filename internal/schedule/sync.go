// Package schedule runs sync passes: it collects the operator's games from the
// results service, compares them with the games entered in the admin portal and
// reports what is missing or out of date.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"gamesync-backend/internal/calendar"
	"gamesync-backend/internal/components/assert"
	"gamesync-backend/internal/components/chrono"
	"gamesync-backend/internal/components/telemetry"
	"gamesync-backend/internal/gamestore"
	"gamesync-backend/internal/reconcile"
	"gamesync-backend/internal/resultsapi"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("gamesync.schedule")

const (
	report_sync_fetch    = "sync.fetch"
	report_sync_track    = "sync.track"
	report_sync_notes    = "sync.notes"
	report_sync_missing  = "sync.missing"
	report_sync_mismatch = "sync.mismatch"
	report_sync_changed  = "sync.changed"
	report_sync_results  = "sync.results"
)

type ResultsAPI interface {
	Games(ctx context.Context, query resultsapi.GamesQuery) ([]resultsapi.Game, error)
}

type TrackerAPI interface {
	Track(ctx context.Context, games []reconcile.ExternalGame, seenAt time.Time) (gamestore.Diff, error)
}

type MatcherAPI interface {
	Reconcile(external []reconcile.ExternalGame, internal []reconcile.InternalEntry) []reconcile.MatchResult
}

type CalendarAPI interface {
	Fetch(ctx context.Context, url string) ([]calendar.Event, error)
}

// InternalAPI lists the games entered in the admin portal, *portal.Conn
// implements it.
type InternalAPI interface {
	ListGames(ctx context.Context) ([]reconcile.InternalEntry, error)
}

type Options struct {
	Teams []resultsapi.TeamRef `json:"teams"`
	// GameDays is how many game days from yesterday on are fetched per team.
	GameDays    int    `json:"game_days"`
	CalendarUrl string `json:"calendar_url"`
}

// Syncer composes the results service, the change tracker, the calendar feed and
// the matcher. Tracker and Calendar are optional.
type Syncer struct {
	results  ResultsAPI
	tracker  TrackerAPI
	calendar CalendarAPI
	matcher  MatcherAPI
	opts     Options
	time     chrono.TimeAPI
	tel      telemetry.API
}

type Dependencies struct {
	Results  ResultsAPI
	Tracker  TrackerAPI
	Calendar CalendarAPI
	Matcher  MatcherAPI
	Time     chrono.TimeAPI
}

func NewSyncer(deps Dependencies, opts Options, tel telemetry.API) Syncer {
	assert.NotNil(deps.Results)
	assert.NotNil(deps.Matcher)
	assert.NotNil(deps.Time)
	assert.NotNil(tel)
	if opts.GameDays <= 0 {
		opts.GameDays = 60
	}
	return Syncer{
		results:  deps.Results,
		tracker:  deps.Tracker,
		calendar: deps.Calendar,
		matcher:  deps.Matcher,
		opts:     opts,
		time:     deps.Time,
		tel:      telemetry.NewScopedAPI("schedule", tel),
	}
}

// Report is the outcome of one sync pass.
type Report struct {
	Started time.Time               `json:"started"`
	Results []reconcile.MatchResult `json:"results"`
	Changes gamestore.Diff          `json:"changes"`
	// FetchErrors holds the teams whose games could not be fetched, their games
	// are missing from Results.
	FetchErrors map[string]error `json:"-"`
}

func (r Report) Count(status reconcile.Status) int {
	count := 0
	for _, res := range r.Results {
		if res.Status == status {
			count++
		}
	}
	return count
}

// External fetches the games of every configured team. A team that fails is
// reported and skipped, the error is returned only when every team failed.
func (s Syncer) External(ctx context.Context) ([]reconcile.ExternalGame, map[string]error, error) {
	ctx, span := tracer.Start(ctx, "syncer:External")
	defer span.End()

	from := chrono.StartOfDay(s.time.Now()).AddDate(0, 0, -1)
	failed := make(map[string]error)
	var games []reconcile.ExternalGame
	for _, team := range s.opts.Teams {
		fetched, err := s.results.Games(ctx, resultsapi.GamesQuery{
			Season:      team.Season,
			StatGroupId: team.StatGroupId,
			TeamId:      team.TeamId,
			GameDays:    s.opts.GameDays,
			From:        from,
		})
		if err != nil {
			s.tel.ReportBroken(report_sync_fetch, err, team.TeamId, team.TeamName)
			failed[team.TeamId] = err
			continue
		}
		for _, g := range fetched {
			games = append(games, g.External(team))
		}
	}
	span.SetAttributes(attribute.Int("games", len(games)))

	if len(s.opts.Teams) > 0 && len(failed) == len(s.opts.Teams) {
		errs := make([]error, 0, len(failed))
		for id, err := range failed {
			errs = append(errs, fmt.Errorf("team %s: %w", id, err))
		}
		err := errors.Join(errs...)
		span.RecordError(err)
		span.SetStatus(codes.Error, "no team could be fetched")
		return nil, failed, err
	}
	return games, failed, nil
}

func (s Syncer) internal(ctx context.Context, portal InternalAPI) ([]reconcile.InternalEntry, error) {
	entries, err := portal.ListGames(ctx)
	if err != nil {
		return nil, err
	}
	if s.calendar == nil || s.opts.CalendarUrl == "" {
		return entries, nil
	}
	events, err := s.calendar.Fetch(ctx, s.opts.CalendarUrl)
	if err != nil {
		// notes only add small-pitch hints, the pass goes on without them
		s.tel.ReportWarning(report_sync_notes, err)
		return entries, nil
	}
	return calendar.MergeNotes(entries, events), nil
}

// Run performs one sync pass against the given portal connection.
func (s Syncer) Run(ctx context.Context, portal InternalAPI) (Report, error) {
	ctx, span := tracer.Start(ctx, "syncer:Run")
	defer span.End()

	report := Report{Started: s.time.Now()}

	external, failed, err := s.External(ctx)
	report.FetchErrors = failed
	if err != nil {
		return report, err
	}

	if s.tracker != nil {
		diff, err := s.tracker.Track(ctx, external, report.Started)
		if err != nil {
			s.tel.ReportBroken(report_sync_track, err)
		} else {
			report.Changes = diff
			for _, update := range diff.Updated {
				for _, change := range update.Changes {
					s.tel.ReportWarning(report_sync_changed, update.Game.GameID, change.Field, change.Old, change.New)
				}
			}
		}
	}

	internal, err := s.internal(ctx, portal)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list internal games")
		return report, fmt.Errorf("list internal games: %w", err)
	}

	report.Results = s.matcher.Reconcile(external, internal)
	for _, res := range report.Results {
		switch res.Status {
		case reconcile.STATUS_RED:
			s.tel.ReportWarning(report_sync_missing, res.Game.GameID, res.Game.Date, res.Reason)
		case reconcile.STATUS_YELLOW:
			s.tel.ReportWarning(report_sync_mismatch, res.Game.GameID, res.Game.Date, res.Reason)
		}
		if res.Warning != "" {
			s.tel.ReportWarning(report_sync_mismatch, res.Game.GameID, res.Warning)
		}
	}
	s.tel.ReportCount(report_sync_results, int64(len(report.Results)))
	span.SetAttributes(
		attribute.Int("green", report.Count(reconcile.STATUS_GREEN)),
		attribute.Int("yellow", report.Count(reconcile.STATUS_YELLOW)),
		attribute.Int("red", report.Count(reconcile.STATUS_RED)),
	)
	return report, nil
}
