package schedule

import (
	"context"
	"fmt"
	"gamesync-backend/internal/calendar"
	"gamesync-backend/internal/components/chrono"
	"gamesync-backend/internal/components/telemetry"
	"gamesync-backend/internal/gamestore"
	"gamesync-backend/internal/gamestore/db"
	"gamesync-backend/internal/reconcile"
	"gamesync-backend/internal/resultsapi"
	"gamesync-backend/lib/testutil"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

type fakeResults struct {
	games   map[string][]resultsapi.Game
	fail    map[string]bool
	queries []resultsapi.GamesQuery
}

func (f *fakeResults) Games(ctx context.Context, query resultsapi.GamesQuery) ([]resultsapi.Game, error) {
	f.queries = append(f.queries, query)
	if f.fail[query.TeamId] {
		return nil, fmt.Errorf("502 bad gateway")
	}
	return f.games[query.TeamId], nil
}

type fakePortal struct {
	entries []reconcile.InternalEntry
	err     error
}

func (f fakePortal) ListGames(ctx context.Context) ([]reconcile.InternalEntry, error) {
	return f.entries, f.err
}

type fakeCalendar struct {
	events []calendar.Event
	err    error
}

func (f fakeCalendar) Fetch(ctx context.Context, url string) ([]calendar.Event, error) {
	return f.events, f.err
}

var punainen = resultsapi.TeamRef{
	TeamId:      "981",
	TeamName:    "S-Kiekko Punainen",
	Season:      "2025",
	StatGroupId: "4410",
	Type:        reconcile.TYPE_MANAGE,
}

var sininen = resultsapi.TeamRef{
	TeamId:      "982",
	TeamName:    "S-Kiekko Sininen",
	Season:      "2025",
	StatGroupId: "4411",
	Type:        reconcile.TYPE_MANAGE,
}

func resultsGame(id, date, clock, home, away, rink string) resultsapi.Game {
	return resultsapi.Game{
		GameID:        resultsapi.Value(id),
		GameDate:      resultsapi.Value(date),
		GameTime:      resultsapi.Value(clock),
		HomeTeamAbbrv: resultsapi.Value(home),
		AwayTeamAbbrv: resultsapi.Value(away),
		RinkName:      resultsapi.Value(rink),
		LevelName:     "U13 A",
		SmallAreaGame: "1",
	}
}

func setup(t testing.TB, results *fakeResults, cal CalendarAPI) (Syncer, *telemetry.Recorder) {
	clock := clockwork.NewFakeClockAt(time.Date(2025, 6, 30, 12, 0, 0, 0, chrono.Helsinki()))
	tel := &telemetry.Recorder{}

	sqlite := testutil.OpenDB(t, testutil.DBParams{Schema: db.Schema})

	syncer := NewSyncer(Dependencies{
		Results:  results,
		Tracker:  gamestore.NewStore(sqlite, tel),
		Calendar: cal,
		Matcher:  reconcile.NewMatcher(clock, reconcile.DefaultWeights()),
		Time:     clock,
	}, Options{
		Teams:       []resultsapi.TeamRef{punainen, sininen},
		CalendarUrl: "https://calendar.example.com/feed.ics",
	}, tel)
	return syncer, tel
}

func TestRun(t *testing.T) {
	results := &fakeResults{games: map[string][]resultsapi.Game{
		"981": {resultsGame("5001", "05.07.2025", "12:15", "S-Kiekko Punainen", "Kiekko-Vantaa", "Myyrmäki 2")},
		"982": {resultsGame("5002", "06.07.2025", "09:00", "Kiekko-Espoo", "S-Kiekko Sininen", "Tapiola")},
	}}
	cal := fakeCalendar{events: []calendar.Event{{UID: "101@portal", Description: "Pienpeli 3v3"}}}
	syncer, tel := setup(t, results, cal)

	portal := fakePortal{entries: []reconcile.InternalEntry{{
		UID:        "101",
		Date:       "2025-07-05",
		Time:       "12:15",
		TeamsLabel: "S-Kiekko Punainen - Kiekko-Vantaa",
		Location:   "Myyrmäki 2",
	}}}

	report, err := syncer.Run(context.Background(), portal)
	require.NoError(t, err)
	require.Len(t, report.Results, 2)

	require.Equal(t, reconcile.STATUS_GREEN, report.Results[0].Status)
	require.Equal(t, "Pienpeli 3v3", report.Results[0].Match.Notes)
	require.Equal(t, reconcile.STATUS_RED, report.Results[1].Status)
	require.Equal(t, 1, report.Count(reconcile.STATUS_GREEN))
	require.Equal(t, 1, report.Count(reconcile.STATUS_RED))
	require.Len(t, report.Changes.Added, 2)
	require.Empty(t, report.FetchErrors)

	require.Len(t, results.queries, 2)
	require.Equal(t, "2025-06-29", results.queries[0].From.Format(time.DateOnly))
	require.Equal(t, 60, results.queries[0].GameDays)
	require.Equal(t, "4410", results.queries[0].StatGroupId)

	require.Len(t, tel.Find("warning", report_sync_missing), 1)
	counts := tel.Find("count", report_sync_results)
	require.Len(t, counts, 1)
	require.Equal(t, int64(2), counts[0].Params[0])

	results.games["981"][0].GameTime = "13:00"
	report, err = syncer.Run(context.Background(), portal)
	require.NoError(t, err)
	require.Empty(t, report.Changes.Added)
	require.Len(t, report.Changes.Updated, 1)
	require.Equal(t, reconcile.STATUS_YELLOW, report.Results[0].Status)
	require.NotEmpty(t, tel.Find("warning", report_sync_changed))
}

func TestRunPartialFetchFailure(t *testing.T) {
	results := &fakeResults{
		games: map[string][]resultsapi.Game{
			"982": {resultsGame("5002", "06.07.2025", "09:00", "Kiekko-Espoo", "S-Kiekko Sininen", "Tapiola")},
		},
		fail: map[string]bool{"981": true},
	}
	syncer, tel := setup(t, results, nil)

	report, err := syncer.Run(context.Background(), fakePortal{})
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	require.Contains(t, report.FetchErrors, "981")
	require.Len(t, tel.Find("broken", report_sync_fetch), 1)
}

func TestRunEveryFetchFails(t *testing.T) {
	results := &fakeResults{fail: map[string]bool{"981": true, "982": true}}
	syncer, _ := setup(t, results, nil)

	_, err := syncer.Run(context.Background(), fakePortal{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "team 981")
}

func TestNewSyncerRequiresMatcher(t *testing.T) {
	clock := clockwork.NewFakeClock()
	require.Panics(t, func() {
		NewSyncer(Dependencies{Results: &fakeResults{}, Time: clock}, Options{}, &telemetry.Recorder{})
	})
}

func TestRunPortalFailure(t *testing.T) {
	syncer, _ := setup(t, &fakeResults{}, nil)

	_, err := syncer.Run(context.Background(), fakePortal{err: fmt.Errorf("portal down")})
	require.ErrorContains(t, err, "portal down")
}

func TestRunWithoutCalendarNotes(t *testing.T) {
	results := &fakeResults{games: map[string][]resultsapi.Game{
		"981": {resultsGame("5001", "05.07.2025", "12:15", "S-Kiekko Punainen", "Kiekko-Vantaa", "Myyrmäki 2")},
	}}
	syncer, tel := setup(t, results, fakeCalendar{err: fmt.Errorf("timeout")})

	portal := fakePortal{entries: []reconcile.InternalEntry{{
		UID:        "101",
		Date:       "2025-07-05",
		Time:       "12:15",
		TeamsLabel: "S-Kiekko Punainen - Kiekko-Vantaa",
		Location:   "Myyrmäki 2",
		Notes:      "",
	}}}
	report, err := syncer.Run(context.Background(), portal)
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	require.Len(t, tel.Find("warning", report_sync_notes), 1)
	// the game is flagged small-pitch but nothing in the portal says so
	require.Equal(t, reconcile.STATUS_YELLOW, report.Results[0].Status)
}

type fakeCron struct {
	mutex     sync.Mutex
	callbacks []func()
	stopped   bool
}

func (f *fakeCron) Cron(spec string, callback func()) error {
	if spec == "" {
		return fmt.Errorf("empty spec")
	}
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.callbacks = append(f.callbacks, callback)
	return nil
}

func (f *fakeCron) Stop() {
	f.stopped = true
}

func (f *fakeCron) fire() {
	f.mutex.Lock()
	callbacks := append([]func(){}, f.callbacks...)
	f.mutex.Unlock()
	for _, cb := range callbacks {
		cb()
	}
}

func TestWatcher(t *testing.T) {
	cron := &fakeCron{}
	tel := &telemetry.Recorder{}
	watcher := NewWatcher(cron, tel)

	var reported []string
	watcher.OnReport = func(user string, report Report) {
		reported = append(reported, user)
	}

	runs := 0
	err := watcher.Watch(context.Background(), "*/15 * * * *",
		Pass{User: "a", Run: func(ctx context.Context) (Report, error) {
			runs++
			return Report{}, nil
		}},
		Pass{User: "b", Run: func(ctx context.Context) (Report, error) {
			return Report{}, fmt.Errorf("login failed")
		}},
	)
	require.NoError(t, err)
	require.Len(t, cron.callbacks, 2)

	cron.fire()
	cron.fire()
	require.Equal(t, 2, runs)
	require.Equal(t, []string{"a", "a"}, reported)
	require.Len(t, tel.Find("broken", report_watch_pass), 2)

	require.Error(t, watcher.Watch(context.Background(), "", Pass{User: "c"}))
	watcher.Stop()
	require.True(t, cron.stopped)
}

func TestWatcherSerialisesPerUser(t *testing.T) {
	tel := &telemetry.Recorder{}
	watcher := NewWatcher(&fakeCron{}, tel)

	started := make(chan struct{})
	finish := make(chan struct{})
	done := make(chan bool)
	go func() {
		done <- watcher.RunOnce(context.Background(), Pass{User: "a", Run: func(ctx context.Context) (Report, error) {
			close(started)
			<-finish
			return Report{}, nil
		}})
	}()
	<-started

	ran := watcher.RunOnce(context.Background(), Pass{User: "a", Run: func(ctx context.Context) (Report, error) {
		return Report{}, nil
	}})
	require.False(t, ran)
	require.True(t, watcher.RunOnce(context.Background(), Pass{User: "b", Run: func(ctx context.Context) (Report, error) {
		return Report{}, nil
	}}))

	close(finish)
	require.True(t, <-done)
	require.NotEmpty(t, tel.Find("debug", report_watch_busy))
}
