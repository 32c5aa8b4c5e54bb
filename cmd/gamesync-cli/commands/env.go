package commands

import (
	"context"
	"errors"
	"gamesync-backend/internal/calendar"
	"gamesync-backend/internal/components/chrono"
	"gamesync-backend/internal/components/telemetry"
	"gamesync-backend/internal/form"
	"gamesync-backend/internal/gamestore"
	"gamesync-backend/internal/gamestore/db"
	"gamesync-backend/internal/league"
	"gamesync-backend/internal/portal"
	"gamesync-backend/internal/reconcile"
	"gamesync-backend/internal/resultsapi"
	"gamesync-backend/internal/schedule"
	"gamesync-backend/internal/session"
	"gamesync-backend/lib/configutil"
	"gamesync-backend/lib/sqliteutil"
	"gamesync-backend/lib/util/serviceutil"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

type Config struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Club     string `json:"club"`

	Session  session.Options    `json:"session"`
	Results  resultsapi.Options `json:"results"`
	Portal   portal.Options     `json:"portal"`
	League   league.Options     `json:"league"`
	Sync     schedule.Options   `json:"sync"`
	Weights  reconcile.Weights  `json:"weights"`
	Calendar struct {
		Keyword string `json:"keyword"`
	} `json:"calendar"`

	// StateDir holds the saved portal sessions and the change tracking database.
	StateDir string `json:"state_dir"`
	// RedisAddr keeps the portal sessions in redis instead of StateDir when set.
	RedisAddr string `json:"redis_addr"`
	// WatchSpec is the cron spec the watch command runs passes on.
	WatchSpec string `json:"watch_spec"`
}

func defaultConfig() Config {
	cfg := Config{
		Portal:    portal.DefaultOptions(),
		League:    league.DefaultOptions(),
		Weights:   reconcile.DefaultWeights(),
		StateDir:  ".gamesync",
		WatchSpec: "*/30 * * * *",
	}
	cfg.Calendar.Keyword = calendar.DefaultKeyword
	return cfg
}

// readConfig reads the config file, a .env file next to it may supply the
// credentials instead.
func readConfig() Config {
	err := godotenv.Load()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		serviceutil.Fatal("failed to read .env", err)
	}

	cfg, err := configutil.ReadConfigWithDefaults(*configPath, defaultConfig())
	if err != nil {
		serviceutil.Fatal("failed to read config", err)
	}
	if v := os.Getenv("GAMESYNC_USERNAME"); v != "" {
		cfg.Username = v
	}
	if v := os.Getenv("GAMESYNC_PASSWORD"); v != "" {
		cfg.Password = v
	}
	if v := os.Getenv("GAMESYNC_CLUB"); v != "" {
		cfg.Club = v
	}
	return cfg
}

func (c Config) credentials() session.Credentials {
	return session.Credentials{Username: c.Username, Password: c.Password, Club: c.Club}
}

// env is everything a command may need, built from the config.
type env struct {
	cfg      Config
	tel      telemetry.API
	time     chrono.TimeAPI
	sessions session.Store
	manager  *session.Manager
	resolver league.Resolver
	portal   portal.Portal
	results  resultsapi.Client
}

func newEnv() env {
	return newEnvWith(false)
}

// newEnvWith keeps sessions in memory as well when cached is set, for commands
// that run for longer than one call.
func newEnvWith(cached bool) env {
	cfg := readConfig()
	tel := telemetry.SlogAPI{}
	clock := chrono.NewStandardTime()

	var store session.Store
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		store = session.NewRedisStore(client, "gamesync:session:", 0)
	} else {
		files, err := session.NewFileStore(filepath.Join(cfg.StateDir, "sessions"))
		if err != nil {
			serviceutil.Fatal("failed to open session store", err)
		}
		store = files
	}

	manager := session.NewManager(cfg.Session, clock, tel)
	if cached {
		store = session.NewCachedStore(session.NewLRUStore(16, manager.TTL()), store)
	}
	scraper := form.NewScraper(manager, tel)
	resolver := league.NewResolver(scraper, cfg.League, tel)

	return env{
		cfg:      cfg,
		tel:      tel,
		time:     clock,
		sessions: store,
		manager:  manager,
		resolver: resolver,
		portal:   portal.NewPortal(manager, scraper, resolver, cfg.Portal, tel),
		results:  resultsapi.NewClient(cfg.Results, tel),
	}
}

// open connects to the portal, reusing the saved session of the user when it is
// still good.
func (e env) open(ctx context.Context) (*portal.Conn, error) {
	if e.cfg.Username == "" {
		return nil, errors.New("no username, set it in the config or GAMESYNC_USERNAME")
	}

	saved, _, err := e.sessions.Load(ctx, e.cfg.Username)
	if err != nil {
		slog.Warn("ignoring unreadable saved session", "err", err)
		saved = nil
	}
	conn, err := e.portal.Open(ctx, saved, e.cfg.credentials())
	if err != nil {
		return nil, err
	}
	e.save(ctx, conn)
	return conn, nil
}

func (e env) mustOpen(ctx context.Context) *portal.Conn {
	conn, err := e.open(ctx)
	if err != nil {
		serviceutil.Fatal("failed to log in to the portal", err)
	}
	return conn
}

func (e env) save(ctx context.Context, conn *portal.Conn) {
	err := e.sessions.Save(ctx, e.cfg.Username, conn.State())
	if err != nil {
		slog.Warn("failed to save session", "err", err)
	}
}

// history lists the games of a team sync passes have stored, from yesterday on.
func (e env) history(ctx context.Context, teamId string) ([]reconcile.ExternalGame, error) {
	database, err := sqliteutil.OpenWithSchema(filepath.Join(e.cfg.StateDir, "games.db"), db.Schema)
	if err != nil {
		return nil, err
	}
	defer database.Close()
	from := e.time.Now().AddDate(0, 0, -1).Format(time.DateOnly)
	return gamestore.NewStore(database, e.tel).Games(ctx, teamId, from)
}

// games that are no longer returned are kept this long for change reports
const historyDays = 90

func (e env) syncer() (schedule.Syncer, func()) {
	database, err := sqliteutil.OpenWithSchema(filepath.Join(e.cfg.StateDir, "games.db"), db.Schema)
	if err != nil {
		serviceutil.Fatal("failed to open games db", err)
	}
	games := gamestore.NewStore(database, e.tel)
	removed, err := games.Prune(context.Background(), e.time.Now().AddDate(0, 0, -historyDays))
	if err != nil {
		slog.Warn("failed to prune game history", "err", err)
	} else if removed > 0 {
		slog.Debug("pruned game history", "removed", removed)
	}

	syncer := schedule.NewSyncer(schedule.Dependencies{
		Results:  e.results,
		Tracker:  games,
		Calendar: calendar.NewFeed(e.cfg.Calendar.Keyword, 0, e.tel),
		Matcher:  reconcile.NewMatcher(e.time, e.cfg.Weights),
		Time:     e.time,
	}, e.cfg.Sync, e.tel)
	return syncer, func() { database.Close() }
}
