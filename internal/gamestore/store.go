// Package gamestore remembers the external games seen on earlier sync passes so
// a pass can report what the results service added or rescheduled since.
package gamestore

import (
	"context"
	"database/sql"
	"errors"
	"gamesync-backend/internal/components/telemetry"
	"gamesync-backend/internal/gamestore/db"
	"gamesync-backend/internal/reconcile"
	"time"
)

const report_store_track = "store.track"

type Change struct {
	Field string `json:"field"`
	Old   string `json:"old"`
	New   string `json:"new"`
}

type Update struct {
	Game    reconcile.ExternalGame `json:"game"`
	Changes []Change               `json:"changes"`
}

// Diff is what changed at the results service between two passes.
type Diff struct {
	Added   []reconcile.ExternalGame `json:"added"`
	Updated []Update                 `json:"updated"`
}

func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Updated) == 0
}

type Store struct {
	db  *sql.DB
	qry *db.Queries
	tel telemetry.API
}

func NewStore(database *sql.DB, tel telemetry.API) Store {
	return Store{
		db:  database,
		qry: db.New(database),
		tel: telemetry.NewScopedAPI("gamestore", tel),
	}
}

func toRow(g reconcile.ExternalGame, seen int64) db.ExternalGame {
	return db.ExternalGame{
		GameID:        g.GameID,
		TeamID:        g.TeamID,
		TeamName:      g.TeamName,
		Type:          string(g.Type),
		Date:          g.Date,
		Time:          g.Time,
		HomeTeam:      g.HomeTeam,
		AwayTeam:      g.AwayTeam,
		HomeGoals:     g.HomeGoals,
		AwayGoals:     g.AwayGoals,
		Location:      g.Location,
		LevelName:     g.LevelName,
		StatGroupName: g.StatGroupName,
		SmallAreaGame: g.SmallAreaGame,
		FirstSeen:     seen,
		LastSeen:      seen,
	}
}

func fromRow(row db.ExternalGame) reconcile.ExternalGame {
	return reconcile.ExternalGame{
		GameID:        row.GameID,
		Date:          row.Date,
		Time:          row.Time,
		HomeTeam:      row.HomeTeam,
		AwayTeam:      row.AwayTeam,
		Location:      row.Location,
		LevelName:     row.LevelName,
		StatGroupName: row.StatGroupName,
		SmallAreaGame: row.SmallAreaGame,
		TeamID:        row.TeamID,
		TeamName:      row.TeamName,
		Type:          reconcile.GameType(row.Type),
		HomeGoals:     row.HomeGoals,
		AwayGoals:     row.AwayGoals,
	}
}

func compare(old db.ExternalGame, game reconcile.ExternalGame) []Change {
	var changes []Change
	field := func(name, before, after string) {
		if before != after {
			changes = append(changes, Change{Field: name, Old: before, New: after})
		}
	}
	field("date", old.Date, game.Date)
	field("time", old.Time, game.Time)
	field("location", old.Location, game.Location)
	return changes
}

// Track stores games as seen at the given time and returns the games that were
// not known before and the known games whose date, time or location moved.
func (s Store) Track(ctx context.Context, games []reconcile.ExternalGame, seenAt time.Time) (Diff, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Diff{}, err
	}
	defer tx.Rollback()
	txqry := s.qry.WithTx(tx)

	seen := seenAt.Unix()
	var diff Diff
	for _, game := range games {
		if game.GameID == "" {
			s.tel.ReportWarning(report_store_track, "game without id", game.Date, game.HomeTeam, game.AwayTeam)
			continue
		}

		existing, err := txqry.GetGame(ctx, game.GameID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			diff.Added = append(diff.Added, game)
		case err != nil:
			return Diff{}, err
		default:
			changes := compare(existing, game)
			if len(changes) > 0 {
				diff.Updated = append(diff.Updated, Update{Game: game, Changes: changes})
			}
		}

		row := toRow(game, seen)
		err = txqry.UpsertGame(ctx, row)
		if err != nil {
			return Diff{}, err
		}
	}

	err = tx.Commit()
	if err != nil {
		return Diff{}, err
	}
	s.tel.ReportCount(report_store_track, int64(len(diff.Added)+len(diff.Updated)))
	return diff, nil
}

// Games returns the stored games of a team dated on or after from (YYYY-MM-DD).
func (s Store) Games(ctx context.Context, teamId, from string) ([]reconcile.ExternalGame, error) {
	rows, err := s.qry.ListTeamGames(ctx, teamId, from)
	if err != nil {
		return nil, err
	}
	out := make([]reconcile.ExternalGame, len(rows))
	for i, r := range rows {
		out[i] = fromRow(r)
	}
	return out, nil
}

// Prune removes games dated before the given day that no pass has seen since then.
func (s Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	return s.qry.DeleteStale(ctx, before.Unix(), before.Format(time.DateOnly))
}
