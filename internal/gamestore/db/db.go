package db

import (
	"context"
	"database/sql"
	_ "embed"
)

//go:embed schema.sql
var Schema string

type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type ExternalGame struct {
	GameID        string
	TeamID        string
	TeamName      string
	Type          string
	Date          string
	Time          string
	HomeTeam      string
	AwayTeam      string
	HomeGoals     string
	AwayGoals     string
	Location      string
	LevelName     string
	StatGroupName string
	SmallAreaGame bool
	FirstSeen     int64
	LastSeen      int64
}

const columns = `game_id, team_id, team_name, type, date, time, home_team, away_team,
home_goals, away_goals, location, level_name, stat_group_name, small_area_game,
first_seen, last_seen`

func scanGame(row interface{ Scan(...any) error }) (ExternalGame, error) {
	var g ExternalGame
	err := row.Scan(
		&g.GameID, &g.TeamID, &g.TeamName, &g.Type, &g.Date, &g.Time,
		&g.HomeTeam, &g.AwayTeam, &g.HomeGoals, &g.AwayGoals, &g.Location,
		&g.LevelName, &g.StatGroupName, &g.SmallAreaGame, &g.FirstSeen, &g.LastSeen,
	)
	return g, err
}

const getGame = `select ` + columns + ` from external_game where game_id = ?`

func (q *Queries) GetGame(ctx context.Context, gameID string) (ExternalGame, error) {
	return scanGame(q.db.QueryRowContext(ctx, getGame, gameID))
}

const upsertGame = `insert into external_game (` + columns + `)
values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
on conflict (game_id) do update set
    team_id = excluded.team_id,
    team_name = excluded.team_name,
    type = excluded.type,
    date = excluded.date,
    time = excluded.time,
    home_team = excluded.home_team,
    away_team = excluded.away_team,
    home_goals = excluded.home_goals,
    away_goals = excluded.away_goals,
    location = excluded.location,
    level_name = excluded.level_name,
    stat_group_name = excluded.stat_group_name,
    small_area_game = excluded.small_area_game,
    last_seen = excluded.last_seen`

// UpsertGame inserts the game, or updates everything but first_seen when it exists.
func (q *Queries) UpsertGame(ctx context.Context, g ExternalGame) error {
	_, err := q.db.ExecContext(ctx, upsertGame,
		g.GameID, g.TeamID, g.TeamName, g.Type, g.Date, g.Time,
		g.HomeTeam, g.AwayTeam, g.HomeGoals, g.AwayGoals, g.Location,
		g.LevelName, g.StatGroupName, g.SmallAreaGame, g.FirstSeen, g.LastSeen,
	)
	return err
}

const listTeamGames = `select ` + columns + ` from external_game
where team_id = ? and date >= ?
order by date, time, game_id`

func (q *Queries) ListTeamGames(ctx context.Context, teamID, fromDate string) ([]ExternalGame, error) {
	rows, err := q.db.QueryContext(ctx, listTeamGames, teamID, fromDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ExternalGame
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

const deleteSeenBefore = `delete from external_game where last_seen < ? and date < ?`

// DeleteStale removes games not seen since seenBefore that were played before date.
func (q *Queries) DeleteStale(ctx context.Context, seenBefore int64, date string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteSeenBefore, seenBefore, date)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
