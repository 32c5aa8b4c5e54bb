package commands

import (
	"context"
	"fmt"
	"gamesync-backend/internal/portal"
	"gamesync-backend/internal/reconcile"
	"gamesync-backend/internal/schedule"
	"gamesync-backend/lib/util/serviceutil"
	"log/slog"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

var (
	compareAll    *bool
	compareCreate *bool
)

func init() {
	compareAll = compareCmd.Flags().Bool("all", false, "Also list the games that match.")
	compareCreate = compareCmd.Flags().Bool("create-missing", false, "Create the games the portal does not have.")
	rootCmd.AddCommand(compareCmd)
}

var statusColors = map[reconcile.Status]text.Colors{
	reconcile.STATUS_GREEN:  {text.FgGreen},
	reconcile.STATUS_YELLOW: {text.FgYellow},
	reconcile.STATUS_RED:    {text.FgRed},
}

func runPass(ctx context.Context, e env, syncer schedule.Syncer) (schedule.Report, error) {
	conn, err := e.open(ctx)
	if err != nil {
		return schedule.Report{}, err
	}
	defer e.save(ctx, conn)
	return syncer.Run(ctx, conn)
}

func renderReport(report schedule.Report, all bool) {
	for team, err := range report.FetchErrors {
		slog.Warn("games of team could not be fetched", "team", team, "err", err)
	}

	if !report.Changes.Empty() {
		changes := newTable()
		changes.SetTitle("Changed since the last pass")
		changes.AppendHeader(table.Row{"Game", "Date", "Teams", "Change"})
		for _, g := range report.Changes.Added {
			changes.AppendRow(table.Row{g.GameID, g.Date, g.HomeTeam + " - " + g.AwayTeam, "new"})
		}
		for _, u := range report.Changes.Updated {
			for _, c := range u.Changes {
				changes.AppendRow(table.Row{
					u.Game.GameID, u.Game.Date, u.Game.HomeTeam + " - " + u.Game.AwayTeam,
					fmt.Sprintf("%s: %s -> %s", c.Field, c.Old, c.New),
				})
			}
		}
		changes.Render()
	}

	t := newTable()
	t.AppendHeader(table.Row{"Status", "Date", "Time", "Game", "Portal", "Score", "Reason"})
	for _, res := range report.Results {
		if res.Status == reconcile.STATUS_GREEN && !all {
			continue
		}
		portalUid := ""
		if res.Match != nil {
			portalUid = res.Match.UID
		}
		reason := res.Reason
		if res.Warning != "" {
			reason = fmt.Sprintf("%s (%s)", reason, res.Warning)
		}
		t.AppendRow(table.Row{
			statusColors[res.Status].Sprint(string(res.Status)),
			res.Game.Date,
			res.Game.Time,
			res.Game.HomeTeam + " - " + res.Game.AwayTeam,
			portalUid,
			res.Score,
			reason,
		})
	}
	t.SetCaption(
		"%d ok, %d to check, %d missing",
		report.Count(reconcile.STATUS_GREEN),
		report.Count(reconcile.STATUS_YELLOW),
		report.Count(reconcile.STATUS_RED),
	)
	t.Render()
}

var compareCmd = &cobra.Command{
	Use:   "compare [--all] [--create-missing]",
	Short: "Compares the configured teams' games at the results service with the portal.",
	Run: func(cmd *cobra.Command, args []string) {
		e := newEnv()
		syncer, closeDb := e.syncer()
		defer closeDb()

		report, err := runPass(cmd.Context(), e, syncer)
		if err != nil {
			serviceutil.Fatal("sync pass failed", err)
		}
		renderReport(report, *compareAll)

		if *compareCreate {
			var inputs []portal.GameInput
			for _, res := range report.Results {
				if res.Status == reconcile.STATUS_RED && res.Match == nil {
					inputs = append(inputs, portal.GameInputFromExternal(res.Game))
				}
			}
			if len(inputs) == 0 {
				return
			}
			conn := e.mustOpen(cmd.Context())
			defer e.save(cmd.Context(), conn)
			renderOutcomes(conn.CreateGames(cmd.Context(), inputs))
		}
	},
}
