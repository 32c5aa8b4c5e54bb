package commands

import (
	"fmt"
	"gamesync-backend/internal/reconcile"
	"gamesync-backend/internal/resultsapi"
	"gamesync-backend/lib/util/serviceutil"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	levelsDistrict *string
	gamesDays      *int
	gamesStatGroup *string
	gamesHistory   *bool
)

func init() {
	levelsDistrict = levelsCmd.Flags().String("district", "0", "The district to list stat groups of.")
	gamesDays = gamesCmd.Flags().Int("days", 60, "How many game days to fetch.")
	gamesStatGroup = gamesCmd.Flags().String("stat-group", "", "The stat group the team plays in.")
	gamesHistory = gamesCmd.Flags().Bool("history", false, "List the games last seen by sync passes instead of fetching them.")
	rootCmd.AddCommand(levelsCmd)
	rootCmd.AddCommand(gamesCmd)
}

var levelsCmd = &cobra.Command{
	Use:   "levels <season> [--district <id>]",
	Short: "Lists the levels and stat groups of a season at the results service.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		e := newEnv()
		season := args[0]

		levels, err := e.results.Levels(cmd.Context(), season)
		if err != nil {
			serviceutil.Fatal("failed to fetch levels", err)
		}

		t := newTable()
		t.AppendHeader(table.Row{"Level", "Level id", "Stat group", "Stat group id"})
		for _, level := range levels {
			groups, err := e.results.StatGroups(cmd.Context(), season, level.LevelID.String(), *levelsDistrict)
			if err != nil {
				serviceutil.Fatal(fmt.Sprintf("failed to fetch stat groups of %s", level.LevelName), err)
			}
			if len(groups) == 0 {
				t.AppendRow(table.Row{level.LevelName, level.LevelID, "", ""})
			}
			for _, group := range groups {
				t.AppendRow(table.Row{level.LevelName, level.LevelID, group.StatGroupName, group.StatGroupID})
			}
		}
		t.Render()
	},
}

var gamesCmd = &cobra.Command{
	Use:   "games <season> <team id> [--stat-group <id>] [--days <n>] [--history]",
	Short: "Lists the upcoming games of a team at the results service.",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		e := newEnv()
		team := resultsapi.TeamRef{
			Season:      args[0],
			TeamId:      args[1],
			StatGroupId: *gamesStatGroup,
			Type:        reconcile.TYPE_MANAGE,
		}

		if *gamesHistory {
			games, err := e.history(cmd.Context(), team.TeamId)
			if err != nil {
				serviceutil.Fatal("failed to read game history", err)
			}
			renderGames(games, "stored by sync passes")
			return
		}

		games, err := e.results.Games(cmd.Context(), resultsapi.GamesQuery{
			Season:      team.Season,
			StatGroupId: team.StatGroupId,
			TeamId:      team.TeamId,
			GameDays:    *gamesDays,
			From:        e.time.Now().AddDate(0, 0, -1),
		})
		if err != nil {
			serviceutil.Fatal("failed to fetch games", err)
		}

		external := make([]reconcile.ExternalGame, len(games))
		for i, g := range games {
			external[i] = g.External(team)
		}
		renderGames(external, "fetched "+e.time.Now().Format(time.DateTime))
	},
}

func renderGames(games []reconcile.ExternalGame, caption string) {
	t := newTable()
	t.AppendHeader(table.Row{"Id", "Date", "Time", "Home", "Away", "Location", "Level", "Small pitch"})
	for _, g := range games {
		small := ""
		if g.SmallAreaGame {
			small = "yes"
		}
		t.AppendRow(table.Row{g.GameID, g.Date, g.Time, g.HomeTeam, g.AwayTeam, g.Location, g.LevelName, small})
	}
	t.SetCaption("%s", caption)
	t.Render()
}
