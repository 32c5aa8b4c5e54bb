package commands

import (
	"encoding/json"
	"fmt"
	"gamesync-backend/internal/form"
	"gamesync-backend/internal/portal"
	"gamesync-backend/lib/util/serviceutil"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var createFile *string

func init() {
	createFile = portalCreateCmd.Flags().String("file", "", "A JSON file with a list of games to create.")
	portalCmd.AddCommand(portalListCmd)
	portalCmd.AddCommand(portalDetailsCmd)
	portalCmd.AddCommand(portalCreateCmd)
	rootCmd.AddCommand(portalCmd)
}

var portalCmd = &cobra.Command{
	Use:   "portal",
	Short: "Reads and writes games in the club admin portal.",
}

var portalListCmd = &cobra.Command{
	Use:   "list",
	Short: "Lists the games entered in the portal.",
	Run: func(cmd *cobra.Command, args []string) {
		e := newEnv()
		conn := e.mustOpen(cmd.Context())
		defer e.save(cmd.Context(), conn)

		entries, err := conn.ListGames(cmd.Context())
		if err != nil {
			serviceutil.Fatal("failed to list games", err)
		}

		t := newTable()
		t.AppendHeader(table.Row{"Uid", "Date", "Time", "Teams", "Location", "League"})
		for _, entry := range entries {
			t.AppendRow(table.Row{entry.UID, entry.Date, entry.Time, entry.TeamsLabel, entry.Location, entry.League})
		}
		t.Render()
	},
}

func selectedMark(option, selected form.Option) string {
	if option.Value == selected.Value {
		return "*"
	}
	return ""
}

var portalDetailsCmd = &cobra.Command{
	Use:   "details <uid>",
	Short: "Shows a game as its edit form has it.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		e := newEnv()
		conn := e.mustOpen(cmd.Context())
		defer e.save(cmd.Context(), conn)

		details, err := conn.GameDetails(cmd.Context(), args[0])
		if err != nil {
			serviceutil.Fatal("failed to read game", err)
		}

		t := newTable()
		t.SetTitle("%s (%s)", details.UID, details.SiteName)
		t.AppendRows([]table.Row{
			{"League", details.League.Text},
			{"Event", details.Event.Text},
			{"Home", details.HomeTeam},
			{"Guest", details.GuestTeam},
			{"Away", details.Away},
			{"Location", details.Location},
			{"Date", details.Date},
			{"Start", details.StartTime},
			{"Duration", details.Duration},
			{"Public info", details.PublicInfo},
		})
		t.Render()

		leagues := newTable()
		leagues.AppendHeader(table.Row{"", "League", "Id"})
		for _, option := range details.LeagueOptions {
			leagues.AppendRow(table.Row{selectedMark(option, details.League), option.Text, option.Value})
		}
		leagues.Render()
	},
}

var portalCreateCmd = &cobra.Command{
	Use:   "create --file <games.json>",
	Short: "Creates the games listed in a file, the ones that fail are reported and skipped.",
	Run: func(cmd *cobra.Command, args []string) {
		if *createFile == "" {
			serviceutil.Fatal("missing input", fmt.Errorf("--file is required"))
		}
		contents, err := os.ReadFile(*createFile)
		if err != nil {
			serviceutil.Fatal("failed to read input", err)
		}
		var inputs []portal.GameInput
		err = json.Unmarshal(contents, &inputs)
		if err != nil {
			serviceutil.Fatal("failed to parse input", err)
		}

		e := newEnv()
		conn := e.mustOpen(cmd.Context())
		defer e.save(cmd.Context(), conn)

		outcomes := conn.CreateGames(cmd.Context(), inputs)
		renderOutcomes(outcomes)
	},
}

func renderOutcomes(outcomes []portal.Outcome) {
	t := newTable()
	t.AppendHeader(table.Row{"Date", "Time", "Teams", "Result"})
	failed := 0
	for _, o := range outcomes {
		result := "created"
		if o.Err != nil {
			result = o.Err.Error()
			failed++
		}
		teams := strings.Join([]string{o.Input.HomeTeam, o.Input.GuestTeam}, " - ")
		t.AppendRow(table.Row{o.Input.Date, o.Input.StartTime, teams, result})
	}
	t.SetCaption("%d of %d created", len(outcomes)-failed, len(outcomes))
	t.Render()
}
