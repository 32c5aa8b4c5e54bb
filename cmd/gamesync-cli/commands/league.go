package commands

import (
	"gamesync-backend/lib/util/serviceutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(leagueCmd)
}

var leagueCmd = &cobra.Command{
	Use:   "league <level name>",
	Short: "Finds the portal league for a level name, creating it when the portal has none.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		e := newEnv()
		conn := e.mustOpen(cmd.Context())
		defer e.save(cmd.Context(), conn)

		found, err := e.resolver.Resolve(cmd.Context(), conn.State(), args[0])
		if err != nil {
			serviceutil.Fatal("failed to resolve league", err)
		}

		t := newTable()
		t.AppendHeader(table.Row{"Label", "League", "Id"})
		t.AppendRow(table.Row{args[0], found.Name, found.Id})
		t.Render()
	},
}
