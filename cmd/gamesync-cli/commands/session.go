package commands

import (
	"gamesync-backend/lib/util/serviceutil"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	sessionCmd.AddCommand(sessionStatusCmd)
	sessionCmd.AddCommand(sessionLogoutCmd)
	rootCmd.AddCommand(sessionCmd)
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspects or drops the saved portal session.",
}

var sessionStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Shows whether the saved session can still be used.",
	Run: func(cmd *cobra.Command, args []string) {
		e := newEnv()
		state, found, err := e.sessions.Load(cmd.Context(), e.cfg.Username)
		if err != nil {
			serviceutil.Fatal("failed to read saved session", err)
		}

		t := newTable()
		t.AppendRow(table.Row{"User", e.cfg.Username})
		t.AppendRow(table.Row{"Phase", e.manager.Phase(state).String()})
		if found {
			t.AppendRow(table.Row{"Portal", state.BaseURL})
			t.AppendRow(table.Row{"Logged in", state.LastAuthenticated.Format(time.DateTime)})
			t.AppendRow(table.Row{"Expires", state.LastAuthenticated.Add(e.manager.TTL()).Format(time.DateTime)})
		}
		t.Render()
	},
}

var sessionLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forgets the saved session, the next command logs in again.",
	Run: func(cmd *cobra.Command, args []string) {
		e := newEnv()
		err := e.sessions.Delete(cmd.Context(), e.cfg.Username)
		if err != nil {
			serviceutil.Fatal("failed to delete saved session", err)
		}
	},
}
