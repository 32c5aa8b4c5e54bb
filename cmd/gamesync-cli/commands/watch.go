package commands

import (
	"context"
	"gamesync-backend/internal/components/chrono"
	"gamesync-backend/internal/schedule"
	"gamesync-backend/lib/util/serviceutil"
	"log/slog"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(watchCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Runs a compare pass on the configured cron schedule until interrupted.",
	Run: func(cmd *cobra.Command, args []string) {
		e := newEnvWith(true)
		syncer, closeDb := e.syncer()
		defer closeDb()

		ctx := serviceutil.SignalContext()
		watcher := schedule.NewWatcher(chrono.NewStandardCron(e.tel), e.tel)
		watcher.OnReport = func(user string, report schedule.Report) {
			renderReport(report, false)
		}

		pass := schedule.Pass{
			User: e.cfg.Username,
			Run: func(ctx context.Context) (schedule.Report, error) {
				return runPass(ctx, e, syncer)
			},
		}
		err := watcher.Watch(ctx, e.cfg.WatchSpec, pass)
		if err != nil {
			serviceutil.Fatal("invalid watch spec", err)
		}
		slog.Info("watching", "spec", e.cfg.WatchSpec, "user", e.cfg.Username)
		watcher.RunOnce(ctx, pass)

		<-ctx.Done()
		watcher.Stop()
	},
}
