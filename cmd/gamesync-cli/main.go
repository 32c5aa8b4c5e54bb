package main

import (
	"context"
	"gamesync-backend/cmd/gamesync-cli/commands"
	"gamesync-backend/internal/components/telemetry"
	"log/slog"
)

func main() {
	ctx := context.Background()
	telemetry.InitSlog(commands.Verbose())
	providers, err := telemetry.SetupFromEnv(ctx, "gamesync-cli")
	if err != nil {
		slog.Debug("telemetry not configured", "err", err)
	}
	defer providers.Shutdown(ctx)
	commands.ExecuteContext(ctx)
}
