package chrono

import (
	"fmt"
	"gamesync-backend/internal/components/telemetry"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStartOfDay(t *testing.T) {
	at := time.Date(2025, 3, 30, 23, 59, 10, 5, Helsinki())
	require.Equal(t, time.Date(2025, 3, 30, 0, 0, 0, 0, Helsinki()), StartOfDay(at))
	require.Equal(t, Helsinki(), NewStandardTime().Now().Location())
}

func TestCronLogger(t *testing.T) {
	rec := &telemetry.Recorder{}
	logger := cronLogger{tel: rec}

	logger.Info("schedule", "entry", 1, "next", "10:00")
	logger.Error(fmt.Errorf("boom"), "run", "entry", 1)

	debug := rec.Find("debug", "cron: schedule")
	require.Len(t, debug, 1)
	require.Equal(t, []any{"entry: 1", "next: 10:00"}, debug[0].Params)
	require.Len(t, rec.Find("broken", "cron"), 1)
}

func TestStandardCronRejectsInvalidSpec(t *testing.T) {
	cron := NewStandardCron(&telemetry.Recorder{})
	defer cron.Stop()
	require.Error(t, cron.Cron("not a spec", func() {}))
	require.NoError(t, cron.Cron("*/5 * * * *", func() {}))
}
