package schedule

import (
	"context"
	"gamesync-backend/internal/components/assert"
	"gamesync-backend/internal/components/chrono"
	"gamesync-backend/internal/components/telemetry"
	"sync"
)

const (
	report_watch_pass = "watch.pass"
	report_watch_busy = "watch.busy"
)

// Pass is one sync pass for one user, the watcher never runs two passes of the
// same user at once.
type Pass struct {
	User string
	Run  func(ctx context.Context) (Report, error)
}

type Watcher struct {
	cron chrono.CronAPI
	tel  telemetry.API

	mutex   sync.Mutex
	running map[string]bool
	// OnReport is called after every successful pass.
	OnReport func(user string, report Report)
}

func NewWatcher(cron chrono.CronAPI, tel telemetry.API) *Watcher {
	assert.NotNil(cron)
	assert.NotNil(tel)
	return &Watcher{
		cron:    cron,
		tel:     telemetry.NewScopedAPI("schedule", tel),
		running: make(map[string]bool),
	}
}

func (w *Watcher) acquire(user string) bool {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	if w.running[user] {
		return false
	}
	w.running[user] = true
	return true
}

func (w *Watcher) release(user string) {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	delete(w.running, user)
}

// RunOnce runs the pass unless another pass of the same user is still going, it
// reports whether the pass ran.
func (w *Watcher) RunOnce(ctx context.Context, pass Pass) bool {
	if !w.acquire(pass.User) {
		w.tel.ReportDebug(report_watch_busy, pass.User)
		return false
	}
	defer w.release(pass.User)

	report, err := pass.Run(ctx)
	if err != nil {
		w.tel.ReportBroken(report_watch_pass, err, pass.User)
		return true
	}
	if w.OnReport != nil {
		w.OnReport(pass.User, report)
	}
	return true
}

// Watch schedules the passes on the cron spec.
func (w *Watcher) Watch(ctx context.Context, spec string, passes ...Pass) error {
	for _, pass := range passes {
		err := w.cron.Cron(spec, func() {
			w.RunOnce(ctx, pass)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (w *Watcher) Stop() {
	w.cron.Stop()
}
