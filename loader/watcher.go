package loader

import (
	"context"
	"time"

	"github.com/status-im/credential-host/scheduler"
)

// Watcher rescans directories on an interval and registers descriptor files
// that appeared or changed since the last pass. Already registered names are
// not replaced; a changed file for a registered name is logged as a duplicate.
type Watcher struct {
	loader    *Loader
	dirs      []string
	scheduler *scheduler.Scheduler
}

func NewWatcher(l *Loader, dirs []string, interval time.Duration) *Watcher {
	w := &Watcher{
		loader: l,
		dirs:   dirs,
	}
	w.scheduler = scheduler.New(interval, w.scan)
	return w
}

func (w *Watcher) scan(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	res, err := w.loader.LoadDirs(w.dirs)
	if err != nil {
		w.loader.logger.Warn("Descriptor rescan failed", "error", err)
		return
	}
	if len(res.Registered) > 0 {
		w.loader.logger.Info("Registered new credential types", "names", res.Registered)
	}
}

func (w *Watcher) Start() {
	w.scheduler.Start()
}

func (w *Watcher) Stop() {
	w.scheduler.Stop()
}
