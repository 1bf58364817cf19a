package memory

import (
	"Minerva/pkg/logger"
	"context"
	"fmt"
	"time"
)

// Sweeper periodically removes expired and tombstoned records in the
// background so that lazy expiry at query time never becomes the only
// line of defense against unbounded growth.
type Sweeper struct {
	svc      *Service
	interval time.Duration
	grace    time.Duration
	log      *logger.Logger

	// onSweep, when set, runs after each sweep cycle. The gateway hooks
	// its stale-circuit reset here so one ticker drives both.
	onSweep func()

	stop chan struct{}
	done chan struct{}
}

// NewSweeper creates a background sweeper. interval defaults to one
// minute, grace to five minutes.
func NewSweeper(svc *Service, interval, grace time.Duration, log *logger.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if grace <= 0 {
		grace = 5 * time.Minute
	}
	return &Sweeper{
		svc:      svc,
		interval: interval,
		grace:    grace,
		log:      log,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// OnSweep registers a hook invoked after every sweep cycle. Must be
// called before Start.
func (w *Sweeper) OnSweep(fn func()) { w.onSweep = fn }

// Start launches the sweep loop in its own goroutine.
func (w *Sweeper) Start() {
	go w.run()
}

// Stop halts the loop and waits for the in-flight cycle to finish.
func (w *Sweeper) Stop() {
	close(w.stop)
	<-w.done
}

func (w *Sweeper) run() {
	defer close(w.done)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			w.sweepOnce()
		}
	}
}

func (w *Sweeper) sweepOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), w.interval)
	defer cancel()

	removed, err := w.svc.Sweep(ctx, w.grace)
	if err != nil {
		if w.log != nil {
			w.log.Warn(fmt.Sprintf("memory sweep failed: %v", err))
		}
	} else if removed > 0 && w.log != nil {
		w.log.Info(fmt.Sprintf("memory sweep removed %d records", removed))
	}

	if w.onSweep != nil {
		w.onSweep()
	}
}
