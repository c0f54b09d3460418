package daemon

import (
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/mcrlens/lensctl/pkg/types"
)

type NotifyFunc func(data any)

// TaskFunc represents a runnable task.
type TaskFunc func() error

// PositionWatch runs a task on a cron schedule. Runs never overlap: the next
// run is computed after the current one returns.
type PositionWatch struct {
	OnError NotifyFunc // called on task error
	Task    TaskFunc   // task callback

	parser cron.Parser

	mu       sync.Mutex
	expr     string
	schedule cron.Schedule
	nextRun  time.Time
	running  bool
	runs     int

	controlCh chan struct{}
	stopCh    chan struct{}
}

func NewPositionWatch(task TaskFunc, onError NotifyFunc) *PositionWatch {
	if task == nil {
		panic("task function cannot be nil")
	}

	return &PositionWatch{
		OnError:   onError,
		Task:      task,
		parser:    cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		controlCh: make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
	}
}

// Schedule sets the cron expression. An empty expression disables the watch
// without stopping it.
func (w *PositionWatch) Schedule(cronExpr string) error {
	var sh cron.Schedule
	if cronExpr != "" {
		var err error
		sh, err = w.parser.Parse(cronExpr)
		if err != nil {
			return err
		}
	}

	w.mu.Lock()
	w.expr = cronExpr
	w.schedule = sh
	w.nextRun = time.Time{}
	if sh != nil {
		w.nextRun = sh.Next(time.Now())
	}
	w.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"schedule": cronExpr,
	}).Debug("position watch scheduled")

	w.recalculate()
	return nil
}

func (w *PositionWatch) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}
	w.running = true
	go w.run()
}

func (w *PositionWatch) Stop() {
	select {
	case <-w.stopCh: // already closed
	default:
		close(w.stopCh)
	}
}

func (w *PositionWatch) Status() types.WatchStatus {
	w.mu.Lock()
	defer w.mu.Unlock()

	return types.WatchStatus{
		Schedule: w.expr,
		NextRun:  w.nextRun,
		Running:  w.running,
		Runs:     w.runs,
	}
}

func (w *PositionWatch) run() {
	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		logrus.Debug("position watch stopped")
	}()

	logrus.Debug("position watch started")

	for {
		_, nextRun := w.snapshot()
		var timer *time.Timer
		if nextRun.IsZero() {
			timer = time.NewTimer(time.Hour * 10000)
		} else {
			wait := time.Until(nextRun)
			if wait < 0 {
				wait = 0
			}
			timer = time.NewTimer(wait)
		}

		select {
		case <-timer.C:
			if nextRun.IsZero() {
				continue
			}
			logrus.WithField("at", nextRun.Format(time.DateTime)).Trace("running position check")
			if err := w.Task(); err != nil {
				w.sendError(err)
			}
			w.advanceNextRun()
		case <-w.controlCh:
			timer.Stop()
		case <-w.stopCh:
			timer.Stop()
			return
		}
	}
}

func (w *PositionWatch) snapshot() (cron.Schedule, time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.schedule, w.nextRun
}

func (w *PositionWatch) advanceNextRun() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.runs++
	if w.schedule == nil {
		w.nextRun = time.Time{}
		return
	}
	w.nextRun = w.schedule.Next(time.Now())
}

func (w *PositionWatch) sendError(err error) {
	if w.OnError == nil {
		return
	}

	go w.OnError(err)
}

func (w *PositionWatch) recalculate() {
	select {
	case w.controlCh <- struct{}{}:
	default:
	}
}
