// Package report surfaces transient errors and the busy indicator
package report

import (
	"sync"
	"time"

	"github.com/linuxmatters/echopedal/internal/failure"
	"github.com/sirupsen/logrus"
)

// DefaultDismissAfter is how long an error stays visible without user action
const DefaultDismissAfter = 5 * time.Second

// Timer is the handle of a scheduled dismissal
type Timer interface {
	Stop() bool
}

// Scheduler runs fn once after d
type Scheduler func(d time.Duration, fn func()) Timer

func realScheduler(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// Notice is one displayed error
type Notice struct {
	ID      uint64
	Message string
}

// Reporter is safe for concurrent use
type Reporter struct {
	mu           sync.Mutex
	dismissAfter time.Duration
	schedule     Scheduler
	onChange     func()

	seq     uint64
	current *Notice
	timer   Timer
	busy    int
}

// New creates a reporter that dismisses errors after dismissAfter.
// A non-positive value uses DefaultDismissAfter.
func New(dismissAfter time.Duration) *Reporter {
	if dismissAfter <= 0 {
		dismissAfter = DefaultDismissAfter
	}
	return &Reporter{dismissAfter: dismissAfter, schedule: realScheduler}
}

// SetScheduler replaces the timer source, for tests and event loops
func (r *Reporter) SetScheduler(s Scheduler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schedule = s
}

// OnChange registers fn to run after any visible change (error shown or
// hidden, busy toggled). fn runs without the reporter lock held.
func (r *Reporter) OnChange(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = fn
}

// ReportError shows message and schedules its dismissal. A newer error
// replaces the visible one and restarts the interval.
func (r *Reporter) ReportError(message string) Notice {
	r.mu.Lock()
	if r.timer != nil {
		r.timer.Stop()
	}
	r.seq++
	n := Notice{ID: r.seq, Message: message}
	r.current = &n
	id := n.ID
	r.timer = r.schedule(r.dismissAfter, func() { r.expire(id) })
	notify := r.onChange
	r.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "ReportError",
		"notice":   n.ID,
	}).Info(message)

	if notify != nil {
		notify()
	}
	return n
}

// Report routes err by kind: fatal kinds are displayed, the rest only logged.
// It returns false when nothing was displayed.
func (r *Reporter) Report(err error) bool {
	if err == nil {
		return false
	}
	kind := failure.KindOf(err)
	if kind != failure.Unknown && !kind.Fatal() {
		logrus.WithFields(logrus.Fields{
			"function": "Report",
			"kind":     kind.String(),
			"error":    err.Error(),
		}).Warn("Non-fatal failure")
		return false
	}
	r.ReportError(failure.UserMessage(err))
	return true
}

// Dismiss hides the visible error; it is the explicit user action
func (r *Reporter) Dismiss() {
	r.mu.Lock()
	if r.current == nil {
		r.mu.Unlock()
		return
	}
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.current = nil
	notify := r.onChange
	r.mu.Unlock()

	if notify != nil {
		notify()
	}
}

// expire hides notice id unless a newer one has replaced it
func (r *Reporter) expire(id uint64) {
	r.mu.Lock()
	if r.current == nil || r.current.ID != id {
		r.mu.Unlock()
		return
	}
	r.current = nil
	r.timer = nil
	notify := r.onChange
	r.mu.Unlock()

	if notify != nil {
		notify()
	}
}

// Current returns the visible error, if any
func (r *Reporter) Current() (Notice, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return Notice{}, false
	}
	return *r.current, true
}

// WithProgress brackets op with the busy indicator. The indicator is
// released when op returns, fails or panics.
func (r *Reporter) WithProgress(op func() error) error {
	r.setBusy(1)
	defer r.setBusy(-1)
	return op()
}

// Busy reports whether any bracketed operation is still running
func (r *Reporter) Busy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.busy > 0
}

func (r *Reporter) setBusy(delta int) {
	r.mu.Lock()
	before := r.busy > 0
	r.busy += delta
	if r.busy < 0 {
		r.busy = 0
	}
	changed := before != (r.busy > 0)
	notify := r.onChange
	r.mu.Unlock()

	if changed && notify != nil {
		notify()
	}
}
