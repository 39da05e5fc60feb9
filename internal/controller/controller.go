// Package controller sequences upload and process requests against one session.
//
// The controller is driven from a single goroutine: the UI event loop or the
// headless runner. Network calls run in Job methods, which may execute on
// other goroutines; their outcomes are applied back through Uploaded and
// Finish on the driving goroutine. Only one request is in flight at a time;
// triggers arriving meanwhile are coalesced into one follow-up run with the
// controls current when the in-flight request settles.
package controller

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/linuxmatters/echopedal/internal/audio"
	"github.com/linuxmatters/echopedal/internal/failure"
	"github.com/linuxmatters/echopedal/internal/pots"
	"github.com/linuxmatters/echopedal/internal/presets"
	"github.com/linuxmatters/echopedal/internal/report"
	"github.com/linuxmatters/echopedal/internal/service"
	"github.com/linuxmatters/echopedal/internal/session"
	"github.com/sirupsen/logrus"
)

// Service is everything the controller needs from the processing service
type Service interface {
	session.Service
	Process(ctx context.Context, sessionID string, params pots.Request) error
	Download(ctx context.Context, sessionID string, w io.Writer) (int64, error)
	PlayURL(sessionID string, role service.Role, bust int64) string
	DownloadURL(sessionID string) string
}

// DirtyCause records what made the controls diverge from the last result
type DirtyCause int

const (
	Clean DirtyCause = iota
	ControlsChanged
	PresetApplied
)

// Result addresses the audio produced by a successful process request
type Result struct {
	SessionID    string
	Generation   uint64
	Controls     pots.Controls
	OriginalURL  string
	ProcessedURL string // carries a cache-busting query, new for every result
	DownloadURL  string
	At           time.Time
}

// Run is one successful process request, kept for the session report
type Run struct {
	Generation uint64
	Controls   pots.Controls
	Preset     string
	Uploaded   bool
	Elapsed    time.Duration
	At         time.Time
}

// Options configures a Controller
type Options struct {
	Service  Service
	Sessions *session.Manager  // built from Service when nil
	Catalog  *presets.Catalog  // may be nil or empty
	Reporter *report.Reporter  // built with defaults when nil
	Initial  pots.Controls     // starting pot positions
	Now      func() time.Time  // clock for cache-busting; time.Now when nil
}

// Controller owns the controls, the session reference and the last result
type Controller struct {
	svc      Service
	sessions *session.Manager
	catalog  *presets.Catalog
	reporter *report.Reporter
	now      func() time.Time

	controls pots.Controls
	preset   string
	dirty    DirtyCause
	state    State

	issued       uint64 // generation of the newest request
	applied      uint64 // generation of the displayed result
	discardBelow uint64 // outcomes at or below this belong to a released file
	inFlight     bool
	pending      bool

	result  *Result
	lastErr error
	history []Run
}

// New creates a controller in the NoFile state
func New(opts Options) *Controller {
	c := &Controller{
		svc:      opts.Service,
		sessions: opts.Sessions,
		catalog:  opts.Catalog,
		reporter: opts.Reporter,
		now:      opts.Now,
		controls: opts.Initial,
		state:    NoFile,
	}
	if c.sessions == nil {
		c.sessions = session.NewManager(opts.Service)
	}
	if c.reporter == nil {
		c.reporter = report.New(report.DefaultDismissAfter)
	}
	if c.catalog == nil {
		c.catalog = presets.New()
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// State returns the current phase
func (c *Controller) State() State { return c.state }

// Controls returns the current pot positions
func (c *Controller) Controls() pots.Controls { return c.controls }

// Reporter returns the error and progress reporter
func (c *Controller) Reporter() *report.Reporter { return c.reporter }

// Catalog returns the preset catalog
func (c *Controller) Catalog() *presets.Catalog { return c.catalog }

// Preset returns the key of the applied preset, empty for custom settings
func (c *Controller) Preset() string { return c.preset }

// Dirty reports whether the controls differ from the last processed set
func (c *Controller) Dirty() bool { return c.dirty != Clean }

// DirtyCause returns what last marked the controls dirty
func (c *Controller) DirtyCause() DirtyCause { return c.dirty }

// File returns the selected file, nil when none
func (c *Controller) File() *audio.Info { return c.sessions.Selected() }

// SessionID returns the session identifier, empty before the first upload
func (c *Controller) SessionID() string { return c.sessions.ID() }

// Generation returns the generation of the displayed result
func (c *Controller) Generation() uint64 { return c.applied }

// LastError returns the failure that put the controller into Error
func (c *Controller) LastError() error { return c.lastErr }

// Pending reports whether a coalesced follow-up run is queued
func (c *Controller) Pending() bool { return c.pending }

// History returns the successful runs of the current file
func (c *Controller) History() []Run { return append([]Run(nil), c.history...) }

// Result returns the displayed result, if any
func (c *Controller) Result() (Result, bool) {
	if c.result == nil {
		return Result{}, false
	}
	return *c.result, true
}

// OriginalURL addresses the uploaded source, empty before upload
func (c *Controller) OriginalURL() string {
	id := c.sessions.ID()
	if id == "" {
		return ""
	}
	return c.svc.PlayURL(id, service.RoleOriginal, 0)
}

func (c *Controller) transition(to State) {
	from := c.state
	if !CanTransition(from, to) {
		logrus.WithFields(logrus.Fields{
			"function": "transition",
			"from":     from.String(),
			"to":       to.String(),
		}).Warn("Unexpected state transition")
	}
	c.state = to
	logrus.WithFields(logrus.Fields{
		"function": "transition",
		"from":     from.String(),
		"to":       to.String(),
	}).Debug("State changed")
}

// resetFileState drops everything tied to the previous file and abandons
// any request still in flight for it
func (c *Controller) resetFileState() {
	c.result = nil
	c.history = nil
	c.lastErr = nil
	c.dirty = Clean
	c.discardBelow = c.issued
	c.inFlight = false
	c.pending = false
}

// SelectFile validates path and makes it the source file. A rejected file is
// reported and leaves the controller unchanged. An open session for a
// previous file is cleaned up first.
func (c *Controller) SelectFile(ctx context.Context, path string) error {
	info, err := c.sessions.Select(ctx, path)
	if err != nil {
		c.reporter.Report(err)
		return err
	}
	c.resetFileState()
	c.transition(FileSelected)

	logrus.WithFields(logrus.Fields{
		"function": "SelectFile",
		"file":     info.Name,
	}).Debug("Controller armed")
	return nil
}

// StartNewFile returns the controller to NoFile immediately and hands back
// the server-side cleanup of the released session for the caller to run.
func (c *Controller) StartNewFile() func(context.Context) error {
	cleanup := c.sessions.Release()
	c.resetFileState()
	c.transition(NoFile)
	return cleanup
}

// Close is for shutdown. It waits for any upload still in flight and for
// cleanups started earlier, then cleans up the remaining session.
func (c *Controller) Close(ctx context.Context) error {
	err := c.sessions.Close(ctx)
	if c.state != NoFile {
		c.resetFileState()
		c.transition(NoFile)
	}
	return err
}

func (c *Controller) markDirty(cause DirtyCause) {
	if c.sessions.ID() != "" {
		c.dirty = cause
	}
}

// SetControl moves one pot. It marks the session dirty but never triggers
// processing, and switches the preset selector back to custom.
func (c *Controller) SetControl(kind pots.Kind, v pots.ControlValue) {
	c.controls = c.controls.With(kind, v)
	c.preset = ""
	c.markDirty(ControlsChanged)
}

// Nudge moves one pot by delta, clamped to range
func (c *Controller) Nudge(kind pots.Kind, delta int) {
	c.SetControl(kind, pots.Clamp(int(c.controls.Get(kind))+delta))
}

// ApplyPreset replaces all four pots with the preset's values at once
func (c *Controller) ApplyPreset(key string) error {
	p, ok := c.catalog.Get(key)
	if !ok {
		return fmt.Errorf("unknown preset %q", key)
	}
	c.controls = p.Controls
	c.preset = key
	c.markDirty(PresetApplied)

	logrus.WithFields(logrus.Fields{
		"function": "ApplyPreset",
		"preset":   key,
	}).Debug("Preset applied")
	return nil
}

// ActionLabel is the text of the context-sensitive action button
func (c *Controller) ActionLabel() string {
	switch {
	case c.state == Uploading:
		return "Uploading..."
	case c.state == Processing:
		return "Processing..."
	case c.dirty == PresetApplied:
		return "Reprocess with Preset"
	case c.dirty == ControlsChanged:
		return "Reprocess with New Settings"
	case c.state == Error:
		return "Retry Processing"
	case c.result != nil:
		return "Processed! Adjust knobs to reprocess"
	default:
		return "Process Audio"
	}
}

// Begin starts a process trigger. It returns the job to run, or nil when a
// request is already in flight (the trigger is then coalesced). Without a
// selected file or session it reports NoFileSelected and performs no I/O.
func (c *Controller) Begin() (*Job, error) {
	if c.sessions.Selected() == nil && c.sessions.ID() == "" {
		err := failure.New(failure.NoFileSelected, "", nil)
		c.reporter.Report(err)
		return nil, err
	}

	if c.inFlight {
		c.pending = true
		logrus.WithFields(logrus.Fields{
			"function":   "Begin",
			"generation": c.issued,
		}).Debug("Request in flight, trigger coalesced")
		return nil, nil
	}

	c.issued++
	c.inFlight = true
	c.lastErr = nil

	job := &Job{
		Generation: c.issued,
		Controls:   c.controls,
		Preset:     c.preset,
		svc:        c.svc,
		sessions:   c.sessions,
		reporter:   c.reporter,
	}

	if c.sessions.ID() == "" {
		c.transition(Uploading)
	} else {
		c.transition(Processing)
	}

	logrus.WithFields(logrus.Fields{
		"function":   "Begin",
		"generation": job.Generation,
		"params":     job.Controls.Effect(),
	}).Info("Process triggered")

	return job, nil
}

func (c *Controller) stale(generation uint64) bool {
	return generation <= c.discardBelow || generation <= c.applied
}

// Uploaded applies the session step of a job. It returns true when the
// caller should continue with Job.Process.
func (c *Controller) Uploaded(out UploadOutcome) bool {
	if c.stale(out.Generation) {
		logrus.WithFields(logrus.Fields{
			"function":   "Uploaded",
			"generation": out.Generation,
		}).Debug("Dropping stale upload outcome")
		return false
	}

	if out.Err != nil {
		c.fail(out.Err)
		return false
	}

	if c.state == Uploading {
		c.transition(Ready)
	}
	if c.state == Ready {
		c.transition(Processing)
	}
	return true
}

// Finish applies the outcome of Job.Process. It returns true when a
// coalesced trigger is waiting and the caller should Begin again.
func (c *Controller) Finish(out Outcome) bool {
	if c.stale(out.Generation) {
		logrus.WithFields(logrus.Fields{
			"function":   "Finish",
			"generation": out.Generation,
			"applied":    c.applied,
		}).Info("Dropping stale process outcome")
		return false
	}

	if out.Err != nil {
		c.fail(out.Err)
		return false
	}

	c.inFlight = false
	c.applied = out.Generation
	at := c.now()
	c.result = &Result{
		SessionID:    out.SessionID,
		Generation:   out.Generation,
		Controls:     out.Controls,
		OriginalURL:  c.svc.PlayURL(out.SessionID, service.RoleOriginal, 0),
		ProcessedURL: c.svc.PlayURL(out.SessionID, service.RoleProcessed, at.UnixMilli()),
		DownloadURL:  c.svc.DownloadURL(out.SessionID),
		At:           at,
	}
	if c.controls == out.Controls {
		c.dirty = Clean
	} else if c.dirty == Clean {
		c.dirty = ControlsChanged
	}
	c.history = append(c.history, Run{
		Generation: out.Generation,
		Controls:   out.Controls,
		Preset:     out.Preset,
		Uploaded:   out.Uploaded,
		Elapsed:    out.Elapsed,
		At:         at,
	})
	c.transition(Processed)

	logrus.WithFields(logrus.Fields{
		"function":   "Finish",
		"generation": out.Generation,
		"session_id": out.SessionID,
		"elapsed":    out.Elapsed.String(),
	}).Info("Processing complete")

	if c.pending {
		c.pending = false
		return true
	}
	return false
}

// fail moves out of Uploading/Processing into Error, keeping any prior result
func (c *Controller) fail(err error) {
	c.inFlight = false
	c.pending = false
	c.lastErr = err
	c.transition(Error)
	c.reporter.Report(err)
}

// Process runs one trigger to completion on the calling goroutine,
// including any coalesced follow-up
func (c *Controller) Process(ctx context.Context) error {
	for {
		job, err := c.Begin()
		if err != nil || job == nil {
			return err
		}
		up := job.Upload(ctx)
		if !c.Uploaded(up) {
			return up.Err
		}
		out := job.Process(ctx, up.SessionID)
		again := c.Finish(out)
		if out.Err != nil || !again {
			return out.Err
		}
	}
}

// PrepareDownload checks for a result on the driving goroutine and returns
// the transfer, which may run on any goroutine
func (c *Controller) PrepareDownload() (func(ctx context.Context, w io.Writer) error, error) {
	if c.result == nil {
		err := failure.New(failure.NoResult, "", nil)
		c.reporter.Report(err)
		return nil, err
	}
	id := c.result.SessionID
	svc, reporter := c.svc, c.reporter

	return func(ctx context.Context, w io.Writer) error {
		return reporter.WithProgress(func() error {
			n, err := svc.Download(ctx, id, w)
			if err != nil {
				ferr := failure.New(failure.DownloadFailed, service.ErrorMessage(err), err)
				reporter.Report(ferr)
				return ferr
			}
			logrus.WithFields(logrus.Fields{
				"function":   "Download",
				"session_id": id,
				"bytes":      n,
			}).Info("Downloaded processed audio")
			return nil
		})
	}, nil
}

// Download writes the latest processed artifact to w
func (c *Controller) Download(ctx context.Context, w io.Writer) error {
	transfer, err := c.PrepareDownload()
	if err != nil {
		return err
	}
	return transfer(ctx, w)
}

// OutputName is the file name a download of source is saved under:
// take1.wav → take1-echo.mp3
func OutputName(source string) string {
	base := filepath.Base(source)
	return strings.TrimSuffix(base, filepath.Ext(base)) + "-echo.mp3"
}
