package controller

import (
	"context"
	"time"

	"github.com/linuxmatters/echopedal/internal/failure"
	"github.com/linuxmatters/echopedal/internal/pots"
	"github.com/linuxmatters/echopedal/internal/report"
	"github.com/linuxmatters/echopedal/internal/service"
	"github.com/linuxmatters/echopedal/internal/session"
	"github.com/sirupsen/logrus"
)

// Job is one issued process request. Controls are captured when the job is
// issued; later pot movements do not affect it. Job methods perform network
// I/O and may run on any goroutine.
type Job struct {
	Generation uint64
	Controls   pots.Controls
	Preset     string

	svc      Service
	sessions *session.Manager
	reporter *report.Reporter
	started  time.Time
	uploaded bool
}

// UploadOutcome is the result of the session step
type UploadOutcome struct {
	Generation uint64
	SessionID  string
	Uploaded   bool // false when an existing session was reused
	Err        error
}

// Outcome is the result of the process step
type Outcome struct {
	Generation uint64
	SessionID  string
	Controls   pots.Controls
	Preset     string
	Uploaded   bool
	Elapsed    time.Duration
	Err        error
}

// Upload makes sure a session exists, uploading the selected file if needed
func (j *Job) Upload(ctx context.Context) UploadOutcome {
	j.started = time.Now()
	out := UploadOutcome{Generation: j.Generation}

	out.Err = j.reporter.WithProgress(func() error {
		id, uploaded, err := j.sessions.Ensure(ctx)
		if err != nil {
			return err
		}
		out.SessionID = id
		out.Uploaded = uploaded
		return nil
	})
	j.uploaded = out.Uploaded
	return out
}

// Process sends the captured controls for sessionID
func (j *Job) Process(ctx context.Context, sessionID string) Outcome {
	if j.started.IsZero() {
		j.started = time.Now()
	}
	out := Outcome{
		Generation: j.Generation,
		SessionID:  sessionID,
		Controls:   j.Controls,
		Preset:     j.Preset,
		Uploaded:   j.uploaded,
	}

	params := j.Controls.Effect()
	if err := params.Validate(); err != nil {
		out.Err = failure.New(failure.ProcessingFailed, "", err)
		return out
	}

	out.Err = j.reporter.WithProgress(func() error {
		if err := j.svc.Process(ctx, sessionID, pots.NewRequest(params)); err != nil {
			logrus.WithFields(logrus.Fields{
				"function":   "Process",
				"generation": j.Generation,
				"session_id": sessionID,
				"error":      err.Error(),
			}).Error("Process request failed")
			return failure.New(failure.ProcessingFailed, service.ErrorMessage(err), err)
		}
		return nil
	})
	out.Elapsed = time.Since(j.started)
	return out
}
