package ui

import (
	"github.com/linuxmatters/echopedal/internal/controller"
)

// UploadedMsg carries the session step of an in-flight job
type UploadedMsg struct {
	Job     *controller.Job
	Outcome controller.UploadOutcome
}

// ProcessedMsg carries the outcome of the process step
type ProcessedMsg struct {
	Outcome controller.Outcome
}

// CleanupDoneMsg reports the end of a background session cleanup
type CleanupDoneMsg struct {
	Err error
}

// DownloadedMsg reports a saved download
type DownloadedMsg struct {
	Path string
	Err  error
}

// RefreshMsg asks for a redraw after the reporter changed (error shown,
// dismissed or expired)
type RefreshMsg struct{}
