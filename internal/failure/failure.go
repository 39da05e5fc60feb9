// Package failure defines the error taxonomy shared by the echopedal components
package failure

import (
	"errors"
	"fmt"
)

// Kind classifies an error by how it is propagated
type Kind int

const (
	Unknown Kind = iota
	InvalidFileType
	UploadFailed
	ProcessingFailed
	NoFileSelected
	PresetLoadFailed
	CleanupFailed
	DownloadFailed
	NoResult
)

// Error makes a Kind usable as an errors.Is target
func (k Kind) Error() string {
	return k.String()
}

func (k Kind) String() string {
	switch k {
	case InvalidFileType:
		return "InvalidFileType"
	case UploadFailed:
		return "UploadFailed"
	case ProcessingFailed:
		return "ProcessingFailed"
	case NoFileSelected:
		return "NoFileSelected"
	case PresetLoadFailed:
		return "PresetLoadFailed"
	case CleanupFailed:
		return "CleanupFailed"
	case DownloadFailed:
		return "DownloadFailed"
	case NoResult:
		return "NoResult"
	default:
		return "Unknown"
	}
}

// Fatal reports whether errors of this kind reach the user.
// Preset and cleanup failures are logged only.
func (k Kind) Fatal() bool {
	return k != PresetLoadFailed && k != CleanupFailed
}

// Fallback is the message shown when the service supplied none
func (k Kind) Fallback() string {
	switch k {
	case InvalidFileType:
		return "Invalid file type. Please upload MP3, WAV, OGG, or M4A files."
	case UploadFailed:
		return "Upload failed"
	case ProcessingFailed:
		return "Processing failed"
	case NoFileSelected:
		return "Please select a file first"
	case PresetLoadFailed:
		return "Failed to load presets"
	case CleanupFailed:
		return "Cleanup failed"
	case DownloadFailed:
		return "Download failed"
	case NoResult:
		return "No processed audio available"
	default:
		return "Unexpected error"
	}
}

// Error is a classified failure carrying the user-facing message and its cause
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// New builds an Error. An empty message falls back to the kind's generic text.
func New(kind Kind, message string, cause error) *Error {
	if message == "" {
		message = kind.Fallback()
	}
	return &Error{Kind: kind, Message: message, Err: cause}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches a bare Kind target, so errors.Is(err, failure.UploadFailed) works
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// KindOf returns the kind of the first classified error in err's chain
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	var k Kind
	if errors.As(err, &k) {
		return k
	}
	return Unknown
}

// UserMessage returns the text to show in the error banner
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Message
	}
	return err.Error()
}
