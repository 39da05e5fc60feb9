// Package session owns the server-side session of the selected source file.
//
// A file is uploaded at most once; every later process request reuses the
// session identifier the service returned. At most one identifier is held at a
// time and selecting another file releases the previous session first.
// Sessions are only ever released on request, never collected implicitly.
package session

import (
	"context"
	"errors"
	"io"
	"os"
	"slices"
	"sync"

	"github.com/linuxmatters/echopedal/internal/audio"
	"github.com/linuxmatters/echopedal/internal/failure"
	"github.com/linuxmatters/echopedal/internal/service"
	"github.com/sirupsen/logrus"
)

// Service is the part of the processing service the manager talks to
type Service interface {
	Upload(ctx context.Context, filename string, body io.Reader) (string, error)
	Cleanup(ctx context.Context, sessionID string) error
}

// AllowedExtensions lists the accepted file extensions
var AllowedExtensions = []string{"mp3", "wav", "ogg", "m4a"}

// AllowedTypes lists the sniffed content types recognised as audio
var AllowedTypes = []string{
	"audio/mpeg", "audio/mp3",
	"audio/wav", "audio/wave", "audio/x-wav",
	"audio/ogg", "application/ogg",
	"audio/m4a", "audio/x-m4a", "audio/mp4",
}

// Validate probes path and accepts it only when its extension is on the
// allow-list, since the service decides by extension alone. Content that is
// not sniffed as audio is still accepted but logged.
func Validate(path string) (*audio.Info, error) {
	info, err := audio.Probe(path)
	if err != nil {
		return nil, failure.New(failure.InvalidFileType, "", err)
	}
	if !slices.Contains(AllowedExtensions, info.Ext) {
		return nil, failure.New(failure.InvalidFileType, "", nil)
	}
	if !slices.Contains(AllowedTypes, info.MIME) {
		logrus.WithFields(logrus.Fields{
			"function": "Validate",
			"file":     info.Name,
			"mime":     info.MIME,
		}).Debug("Content not recognised as audio")
	}
	return info, nil
}

// ErrAbandoned is returned by Ensure when the selection was released while
// its upload was in flight; the orphaned session is cleaned up.
var ErrAbandoned = errors.New("session abandoned during upload")

type upload struct {
	done     chan struct{}
	selected *audio.Info
	id       string
	err      error
}

// release is the server-side cleanup owed for one released session.
// It runs at most once; concurrent callers wait for the first run.
type release struct {
	once sync.Once
	id   string
	err  error
}

// Manager holds the selected file and the session created from it.
// No lock is held across network calls.
type Manager struct {
	mu       sync.Mutex
	svc      Service
	selected *audio.Info
	id       string
	pending  *upload
	owed     map[*release]struct{}
	cleaning sync.WaitGroup
}

// NewManager creates a manager with no file selected
func NewManager(svc Service) *Manager {
	return &Manager{svc: svc, owed: make(map[*release]struct{})}
}

// Select validates path and makes it the current file. An invalid file is
// rejected without touching the current selection or session. A valid file
// replaces the previous one; an open session is cleaned up before Select returns.
func (m *Manager) Select(ctx context.Context, path string) (*audio.Info, error) {
	info, err := Validate(path)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Select",
			"file":     path,
		}).Warn("Rejected file")
		return nil, err
	}

	cleanup := m.Release()
	_ = cleanup(ctx)

	m.mu.Lock()
	m.selected = info
	m.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Select",
		"file":     info.Name,
		"size":     info.Size,
		"mime":     info.MIME,
	}).Info("File selected")

	return info, nil
}

// Selected returns the current file, nil when none is selected
func (m *Manager) Selected() *audio.Info {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selected
}

// ID returns the session identifier, empty when no session exists
func (m *Manager) ID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.id
}

// Ensure returns the session identifier, uploading the selected file first
// when no session exists yet. uploaded reports whether this call uploaded.
// A concurrent call for the same selection waits for the in-flight upload
// instead of starting another. Pending cleanups finish before any upload.
func (m *Manager) Ensure(ctx context.Context) (id string, uploaded bool, err error) {
	m.mu.Lock()
	if m.id != "" {
		id = m.id
		m.mu.Unlock()
		return id, false, nil
	}
	if m.selected == nil {
		m.mu.Unlock()
		return "", false, failure.New(failure.NoFileSelected, "", nil)
	}
	if p := m.pending; p != nil && p.selected == m.selected {
		m.mu.Unlock()
		select {
		case <-p.done:
			return p.id, false, p.err
		case <-ctx.Done():
			return "", false, failure.New(failure.UploadFailed, "", ctx.Err())
		}
	}
	p := &upload{done: make(chan struct{}), selected: m.selected}
	m.pending = p
	m.mu.Unlock()

	m.cleaning.Wait()
	id, err = m.upload(ctx, p.selected)

	m.mu.Lock()
	if m.pending == p {
		m.pending = nil
	}
	var orphan *release
	if err == nil {
		if m.selected == p.selected {
			m.id = id
		} else {
			orphan = m.owe(id)
			id, err = "", ErrAbandoned
		}
	}
	p.id, p.err = id, err
	close(p.done)
	m.mu.Unlock()

	if orphan != nil {
		_ = m.settle(ctx, orphan)
		return "", false, err
	}
	if err != nil {
		return "", false, err
	}

	logrus.WithFields(logrus.Fields{
		"function":   "Ensure",
		"file":       p.selected.Name,
		"session_id": id,
	}).Info("Session created")

	return id, true, nil
}

func (m *Manager) upload(ctx context.Context, info *audio.Info) (string, error) {
	f, err := os.Open(info.Path)
	if err != nil {
		return "", failure.New(failure.UploadFailed, "", err)
	}
	defer f.Close()

	id, err := m.svc.Upload(ctx, info.Name, f)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Ensure",
			"file":     info.Name,
			"error":    err.Error(),
		}).Error("Upload failed")
		return "", failure.New(failure.UploadFailed, service.ErrorMessage(err), err)
	}
	return id, nil
}

// Release clears the selection and session locally and returns the
// server-side cleanup for the released session. Later uploads wait for the
// cleanup, and Close runs it if the caller never does. It is a no-op when no
// session was held.
func (m *Manager) Release() func(context.Context) error {
	m.mu.Lock()
	id := m.id
	m.id = ""
	m.selected = nil
	var r *release
	if id != "" {
		r = m.owe(id)
	}
	m.mu.Unlock()

	if r == nil {
		return func(context.Context) error { return nil }
	}
	return func(ctx context.Context) error { return m.settle(ctx, r) }
}

// owe records a cleanup still to run; m.mu must be held
func (m *Manager) owe(id string) *release {
	r := &release{id: id}
	m.owed[r] = struct{}{}
	m.cleaning.Add(1)
	return r
}

func (m *Manager) settle(ctx context.Context, r *release) error {
	r.once.Do(func() {
		r.err = m.cleanup(ctx, r.id)
		m.mu.Lock()
		delete(m.owed, r)
		m.mu.Unlock()
		m.cleaning.Done()
	})
	return r.err
}

// settleOwed runs every outstanding cleanup and returns the first error
func (m *Manager) settleOwed(ctx context.Context) error {
	m.mu.Lock()
	owed := make([]*release, 0, len(m.owed))
	for r := range m.owed {
		owed = append(owed, r)
	}
	m.mu.Unlock()

	var first error
	for _, r := range owed {
		if err := m.settle(ctx, r); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Close shuts the manager down. It settles cleanups nobody ran, waits for
// an in-flight upload so the session it creates is not leaked, then releases
// and cleans up whatever session remains.
func (m *Manager) Close(ctx context.Context) error {
	first := m.settleOwed(ctx)

	m.mu.Lock()
	p := m.pending
	m.mu.Unlock()
	if p != nil {
		select {
		case <-p.done:
		case <-ctx.Done():
			return failure.New(failure.CleanupFailed, "", ctx.Err())
		}
	}

	m.Release()
	if err := m.settleOwed(ctx); err != nil && first == nil {
		first = err
	}
	return first
}

// Invalidate releases the current session and requests its cleanup.
// Cleanup is best effort: a failure is logged and returned classified as
// CleanupFailed, but local state is cleared regardless.
func (m *Manager) Invalidate(ctx context.Context) error {
	return m.Release()(ctx)
}

func (m *Manager) cleanup(ctx context.Context, id string) error {
	if err := m.svc.Cleanup(ctx, id); err != nil {
		logrus.WithFields(logrus.Fields{
			"function":   "Invalidate",
			"session_id": id,
			"error":      err.Error(),
		}).Warn("Cleanup failed")
		return failure.New(failure.CleanupFailed, "", err)
	}

	logrus.WithFields(logrus.Fields{
		"function":   "Invalidate",
		"session_id": id,
	}).Info("Session cleaned up")
	return nil
}
