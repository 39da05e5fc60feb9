// Package ui provides the Bubbletea terminal user interface for echopedal
package ui

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/linuxmatters/echopedal/internal/controller"
	"github.com/linuxmatters/echopedal/internal/failure"
	"github.com/linuxmatters/echopedal/internal/pots"
	"github.com/sirupsen/logrus"
)

// presetRow is the focus index of the preset selector, after the four pots
const presetRow = len(pots.Kinds)

// Options configures the UI model
type Options struct {
	Controller  *controller.Controller
	Context     context.Context // bounds every request started from the UI
	Server      string          // shown in the header
	DownloadDir string
}

// Model is the Bubbletea model for the pedal UI. Controller state is mutated
// only from Update; network work runs in commands whose results come back
// as messages.
type Model struct {
	ctl         *controller.Controller
	ctx         context.Context
	server      string
	downloadDir string

	focus    int
	entering bool
	input    textinput.Model
	spinner  spinner.Model
	spinning bool
	status   string

	// Terminal dimensions
	Width  int
	Height int
}

// NewModel creates the UI. Without a selected file it opens the file prompt.
func NewModel(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}

	ti := textinput.New()
	ti.Placeholder = "path/to/audio.wav"
	ti.Prompt = "File: "
	ti.CharLimit = 4096
	ti.Width = 50

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = busyStyle

	m := Model{
		ctl:         opts.Controller,
		ctx:         ctx,
		server:      opts.Server,
		downloadDir: opts.DownloadDir,
		input:       ti,
		spinner:     sp,
	}
	if m.ctl.File() == nil {
		m.openPrompt()
	}
	return m
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	if m.entering {
		return textinput.Blink
	}
	return nil
}

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height

	case tea.KeyMsg:
		if m.entering {
			return m.updatePrompt(msg)
		}
		return m.handleKey(msg)

	case UploadedMsg:
		if !m.ctl.Uploaded(msg.Outcome) {
			return m, nil
		}
		return m, processCmd(m.ctx, msg.Job, msg.Outcome.SessionID)

	case ProcessedMsg:
		if m.ctl.Finish(msg.Outcome) {
			return m.trigger()
		}

	case DownloadedMsg:
		switch {
		case msg.Err == nil:
			m.status = "Saved " + msg.Path
		case failure.KindOf(msg.Err) == failure.Unknown:
			// Local file errors; transfer failures were already reported
			m.ctl.Reporter().ReportError(msg.Err.Error())
		}

	case CleanupDoneMsg:
		logrus.WithFields(logrus.Fields{
			"function": "Update",
			"ok":       msg.Err == nil,
		}).Debug("Background cleanup finished")

	case RefreshMsg:
		// Redraw only; the view reads the reporter directly

	case spinner.TickMsg:
		if !m.busy() {
			m.spinning = false
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, keys.Up):
		if m.focus > 0 {
			m.focus--
		}

	case key.Matches(msg, keys.Down):
		if m.focus < presetRow {
			m.focus++
		}

	case key.Matches(msg, keys.Left):
		m.turn(-1)
	case key.Matches(msg, keys.Right):
		m.turn(1)
	case key.Matches(msg, keys.BigLeft):
		m.turn(-10)
	case key.Matches(msg, keys.BigRight):
		m.turn(10)

	case key.Matches(msg, keys.Process):
		return m.trigger()

	case key.Matches(msg, keys.NewFile):
		cleanup := m.ctl.StartNewFile()
		m.status = ""
		m.openPrompt()
		return m, tea.Batch(cleanupCmd(m.ctx, cleanup), textinput.Blink)

	case key.Matches(msg, keys.Download):
		return m.download()

	case key.Matches(msg, keys.Dismiss):
		m.ctl.Reporter().Dismiss()
	}
	return m, nil
}

// turn moves the focused pot, or cycles presets on the preset row
func (m *Model) turn(delta int) {
	if m.focus < presetRow {
		m.ctl.Nudge(pots.Kinds[m.focus], delta)
		return
	}

	names := m.ctl.Catalog().Keys()
	if len(names) == 0 {
		return
	}
	idx := -1
	for i, k := range names {
		if k == m.ctl.Preset() {
			idx = i
		}
	}
	step := 1
	if delta < 0 {
		step = -1
	}
	idx = ((idx+step)%len(names) + len(names)) % len(names)
	if err := m.ctl.ApplyPreset(names[idx]); err != nil {
		logrus.WithError(err).Warn("Preset not applied")
	}
}

// trigger starts a process request, or queues one if a request is in flight
func (m Model) trigger() (tea.Model, tea.Cmd) {
	job, err := m.ctl.Begin()
	if err != nil || job == nil {
		return m, nil
	}
	m.status = ""
	spin := m.startSpinner()
	return m, tea.Batch(uploadCmd(m.ctx, job), spin)
}

func (m Model) download() (tea.Model, tea.Cmd) {
	transfer, err := m.ctl.PrepareDownload()
	if err != nil || m.ctl.File() == nil {
		return m, nil
	}
	path := filepath.Join(m.downloadDir, controller.OutputName(m.ctl.File().Name))
	spin := m.startSpinner()
	return m, tea.Batch(downloadCmd(m.ctx, transfer, path), spin)
}

func (m *Model) openPrompt() {
	m.entering = true
	m.input.SetValue("")
	m.input.Focus()
}

func (m Model) updatePrompt(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.Type == tea.KeyCtrlC:
		return m, tea.Quit

	case key.Matches(msg, keys.Cancel):
		m.entering = false
		m.input.Blur()
		return m, nil

	case key.Matches(msg, keys.Confirm):
		path := m.input.Value()
		if path == "" {
			return m, nil
		}
		if err := m.ctl.SelectFile(m.ctx, path); err != nil {
			// Rejected files keep the prompt open; the banner explains why
			return m, nil
		}
		m.entering = false
		m.input.Blur()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) busy() bool {
	return m.ctl.State().Busy() || m.ctl.Reporter().Busy()
}

func (m *Model) startSpinner() tea.Cmd {
	if m.spinning {
		return nil
	}
	m.spinning = true
	return m.spinner.Tick
}

func uploadCmd(ctx context.Context, job *controller.Job) tea.Cmd {
	return func() tea.Msg {
		return UploadedMsg{Job: job, Outcome: job.Upload(ctx)}
	}
}

func processCmd(ctx context.Context, job *controller.Job, sessionID string) tea.Cmd {
	return func() tea.Msg {
		return ProcessedMsg{Outcome: job.Process(ctx, sessionID)}
	}
}

func cleanupCmd(ctx context.Context, cleanup func(context.Context) error) tea.Cmd {
	return func() tea.Msg {
		return CleanupDoneMsg{Err: cleanup(ctx)}
	}
}

func downloadCmd(ctx context.Context, transfer func(context.Context, io.Writer) error, path string) tea.Cmd {
	return func() tea.Msg {
		f, err := os.Create(path)
		if err != nil {
			err = fmt.Errorf("failed to create %s: %w", path, err)
			logrus.WithError(err).Error("Download not saved")
			return DownloadedMsg{Path: path, Err: err}
		}
		err = transfer(ctx, f)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(path)
		}
		return DownloadedMsg{Path: path, Err: err}
	}
}
