package ui

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/linuxmatters/echopedal/internal/audio/audiotest"
	"github.com/linuxmatters/echopedal/internal/controller"
	"github.com/linuxmatters/echopedal/internal/pots"
	"github.com/linuxmatters/echopedal/internal/presets"
	"github.com/linuxmatters/echopedal/internal/report"
	"github.com/linuxmatters/echopedal/internal/service"
	"github.com/linuxmatters/echopedal/internal/service/servicetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	srv *servicetest.Server
	ctl *controller.Controller
	dir string
}

func newFixture(t *testing.T, withFile bool) (*fixture, Model) {
	t.Helper()
	srv := servicetest.New()
	t.Cleanup(srv.Close)

	client, err := service.New(srv.URL, 5*time.Second)
	require.NoError(t, err)
	catalog, err := presets.Load(context.Background(), client)
	require.NoError(t, err)

	f := &fixture{srv: srv, dir: t.TempDir()}
	f.ctl = controller.New(controller.Options{
		Service:  client,
		Catalog:  catalog,
		Reporter: report.New(time.Hour),
		Initial:  pots.Controls{Delay: 30, Feedback: 50},
	})
	if withFile {
		require.NoError(t, f.ctl.SelectFile(context.Background(), audiotest.WriteWAV(t, f.dir, "take.wav", 0.1, 8000)))
	}

	m := NewModel(Options{Controller: f.ctl, Server: srv.URL, DownloadDir: f.dir})
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return f, next.(Model)
}

// drive runs cmd and every command it leads to, feeding messages back
// through Update. Spinner ticks are dropped so the loop terminates.
func drive(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	queue := []tea.Cmd{cmd}
	for steps := 0; len(queue) > 0; steps++ {
		require.Less(t, steps, 100, "command loop did not settle")
		c := queue[0]
		queue = queue[1:]
		if c == nil {
			continue
		}
		switch msg := c().(type) {
		case tea.BatchMsg:
			queue = append(queue, msg...)
		case spinner.TickMsg:
		default:
			next, more := m.Update(msg)
			m = next.(Model)
			queue = append(queue, more)
		}
	}
	return m
}

func press(t *testing.T, m Model, k tea.KeyMsg) Model {
	t.Helper()
	next, cmd := m.Update(k)
	return drive(t, next.(Model), cmd)
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

var (
	enter = tea.KeyMsg{Type: tea.KeyEnter}
	right = tea.KeyMsg{Type: tea.KeyRight}
	left  = tea.KeyMsg{Type: tea.KeyLeft}
	down  = tea.KeyMsg{Type: tea.KeyDown}
	esc   = tea.KeyMsg{Type: tea.KeyEsc}
)

func banner(m Model) string {
	n, _ := m.ctl.Reporter().Current()
	return n.Message
}

func TestViewBeforeWindowSize(t *testing.T) {
	f, _ := newFixture(t, true)
	m := NewModel(Options{Controller: f.ctl})
	assert.Equal(t, "Initializing...", m.View())
}

func TestProcessFromKeyboard(t *testing.T) {
	f, m := newFixture(t, true)
	assert.Contains(t, m.View(), "Process Audio")
	assert.Contains(t, m.View(), "take.wav")

	m = press(t, m, enter)

	assert.Equal(t, controller.Processed, f.ctl.State())
	assert.Equal(t, []string{"presets", "upload", "process"}, f.srv.Endpoints())
	view := m.View()
	assert.Contains(t, view, "Processed! Adjust knobs to reprocess")
	assert.Contains(t, view, "/play/session-1/processed?t=")
	assert.Contains(t, view, "/download/session-1")
}

func TestTurningKnobsMarksDirtyWithoutProcessing(t *testing.T) {
	f, m := newFixture(t, true)
	m = press(t, m, enter)

	m = press(t, m, right)
	m = press(t, m, runes("L"))
	assert.Equal(t, pots.ControlValue(41), f.ctl.Controls().Delay)
	assert.Contains(t, m.View(), "410ms")
	assert.Contains(t, m.View(), "Reprocess with New Settings")
	assert.Equal(t, 1, f.srv.Count("process"))

	m = press(t, m, down)
	m = press(t, m, left)
	assert.Equal(t, pots.ControlValue(0), f.ctl.Controls().Mix)
	m = press(t, m, right)
	assert.Equal(t, pots.ControlValue(1), f.ctl.Controls().Mix)
	assert.Contains(t, m.View(), "0.01")
}

func TestPresetRowCyclesPresets(t *testing.T) {
	f, m := newFixture(t, true)
	for range pots.Kinds {
		m = press(t, m, down)
	}

	m = press(t, m, right)
	assert.Equal(t, "ambient", f.ctl.Preset())
	assert.Equal(t, pots.Controls{Delay: 50, LFO: 20, Feedback: 70}, f.ctl.Controls())
	assert.Contains(t, m.View(), "Ambient Echo")

	m = press(t, m, left)
	assert.Equal(t, "tape", f.ctl.Preset())

	m = press(t, m, enter)
	m = press(t, m, right)
	assert.Equal(t, "ambient", f.ctl.Preset())
	assert.Contains(t, m.View(), "Reprocess with Preset")
}

func TestTriggersWhileBusyCoalesce(t *testing.T) {
	f, m := newFixture(t, true)

	next, first := m.Update(enter)
	m = next.(Model)
	assert.Contains(t, m.View(), "Uploading...")

	next, second := m.Update(enter)
	m = next.(Model)
	assert.Nil(t, second)
	assert.True(t, f.ctl.Pending())
	assert.Contains(t, m.View(), "another run queued")

	m = drive(t, m, first)
	assert.Equal(t, 1, f.srv.Count("upload"))
	assert.Equal(t, 2, f.srv.Count("process"))
	assert.False(t, f.ctl.Pending())
	assert.Equal(t, controller.Processed, f.ctl.State())
}

func TestNewFileCleansUpAndPrompts(t *testing.T) {
	f, m := newFixture(t, true)
	m = press(t, m, enter)

	m = press(t, m, runes("n"))
	assert.Equal(t, controller.NoFile, f.ctl.State())
	assert.Equal(t, 1, f.srv.Count("cleanup"))
	assert.Contains(t, m.View(), "File: ")
	assert.NotContains(t, m.View(), "/download/session-1")

	path := audiotest.WriteWAV(t, f.dir, "second.wav", 0.1, 8000)
	m = press(t, m, runes(path))
	m = press(t, m, enter)
	assert.Equal(t, controller.FileSelected, f.ctl.State())
	assert.Contains(t, m.View(), "second.wav")

	press(t, m, enter)
	assert.Equal(t, []string{"presets", "upload", "process", "cleanup", "upload", "process"}, f.srv.Endpoints())
}

func TestPromptRejectsTextFile(t *testing.T) {
	f, m := newFixture(t, false)
	assert.Contains(t, m.View(), "File: ")

	path := audiotest.WriteFile(t, f.dir, "notes.txt", []byte("hello"))
	m = press(t, m, runes(path))
	m = press(t, m, enter)

	assert.Equal(t, controller.NoFile, f.ctl.State())
	assert.Equal(t, "Invalid file type. Please upload MP3, WAV, OGG, or M4A files.", banner(m))
	assert.Contains(t, m.View(), "Invalid file type")
	assert.Equal(t, []string{"presets"}, f.srv.Endpoints())

	m = press(t, m, esc)
	m = press(t, m, runes("x"))
	assert.Equal(t, "", banner(m))
	assert.NotContains(t, m.View(), "Invalid file type")
}

func TestProcessWithoutFileShowsBanner(t *testing.T) {
	f, m := newFixture(t, false)
	m = press(t, m, esc)
	m = press(t, m, enter)

	assert.Equal(t, "Please select a file first", banner(m))
	assert.Equal(t, []string{"presets"}, f.srv.Endpoints())
}

func TestDownloadSavesResult(t *testing.T) {
	f, m := newFixture(t, true)

	m = press(t, m, runes("d"))
	assert.Equal(t, "No processed audio available", banner(m))

	m = press(t, m, enter)
	m = press(t, m, runes("d"))

	path := filepath.Join(f.dir, "take-echo.mp3")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ID3processed", string(data))
	assert.Contains(t, m.View(), "Saved "+path)
}

func TestDownloadToMissingDirectoryReports(t *testing.T) {
	f, m := newFixture(t, true)
	m.downloadDir = filepath.Join(f.dir, "missing")

	m = press(t, m, enter)
	m = press(t, m, runes("d"))
	assert.Contains(t, banner(m), "failed to create")
}

func TestRenderKnobGauge(t *testing.T) {
	assert.Contains(t, renderKnob(pots.Delay, 0, false), "●────────────────────")
	assert.Contains(t, renderKnob(pots.Delay, 100, false), "━━━━━━━━━━━━━━━━━━━━●")
	assert.Contains(t, renderKnob(pots.Feedback, 50, true), "50%")
}
