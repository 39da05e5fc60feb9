package controller

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/linuxmatters/echopedal/internal/audio/audiotest"
	"github.com/linuxmatters/echopedal/internal/failure"
	"github.com/linuxmatters/echopedal/internal/pots"
	"github.com/linuxmatters/echopedal/internal/presets"
	"github.com/linuxmatters/echopedal/internal/report"
	"github.com/linuxmatters/echopedal/internal/service"
	"github.com/linuxmatters/echopedal/internal/service/servicetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var defaultControls = pots.Controls{Delay: 30, Mix: 0, LFO: 0, Feedback: 50}

type harness struct {
	srv    *servicetest.Server
	client *service.Client
	ctl    *Controller
	dir    string
	clock  time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	srv := servicetest.New()
	t.Cleanup(srv.Close)

	client, err := service.New(srv.URL, 5*time.Second)
	require.NoError(t, err)

	catalog, err := presets.Load(context.Background(), client)
	require.NoError(t, err)

	h := &harness{
		srv:    srv,
		client: client,
		dir:    t.TempDir(),
		clock:  time.UnixMilli(1700000000000),
	}
	h.ctl = New(Options{
		Service:  client,
		Catalog:  catalog,
		Reporter: report.New(time.Hour),
		Initial:  defaultControls,
		Now: func() time.Time {
			h.clock = h.clock.Add(time.Second)
			return h.clock
		},
	})
	return h
}

// selectWAV selects a fresh WAV file, dropping the presets fetch from the call log
func (h *harness) selectWAV(t *testing.T, name string) {
	t.Helper()
	require.NoError(t, h.ctl.SelectFile(context.Background(), audiotest.WriteWAV(t, h.dir, name, 0.1, 8000)))
}

// work returns the recorded calls excluding the initial presets fetch
func (h *harness) work() []string {
	var out []string
	for _, e := range h.srv.Endpoints() {
		if e != "presets" {
			out = append(out, e)
		}
	}
	return out
}

func bannerMessage(t *testing.T, c *Controller) string {
	t.Helper()
	n, ok := c.Reporter().Current()
	if !ok {
		return ""
	}
	return n.Message
}

func TestProcessUploadsThenProcesses(t *testing.T) {
	h := newHarness(t)
	h.selectWAV(t, "take.wav")
	assert.Equal(t, FileSelected, h.ctl.State())
	assert.Equal(t, "Process Audio", h.ctl.ActionLabel())

	require.NoError(t, h.ctl.Process(context.Background()))
	assert.Equal(t, Processed, h.ctl.State())
	assert.Equal(t, []string{"upload", "process"}, h.work())

	calls := h.srv.Calls()
	proc := calls[len(calls)-1]
	assert.Equal(t, "session-1", proc.SessionID)
	assert.Equal(t, map[string]string{
		"effect": "echo",
		"pot1":   "0.300",
		"pot2":   "0.000",
		"pot3":   "0.000",
		"pot4":   "0.500",
	}, proc.Body)

	res, ok := h.ctl.Result()
	require.True(t, ok)
	assert.Equal(t, uint64(1), res.Generation)
	assert.Equal(t, defaultControls, res.Controls)
	assert.Equal(t, h.srv.URL+"/play/session-1/original", res.OriginalURL)
	assert.True(t, strings.HasPrefix(res.ProcessedURL, h.srv.URL+"/play/session-1/processed?t="))
	assert.Equal(t, h.srv.URL+"/download/session-1", res.DownloadURL)
	assert.False(t, h.ctl.Dirty())
	assert.Equal(t, "Processed! Adjust knobs to reprocess", h.ctl.ActionLabel())
}

func TestReprocessReusesSessionAndBustsCache(t *testing.T) {
	h := newHarness(t)
	h.selectWAV(t, "take.wav")
	require.NoError(t, h.ctl.Process(context.Background()))
	first, _ := h.ctl.Result()

	h.ctl.SetControl(pots.Delay, 60)
	require.NoError(t, h.ctl.Process(context.Background()))
	second, _ := h.ctl.Result()

	assert.Equal(t, []string{"upload", "process", "process"}, h.work())
	assert.Equal(t, 1, h.srv.Count("upload"))
	assert.Equal(t, first.SessionID, second.SessionID)
	assert.NotEqual(t, first.ProcessedURL, second.ProcessedURL)
	assert.Equal(t, first.OriginalURL, second.OriginalURL)
	assert.Len(t, h.ctl.History(), 2)
}

func TestControlChangeAfterSuccessOnlyMarksDirty(t *testing.T) {
	h := newHarness(t)
	h.selectWAV(t, "take.wav")
	require.NoError(t, h.ctl.Process(context.Background()))
	before, _ := h.ctl.Result()

	h.ctl.Nudge(pots.Feedback, 5)
	after, _ := h.ctl.Result()

	assert.True(t, h.ctl.Dirty())
	assert.Equal(t, ControlsChanged, h.ctl.DirtyCause())
	assert.Equal(t, "Reprocess with New Settings", h.ctl.ActionLabel())
	assert.Equal(t, before, after)
	assert.Equal(t, pots.ControlValue(55), h.ctl.Controls().Feedback)
	assert.Equal(t, 1, h.srv.Count("process"))
}

func TestControlChangeWithoutSessionIsNotDirty(t *testing.T) {
	h := newHarness(t)
	h.selectWAV(t, "take.wav")

	h.ctl.SetControl(pots.Mix, 40)
	assert.False(t, h.ctl.Dirty())
	assert.Equal(t, "Process Audio", h.ctl.ActionLabel())
}

func TestNudgeClamps(t *testing.T) {
	h := newHarness(t)
	h.ctl.Nudge(pots.Delay, 500)
	assert.Equal(t, pots.MaxValue, h.ctl.Controls().Delay)
	h.ctl.Nudge(pots.Delay, -500)
	assert.Equal(t, pots.MinValue, h.ctl.Controls().Delay)
}

func TestApplyPresetIsAtomicAndMarksCause(t *testing.T) {
	h := newHarness(t)
	h.selectWAV(t, "take.wav")
	require.NoError(t, h.ctl.Process(context.Background()))

	require.NoError(t, h.ctl.ApplyPreset("ambient"))
	assert.Equal(t, pots.Controls{Delay: 50, Mix: 0, LFO: 20, Feedback: 70}, h.ctl.Controls())
	assert.Equal(t, "ambient", h.ctl.Preset())
	assert.Equal(t, "Reprocess with Preset", h.ctl.ActionLabel())

	require.NoError(t, h.ctl.Process(context.Background()))
	calls := h.srv.Calls()
	assert.Equal(t, "0.500", calls[len(calls)-1].Body["pot1"])
	assert.Equal(t, "0.200", calls[len(calls)-1].Body["pot3"])
	assert.Equal(t, "0.700", calls[len(calls)-1].Body["pot4"])
	assert.False(t, h.ctl.Dirty())
	assert.Equal(t, "ambient", h.ctl.History()[1].Preset)

	// A manual change switches the selector back to custom
	h.ctl.SetControl(pots.Mix, 10)
	assert.Equal(t, "", h.ctl.Preset())
	assert.Equal(t, "Reprocess with New Settings", h.ctl.ActionLabel())
}

func TestApplyUnknownPreset(t *testing.T) {
	h := newHarness(t)
	assert.Error(t, h.ctl.ApplyPreset("nope"))
	assert.Equal(t, defaultControls, h.ctl.Controls())
}

func TestProcessFailureKeepsPriorResult(t *testing.T) {
	h := newHarness(t)
	h.selectWAV(t, "take.wav")
	require.NoError(t, h.ctl.Process(context.Background()))
	prior, _ := h.ctl.Result()

	h.srv.Configure(func(c *servicetest.Config) {
		c.FailProcess = true
		c.ProcessMessage = "Processing error: exit status 1"
	})
	h.ctl.SetControl(pots.LFO, 80)
	err := h.ctl.Process(context.Background())

	assert.True(t, errors.Is(err, failure.ProcessingFailed))
	assert.Equal(t, Error, h.ctl.State())
	assert.Equal(t, "Processing error: exit status 1", bannerMessage(t, h.ctl))
	kept, ok := h.ctl.Result()
	require.True(t, ok)
	assert.Equal(t, prior, kept)
	assert.True(t, h.ctl.Dirty())

	// Recovering needs only another trigger; the session is reused
	h.srv.Configure(func(c *servicetest.Config) { c.FailProcess = false })
	require.NoError(t, h.ctl.Process(context.Background()))
	assert.Equal(t, Processed, h.ctl.State())
	assert.Equal(t, 1, h.srv.Count("upload"))
}

func TestFailedReprocessOffersRetry(t *testing.T) {
	h := newHarness(t)
	h.selectWAV(t, "take.wav")
	require.NoError(t, h.ctl.Process(context.Background()))

	h.srv.Configure(func(c *servicetest.Config) { c.FailProcess = true })
	require.Error(t, h.ctl.Process(context.Background()))
	assert.Equal(t, Error, h.ctl.State())
	assert.False(t, h.ctl.Dirty())
	assert.Equal(t, "Retry Processing", h.ctl.ActionLabel())

	h.ctl.Nudge(pots.Delay, 1)
	assert.Equal(t, "Reprocess with New Settings", h.ctl.ActionLabel())

	h.srv.Configure(func(c *servicetest.Config) { c.FailProcess = false })
	require.NoError(t, h.ctl.Process(context.Background()))
	assert.Equal(t, "Processed! Adjust knobs to reprocess", h.ctl.ActionLabel())
}

func TestUploadFailureNeverProcesses(t *testing.T) {
	h := newHarness(t)
	h.srv.Configure(func(c *servicetest.Config) {
		c.FailUpload = true
		c.UploadMessage = "Invalid file type. Allowed: mp3, wav, ogg, m4a"
	})
	h.selectWAV(t, "take.wav")

	err := h.ctl.Process(context.Background())
	assert.True(t, errors.Is(err, failure.UploadFailed))
	assert.Equal(t, Error, h.ctl.State())
	assert.Equal(t, []string{"upload"}, h.work())
	assert.Equal(t, "Invalid file type. Allowed: mp3, wav, ogg, m4a", bannerMessage(t, h.ctl))
	assert.Equal(t, "", h.ctl.SessionID())
	assert.False(t, h.ctl.Reporter().Busy())
	assert.Equal(t, "Retry Processing", h.ctl.ActionLabel())
}

func TestTextFileRejectedBeforeAnyNetworkCall(t *testing.T) {
	h := newHarness(t)
	err := h.ctl.SelectFile(context.Background(), audiotest.WriteFile(t, h.dir, "notes.txt", []byte("hello")))

	assert.True(t, errors.Is(err, failure.InvalidFileType))
	assert.Equal(t, NoFile, h.ctl.State())
	assert.Empty(t, h.work())
	assert.Equal(t, failure.InvalidFileType.Fallback(), bannerMessage(t, h.ctl))
}

func TestProcessWithoutFile(t *testing.T) {
	h := newHarness(t)

	job, err := h.ctl.Begin()
	assert.Nil(t, job)
	assert.True(t, errors.Is(err, failure.NoFileSelected))
	assert.Equal(t, NoFile, h.ctl.State())
	assert.Empty(t, h.work())
	assert.Equal(t, "Please select a file first", bannerMessage(t, h.ctl))
}

func TestStartNewFileCleansUpBeforeNextSession(t *testing.T) {
	h := newHarness(t)
	h.selectWAV(t, "one.wav")
	require.NoError(t, h.ctl.Process(context.Background()))

	cleanup := h.ctl.StartNewFile()
	assert.Equal(t, NoFile, h.ctl.State())
	_, ok := h.ctl.Result()
	assert.False(t, ok)
	assert.Equal(t, "", h.ctl.SessionID())
	assert.Nil(t, h.ctl.File())
	assert.Empty(t, h.ctl.History())
	require.NoError(t, cleanup(context.Background()))

	h.selectWAV(t, "two.wav")
	require.NoError(t, h.ctl.Process(context.Background()))

	assert.Equal(t, []string{"upload", "process", "cleanup", "upload", "process"}, h.work())
	for _, c := range h.srv.Calls() {
		if c.Endpoint == "cleanup" {
			assert.Equal(t, "session-1", c.SessionID)
		}
	}
	assert.Equal(t, "session-2", h.ctl.SessionID())
}

func TestCloseRunsNewFileCleanupLeftPending(t *testing.T) {
	h := newHarness(t)
	h.selectWAV(t, "one.wav")
	require.NoError(t, h.ctl.Process(context.Background()))

	_ = h.ctl.StartNewFile()
	assert.Equal(t, 0, h.srv.Count("cleanup"))

	require.NoError(t, h.ctl.Close(context.Background()))
	assert.Equal(t, []string{"upload", "process", "cleanup"}, h.work())
	assert.Equal(t, NoFile, h.ctl.State())
}

func TestSelectingAnotherFileReplacesSession(t *testing.T) {
	h := newHarness(t)
	h.selectWAV(t, "one.wav")
	require.NoError(t, h.ctl.Process(context.Background()))

	h.selectWAV(t, "two.wav")
	assert.Equal(t, FileSelected, h.ctl.State())
	assert.Equal(t, 1, h.srv.Count("cleanup"))
	_, ok := h.ctl.Result()
	assert.False(t, ok)
	assert.Equal(t, "two.wav", h.ctl.File().Name)
}

func TestCleanupFailureIsNotShown(t *testing.T) {
	h := newHarness(t)
	h.srv.Configure(func(c *servicetest.Config) { c.FailCleanup = true })
	h.selectWAV(t, "one.wav")
	require.NoError(t, h.ctl.Process(context.Background()))

	err := h.ctl.Close(context.Background())
	assert.True(t, errors.Is(err, failure.CleanupFailed))
	assert.Equal(t, NoFile, h.ctl.State())
	assert.Equal(t, "", bannerMessage(t, h.ctl))
}

func TestTriggersDuringFlightCoalesce(t *testing.T) {
	h := newHarness(t)
	h.selectWAV(t, "take.wav")
	ctx := context.Background()

	job, err := h.ctl.Begin()
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, Uploading, h.ctl.State())
	assert.Equal(t, "Uploading...", h.ctl.ActionLabel())

	// Two more triggers while the first is in flight
	h.ctl.SetControl(pots.Delay, 70)
	again, err := h.ctl.Begin()
	require.NoError(t, err)
	assert.Nil(t, again)
	h.ctl.SetControl(pots.Delay, 90)
	again, err = h.ctl.Begin()
	require.NoError(t, err)
	assert.Nil(t, again)
	assert.True(t, h.ctl.Pending())

	up := job.Upload(ctx)
	require.True(t, h.ctl.Uploaded(up))
	assert.Equal(t, Processing, h.ctl.State())
	out := job.Process(ctx, up.SessionID)
	assert.Equal(t, defaultControls, out.Controls)
	require.True(t, h.ctl.Finish(out))
	assert.True(t, h.ctl.Dirty())

	follow, err := h.ctl.Begin()
	require.NoError(t, err)
	require.NotNil(t, follow)
	assert.Equal(t, pots.ControlValue(90), follow.Controls.Delay)
	up = follow.Upload(ctx)
	assert.False(t, up.Uploaded)
	require.True(t, h.ctl.Uploaded(up))
	assert.False(t, h.ctl.Finish(follow.Process(ctx, up.SessionID)))

	assert.Equal(t, []string{"upload", "process", "process"}, h.work())
	res, _ := h.ctl.Result()
	assert.Equal(t, uint64(2), res.Generation)
	assert.Equal(t, pots.ControlValue(90), res.Controls.Delay)
	assert.False(t, h.ctl.Dirty())
}

func TestFailureDropsCoalescedTrigger(t *testing.T) {
	h := newHarness(t)
	h.srv.Configure(func(c *servicetest.Config) { c.FailProcess = true })
	h.selectWAV(t, "take.wav")
	ctx := context.Background()

	job, err := h.ctl.Begin()
	require.NoError(t, err)
	_, _ = h.ctl.Begin()
	require.True(t, h.ctl.Pending())

	up := job.Upload(ctx)
	require.True(t, h.ctl.Uploaded(up))
	assert.False(t, h.ctl.Finish(job.Process(ctx, up.SessionID)))
	assert.False(t, h.ctl.Pending())
	assert.Equal(t, Error, h.ctl.State())
}

func TestOutcomeForReleasedFileIsDropped(t *testing.T) {
	h := newHarness(t)
	h.selectWAV(t, "one.wav")
	ctx := context.Background()

	job, err := h.ctl.Begin()
	require.NoError(t, err)
	up := job.Upload(ctx)
	require.True(t, h.ctl.Uploaded(up))

	cleanup := h.ctl.StartNewFile()
	require.NoError(t, cleanup(ctx))
	h.selectWAV(t, "two.wav")

	// The old request settles after the user moved on
	assert.False(t, h.ctl.Finish(job.Process(ctx, up.SessionID)))
	_, ok := h.ctl.Result()
	assert.False(t, ok)
	assert.Equal(t, FileSelected, h.ctl.State())
	assert.Equal(t, uint64(0), h.ctl.Generation())

	// And a new trigger is not blocked by it
	next, err := h.ctl.Begin()
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Greater(t, next.Generation, job.Generation)
}

func TestDuplicateOutcomeIsDropped(t *testing.T) {
	h := newHarness(t)
	h.selectWAV(t, "take.wav")
	ctx := context.Background()

	job, err := h.ctl.Begin()
	require.NoError(t, err)
	up := job.Upload(ctx)
	require.True(t, h.ctl.Uploaded(up))
	out := job.Process(ctx, up.SessionID)
	h.ctl.Finish(out)
	first, _ := h.ctl.Result()

	h.ctl.Finish(out)
	again, _ := h.ctl.Result()
	assert.Equal(t, first, again)
	assert.Len(t, h.ctl.History(), 1)
	assert.False(t, h.ctl.Uploaded(up))
}

func TestDownload(t *testing.T) {
	h := newHarness(t)
	var buf bytes.Buffer

	err := h.ctl.Download(context.Background(), &buf)
	assert.True(t, errors.Is(err, failure.NoResult))
	assert.Empty(t, h.work())

	h.selectWAV(t, "take.wav")
	require.NoError(t, h.ctl.Process(context.Background()))
	require.NoError(t, h.ctl.Download(context.Background(), &buf))
	assert.Equal(t, "ID3processed", buf.String())
	assert.False(t, h.ctl.Reporter().Busy())
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{NoFile, FileSelected, true},
		{NoFile, Processing, false},
		{FileSelected, Uploading, true},
		{Uploading, Ready, true},
		{Uploading, Error, true},
		{Ready, Processing, true},
		{Processing, Processed, true},
		{Processing, Error, true},
		{Processing, Ready, false},
		{Processed, Processing, true},
		{Error, Processing, true},
		{Error, Uploading, true},
		{Error, Processed, false},
		{Processed, NoFile, true},
		{Uploading, NoFile, true},
	}
	for _, tt := range tests {
		t.Run(tt.from.String()+"_to_"+tt.to.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestStateBusy(t *testing.T) {
	for _, s := range []State{NoFile, FileSelected, Ready, Processed, Error} {
		assert.False(t, s.Busy(), s.String())
	}
	assert.True(t, Uploading.Busy())
	assert.True(t, Processing.Busy())
}

func TestDownloadFailure(t *testing.T) {
	h := newHarness(t)
	h.selectWAV(t, "take.wav")
	require.NoError(t, h.ctl.Process(context.Background()))

	h.srv.Close()
	var buf bytes.Buffer
	err := h.ctl.Download(context.Background(), &buf)
	assert.True(t, errors.Is(err, failure.DownloadFailed))
	assert.Equal(t, "Download failed", bannerMessage(t, h.ctl))
	assert.False(t, h.ctl.Reporter().Busy())
}

func TestOutputName(t *testing.T) {
	assert.Equal(t, "take1-echo.mp3", OutputName("/music/take1.wav"))
	assert.Equal(t, "song.live-echo.mp3", OutputName("song.live.m4a"))
	assert.Equal(t, "README-echo.mp3", OutputName("README"))
}
