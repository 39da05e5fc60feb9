package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/linuxmatters/echopedal/internal/audio"
	"github.com/linuxmatters/echopedal/internal/controller"
	"github.com/linuxmatters/echopedal/internal/pots"
	"github.com/linuxmatters/echopedal/internal/presets"
)

// ReportData contains everything the session report shows
type ReportData struct {
	File      *audio.Info
	Server    string
	SessionID string
	StartTime time.Time
	EndTime   time.Time
	Runs      []controller.Run
	Presets   *presets.Catalog // resolves preset keys to names; may be nil
}

// ReportPath returns where the report for file lands in dir:
// take1.wav → take1-echo.log
func ReportPath(dir string, file *audio.Info) string {
	base := "echopedal"
	if file != nil {
		base = strings.TrimSuffix(file.Name, filepath.Ext(file.Name))
	}
	return filepath.Join(dir, base+"-echo.log")
}

// GenerateReport writes the session report to path
func GenerateReport(path string, data ReportData) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}
	defer f.Close()

	if err := WriteReport(f, data); err != nil {
		return err
	}
	return f.Close()
}

// WriteReport renders the report sections to w.
//
// Report structure:
// 1. Header - file info and timestamps
// 2. Session Summary - run count and timings
// 3. Control Settings - display values per run
// 4. Wire Parameters - normalized values sent per run
func WriteReport(w io.Writer, data ReportData) error {
	ew := &errWriter{w: w}

	writeReportHeader(ew, data)
	writeSessionSummary(ew, data)
	if len(data.Runs) > 0 {
		writeControlTable(ew, data)
		writeWireTable(ew, data)
	}
	return ew.err
}

// errWriter keeps the first write error so sections can print unchecked
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) Write(p []byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}
	n, err := e.w.Write(p)
	e.err = err
	return n, err
}

// writeSection writes a section header with title and dashed underline.
func writeSection(w io.Writer, title string) {
	fmt.Fprintln(w, title)
	fmt.Fprintln(w, strings.Repeat("-", len(title)))
}

func writeReportHeader(w io.Writer, data ReportData) {
	fmt.Fprintln(w, "Echopedal Session Report")
	fmt.Fprintln(w, "========================")
	if data.File != nil {
		fmt.Fprintf(w, "File: %s (%s)\n", data.File.Name, audio.FormatSize(data.File.Size))
		if data.File.HasFormat() {
			fmt.Fprintf(w, "Format: %d Hz, %d-bit, %s\n",
				data.File.SampleRate, data.File.BitDepth, audio.ChannelName(data.File.Channels))
			fmt.Fprintf(w, "Duration: %s\n", formatDuration(data.File.Duration))
		}
	}
	if data.Server != "" {
		fmt.Fprintf(w, "Server: %s\n", data.Server)
	}
	if data.SessionID != "" {
		fmt.Fprintf(w, "Session: %s\n", data.SessionID)
	}
	fmt.Fprintf(w, "Generated: %s\n", data.EndTime.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintln(w, "")
}

func writeSessionSummary(w io.Writer, data ReportData) {
	writeSection(w, "Session Summary")

	var busy time.Duration
	uploads := 0
	for _, r := range data.Runs {
		busy += r.Elapsed
		if r.Uploaded {
			uploads++
		}
	}

	fmt.Fprintf(w, "Runs:        %d\n", len(data.Runs))
	fmt.Fprintf(w, "Uploads:     %d\n", uploads)
	fmt.Fprintf(w, "Processing:  %s\n", formatDuration(busy))
	if !data.StartTime.IsZero() && !data.EndTime.IsZero() {
		fmt.Fprintf(w, "Session:     %s\n", formatDuration(data.EndTime.Sub(data.StartTime)))
	}
	fmt.Fprintln(w, "")
}

func runHeaders(runs []controller.Run) []string {
	headers := make([]string, len(runs))
	for i, r := range runs {
		headers[i] = fmt.Sprintf("Run %d", r.Generation)
	}
	return headers
}

func writeControlTable(w io.Writer, data ReportData) {
	writeSection(w, "Control Settings")

	table := NewMetricTable(runHeaders(data.Runs)...)
	for _, kind := range pots.Kinds {
		values := make([]string, len(data.Runs))
		for i, r := range data.Runs {
			values[i] = pots.Display(kind, r.Controls.Get(kind))
		}
		table.AddRow(kind.String(), values, "", "")
	}

	presetNames := make([]string, len(data.Runs))
	for i, r := range data.Runs {
		presetNames[i] = presetLabel(data.Presets, r.Preset)
	}
	table.AddRow("Preset", presetNames, "", "")

	elapsed := make([]float64, len(data.Runs))
	for i, r := range data.Runs {
		elapsed[i] = r.Elapsed.Seconds()
	}
	table.AddMetricRow("Elapsed", elapsed, 1, "s")

	fmt.Fprint(w, table.String())
	fmt.Fprintln(w, "")
}

func writeWireTable(w io.Writer, data ReportData) {
	writeSection(w, "Wire Parameters")

	table := NewMetricTable(runHeaders(data.Runs)...)
	for _, kind := range pots.Kinds {
		values := make([]string, len(data.Runs))
		for i, r := range data.Runs {
			values[i] = pots.EffectUnits(r.Controls.Get(kind))
		}
		table.AddRow(kind.WireName(), values, "", kind.String())
	}

	fmt.Fprint(w, table.String())
	fmt.Fprintln(w, "")
}

func presetLabel(catalog *presets.Catalog, key string) string {
	if key == "" {
		return "Custom"
	}
	if p, ok := catalog.Get(key); ok {
		return p.Label()
	}
	return key
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}

	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60

	if minutes < 60 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}

	hours := minutes / 60
	minutes = minutes % 60
	return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
}
