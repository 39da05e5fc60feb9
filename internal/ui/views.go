package ui

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/linuxmatters/echopedal/internal/audio"
	"github.com/linuxmatters/echopedal/internal/controller"
	"github.com/linuxmatters/echopedal/internal/pots"
)

var (
	amber = lipgloss.Color("#D97706")
	green = lipgloss.Color("#00AA00")
	red   = lipgloss.Color("#A40000")
	gray  = lipgloss.Color("#888888")

	busyStyle = lipgloss.NewStyle().Foreground(amber)

	focusStyle = lipgloss.NewStyle().Bold(true).Foreground(amber)
	mutedStyle = lipgloss.NewStyle().Foreground(gray)
	labelStyle = lipgloss.NewStyle().Width(10)

	buttonStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 2)

	bannerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(red).
			Foreground(red).
			Padding(0, 1).
			Width(60)
)

// gaugeWidth is the number of cells across the knob's 270° sweep
const gaugeWidth = 21

// View renders the UI
func (m Model) View() string {
	if m.Width == 0 {
		return "Initializing..."
	}

	var b strings.Builder

	b.WriteString(renderHeader(m))
	b.WriteString("\n\n")

	if banner := renderBanner(m); banner != "" {
		b.WriteString(banner)
		b.WriteString("\n\n")
	}

	if m.entering {
		b.WriteString(m.input.View())
		b.WriteString("\n")
		b.WriteString(mutedStyle.Render("MP3, WAV, OGG or M4A • enter: select • esc: cancel"))
		b.WriteString("\n\n")
	} else {
		b.WriteString(renderFile(m.ctl.File()))
		b.WriteString("\n\n")
	}

	b.WriteString(renderControls(m))
	b.WriteString("\n")
	b.WriteString(renderPreset(m))
	b.WriteString("\n\n")

	b.WriteString(renderAction(m))
	b.WriteString("\n")

	if res, ok := m.ctl.Result(); ok {
		b.WriteString("\n")
		b.WriteString(renderResult(res))
		b.WriteString("\n")
	}

	if m.status != "" {
		b.WriteString("\n")
		b.WriteString(lipgloss.NewStyle().Foreground(green).Render(m.status))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(renderHelp())

	return b.String()
}

func renderHeader(m Model) string {
	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(amber).
		Render("Echopedal 🎛 - Echo Pedal Controller")

	subtitle := mutedStyle.Italic(true).Render(m.server)
	return title + "\n" + subtitle
}

func renderBanner(m Model) string {
	n, ok := m.ctl.Reporter().Current()
	if !ok {
		return ""
	}
	return bannerStyle.Render(n.Message + "  " + mutedStyle.Render("(x to dismiss)"))
}

func renderFile(info *audio.Info) string {
	if info == nil {
		return mutedStyle.Render("No file selected - press n to choose one")
	}

	line := fmt.Sprintf("🎵 %s  %s", info.Name, mutedStyle.Render(audio.FormatSize(info.Size)))
	if info.HasFormat() {
		line += mutedStyle.Render(fmt.Sprintf("  %.1fs | %d Hz | %s",
			info.Duration.Seconds(), info.SampleRate, audio.ChannelName(info.Channels)))
	}
	return line
}

func renderControls(m Model) string {
	var b strings.Builder
	controls := m.ctl.Controls()
	for i, kind := range pots.Kinds {
		b.WriteString(renderKnob(kind, controls.Get(kind), m.focus == i))
		b.WriteString("\n")
	}
	return b.String()
}

// renderKnob draws one pot as a gauge whose marker follows the knob rotation
func renderKnob(kind pots.Kind, v pots.ControlValue, focused bool) string {
	cell := int(math.Round((pots.Rotation(v) + 135) / 270 * (gaugeWidth - 1)))
	gauge := strings.Repeat("━", cell) + "●" + strings.Repeat("─", gaugeWidth-1-cell)

	cursor := "  "
	label := labelStyle.Render(kind.String())
	if focused {
		cursor = focusStyle.Render("▸ ")
		label = focusStyle.Inherit(labelStyle).Render(kind.String())
	}
	return fmt.Sprintf("%s%s %s %s", cursor, label, gauge, pots.Display(kind, v))
}

func renderPreset(m Model) string {
	name := "Custom"
	desc := ""
	if p, ok := m.ctl.Catalog().Get(m.ctl.Preset()); ok {
		name = p.Label()
		desc = p.Description
	}
	if m.ctl.Catalog().Len() == 0 {
		name = "Custom (no presets available)"
	}

	cursor := "  "
	label := labelStyle.Render("Preset")
	value := "‹ " + name + " ›"
	if m.focus == presetRow {
		cursor = focusStyle.Render("▸ ")
		label = focusStyle.Inherit(labelStyle).Render("Preset")
		value = focusStyle.Render(value)
	}

	line := cursor + label + " " + value
	if desc != "" {
		line += "  " + mutedStyle.Render(desc)
	}
	return line
}

// renderAction draws the context-sensitive action button, coloured by state
func renderAction(m Model) string {
	label := m.ctl.ActionLabel()
	color := gray

	switch {
	case m.ctl.State().Busy():
		color = amber
		label = m.spinner.View() + " " + label
	case m.ctl.Dirty():
		color = amber
	case m.ctl.State() == controller.Processed:
		color = green
	case m.ctl.State() == controller.Error:
		color = red
	}

	button := buttonStyle.BorderForeground(color).Foreground(color).Render(label)
	if m.ctl.Pending() {
		button += mutedStyle.Render("  another run queued")
	}
	return button
}

func renderResult(res controller.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", mutedStyle.Render("Original: "), res.OriginalURL)
	fmt.Fprintf(&b, "%s %s\n", mutedStyle.Render("Processed:"), res.ProcessedURL)
	fmt.Fprintf(&b, "%s %s", mutedStyle.Render("Download: "), res.DownloadURL)
	return b.String()
}

func renderHelp() string {
	var parts []string
	for _, k := range keys.help() {
		h := k.Help()
		parts = append(parts, h.Key+": "+h.Desc)
	}
	return mutedStyle.Render(strings.Join(parts, " • "))
}
