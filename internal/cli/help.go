package cli

import (
	"fmt"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/lipgloss"
)

// Custom help styles
var (
	helpTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	helpDescStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFA500")).
			Italic(true).
			MarginBottom(1)

	helpSectionStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("#FFA500")).
				MarginTop(1)

	helpFlagStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00AA00")).
			Bold(true)

	helpArgStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00AAAA")).
			Bold(true)

	helpDefaultStyle = lipgloss.NewStyle().
				Foreground(mutedColor).
				Italic(true)
)

// HelpRow is one "key  text" line of a help section
type HelpRow struct {
	Key  string
	Text string
}

// HelpSection is a titled block printed after the flags, such as the
// pedal key bindings or the environment overrides
type HelpSection struct {
	Title string
	Rows  []HelpRow
}

// Help describes the styled help page
type Help struct {
	Title       string
	Description string
	Usage       string // after the command name, e.g. "[flags] [file]"
	Sections    []HelpSection
}

// StyledHelpPrinter renders the kong arguments and flags in Lipgloss
// styling, followed by the extra sections of h
func StyledHelpPrinter(h Help) kong.HelpPrinter {
	return func(_ kong.HelpOptions, ctx *kong.Context) error {
		var sb strings.Builder

		sb.WriteString(helpTitleStyle.Render(h.Title))
		sb.WriteString("\n")
		if h.Description != "" {
			sb.WriteString(helpDescStyle.Render(h.Description))
			sb.WriteString("\n")
		}

		sb.WriteString(helpSectionStyle.Render("Usage:"))
		fmt.Fprintf(&sb, "\n  %s %s\n", ctx.Model.Name, h.Usage)

		writeRows(&sb, "Arguments:", helpArgStyle, arguments(ctx))
		writeRows(&sb, "Flags:", helpFlagStyle, flags(ctx))
		for _, s := range h.Sections {
			writeRows(&sb, s.Title+":", helpFlagStyle, s.Rows)
		}

		sb.WriteString("\n")
		fmt.Fprint(ctx.Stdout, sb.String())
		return nil
	}
}

// writeRows prints a section with its keys padded to a common width
func writeRows(sb *strings.Builder, title string, keyStyle lipgloss.Style, rows []HelpRow) {
	if len(rows) == 0 {
		return
	}
	width := 0
	for _, r := range rows {
		width = max(width, lipgloss.Width(r.Key))
	}

	sb.WriteString("\n")
	sb.WriteString(helpSectionStyle.Render(title))
	sb.WriteString("\n")
	for _, r := range rows {
		sb.WriteString("  ")
		sb.WriteString(keyStyle.Render(r.Key))
		if r.Text != "" {
			sb.WriteString(strings.Repeat(" ", width-lipgloss.Width(r.Key)+2))
			sb.WriteString(r.Text)
		}
		sb.WriteString("\n")
	}
}

func arguments(ctx *kong.Context) []HelpRow {
	var rows []HelpRow
	for _, arg := range ctx.Model.Node.Positional {
		rows = append(rows, HelpRow{Key: arg.Summary(), Text: arg.Help})
	}
	return rows
}

func flags(ctx *kong.Context) []HelpRow {
	rows := []HelpRow{{Key: "-h, --help", Text: "Show context-sensitive help."}}
	for _, f := range ctx.Model.Node.Flags {
		if f.Name == "help" || f.Hidden {
			continue
		}
		text := f.Help
		if f.HasDefault {
			text += " " + helpDefaultStyle.Render("(default: "+f.Default+")")
		}
		rows = append(rows, HelpRow{Key: f.String(), Text: text})
	}
	return rows
}
