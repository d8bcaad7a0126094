package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/yllada/vpn-registry/events"
	"github.com/yllada/vpn-registry/vpn"
)

// printer renders command output, with colors when writing to a terminal.
type printer struct {
	w      io.Writer
	styled bool

	header  lipgloss.Style
	success lipgloss.Style
	muted   lipgloss.Style
}

func newPrinter(w io.Writer) *printer {
	styled := false
	if f, ok := w.(*os.File); ok {
		styled = term.IsTerminal(int(f.Fd()))
	}
	return &printer{
		w:       w,
		styled:  styled,
		header:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		success: lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		muted:   lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
	}
}

func (p *printer) render(style lipgloss.Style, s string) string {
	if !p.styled {
		return s
	}
	return style.Render(s)
}

func (p *printer) println(a ...any) {
	fmt.Fprintln(p.w, a...)
}

func (p *printer) printf(format string, a ...any) {
	fmt.Fprintf(p.w, format, a...)
}

// done prints a confirmation line.
func (p *printer) done(format string, a ...any) {
	fmt.Fprintln(p.w, p.render(p.success, "✓ "+fmt.Sprintf(format, a...)))
}

// table aligns rows with tabwriter. Only the header row is styled so that
// escape sequences never skew the column widths.
func (p *printer) table(header []string, rows [][]string) {
	var buf bytes.Buffer
	tw := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	tw.Flush()

	lines := strings.SplitAfter(buf.String(), "\n")
	if len(lines) > 0 {
		first := strings.TrimSuffix(lines[0], "\n")
		fmt.Fprintln(p.w, p.render(p.header, first))
		for _, line := range lines[1:] {
			fmt.Fprint(p.w, line)
		}
	}
}

func headerRows(headers []vpn.ProfileHeader, long bool) [][]string {
	rows := make([][]string, 0, len(headers))
	for _, h := range headers {
		id := h.ID
		if !long {
			id = shortID(id)
		}
		rows = append(rows, []string{
			id,
			h.Name,
			joinOr(h.ModuleTypes, "-"),
			joinOr(h.SharingFlags, "-"),
			joinOr(h.RequiredFeatures, "-"),
		})
	}
	return rows
}

func joinOr[T ~string](items []T, empty string) string {
	if len(items) == 0 {
		return empty
	}
	parts := make([]string, 0, len(items))
	for _, item := range items {
		parts = append(parts, string(item))
	}
	return strings.Join(parts, ",")
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// formatEvent renders one registry event on a single line.
func formatEvent(ev events.Event) string {
	prefix := fmt.Sprintf("%s #%d %s", ev.Time.Format(time.TimeOnly), ev.Seq, ev.Type)
	switch ev.Type {
	case events.TypeSaved:
		if ev.Profile == nil {
			return prefix
		}
		verb := "created"
		if ev.Previous != nil {
			verb = "updated"
		}
		return fmt.Sprintf("%s %s %q (%s) fingerprint=%s", prefix, verb,
			ev.Profile.Name, shortID(ev.Profile.ID), ev.Profile.Attributes.Fingerprint)
	case events.TypeRemoved:
		ids := make([]string, 0, len(ev.IDs))
		for _, id := range ev.IDs {
			ids = append(ids, shortID(id))
		}
		return fmt.Sprintf("%s %s", prefix, strings.Join(ids, ","))
	case events.TypeRefresh:
		return fmt.Sprintf("%s %d profiles", prefix, len(ev.Headers))
	case events.TypeRemoteImportingToggled:
		return fmt.Sprintf("%s enabled=%t", prefix, ev.Enabled)
	default:
		return prefix
	}
}
