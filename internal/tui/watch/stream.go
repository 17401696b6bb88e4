package watch

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/herald/internal/events"
)

const maxStreamLines = 200

// streamView renders the raw activity event stream in a viewport.
type streamView struct {
	viewport viewport.Model
	lines    []string
	ready    bool
}

func newStreamView() streamView {
	return streamView{}
}

// Observe appends a formatted event line (newest on top).
func (s *streamView) Observe(e events.Event, theme Theme) {
	s.lines = append([]string{formatEvent(e, theme)}, s.lines...)
	if len(s.lines) > maxStreamLines {
		s.lines = s.lines[:maxStreamLines]
	}
	s.viewport.SetContent(strings.Join(s.lines, "\n"))
}

func (s *streamView) Resize(width, height int) {
	streamHeight := height - 20
	if streamHeight < 5 {
		streamHeight = 5
	}
	if !s.ready {
		s.viewport = viewport.New(width-8, streamHeight)
		s.viewport.SetContent(strings.Join(s.lines, "\n"))
		s.ready = true
		return
	}
	s.viewport.Width = width - 8
	s.viewport.Height = streamHeight
}

func (s *streamView) View(theme Theme, width int) string {
	innerWidth := width - 4

	if len(s.lines) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("EVENT STREAM"),
			theme.Dim.Render("  Waiting for events..."),
		)
		return theme.Border.Width(innerWidth).Render(content)
	}

	body := s.viewport.View()
	if !s.ready {
		body = strings.Join(s.lines, "\n")
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("EVENT STREAM"),
		lipgloss.NewStyle().Padding(0, 1).Render(body),
	)
	return theme.Border.Width(innerWidth).Render(content)
}

func formatEvent(e events.Event, theme Theme) string {
	ts := theme.Dim.Render(e.At.Format("15:04:05"))

	// Color the event type based on category
	var typeStyle lipgloss.Style
	switch {
	case strings.HasSuffix(e.Type, ".completed"), strings.HasSuffix(e.Type, ".started"):
		typeStyle = theme.StatusOK
	case strings.HasSuffix(e.Type, ".rejected"):
		typeStyle = theme.StatusFailed
	default:
		typeStyle = theme.Dim
	}

	typeName := typeStyle.Render(fmt.Sprintf("%-20s", e.Type))

	return fmt.Sprintf("%s %s %s", ts, typeName, extractEventDesc(e))
}

// extractEventDesc pulls a brief description out of the event payload.
func extractEventDesc(e events.Event) string {
	data := make(map[string]any)
	_ = json.Unmarshal(e.Data, &data)

	var parts []string

	if id, ok := data["delivery_id"].(string); ok {
		if len(id) > 8 {
			id = id[:8]
		}
		parts = append(parts, fmt.Sprintf("[%s]", id))
	}

	if typ, ok := data["type"].(string); ok && typ != "" {
		parts = append(parts, typ)
	}

	if reason, ok := data["reason"].(string); ok && reason != "" {
		parts = append(parts, reason)
	}

	if endpoint, ok := data["endpoint"].(string); ok && endpoint != "" {
		parts = append(parts, endpoint)
	}

	if len(parts) == 0 {
		raw := string(e.Data)
		if len(raw) > 60 {
			raw = raw[:60] + "..."
		}
		return raw
	}

	return strings.Join(parts, " ")
}
