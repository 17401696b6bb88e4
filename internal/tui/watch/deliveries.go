package watch

import (
	"encoding/json"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/herald/internal/events"
)

const maxDeliveryRows = 50

// deliveryLog keeps the table of recent deliveries and rejections built
// from delivery.* hub events.
type deliveryLog struct {
	table table.Model
	rows  []table.Row
}

func newDeliveryLog(theme Theme) deliveryLog {
	t := table.New(
		table.WithColumns(deliveryColumns(80)),
		table.WithFocused(true),
		table.WithHeight(8),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	return deliveryLog{table: t}
}

func deliveryColumns(width int) []table.Column {
	typeWidth := width - 44
	if typeWidth < 12 {
		typeWidth = 12
	}
	return []table.Column{
		{Title: "Time", Width: 8},
		{Title: "Outcome", Width: 9},
		{Title: "Type/Reason", Width: typeWidth},
		{Title: "Endpoint", Width: 18},
	}
}

// Observe folds a hub event into the table. Non-delivery events are ignored.
func (d *deliveryLog) Observe(e events.Event) {
	var row table.Row
	switch e.Type {
	case "delivery.completed":
		data := struct {
			Type     string `json:"type"`
			Endpoint string `json:"endpoint"`
		}{}
		_ = json.Unmarshal(e.Data, &data)
		row = table.Row{e.At.Format("15:04:05"), "ok", data.Type, data.Endpoint}
	case "delivery.rejected":
		data := struct {
			Reason   string `json:"reason"`
			Endpoint string `json:"endpoint"`
		}{}
		_ = json.Unmarshal(e.Data, &data)
		row = table.Row{e.At.Format("15:04:05"), "rejected", data.Reason, data.Endpoint}
	default:
		return
	}

	// Newest first.
	d.rows = append([]table.Row{row}, d.rows...)
	if len(d.rows) > maxDeliveryRows {
		d.rows = d.rows[:maxDeliveryRows]
	}
	d.table.SetRows(d.rows)
}

func (d *deliveryLog) Resize(width int) {
	d.table.SetColumns(deliveryColumns(width - 8))
}

func (d *deliveryLog) View(theme Theme, width int) string {
	innerWidth := width - 4

	if len(d.rows) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("DELIVERIES"),
			theme.Dim.Render("  No deliveries yet..."),
		)
		return theme.Border.Width(innerWidth).Render(content)
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("DELIVERIES"),
		d.table.View(),
	)
	return theme.Border.Width(innerWidth).Render(content)
}
