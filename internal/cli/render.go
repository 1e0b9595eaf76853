package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Veraticus/saffron/internal/match"
	"github.com/Veraticus/saffron/internal/model"
	"github.com/Veraticus/saffron/internal/rules"
)

// LabelNames maps label ids to display names. Unknown ids render as the id.
type LabelNames map[string]string

// NewLabelNames indexes labels by id.
func NewLabelNames(labels []model.Label) LabelNames {
	names := make(LabelNames, len(labels))
	for _, l := range labels {
		names[l.ID] = l.Name
	}
	return names
}

// Name returns the display name of a label id.
func (n LabelNames) Name(id string) string {
	if name, ok := n[id]; ok && name != "" {
		return name
	}
	return id
}

func (n LabelNames) join(ids []string) string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		names = append(names, n.Name(id))
	}
	return strings.Join(names, ", ")
}

// Table renders rows under a header with aligned columns.
func Table(header []string, rows [][]string) string {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i := 0; i < len(row) && i < len(widths); i++ {
			widths[i] = max(widths[i], lipgloss.Width(row[i]))
		}
	}

	renderRow := func(cells []string, style lipgloss.Style) string {
		out := make([]string, 0, len(widths))
		for i, w := range widths {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			out = append(out, style.Width(w+2).Render(cell))
		}
		return strings.TrimRight(lipgloss.JoinHorizontal(lipgloss.Top, out...), " ")
	}

	lines := []string{renderRow(header, TableHeaderStyle)}
	for _, row := range rows {
		lines = append(lines, renderRow(row, TableCellStyle))
	}
	return strings.Join(lines, "\n")
}

// RenderTransactions renders transactions as a table.
func RenderTransactions(txns []model.Transaction) string {
	if len(txns) == 0 {
		return SubtleStyle.Render("No transactions.")
	}

	rows := make([][]string, 0, len(txns))
	for _, txn := range txns {
		date := ""
		if !txn.Date.IsZero() {
			date = txn.Date.Format("2006-01-02")
		}
		labels := make([]string, 0, len(txn.Labels))
		for _, l := range txn.Labels {
			labels = append(labels, l.Name)
		}
		rows = append(rows, []string{
			shortID(txn.ID),
			date,
			strconv.FormatFloat(txn.Amount, 'f', 2, 64),
			txn.Description,
			string(txn.Status),
			strings.Join(labels, ", "),
		})
	}
	return Table([]string{"ID", "DATE", "AMOUNT", "DESCRIPTION", "STATUS", "LABELS"}, rows)
}

// RenderRules renders rules in application order.
func RenderRules(list []model.Rule, names LabelNames) string {
	if len(list) == 0 {
		return SubtleStyle.Render("No rules.")
	}

	rows := make([][]string, 0, len(list))
	for _, r := range list {
		active := ErrorIcon
		if r.IsActive {
			active = SuccessIcon
		}
		rows = append(rows, []string{
			strconv.Itoa(r.OrderIndex),
			active,
			r.Name,
			RenderConditions(r.ConditionSet()),
			names.join(r.LabelsToApply),
			r.ID,
		})
	}
	return Table([]string{"#", "ON", "NAME", "CONDITIONS", "LABELS", "ID"}, rows)
}

// RenderLabels renders labels as a table.
func RenderLabels(labels []model.Label) string {
	if len(labels) == 0 {
		return SubtleStyle.Render("No labels.")
	}
	rows := make([][]string, 0, len(labels))
	for _, l := range labels {
		rows = append(rows, []string{l.Name, l.Color, l.ID})
	}
	return Table([]string{"NAME", "COLOR", "ID"}, rows)
}

// RenderConditions renders a set on one line.
func RenderConditions(set model.ConditionSet) string {
	if len(set.Conditions) == 0 {
		return "(everything)"
	}
	parts := make([]string, 0, len(set.Conditions))
	for _, c := range set.Conditions {
		parts = append(parts, c.String())
	}
	return strings.Join(parts, " "+string(set.Mode())+" ")
}

// RenderDropped explains conditions pruned from a draft filter.
func RenderDropped(dropped []match.Dropped) string {
	lines := make([]string, 0, len(dropped))
	for _, d := range dropped {
		lines = append(lines, FormatWarning(fmt.Sprintf("ignored condition %d (%s): %v", d.Index+1, d.Condition, d.Err)))
	}
	return strings.Join(lines, "\n")
}

// RenderReport renders an application report with one line per
// transaction that matched or failed.
func RenderReport(title string, report *rules.Report, names LabelNames) string {
	lines := []string{report.Summary()}

	for _, o := range report.Outcomes() {
		if !o.Matched() && len(o.Failures) == 0 {
			continue
		}
		line := fmt.Sprintf("%s  %d rule(s)", shortID(o.TransactionID), len(o.MatchedRules))
		if len(o.AppliedLabels) > 0 {
			line += "  " + LabelIcon + " " + names.join(o.AppliedLabels)
		}
		lines = append(lines, line)
		for _, f := range o.Failures {
			lines = append(lines, "  "+FormatError(fmt.Sprintf("%s: %v", names.Name(f.LabelID), f.Err)))
		}
	}

	return RenderBox(title, strings.Join(lines, "\n"))
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
