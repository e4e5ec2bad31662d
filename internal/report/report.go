// internal/report/report.go
// Package report renders metric tables as terminal text, Markdown and PDF.
package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
	"github.com/mwiater/detrun/internal/evalmetric"
	"github.com/mwiater/detrun/internal/trainlog"
)

// Table is a titled grid of preformatted cells with optional summary lines.
type Table struct {
	Title   string
	Headers []string
	Rows    [][]string
	// Signed marks the column whose values are colored by sign in text output (-1 for none).
	Signed int
	Notes  []string
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

func formatSigned(v float64) string {
	return fmt.Sprintf("%+.4f", v)
}

// FromEvaluation converts an IoU/IoP comparison into a table.
func FromEvaluation(r evalmetric.Report) Table {
	t := Table{
		Title:   fmt.Sprintf("AP@IoU>%g vs AP@IoP>%g", r.Threshold, r.Threshold),
		Headers: []string{"Category", "GT", "Preds", "AP@IoU", "AP@IoP", "Diff"},
		Signed:  5,
	}
	for _, c := range r.Categories {
		t.Rows = append(t.Rows, []string{
			c.Label(),
			strconv.Itoa(c.GroundTruth),
			strconv.Itoa(c.Predictions),
			formatFloat(c.APIoU),
			formatFloat(c.APIoP),
			formatSigned(c.Diff),
		})
	}
	t.Rows = append(t.Rows, []string{"mean", "", "", formatFloat(r.MeanIoU), formatFloat(r.MeanIoP), formatSigned(r.Diff)})
	if len(r.Categories) == 0 {
		t.Notes = append(t.Notes, "no ground-truth categories")
	}
	return t
}

// FromSummaries converts training-log summaries into one table per run.
func FromSummaries(summaries []trainlog.RunSummary) []Table {
	tables := make([]Table, 0, len(summaries))
	for _, s := range summaries {
		t := Table{
			Title:   s.Run,
			Headers: []string{"Field", "Split", "Last", "Best", "Best epoch"},
			Signed:  -1,
			Notes:   []string{fmt.Sprintf("directory: %s", s.Dir), fmt.Sprintf("epochs: %d", s.Epochs)},
		}
		if s.Skipped > 0 {
			t.Notes = append(t.Notes, fmt.Sprintf("skipped lines: %d", s.Skipped))
		}
		for _, f := range s.Fields {
			for _, split := range []struct {
				name string
				stat *trainlog.Stat
			}{{"train", f.Train}, {"test", f.Test}} {
				if split.stat == nil {
					continue
				}
				t.Rows = append(t.Rows, []string{
					f.Field,
					split.name,
					formatFloat(split.stat.Last),
					formatFloat(split.stat.Best),
					strconv.Itoa(split.stat.BestEpoch),
				})
			}
		}
		tables = append(tables, t)
	}
	return tables
}

func (t Table) widths() []int {
	w := make([]int, len(t.Headers))
	for i, h := range t.Headers {
		w[i] = len(h)
	}
	for _, row := range t.Rows {
		for i, cell := range row {
			if i < len(w) && len(cell) > w[i] {
				w[i] = len(cell)
			}
		}
	}
	return w
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	headerStyle = lipgloss.NewStyle().Bold(true)
	noteStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))

	positive = color.New(color.FgGreen).SprintFunc()
	negative = color.New(color.FgRed).SprintFunc()
)

// WriteText renders tables for the terminal.
func WriteText(out io.Writer, tables ...Table) {
	for i, t := range tables {
		if i > 0 {
			fmt.Fprintln(out)
		}
		fmt.Fprintln(out, titleStyle.Render(t.Title))
		widths := t.widths()
		fmt.Fprintln(out, headerStyle.Render(joinCells(padCells(t.Headers, widths))))
		for _, row := range t.Rows {
			cells := padCells(row, widths)
			if t.Signed >= 0 && t.Signed < len(row) {
				if v, err := strconv.ParseFloat(row[t.Signed], 64); err == nil {
					switch {
					case v > 0:
						cells[t.Signed] = positive(cells[t.Signed])
					case v < 0:
						cells[t.Signed] = negative(cells[t.Signed])
					}
				}
			}
			fmt.Fprintln(out, joinCells(cells))
		}
		for _, n := range t.Notes {
			fmt.Fprintln(out, noteStyle.Render(n))
		}
	}
}

// padCells left-aligns the first column and right-aligns the rest.
func padCells(cells []string, widths []int) []string {
	parts := make([]string, len(widths))
	for i := range widths {
		cell := ""
		if i < len(cells) {
			cell = cells[i]
		}
		if i == 0 {
			parts[i] = fmt.Sprintf("%-*s", widths[i], cell)
		} else {
			parts[i] = fmt.Sprintf("%*s", widths[i], cell)
		}
	}
	return parts
}

func joinCells(parts []string) string {
	return "  " + strings.Join(parts, "  ")
}

// WriteMarkdown renders tables as GitHub-flavored Markdown.
func WriteMarkdown(out io.Writer, tables ...Table) error {
	var b strings.Builder
	for i, t := range tables {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "## %s\n\n", t.Title)
		b.WriteString("| " + strings.Join(escapeCells(t.Headers), " | ") + " |\n")
		seps := make([]string, len(t.Headers))
		for j := range seps {
			if j == 0 {
				seps[j] = "---"
			} else {
				seps[j] = "---:"
			}
		}
		b.WriteString("| " + strings.Join(seps, " | ") + " |\n")
		for _, row := range t.Rows {
			b.WriteString("| " + strings.Join(escapeCells(row), " | ") + " |\n")
		}
		if len(t.Notes) > 0 {
			b.WriteString("\n")
			for _, n := range t.Notes {
				fmt.Fprintf(&b, "- %s\n", n)
			}
		}
	}
	_, err := io.WriteString(out, b.String())
	return err
}

func escapeCells(cells []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = strings.ReplaceAll(c, "|", `\|`)
	}
	return out
}
