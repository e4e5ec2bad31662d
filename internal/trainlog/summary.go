// internal/trainlog/summary.go
package trainlog

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// DefaultFields are the fields summarized when none are requested.
var DefaultFields = []string{"class_error", "loss_bbox_unscaled", "mAP"}

// Interpolate fills interior and trailing NaN gaps: interior gaps linearly,
// trailing gaps with the last value. Leading NaNs are kept.
func Interpolate(values []float64) []float64 {
	out := append([]float64(nil), values...)
	prev := -1
	for i, v := range out {
		if math.IsNaN(v) {
			continue
		}
		if prev >= 0 && i-prev > 1 {
			step := (v - out[prev]) / float64(i-prev)
			for j := prev + 1; j < i; j++ {
				out[j] = out[prev] + step*float64(j-prev)
			}
		}
		prev = i
	}
	if prev >= 0 {
		for j := prev + 1; j < len(out); j++ {
			out[j] = out[prev]
		}
	}
	return out
}

// EWM returns the exponentially weighted mean of values with centre of mass
// com (alpha = 1/(1+com)), using bias-adjusted weights. NaNs before the first
// observation stay NaN; later NaNs repeat the running mean.
func EWM(values []float64, com float64) []float64 {
	out := make([]float64, len(values))
	if com < 0 {
		com = 0
	}
	decay := 1 - 1/(1+com)
	num, den := 0.0, 0.0
	started := false
	for i, v := range values {
		if math.IsNaN(v) {
			if started {
				num *= decay
				den *= decay
				out[i] = num / den
			} else {
				out[i] = math.NaN()
			}
			continue
		}
		num = v + decay*num
		den = 1 + decay*den
		started = true
		out[i] = num / den
	}
	return out
}

// Stat summarizes one series.
type Stat struct {
	Count     int     `json:"count"`
	Last      float64 `json:"last"`
	Best      float64 `json:"best"`
	BestEpoch int     `json:"bestEpoch"`
}

// FieldSummary holds the train and test statistics of one field.
type FieldSummary struct {
	Field string `json:"field"`
	Train *Stat  `json:"train,omitempty"`
	Test  *Stat  `json:"test,omitempty"`
}

// RunSummary summarizes one run directory.
type RunSummary struct {
	Run     string         `json:"run"`
	Dir     string         `json:"dir"`
	Epochs  int            `json:"epochs"`
	Skipped int            `json:"skippedLines"`
	Fields  []FieldSummary `json:"fields"`
}

// HigherIsBetter reports whether larger values of field are improvements.
func HigherIsBetter(field string) bool {
	return field == "mAP" || strings.HasPrefix(field, "AP")
}

// Summarize computes the statistics of fields for l after smoothing with centre
// of mass com. train_/test_ series are interpolated across missing epochs
// first; mAP and AP only use the epochs that were evaluated.
func Summarize(l *Log, fields []string, com float64) RunSummary {
	if len(fields) == 0 {
		fields = DefaultFields
	}
	epochs := l.Epochs()
	summary := RunSummary{Run: l.Name(), Dir: l.Dir, Epochs: len(l.Entries), Skipped: l.Skipped}
	for _, field := range fields {
		fs := FieldSummary{Field: field}
		higher := HigherIsBetter(field)
		if field == "mAP" || field == "AP" {
			values, evaluated := dropMissing(l.Series(field), epochs)
			fs.Test = stat(EWM(values, com), evaluated, higher)
		} else {
			fs.Train = stat(EWM(Interpolate(l.Series("train_"+field)), com), epochs, higher)
			fs.Test = stat(EWM(Interpolate(l.Series("test_"+field)), com), epochs, higher)
		}
		summary.Fields = append(summary.Fields, fs)
	}
	return summary
}

// dropMissing keeps only the epochs that have a value. COCO stats exist only
// for evaluated epochs, so gaps are skipped rather than filled.
func dropMissing(values []float64, epochs []int) ([]float64, []int) {
	var outValues []float64
	var outEpochs []int
	for i, v := range values {
		if math.IsNaN(v) {
			continue
		}
		outValues = append(outValues, v)
		outEpochs = append(outEpochs, epochs[i])
	}
	return outValues, outEpochs
}

func stat(values []float64, epochs []int, higherIsBetter bool) *Stat {
	var s Stat
	for i, v := range values {
		if math.IsNaN(v) {
			continue
		}
		better := s.Count == 0 || (higherIsBetter && v > s.Best) || (!higherIsBetter && v < s.Best)
		if better {
			s.Best = v
			s.BestEpoch = epochs[i]
		}
		s.Last = v
		s.Count++
	}
	if s.Count == 0 {
		return nil
	}
	return &s
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	runStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("255"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

// RenderSummaries writes a table per run.
func RenderSummaries(out io.Writer, summaries []RunSummary) {
	for i, s := range summaries {
		if i > 0 {
			fmt.Fprintln(out)
		}
		fmt.Fprintln(out, runStyle.Render(fmt.Sprintf("%s (%s)", s.Run, s.Dir)))
		meta := fmt.Sprintf("epochs: %d", s.Epochs)
		if s.Skipped > 0 {
			meta += fmt.Sprintf(", skipped lines: %d", s.Skipped)
		}
		fmt.Fprintln(out, mutedStyle.Render(meta))
		fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("  %-22s %-6s %12s %12s %10s", "field", "split", "last", "best", "best@epoch")))
		for _, f := range s.Fields {
			writeStatRow(out, f.Field, "train", f.Train)
			writeStatRow(out, f.Field, "test", f.Test)
		}
	}
}

func writeStatRow(out io.Writer, field, split string, s *Stat) {
	if s == nil {
		return
	}
	fmt.Fprintf(out, "  %-22s %-6s %12.4f %12.4f %10d\n", field, split, s.Last, s.Best, s.BestEpoch)
}
