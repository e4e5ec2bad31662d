// internal/report/report_test.go
package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/mwiater/detrun/internal/evalmetric"
	"github.com/mwiater/detrun/internal/trainlog"
)

func sampleEvaluation() evalmetric.Report {
	return evalmetric.Report{
		Threshold: 0.5,
		Categories: []evalmetric.CategoryResult{
			{CategoryID: 1, Name: "small-vehicle", GroundTruth: 10, Predictions: 12, APIoU: 0.4, APIoP: 0.7, Diff: 0.3},
			{CategoryID: 2, Name: "ship|boat", GroundTruth: 3, Predictions: 1, APIoU: 0.5, APIoP: 0.25, Diff: -0.25},
		},
		MeanIoU: 0.45,
		MeanIoP: 0.475,
		Diff:    0.025,
	}
}

func TestFromEvaluation(t *testing.T) {
	table := FromEvaluation(sampleEvaluation())
	if table.Title != "AP@IoU>0.5 vs AP@IoP>0.5" {
		t.Fatalf("unexpected title %q", table.Title)
	}
	if len(table.Rows) != 3 {
		t.Fatalf("expected 2 categories plus mean, got %d rows", len(table.Rows))
	}
	if got := table.Rows[0]; got[0] != "1 (small-vehicle)" || got[3] != "0.4000" || got[5] != "+0.3000" {
		t.Fatalf("unexpected first row %v", got)
	}
	if got := table.Rows[2]; got[0] != "mean" || got[5] != "+0.0250" {
		t.Fatalf("unexpected mean row %v", got)
	}

	empty := FromEvaluation(evalmetric.Report{Threshold: 0.5})
	if len(empty.Notes) != 1 {
		t.Fatalf("expected a note for an empty report, got %v", empty.Notes)
	}
}

func TestWriteText(t *testing.T) {
	var buf bytes.Buffer
	WriteText(&buf, FromEvaluation(sampleEvaluation()))
	out := buf.String()
	for _, want := range []string{"AP@IoU", "1 (small-vehicle)", "-0.2500", "mean"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestWriteMarkdown(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteMarkdown(&buf, FromEvaluation(sampleEvaluation())); err != nil {
		t.Fatalf("WriteMarkdown error: %v", err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "## AP@IoU>0.5 vs AP@IoP>0.5\n\n| Category | GT | Preds | AP@IoU | AP@IoP | Diff |\n| --- | ---: |") {
		t.Fatalf("unexpected markdown header:\n%s", out)
	}
	if !strings.Contains(out, `2 (ship\|boat)`) {
		t.Fatalf("pipes must be escaped:\n%s", out)
	}
}

func TestFromSummaries(t *testing.T) {
	summaries := []trainlog.RunSummary{{
		Run:     "uda",
		Dir:     "exp/uda",
		Epochs:  4,
		Skipped: 1,
		Fields: []trainlog.FieldSummary{
			{Field: "class_error", Train: &trainlog.Stat{Count: 4, Last: 20, Best: 18, BestEpoch: 2}, Test: &trainlog.Stat{Count: 4, Last: 30, Best: 29, BestEpoch: 3}},
			{Field: "mAP", Test: &trainlog.Stat{Count: 4, Last: 0.3, Best: 0.31, BestEpoch: 2}},
		},
	}}
	tables := FromSummaries(summaries)
	if len(tables) != 1 || len(tables[0].Rows) != 3 {
		t.Fatalf("unexpected tables %+v", tables)
	}
	if got := tables[0].Rows[2]; got[0] != "mAP" || got[1] != "test" || got[4] != "2" {
		t.Fatalf("unexpected mAP row %v", got)
	}
	if len(tables[0].Notes) != 3 {
		t.Fatalf("expected directory, epoch and skipped notes, got %v", tables[0].Notes)
	}

	var buf bytes.Buffer
	if err := WriteMarkdown(&buf, tables...); err != nil {
		t.Fatalf("WriteMarkdown error: %v", err)
	}
	if !strings.Contains(buf.String(), "- skipped lines: 1") {
		t.Fatalf("expected notes as a list:\n%s", buf.String())
	}
}

func TestWritePDF(t *testing.T) {
	var buf bytes.Buffer
	if err := WritePDF(&buf, FromEvaluation(sampleEvaluation())); err != nil {
		t.Fatalf("WritePDF error: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")) {
		t.Fatalf("output is not a PDF: %q", buf.Bytes()[:min(16, buf.Len())])
	}
}
