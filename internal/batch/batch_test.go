package batch

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"pdfpress/internal/common"
	"pdfpress/internal/compression"
	"pdfpress/internal/config"
	"pdfpress/internal/pipeline"
	"pdfpress/internal/profile"
	"pdfpress/internal/testpdf"
)

func testOrchestrator(t *testing.T) (*Orchestrator, string) {
	t.Helper()
	cfg := &config.Config{
		WorkingDir:       t.TempDir(),
		MemoryThreshold:  config.DefaultMemoryThreshold,
		MaxDocumentBytes: config.DefaultMaxDocumentBytes,
		MaxWorkers:       3,
		TimeoutBase:      30 * time.Second,
		TimeoutPerMB:     time.Second,
		TimeoutCeiling:   time.Minute,
		ProbeTimeout:     time.Second,
	}
	// Empty binary path keeps the primary backend permanently unavailable,
	// so every document exercises the in-process path.
	probe := compression.NewProbe("", time.Second, nil)
	fallback := compression.NewFallback(nil)
	p := pipeline.New(cfg, probe, fallback, fallback, nil)
	return NewOrchestrator(cfg, p, nil), filepath.Join(cfg.WorkingDir, "out")
}

func doc(name string, data []byte) pipeline.SourceDocument {
	return pipeline.SourceDocument{ID: common.GenerateUUID(), Filename: name, Data: data}
}

func TestProcessBatch_EmptyBatch(t *testing.T) {
	o, destDir := testOrchestrator(t)
	_, err := o.ProcessBatch(context.Background(), nil, profile.Medium, compression.DefaultOptions(), destDir, nil)
	if !errors.Is(err, ErrEmptyBatch) {
		t.Errorf("Expected ErrEmptyBatch, got %v", err)
	}
}

func TestProcessBatch_UnknownLevel(t *testing.T) {
	o, destDir := testOrchestrator(t)
	docs := []pipeline.SourceDocument{doc("a.pdf", testpdf.TextPDF("a"))}
	_, err := o.ProcessBatch(context.Background(), docs, profile.Level("bogus"), compression.DefaultOptions(), destDir, nil)
	if !errors.Is(err, profile.ErrUnknownLevel) {
		t.Errorf("Expected ErrUnknownLevel, got %v", err)
	}
}

func TestProcessBatch_OneResultPerDocument(t *testing.T) {
	o, destDir := testOrchestrator(t)
	docs := []pipeline.SourceDocument{
		doc("a.pdf", testpdf.TextPDF("first")),
		doc("broken.pdf", testpdf.Corrupt()),
		doc("c.pdf", testpdf.TextPDF("third")),
	}

	report, err := o.ProcessBatch(context.Background(), docs, profile.Medium, compression.DefaultOptions(), destDir, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Results) != len(docs) {
		t.Fatalf("Expected %d results, got %d", len(docs), len(report.Results))
	}
	if report.Failed != 1 {
		t.Errorf("Expected exactly one failure, got %d", report.Failed)
	}
	if report.Succeeded+report.NoImprovement != 2 {
		t.Errorf("Expected two successful outcomes, got %d succeeded, %d no-improvement",
			report.Succeeded, report.NoImprovement)
	}
	if report.Results[1].Status != pipeline.StatusFailed {
		t.Errorf("Expected the corrupt document to fail, got %s", report.Results[1].Status)
	}
}

func TestProcessBatch_PreservesSubmissionOrder(t *testing.T) {
	o, destDir := testOrchestrator(t)

	var docs []pipeline.SourceDocument
	names := []string{"one.pdf", "two.pdf", "three.pdf", "four.pdf", "five.pdf", "six.pdf"}
	for _, name := range names {
		docs = append(docs, doc(name, testpdf.TextPDF(name)))
	}

	report, err := o.ProcessBatch(context.Background(), docs, profile.Medium, compression.DefaultOptions(), destDir, nil)
	if err != nil {
		t.Fatal(err)
	}
	for i, res := range report.Results {
		if res.Filename != names[i] {
			t.Errorf("Result %d: expected %s, got %s", i, names[i], res.Filename)
		}
		if res.ID != docs[i].ID {
			t.Errorf("Result %d: ID mismatch", i)
		}
	}
}

func TestProcessBatch_ProgressCallback(t *testing.T) {
	o, destDir := testOrchestrator(t)
	docs := []pipeline.SourceDocument{
		doc("a.pdf", testpdf.TextPDF("a")),
		doc("b.pdf", testpdf.TextPDF("b")),
		doc("c.pdf", testpdf.TextPDF("c")),
	}

	var snapshots []Progress
	_, err := o.ProcessBatch(context.Background(), docs, profile.Medium, compression.DefaultOptions(), destDir, func(p Progress) {
		snapshots = append(snapshots, p)
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(snapshots) != len(docs) {
		t.Fatalf("Expected %d progress snapshots, got %d", len(docs), len(snapshots))
	}
	for i, s := range snapshots {
		if s.Completed != i+1 {
			t.Errorf("Snapshot %d: expected completed %d, got %d", i, i+1, s.Completed)
		}
		if s.Total != len(docs) {
			t.Errorf("Snapshot %d: expected total %d, got %d", i, len(docs), s.Total)
		}
	}
	last := snapshots[len(snapshots)-1]
	if last.Fraction != 1 {
		t.Errorf("Expected final fraction 1, got %f", last.Fraction)
	}
}

func TestProcessBatch_BackendMarking(t *testing.T) {
	o, destDir := testOrchestrator(t)
	docs := []pipeline.SourceDocument{doc("img.pdf", testpdf.JPEGImagePDF(1000, 1000, 90))}

	report, err := o.ProcessBatch(context.Background(), docs, profile.Maximum, compression.DefaultOptions(), destDir, nil)
	if err != nil {
		t.Fatal(err)
	}
	if report.Results[0].Backend != compression.BackendFallback {
		t.Errorf("Expected fallback backend, got %s", report.Results[0].Backend)
	}
	if report.FallbackCount != 1 || report.PrimaryCount != 0 {
		t.Errorf("Expected counts fallback=1 primary=0, got fallback=%d primary=%d",
			report.FallbackCount, report.PrimaryCount)
	}
}

func TestProcessBatch_Aggregates(t *testing.T) {
	o, destDir := testOrchestrator(t)
	docs := []pipeline.SourceDocument{
		doc("img1.pdf", testpdf.JPEGImagePDF(1200, 1200, 90)),
		doc("img2.pdf", testpdf.JPEGImagePDF(800, 800, 90)),
		doc("broken.pdf", testpdf.Corrupt()),
	}

	report, err := o.ProcessBatch(context.Background(), docs, profile.Maximum, compression.DefaultOptions(), destDir, nil)
	if err != nil {
		t.Fatal(err)
	}

	var wantOriginal, wantCompressed int64
	for _, res := range report.Results {
		if res.Succeeded() {
			wantOriginal += res.OriginalSize
			wantCompressed += res.CompressedSize
		}
	}
	if report.TotalOriginalBytes != wantOriginal {
		t.Errorf("Expected original total %d, got %d", wantOriginal, report.TotalOriginalBytes)
	}
	if report.TotalCompressedBytes != wantCompressed {
		t.Errorf("Expected compressed total %d, got %d", wantCompressed, report.TotalCompressedBytes)
	}
	if report.SavedBytes() != wantOriginal-wantCompressed {
		t.Errorf("SavedBytes mismatch: %d", report.SavedBytes())
	}
	if report.SavingsPercent < 0 || report.SavingsPercent > 100 {
		t.Errorf("Savings percent out of range: %f", report.SavingsPercent)
	}
}

func TestProcessBatch_CancelledContext(t *testing.T) {
	o, destDir := testOrchestrator(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var docs []pipeline.SourceDocument
	for i := 0; i < 8; i++ {
		docs = append(docs, doc("doc.pdf", testpdf.TextPDF("payload")))
	}

	report, err := o.ProcessBatch(ctx, docs, profile.Medium, compression.DefaultOptions(), destDir, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Results) != len(docs) {
		t.Fatalf("Expected %d results even after cancellation, got %d", len(docs), len(report.Results))
	}
	for i, res := range report.Results {
		if res.Status == "" {
			t.Errorf("Result %d has no terminal status", i)
		}
	}
}
