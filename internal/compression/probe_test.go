package compression

import (
	"context"
	"os/exec"
	"testing"
	"time"
)

func TestProbe_EmptyPathUnavailable(t *testing.T) {
	p := NewProbe("", time.Second, nil)
	if p.Available(context.Background()) {
		t.Error("Expected empty binary path to be unavailable")
	}
}

func TestProbe_MissingBinaryUnavailable(t *testing.T) {
	p := NewProbe("/nonexistent/binary/gs", time.Second, nil)
	if p.Available(context.Background()) {
		t.Error("Expected missing binary to be unavailable")
	}
}

func TestProbe_AvailableBinary(t *testing.T) {
	// Any binary that exits 0 when asked for its version stands in for gs.
	path, err := exec.LookPath("true")
	if err != nil {
		t.Skip("true binary not found")
	}

	p := NewProbe(path, time.Second, nil)
	if !p.Available(context.Background()) {
		t.Error("Expected probe to report available")
	}
}

func TestProbe_CachesVerdict(t *testing.T) {
	p := NewProbe("/nonexistent/binary/gs", time.Second, nil)

	if p.Available(context.Background()) {
		t.Fatal("Expected unavailable")
	}

	// Swap in a working binary; the cached verdict must still be returned.
	path, err := exec.LookPath("true")
	if err != nil {
		t.Skip("true binary not found")
	}
	p.binPath = path

	if p.Available(context.Background()) {
		t.Error("Expected cached unavailable verdict to persist")
	}
}

func TestProbe_FailureInvalidatesCache(t *testing.T) {
	path, err := exec.LookPath("true")
	if err != nil {
		t.Skip("true binary not found")
	}

	p := NewProbe(path, time.Second, nil)
	if !p.Available(context.Background()) {
		t.Fatal("Expected available")
	}

	// Fewer than three failures keeps the cache.
	p.ReportFailure()
	p.ReportFailure()
	p.mu.Lock()
	cached := p.cached
	p.mu.Unlock()
	if cached == nil {
		t.Fatal("Expected cache retained below the failure threshold")
	}

	p.ReportFailure()
	p.mu.Lock()
	cached = p.cached
	p.mu.Unlock()
	if cached != nil {
		t.Error("Expected cache invalidated after three consecutive failures")
	}
}

func TestProbe_SuccessResetsFailures(t *testing.T) {
	path, err := exec.LookPath("true")
	if err != nil {
		t.Skip("true binary not found")
	}

	p := NewProbe(path, time.Second, nil)
	p.Available(context.Background())

	p.ReportFailure()
	p.ReportFailure()
	p.ReportSuccess()
	p.ReportFailure()

	p.mu.Lock()
	cached := p.cached
	p.mu.Unlock()
	if cached == nil {
		t.Error("Expected cache retained when failures are not consecutive")
	}
}
