package compression

import (
	"context"
	"log/slog"
	"os/exec"
	"sync"
	"time"
)

// failureThreshold is the number of consecutive primary failures after
// which the cached availability verdict is discarded and re-probed.
const failureThreshold = 3

// ExecCommandContext is exec.CommandContext by default, but can be
// overridden in tests.
var ExecCommandContext = exec.CommandContext

// Probe checks whether the Ghostscript binary is present and runnable.
// The verdict is cached for the process lifetime; repeated primary
// invocation failures invalidate the cache so a broken installation is
// re-checked instead of being trusted forever.
type Probe struct {
	binPath string
	timeout time.Duration
	logger  *slog.Logger

	mu       sync.Mutex
	cached   *bool
	failures int
}

// NewProbe creates a probe for the given Ghostscript binary path.
func NewProbe(binPath string, timeout time.Duration, logger *slog.Logger) *Probe {
	if logger == nil {
		logger = slog.Default()
	}
	return &Probe{binPath: binPath, timeout: timeout, logger: logger}
}

// Available reports whether the primary backend is usable. The check runs
// a bounded-time version query and never touches any document.
func (p *Probe) Available(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cached != nil {
		return *p.cached
	}

	verdict := p.check(ctx)
	p.cached = &verdict
	p.logger.Info("probed primary backend", "binary", p.binPath, "available", verdict)
	return verdict
}

func (p *Probe) check(ctx context.Context) bool {
	if p.binPath == "" {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := ExecCommandContext(ctx, p.binPath, "--version")
	return cmd.Run() == nil
}

// ReportFailure records a primary invocation failure. After three
// consecutive failures the cached verdict is dropped.
func (p *Probe) ReportFailure() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.failures++
	if p.failures >= failureThreshold && p.cached != nil {
		p.logger.Warn("primary backend failing repeatedly, invalidating availability cache", "failures", p.failures)
		p.cached = nil
		p.failures = 0
	}
}

// ReportSuccess resets the consecutive failure counter.
func (p *Probe) ReportSuccess() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures = 0
}
