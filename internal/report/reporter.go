// Package report prints the build estimate as plain status lines.
package report

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/build-progress/internal/clock"
	"github.com/JakeFAU/build-progress/internal/estimator"
)

// Options configures the reporter.
type Options struct {
	// Output is where status lines go.
	// Default: os.Stderr
	Output io.Writer

	// Prefix starts every line.
	// Default: "[build]"
	Prefix string

	// MinStep is the smallest change in the estimate that prints a new line.
	// Default: 0.01
	MinStep float64

	// Clock measures elapsed time.
	// Default: the system clock
	Clock clock.Clock
}

// Reporter renders estimator snapshots as text. One Reporter can serve
// consecutive builds; Finish resets it.
type Reporter struct {
	opts Options

	mu      sync.Mutex
	started time.Time
	printed bool
	last    float64
}

// NewReporter creates a Reporter.
func NewReporter(opts Options) *Reporter {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	if strings.TrimSpace(opts.Prefix) == "" {
		opts.Prefix = "[build]"
	}
	if opts.MinStep <= 0 {
		opts.MinStep = 0.01
	}
	if opts.Clock == nil {
		opts.Clock = clock.NewSystem()
	}
	return &Reporter{opts: opts}
}

// Start begins timing a build and forgets any update left by an abandoned
// one. Render starts the clock itself when Start was not called.
func (r *Reporter) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = r.opts.Clock.Now()
	r.printed = false
	r.last = 0
}

// Render prints a status line when the estimate moved by at least MinStep
// since the last printed line. The first update of a build always prints.
func (r *Reporter) Render(s estimator.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.opts.Clock.Now()
	if r.started.IsZero() {
		r.started = now
	}
	if r.printed && math.Abs(s.Percent-r.last) < r.opts.MinStep {
		return
	}
	r.printed = true
	r.last = s.Percent
	fmt.Fprintln(r.opts.Output, r.line(s, now.Sub(r.started), ""))
}

// Finish prints the final line and resets the reporter for the next build.
func (r *Reporter) Finish(s estimator.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.opts.Clock.Now()
	if r.started.IsZero() {
		r.started = now
	}
	fmt.Fprintln(r.opts.Output, r.line(s, now.Sub(r.started), "Complete!"))
	r.started = time.Time{}
	r.printed = false
	r.last = 0
}

// line formats one status line. Counters are shown only in warm mode, where
// the previous build's totals give them meaning.
func (r *Reporter) line(s estimator.Snapshot, elapsed time.Duration, suffix string) string {
	parts := []string{fmt.Sprintf("%s %5.1f%%", r.opts.Prefix, s.Percent*100)}
	if s.Mode == estimator.ModeWarm {
		parts = append(parts,
			fmt.Sprintf("Transforms: %d/%d", s.TransformCurrent, s.TransformTotal),
			fmt.Sprintf("Chunks: %d/%d", s.ChunkCurrent, s.ChunkTotal),
		)
	}
	parts = append(parts, "Time: "+FormatElapsed(elapsed))
	if suffix != "" {
		parts = append(parts, suffix)
	}
	return strings.Join(parts, " | ")
}

// FormatElapsed renders d as seconds with one decimal, switching to minutes
// past one minute.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	m := int(d.Minutes())
	s := d.Seconds() - float64(m*60)
	return fmt.Sprintf("%dm %.1fs", m, s)
}
