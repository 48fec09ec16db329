// Package progress renders run progress for long-running analyses
package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"k8s.io/utils/clock"
)

// Reporter receives run progress. Implementations must not block and never
// affect the outcome of a run.
type Reporter interface {
	Start(total int)
	Update(completed int, message string)
	Complete(message string)
}

// Nop discards every event
type Nop struct{}

// Start implements Reporter
func (Nop) Start(int) {}

// Update implements Reporter
func (Nop) Update(int, string) {}

// Complete implements Reporter
func (Nop) Complete(string) {}

// Mode selects how a Bar renders
type Mode int

const (
	// ModeTTY redraws a single spinner line in place
	ModeTTY Mode = iota
	// ModeCI prints append-only milestone lines
	ModeCI
)

const (
	defaultWidth    = 50
	defaultInterval = 80 * time.Millisecond
	maxMessageLen   = 40
)

var (
	frames     = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
	milestones = []int{25, 50, 75, 100}
)

// Options configures a Bar
type Options struct {
	Writer   io.Writer        // Destination (default: stdout)
	Mode     Mode             // Rendering mode (see DetectMode)
	Width    int              // Bar width in cells (default: 50)
	Interval time.Duration    // Spinner frame interval (default: 80ms)
	Clock    clock.WithTicker // Time source with tickers (default: real clock)
}

// Bar is a Reporter that draws a spinner and progress bar on a terminal,
// or milestone lines when running in CI
type Bar struct {
	out      io.Writer
	mode     Mode
	width    int
	interval time.Duration
	clock    clock.WithTicker

	mu            sync.Mutex
	total         int
	completed     int
	message       string
	frame         int
	startTime     time.Time
	nextMilestone int
	active        bool
	done          chan struct{}
	wg            sync.WaitGroup
}

// New creates a new Bar
func New(opts Options) *Bar {
	if opts.Writer == nil {
		opts.Writer = os.Stdout
	}
	if opts.Width <= 0 {
		opts.Width = defaultWidth
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}

	return &Bar{
		out:      opts.Writer,
		mode:     opts.Mode,
		width:    opts.Width,
		interval: opts.Interval,
		clock:    opts.Clock,
	}
}

// DetectMode returns ModeCI when running in CI or when stdout is not a terminal
func DetectMode(inCI bool) Mode {
	if inCI {
		return ModeCI
	}
	fd := os.Stdout.Fd()
	if !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd) {
		return ModeCI
	}
	return ModeTTY
}

// Start implements Reporter
func (b *Bar) Start(total int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.active {
		return
	}
	b.active = true
	b.total = total
	b.completed = 0
	b.nextMilestone = 0
	b.startTime = b.clock.Now()

	if b.mode == ModeCI {
		_, _ = fmt.Fprintf(b.out, "%s Starting analysis of %d URL(s)...\n", color.CyanString("⏳"), total)
		return
	}

	// Hide cursor
	_, _ = fmt.Fprint(b.out, "\x1b[?25l")
	b.render()

	b.done = make(chan struct{})
	b.wg.Add(1)
	go b.spin(b.done)
}

// Update implements Reporter
func (b *Bar) Update(completed int, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.active {
		return
	}
	b.completed = min(max(completed, 0), b.total)
	if message != "" {
		b.message = message
	}

	if b.mode == ModeCI {
		b.printMilestones()
		return
	}
	b.render()
}

// Complete implements Reporter
func (b *Bar) Complete(message string) {
	if !b.stop() {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.completed = b.total
	elapsed := int(b.clock.Since(b.startTime).Seconds())
	summary := fmt.Sprintf("Analyzing Progress | 100%% | %d/%d URLs | %ds total", b.total, b.total, elapsed)

	if b.mode == ModeCI {
		_, _ = fmt.Fprintf(b.out, "%s %s\n", color.GreenString("✅"), summary)
		if message != "" {
			_, _ = fmt.Fprintf(b.out, "   %s\n", message)
		}
		return
	}

	_, _ = fmt.Fprintf(b.out, "\x1b[2K\r%s Analyzing Progress |%s| 100%% | %d/%d URLs | %ds total",
		color.GreenString("✅"), strings.Repeat("█", b.width), b.total, b.total, elapsed)
	if message != "" {
		_, _ = fmt.Fprintf(b.out, "\n  %s", message)
	}
	// Show cursor
	_, _ = fmt.Fprint(b.out, "\n\x1b[?25h")
}

// Fail ends an aborted run without drawing a full bar
func (b *Bar) Fail(message string) {
	if !b.stop() {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.mode == ModeCI {
		_, _ = fmt.Fprintf(b.out, "%s %s\n", color.RedString("❌"), message)
		return
	}
	_, _ = fmt.Fprintf(b.out, "\x1b[2K\r%s %s\n\x1b[?25h", color.RedString("❌"), message)
}

// stop deactivates the bar and waits for the spinner to exit. It reports
// whether the bar was running.
func (b *Bar) stop() bool {
	b.mu.Lock()
	if !b.active {
		b.mu.Unlock()
		return false
	}
	b.active = false
	done := b.done
	b.done = nil
	b.mu.Unlock()

	// The spinner takes the lock, so it must exit before the final draw
	if done != nil {
		close(done)
		b.wg.Wait()
	}
	return true
}

// spin advances the spinner frame until done is closed
func (b *Bar) spin(done <-chan struct{}) {
	defer b.wg.Done()

	ticker := b.clock.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C():
			b.mu.Lock()
			if b.active {
				b.frame = (b.frame + 1) % len(frames)
				b.render()
			}
			b.mu.Unlock()
		}
	}
}

// render redraws the progress line; callers hold the lock
func (b *Bar) render() {
	_, _ = fmt.Fprint(b.out, "\x1b[2K"+b.line())
}

// line builds the TTY progress line
func (b *Bar) line() string {
	percent, filled := 0, 0
	if b.total > 0 {
		percent = b.completed * 100 / b.total
		filled = b.completed * b.width / b.total
	}

	line := fmt.Sprintf("\r%s Analyzing Progress |%s%s| %d%% | %d/%d URLs",
		color.CyanString(frames[b.frame]),
		strings.Repeat("█", filled), strings.Repeat("░", b.width-filled),
		percent, b.completed, b.total)

	if b.message != "" {
		line += " - " + truncate(b.message, maxMessageLen)
	}
	return line
}

// printMilestones prints one line when the update crosses a 25% milestone;
// callers hold the lock
func (b *Bar) printMilestones() {
	if b.total <= 0 {
		return
	}
	percent := b.completed * 100 / b.total
	crossed := false
	for b.nextMilestone < len(milestones) && percent >= milestones[b.nextMilestone] {
		b.nextMilestone++
		crossed = true
	}
	if crossed {
		_, _ = fmt.Fprintf(b.out, "   Progress: %d/%d URLs (%d%%)\n", b.completed, b.total, percent)
	}
}

// truncate shortens s to at most n runes, marking the cut with an ellipsis
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
