// Package progress draws an advisory one-line progress bar for a dump pass:
// bar, bytes processed, ETA and the table currently being streamed.
package progress

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/muesli/termenv"
)

const (
	clearLine       = "\r\x1b[2K"
	defaultWidth    = 40
	defaultInterval = 100 * time.Millisecond
	idleMessage     = "Processing..."
)

// Bar is a progress bar redrawn by a background ticker. All drawing happens
// under one lock, so text written inside Suspend never interleaves with a
// partially drawn bar.
type Bar struct {
	mu      sync.Mutex
	w       io.Writer
	total   int64
	current atomic.Int64
	message string
	model   progress.Model
	started time.Time
	now     func() time.Time
	table   lipgloss.Style
	skipped lipgloss.Style
	drawn   bool
	closed  bool

	stop chan struct{}
	done chan struct{}
}

// Option configures a Bar.
type Option func(*Bar)

// WithClock replaces time.Now for ETA computation.
func WithClock(now func() time.Time) Option {
	return func(b *Bar) { b.now = now }
}

// WithWidth sets the bar width in cells.
func WithWidth(width int) Option {
	return func(b *Bar) { b.model.Width = width }
}

// New returns a Bar for total bytes drawing to w. Colours are always on;
// callers decide whether w is a terminal.
func New(w io.Writer, total int64, opts ...Option) *Bar {
	renderer := lipgloss.NewRenderer(w)
	renderer.SetColorProfile(termenv.ANSI256)

	b := &Bar{
		w:     w,
		total: total,
		model: progress.New(
			progress.WithDefaultGradient(),
			progress.WithWidth(defaultWidth),
			progress.WithoutPercentage(),
			progress.WithColorProfile(termenv.ANSI256),
		),
		now:     time.Now,
		table:   renderer.NewStyle().Foreground(lipgloss.Color("2")),
		skipped: renderer.NewStyle().Foreground(lipgloss.Color("8")),
		message: idleMessage,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.started = b.now()
	return b
}

// Start redraws the bar every interval until Finish. A zero interval uses
// 100ms.
func (b *Bar) Start(interval time.Duration) {
	if interval <= 0 {
		interval = defaultInterval
	}
	b.mu.Lock()
	if b.stop != nil || b.closed {
		b.mu.Unlock()
		return
	}
	b.stop = make(chan struct{})
	b.done = make(chan struct{})
	b.mu.Unlock()

	go b.tick(interval)
}

func (b *Bar) tick(interval time.Duration) {
	defer close(b.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			b.mu.Lock()
			b.draw()
			b.mu.Unlock()
		}
	}
}

// Add records n more bytes processed.
func (b *Bar) Add(n int) {
	b.current.Add(int64(n))
}

// EnterTable shows the table being streamed, dimmed and marked when its
// rows are skipped.
func (b *Bar) EnterTable(table string, excluded bool) {
	name := b.table.Render(table)
	if excluded {
		name = b.skipped.Render(table) + " (skip)"
	}
	b.SetMessage("Table: " + name)
}

// LeaveTables resets the message after an UNLOCK TABLES; line.
func (b *Bar) LeaveTables() {
	b.SetMessage(idleMessage)
}

// SetMessage replaces the text shown after the counters.
func (b *Bar) SetMessage(msg string) {
	b.mu.Lock()
	b.message = msg
	b.mu.Unlock()
}

// Suspend clears the bar, runs fn and draws the bar again.
func (b *Bar) Suspend(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.drawn {
		_, _ = io.WriteString(b.w, clearLine)
		b.drawn = false
	}
	fn()
	if b.stop != nil && !b.closed {
		b.draw()
	}
}

// Finish stops the ticker and clears the bar. It is safe to call twice.
func (b *Bar) Finish() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	stop, done := b.stop, b.done
	b.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.drawn {
		_, _ = io.WriteString(b.w, clearLine)
		b.drawn = false
	}
}

// View returns the bar line as it would be drawn now.
func (b *Bar) View() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.view()
}

func (b *Bar) draw() {
	if b.closed {
		return
	}
	_, _ = io.WriteString(b.w, clearLine+b.view())
	b.drawn = true
}

func (b *Bar) view() string {
	current := b.current.Load()
	var sb strings.Builder
	sb.WriteString(b.model.ViewAs(b.fraction(current)))
	fmt.Fprintf(&sb, " %s/%s (%s) %s",
		humanize.IBytes(uint64(current)),
		humanize.IBytes(uint64(b.total)),
		b.eta(current),
		b.message)
	return sb.String()
}

func (b *Bar) fraction(current int64) float64 {
	if b.total <= 0 {
		return 0
	}
	f := float64(current) / float64(b.total)
	if f > 1 {
		return 1
	}
	return f
}

func (b *Bar) eta(current int64) string {
	if current <= 0 || b.total <= 0 {
		return "?"
	}
	remaining := b.total - current
	if remaining <= 0 {
		return "0s"
	}
	elapsed := b.now().Sub(b.started)
	left := time.Duration(float64(elapsed) * float64(remaining) / float64(current))
	return left.Round(time.Second).String()
}
