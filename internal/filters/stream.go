package filters

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/danielsiegl/dumpfilter/internal/timing"
)

const readBufferSize = 64 * 1024

// Observer is told about the pass as it happens, for progress display. It
// must not write to the output stream.
type Observer interface {
	// Add reports n more input bytes consumed.
	Add(n int)
	// EnterTable reports that the definition of table started.
	EnterTable(table string, excluded bool)
	// LeaveTables reports an UNLOCK TABLES; boundary.
	LeaveTables()
	// Suspend runs fn while the observer's own rendering is paused.
	Suspend(fn func())
}

type nopObserver struct{}

func (nopObserver) Add(int)                 {}
func (nopObserver) EnterTable(string, bool) {}
func (nopObserver) LeaveTables()            {}
func (nopObserver) Suspend(fn func())       { fn() }

// Options configures one pass over a dump.
type Options struct {
	Exclude ExclusionSet
	// Sink receives timing observations. Nil disables timing output.
	Sink timing.Sink
	// Observer is notified of progress. Nil means no progress reporting.
	Observer Observer
	// Clock overrides time.Now for phase timing.
	Clock func() time.Time
}

// Stats summarises a completed pass.
type Stats struct {
	LinesRead    int64
	LinesDropped int64
	BytesRead    int64
	BytesWritten int64
	Observations int
}

// Stream copies the dump in 'in' to 'out' line by line, dropping INSERT INTO
// lines of excluded tables and reporting phase timings to opts.Sink.
// Lines keep their terminators and are otherwise written unchanged.
// A read, write or sink failure aborts the pass without closing the live phase.
func Stream(ctx context.Context, in io.Reader, out io.Writer, opts Options) (Stats, error) {
	var stats Stats
	obs := opts.Observer
	if obs == nil {
		obs = nopObserver{}
	}
	if opts.Exclude == nil {
		opts.Exclude = ExclusionSet{}
	}
	tracker := NewTracker(opts.Exclude, opts.Clock)

	report := func(o timing.Observation) error {
		if opts.Sink == nil {
			return nil
		}
		var err error
		obs.Suspend(func() { err = opts.Sink.Record(o) })
		if err != nil {
			return err
		}
		stats.Observations++
		return nil
	}

	bw := bufio.NewWriterSize(out, readBufferSize)
	br := bufio.NewReaderSize(in, readBufferSize)
	var buf []byte

	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		line, readErr := readLine(br, buf[:0])
		buf = line
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			slog.Error("Failed to read dump input", "line", stats.LinesRead+1, "error", readErr)
			return stats, fmt.Errorf("read dump line %d: %w", stats.LinesRead+1, readErr)
		}
		if len(line) == 0 {
			break
		}

		stats.LinesRead++
		stats.BytesRead += int64(len(line))
		obs.Add(len(line))

		step := tracker.Step(line)
		if step.Closed != nil {
			if err := report(*step.Closed); err != nil {
				return stats, err
			}
		}
		if step.Opened != "" {
			obs.EnterTable(step.Opened, step.Excluded)
		} else if step.Category == PhaseEndMarker {
			obs.LeaveTables()
		}

		if step.Forward {
			n, err := bw.Write(line)
			stats.BytesWritten += int64(n)
			if err != nil {
				return stats, fmt.Errorf("write output: %w", err)
			}
		} else {
			stats.LinesDropped++
		}

		if readErr != nil {
			break
		}
	}

	if o, ok := tracker.Finish(); ok {
		if err := report(o); err != nil {
			return stats, err
		}
	}
	if err := bw.Flush(); err != nil {
		return stats, fmt.Errorf("flush output: %w", err)
	}
	slog.Debug("Dump stream completed",
		"lines", stats.LinesRead,
		"dropped", stats.LinesDropped,
		"observations", stats.Observations)
	return stats, nil
}

// readLine appends the next line, terminator included, to buf. Lines longer
// than the reader's buffer are assembled from several reads. At end of input
// the final unterminated line is returned with io.EOF.
func readLine(br *bufio.Reader, buf []byte) ([]byte, error) {
	for {
		part, err := br.ReadSlice('\n')
		buf = append(buf, part...)
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return buf, err
	}
}
