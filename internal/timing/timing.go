// Package timing describes per-table phase timings measured while a dump is
// streamed, and the sinks that receive them.
package timing

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// ErrUnknownFormat is returned when a log format name is not recognised.
var ErrUnknownFormat = errors.New("unknown log format")

// Kind is the dump phase an observation was measured for.
type Kind int

const (
	KindCreate Kind = iota
	KindInsert
)

// Label is the statement prefix used in the default log form.
func (k Kind) Label() string {
	if k == KindCreate {
		return "CREATE TABLE"
	}
	return "INSERT INTO"
}

// Short is the statement keyword used in the csv log form.
func (k Kind) Short() string {
	if k == KindCreate {
		return "CREATE"
	}
	return "INSERT"
}

func (k Kind) String() string { return k.Short() }

// Observation is one closed phase.
type Observation struct {
	Kind     Kind
	Table    string
	Duration time.Duration
}

// Millis returns the duration truncated to whole milliseconds.
func (o Observation) Millis() int64 {
	return o.Duration.Milliseconds()
}

// Sink receives observations in the order phases close.
type Sink interface {
	Record(Observation) error
}

// Format selects how observations are rendered on the diagnostic stream.
// It implements pflag.Value so it can be bound directly to a flag.
type Format int

const (
	FormatDefault Format = iota
	FormatCSV
)

// ParseFormat maps a format name to its Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "default":
		return FormatDefault, nil
	case "csv":
		return FormatCSV, nil
	}
	return FormatDefault, fmt.Errorf("%w %q (want default or csv)", ErrUnknownFormat, s)
}

func (f Format) String() string {
	if f == FormatCSV {
		return "csv"
	}
	return "default"
}

func (f *Format) Set(s string) error {
	parsed, err := ParseFormat(s)
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

func (f *Format) Type() string { return "format" }

// Line renders o in format f, without a trailing newline.
func (f Format) Line(o Observation) string {
	if f == FormatCSV {
		return fmt.Sprintf("%s,%s,%d", o.Kind.Short(), o.Table, o.Millis())
	}
	return fmt.Sprintf("%s %s took %d ms", o.Kind.Label(), o.Table, o.Millis())
}

// Writer is a Sink writing one text record per observation.
type Writer struct {
	w      io.Writer
	format Format
}

// NewWriter returns a Sink rendering observations to w.
func NewWriter(w io.Writer, format Format) *Writer {
	return &Writer{w: w, format: format}
}

func (tw *Writer) Record(o Observation) error {
	if _, err := io.WriteString(tw.w, tw.format.Line(o)+"\n"); err != nil {
		return fmt.Errorf("write timing record: %w", err)
	}
	return nil
}

// Multi fans an observation out to every sink, stopping at the first error.
type Multi []Sink

func (m Multi) Record(o Observation) error {
	for _, s := range m {
		if err := s.Record(o); err != nil {
			return err
		}
	}
	return nil
}

// Collector keeps observations in memory.
type Collector struct {
	Observations []Observation
}

func (c *Collector) Record(o Observation) error {
	c.Observations = append(c.Observations, o)
	return nil
}
