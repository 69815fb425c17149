package filters

import (
	"time"

	"github.com/danielsiegl/dumpfilter/internal/timing"
)

// Step is the tracker's verdict for one line.
type Step struct {
	Category Category
	// Forward is false only for INSERT lines of an excluded table.
	Forward bool
	// Closed holds the phase that ended on this line, if any.
	Closed *timing.Observation
	// Opened names the table whose definition started on this line.
	Opened string
	// Excluded reports whether Opened is in the exclusion set.
	Excluded bool
}

// Tracker is the per-line state machine: it follows which table the dump is
// inside, measures phase durations and decides whether a line is forwarded.
// A Tracker is not safe for concurrent use.
type Tracker struct {
	exclude ExclusionSet
	now     func() time.Time
	phase   Phase
	skip    bool
}

// NewTracker returns a Tracker in the Idle phase. A nil clock means time.Now.
func NewTracker(exclude ExclusionSet, clock func() time.Time) *Tracker {
	if clock == nil {
		clock = time.Now
	}
	return &Tracker{exclude: exclude, now: clock, phase: Idle{}}
}

// Phase returns the live phase.
func (t *Tracker) Phase() Phase { return t.phase }

// Skipping reports the current skip flag.
func (t *Tracker) Skipping() bool { return t.skip }

// Step classifies line, advances the state machine and returns the verdict.
func (t *Tracker) Step(line []byte) Step {
	st := Step{Category: Classify(line)}

	switch st.Category {
	case TableDefinitionStart:
		name, ok := TableName(line)
		if !ok {
			// malformed definitions are ordinary content
			break
		}
		now := t.now()
		st.Closed = t.close(now)
		t.skip = t.exclude.Contains(name)
		t.phase = DefiningTable{Table: name, StartedAt: now}
		st.Opened, st.Excluded = name, t.skip

	case RowInsertionStart:
		def, ok := t.phase.(DefiningTable)
		if !ok {
			break
		}
		now := t.now()
		st.Closed = t.close(now)
		if t.skip {
			t.phase = Idle{}
		} else {
			t.phase = InsertingRows{Table: def.Table, StartedAt: now}
		}

	case PhaseEndMarker:
		if _, ok := t.phase.(InsertingRows); ok {
			st.Closed = t.close(t.now())
		}
		t.phase = Idle{}
	}

	st.Forward = !(t.skip && st.Category == RowInsertionStart)
	return st
}

// Finish closes whatever phase is still live at end of input.
func (t *Tracker) Finish() (timing.Observation, bool) {
	obs := t.close(t.now())
	t.phase = Idle{}
	if obs == nil {
		return timing.Observation{}, false
	}
	return *obs, true
}

func (t *Tracker) close(now time.Time) *timing.Observation {
	obs, ok := closeAt(t.phase, now)
	if !ok {
		return nil
	}
	return &obs
}
