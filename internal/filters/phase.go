package filters

import (
	"time"

	"github.com/danielsiegl/dumpfilter/internal/timing"
)

// Phase is the section of the dump currently being streamed. It is one of
// Idle, DefiningTable or InsertingRows.
type Phase interface {
	isPhase()
}

// Idle is outside any measured phase.
type Idle struct{}

// DefiningTable is inside a CREATE TABLE statement.
type DefiningTable struct {
	Table     string
	StartedAt time.Time
}

// InsertingRows is inside the INSERT INTO statements for Table.
type InsertingRows struct {
	Table     string
	StartedAt time.Time
}

func (Idle) isPhase()          {}
func (DefiningTable) isPhase() {}
func (InsertingRows) isPhase() {}

// closeAt builds the observation for ending p at now. Idle has nothing to close.
func closeAt(p Phase, now time.Time) (timing.Observation, bool) {
	switch p := p.(type) {
	case DefiningTable:
		return timing.Observation{Kind: timing.KindCreate, Table: p.Table, Duration: now.Sub(p.StartedAt)}, true
	case InsertingRows:
		return timing.Observation{Kind: timing.KindInsert, Table: p.Table, Duration: now.Sub(p.StartedAt)}, true
	}
	return timing.Observation{}, false
}
