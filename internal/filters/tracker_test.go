package filters

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielsiegl/dumpfilter/internal/timing"
)

// stepClock advances by step on every reading.
func stepClock(step time.Duration) func() time.Time {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		now = now.Add(step)
		return now
	}
}

func TestTrackerTransitions(t *testing.T) {
	tr := NewTracker(NewExclusionSet(), stepClock(time.Millisecond))
	assert.IsType(t, Idle{}, tr.Phase())

	st := tr.Step([]byte("CREATE TABLE `t1` (\n"))
	assert.Nil(t, st.Closed)
	assert.Equal(t, "t1", st.Opened)
	assert.True(t, st.Forward)
	require.IsType(t, DefiningTable{}, tr.Phase())
	assert.Equal(t, "t1", tr.Phase().(DefiningTable).Table)

	st = tr.Step([]byte("  `id` int NOT NULL\n"))
	assert.Nil(t, st.Closed)
	assert.IsType(t, DefiningTable{}, tr.Phase())

	st = tr.Step([]byte("INSERT INTO `t1` VALUES (1);\n"))
	require.NotNil(t, st.Closed)
	assert.Equal(t, timing.KindCreate, st.Closed.Kind)
	assert.Equal(t, "t1", st.Closed.Table)
	assert.Equal(t, time.Millisecond, st.Closed.Duration, "ordinary lines do not read the clock")
	require.IsType(t, InsertingRows{}, tr.Phase())

	// further inserts stay in the same phase
	st = tr.Step([]byte("INSERT INTO `t1` VALUES (2);\n"))
	assert.Nil(t, st.Closed)
	assert.True(t, st.Forward)

	st = tr.Step([]byte("UNLOCK TABLES;\n"))
	require.NotNil(t, st.Closed)
	assert.Equal(t, timing.KindInsert, st.Closed.Kind)
	assert.Equal(t, "t1", st.Closed.Table)
	assert.IsType(t, Idle{}, tr.Phase())

	_, ok := tr.Finish()
	assert.False(t, ok, "idle tracker has nothing to close")
}

func TestTrackerCreateClosesPreviousPhase(t *testing.T) {
	tr := NewTracker(NewExclusionSet(), stepClock(time.Millisecond))

	tr.Step([]byte("CREATE TABLE `a` (\n"))
	st := tr.Step([]byte("CREATE TABLE `b` (\n"))
	require.NotNil(t, st.Closed)
	assert.Equal(t, timing.Observation{Kind: timing.KindCreate, Table: "a", Duration: time.Millisecond}, *st.Closed)

	tr.Step([]byte("INSERT INTO `b` VALUES (1);\n"))
	st = tr.Step([]byte("CREATE TABLE `c` (\n"))
	require.NotNil(t, st.Closed)
	assert.Equal(t, timing.KindInsert, st.Closed.Kind)
	assert.Equal(t, "b", st.Closed.Table)

	obs, ok := tr.Finish()
	require.True(t, ok)
	assert.Equal(t, timing.KindCreate, obs.Kind)
	assert.Equal(t, "c", obs.Table)
	assert.IsType(t, Idle{}, tr.Phase())
}

func TestTrackerExcludedTable(t *testing.T) {
	tr := NewTracker(NewExclusionSet("t1"), stepClock(time.Millisecond))

	st := tr.Step([]byte("CREATE TABLE `t1` (\n"))
	assert.True(t, st.Forward, "definition of an excluded table is kept")
	assert.True(t, st.Excluded)
	assert.True(t, tr.Skipping())

	st = tr.Step([]byte("INSERT INTO `t1` VALUES (1);\n"))
	assert.False(t, st.Forward)
	require.NotNil(t, st.Closed)
	assert.Equal(t, timing.KindCreate, st.Closed.Kind)
	assert.IsType(t, Idle{}, tr.Phase(), "no insert phase is opened for an excluded table")

	st = tr.Step([]byte("INSERT INTO `t1` VALUES (2);\n"))
	assert.False(t, st.Forward)
	assert.Nil(t, st.Closed, "the definition phase is only closed once")

	st = tr.Step([]byte("UNLOCK TABLES;\n"))
	assert.True(t, st.Forward)
	assert.Nil(t, st.Closed)

	// the skip flag holds until the next table definition
	st = tr.Step([]byte("INSERT INTO `t1` VALUES (3);\n"))
	assert.False(t, st.Forward)

	st = tr.Step([]byte("CREATE TABLE `t2` (\n"))
	assert.False(t, st.Excluded)
	assert.False(t, tr.Skipping())
	st = tr.Step([]byte("INSERT INTO `t2` VALUES (1);\n"))
	assert.True(t, st.Forward)
}

func TestTrackerMalformedCreateIsOrdinary(t *testing.T) {
	tr := NewTracker(NewExclusionSet("t1"), stepClock(time.Millisecond))

	tr.Step([]byte("CREATE TABLE `t1` (\n"))
	tr.Step([]byte("INSERT INTO `t1` VALUES (1);\n"))

	st := tr.Step([]byte("CREATE TABLE\n"))
	assert.Equal(t, TableDefinitionStart, st.Category)
	assert.True(t, st.Forward)
	assert.Nil(t, st.Closed)
	assert.Empty(t, st.Opened)
	assert.True(t, tr.Skipping(), "skip flag untouched by a malformed definition")
	assert.IsType(t, Idle{}, tr.Phase())
}

func TestTrackerInsertOutsideDefinition(t *testing.T) {
	tr := NewTracker(NewExclusionSet(), stepClock(time.Millisecond))

	st := tr.Step([]byte("INSERT INTO `orphan` VALUES (1);\n"))
	assert.Nil(t, st.Closed)
	assert.True(t, st.Forward)
	assert.IsType(t, Idle{}, tr.Phase())
}

func TestTrackerUnlockDuringDefinition(t *testing.T) {
	tr := NewTracker(NewExclusionSet(), stepClock(time.Millisecond))

	tr.Step([]byte("CREATE TABLE `empty` (\n"))
	st := tr.Step([]byte("UNLOCK TABLES;\n"))
	assert.Nil(t, st.Closed, "only an insert phase is measured at UNLOCK TABLES")
	assert.IsType(t, Idle{}, tr.Phase())
}

func TestTrackerFinishInsidePhase(t *testing.T) {
	tr := NewTracker(NewExclusionSet(), stepClock(5*time.Millisecond))

	tr.Step([]byte("CREATE TABLE `t` (\n"))
	tr.Step([]byte("INSERT INTO `t` VALUES (1);\n"))

	obs, ok := tr.Finish()
	require.True(t, ok)
	assert.Equal(t, timing.Observation{Kind: timing.KindInsert, Table: "t", Duration: 5 * time.Millisecond}, obs)

	_, ok = tr.Finish()
	assert.False(t, ok, "finish closes a phase only once")
}
