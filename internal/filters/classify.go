package filters

import (
	"bytes"
	"strings"
)

var (
	createTablePrefix  = []byte("CREATE TABLE")
	insertIntoPrefix   = []byte("INSERT INTO")
	unlockTablesPrefix = []byte("UNLOCK TABLES;")
)

// Category is the role a dump line plays for phase tracking.
type Category int

const (
	Other Category = iota
	TableDefinitionStart
	RowInsertionStart
	PhaseEndMarker
)

func (c Category) String() string {
	switch c {
	case TableDefinitionStart:
		return "table-definition"
	case RowInsertionStart:
		return "row-insertion"
	case PhaseEndMarker:
		return "phase-end"
	}
	return "other"
}

// Classify matches the literal statement prefixes mysqldump emits at the
// start of a line. Matching is case-sensitive and tolerates no leading
// whitespace.
func Classify(line []byte) Category {
	switch {
	case bytes.HasPrefix(line, createTablePrefix):
		return TableDefinitionStart
	case bytes.HasPrefix(line, insertIntoPrefix):
		return RowInsertionStart
	case bytes.HasPrefix(line, unlockTablesPrefix):
		return PhaseEndMarker
	}
	return Other
}

// TableName returns the third whitespace-delimited token of a CREATE TABLE
// line with surrounding identifier quotes removed. The first two tokens are
// not checked. ok is false when there is no usable third token.
func TableName(line []byte) (name string, ok bool) {
	fields := bytes.Fields(line)
	if len(fields) < 3 {
		return "", false
	}
	name = strings.Trim(string(fields[2]), "`\"")
	return name, name != ""
}
