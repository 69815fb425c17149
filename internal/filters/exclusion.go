package filters

import (
	"sort"
	"strings"
)

// ExclusionSet holds the tables whose INSERT lines are dropped.
type ExclusionSet map[string]struct{}

// NewExclusionSet builds a set from flag-style values. Each value may hold a
// comma-separated list; names are trimmed and empty names are ignored.
func NewExclusionSet(values ...string) ExclusionSet {
	set := make(ExclusionSet)
	for _, v := range values {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				set[name] = struct{}{}
			}
		}
	}
	return set
}

func (s ExclusionSet) Contains(table string) bool {
	_, ok := s[strings.TrimSpace(table)]
	return ok
}

// Names returns the members in sorted order.
func (s ExclusionSet) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
