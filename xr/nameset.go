package xr

import (
	"sort"
	"strings"
)

// NameSet is a duplicate free set of extension names.
type NameSet struct {
	names map[string]struct{}
}

// NewNameSet creates a set holding names
func NewNameSet(names ...string) NameSet {
	var s NameSet
	for _, n := range names {
		s.Add(n)
	}
	return s
}

// ParseNameList splits a space delimited list. Empty names are skipped.
func ParseNameList(list string) NameSet {
	var s NameSet
	for _, n := range strings.Split(list, " ") {
		if n != "" {
			s.Add(n)
		}
	}
	return s
}

// Add adds name and reports whether it was new
func (s *NameSet) Add(name string) bool {
	if s.names == nil {
		s.names = make(map[string]struct{})
	}
	if _, ok := s.names[name]; ok {
		return false
	}
	s.names[name] = struct{}{}
	return true
}

// Merge adds every name of other
func (s *NameSet) Merge(other NameSet) {
	for n := range other.names {
		s.Add(n)
	}
}

// Has reports whether name is in the set
func (s NameSet) Has(name string) bool {
	_, ok := s.names[name]
	return ok
}

// Len returns the number of names
func (s NameSet) Len() int {
	return len(s.names)
}

// Names returns the names sorted
func (s NameSet) Names() []string {
	names := make([]string, 0, len(s.names))
	for n := range s.names {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Clone returns an independent copy
func (s NameSet) Clone() NameSet {
	var c NameSet
	c.Merge(s)
	return c
}
