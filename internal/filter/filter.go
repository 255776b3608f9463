// Package filter selects which entries a drain delivers.
package filter

import (
	"strings"

	"github.com/Geun-Oh/lxring/internal/entry"
)

// Filter decides whether an entry is delivered.
type Filter interface {
	Match(e *entry.Entry) bool
	Name() string
}

// MatchMode controls how a chain combines its filters.
type MatchMode int

const (
	// MatchAny passes if any filter matches.
	MatchAny MatchMode = iota
	// MatchAll passes only if every filter matches.
	MatchAll
)

// Chain combines filters. Drop summaries always pass a chain so that loss
// stays visible however narrow the selection is.
type Chain struct {
	filters []Filter
	mode    MatchMode
}

// NewChain creates a chain with the given mode.
func NewChain(mode MatchMode, filters ...Filter) *Chain {
	return &Chain{filters: filters, mode: mode}
}

// Add appends a filter to the chain.
func (c *Chain) Add(f Filter) {
	c.filters = append(c.filters, f)
}

// Match evaluates the chain. An empty chain passes everything.
func (c *Chain) Match(e *entry.Entry) bool {
	if len(c.filters) == 0 || e.IsDropSummary() {
		return true
	}

	switch c.mode {
	case MatchAll:
		for _, f := range c.filters {
			if !f.Match(e) {
				return false
			}
		}
		return true
	default:
		for _, f := range c.filters {
			if f.Match(e) {
				return true
			}
		}
		return false
	}
}

// Name describes the chain and its members.
func (c *Chain) Name() string {
	op := " | "
	if c.mode == MatchAll {
		op = " & "
	}
	names := make([]string, len(c.filters))
	for i, f := range c.filters {
		names[i] = f.Name()
	}
	return "(" + strings.Join(names, op) + ")"
}

// Len returns the number of filters in the chain.
func (c *Chain) Len() int {
	return len(c.filters)
}
