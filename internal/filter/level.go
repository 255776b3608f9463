package filter

import (
	"slices"
	"strings"

	"github.com/Geun-Oh/lxring/internal/entry"
)

// LevelFilter passes entries whose detected severity is in the allowed set.
type LevelFilter struct {
	allowed map[entry.Level]bool
}

// NewLevelFilter passes entries at any of the given levels.
func NewLevelFilter(levels ...entry.Level) *LevelFilter {
	allowed := make(map[entry.Level]bool, len(levels))
	for _, l := range levels {
		allowed[l] = true
	}
	return &LevelFilter{allowed: allowed}
}

// NewMinLevelFilter passes entries at least as severe as least.
func NewMinLevelFilter(least entry.Level) *LevelFilter {
	var levels []entry.Level
	for l := least; l <= entry.LevelFatal; l++ {
		levels = append(levels, l)
	}
	return NewLevelFilter(levels...)
}

func (f *LevelFilter) Match(e *entry.Entry) bool {
	return f.allowed[e.Level()]
}

func (f *LevelFilter) Name() string {
	var levels []string
	for l := range f.allowed {
		levels = append(levels, l.String())
	}
	slices.Sort(levels)
	return "level:" + strings.Join(levels, ",")
}
