package filter

import (
	"bytes"
	"strings"

	"github.com/Geun-Oh/lxring/internal/entry"
)

// ExcludeFilter passes entries that contain none of its patterns.
type ExcludeFilter struct {
	patterns []string
}

func NewExcludeFilter(patterns ...string) *ExcludeFilter {
	return &ExcludeFilter{patterns: patterns}
}

func (f *ExcludeFilter) Match(e *entry.Entry) bool {
	for _, p := range f.patterns {
		if bytes.Contains(e.Payload, []byte(p)) {
			return false
		}
	}
	return true
}

func (f *ExcludeFilter) Name() string {
	return "exclude:" + strings.Join(f.patterns, ",")
}
