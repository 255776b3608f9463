package filter

import (
	"fmt"
	"regexp"

	"github.com/Geun-Oh/lxring/internal/entry"
)

// RegexFilter matches payloads against a pattern compiled once.
type RegexFilter struct {
	pattern string
	re      *regexp.Regexp
}

// NewRegexFilter compiles pattern.
func NewRegexFilter(pattern string) (*RegexFilter, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("filter: invalid regex %q: %w", pattern, err)
	}
	return &RegexFilter{pattern: pattern, re: re}, nil
}

func (f *RegexFilter) Match(e *entry.Entry) bool {
	return f.re.Match(e.Payload)
}

func (f *RegexFilter) Name() string {
	return "regex:" + f.pattern
}
