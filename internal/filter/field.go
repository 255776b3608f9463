package filter

import (
	"fmt"
	"strings"

	"github.com/Geun-Oh/lxring/internal/entry"
	"github.com/Geun-Oh/lxring/internal/parser"
)

// FieldFilter matches entries whose payload parses under a grok pattern
// and, when a condition is set, whose field equals the wanted value.
type FieldFilter struct {
	grok  *parser.GrokParser
	field string
	value string
}

// NewFieldFilter compiles pattern. where is empty or "field=value"; the
// field must be captured by the pattern.
func NewFieldFilter(pattern, where string) (*FieldFilter, error) {
	g, err := parser.NewGrokParser(pattern)
	if err != nil {
		return nil, err
	}
	f := &FieldFilter{grok: g}
	if where == "" {
		return f, nil
	}
	field, value, ok := strings.Cut(where, "=")
	if !ok || field == "" {
		return nil, fmt.Errorf("filter: condition %q is not field=value", where)
	}
	if !g.Captures(field) {
		return nil, fmt.Errorf("filter: pattern %q does not capture %q", pattern, field)
	}
	f.field, f.value = field, value
	return f, nil
}

func (f *FieldFilter) Match(e *entry.Entry) bool {
	if f.field == "" {
		return f.grok.Match(e)
	}
	fields := f.grok.Fields(e)
	v, ok := fields[f.field]
	return ok && v == f.value
}

func (f *FieldFilter) Name() string {
	if f.field == "" {
		return "grok:" + f.grok.Pattern()
	}
	return "grok:" + f.field + "=" + f.value
}
