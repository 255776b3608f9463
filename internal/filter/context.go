package filter

import (
	"github.com/Geun-Oh/lxring/internal/entry"
)

// ContextBuffer adds grep-style before/after context around matches of
// the wrapped filter.
type ContextBuffer struct {
	filter     Filter
	beforeN    int
	afterN     int
	recent     []*entry.Entry
	recentPos  int
	afterCount int
}

// NewContextBuffer wraps f, keeping before entries ahead of a match and
// after entries behind it.
func NewContextBuffer(f Filter, before, after int) *ContextBuffer {
	return &ContextBuffer{
		filter:  f,
		beforeN: before,
		afterN:  after,
		recent:  make([]*entry.Entry, before+1),
	}
}

// Process returns the entries to deliver for e, oldest first. A drop
// summary resets the context window since the entries around it are gone.
func (cb *ContextBuffer) Process(e *entry.Entry) []*entry.Entry {
	if e.IsDropSummary() {
		clear(cb.recent)
		cb.recentPos = 0
		cb.afterCount = 0
		return []*entry.Entry{e}
	}

	matched := cb.filter.Match(e)
	cb.recent[cb.recentPos%len(cb.recent)] = e
	cb.recentPos++

	if matched {
		start := max(cb.recentPos-cb.beforeN-1, 0)
		var out []*entry.Entry
		for i := start; i < cb.recentPos-1; i++ {
			if prev := cb.recent[i%len(cb.recent)]; prev != nil {
				out = append(out, prev)
				cb.recent[i%len(cb.recent)] = nil
			}
		}
		cb.recent[(cb.recentPos-1)%len(cb.recent)] = nil
		cb.afterCount = cb.afterN
		return append(out, e)
	}
	if cb.afterCount > 0 {
		cb.afterCount--
		cb.recent[(cb.recentPos-1)%len(cb.recent)] = nil
		return []*entry.Entry{e}
	}
	return nil
}

func (cb *ContextBuffer) Name() string {
	return "context(" + cb.filter.Name() + ")"
}
