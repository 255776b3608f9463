package filter

import (
	"strconv"

	"github.com/Geun-Oh/lxring/internal/entry"
)

// PIDFilter matches entries written by one process.
type PIDFilter struct {
	pid int32
}

func NewPIDFilter(pid int32) *PIDFilter {
	return &PIDFilter{pid: pid}
}

func (f *PIDFilter) Match(e *entry.Entry) bool {
	return e.Owner.PID == f.pid
}

func (f *PIDFilter) Name() string {
	return "pid:" + strconv.Itoa(int(f.pid))
}

// TagFilter matches entries with one of the given tags.
type TagFilter struct {
	tags map[string]struct{}
	name string
}

func NewTagFilter(tags ...string) *TagFilter {
	set := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		set[t] = struct{}{}
	}
	name := "tag:"
	for i, t := range tags {
		if i > 0 {
			name += ","
		}
		name += t
	}
	return &TagFilter{tags: set, name: name}
}

func (f *TagFilter) Match(e *entry.Entry) bool {
	_, ok := f.tags[e.Tag]
	return ok
}

func (f *TagFilter) Name() string {
	return f.name
}
