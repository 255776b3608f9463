package filter

import (
	"bytes"

	"github.com/Geun-Oh/lxring/internal/entry"
)

// KeywordFilter matches entries whose payload contains a keyword.
type KeywordFilter struct {
	keyword []byte
}

func NewKeywordFilter(keyword string) *KeywordFilter {
	return &KeywordFilter{keyword: []byte(keyword)}
}

func (f *KeywordFilter) Match(e *entry.Entry) bool {
	return bytes.Contains(e.Payload, f.keyword)
}

func (f *KeywordFilter) Name() string {
	return "keyword:" + string(f.keyword)
}
