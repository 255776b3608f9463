// Package parser extracts named fields from entry payloads.
package parser

import (
	"fmt"
	"regexp"
	"slices"

	"github.com/Geun-Oh/lxring/internal/entry"
)

// builtinPatterns provides commonly used Grok-style named patterns.
var builtinPatterns = map[string]string{
	"IP":         `(?:\d{1,3}\.){3}\d{1,3}`,
	"IPV6":       `[0-9A-Fa-f:]+`,
	"WORD":       `\w+`,
	"INT":        `[+-]?\d+`,
	"NUMBER":     `[+-]?(?:\d+\.?\d*|\.\d+)`,
	"NOTSPACE":   `\S+`,
	"DATA":       `.*?`,
	"GREEDYDATA": `.*`,
	"TIMESTAMP":  `\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:Z|[+-]\d{2}:?\d{2})?`,
	"LOGLEVEL":   `(?:DEBUG|INFO|WARN(?:ING)?|ERROR|ERR|FATAL|PANIC|CRITICAL|TRACE)`,
	"PATH":       `(?:/[\w.]+)+`,
	"URI":        `\S+://\S+`,
	"UUID":       `[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`,
	"MAC":        `(?:[0-9A-Fa-f]{2}:){5}[0-9A-Fa-f]{2}`,
	"HTTPMETHOD": `(?:GET|POST|PUT|DELETE|PATCH|HEAD|OPTIONS|CONNECT|TRACE)`,
	"STATUSCODE": `\d{3}`,
	"QS":         `"[^"]*"`,
}

// GrokParser matches payloads against a grok pattern such as
// "%{IP:client} %{HTTPMETHOD:method} %{PATH:path} %{STATUSCODE:status}".
// Text outside the tokens is a regular expression.
type GrokParser struct {
	pattern    string
	regex      *regexp.Regexp
	fieldNames []string
}

// NewGrokParser compiles a Grok pattern string into a regex-based parser.
func NewGrokParser(pattern string) (*GrokParser, error) {
	regexStr, fieldNames, err := compileGrokPattern(pattern)
	if err != nil {
		return nil, err
	}

	re, err := regexp.Compile(regexStr)
	if err != nil {
		return nil, fmt.Errorf("parser: compiled grok regex invalid: %w (regex: %s)", err, regexStr)
	}

	return &GrokParser{
		pattern:    pattern,
		regex:      re,
		fieldNames: fieldNames,
	}, nil
}

// Fields extracts the named captures from e's payload. It returns nil
// when the pattern does not match. Drop summaries never match.
func (g *GrokParser) Fields(e *entry.Entry) map[string]string {
	if e.IsDropSummary() {
		return nil
	}
	matches := g.regex.FindSubmatch(e.Payload)
	if matches == nil {
		return nil
	}

	fields := make(map[string]string, len(g.fieldNames))
	for i, name := range g.regex.SubexpNames() {
		if name != "" && matches[i] != nil {
			fields[name] = string(matches[i])
		}
	}
	return fields
}

// Match reports whether the pattern matches e's payload.
func (g *GrokParser) Match(e *entry.Entry) bool {
	return !e.IsDropSummary() && g.regex.Match(e.Payload)
}

// Pattern returns the original Grok pattern string.
func (g *GrokParser) Pattern() string {
	return g.pattern
}

var grokToken = regexp.MustCompile(`%\{(\w+)(?::(\w+))?\}`)

// compileGrokPattern expands %{NAME:field} into a named group and %{NAME}
// into a non-capturing group of the builtin. It returns the field names in
// pattern order.
func compileGrokPattern(pattern string) (string, []string, error) {
	var (
		names   []string
		unknown string
	)
	expanded := grokToken.ReplaceAllStringFunc(pattern, func(tok string) string {
		m := grokToken.FindStringSubmatch(tok)
		re, ok := builtinPatterns[m[1]]
		if !ok {
			if unknown == "" {
				unknown = m[1]
			}
			return tok
		}
		if m[2] == "" {
			return "(?:" + re + ")"
		}
		names = append(names, m[2])
		return "(?P<" + m[2] + ">" + re + ")"
	})
	if unknown != "" {
		return "", nil, fmt.Errorf("parser: unknown grok pattern %q", unknown)
	}
	return expanded, names, nil
}

// Captures reports whether the pattern names a capture field.
func (g *GrokParser) Captures(field string) bool {
	return slices.Contains(g.fieldNames, field)
}
