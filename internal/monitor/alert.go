package monitor

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/Geun-Oh/lxring/internal/entry"
)

// AlertRule is a payload pattern and the number of entries it matched.
type AlertRule struct {
	Name    string
	Pattern *regexp.Regexp
	Count   int
}

// AlertEngine counts entries matching a set of rules.
type AlertEngine struct {
	mu    sync.Mutex
	rules []*AlertRule
}

// NewAlertEngine compiles one rule per pattern.
func NewAlertEngine(patterns []string) (*AlertEngine, error) {
	engine := &AlertEngine{}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("monitor: invalid alert pattern %q: %w", p, err)
		}
		engine.rules = append(engine.rules, &AlertRule{Name: p, Pattern: re})
	}
	return engine, nil
}

// Check returns the names of the rules e matches. Drop summaries never
// match.
func (a *AlertEngine) Check(e *entry.Entry) []string {
	if len(a.rules) == 0 || e.IsDropSummary() {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	var triggered []string
	for _, r := range a.rules {
		if r.Pattern.Match(e.Payload) {
			r.Count++
			triggered = append(triggered, r.Name)
		}
	}
	return triggered
}

// Summary returns the hit count of each rule.
func (a *AlertEngine) Summary() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.rules) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("── Alerts ──\n")
	for _, r := range a.rules {
		fmt.Fprintf(&sb, "  %-30s %d hits\n", r.Name, r.Count)
	}
	sb.WriteString("────────────")
	return sb.String()
}

// Total returns the hits across all rules.
func (a *AlertEngine) Total() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, r := range a.rules {
		n += r.Count
	}
	return n
}
