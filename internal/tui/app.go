// Package tui is a terminal dashboard over a store cursor.
package tui

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Geun-Oh/lxring/internal/buffer"
	"github.com/Geun-Oh/lxring/internal/entry"
	"github.com/Geun-Oh/lxring/internal/monitor"
)

// EntryMsg delivers one entry read from the store, with the alert rules it
// triggered.
type EntryMsg struct {
	Entry  *entry.Entry
	Alerts []string
}

// SpikeMsg reports a spike in the rate of lines.
type SpikeMsg struct {
	Rate float64
}

// TickMsg drives the banner countdown.
type TickMsg time.Time

// DoneMsg signals the pipeline has finished. Err is nil on a clean end.
type DoneMsg struct {
	Err error
}

const (
	defaultHistory = 1000
	alertTicks     = 10
	spikeTicks     = 8
)

// counts tallies what the dashboard has been shown.
type counts struct {
	lines  int
	errors int
	warns  int
	lost   uint64
}

func (c *counts) add(e *entry.Entry) {
	if n, ok := e.DropCount(); ok {
		c.lost += n
		return
	}
	c.lines++
	switch e.Level() {
	case entry.LevelError, entry.LevelFatal:
		c.errors++
	case entry.LevelWarn:
		c.warns++
	}
}

// Model keeps the most recent entries; they are rendered at the current
// width on every View.
type Model struct {
	history []*entry.Entry
	held    []*entry.Entry // arrivals while paused
	limit   int
	width   int
	height  int
	// offset counts rows up from the newest entry; 0 follows the tail.
	offset int
	paused bool

	search  searchState
	counts  counts
	banner  string
	bannerN int

	finished bool
	failure  error

	Stats  *monitor.Stats
	Rate   *monitor.RateDetector
	Alerts *monitor.AlertEngine
	Store  *buffer.Store
	Source string
}

type searchState struct {
	editing bool
	query   string
	hits    int
}

// NewModel creates a model showing store. rate, alerts and store may be nil.
func NewModel(stats *monitor.Stats, rate *monitor.RateDetector, alerts *monitor.AlertEngine, store *buffer.Store, sourceName string) Model {
	return Model{
		limit:  defaultHistory,
		Stats:  stats,
		Rate:   rate,
		Alerts: alerts,
		Store:  store,
		Source: sourceName,
	}
}

// Init starts the tick timer.
func (m Model) Init() tea.Cmd {
	return tea.Batch(tick(), tea.WindowSize())
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
	case tea.KeyMsg:
		if m.search.editing {
			return m.editSearch(msg), nil
		}
		return m.navigate(msg)
	case EntryMsg:
		m.receive(msg)
	case SpikeMsg:
		m.flash(fmt.Sprintf("📈 SPIKE: %.0f lines/s", msg.Rate), spikeTicks)
	case TickMsg:
		if m.bannerN > 0 {
			m.bannerN--
		}
		return m, tick()
	case DoneMsg:
		m.finished, m.failure = true, msg.Err
	}
	return m, nil
}

func (m *Model) receive(msg EntryMsg) {
	e := msg.Entry
	m.counts.add(e)
	if len(msg.Alerts) > 0 {
		m.flash(fmt.Sprintf("⚠ ALERT [%s]: %s", strings.Join(msg.Alerts, ","), truncate(string(e.Payload), 60)), alertTicks)
	}
	if m.paused {
		m.held = append(m.held, e)
		return
	}
	m.push(e)
}

func (m *Model) push(es ...*entry.Entry) {
	m.history = append(m.history, es...)
	if over := len(m.history) - m.limit; over > 0 {
		m.history = m.history[over:]
	}
	if m.offset > len(m.history)-1 {
		m.offset = max(len(m.history)-1, 0)
	}
}

func (m *Model) flash(text string, ticks int) {
	m.banner, m.bannerN = text, ticks
}

func (m Model) navigate(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	last := max(len(m.history)-1, 0)
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "p":
		m.paused = !m.paused
		if !m.paused {
			m.push(m.held...)
			m.held = nil
		}
	case "/":
		m.search = searchState{editing: true}
	case "up", "k":
		m.offset = min(m.offset+1, last)
	case "down", "j":
		m.offset = max(m.offset-1, 0)
	case "g":
		m.offset = 0
	case "G":
		m.offset = last
	}
	return m, nil
}

func (m Model) editSearch(msg tea.KeyMsg) Model {
	switch msg.Type {
	case tea.KeyEsc:
		m.search = searchState{}
	case tea.KeyEnter:
		m.search.editing = false
		m.jumpToMatch()
	case tea.KeyBackspace:
		if q := m.search.query; q != "" {
			m.search.query = q[:len(q)-1]
		}
	case tea.KeySpace:
		m.search.query += " "
	case tea.KeyRunes:
		m.search.query += string(msg.Runes)
	}
	return m
}

// jumpToMatch scrolls to the newest entry containing the query.
func (m *Model) jumpToMatch() {
	m.search.hits = 0
	if m.search.query == "" {
		return
	}
	q := []byte(m.search.query)
	newest := -1
	for i, e := range m.history {
		if bytes.Contains(e.Payload, q) {
			m.search.hits++
			newest = i
		}
	}
	if newest >= 0 {
		m.offset = len(m.history) - 1 - newest
	}
}

func tick() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}
