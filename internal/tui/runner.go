package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Geun-Oh/lxring/internal/buffer"
	"github.com/Geun-Oh/lxring/internal/entry"
	"github.com/Geun-Oh/lxring/internal/monitor"
	"github.com/Geun-Oh/lxring/internal/pipeline"
	"github.com/Geun-Oh/lxring/internal/source"
)

// RunConfig holds what the dashboard pipeline reads from and through.
// Drain carries filters, alerts and stats; its Sinks usually stay empty
// since the dashboard is the output.
type RunConfig struct {
	Source source.Source
	Store  *buffer.Store
	Drain  *pipeline.Drain
	// Rate tracks delivered lines per second for the status bar.
	Rate *monitor.RateDetector
}

// Run starts the dashboard over a live pipeline and blocks until the user
// quits.
func Run(ctx context.Context, cfg *RunConfig) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	d := cfg.Drain
	if d == nil {
		d = &pipeline.Drain{}
	}
	if d.Stats == nil {
		d.Stats = monitor.NewStats()
	}
	if cfg.Rate == nil {
		cfg.Rate = monitor.NewRateDetector(0, 0)
	}

	model := NewModel(d.Stats, cfg.Rate, d.Alerts, cfg.Store, cfg.Source.Name())
	program := tea.NewProgram(model, tea.WithAltScreen())

	d.OnEntry = func(e *entry.Entry, alerts []string) {
		if !e.IsDropSummary() && cfg.Rate.Add(1) {
			program.Send(SpikeMsg{Rate: cfg.Rate.Rate()})
		}
		program.Send(EntryMsg{Entry: e, Alerts: alerts})
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		err := pipeline.Run(ctx, cfg.Source, cfg.Store, d)
		program.Send(DoneMsg{Err: err})
	}()

	_, err := program.Run()

	cancel()
	<-done
	return err
}
