// Package pipeline moves records from a source into a store and from a
// store cursor through filters into sinks.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Geun-Oh/lxring/internal/buffer"
	"github.com/Geun-Oh/lxring/internal/entry"
	"github.com/Geun-Oh/lxring/internal/filter"
	"github.com/Geun-Oh/lxring/internal/monitor"
	"github.com/Geun-Oh/lxring/internal/sink"
	"github.com/Geun-Oh/lxring/internal/source"
)

// Appender accepts records. *buffer.Store implements it.
type Appender interface {
	Write(rec *entry.Record) error
}

// Reader yields entries. *buffer.Cursor implements it.
type Reader interface {
	Next(ctx context.Context, opts buffer.ReadOptions) (*entry.Entry, error)
}

// Ingest appends every record from src to dst until the source closes its
// channel. Records the store rejects for their shape are counted and
// skipped; a corrupt store stops ingestion.
func Ingest(ctx context.Context, src source.Source, dst Appender, stats *monitor.Stats, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	if stats == nil {
		stats = monitor.NewStats()
	}
	ch, err := src.Start(ctx)
	if err != nil {
		return fmt.Errorf("pipeline: start source: %w", err)
	}

	for rec := range ch {
		err := dst.Write(&rec)
		switch {
		case err == nil:
			stats.RecordIngested()
		case errors.Is(err, buffer.ErrEntryTooLarge),
			errors.Is(err, buffer.ErrInvalidTag),
			errors.Is(err, buffer.ErrInvalidTimestamp):
			stats.RecordRejected()
			log.Warn("record rejected", "source", src.Name(), "tag", rec.Tag, "error", err)
		default:
			// Let the source wind down before returning.
			for range ch {
			}
			return fmt.Errorf("pipeline: append from %s: %w", src.Name(), err)
		}
	}
	return nil
}

// Drain configures one pass over a cursor.
type Drain struct {
	Reader  Reader
	Filters *filter.Chain
	Context *filter.ContextBuffer
	Sinks   []sink.Sink
	Stats   *monitor.Stats
	Alerts  *monitor.AlertEngine
	// Loss receives reported drop counts; a spike is logged.
	Loss *monitor.RateDetector
	// Follow keeps waiting for new entries until ctx ends.
	Follow bool
	Logger *slog.Logger
	// OnEntry, if set, is called for every delivered entry.
	OnEntry func(e *entry.Entry, alerts []string)
}

// Run reads until the cursor is empty, or with Follow until ctx is done.
// Cancellation is not an error.
func (d *Drain) Run(ctx context.Context) error {
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}
	if d.Stats == nil {
		d.Stats = monitor.NewStats()
	}
	for {
		e, err := d.Reader.Next(ctx, buffer.ReadOptions{Block: d.Follow})
		switch {
		case err == nil:
		case errors.Is(err, buffer.ErrWouldBlock):
			return d.flush()
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			if ctx.Err() != nil {
				return d.flush()
			}
			return err
		default:
			return fmt.Errorf("pipeline: read: %w", err)
		}

		if n, ok := e.DropCount(); ok {
			d.Stats.RecordDropped(n)
			if d.Loss != nil && d.Loss.Add(int64(n)) {
				log.Warn("reader falling behind", "dropped", n, "rate", d.Loss.Rate())
			}
		} else {
			d.Stats.RecordRead()
		}

		if d.Context != nil {
			for _, out := range d.Context.Process(e) {
				if err := d.deliver(out); err != nil {
					return err
				}
			}
			continue
		}
		if d.Filters != nil && !d.Filters.Match(e) {
			continue
		}
		if err := d.deliver(e); err != nil {
			return err
		}
	}
}

func (d *Drain) deliver(e *entry.Entry) error {
	var triggered []string
	if d.Alerts != nil {
		triggered = d.Alerts.Check(e)
	}
	for _, s := range d.Sinks {
		if err := s.Write(e); err != nil {
			return fmt.Errorf("pipeline: write to %s: %w", s.Name(), err)
		}
	}
	d.Stats.RecordDelivered()
	if d.OnEntry != nil {
		d.OnEntry(e, triggered)
	}
	return nil
}

func (d *Drain) flush() error {
	for _, s := range d.Sinks {
		if err := s.Flush(); err != nil {
			return fmt.Errorf("pipeline: flush %s: %w", s.Name(), err)
		}
	}
	return nil
}

// Run ingests src into store while draining a cursor opened before the
// first append, so every record is either delivered or reported lost. It
// returns once the source is exhausted and the cursor has caught up, or
// when ctx is cancelled.
func Run(ctx context.Context, src source.Source, store *buffer.Store, d *Drain) error {
	c, err := store.OpenReader(buffer.ReaderOptions{Privileged: true})
	if err != nil {
		return err
	}
	defer c.Close()
	d.Reader = c
	d.Follow = true
	if d.Stats == nil {
		d.Stats = monitor.NewStats()
	}

	ingestCtx, stopIngest := context.WithCancel(ctx)
	defer stopIngest()
	follow, stopFollow := context.WithCancel(ctx)
	defer stopFollow()
	ingestErr := make(chan error, 1)
	go func() {
		ingestErr <- Ingest(ingestCtx, src, store, d.Stats, d.Logger)
		stopFollow()
	}()

	if err := d.Run(follow); err != nil {
		stopIngest()
		<-ingestErr
		return err
	}
	err = <-ingestErr
	if ctx.Err() != nil {
		return err
	}

	// Pick up whatever arrived after the follow pass stopped.
	d.Follow = false
	if derr := d.Run(ctx); derr != nil {
		return derr
	}
	return err
}
