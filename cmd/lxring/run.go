package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/Geun-Oh/lxring/internal/config"
	"github.com/Geun-Oh/lxring/internal/entry"
	"github.com/Geun-Oh/lxring/internal/filter"
	"github.com/Geun-Oh/lxring/internal/monitor"
	"github.com/Geun-Oh/lxring/internal/pipeline"
	"github.com/Geun-Oh/lxring/internal/sink"
	"github.com/Geun-Oh/lxring/internal/source"
	"github.com/Geun-Oh/lxring/internal/tui"
)

type runOptions struct {
	// source
	file   string
	docker string
	stdin  bool
	follow bool

	// store
	store    string
	capacity string

	// filters
	grep    []string
	regex   []string
	exclude []string
	levels  []string
	minLvl  string
	tags    []string
	pid     int
	grok    string
	where   string
	any     bool
	before  int
	after   int
	alerts  []string

	// output
	json           bool
	output         string
	format         string
	archive        string
	archiveVersion string
	noColor        bool
	dashboard      bool
	stats          bool
}

func newRunCmd(a *app) *cobra.Command {
	o := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run [flags] [-- command [args...]]",
		Short: "Capture a source into a ring store and print what a reader sees",
		Example: `  lxring run -- ./server --port 8080
  lxring run --file /var/log/app.log --follow --level error
  kubectl logs -f pod | lxring run --stdin --grep timeout --before 3
  lxring run --docker web --archive web.lxra --tui`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, o, args)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.file, "file", "", "read lines from a file")
	f.StringVar(&o.docker, "docker", "", "read logs of a docker container")
	f.BoolVar(&o.stdin, "stdin", false, "read lines from stdin")
	f.BoolVarP(&o.follow, "follow", "f", false, "keep following the file or container")

	f.StringVar(&o.store, "store", "main", "store to capture into (created if missing)")
	f.StringVar(&o.capacity, "capacity", "", "capacity when the store is created, e.g. 64KiB")

	f.StringSliceVarP(&o.grep, "grep", "g", nil, "keep lines containing a keyword")
	f.StringSliceVar(&o.regex, "regex", nil, "keep lines matching a regular expression")
	f.StringSliceVar(&o.exclude, "exclude", nil, "drop lines containing a keyword")
	f.StringSliceVarP(&o.levels, "level", "l", nil, "keep lines at these levels")
	f.StringVar(&o.minLvl, "min-level", "", "keep lines at this level or above")
	f.StringSliceVar(&o.tags, "tag", nil, "keep entries with these tags")
	f.IntVar(&o.pid, "pid", 0, "keep entries written by this pid")
	f.StringVar(&o.grok, "grok", "", "keep lines matching a grok pattern")
	f.StringVar(&o.where, "where", "", "with --grok, keep lines whose field equals a value (field=value)")
	f.BoolVar(&o.any, "any", false, "keep lines matching any filter instead of all")
	f.IntVarP(&o.before, "before", "B", 0, "lines of context before a match")
	f.IntVarP(&o.after, "after", "A", 0, "lines of context after a match")
	f.StringSliceVar(&o.alerts, "alert", nil, "regular expression to count as an alert")

	f.BoolVar(&o.json, "json", false, "print JSON lines instead of text")
	f.StringVarP(&o.output, "output", "o", "", "also append to a file")
	f.StringVar(&o.format, "format", "text", "file format (text, json)")
	f.StringVar(&o.archive, "archive", "", "also write a compressed archive")
	f.StringVar(&o.archiveVersion, "archive-version", "v2", "archive header version (v1, v2)")
	f.BoolVar(&o.noColor, "no-color", false, "disable colour output")
	f.BoolVar(&o.dashboard, "tui", false, "show the interactive dashboard")
	f.BoolVar(&o.stats, "stats", false, "print counters when done")
	return cmd
}

func (o *runOptions) source(args []string) (source.Source, error) {
	n := 0
	for _, set := range []bool{len(args) > 0, o.file != "", o.docker != "", o.stdin} {
		if set {
			n++
		}
	}
	switch {
	case n > 1:
		return nil, errors.New("choose one of a command, --file, --docker or --stdin")
	case len(args) > 0:
		return source.NewExecSource(args[0], args[1:]), nil
	case o.file != "":
		return source.NewFileSource(o.file, o.follow), nil
	case o.docker != "":
		return source.NewDockerSource(o.docker, o.follow), nil
	default:
		return source.NewStdinSource(), nil
	}
}

func (o *runOptions) filters() (*filter.Chain, error) {
	mode := filter.MatchAll
	if o.any {
		mode = filter.MatchAny
	}
	chain := filter.NewChain(mode)
	for _, k := range o.grep {
		chain.Add(filter.NewKeywordFilter(k))
	}
	for _, p := range o.regex {
		f, err := filter.NewRegexFilter(p)
		if err != nil {
			return nil, err
		}
		chain.Add(f)
	}
	if len(o.exclude) > 0 {
		chain.Add(filter.NewExcludeFilter(o.exclude...))
	}
	if len(o.levels) > 0 {
		levels := make([]entry.Level, 0, len(o.levels))
		for _, s := range o.levels {
			l := entry.ParseLevel(s)
			if l == entry.LevelUnknown {
				return nil, fmt.Errorf("unknown level %q", s)
			}
			levels = append(levels, l)
		}
		chain.Add(filter.NewLevelFilter(levels...))
	}
	if o.minLvl != "" {
		l := entry.ParseLevel(o.minLvl)
		if l == entry.LevelUnknown {
			return nil, fmt.Errorf("unknown level %q", o.minLvl)
		}
		chain.Add(filter.NewMinLevelFilter(l))
	}
	if len(o.tags) > 0 {
		chain.Add(filter.NewTagFilter(o.tags...))
	}
	if o.pid != 0 {
		chain.Add(filter.NewPIDFilter(int32(o.pid)))
	}
	if o.grok != "" {
		f, err := filter.NewFieldFilter(o.grok, o.where)
		if err != nil {
			return nil, err
		}
		chain.Add(f)
	} else if o.where != "" {
		return nil, errors.New("--where needs --grok")
	}
	return chain, nil
}

// sinks returns the configured outputs. The terminal is left out when the
// dashboard draws instead.
func (o *runOptions) sinks(w io.Writer) ([]sink.Sink, error) {
	var out []sink.Sink
	if !o.dashboard {
		if o.json {
			out = append(out, sink.NewJSONSink(w))
		} else {
			color := false
			if f, ok := w.(*os.File); ok && !o.noColor {
				color = isatty.IsTerminal(f.Fd())
			}
			out = append(out, sink.NewTerminalSink(w, color))
		}
	}
	if o.output != "" {
		fs, err := sink.NewFileSink(o.output, o.format)
		if err != nil {
			return nil, err
		}
		out = append(out, fs)
	}
	if o.archive != "" {
		v, err := entry.ParseVersion(o.archiveVersion)
		if err != nil {
			closeSinks(out)
			return nil, err
		}
		as, err := sink.CreateArchive(o.archive, v)
		if err != nil {
			closeSinks(out)
			return nil, err
		}
		out = append(out, as)
	}
	return out, nil
}

func closeSinks(sinks []sink.Sink) error {
	var errs []error
	for _, s := range sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (a *app) run(cmd *cobra.Command, o *runOptions, args []string) (err error) {
	src, err := o.source(args)
	if err != nil {
		return err
	}
	chain, err := o.filters()
	if err != nil {
		return err
	}
	var alerts *monitor.AlertEngine
	if len(o.alerts) > 0 {
		if alerts, err = monitor.NewAlertEngine(o.alerts); err != nil {
			return err
		}
	}

	capacity := a.cfg.Server.DefaultCapacity
	if o.capacity != "" {
		if capacity, err = config.ParseSize(o.capacity); err != nil {
			return err
		}
	}
	reg, err := a.cfg.NewRegistry(a.log)
	if err != nil {
		return err
	}
	store, err := reg.Ensure(o.store, int(capacity))
	if err != nil {
		return err
	}
	if o.capacity != "" && store.Capacity() != int(capacity) {
		a.log.Warn("store already configured, --capacity ignored", "store", store.Name(), "capacity", store.Capacity())
	}

	sinks, err := o.sinks(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeSinks(sinks); err == nil {
			err = cerr
		}
	}()

	stats := monitor.NewStats()
	d := &pipeline.Drain{
		Sinks:  sinks,
		Stats:  stats,
		Alerts: alerts,
		Loss:   monitor.NewRateDetector(0, 0),
		Logger: a.log,
	}
	if o.before > 0 || o.after > 0 {
		d.Context = filter.NewContextBuffer(chain, o.before, o.after)
	} else if chain.Len() > 0 {
		d.Filters = chain
	}

	a.log.Debug("run starting", "source", src.Name(), "store", store.Name(), "capacity", store.Capacity(), "filters", chain.Name())
	ctx := cmd.Context()
	if o.dashboard {
		err = tui.Run(ctx, &tui.RunConfig{Source: src, Store: store, Drain: d})
	} else {
		err = pipeline.Run(ctx, src, store, d)
	}
	if err != nil {
		return err
	}

	if o.stats {
		fmt.Fprintln(cmd.ErrOrStderr(), stats.Summary())
		if alerts != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), alerts.Summary())
		}
	}
	if es, ok := src.(*source.ExecSource); ok && ctx.Err() == nil {
		return es.Err()
	}
	return nil
}
