package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Geun-Oh/lxring/internal/sink"
)

func newArchiveCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Inspect archives written by run --archive",
	}

	var asJSON bool
	cat := &cobra.Command{
		Use:   "cat FILE",
		Short: "Print every entry of an archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out sink.Sink = sink.NewTerminalSink(cmd.OutOrStdout(), false)
			if asJSON {
				out = sink.NewJSONSink(cmd.OutOrStdout())
			}
			n, err := catArchive(args[0], out)
			a.log.Debug("archive read", "path", args[0], "entries", n)
			return err
		},
	}
	cat.Flags().BoolVar(&asJSON, "json", false, "print JSON lines")
	cmd.AddCommand(cat)
	return cmd
}

func catArchive(path string, out sink.Sink) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	r, err := sink.NewArchiveReader(f)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	defer r.Close()

	n := 0
	for {
		e, err := r.Next()
		if errors.Is(err, io.EOF) {
			return n, out.Flush()
		}
		if err != nil {
			return n, fmt.Errorf("%s: entry %d: %w", path, n, err)
		}
		if err := out.Write(e); err != nil {
			return n, err
		}
		n++
	}
}
