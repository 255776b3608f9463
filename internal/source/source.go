// Package source turns log inputs into records ready for a store.
package source

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/Geun-Oh/lxring/internal/entry"
)

// Source emits records until its input ends or ctx is cancelled, then
// closes the channel.
type Source interface {
	Start(ctx context.Context) (<-chan entry.Record, error)
	Name() string
}

const (
	chanSize    = 256
	maxLineSize = 1024 * 1024
)

// processOwner describes records produced by this process itself.
func processOwner() entry.Owner {
	return entry.Owner{PID: int32(os.Getpid()), UID: uint32(os.Getuid())}
}

// lineScanner feeds lines of r to ch as records tagged with tag. parse, if
// set, splits a source timestamp off the line.
type lineScanner struct {
	tag   string
	owner entry.Owner
	now   func() time.Time
	parse func(line string) (time.Time, string, bool)
}

// run returns false once ctx is done.
func (ls *lineScanner) run(ctx context.Context, r io.Reader, ch chan<- entry.Record) bool {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for sc.Scan() {
		text := sc.Text()
		ts := ls.now()
		if ls.parse != nil {
			if t, msg, ok := ls.parse(text); ok {
				ts, text = t, msg
			}
		}
		rec := entry.Record{
			Owner:   ls.owner,
			Tag:     ls.tag,
			Time:    entry.TimestampOf(ts),
			Payload: []byte(text),
		}
		select {
		case ch <- rec:
		case <-ctx.Done():
			return false
		}
	}
	return ctx.Err() == nil
}

// startCommand starts cmd and scans its stdout and stderr into one channel.
// done, if set, receives the exit error before the channel is closed.
func startCommand(ctx context.Context, cmd *exec.Cmd, parse func(string) (time.Time, string, bool), done func(error)) (<-chan entry.Record, error) {
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("source: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("source: stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("source: start %s: %w", cmd.Path, err)
	}

	owner := entry.Owner{PID: int32(cmd.Process.Pid), UID: uint32(os.Getuid())}
	ch := make(chan entry.Record, chanSize)
	var wg sync.WaitGroup
	scan := func(tag string, r io.Reader) {
		defer wg.Done()
		ls := &lineScanner{tag: tag, owner: owner, now: time.Now, parse: parse}
		if !ls.run(ctx, r, ch) {
			// Keep the pipe drained so the child is not blocked on a full pipe.
			_, _ = io.Copy(io.Discard, r)
		}
	}
	wg.Add(2)
	go scan("stdout", stdout)
	go scan("stderr", stderr)

	go func() {
		wg.Wait()
		err := cmd.Wait()
		if done != nil {
			done(err)
		}
		close(ch)
	}()
	return ch, nil
}
