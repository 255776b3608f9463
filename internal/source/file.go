package source

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Geun-Oh/lxring/internal/entry"
)

// FileSource reads lines from a file, optionally following appends like
// tail -f.
type FileSource struct {
	path   string
	follow bool
	poll   time.Duration
}

func NewFileSource(path string, follow bool) *FileSource {
	return &FileSource{path: path, follow: follow, poll: 100 * time.Millisecond}
}

func (s *FileSource) Name() string {
	return fmt.Sprintf("file:%s", s.path)
}

func (s *FileSource) Start(ctx context.Context) (<-chan entry.Record, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("source: open %s: %w", s.path, err)
	}

	ch := make(chan entry.Record, chanSize)
	go func() {
		defer close(ch)
		defer f.Close()

		ls := &lineScanner{tag: "file", owner: processOwner(), now: time.Now}
		ticker := time.NewTicker(s.poll)
		defer ticker.Stop()
		for {
			if !ls.run(ctx, f, ch) || !s.follow {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return ch, nil
}
