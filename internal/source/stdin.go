package source

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/Geun-Oh/lxring/internal/entry"
)

// StdinSource reads lines from a reader, os.Stdin by default.
type StdinSource struct {
	r io.Reader
}

func NewStdinSource() *StdinSource {
	return &StdinSource{r: os.Stdin}
}

// NewReaderSource reads lines from r as if it were stdin.
func NewReaderSource(r io.Reader) *StdinSource {
	return &StdinSource{r: r}
}

func (s *StdinSource) Name() string {
	return "stdin"
}

func (s *StdinSource) Start(ctx context.Context) (<-chan entry.Record, error) {
	ch := make(chan entry.Record, chanSize)
	go func() {
		defer close(ch)
		ls := &lineScanner{tag: "stdin", owner: processOwner(), now: time.Now}
		ls.run(ctx, s.r, ch)
	}()
	return ch, nil
}
