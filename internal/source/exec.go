package source

import (
	"context"
	"fmt"
	"os/exec"
	"sync"

	"github.com/Geun-Oh/lxring/internal/entry"
)

// ExecSource runs a command and records its stdout and stderr lines, tagged
// by stream and owned by the child process.
type ExecSource struct {
	command string
	args    []string

	mu  sync.Mutex
	err error
}

func NewExecSource(command string, args []string) *ExecSource {
	return &ExecSource{command: command, args: args}
}

func (s *ExecSource) Name() string {
	return fmt.Sprintf("exec:%s", s.command)
}

// Err returns the command's exit error once the channel is closed.
func (s *ExecSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *ExecSource) Start(ctx context.Context) (<-chan entry.Record, error) {
	cmd := exec.CommandContext(ctx, s.command, s.args...)
	return startCommand(ctx, cmd, nil, func(err error) {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
	})
}
