package source

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/Geun-Oh/lxring/internal/entry"
)

// DockerSource reads a container's logs through `docker logs`.
type DockerSource struct {
	container string
	follow    bool
}

func NewDockerSource(container string, follow bool) *DockerSource {
	return &DockerSource{container: container, follow: follow}
}

func (s *DockerSource) Name() string {
	return fmt.Sprintf("docker:%s", s.container)
}

func (s *DockerSource) Start(ctx context.Context) (<-chan entry.Record, error) {
	args := []string{"logs"}
	if s.follow {
		args = append(args, "--follow")
	}
	args = append(args, "--timestamps", s.container)
	cmd := exec.CommandContext(ctx, "docker", args...)
	return startCommand(ctx, cmd, parseDockerTimestamp, nil)
}

// parseDockerTimestamp splits the RFC 3339 prefix `docker logs --timestamps`
// puts on every line.
func parseDockerTimestamp(line string) (time.Time, string, bool) {
	head, msg, ok := strings.Cut(line, " ")
	if !ok {
		return time.Time{}, line, false
	}
	ts, err := time.Parse(time.RFC3339Nano, head)
	if err != nil {
		return time.Time{}, line, false
	}
	return ts, msg, true
}
