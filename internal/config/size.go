package config

import (
	"fmt"
	"strconv"
	"strings"

	units "github.com/docker/go-units"
	"gopkg.in/yaml.v3"
)

// Size is a byte count written as a plain number or with a binary unit
// suffix, e.g. 65536, "64KiB", "64K" or "1MiB".
type Size int

// MaxSize bounds any size in a config file or flag.
const MaxSize = 1 << 40

// ParseSize parses the forms Size accepts.
func ParseSize(s string) (Size, error) {
	n, err := units.RAMInBytes(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("config: bad size %q", s)
	}
	if n < 0 || n > MaxSize {
		return 0, fmt.Errorf("config: size %q out of range", s)
	}
	return Size(n), nil
}

func (s *Size) UnmarshalYAML(node *yaml.Node) error {
	v, err := ParseSize(node.Value)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func (s Size) String() string {
	switch {
	case s >= 1<<20 && s%(1<<20) == 0:
		return strconv.Itoa(int(s)>>20) + "MiB"
	case s >= 1<<10 && s%(1<<10) == 0:
		return strconv.Itoa(int(s)>>10) + "KiB"
	}
	return strconv.Itoa(int(s))
}
