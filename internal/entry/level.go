package entry

import (
	"regexp"
	"strings"
)

// Level is a log severity. It is never stored; it is detected from payload
// text when an entry is rendered or filtered.
type Level int

const (
	LevelUnknown Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

var levelNames = [...]string{
	LevelUnknown: "UNKNOWN",
	LevelDebug:   "DEBUG",
	LevelInfo:    "INFO",
	LevelWarn:    "WARN",
	LevelError:   "ERROR",
	LevelFatal:   "FATAL",
}

// String returns the upper-case name of the level.
func (l Level) String() string {
	if l < 0 || int(l) >= len(levelNames) {
		return levelNames[LevelUnknown]
	}
	return levelNames[l]
}

// ParseLevel converts a level name or common alias. Case-insensitive.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG", "TRACE":
		return LevelDebug
	case "INFO":
		return LevelInfo
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR", "ERR":
		return LevelError
	case "FATAL", "PANIC", "CRITICAL":
		return LevelFatal
	default:
		return LevelUnknown
	}
}

// levelRegex finds the first level-looking word, e.g. "[ERROR]" or "level=warn".
var levelRegex = regexp.MustCompile(`(?i)\b(DEBUG|TRACE|INFO|WARN(?:ING)?|ERR(?:OR)?|FATAL|PANIC|CRITICAL)\b`)

// DetectLevel extracts a severity from free-form message text.
func DetectLevel(msg string) Level {
	match := levelRegex.FindString(msg)
	if match == "" {
		return LevelUnknown
	}
	return ParseLevel(match)
}
