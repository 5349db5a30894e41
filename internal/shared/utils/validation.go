package utils

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Size limits (in bytes)
const (
	MaxPayloadSize = 64 * 1024 // command payload
	MaxRequestSize = 1 << 20   // whole command request body
	MaxLogLineSize = 16 * 1024 // single log line forwarded to observers
)

// MaxCommandLength bounds the command name.
const MaxCommandLength = 64

// MaxPayloadDepth bounds JSON nesting in a command payload.
const MaxPayloadDepth = 16

// CommandPattern allows lowercase words joined by hyphens or colons
var CommandPattern = regexp.MustCompile(`^[a-z]+([:-][a-z]+)*$`)

// ValidateCommand checks a command name before dispatch.
func ValidateCommand(name string) error {
	if name == "" {
		return fmt.Errorf("command is required")
	}
	if utf8.RuneCountInString(name) > MaxCommandLength {
		return fmt.Errorf("command must not exceed %d characters", MaxCommandLength)
	}
	if !CommandPattern.MatchString(name) {
		return fmt.Errorf("command %q contains invalid characters", name)
	}
	return nil
}

// ValidatePayload checks the size, syntax and nesting of an optional
// JSON payload. An empty payload is valid.
func ValidatePayload(raw json.RawMessage) error {
	if len(raw) == 0 {
		return nil
	}
	if len(raw) > MaxPayloadSize {
		return fmt.Errorf("payload size %d bytes exceeds maximum %d bytes", len(raw), MaxPayloadSize)
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return checkDepth(v, 0, MaxPayloadDepth)
}

func checkDepth(data any, depth, maxDepth int) error {
	if depth > maxDepth {
		return fmt.Errorf("payload nesting depth exceeds maximum %d", maxDepth)
	}

	switch v := data.(type) {
	case map[string]any:
		for _, value := range v {
			if err := checkDepth(value, depth+1, maxDepth); err != nil {
				return err
			}
		}
	case []any:
		for _, value := range v {
			if err := checkDepth(value, depth+1, maxDepth); err != nil {
				return err
			}
		}
	}
	return nil
}

// TruncateLine cuts a log line to MaxLogLineSize bytes on a rune boundary
// and strips NUL bytes.
func TruncateLine(line string) string {
	line = strings.ReplaceAll(line, "\x00", "")
	if len(line) <= MaxLogLineSize {
		return line
	}
	cut := MaxLogLineSize
	for cut > 0 && !utf8.RuneStart(line[cut]) {
		cut--
	}
	return line[:cut] + "…"
}
