package config

import (
	"fmt"
	"strings"
)

// Mode is the experiment type selected on the command line.
type Mode string

const (
	// Single runs without the external field.
	Single Mode = "single"
	// Multi applies the configured field strength.
	Multi Mode = "multi"
)

// ParseMode accepts "single" and "multi", case-insensitively, and the
// legacy spellings "SingleP" and "MultiP".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "single", "singlep":
		return Single, nil
	case "multi", "multip":
		return Multi, nil
	}
	return "", fmt.Errorf("%w: unknown mode %q", ErrInvalid, s)
}

// ApplyMode adjusts the configuration for the experiment type.
func (c *Config) ApplyMode(m Mode) {
	if m == Single {
		c.Field.Strength = 0
	}
}
