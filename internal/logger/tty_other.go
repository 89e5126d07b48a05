//go:build !linux

package logger

import "io"

// IsTerminal always reports false off Linux; output falls back to plain
// text.
func IsTerminal(io.Writer) bool { return false }
