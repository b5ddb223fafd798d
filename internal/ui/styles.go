// Package ui renders CLI output, with ANSI colors when the terminal allows.
package ui

import "fmt"

// ANSI256 color codes.
const (
	colorAccent = 74  // blue
	colorMuted  = 245 // medium gray
	colorOK     = 114 // green
	colorWarn   = 179 // amber
	colorFail   = 203 // red
)

var noColor bool

func paint(code int, s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", code, s)
}

// RenderAccent returns s in the accent (blue) color.
func RenderAccent(s string) string { return paint(colorAccent, s) }

// RenderMuted returns s in the muted (gray) color.
func RenderMuted(s string) string { return paint(colorMuted, s) }

// RenderEvent colors a lifecycle event or session state name by severity.
func RenderEvent(name string) string {
	switch name {
	case "ready", "authenticated", "already_logged_in", "success":
		return paint(colorOK, name)
	case "disconnected", "logged_out", "reinitializing":
		return paint(colorWarn, name)
	case "error", "auth_failure":
		return paint(colorFail, name)
	default:
		return paint(colorAccent, name)
	}
}

// ForceNoColor disables color output globally.
func ForceNoColor() {
	noColor = true
}
