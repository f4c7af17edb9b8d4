// Package tui implements the whiptrail terminal user interface: a live
// chain trail that follows the mouse, built with Charmbracelet's BubbleTea,
// Lipgloss and Bubbles libraries.
//
// Component architecture:
//
//	model.go       root model, message routing, Init/Update/View
//	frames.go      tea-driven trail.Scheduler and the tagged frame tick
//	canvas.go      cell grid implementing trail.Targets
//	theme.go       dark and light palettes and component styles
//	header.go      top bar and footer
//	stats.go       live frame and session statistics
//	sessionlist.go recorded-session selector
//	recording.go   recording into the store and replay from it
//	keys.go        key bindings and help
//	helpers.go     truncation, IDs, clamping
package tui
