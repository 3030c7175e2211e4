// Package queue provides the ordered, non-blocking hand-off used to move
// playback events from the controller to the terminal UI.
package queue
