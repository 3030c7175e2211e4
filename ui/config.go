package ui

// Config contains TUI-specific configuration.
type Config struct {
	// Title is shown above the content, usually the item file name.
	Title string

	// HighlightColor is one of the ANSI color names accepted by the
	// read-aloud configuration, or "none" for reverse video.
	HighlightColor string

	// Width wraps content at a fixed column; zero follows the terminal.
	Width int

	// QuitWhenDone exits once the session reaches idle again.
	QuitWhenDone bool

	EnableMouse bool
}
