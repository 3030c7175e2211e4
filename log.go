package main

import (
	"os"

	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/viper"

	"github.com/dgnsrekt/readaloud/tts"
)

// setupLog configures logging from the debug and log-file settings. Debug
// logging without an explicit file goes to the user's log directory so it
// does not corrupt the TUI.
func setupLog() (func() error, error) {
	debug := viper.GetBool("debug")
	logFile := expandPath(viper.GetString("log-file"))

	if debug && logFile == "" {
		if p, err := gap.NewScope(gap.User, appName).LogPath(appName + ".log"); err == nil {
			logFile = p
		}
	}

	closer, err := tts.InitializeLogging(debug, logFile)
	if err != nil {
		return nil, err
	}

	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			_ = closer.Close()
			return nil, err
		}
		log.SetOutput(f)
		log.SetReportTimestamp(true)
		return func() error {
			_ = f.Close()
			return closer.Close()
		}, nil
	}
	return closer.Close, nil
}
