package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfig = `# wrap the read-along view at this column (0 follows the terminal)
width: 0
# mouse wheel scrolling in the read-along view
mouse: false
# leave the read-along view when the session ends
quit_when_done: false

# Read-aloud configuration
tts:
  # Speech provider: local (host speech program) or network (synthesis service)
  provider: "local"
  # Language of requests without an explicit language (BCP 47)
  language: "en-US"
  # Use default-language catalog cards when the requested language is missing
  allow_fallback: true
  # voice: ""
  rate: 1.0
  pitch: 1.0
  volume: 1.0

  # Word highlighting in the read-along view
  highlight_enabled: true
  # black, red, green, yellow, blue, magenta, cyan, white or none
  highlight_color: "yellow"

  # Host speech program (espeak-ng, espeak or say)
  local:
    # binary: "espeak-ng"
    words_per_minute: 175

  # Neural synthesis service returning audio plus word timing marks
  network:
    # endpoint: "https://tts.example.com/v1/synthesize"
    # api_key: ""
    timeout: "15s"
    requests_per_second: 2
    burst: 4

  # Synthesis response cache (network provider)
  cache:
    enabled: true
    # dir: "~/.cache/readaloud"
    ttl: "24h"
    max_disk_mb: 100
`

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the readaloud config file",
	Long:    paragraph(fmt.Sprintf("\n%s the readaloud config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("readaloud config\nreadaloud config --config path/to/config.yml"),
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("Readaloud", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
		if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil { //nolint:gosec
			return fmt.Errorf("could not write configuration file: %w", err)
		}
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		// File doesn't exist yet, create all necessary directories and
		// write the default config file
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil { // some other error occurred
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
