package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dgnsrekt/readaloud/tts/catalog"
	"github.com/dgnsrekt/readaloud/tts/markup"
)

var scanContextID string

// scanReport is what scan prints.
type scanReport struct {
	Content  any             `yaml:"content"`
	Catalogs []catalog.Entry `yaml:"catalogs"`
	Skipped  []string        `yaml:"skipped,omitempty"`
}

var scanCmd = &cobra.Command{
	Use:   "scan FILE",
	Short: "Extract inline pronunciation markup from an item",
	Long: paragraph(fmt.Sprintf("\n%s every <speak> block in an item and print the cleaned content "+
		"and the generated catalogs as YAML. JSON items are scanned field by field; any other file "+
		"is scanned as one field.", keyword("Extract"))),
	Example: paragraph("readaloud scan item.json\nreadaloud scan --context q1 prompt.html"),
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := readSource(args[0])
		if err != nil {
			return err
		}

		contextID := scanContextID
		if contextID == "" {
			contextID = contextIDFromPath(args[0])
		}

		var content any = string(data)
		if isJSON(args[0], data) {
			if err := json.Unmarshal(data, &content); err != nil {
				return fmt.Errorf("unable to parse item: %w", err)
			}
		}

		res := markup.Extract(content, contextID)
		out, err := yaml.Marshal(scanReport{Content: res.Content, Catalogs: res.Entries, Skipped: res.Skipped})
		if err != nil {
			return fmt.Errorf("unable to encode report: %w", err)
		}
		if _, err := cmd.OutOrStdout().Write(out); err != nil {
			return err
		}
		if err := res.Err(); err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), faintStyle.Render("warning: "+err.Error()))
		}
		return nil
	},
}

func isJSON(path string, data []byte) bool {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return true
	}
	trimmed := strings.TrimSpace(string(data))
	return strings.HasPrefix(trimmed, "{") && json.Valid(data)
}

func contextIDFromPath(path string) string {
	if path == "-" {
		return "stdin"
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func readSource(path string) ([]byte, error) {
	if path == "-" {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("unable to read stdin: %w", err)
		}
		return b, nil
	}
	b, err := os.ReadFile(expandPath(path))
	if err != nil {
		return nil, fmt.Errorf("unable to read file: %w", err)
	}
	return b, nil
}

func init() {
	scanCmd.Flags().StringVar(&scanContextID, "context", "", "context id used in generated identifiers (default: file name)")
}
