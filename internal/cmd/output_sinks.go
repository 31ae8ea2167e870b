package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/crawlpace/crawlpace/internal/output"
)

var formatExtensions = map[output.Format]string{
	output.FormatJSON:     "json",
	output.FormatMarkdown: "md",
	output.FormatTable:    "txt",
}

// outputSink is where a command writes its rendered reports.
type outputSink struct {
	writer io.Writer
	close  func() error
	path   string
}

// addOutputFlags registers --output-format, --out and --out-dir.
func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().String("output-format", string(output.FormatTable), "Output format: table|json|markdown")
	cmd.Flags().String("out", "", "Write output to a file (default stdout)")
	cmd.Flags().String("out-dir", "", "Write output to <dir>/<command>.<ext>")
}

// openCommandSink resolves cmd's output flags. stem names the file written
// under --out-dir, e.g. "robots.check".
func openCommandSink(cmd *cobra.Command, stem string) (output.Format, *outputSink, error) {
	flags := cmd.Flags()
	rawFormat, _ := flags.GetString("output-format")
	outPath, _ := flags.GetString("out")
	outDir, _ := flags.GetString("out-dir")
	outPath, outDir = strings.TrimSpace(outPath), strings.TrimSpace(outDir)

	format, err := output.ParseFormat(rawFormat)
	if err != nil {
		return "", nil, err
	}
	if outPath != "" && outDir != "" {
		return "", nil, errors.New("--out and --out-dir are mutually exclusive")
	}
	if outDir != "" {
		ext, ok := formatExtensions[format]
		if !ok {
			ext = "txt"
		}
		outPath = filepath.Join(outDir, stem+"."+ext)
	}

	if outPath == "" || outPath == "-" {
		return format, &outputSink{writer: cmd.OutOrStdout(), close: func() error { return nil }, path: "-"}, nil
	}
	sink, err := createFileSink(outPath)
	if err != nil {
		return "", nil, err
	}
	return format, sink, nil
}

func createFileSink(path string) (*outputSink, error) {
	// #nosec G301 -- report directories are user-chosen
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	file, err := os.Create(path) // #nosec G304 -- path comes from --out/--out-dir
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}
	return &outputSink{writer: file, close: file.Close, path: path}, nil
}

// writeReports renders each non-empty report, separated by a blank line.
func writeReports(w io.Writer, format output.Format, reports ...output.Report) error {
	written := 0
	for _, report := range reports {
		rendered, err := output.Render(format, report)
		if err != nil {
			return err
		}
		if strings.TrimSpace(rendered) == "" {
			continue
		}
		if written > 0 {
			rendered = "\n" + rendered
		}
		if _, err := fmt.Fprintln(w, rendered); err != nil {
			return err
		}
		written++
	}
	return nil
}
