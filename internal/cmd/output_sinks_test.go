package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/crawlpace/crawlpace/internal/output"
)

func TestOpenCommandSinkOutDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	c := &cobra.Command{Use: "test"}
	addOutputFlags(c)
	require.NoError(t, c.Flags().Parse([]string{"--output-format", "md", "--out-dir", dir}))

	format, sink, err := openCommandSink(c, "robots.check")
	require.NoError(t, err)
	require.Equal(t, output.FormatMarkdown, format)

	report := output.Report{Header: []string{"A"}, Rows: [][]string{{"1"}}}
	require.NoError(t, writeReports(sink.writer, format, report))
	require.NoError(t, sink.close())

	data, err := os.ReadFile(filepath.Join(dir, "robots.check.md"))
	require.NoError(t, err)
	require.Contains(t, string(data), "| A |")
}

func TestOutAndOutDirAreExclusive(t *testing.T) {
	c := &cobra.Command{Use: "test"}
	addOutputFlags(c)
	require.NoError(t, c.Flags().Parse([]string{"--out", "a.txt", "--out-dir", "b"}))

	_, _, err := openCommandSink(c, "x")
	require.Error(t, err)
}

func TestOpenCommandSinkDefaultsToCommandOutput(t *testing.T) {
	var buf bytes.Buffer
	c := &cobra.Command{Use: "test"}
	c.SetOut(&buf)
	addOutputFlags(c)
	require.NoError(t, c.Flags().Parse(nil))

	format, sink, err := openCommandSink(c, "x")
	require.NoError(t, err)
	require.Equal(t, output.FormatTable, format)
	require.Equal(t, "-", sink.path)

	empty := output.Report{}
	filled := output.Report{Header: []string{"Domain"}, Rows: [][]string{{"example.com"}}}
	require.NoError(t, writeReports(sink.writer, output.FormatMarkdown, empty, filled))
	require.True(t, strings.HasPrefix(buf.String(), "|"), buf.String())
}
