package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/santopaul/dicomweb/pkg/batch/report"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersionFlag(t *testing.T) {
	out, err := execute(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "dicomweb version")
}

func TestProcessCommand_RequiresDirectoryArg(t *testing.T) {
	_, err := execute(t, "process")
	assert.Error(t, err)
}

func TestProcessCommand_UnknownFlag(t *testing.T) {
	_, err := execute(t, "process", t.TempDir(), "--no-such-flag")
	assert.Error(t, err)
}

func TestProcessCommand_EndToEnd(t *testing.T) {
	input := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(input, "ct_head.dcm"), []byte("DICM"), 0o644))
	output := filepath.Join(t.TempDir(), "reports")

	_, err := execute(t, "process", input,
		"--output", output,
		"--format", "json",
		"--latency", "0s",
		"--verbose")
	require.NoError(t, err)

	path := filepath.Join(output, report.FileNameForFormat(filepath.Base(input), report.FormatJSON))
	body, err := os.ReadFile(path)
	require.NoError(t, err)

	var data report.Data
	require.NoError(t, json.Unmarshal(body, &data))
	assert.Equal(t, 1, data.Summary.TotalFiles)
	assert.Equal(t, 1, data.Summary.SuccessfulFiles)
}

func TestProcessCommand_MissingDirectory(t *testing.T) {
	_, err := execute(t, "process", filepath.Join(t.TempDir(), "missing"),
		"--latency", "0s")
	assert.Error(t, err)
}
