package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func inTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	inTempDir(t)

	s, logger, err := Load("", nil)
	require.NoError(t, err)
	require.NotNil(t, logger)

	assert.Equal(t, ":8080", s.ListenAddr)
	assert.Equal(t, "reports", s.OutputDir)
	assert.Equal(t, 150*time.Millisecond, s.ExtractLatency)
	assert.False(t, s.Anonymize)
	assert.Equal(t, "pseudonymize", s.AnonymizeMode)
	assert.Equal(t, []string{"json"}, s.OutputFormats)
	assert.Empty(t, s.ConfigFileUsed)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := inTempDir(t)
	path := filepath.Join(dir, "dicomweb.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listenAddr: ":9999"
anonymize: true
anonymizeMode: remove
outputFormats:
  - json
  - csv
`), 0o644))

	s, _, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, ":9999", s.ListenAddr)
	assert.True(t, s.Anonymize)
	assert.Equal(t, "remove", s.AnonymizeMode)
	assert.Equal(t, []string{"json", "csv"}, s.OutputFormats)
	assert.Equal(t, path, s.ConfigFileUsed)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	inTempDir(t)
	_, _, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	assert.Error(t, err)
}

func TestLoad_EnvOverride(t *testing.T) {
	inTempDir(t)
	t.Setenv("DICOMWEB_LISTENADDR", ":7777")
	t.Setenv("DICOMWEB_ANONYMIZE", "true")

	s, _, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, ":7777", s.ListenAddr)
	assert.True(t, s.Anonymize)
}

func TestLoad_FlagsOverrideEverything(t *testing.T) {
	dir := inTempDir(t)
	path := filepath.Join(dir, "dicomweb.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listenAddr: \":9999\"\n"), 0o644))

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("listen", ":8080", "")
	flags.Bool("anonymize", false, "")
	require.NoError(t, flags.Parse([]string{"--listen", ":6060", "--anonymize"}))

	s, _, err := Load(path, flags)
	require.NoError(t, err)
	assert.Equal(t, ":6060", s.ListenAddr)
	assert.True(t, s.Anonymize)
}

func TestLoad_UnsetFlagKeepsLowerPriorityValue(t *testing.T) {
	dir := inTempDir(t)
	path := filepath.Join(dir, "dicomweb.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listenAddr: \":9999\"\n"), 0o644))

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("listen", ":8080", "")
	require.NoError(t, flags.Parse(nil))

	s, _, err := Load(path, flags)
	require.NoError(t, err)
	assert.Equal(t, ":9999", s.ListenAddr, "an unset flag must not mask the config file")
}

func TestLoad_Validation(t *testing.T) {
	dir := inTempDir(t)

	path := filepath.Join(dir, "bad-mode.yaml")
	require.NoError(t, os.WriteFile(path, []byte("anonymizeMode: shred\n"), 0o644))
	_, _, err := Load(path, nil)
	assert.ErrorContains(t, err, "anonymizeMode")

	path = filepath.Join(dir, "bad-format.yaml")
	require.NoError(t, os.WriteFile(path, []byte("outputFormats: [pdf]\n"), 0o644))
	_, _, err = Load(path, nil)
	assert.ErrorContains(t, err, "unknown report format")
}
