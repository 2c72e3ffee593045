// Package config merges settings from defaults, an optional config file,
// environment variables, and command-line flags, in ascending priority, and
// builds the application logger.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/santopaul/dicomweb/pkg/batch/anonymize"
	"github.com/santopaul/dicomweb/pkg/batch/report"
)

const (
	// EnvPrefix namespaces environment variables, e.g. DICOMWEB_LISTEN_ADDR.
	EnvPrefix = "DICOMWEB"
	// DefaultConfigName is the base name of the config file searched for in
	// the working directory and the user config directory.
	DefaultConfigName = "dicomweb"
)

// Settings is the merged application configuration.
type Settings struct {
	ListenAddr     string        `mapstructure:"listenAddr"`
	StagingDir     string        `mapstructure:"stagingDir"`
	OutputDir      string        `mapstructure:"outputDir"`
	ExtractLatency time.Duration `mapstructure:"extractLatency"`
	MaxScanDepth   int           `mapstructure:"maxScanDepth"`
	Verbose        bool          `mapstructure:"verbose"`

	Anonymize         bool     `mapstructure:"anonymize"`
	AnonymizeMode     string   `mapstructure:"anonymizeMode"`
	AnonymizeTags     []string `mapstructure:"anonymizeTags"`
	AnonymizeSalt     string   `mapstructure:"anonymizeSalt"`
	RemovePrivateTags bool     `mapstructure:"removePrivateTags"`
	OutputFormats     []string `mapstructure:"outputFormats"`

	ConfigFileUsed string `mapstructure:"-"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listenAddr", ":8080")
	v.SetDefault("stagingDir", filepath.Join(os.TempDir(), "dicomweb-staging"))
	v.SetDefault("outputDir", "reports")
	v.SetDefault("extractLatency", 150*time.Millisecond)
	v.SetDefault("maxScanDepth", 0)
	v.SetDefault("verbose", false)
	v.SetDefault("anonymize", false)
	v.SetDefault("anonymizeMode", string(anonymize.ModePseudonymize))
	v.SetDefault("anonymizeTags", []string{})
	v.SetDefault("anonymizeSalt", "")
	v.SetDefault("removePrivateTags", false)
	v.SetDefault("outputFormats", []string{string(report.FormatJSON)})
}

// flagKeys maps config keys to the flag names bound when present. Flag values
// override file and environment settings.
var flagKeys = map[string]string{
	"listenAddr":        "listen",
	"stagingDir":        "staging-dir",
	"outputDir":         "output",
	"extractLatency":    "latency",
	"maxScanDepth":      "max-depth",
	"verbose":           "verbose",
	"anonymize":         "anonymize",
	"anonymizeMode":     "anonymize-mode",
	"anonymizeTags":     "anonymize-tags",
	"anonymizeSalt":     "salt",
	"removePrivateTags": "remove-private-tags",
	"outputFormats":     "format",
}

// Load merges all configuration sources and returns the validated settings
// plus a logger configured per the verbose setting.
func Load(cfgFile string, flags *pflag.FlagSet) (Settings, *slog.Logger, error) {
	var s Settings
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(DefaultConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", DefaultConfigName))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || cfgFile != "" {
			return s, fallbackLogger(), fmt.Errorf("reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for key, name := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return s, fallbackLogger(), fmt.Errorf("binding flag --%s: %w", name, err)
				}
			}
		}
	}

	if err := v.Unmarshal(&s); err != nil {
		return s, fallbackLogger(), fmt.Errorf("unmarshalling configuration: %w", err)
	}
	s.ConfigFileUsed = v.ConfigFileUsed()

	if err := s.validate(); err != nil {
		return s, fallbackLogger(), err
	}

	level := slog.LevelInfo
	if s.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	return s, logger, nil
}

func (s Settings) validate() error {
	switch s.AnonymizeMode {
	case string(anonymize.ModePseudonymize), string(anonymize.ModeRemove):
	default:
		return fmt.Errorf("invalid anonymizeMode %q (want %q or %q)",
			s.AnonymizeMode, anonymize.ModePseudonymize, anonymize.ModeRemove)
	}
	for _, f := range s.OutputFormats {
		if _, err := report.ParseFormat(f); err != nil {
			return err
		}
	}
	if s.ExtractLatency < 0 {
		return fmt.Errorf("extractLatency cannot be negative")
	}
	return nil
}

func fallbackLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
}
