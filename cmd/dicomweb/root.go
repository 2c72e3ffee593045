package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/santopaul/dicomweb/internal/cli"
	"github.com/santopaul/dicomweb/internal/cli/config"
)

var (
	// Set at build time via -ldflags.
	version = "dev"
	commit  = "none"
	date    = "unknown"

	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "dicomweb",
	Short: "Batch processing of medical image files with anonymization and reporting.",
	Long: `dicomweb processes directories or uploads of DICOM image files:
it extracts study metadata, flags PHI and urgent findings, optionally
anonymizes identifying fields, and renders batch reports as JSON, CSV,
HTML, or FHIR ImagingStudy resources.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage:  true,
	SilenceErrors: false,
}

var processCmd = &cobra.Command{
	Use:   "process <directory>",
	Short: "Process every image file under a directory and write reports.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		settings, logger, err := config.Load(cfgFile, cmd.Flags())
		if err != nil {
			return err
		}
		return cli.RunProcess(ctx, settings, args[0], logger)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API with WebSocket status updates.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		settings, logger, err := config.Load(cfgFile, cmd.Flags())
		if err != nil {
			return err
		}
		return cli.RunServe(ctx, settings, logger)
	},
}

// Execute runs the root command.
func Execute() {
	rootCmd.SetVersionTemplate(`{{.Use}} version {{.Version}}` + "\n")
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Configuration file path (default searches . and $HOME/.config/dicomweb/)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose (debug) logging output")

	processCmd.Flags().StringP("output", "o", "reports", "Output directory for rendered reports")
	processCmd.Flags().StringSlice("format", []string{"json"}, `Report formats to write ("json", "csv", "html", "fhir")`)
	processCmd.Flags().Bool("anonymize", false, "Anonymize identifying metadata fields")
	processCmd.Flags().String("anonymize-mode", "pseudonymize", `Anonymization mode ("pseudonymize" or "remove")`)
	processCmd.Flags().StringSlice("anonymize-tags", nil, "Field names to anonymize (default: the built-in identifying set)")
	processCmd.Flags().String("salt", "", "Salt for deterministic pseudonyms (empty uses the built-in development salt)")
	processCmd.Flags().Bool("remove-private-tags", false, "Strip vendor-private tags from extracted metadata")
	processCmd.Flags().Duration("latency", 150*time.Millisecond, "Simulated per-file extraction latency")
	processCmd.Flags().Int("max-depth", 0, "Limit directory scanning depth (0 scans the whole tree)")

	serveCmd.Flags().String("listen", ":8080", "Listen address for the HTTP server")
	serveCmd.Flags().String("staging-dir", "", "Directory where uploads are staged before processing")
	serveCmd.Flags().Duration("latency", 150*time.Millisecond, "Simulated per-file extraction latency")

	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(serveCmd)
}
