// Package cli implements the application logic behind the commands: batch
// processing of a local directory and the HTTP server mode.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/santopaul/dicomweb/internal/cli/config"
	"github.com/santopaul/dicomweb/internal/cli/hooks"
	"github.com/santopaul/dicomweb/internal/server"
	"github.com/santopaul/dicomweb/pkg/batch"
	"github.com/santopaul/dicomweb/pkg/batch/anonymize"
	"github.com/santopaul/dicomweb/pkg/batch/extract"
	"github.com/santopaul/dicomweb/pkg/batch/report"
)

// shutdownGrace bounds how long the server drains connections on shutdown.
const shutdownGrace = 10 * time.Second

// barAdapter narrows *progressbar.ProgressBar to the hooks.ProgressBar
// interface; Describe on the underlying type returns nothing.
type barAdapter struct {
	bar *progressbar.ProgressBar
}

func (b barAdapter) Add(n int) error { return b.bar.Add(n) }
func (b barAdapter) Describe(d string) error {
	b.bar.Describe(d)
	return nil
}
func (b barAdapter) Close() error { return b.bar.Close() }

// optionsFromSettings projects the merged configuration into per-job options.
func optionsFromSettings(s config.Settings) batch.ProcessingOptions {
	return batch.ProcessingOptions{
		Anonymize:         s.Anonymize,
		AnonymizeMode:     anonymize.Mode(s.AnonymizeMode),
		AnonymizeTags:     s.AnonymizeTags,
		AnonymizeSalt:     s.AnonymizeSalt,
		RemovePrivateTags: s.RemovePrivateTags,
		OutputFormats:     s.OutputFormats,
	}
}

// RunProcess scans inputDir, processes every recognized image file as one
// job, and writes the configured report formats into the output directory.
// Cancelling ctx pauses the job and returns the context error.
func RunProcess(ctx context.Context, settings config.Settings, inputDir string, logger *slog.Logger) error {
	specs, err := batch.ScanDirectory(inputDir, settings.MaxScanDepth)
	if err != nil {
		return err
	}
	if len(specs) == 0 {
		return fmt.Errorf("%w: no recognized image files under %s", batch.ErrValidation, inputDir)
	}
	logger.Info("scan complete", slog.String("dir", inputDir), slog.Int("files", len(specs)))

	var bar hooks.ProgressBar
	if !settings.Verbose {
		bar = barAdapter{bar: progressbar.NewOptions(len(specs),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("processing"),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)}
	}

	orch, err := batch.New(batch.Config{
		Logger:    logger.Handler(),
		Extractor: extract.NewStubService(logger.Handler(), settings.ExtractLatency),
		Hooks:     hooks.NewCLIHooks(logger, settings.Verbose, bar),
	})
	if err != nil {
		return err
	}

	jobID, err := orch.CreateJob(filepath.Base(inputDir), specs, optionsFromSettings(settings))
	if err != nil {
		return err
	}
	if err := orch.Start(jobID); err != nil {
		return err
	}

	waitCh := make(chan struct{})
	go func() {
		orch.Wait(jobID)
		close(waitCh)
	}()
	select {
	case <-ctx.Done():
		logger.Warn("interrupted, pausing job", slog.String("jobID", jobID))
		_ = orch.Pause(jobID)
		return ctx.Err()
	case <-waitCh:
	}

	view, err := orch.Job(jobID)
	if err != nil {
		return err
	}
	if err := writeReports(view, settings.OutputDir, logger); err != nil {
		return err
	}

	summary := report.Aggregate(view.Outcomes())
	logger.Info("batch finished",
		slog.String("jobID", jobID),
		slog.Int("total", summary.TotalFiles),
		slog.Int("successful", summary.SuccessfulFiles),
		slog.Int("failed", summary.FailedFiles),
		slog.Int("urgent", summary.UrgentCount))
	return nil
}

// writeReports renders the job's requested formats into outputDir, plus the
// pseudonym map when pseudonymization produced one.
func writeReports(view batch.JobView, outputDir string, logger *slog.Logger) error {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	formats := view.Options.OutputFormats
	if len(formats) == 0 {
		formats = []string{string(report.FormatJSON)}
	}
	data := view.BuildReport(report.DefaultSections())
	for _, f := range formats {
		format, err := report.ParseFormat(f)
		if err != nil {
			return err
		}
		body, _, err := report.Render(data, format)
		if err != nil {
			return err
		}
		path := filepath.Join(outputDir, report.FileNameForFormat(view.Name, format))
		if err := os.WriteFile(path, body, 0o644); err != nil {
			return fmt.Errorf("writing report: %w", err)
		}
		logger.Info("report written", slog.String("path", path))
	}

	if len(view.Pseudonyms) > 0 {
		body, err := json.MarshalIndent(view.Pseudonyms, "", "  ")
		if err != nil {
			return fmt.Errorf("marshalling pseudonym map: %w", err)
		}
		path := filepath.Join(outputDir, view.Name+"_pseudonyms.json")
		if err := os.WriteFile(path, body, 0o600); err != nil {
			return fmt.Errorf("writing pseudonym map: %w", err)
		}
		logger.Info("pseudonym map written", slog.String("path", path))
	}
	return nil
}

// RunServe runs the HTTP server until ctx is cancelled.
func RunServe(ctx context.Context, settings config.Settings, logger *slog.Logger) error {
	hub := server.NewHub(logger.Handler())
	orch, err := batch.New(batch.Config{
		Logger:    logger.Handler(),
		Extractor: extract.NewStubService(logger.Handler(), settings.ExtractLatency),
		Hooks:     server.NewBroadcastHooks(hub),
	})
	if err != nil {
		return err
	}

	srv, err := server.New(server.Config{
		Logger:       logger.Handler(),
		Orchestrator: orch,
		Hub:          hub,
		StagingDir:   settings.StagingDir,
	})
	if err != nil {
		return err
	}

	httpSrv := &http.Server{
		Addr:              settings.ListenAddr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", slog.String("addr", settings.ListenAddr))
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	}
}
