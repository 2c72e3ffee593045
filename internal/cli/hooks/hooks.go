// Package hooks bridges processing events to the CLI's output layer: a
// progress bar on a TTY, structured logs otherwise.
package hooks

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/santopaul/dicomweb/pkg/batch"
)

// ProgressBar is the subset of the progress bar used by the hooks, decoupled
// so tests can substitute a recorder.
type ProgressBar interface {
	Add(num int) error
	Describe(description string) error
	Close() error
}

// NoOpProgressBar is the null ProgressBar.
type NoOpProgressBar struct{}

func (NoOpProgressBar) Add(int) error         { return nil }
func (NoOpProgressBar) Describe(string) error { return nil }
func (NoOpProgressBar) Close() error          { return nil }

// CLIHooks implements batch.Hooks for command-line runs.
type CLIHooks struct {
	logger  *slog.Logger
	verbose bool
	mu      sync.Mutex
	bar     ProgressBar
}

// NewCLIHooks builds hooks around a progress bar. Pass nil for bar to fall
// back to log-only output.
func NewCLIHooks(logger *slog.Logger, verbose bool, bar ProgressBar) *CLIHooks {
	if bar == nil {
		bar = NoOpProgressBar{}
	}
	return &CLIHooks{logger: logger, verbose: verbose, bar: bar}
}

// OnFileStatusUpdate advances the progress bar when a file reaches a terminal
// state and logs failures. Must be safe for concurrent use.
func (h *CLIHooks) OnFileStatusUpdate(jobID string, file batch.FileView) error {
	if h.verbose {
		h.logger.Debug("file status updated",
			slog.String("jobID", jobID),
			slog.String("file", file.Name),
			slog.String("status", string(file.Status)),
			slog.Int("progress", file.Progress))
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	switch file.Status {
	case batch.FileCompleted, batch.FileError:
		_ = h.bar.Add(1)
		_ = h.bar.Describe(file.Name)
	}
	if file.Status == batch.FileError {
		h.logger.Error("file processing failed",
			slog.String("file", file.Name),
			slog.String("error", file.Error))
	}
	return nil
}

// OnJobStatusUpdate logs job transitions in verbose mode.
func (h *CLIHooks) OnJobStatusUpdate(job batch.JobView) error {
	if h.verbose {
		h.logger.Debug("job status updated",
			slog.String("jobID", job.ID),
			slog.String("status", string(job.Status)),
			slog.Int("progress", job.Progress))
	}
	return nil
}

// OnJobComplete finalizes the progress bar.
func (h *CLIHooks) OnJobComplete(job batch.JobView) error {
	h.mu.Lock()
	_ = h.bar.Close()
	h.mu.Unlock()
	// Keep the shell prompt off the bar's final line.
	_, _ = fmt.Fprintln(os.Stderr)
	return nil
}

var _ batch.Hooks = (*CLIHooks)(nil)
