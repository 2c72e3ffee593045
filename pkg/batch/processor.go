package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/santopaul/dicomweb/pkg/batch/anonymize"
	"github.com/santopaul/dicomweb/pkg/batch/extract"
)

// Outcome is the result of processing one file.
type Outcome struct {
	Status     FileStatus
	Metadata   *extract.Metadata
	Pseudonyms map[string]string
	Err        error
	Duration   time.Duration
}

// FileProcessor drives a single file through the extraction service and,
// when enabled, the anonymization engine. One processor is built per job run
// from the job's options snapshot.
type FileProcessor struct {
	logger    *slog.Logger
	extractor extract.Service
	engine    *anonymize.Engine
	anonymize bool
}

// NewFileProcessor creates a processor for one job run.
func NewFileProcessor(handler slog.Handler, svc extract.Service, opts ProcessingOptions) *FileProcessor {
	p := &FileProcessor{
		logger:    slog.New(handler).With(slog.String("component", "processor")),
		extractor: svc,
		anonymize: opts.Anonymize,
	}
	if opts.Anonymize {
		p.engine = anonymize.NewEngine(handler, anonymize.Config{
			Mode:              opts.AnonymizeMode,
			Tags:              opts.AnonymizeTags,
			Salt:              opts.AnonymizeSalt,
			RemovePrivateTags: opts.RemovePrivateTags,
		})
	}
	return p
}

// Process runs the per-file pipeline. Cancellation observed during the
// extraction call yields FilePaused, never FileError. progress receives
// synthesized ticks, non-decreasing within the call and exactly 100 on
// completion; the extraction service itself reports no granular progress.
func (p *FileProcessor) Process(ctx context.Context, name, path string, progress func(int)) Outcome {
	start := time.Now()
	progress(5)

	var data []byte
	if path != "" {
		var readErr error
		data, readErr = os.ReadFile(path)
		if readErr != nil {
			p.logger.Error("failed to read source file", slog.String("file", name), slog.String("error", readErr.Error()))
			return Outcome{
				Status:   FileError,
				Err:      fmt.Errorf("%w: reading %s: %w", ErrExtraction, name, readErr),
				Duration: time.Since(start),
			}
		}
	}
	progress(15)

	md, err := p.extractor.Extract(ctx, name, data)
	if err != nil {
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			p.logger.Debug("extraction cancelled", slog.String("file", name))
			return Outcome{Status: FilePaused, Duration: time.Since(start)}
		}
		p.logger.Warn("extraction failed", slog.String("file", name), slog.String("error", err.Error()))
		return Outcome{
			Status:   FileError,
			Err:      fmt.Errorf("%w: %w", ErrExtraction, err),
			Duration: time.Since(start),
		}
	}
	progress(70)

	var pseudonyms map[string]string
	if p.anonymize {
		pseudonyms = p.engine.Anonymize(md)
		progress(90)
	}

	progress(100)
	return Outcome{
		Status:     FileCompleted,
		Metadata:   md,
		Pseudonyms: pseudonyms,
		Duration:   time.Since(start),
	}
}
