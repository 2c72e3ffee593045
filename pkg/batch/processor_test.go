package batch_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/santopaul/dicomweb/internal/testutil"
	"github.com/santopaul/dicomweb/pkg/batch"
	"github.com/santopaul/dicomweb/pkg/batch/anonymize"
)

func discardHandler() slog.Handler {
	return slog.NewTextHandler(io.Discard, nil)
}

func collectTicks() (func(int), *[]int) {
	var ticks []int
	return func(pct int) { ticks = append(ticks, pct) }, &ticks
}

func TestProcess_Success(t *testing.T) {
	svc := testutil.NewScriptedExtractor()
	p := batch.NewFileProcessor(discardHandler(), svc, batch.ProcessingOptions{})

	progress, ticks := collectTicks()
	outcome := p.Process(context.Background(), "scan.dcm", "", progress)

	assert.Equal(t, batch.FileCompleted, outcome.Status)
	require.NotNil(t, outcome.Metadata)
	assert.NoError(t, outcome.Err)
	assert.Nil(t, outcome.Pseudonyms, "no anonymization requested")
	assert.GreaterOrEqual(t, outcome.Duration, time.Duration(0))

	require.NotEmpty(t, *ticks)
	assert.Equal(t, 100, (*ticks)[len(*ticks)-1])
	for i := 1; i < len(*ticks); i++ {
		assert.GreaterOrEqual(t, (*ticks)[i], (*ticks)[i-1])
	}
}

func TestProcess_ReadsSourceFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scan.dcm")
	require.NoError(t, os.WriteFile(path, []byte("DICM"), 0o644))

	svc := testutil.NewScriptedExtractor()
	p := batch.NewFileProcessor(discardHandler(), svc, batch.ProcessingOptions{})

	outcome := p.Process(context.Background(), "scan.dcm", path, func(int) {})
	assert.Equal(t, batch.FileCompleted, outcome.Status)
	assert.Equal(t, []string{"scan.dcm"}, svc.Calls())
}

func TestProcess_MissingSourceFile(t *testing.T) {
	svc := testutil.NewScriptedExtractor()
	p := batch.NewFileProcessor(discardHandler(), svc, batch.ProcessingOptions{})

	outcome := p.Process(context.Background(), "scan.dcm", filepath.Join(t.TempDir(), "gone.dcm"), func(int) {})
	assert.Equal(t, batch.FileError, outcome.Status)
	assert.ErrorIs(t, outcome.Err, batch.ErrExtraction)
	assert.Empty(t, svc.Calls(), "extraction is never attempted for unreadable input")
}

func TestProcess_ExtractionFailure(t *testing.T) {
	svc := testutil.NewScriptedExtractor()
	svc.FailWith("bad.dcm", errors.New("truncated header"))
	p := batch.NewFileProcessor(discardHandler(), svc, batch.ProcessingOptions{})

	outcome := p.Process(context.Background(), "bad.dcm", "", func(int) {})
	assert.Equal(t, batch.FileError, outcome.Status)
	require.Error(t, outcome.Err)
	assert.ErrorIs(t, outcome.Err, batch.ErrExtraction)
	assert.Contains(t, outcome.Err.Error(), "truncated header")
	assert.Nil(t, outcome.Metadata)
}

func TestProcess_CancellationYieldsPaused(t *testing.T) {
	svc := testutil.NewScriptedExtractor()
	svc.BlockOn("slow.dcm")
	p := batch.NewFileProcessor(discardHandler(), svc, batch.ProcessingOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	outcome := p.Process(ctx, "slow.dcm", "", func(int) {})
	assert.Equal(t, batch.FilePaused, outcome.Status, "cancellation is a pause, not a failure")
	assert.NoError(t, outcome.Err)
	assert.Nil(t, outcome.Metadata)
}

func TestProcess_AnonymizesWhenEnabled(t *testing.T) {
	svc := testutil.NewScriptedExtractor()
	p := batch.NewFileProcessor(discardHandler(), svc, batch.ProcessingOptions{
		Anonymize:     true,
		AnonymizeMode: anonymize.ModeRemove,
	})

	outcome := p.Process(context.Background(), "scan.dcm", "", func(int) {})
	require.Equal(t, batch.FileCompleted, outcome.Status)
	require.NotNil(t, outcome.Metadata)
	assert.Equal(t, anonymize.RedactionMarker, outcome.Metadata.PatientName)
	assert.Equal(t, "YES", outcome.Metadata.PhiRemoved)
	assert.Empty(t, outcome.Metadata.PhiFlags)
	assert.Empty(t, outcome.Pseudonyms, "remove mode records no pseudonyms")
}
