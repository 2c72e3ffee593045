// Package testutil provides shared fakes and mocks for package tests:
// a testify mock of the extraction service, a scripted extractor whose
// per-file behavior tests drive directly, and a hook recorder.
package testutil

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/santopaul/dicomweb/pkg/batch"
	"github.com/santopaul/dicomweb/pkg/batch/extract"
)

// MockService is a testify mock of the extraction service, for tests that
// assert on call expectations. Configure with .On("Extract", ...).Return(...).
type MockService struct {
	mock.Mock
}

// Extract mocks the Extract method.
func (m *MockService) Extract(ctx context.Context, fileName string, data []byte) (*extract.Metadata, error) {
	args := m.Called(ctx, fileName, data)
	md, _ := args.Get(0).(*extract.Metadata)
	return md, args.Error(1)
}

// ScriptedExtractor is a hand-driven extraction service for orchestration
// tests: individual files can be made to fail or to block until released
// (or until the call's context is cancelled).
type ScriptedExtractor struct {
	mu    sync.Mutex
	fail  map[string]error
	block map[string]chan struct{}
	calls []string
	meta  func(fileName string) *extract.Metadata
}

// NewScriptedExtractor returns an extractor that succeeds instantly for every
// file with minimal deterministic metadata.
func NewScriptedExtractor() *ScriptedExtractor {
	return &ScriptedExtractor{
		fail:  make(map[string]error),
		block: make(map[string]chan struct{}),
		meta:  DefaultMetadata,
	}
}

// DefaultMetadata is the record ScriptedExtractor returns unless overridden.
func DefaultMetadata(fileName string) *extract.Metadata {
	md := &extract.Metadata{
		PatientID:        "PID000123",
		PatientName:      "DOE^JANE",
		PatientAge:       "045Y",
		PatientSex:       "F",
		Modality:         "CT",
		BodyPartExamined: "HEAD",
		StudyDescription: "CT HEAD",
		Manufacturer:     "SIEMENS",
		Model:            "SOMATOM Force",
		StudyInstanceUID: "1.2.826.0.1.3680043.2.1." + fileName,
		PhiRemoved:       "NO",
	}
	md.PhiFlags = extract.CheckPHI(md)
	md.Urgent, md.UrgentReasons = extract.AssessUrgency(md)
	return md
}

// SetMetadataFunc overrides the metadata factory.
func (e *ScriptedExtractor) SetMetadataFunc(fn func(string) *extract.Metadata) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.meta = fn
}

// FailWith makes extraction of fileName return err.
func (e *ScriptedExtractor) FailWith(fileName string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fail[fileName] = err
}

// BlockOn makes extraction of fileName park until the returned channel is
// closed or the call's context is cancelled.
func (e *ScriptedExtractor) BlockOn(fileName string) chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	ch := make(chan struct{})
	e.block[fileName] = ch
	return ch
}

// Calls returns the file names extracted so far, in call order.
func (e *ScriptedExtractor) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

// Extract implements extract.Service.
func (e *ScriptedExtractor) Extract(ctx context.Context, fileName string, data []byte) (*extract.Metadata, error) {
	e.mu.Lock()
	e.calls = append(e.calls, fileName)
	blockCh := e.block[fileName]
	failErr := e.fail[fileName]
	meta := e.meta
	e.mu.Unlock()

	if blockCh != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-blockCh:
		}
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	if failErr != nil {
		return nil, failErr
	}
	return meta(fileName), nil
}

// HookEvent is one recorded hook invocation.
type HookEvent struct {
	Kind  string // "file", "job", "complete"
	JobID string
	Job   batch.JobView
	File  batch.FileView
}

// CaptureHooks records every hook invocation for later assertions.
type CaptureHooks struct {
	mu     sync.Mutex
	events []HookEvent
}

// NewCaptureHooks returns an empty recorder.
func NewCaptureHooks() *CaptureHooks { return &CaptureHooks{} }

// OnFileStatusUpdate implements batch.Hooks.
func (h *CaptureHooks) OnFileStatusUpdate(jobID string, file batch.FileView) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, HookEvent{Kind: "file", JobID: jobID, File: file})
	return nil
}

// OnJobStatusUpdate implements batch.Hooks.
func (h *CaptureHooks) OnJobStatusUpdate(job batch.JobView) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, HookEvent{Kind: "job", JobID: job.ID, Job: job})
	return nil
}

// OnJobComplete implements batch.Hooks.
func (h *CaptureHooks) OnJobComplete(job batch.JobView) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, HookEvent{Kind: "complete", JobID: job.ID, Job: job})
	return nil
}

// Events returns a copy of the recorded events.
func (h *CaptureHooks) Events() []HookEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]HookEvent(nil), h.events...)
}

// FileProgressTicks returns the progress values recorded for one file, in
// order.
func (h *CaptureHooks) FileProgressTicks(fileName string) []int {
	h.mu.Lock()
	defer h.mu.Unlock()
	var ticks []int
	for _, ev := range h.events {
		if ev.Kind == "file" && ev.File.Name == fileName {
			ticks = append(ticks, ev.File.Progress)
		}
	}
	return ticks
}

var (
	_ extract.Service = (*ScriptedExtractor)(nil)
	_ extract.Service = (*MockService)(nil)
	_ batch.Hooks     = (*CaptureHooks)(nil)
)
