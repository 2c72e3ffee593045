package batch

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/santopaul/dicomweb/pkg/batch/extract"
)

// Config holds the dependencies for an Orchestrator instance.
type Config struct {
	Logger    slog.Handler    // required
	Extractor extract.Service // required
	Hooks     Hooks           // optional, defaults to NoOpHooks
}

// Orchestrator owns jobs and their files and enforces the process-wide
// "at most one active job" policy. Files are kept in an arena keyed by id,
// with each job holding an ordered id list, so per-file progress ticks mutate
// a single record instead of cloning collections.
//
// All state is process-local; nothing survives a restart.
type Orchestrator struct {
	handler   slog.Handler
	logger    *slog.Logger
	extractor extract.Service
	hooks     Hooks

	mu          sync.Mutex
	jobs        map[string]*batchJob
	files       map[string]*batchFile
	jobOrder    []string
	activeJobID string
	cancelRun   context.CancelFunc
	runDone     chan struct{}
}

// New creates an Orchestrator. It returns an error when a required
// dependency is missing so multiple instances can coexist in tests without
// ambient state.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("%w: logger handler cannot be nil", ErrValidation)
	}
	if cfg.Extractor == nil {
		return nil, fmt.Errorf("%w: extraction service cannot be nil", ErrValidation)
	}
	hooks := cfg.Hooks
	if hooks == nil {
		hooks = NoOpHooks{}
	}
	return &Orchestrator{
		handler:   cfg.Logger,
		logger:    slog.New(cfg.Logger).With(slog.String("component", "orchestrator")),
		extractor: cfg.Extractor,
		hooks:     hooks,
		jobs:      make(map[string]*batchJob),
		files:     make(map[string]*batchFile),
	}, nil
}

// CreateJob registers a new job with every file queued. The options value is
// snapshotted; later mutation of slices by the caller has no effect. A
// validation failure creates nothing.
func (o *Orchestrator) CreateJob(name string, specs []FileSpec, opts ProcessingOptions) (string, error) {
	if err := validateSpecs(specs); err != nil {
		return "", err
	}
	jobID := uuid.NewString()
	if name == "" {
		name = "batch-" + jobID[:8]
	}
	opts.AnonymizeTags = append([]string(nil), opts.AnonymizeTags...)
	opts.OutputFormats = append([]string(nil), opts.OutputFormats...)

	job := &batchJob{
		id:         jobID,
		name:       name,
		status:     JobIdle,
		options:    opts,
		pseudonyms: make(map[string]string),
		createdAt:  time.Now(),
		fileIDs:    make([]string, 0, len(specs)),
	}

	o.mu.Lock()
	for _, spec := range specs {
		f := &batchFile{
			id:     uuid.NewString(),
			jobID:  jobID,
			name:   spec.Name,
			path:   spec.Path,
			status: FileQueued,
		}
		o.files[f.id] = f
		job.fileIDs = append(job.fileIDs, f.id)
	}
	o.jobs[jobID] = job
	o.jobOrder = append(o.jobOrder, jobID)
	o.mu.Unlock()

	o.logger.Info("job created", slog.String("jobID", jobID), slog.String("name", name), slog.Int("files", len(specs)))
	return jobID, nil
}

// Start begins (or resumes) processing of a job's queued and paused files,
// strictly sequentially in insertion order. It is rejected with ErrJobActive
// while any job holds the active slot; the attempt is not queued.
func (o *Orchestrator) Start(jobID string) error {
	o.mu.Lock()
	job, ok := o.jobs[jobID]
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if o.activeJobID != "" {
		active := o.activeJobID
		o.mu.Unlock()
		o.logger.Warn("start rejected, another job is active",
			slog.String("jobID", jobID), slog.String("activeJobID", active))
		return fmt.Errorf("%w: %s", ErrJobActive, active)
	}

	job.status = JobRunning
	job.startedAt = time.Now()
	job.completedAt = time.Time{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	o.activeJobID = jobID
	o.cancelRun = cancel
	o.runDone = done

	processor := NewFileProcessor(o.handler, o.extractor, job.options)
	view := viewOfJob(job, o.files)
	o.mu.Unlock()

	o.emitJobUpdate(view)
	o.logger.Info("job started", slog.String("jobID", jobID))
	go o.run(ctx, cancel, jobID, processor, done)
	return nil
}

// Pause signals cooperative cancellation to the in-flight file and blocks
// until the driving loop has parked the job. The mid-flight file ends up
// paused with its progress discarded; files already terminal are unaffected.
func (o *Orchestrator) Pause(jobID string) error {
	o.mu.Lock()
	if _, ok := o.jobs[jobID]; !ok {
		o.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if o.activeJobID != jobID {
		o.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrJobNotRunning, jobID)
	}
	cancel, done := o.cancelRun, o.runDone
	o.mu.Unlock()

	cancel()
	<-done
	o.logger.Info("job paused", slog.String("jobID", jobID))
	return nil
}

// Delete removes a job and all its files, pausing it first when it is the
// active one.
func (o *Orchestrator) Delete(jobID string) error {
	o.mu.Lock()
	if _, ok := o.jobs[jobID]; !ok {
		o.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	var cancel context.CancelFunc
	var done chan struct{}
	if o.activeJobID == jobID {
		cancel, done = o.cancelRun, o.runDone
	}
	o.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	o.mu.Lock()
	job, ok := o.jobs[jobID]
	if ok {
		for _, id := range job.fileIDs {
			delete(o.files, id)
		}
		delete(o.jobs, jobID)
		for i, id := range o.jobOrder {
			if id == jobID {
				o.jobOrder = append(o.jobOrder[:i], o.jobOrder[i+1:]...)
				break
			}
		}
	}
	o.mu.Unlock()

	o.logger.Info("job deleted", slog.String("jobID", jobID))
	return nil
}

// Wait blocks until the job's current run has finished, whether it completed
// or was paused. It returns immediately when the job is not running.
func (o *Orchestrator) Wait(jobID string) {
	o.mu.Lock()
	if o.activeJobID != jobID {
		o.mu.Unlock()
		return
	}
	done := o.runDone
	o.mu.Unlock()
	<-done
}

// Job returns a snapshot of one job.
func (o *Orchestrator) Job(jobID string) (JobView, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	job, ok := o.jobs[jobID]
	if !ok {
		return JobView{}, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	return viewOfJob(job, o.files), nil
}

// Jobs returns snapshots of all jobs in creation order.
func (o *Orchestrator) Jobs() []JobView {
	o.mu.Lock()
	defer o.mu.Unlock()
	views := make([]JobView, 0, len(o.jobOrder))
	for _, id := range o.jobOrder {
		if job, ok := o.jobs[id]; ok {
			views = append(views, viewOfJob(job, o.files))
		}
	}
	return views
}

// run is the driving loop for one job run. It owns every state mutation for
// the in-flight file, so no two updates ever race on the same record.
func (o *Orchestrator) run(ctx context.Context, cancel context.CancelFunc, jobID string, processor *FileProcessor, done chan struct{}) {
	defer close(done)
	defer cancel()
	defer func() {
		// A panic here is an orchestration fault: the whole job goes to
		// error and processing halts. Per-file failures never reach this.
		if r := recover(); r != nil {
			o.logger.Error("orchestration fault", slog.String("jobID", jobID), slog.Any("panic", r))
			o.mu.Lock()
			var view JobView
			if job, ok := o.jobs[jobID]; ok {
				job.status = JobError
				view = viewOfJob(job, o.files)
			}
			o.clearActiveLocked(jobID)
			o.mu.Unlock()
			if view.ID != "" {
				o.emitJobUpdate(view)
			}
		}
	}()

	for {
		o.mu.Lock()
		job, ok := o.jobs[jobID]
		if !ok {
			o.clearActiveLocked(jobID)
			o.mu.Unlock()
			return
		}

		if ctx.Err() != nil {
			job.status = JobPaused
			view := viewOfJob(job, o.files)
			o.clearActiveLocked(jobID)
			o.mu.Unlock()
			o.emitJobUpdate(view)
			return
		}

		var next *batchFile
		for _, id := range job.fileIDs {
			f := o.files[id]
			if f.status == FileQueued || f.status == FilePaused {
				next = f
				break
			}
		}
		if next == nil {
			// Every file is terminal: the job completes even when individual
			// files errored.
			job.status = JobCompleted
			job.completedAt = time.Now()
			job.progress = jobProgress(job, o.files)
			view := viewOfJob(job, o.files)
			o.clearActiveLocked(jobID)
			o.mu.Unlock()
			o.emitJobUpdate(view)
			o.emitJobComplete(view)
			o.logger.Info("job completed", slog.String("jobID", jobID))
			return
		}

		next.status = FileProcessing
		next.progress = 0
		next.startedAt = time.Now()
		next.errMsg = ""
		fileID, fileName, filePath := next.id, next.name, next.path
		fv := next.view()
		o.mu.Unlock()
		o.emitFileUpdate(jobID, fv)

		outcome := processor.Process(ctx, fileName, filePath, func(pct int) {
			o.setFileProgress(jobID, fileID, pct)
		})
		o.applyOutcome(jobID, fileID, outcome)
	}
}

// setFileProgress records a progress tick for the in-flight file. Ticks are
// clamped monotonic; late or duplicate ticks are dropped.
func (o *Orchestrator) setFileProgress(jobID, fileID string, pct int) {
	o.mu.Lock()
	f, ok := o.files[fileID]
	if !ok || f.status != FileProcessing || pct <= f.progress {
		o.mu.Unlock()
		return
	}
	if pct > 100 {
		pct = 100
	}
	f.progress = pct
	fv := f.view()
	o.mu.Unlock()
	o.emitFileUpdate(jobID, fv)
}

// applyOutcome writes a processor outcome back to the file and recomputes
// job-level progress.
func (o *Orchestrator) applyOutcome(jobID, fileID string, outcome Outcome) {
	o.mu.Lock()
	f, okF := o.files[fileID]
	job, okJ := o.jobs[jobID]
	if !okF || !okJ {
		o.mu.Unlock()
		return
	}

	switch outcome.Status {
	case FilePaused:
		// In-flight progress is discarded on pause, by policy.
		f.status = FilePaused
		f.progress = 0
		f.duration = 0
	case FileError:
		f.status = FileError
		f.errMsg = outcome.Err.Error()
		f.duration = outcome.Duration
	case FileCompleted:
		f.status = FileCompleted
		f.progress = 100
		f.metadata = outcome.Metadata
		f.duration = outcome.Duration
		for orig, pseud := range outcome.Pseudonyms {
			job.pseudonyms[orig] = pseud
		}
	}

	job.progress = jobProgress(job, o.files)
	fv := f.view()
	jv := viewOfJob(job, o.files)
	o.mu.Unlock()

	o.emitFileUpdate(jobID, fv)
	o.emitJobUpdate(jv)
}

func (o *Orchestrator) clearActiveLocked(jobID string) {
	if o.activeJobID == jobID {
		o.activeJobID = ""
		o.cancelRun = nil
		o.runDone = nil
	}
}

// jobProgress derives aggregate progress: round(100 * terminal / total).
func jobProgress(job *batchJob, files map[string]*batchFile) int {
	total := len(job.fileIDs)
	if total == 0 {
		return 0
	}
	terminal := 0
	for _, id := range job.fileIDs {
		if f, ok := files[id]; ok && f.status.Terminal() {
			terminal++
		}
	}
	return int(math.Round(100 * float64(terminal) / float64(total)))
}

func (o *Orchestrator) emitFileUpdate(jobID string, fv FileView) {
	if err := o.hooks.OnFileStatusUpdate(jobID, fv); err != nil {
		o.logger.Warn("OnFileStatusUpdate hook returned an error", slog.String("error", err.Error()))
	}
}

func (o *Orchestrator) emitJobUpdate(jv JobView) {
	if err := o.hooks.OnJobStatusUpdate(jv); err != nil {
		o.logger.Warn("OnJobStatusUpdate hook returned an error", slog.String("error", err.Error()))
	}
}

func (o *Orchestrator) emitJobComplete(jv JobView) {
	if err := o.hooks.OnJobComplete(jv); err != nil {
		o.logger.Warn("OnJobComplete hook returned an error", slog.String("error", err.Error()))
	}
}
