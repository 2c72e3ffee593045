package batch

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/santopaul/dicomweb/pkg/batch/extract"
)

// recognizedExtensions are the image-file extensions accepted at submission.
var recognizedExtensions = map[string]bool{
	".dcm":   true,
	".dicom": true,
	".ima":   true,
}

// FileSpec names one input file for job creation. Path is where the bytes
// live on local disk; the upload surface stages uploads there first.
type FileSpec struct {
	Name string
	Path string
}

func validateSpecs(specs []FileSpec) error {
	if len(specs) == 0 {
		return fmt.Errorf("%w: empty file set", ErrValidation)
	}
	for _, s := range specs {
		ext := strings.ToLower(filepath.Ext(s.Name))
		if !recognizedExtensions[ext] {
			return fmt.Errorf("%w: unrecognized image file extension %q for %q", ErrValidation, ext, s.Name)
		}
	}
	return nil
}

// batchFile is one unit of work, owned exclusively by its parent job and
// addressed by id through the orchestrator's file arena.
type batchFile struct {
	id        string
	jobID     string
	name      string
	path      string
	status    FileStatus
	progress  int
	metadata  *extract.Metadata
	errMsg    string
	duration  time.Duration
	startedAt time.Time
}

// batchJob is a named, ordered collection of batch files. It holds file ids
// rather than records so per-file progress ticks never clone the collection.
type batchJob struct {
	id          string
	name        string
	status      JobStatus
	progress    int
	fileIDs     []string
	options     ProcessingOptions
	pseudonyms  map[string]string
	startedAt   time.Time
	completedAt time.Time
	createdAt   time.Time
}

// FileView is the read-only serializable snapshot of a batch file.
type FileView struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Status     FileStatus        `json:"status"`
	Progress   int               `json:"progress"`
	Metadata   *extract.Metadata `json:"metadata,omitempty"`
	Error      string            `json:"error,omitempty"`
	DurationMs int64             `json:"duration_ms,omitempty"`
	StartedAt  *time.Time        `json:"started_at,omitempty"`
}

// JobView is the read-only serializable snapshot of a job and its files.
type JobView struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Status      JobStatus         `json:"status"`
	Progress    int               `json:"progress"`
	Options     ProcessingOptions `json:"options"`
	Files       []FileView        `json:"files"`
	Pseudonyms  map[string]string `json:"pseudonyms,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

func (f *batchFile) view() FileView {
	v := FileView{
		ID:         f.id,
		Name:       f.name,
		Status:     f.status,
		Progress:   f.progress,
		Metadata:   f.metadata.Clone(),
		Error:      f.errMsg,
		DurationMs: f.duration.Milliseconds(),
	}
	if !f.startedAt.IsZero() {
		t := f.startedAt
		v.StartedAt = &t
	}
	return v
}

func viewOfJob(j *batchJob, files map[string]*batchFile) JobView {
	v := JobView{
		ID:        j.id,
		Name:      j.name,
		Status:    j.status,
		Progress:  j.progress,
		Options:   j.options,
		CreatedAt: j.createdAt,
		Files:     make([]FileView, 0, len(j.fileIDs)),
	}
	if len(j.pseudonyms) > 0 {
		v.Pseudonyms = make(map[string]string, len(j.pseudonyms))
		for k, val := range j.pseudonyms {
			v.Pseudonyms[k] = val
		}
	}
	if !j.startedAt.IsZero() {
		t := j.startedAt
		v.StartedAt = &t
	}
	if !j.completedAt.IsZero() {
		t := j.completedAt
		v.CompletedAt = &t
	}
	for _, id := range j.fileIDs {
		if f, ok := files[id]; ok {
			v.Files = append(v.Files, f.view())
		}
	}
	return v
}
