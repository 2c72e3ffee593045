package batch

import "errors"

var (
	// ErrValidation indicates a rejected job submission: an empty file set or
	// a file without a recognized image extension. Returned synchronously
	// before any job is created, never partially applied.
	ErrValidation = errors.New("invalid job submission")

	// ErrJobNotFound indicates the given job id is unknown to this
	// orchestrator instance.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobActive indicates a start was rejected because another job holds
	// the single active-job slot. The attempt leaves both jobs unchanged.
	ErrJobActive = errors.New("another job is already running")

	// ErrJobNotRunning indicates a pause was requested for a job that is not
	// the active running job.
	ErrJobNotRunning = errors.New("job is not running")

	// ErrExtraction indicates the external extraction service failed for a
	// file. Surfaced per file as status=error; it never aborts the job.
	ErrExtraction = errors.New("metadata extraction failed")
)
