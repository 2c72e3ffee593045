package batch

// FileStatus defines the possible processing states of a batch file.
type FileStatus string

const (
	FileQueued     FileStatus = "queued"
	FileProcessing FileStatus = "processing"
	FileCompleted  FileStatus = "completed"
	FileError      FileStatus = "error"
	FilePaused     FileStatus = "paused"
)

// Terminal reports whether no further automatic transition occurs from s.
func (s FileStatus) Terminal() bool {
	return s == FileCompleted || s == FileError
}

// JobStatus defines the possible states of a batch job.
type JobStatus string

const (
	JobIdle      JobStatus = "idle"
	JobRunning   JobStatus = "running"
	JobPaused    JobStatus = "paused"
	JobCompleted JobStatus = "completed"
	// JobError is reserved for orchestration-level faults in the driving
	// loop itself; per-file failures never produce it.
	JobError JobStatus = "error"
)
