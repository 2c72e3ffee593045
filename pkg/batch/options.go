package batch

import (
	"github.com/santopaul/dicomweb/pkg/batch/anonymize"
)

// ProcessingOptions configures how one job's files are processed. The value
// is snapshotted at job creation; later edits by the caller do not affect an
// already-created job.
type ProcessingOptions struct {
	Anonymize         bool           `json:"anonymize" mapstructure:"anonymize"`
	AnonymizeMode     anonymize.Mode `json:"anonymize_mode" mapstructure:"anonymizeMode"`
	AnonymizeTags     []string       `json:"anonymize_tags,omitempty" mapstructure:"anonymizeTags"` // nil means the engine default set
	AnonymizeSalt     string         `json:"-" mapstructure:"anonymizeSalt"`                        // never serialized back out
	RemovePrivateTags bool           `json:"remove_private_tags" mapstructure:"removePrivateTags"`
	OutputFormats     []string       `json:"output_formats,omitempty" mapstructure:"outputFormats"`
}

// Hooks defines callbacks for status updates during job processing.
// Implementations must be safe for use from the processing goroutine.
type Hooks interface {
	OnFileStatusUpdate(jobID string, file FileView) error
	OnJobStatusUpdate(job JobView) error
	OnJobComplete(job JobView) error
}

// NoOpHooks is the default, do-nothing Hooks implementation.
type NoOpHooks struct{}

func (NoOpHooks) OnFileStatusUpdate(string, FileView) error { return nil }
func (NoOpHooks) OnJobStatusUpdate(JobView) error           { return nil }
func (NoOpHooks) OnJobComplete(JobView) error               { return nil }
