package batch

import (
	"time"

	"github.com/santopaul/dicomweb/pkg/batch/report"
)

// Outcomes converts the job's file snapshots into report outcomes, in file
// insertion order. Works on completed and partial jobs alike.
func (v JobView) Outcomes() []report.Outcome {
	outcomes := make([]report.Outcome, 0, len(v.Files))
	for _, f := range v.Files {
		outcomes = append(outcomes, report.Outcome{
			FileName:   f.Name,
			Status:     string(f.Status),
			Metadata:   f.Metadata,
			Error:      f.Error,
			DurationMs: f.DurationMs,
		})
	}
	return outcomes
}

// ReportOptions projects the job's processing options into the report
// snapshot. The salt never leaves the job.
func (v JobView) ReportOptions() report.Options {
	return report.Options{
		Anonymize:         v.Options.Anonymize,
		AnonymizeMode:     string(v.Options.AnonymizeMode),
		RemovePrivateTags: v.Options.RemovePrivateTags,
		OutputFormats:     append([]string(nil), v.Options.OutputFormats...),
	}
}

// BuildReport aggregates the job's outcomes into a renderable report.
func (v JobView) BuildReport(sections report.SectionConfig) report.Data {
	outcomes := v.Outcomes()
	return report.Data{
		JobID:       v.ID,
		JobName:     v.Name,
		GeneratedAt: time.Now().UTC(),
		Summary:     report.Aggregate(outcomes),
		Options:     v.ReportOptions(),
		Sections:    sections,
		Files:       outcomes,
	}
}
