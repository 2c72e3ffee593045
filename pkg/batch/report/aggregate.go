// Package report derives summary statistics from per-file processing
// outcomes and serializes them into machine- and human-readable forms.
package report

import (
	"time"

	"github.com/santopaul/dicomweb/pkg/batch/extract"
)

// StatusCompleted is the outcome status counted as a success. Any other
// status in an aggregated set counts as a failure.
const StatusCompleted = "completed"

// unknownKey buckets successful outcomes whose record lacks a value for a
// frequency dimension, so map totals always sum to the success count.
const unknownKey = "UNKNOWN"

// Outcome is the read-only result of processing one file, as consumed by
// aggregation and rendering.
type Outcome struct {
	FileName   string            `json:"file_name"`
	Status     string            `json:"status"`
	Metadata   *extract.Metadata `json:"metadata,omitempty"`
	Error      string            `json:"error,omitempty"`
	DurationMs int64             `json:"duration_ms"`
}

// Summary aggregates a set of file outcomes. Every count is recomputed from
// the outcome set on each call to Aggregate; nothing is cached.
type Summary struct {
	TotalFiles         int            `json:"total_files"`
	SuccessfulFiles    int            `json:"successful_files"`
	FailedFiles        int            `json:"failed_files"`
	TotalProcessingMs  int64          `json:"total_processing_ms"`
	UrgentCount        int            `json:"urgent_count"`
	PhiDetectedCount   int            `json:"phi_detected_count"`
	AnonymizedCount    int            `json:"anonymized_count"`
	ComplianceRate     float64        `json:"compliance_rate"`
	ModalityCounts     map[string]int `json:"modality_counts"`
	BodyPartCounts     map[string]int `json:"body_part_counts"`
	ManufacturerCounts map[string]int `json:"manufacturer_counts"`
}

// Aggregate computes a Summary from outcomes in a single pass. Frequency
// maps, urgency, PHI, and anonymization counts consider successful outcomes
// only; failures contribute to the failure count and processing time alone.
func Aggregate(outcomes []Outcome) Summary {
	s := Summary{
		TotalFiles:         len(outcomes),
		ModalityCounts:     make(map[string]int),
		BodyPartCounts:     make(map[string]int),
		ManufacturerCounts: make(map[string]int),
	}
	for _, o := range outcomes {
		s.TotalProcessingMs += o.DurationMs
		if o.Status != StatusCompleted {
			s.FailedFiles++
			continue
		}
		s.SuccessfulFiles++
		md := o.Metadata
		if md == nil {
			md = &extract.Metadata{}
		}
		s.ModalityCounts[orUnknown(md.Modality)]++
		s.BodyPartCounts[orUnknown(md.BodyPartExamined)]++
		s.ManufacturerCounts[orUnknown(md.Manufacturer)]++
		if md.Urgent {
			s.UrgentCount++
		}
		if len(md.PhiFlags) > 0 {
			s.PhiDetectedCount++
		}
		if md.PhiRemoved == extract.PhiRemovedYes {
			s.AnonymizedCount++
		}
	}
	if s.TotalFiles > 0 {
		s.ComplianceRate = 100 * float64(s.TotalFiles-s.PhiDetectedCount) / float64(s.TotalFiles)
	} else {
		s.ComplianceRate = 100
	}
	return s
}

func orUnknown(v string) string {
	if v == "" {
		return unknownKey
	}
	return v
}

// Options is the processing-options snapshot echoed into reports so readers
// can tell how the outcomes were produced. The salt is deliberately absent.
type Options struct {
	Anonymize         bool     `json:"anonymize"`
	AnonymizeMode     string   `json:"anonymize_mode,omitempty"`
	RemovePrivateTags bool     `json:"remove_private_tags"`
	OutputFormats     []string `json:"output_formats,omitempty"`
}

// SectionConfig selects which sections a rendered report carries.
type SectionConfig struct {
	Summary       bool `json:"summary"`
	Modalities    bool `json:"modalities"`
	UrgentStudies bool `json:"urgent_studies"`
	FileList      bool `json:"file_list"`
}

// DefaultSections enables every section.
func DefaultSections() SectionConfig {
	return SectionConfig{Summary: true, Modalities: true, UrgentStudies: true, FileList: true}
}

// Data is the full serializable report: the aggregate plus the raw outcome
// list it was derived from.
type Data struct {
	JobID       string        `json:"job_id,omitempty"`
	JobName     string        `json:"job_name,omitempty"`
	GeneratedAt time.Time     `json:"generated_at"`
	Summary     Summary       `json:"summary"`
	Options     Options       `json:"options"`
	Sections    SectionConfig `json:"sections"`
	Files       []Outcome     `json:"files"`
}
