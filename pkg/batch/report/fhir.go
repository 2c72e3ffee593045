package report

import (
	"encoding/json"
	"fmt"

	"github.com/santopaul/dicomweb/pkg/batch/extract"
)

// ImagingStudy is a minimal FHIR ImagingStudy mapping of one extracted
// record. It is not a validated FHIR resource; it carries just enough to
// hand off to downstream imaging systems.
type ImagingStudy struct {
	ResourceType   string            `json:"resourceType"`
	Identifier     []FHIRIdentifier  `json:"identifier,omitempty"`
	Status         string            `json:"status"`
	Subject        *FHIRReference    `json:"subject,omitempty"`
	NumberOfSeries int               `json:"numberOfSeries"`
	Modality       string            `json:"modality,omitempty"`
	Started        string            `json:"started,omitempty"`
}

// FHIRIdentifier is a system/value identifier pair.
type FHIRIdentifier struct {
	System string `json:"system"`
	Value  string `json:"value"`
}

// FHIRReference points at another resource by relative reference.
type FHIRReference struct {
	Reference string `json:"reference"`
}

// ImagingStudyFromMetadata maps one record to an ImagingStudy.
func ImagingStudyFromMetadata(md *extract.Metadata) ImagingStudy {
	study := ImagingStudy{
		ResourceType:   "ImagingStudy",
		Status:         "available",
		NumberOfSeries: 1,
		Modality:       md.Modality,
		Started:        md.StudyDateTime,
	}
	if md.StudyInstanceUID != "" {
		study.Identifier = []FHIRIdentifier{{System: "urn:dicom:uid", Value: md.StudyInstanceUID}}
	}
	if md.PatientID != "" {
		study.Subject = &FHIRReference{Reference: "Patient/" + md.PatientID}
	}
	return study
}

// renderFHIR serializes an ImagingStudy per successful outcome.
func renderFHIR(data Data) ([]byte, error) {
	studies := make([]ImagingStudy, 0, len(data.Files))
	for _, o := range data.Files {
		if o.Status != StatusCompleted || o.Metadata == nil {
			continue
		}
		studies = append(studies, ImagingStudyFromMetadata(o.Metadata))
	}
	b, err := json.MarshalIndent(studies, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling imaging studies: %w", err)
	}
	return b, nil
}
