package report

import (
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/santopaul/dicomweb/pkg/batch/extract"
)

func sampleData() Data {
	outcomes := sampleOutcomes()
	return Data{
		JobID:       "job-1",
		JobName:     "nightly",
		GeneratedAt: time.Date(2026, time.August, 29, 10, 0, 0, 0, time.UTC),
		Summary:     Aggregate(outcomes),
		Options:     Options{Anonymize: true, AnonymizeMode: "pseudonymize"},
		Sections:    DefaultSections(),
		Files:       outcomes,
	}
}

func TestParseFormat(t *testing.T) {
	for _, in := range []string{"json", "CSV", " html ", "FHIR"} {
		f, err := ParseFormat(in)
		require.NoError(t, err, "input %q", in)
		assert.Equal(t, Format(strings.ToLower(strings.TrimSpace(in))), f)
	}

	_, err := ParseFormat("pdf")
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestRender_UnknownFormat(t *testing.T) {
	_, _, err := Render(sampleData(), Format("xml"))
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestRenderJSON_RoundTrips(t *testing.T) {
	data := sampleData()
	b, mime, err := Render(data, FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, "application/json", mime)

	var decoded Data
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, data.JobID, decoded.JobID)
	assert.Equal(t, data.Summary, decoded.Summary)
	require.Len(t, decoded.Files, len(data.Files))
	assert.Equal(t, data.Files[0].Metadata.Modality, decoded.Files[0].Metadata.Modality)
	assert.Equal(t, data.Files[2].Error, decoded.Files[2].Error)
}

func TestRenderCSV(t *testing.T) {
	data := sampleData()
	b, mime, err := Render(data, FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, "text/csv", mime)

	records, err := csv.NewReader(strings.NewReader(string(b))).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, len(data.Files)+1, "header plus one row per outcome, failures included")

	header := records[0]
	assert.Equal(t, "file_name", header[0])
	assert.Equal(t, "duration_ms", header[len(header)-1])
	for _, row := range records[1:] {
		assert.Len(t, row, len(header))
	}

	assert.Equal(t, "f1.dcm", records[1][0])
	assert.Equal(t, "completed", records[1][1])
	assert.Equal(t, "f3.dcm", records[3][0])
	assert.Equal(t, "error", records[3][1])
	assert.Contains(t, records[3], "truncated header")
}

func TestRenderCSV_EscapesQuotes(t *testing.T) {
	data := Data{Files: []Outcome{{
		FileName: `odd"name.dcm`,
		Status:   StatusCompleted,
		Metadata: &extract.Metadata{StudyDescription: `He said "now"`},
	}}}
	b, _, err := Render(data, FormatCSV)
	require.NoError(t, err)

	records, err := csv.NewReader(strings.NewReader(string(b))).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, `odd"name.dcm`, records[1][0])
	assert.Contains(t, records[1], `He said "now"`)
}

func TestRenderHTML(t *testing.T) {
	b, mime, err := Render(sampleData(), FormatHTML)
	require.NoError(t, err)
	assert.Equal(t, "text/html", mime)

	html := string(b)
	assert.Contains(t, html, "nightly")
	assert.Contains(t, html, "Total files: 3")
	assert.Contains(t, html, "Urgent studies")
	assert.Contains(t, html, "f1.dcm")
	assert.Contains(t, html, "f3.dcm", "failed files still appear in the file list")
	assert.Contains(t, html, "Head study with stroke/trauma keywords")
}

func TestRenderHTML_SectionsOmitted(t *testing.T) {
	data := sampleData()
	data.Sections = SectionConfig{Summary: true}
	b, _, err := Render(data, FormatHTML)
	require.NoError(t, err)

	html := string(b)
	assert.Contains(t, html, "Total files: 3")
	assert.NotContains(t, html, "<h2>Files</h2>")
	assert.NotContains(t, html, "<h2>Urgent studies</h2>")
}

func TestRenderFHIR(t *testing.T) {
	data := sampleData()
	data.Files[0].Metadata.StudyInstanceUID = "1.2.3.4"
	data.Files[0].Metadata.PatientID = "PID007"

	b, mime, err := Render(data, FormatFHIR)
	require.NoError(t, err)
	assert.Equal(t, "application/fhir+json", mime)

	var studies []ImagingStudy
	require.NoError(t, json.Unmarshal(b, &studies))
	require.Len(t, studies, 2, "failed outcomes produce no resource")

	first := studies[0]
	assert.Equal(t, "ImagingStudy", first.ResourceType)
	assert.Equal(t, "available", first.Status)
	assert.Equal(t, "CT", first.Modality)
	require.Len(t, first.Identifier, 1)
	assert.Equal(t, "urn:dicom:uid", first.Identifier[0].System)
	assert.Equal(t, "1.2.3.4", first.Identifier[0].Value)
	require.NotNil(t, first.Subject)
	assert.Equal(t, "Patient/PID007", first.Subject.Reference)
}

func TestFileNameForFormat(t *testing.T) {
	assert.Equal(t, "job_report.json", FileNameForFormat("job", FormatJSON))
	assert.Equal(t, "job_report.csv", FileNameForFormat("job", FormatCSV))
	assert.Equal(t, "job_report.html", FileNameForFormat("job", FormatHTML))
	assert.Equal(t, "job_imagingstudies.json", FileNameForFormat("job", FormatFHIR))
}
