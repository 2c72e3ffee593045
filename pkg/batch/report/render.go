package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"strings"
)

// Format identifies a report serialization.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatHTML Format = "html"
	FormatFHIR Format = "fhir"
)

// ErrUnknownFormat indicates a render request for a format this package does
// not produce.
var ErrUnknownFormat = errors.New("unknown report format")

// Formats lists every supported format identifier.
func Formats() []Format {
	return []Format{FormatJSON, FormatCSV, FormatHTML, FormatFHIR}
}

// ParseFormat validates a format identifier.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatCSV, FormatHTML, FormatFHIR:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// Render serializes data into the requested format, returning the bytes and
// the matching MIME type. JSON output round-trips losslessly to an equal
// Data value; CSV quotes every field and doubles embedded quotes.
func Render(data Data, format Format) ([]byte, string, error) {
	switch format {
	case FormatJSON:
		b, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return nil, "", fmt.Errorf("marshalling report: %w", err)
		}
		return b, "application/json", nil
	case FormatCSV:
		return renderCSV(data), "text/csv", nil
	case FormatHTML:
		b, err := renderHTML(data)
		if err != nil {
			return nil, "", err
		}
		return b, "text/html", nil
	case FormatFHIR:
		b, err := renderFHIR(data)
		if err != nil {
			return nil, "", err
		}
		return b, "application/fhir+json", nil
	default:
		return nil, "", fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// FileNameForFormat returns a conventional output file name for a format.
func FileNameForFormat(base string, format Format) string {
	switch format {
	case FormatCSV:
		return base + "_report.csv"
	case FormatHTML:
		return base + "_report.html"
	case FormatFHIR:
		return base + "_imagingstudies.json"
	default:
		return base + "_report.json"
	}
}

// --- CSV ---

var csvHeader = []string{
	"file_name", "status", "patient_id", "patient_name", "patient_age",
	"patient_sex", "modality", "body_part_examined", "study_description",
	"study_date_time", "manufacturer", "model", "study_instance_uid",
	"urgent", "urgent_reasons", "phi_flags", "phi_removed", "error",
	"duration_ms",
}

// renderCSV writes the raw file list: every outcome, failed ones included,
// one row each under a header row. Every field is quoted; embedded quotes
// are doubled.
func renderCSV(data Data) []byte {
	var b bytes.Buffer
	writeCSVRow(&b, csvHeader)
	for _, o := range data.Files {
		writeCSVRow(&b, csvRow(o))
	}
	return b.Bytes()
}

func csvRow(o Outcome) []string {
	md := o.Metadata
	if md == nil {
		return []string{
			o.FileName, o.Status, "", "", "", "", "", "", "", "", "", "", "",
			"false", "", "", "", o.Error, fmt.Sprintf("%d", o.DurationMs),
		}
	}
	return []string{
		o.FileName, o.Status,
		md.PatientID, md.PatientName, md.PatientAge, md.PatientSex,
		md.Modality, md.BodyPartExamined, md.StudyDescription, md.StudyDateTime,
		md.Manufacturer, md.Model, md.StudyInstanceUID,
		fmt.Sprintf("%t", md.Urgent),
		strings.Join(md.UrgentReasons, "; "),
		strings.Join(md.PhiFlags, "; "),
		md.PhiRemoved,
		o.Error,
		fmt.Sprintf("%d", o.DurationMs),
	}
}

func writeCSVRow(b *bytes.Buffer, fields []string) {
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(strings.ReplaceAll(f, `"`, `""`))
		b.WriteByte('"')
	}
	b.WriteByte('\n')
}

// --- HTML ---

// htmlTemplate is intentionally minimal: the data contract, not visual
// design, is what this layer guarantees. Breakdown sections show successful
// outcomes only; the file list shows everything.
var htmlTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"successful": func(files []Outcome) []Outcome {
		var out []Outcome
		for _, f := range files {
			if f.Status == StatusCompleted {
				out = append(out, f)
			}
		}
		return out
	},
	"join": strings.Join,
}).Parse(`<!doctype html>
<html><head><meta charset="utf-8"><title>Batch Report {{.JobName}}</title></head>
<body>
<h1>Batch Report{{if .JobName}}: {{.JobName}}{{end}}</h1>
<p>Generated {{.GeneratedAt.Format "2006-01-02 15:04:05 MST"}}</p>
{{if .Sections.Summary}}
<h2>Summary</h2>
<ul>
<li>Total files: {{.Summary.TotalFiles}}</li>
<li>Successful: {{.Summary.SuccessfulFiles}}</li>
<li>Failed: {{.Summary.FailedFiles}}</li>
<li>Urgent studies: {{.Summary.UrgentCount}}</li>
<li>PHI detected: {{.Summary.PhiDetectedCount}}</li>
<li>Anonymized: {{.Summary.AnonymizedCount}}</li>
<li>Compliance rate: {{printf "%.1f" .Summary.ComplianceRate}}%</li>
<li>Total processing time: {{.Summary.TotalProcessingMs}} ms</li>
</ul>
{{end}}
{{if .Sections.Modalities}}
<h2>Breakdown</h2>
<h3>By modality</h3>
<ul>{{range $k, $v := .Summary.ModalityCounts}}<li>{{$k}}: {{$v}}</li>{{end}}</ul>
<h3>By body part</h3>
<ul>{{range $k, $v := .Summary.BodyPartCounts}}<li>{{$k}}: {{$v}}</li>{{end}}</ul>
<h3>By manufacturer</h3>
<ul>{{range $k, $v := .Summary.ManufacturerCounts}}<li>{{$k}}: {{$v}}</li>{{end}}</ul>
{{end}}
{{if .Sections.UrgentStudies}}
<h2>Urgent studies</h2>
<ul>
{{range successful .Files}}{{if .Metadata.Urgent}}<li>{{.FileName}}: {{join .Metadata.UrgentReasons "; "}}</li>
{{end}}{{end}}</ul>
{{end}}
{{if .Sections.FileList}}
<h2>Files</h2>
<table border="1">
<tr><th>File</th><th>Status</th><th>Modality</th><th>Body part</th><th>Error</th></tr>
{{range .Files}}<tr><td>{{.FileName}}</td><td>{{.Status}}</td><td>{{if .Metadata}}{{.Metadata.Modality}}{{end}}</td><td>{{if .Metadata}}{{.Metadata.BodyPartExamined}}{{end}}</td><td>{{.Error}}</td></tr>
{{end}}</table>
{{end}}
</body></html>
`))

func renderHTML(data Data) ([]byte, error) {
	var b bytes.Buffer
	if err := htmlTemplate.Execute(&b, data); err != nil {
		return nil, fmt.Errorf("executing report template: %w", err)
	}
	return b.Bytes(), nil
}
