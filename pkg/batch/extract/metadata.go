package extract

import (
	"fmt"

	"github.com/suyashkumar/dicom/pkg/tag"
)

// PhiRemovedYes is the value of Metadata.PhiRemoved after anonymization has
// been applied to the record. Mirrors the DICOM PatientIdentityRemoved CS
// convention.
const PhiRemovedYes = "YES"

// Metadata is the extracted record for one image file. Field names follow the
// snake_case keys used by the aggregation outputs, so a record serializes
// directly into report rows.
type Metadata struct {
	// Identifying fields.
	PatientID        string `json:"patient_id"`
	PatientName      string `json:"patient_name"`
	PatientBirthDate string `json:"patient_birth_date"`
	PatientBirthTime string `json:"patient_birth_time"`
	PatientAge       string `json:"patient_age"`
	PatientSex       string `json:"patient_sex"`
	PatientAddress   string `json:"patient_address"`
	OtherPatientIDs  string `json:"other_patient_ids"`
	OtherPatientNames string `json:"other_patient_names"`

	// Study fields.
	Modality         string `json:"modality"`
	BodyPartExamined string `json:"body_part_examined"`
	StudyDescription string `json:"study_description"`
	StudyDateTime    string `json:"study_date_time"`
	StudyComments    string `json:"study_comments"`

	// Personnel and site.
	ReferringPhysicianName  string `json:"referring_physician_name"`
	RequestingPhysician     string `json:"requesting_physician"`
	PerformingPhysicianName string `json:"performing_physician_name"`
	OperatorsName           string `json:"operators_name"`
	InstitutionName         string `json:"institution_name"`
	StationName             string `json:"station_name"`

	// Technical fields.
	Manufacturer      string `json:"manufacturer"`
	Model             string `json:"model"`
	Rows              int    `json:"rows"`
	Columns           int    `json:"columns"`
	PixelSpacing      string `json:"pixel_spacing"`
	AccessionNumber   string `json:"accession_number"`
	StudyID           string `json:"study_id"`
	SeriesDescription string `json:"series_description"`
	StudyInstanceUID  string `json:"study_instance_uid"`
	SeriesInstanceUID string `json:"series_instance_uid"`

	// Derived analysis fields.
	PhiFlags      []string     `json:"phi_flags"`
	Urgent        bool         `json:"urgent"`
	UrgentReasons []string     `json:"urgent_reasons"`
	PrivateTags   []PrivateTag `json:"private_tags"`
	PhiRemoved    string       `json:"phi_removed"`
}

// PrivateTag describes one vendor-private element found in a file. Values are
// previews only; full private payloads are never surfaced.
type PrivateTag struct {
	Tag     string `json:"tag"`
	Group   string `json:"group"`
	Element string `json:"element"`
	Keyword string `json:"keyword"`
	Name    string `json:"name"`
	Creator string `json:"creator"`
	Preview string `json:"value_preview"`
}

// fieldTags maps anonymizable field names to their DICOM tags. Used to render
// tag identifiers in reports and to validate caller-supplied tag sets.
var fieldTags = map[string]tag.Tag{
	"patient_name":              tag.PatientName,
	"patient_id":                tag.PatientID,
	"patient_birth_date":        tag.PatientBirthDate,
	"patient_birth_time":        tag.PatientBirthTime,
	"patient_age":               tag.PatientAge,
	"patient_address":           tag.PatientAddress,
	"other_patient_ids":         tag.OtherPatientIDs,
	"other_patient_names":       {Group: 0x0010, Element: 0x1001}, // retired, absent from the generated dictionary
	"referring_physician_name":  tag.ReferringPhysicianName,
	"performing_physician_name": tag.PerformingPhysicianName,
	"operators_name":            tag.OperatorsName,
	"institution_name":          tag.InstitutionName,
	"station_name":              tag.StationName,
	"accession_number":          tag.AccessionNumber,
	"study_id":                  tag.StudyID,
	"series_description":        tag.SeriesDescription,
	"study_comments":            {Group: 0x0032, Element: 0x4000}, // retired
}

// TagForField returns the DICOM tag backing a field name, when one is known.
func TagForField(name string) (tag.Tag, bool) {
	t, ok := fieldTags[name]
	return t, ok
}

// TagString formats a DICOM tag as the conventional "(gggg,eeee)" identifier.
func TagString(t tag.Tag) string {
	return fmt.Sprintf("(%04x,%04x)", t.Group, t.Element)
}

// FieldRef returns a pointer to the metadata field with the given snake_case
// name, or nil when the name is not an anonymizable string field. The
// anonymization engine mutates records exclusively through this accessor.
func FieldRef(md *Metadata, name string) *string {
	switch name {
	case "patient_name":
		return &md.PatientName
	case "patient_id":
		return &md.PatientID
	case "patient_birth_date":
		return &md.PatientBirthDate
	case "patient_birth_time":
		return &md.PatientBirthTime
	case "patient_age":
		return &md.PatientAge
	case "patient_address":
		return &md.PatientAddress
	case "other_patient_ids":
		return &md.OtherPatientIDs
	case "other_patient_names":
		return &md.OtherPatientNames
	case "referring_physician_name":
		return &md.ReferringPhysicianName
	case "performing_physician_name":
		return &md.PerformingPhysicianName
	case "operators_name":
		return &md.OperatorsName
	case "institution_name":
		return &md.InstitutionName
	case "station_name":
		return &md.StationName
	case "accession_number":
		return &md.AccessionNumber
	case "study_id":
		return &md.StudyID
	case "series_description":
		return &md.SeriesDescription
	case "study_comments":
		return &md.StudyComments
	}
	return nil
}

// Clone returns a deep copy of the record. Report and API layers only ever
// see clones; the processing pipeline owns the original.
func (m *Metadata) Clone() *Metadata {
	if m == nil {
		return nil
	}
	cp := *m
	cp.PhiFlags = append([]string(nil), m.PhiFlags...)
	cp.UrgentReasons = append([]string(nil), m.UrgentReasons...)
	cp.PrivateTags = append([]PrivateTag(nil), m.PrivateTags...)
	return &cp
}
