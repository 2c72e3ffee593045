package extract

import (
	"fmt"
	"strconv"
	"strings"
)

// phiCheckedFields are the identifying fields inspected by CheckPHI, in
// report order.
var phiCheckedFields = []struct {
	flag  string
	value func(*Metadata) string
}{
	{"PatientName", func(m *Metadata) string { return m.PatientName }},
	{"PatientID", func(m *Metadata) string { return m.PatientID }},
	{"PatientAddress", func(m *Metadata) string { return m.PatientAddress }},
	{"OtherPatientIDs", func(m *Metadata) string { return m.OtherPatientIDs }},
	{"ReferringPhysicianName", func(m *Metadata) string { return m.ReferringPhysicianName }},
	{"StudyComments", func(m *Metadata) string { return m.StudyComments }},
	{"InstitutionName", func(m *Metadata) string { return m.InstitutionName }},
	{"StationName", func(m *Metadata) string { return m.StationName }},
}

// CheckPHI returns the names of fields carrying identifying data, plus a
// summary flag when private tags are present. An empty result means the
// record is clean as-is.
func CheckPHI(m *Metadata) []string {
	var flags []string
	for _, f := range phiCheckedFields {
		if v := f.value(m); v != "" && v != "N/A" {
			flags = append(flags, f.flag)
		}
	}
	if n := len(m.PrivateTags); n > 0 {
		flags = append(flags, fmt.Sprintf("Private tags: %d", n))
	}
	// Order data comes after the private-tag flag.
	if v := m.RequestingPhysician; v != "" && v != "N/A" {
		flags = append(flags, "RequestingPhysician")
	}
	return flags
}

var headKeywords = []string{"BRAIN", "HEAD", "STROKE", "TRAUMA", "INTRACRANIAL", "ICH", "HEMORRHAGE"}

// AssessUrgency applies the priority ruleset to a record and returns whether
// it matched along with the ordered reason strings. Rules, in order: head
// studies with stroke/trauma keywords on CT/MR, angio/CTA studies, FAST
// ultrasound, and elderly patients with brain imaging.
func AssessUrgency(m *Metadata) (bool, []string) {
	var reasons []string
	mod := strings.ToUpper(m.Modality)
	desc := strings.ToUpper(m.StudyDescription)

	if mod == "CT" || mod == "MR" {
		for _, kw := range headKeywords {
			if strings.Contains(desc, kw) {
				reasons = append(reasons, "Head study with stroke/trauma keywords")
				break
			}
		}
	}
	if strings.Contains(desc, "ANGIO") || strings.Contains(desc, "CTA") {
		reasons = append(reasons, "Angio/CTA study")
	}
	if mod == "US" && strings.Contains(desc, "FAST") {
		reasons = append(reasons, "FAST ultrasound")
	}
	if age, ok := ageYears(m.PatientAge); ok && age >= 65 && (mod == "CT" || mod == "MR") && strings.Contains(desc, "BRAIN") {
		reasons = append(reasons, "Elderly patient + brain imaging")
	}
	return len(reasons) > 0, reasons
}

// ageYears parses DICOM-style age strings such as "072Y". Only year-denominated
// ages participate in the elderly rule.
func ageYears(age string) (int, bool) {
	age = strings.TrimSpace(age)
	if !strings.HasSuffix(age, "Y") {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSuffix(age, "Y"))
	if err != nil {
		return 0, false
	}
	return n, true
}
