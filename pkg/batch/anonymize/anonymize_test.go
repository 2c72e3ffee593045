package anonymize_test

import (
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/santopaul/dicomweb/pkg/batch/anonymize"
	"github.com/santopaul/dicomweb/pkg/batch/extract"
)

func discardHandler() slog.Handler {
	return slog.NewTextHandler(io.Discard, nil)
}

func sampleRecord() *extract.Metadata {
	md := &extract.Metadata{
		PatientName:            "DOE^JOHN",
		PatientID:              "PID007",
		PatientAge:             "071Y",
		PatientSex:             "M",
		PatientAddress:         "1 Main St",
		ReferringPhysicianName: "SMITH^A",
		InstitutionName:        "GENERAL HOSPITAL",
		StationName:            "CT01",
		Modality:               "CT",
		BodyPartExamined:       "CHEST",
		StudyDescription:       "CT CHEST WO CONTRAST",
		Manufacturer:           "GE",
		PrivateTags: []extract.PrivateTag{
			{Tag: "(0009,0010)", Preview: "GEMS_IDEN_01"},
		},
	}
	md.PhiFlags = extract.CheckPHI(md)
	return md
}

func TestPseudonymize_Deterministic(t *testing.T) {
	a := anonymize.Pseudonymize("DOE^JOHN", "salt-1")
	b := anonymize.Pseudonymize("DOE^JOHN", "salt-1")
	assert.Equal(t, a, b, "same value and salt must collide")
	assert.True(t, strings.HasPrefix(a, "anon_"))
	assert.Len(t, a, len("anon_")+16)
}

func TestPseudonymize_SaltSensitive(t *testing.T) {
	a := anonymize.Pseudonymize("DOE^JOHN", "salt-1")
	b := anonymize.Pseudonymize("DOE^JOHN", "salt-2")
	assert.NotEqual(t, a, b)

	c := anonymize.Pseudonymize("DOE^JANE", "salt-1")
	assert.NotEqual(t, a, c)
}

func TestEngine_PseudonymizeMode(t *testing.T) {
	md := sampleRecord()
	require.NotEmpty(t, md.PhiFlags, "sample must trip PHI detection")

	e := anonymize.NewEngine(discardHandler(), anonymize.Config{
		Mode: anonymize.ModePseudonymize,
		Salt: "unit-salt",
	})
	mapping := e.Anonymize(md)

	assert.True(t, strings.HasPrefix(md.PatientName, "anon_"))
	assert.True(t, strings.HasPrefix(md.PatientID, "anon_"))
	assert.Equal(t, md.PatientName, mapping["DOE^JOHN"])
	assert.Equal(t, md.PatientID, mapping["PID007"])

	// Non-identifying fields survive untouched.
	assert.Equal(t, "CT", md.Modality)
	assert.Equal(t, "CHEST", md.BodyPartExamined)
	assert.Equal(t, "M", md.PatientSex)

	assert.Empty(t, md.PhiFlags)
	assert.Equal(t, extract.PhiRemovedYes, md.PhiRemoved)
	assert.NotEmpty(t, md.PrivateTags, "private tags stay unless stripping is requested")
}

func TestEngine_SamePatientSamePseudonym(t *testing.T) {
	e := anonymize.NewEngine(discardHandler(), anonymize.Config{Salt: "unit-salt"})

	first := sampleRecord()
	second := sampleRecord()
	e.Anonymize(first)
	e.Anonymize(second)

	assert.Equal(t, first.PatientID, second.PatientID, "pseudonyms are stable across files in a batch")
}

func TestEngine_RemoveMode(t *testing.T) {
	md := sampleRecord()
	e := anonymize.NewEngine(discardHandler(), anonymize.Config{
		Mode:              anonymize.ModeRemove,
		Salt:              "unit-salt",
		RemovePrivateTags: true,
	})
	mapping := e.Anonymize(md)

	assert.Empty(t, mapping, "remove mode yields no pseudonym map")
	assert.Equal(t, anonymize.RedactionMarker, md.PatientName)
	assert.Equal(t, anonymize.RedactionMarker, md.PatientID)
	assert.Equal(t, anonymize.RedactionMarker, md.InstitutionName)
	assert.Empty(t, md.PrivateTags)
	assert.Empty(t, md.PhiFlags)
	assert.Equal(t, extract.PhiRemovedYes, md.PhiRemoved)

	// Idempotent: a second pass changes nothing further.
	e.Anonymize(md)
	assert.Equal(t, anonymize.RedactionMarker, md.PatientName)
}

func TestEngine_ExplicitTagSet(t *testing.T) {
	md := sampleRecord()
	e := anonymize.NewEngine(discardHandler(), anonymize.Config{
		Mode: anonymize.ModeRemove,
		Tags: []string{"patient_name"},
		Salt: "unit-salt",
	})
	e.Anonymize(md)

	assert.Equal(t, anonymize.RedactionMarker, md.PatientName)
	assert.Equal(t, "PID007", md.PatientID, "fields outside the explicit set are untouched")
	assert.Equal(t, "GENERAL HOSPITAL", md.InstitutionName)
}

func TestEngine_SkipsEmptyFields(t *testing.T) {
	md := &extract.Metadata{PatientName: "DOE^JOHN"}
	e := anonymize.NewEngine(discardHandler(), anonymize.Config{Salt: "unit-salt"})
	mapping := e.Anonymize(md)

	assert.Len(t, mapping, 1)
	assert.Empty(t, md.PatientID, "empty fields gain no marker or pseudonym")
}

func TestDefaultTags_CoverKnownFields(t *testing.T) {
	for _, name := range anonymize.DefaultTags {
		_, ok := extract.TagForField(name)
		assert.True(t, ok, "default tag %q must map to a known attribute", name)
		md := &extract.Metadata{}
		assert.NotNil(t, extract.FieldRef(md, name), "default tag %q must resolve to a field", name)
	}
}

func TestNewEngine_Defaults(t *testing.T) {
	e := anonymize.NewEngine(discardHandler(), anonymize.Config{})
	md := &extract.Metadata{PatientName: "DOE^JOHN"}
	mapping := e.Anonymize(md)

	// Zero config means pseudonymize with the built-in salt and tag set.
	want := anonymize.Pseudonymize("DOE^JOHN", anonymize.DefaultSalt)
	assert.Equal(t, want, md.PatientName)
	assert.Equal(t, want, mapping["DOE^JOHN"])
}
