package extract

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/suyashkumar/dicom/pkg/tag"
)

// Service is the external metadata-extraction collaborator. Implementations
// must observe ctx cancellation promptly; a blocked call delays job pausing.
type Service interface {
	Extract(ctx context.Context, fileName string, data []byte) (*Metadata, error)
}

// StubService derives deterministic pseudo-metadata from a file name in place
// of real DICOM decoding. Tokens in the name steer the result: a recognized
// modality token sets Modality, the remaining tokens become the study
// description, and names containing "corrupt" fail extraction. Identical
// names always yield identical records.
type StubService struct {
	logger  *slog.Logger
	latency time.Duration
}

// NewStubService builds a stub extractor with the given simulated per-file
// latency. A zero latency disables the delay entirely, which tests rely on.
func NewStubService(handler slog.Handler, latency time.Duration) *StubService {
	return &StubService{
		logger:  slog.New(handler).With(slog.String("component", "extractor")),
		latency: latency,
	}
}

var knownModalities = []string{"CT", "MR", "US", "CR", "DX", "MG", "NM", "PT"}

var manufacturers = []struct{ name, model string }{
	{"SIEMENS", "SOMATOM Force"},
	{"GE MEDICAL SYSTEMS", "Revolution CT"},
	{"Philips", "Ingenia 3.0T"},
	{"TOSHIBA", "Aquilion ONE"},
	{"FUJIFILM", "FDR Visionary"},
}

var bodyParts = []string{"HEAD", "CHEST", "ABDOMEN", "PELVIS", "SPINE", "EXTREMITY"}

// Extract implements Service.
func (s *StubService) Extract(ctx context.Context, fileName string, data []byte) (*Metadata, error) {
	if s.latency > 0 {
		timer := time.NewTimer(s.latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	} else {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
	}

	base := strings.TrimSuffix(filepath.Base(fileName), filepath.Ext(fileName))
	if strings.Contains(strings.ToLower(base), "corrupt") {
		return nil, fmt.Errorf("not a valid DICOM stream: %s", fileName)
	}

	h := fnv.New32a()
	h.Write([]byte(base))
	seed := h.Sum32()

	md := &Metadata{
		Modality:         knownModalities[seed%uint32(len(knownModalities))],
		BodyPartExamined: bodyParts[(seed>>3)%uint32(len(bodyParts))],
		PatientID:        fmt.Sprintf("PID%06d", seed%1000000),
		PatientName:      fmt.Sprintf("DOE^PATIENT%03d", seed%1000),
		PatientAge:       fmt.Sprintf("%03dY", 20+seed%70),
		PatientSex:       []string{"M", "F", "O"}[(seed>>5)%3],
		PhiRemoved:       "NO",
	}

	// Tokens in the file name override the hash-derived defaults.
	var descTokens []string
	for _, tok := range strings.FieldsFunc(base, func(r rune) bool { return r == '_' || r == '-' || r == ' ' }) {
		upper := strings.ToUpper(tok)
		if isModality(upper) {
			md.Modality = upper
			continue
		}
		if isBodyPart(upper) {
			md.BodyPartExamined = upper
		}
		descTokens = append(descTokens, upper)
	}
	md.StudyDescription = strings.Join(descTokens, " ")

	mfr := manufacturers[(seed>>7)%uint32(len(manufacturers))]
	md.Manufacturer = mfr.name
	md.Model = mfr.model
	md.Rows = 512
	md.Columns = 512
	md.PixelSpacing = "0.5\\0.5"
	md.AccessionNumber = fmt.Sprintf("ACC%08d", seed%100000000)
	md.StudyID = fmt.Sprintf("ST%05d", seed%100000)
	md.SeriesDescription = md.Modality + " " + md.BodyPartExamined
	md.StudyInstanceUID = fmt.Sprintf("1.2.826.0.1.3680043.2.%d.%d", seed%10000, seed)
	md.SeriesInstanceUID = md.StudyInstanceUID + ".1"
	md.StudyDateTime = studyDateTime(seed)
	md.InstitutionName = "GENERAL HOSPITAL"
	md.StationName = fmt.Sprintf("STATION%02d", seed%20)
	md.ReferringPhysicianName = fmt.Sprintf("REF^PHYSICIAN%02d", seed%50)

	if seed%3 == 0 {
		md.PrivateTags = append(md.PrivateTags, PrivateTag{
			Tag:     TagString(tag.Tag{Group: 0x0009, Element: 0x0010}),
			Group:   "0x0009",
			Element: "0x0010",
			Creator: mfr.name,
			Name:    "Private Creator",
			Preview: mfr.name + " HEADER",
		})
	}

	md.PhiFlags = CheckPHI(md)
	md.Urgent, md.UrgentReasons = AssessUrgency(md)

	s.logger.Debug("extracted pseudo-metadata",
		slog.String("file", fileName),
		slog.String("modality", md.Modality),
		slog.Bool("urgent", md.Urgent))
	return md, nil
}

func isModality(s string) bool {
	for _, m := range knownModalities {
		if s == m {
			return true
		}
	}
	return false
}

func isBodyPart(s string) bool {
	for _, b := range bodyParts {
		if s == b {
			return true
		}
	}
	return false
}

// studyDateTime renders a stable acquisition timestamp for a seed. Spread
// over a fixed year so frequency reports have varied but reproducible dates.
func studyDateTime(seed uint32) string {
	base := time.Date(2024, time.January, 1, 8, 0, 0, 0, time.UTC)
	dt := base.Add(time.Duration(seed%365*24) * time.Hour).Add(time.Duration(seed%600) * time.Minute)
	return dt.Format("02 January 2006, 03:04 PM")
}
