// Package anonymize transforms identifying metadata fields into pseudonymous
// or redacted values. Pseudonyms are deterministic with respect to
// (value, salt), so the same patient can be correlated across a batch without
// exposing the real identifier.
package anonymize

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"

	"github.com/santopaul/dicomweb/pkg/batch/extract"
)

// Mode selects the field transformation policy.
type Mode string

const (
	// ModePseudonymize replaces values with salt-keyed digests. Reversible
	// only by whoever holds the salt and the pseudonym map.
	ModePseudonymize Mode = "pseudonymize"
	// ModeRemove replaces values with a fixed redaction marker. Irreversible
	// and idempotent.
	ModeRemove Mode = "remove"
)

// RedactionMarker is the replacement value written by ModeRemove.
const RedactionMarker = "REDACTED"

// DefaultSalt keys pseudonymization when the caller supplies none. It is a
// compile-time constant and therefore NOT secret; production deployments must
// set an explicit salt.
const DefaultSalt = "dicomweb-development-salt"

// pseudonymHexLen truncates the keyed digest; 16 hex chars keeps pseudonyms
// short enough for report columns while collisions stay negligible.
const pseudonymHexLen = 16

// DefaultTags is the built-in set of identifying fields transformed when the
// caller does not supply an explicit set.
var DefaultTags = []string{
	"patient_name", "patient_id", "patient_birth_date", "patient_birth_time",
	"patient_age", "patient_address", "other_patient_ids", "other_patient_names",
	"referring_physician_name", "performing_physician_name", "operators_name",
	"institution_name", "station_name", "accession_number", "study_id",
	"series_description", "study_comments",
}

// Config controls one engine instance. The zero Mode means ModePseudonymize.
type Config struct {
	Mode              Mode
	Tags              []string // nil means DefaultTags; otherwise exactly this set
	Salt              string   // empty means DefaultSalt
	RemovePrivateTags bool
}

// Engine applies a fixed Config to metadata records.
type Engine struct {
	logger *slog.Logger
	mode   Mode
	tags   []string
	salt   string
	strip  bool
}

// NewEngine builds an engine from cfg. Using the default salt is logged as a
// warning because it gives no confidentiality against anyone with the binary.
func NewEngine(handler slog.Handler, cfg Config) *Engine {
	logger := slog.New(handler).With(slog.String("component", "anonymizer"))
	mode := cfg.Mode
	if mode == "" {
		mode = ModePseudonymize
	}
	tags := cfg.Tags
	if tags == nil {
		tags = DefaultTags
	}
	salt := cfg.Salt
	if salt == "" {
		salt = DefaultSalt
		if mode == ModePseudonymize {
			logger.Warn("no anonymization salt configured, using built-in default; pseudonyms are reproducible by anyone")
		}
	}
	return &Engine{logger: logger, mode: mode, tags: tags, salt: salt, strip: cfg.RemovePrivateTags}
}

// Anonymize transforms the configured fields of md in place and returns the
// original→pseudonym mapping (empty for ModeRemove). Afterwards the record
// carries no PHI flags and PhiRemoved is set to the removed marker.
func (e *Engine) Anonymize(md *extract.Metadata) map[string]string {
	mapping := make(map[string]string)
	for _, name := range e.tags {
		ref := extract.FieldRef(md, name)
		if ref == nil || *ref == "" {
			continue
		}
		switch e.mode {
		case ModeRemove:
			*ref = RedactionMarker
		default:
			pseud := Pseudonymize(*ref, e.salt)
			mapping[*ref] = pseud
			*ref = pseud
		}
	}
	if e.strip {
		md.PrivateTags = nil
	}
	md.PhiFlags = nil
	md.PhiRemoved = extract.PhiRemovedYes
	return mapping
}

// Pseudonymize derives the stable pseudonym for a value under a salt:
// "anon_" plus the truncated hex HMAC-SHA256 of the value keyed by the salt.
func Pseudonymize(value, salt string) string {
	mac := hmac.New(sha256.New, []byte(salt))
	mac.Write([]byte(value))
	return "anon_" + hex.EncodeToString(mac.Sum(nil))[:pseudonymHexLen]
}
