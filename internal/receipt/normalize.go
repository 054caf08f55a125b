package receipt

import (
	"strings"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// UnknownName is the sentinel empty name fields normalize to. It is the
// same marker the extraction service emits for unreadable fields, so
// unknown-patient receipts group together instead of colliding with the
// empty string.
const UnknownName = "不明"

// honorifics are stripped from the end of a name, repeatedly until none
// remains, so stacked honorifics fold away in any order.
var honorifics = []string{"さん", "様", "殿", "氏", "先生"}

// NormalizeName canonicalizes a patient or institution name into a
// stable grouping key component: width variants folded to one form and
// recomposed (half-width dakuten fold to combining marks), whitespace
// trimmed and collapsed, trailing honorifics removed. Case is left alone
// since it can be meaningful in names.
func NormalizeName(name string) string {
	normalized := norm.NFC.String(width.Fold.String(name))
	normalized = strings.Join(strings.Fields(normalized), " ")
	for stripped := true; stripped; {
		stripped = false
		for _, honorific := range honorifics {
			if trimmed := strings.TrimSuffix(normalized, honorific); trimmed != normalized {
				normalized = strings.TrimSpace(trimmed)
				stripped = true
			}
		}
	}
	if normalized == "" {
		return UnknownName
	}
	return normalized
}

// KeyFor computes the grouping key for a record.
func KeyFor(r Record) GroupKey {
	return GroupKey{
		Institution: NormalizeName(r.Institution),
		Patient:     NormalizeName(r.PatientName),
	}
}
