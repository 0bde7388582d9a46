package contacts

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Well-known field names.
const (
	NamesField         = "names"
	PhonesField        = "phones"
	EmailsField        = "emails"
	AddressesField     = "addresses"
	NotesField         = "notes"
	OrganizationsField = "organizations"
	RelationsField     = "relations"
)

// NormalizePhone standardizes a phone number: every non-digit is removed,
// except a leading plus. Inputs without any digit normalize to "".
//
//	NormalizePhone("(555) 123-4567")  // "5551234567"
//	NormalizePhone("+1-555-123-4567") // "+15551234567"
func NormalizePhone(raw string) string {
	raw = strings.TrimSpace(raw)
	var b strings.Builder
	b.Grow(len(raw) + 1)
	if strings.HasPrefix(raw, "+") {
		b.WriteByte('+')
	}
	digits := 0
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
			digits++
		}
	}
	if digits == 0 {
		return ""
	}
	return b.String()
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFC.String(raw)))
}

// normalizeValue applies the canonicalizer for field to raw.
// Every field gets NFC normalization and surrounding whitespace trimmed.
func normalizeValue(field, raw string) string {
	switch field {
	case PhonesField:
		return NormalizePhone(raw)
	case EmailsField:
		return NormalizeEmail(raw)
	default:
		return strings.TrimSpace(norm.NFC.String(raw))
	}
}

func validFieldName(name string) bool {
	return strings.TrimSpace(name) != ""
}
