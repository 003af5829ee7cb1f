package domain

import (
	"strings"

	dErrors "proofgate/pkg/domain-errors"
)

// Attribute names one fact a verifier may ask about.
// Invariant: the value is one of the five supported attributes.
//
// Usage: construct via ParseAttributes at trust boundaries to enforce the
// allowlist; direct casting bypasses validation.
type Attribute string

const (
	AttributeAge         Attribute = "age"
	AttributeNationality Attribute = "nationality"
	AttributeFullName    Attribute = "fullName"
	AttributeAddress     Attribute = "address"
	AttributeIdentity    Attribute = "identity"
)

// validAttributes is the single source of truth for the request vocabulary.
var validAttributes = map[Attribute]bool{
	AttributeAge:         true,
	AttributeNationality: true,
	AttributeFullName:    true,
	AttributeAddress:     true,
	AttributeIdentity:    true,
}

// AllAttributes lists the vocabulary in canonical order.
func AllAttributes() []Attribute {
	return []Attribute{AttributeAge, AttributeNationality, AttributeFullName, AttributeAddress, AttributeIdentity}
}

// IsValid reports whether the attribute belongs to the vocabulary.
func (a Attribute) IsValid() bool {
	return validAttributes[a]
}

func (a Attribute) String() string { return string(a) }

// ParseAttributes validates requested attribute names and returns them as an
// ordered set: first occurrence wins, surrounding whitespace is ignored.
//
// Errors: CodeValidation when the list is empty or any name is unsupported.
func ParseAttributes(names []string) ([]Attribute, error) {
	if len(names) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "requestedFields must not be empty")
	}
	seen := make(map[Attribute]struct{}, len(names))
	out := make([]Attribute, 0, len(names))
	for _, name := range names {
		a := Attribute(strings.TrimSpace(name))
		if !a.IsValid() {
			return nil, dErrors.New(dErrors.CodeValidation, "unsupported requested field: "+name)
		}
		if _, dup := seen[a]; dup {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out, nil
}
