package domain

import "strings"

// CodeCategory partitions ACMG evidence codes into pathogenic and benign.
type CodeCategory string

const (
	PATHOGENIC_CODE CodeCategory = "pathogenic"
	BENIGN_CODE     CodeCategory = "benign"
)

// CodeRef is the parsed form of an ACMG evidence code string. The stored and
// wire format is either a bare base code ("PM1") or a strength-overridden code
// "<strength>x<base>" ("PSxPM1"). Parsing happens at the boundary; the rest of
// the engine works on CodeRef values.
type CodeRef struct {
	Base             string
	StrengthOverride string
}

// ParseCode parses a code string into its base code and optional strength
// override. Base codes never contain a lowercase 'x', so the first 'x' is the
// override separator.
func ParseCode(code string) CodeRef {
	if i := strings.Index(code, "x"); i > 0 {
		return CodeRef{Base: code[i+1:], StrengthOverride: code[:i]}
	}
	return CodeRef{Base: code}
}

// String renders the code back to its wire format, omitting the override
// separator for bare base codes.
func (c CodeRef) String() string {
	if c.StrengthOverride == "" {
		return c.Base
	}
	return c.StrengthOverride + "x" + c.Base
}

// BaseStrength returns the default strength of the base code, which is its
// alphabetic prefix (PM1 -> PM, BA1 -> BA).
func (c CodeRef) BaseStrength() string {
	return strings.TrimRight(c.Base, "0123456789")
}

// Strength returns the effective strength: the override when present,
// otherwise the base code's own default strength.
func (c CodeRef) Strength() string {
	if c.StrengthOverride != "" {
		return c.StrengthOverride
	}
	return c.BaseStrength()
}

// Category returns the evidence category. Benign base codes are prefixed 'B'
// by the ACMG naming convention.
func (c CodeRef) Category() CodeCategory {
	if strings.HasPrefix(c.Base, "B") {
		return BENIGN_CODE
	}
	return PATHOGENIC_CODE
}

// SameBase reports whether two code strings share a base code after
// stripping any strength override. Included codes are mutually exclusive at
// the base level.
func SameBase(a, b string) bool {
	return ParseCode(a).Base == ParseCode(b).Base
}
