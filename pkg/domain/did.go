package domain

import (
	"strings"
	"unicode/utf8"

	dErrors "credreg/pkg/domain-errors"
)

// DID is a decentralized identifier in the generic W3C syntax
// "did:<method>:<method-specific-id>". The registry checks structure only; it
// never resolves a DID.
type DID string

const maxDIDLength = 2048

// ParseDID validates the structure of a DID at a trust boundary.
//
// The method name must be lowercase ASCII letters or digits. The
// method-specific id is one or more colon-separated segments of
// [A-Za-z0-9._-] or percent-encoded octets; the last segment must be non-empty.
func ParseDID(s string) (DID, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeValidation, "did is required")
	}
	if len(s) > maxDIDLength || !utf8.ValidString(s) {
		return "", dErrors.New(dErrors.CodeValidation, "did is malformed")
	}
	rest, ok := strings.CutPrefix(s, "did:")
	if !ok {
		return "", dErrors.New(dErrors.CodeValidation, "did must start with \"did:\"")
	}
	method, msid, ok := strings.Cut(rest, ":")
	if !ok || method == "" || msid == "" {
		return "", dErrors.New(dErrors.CodeValidation, "did must have a method and a method-specific id")
	}
	for i := 0; i < len(method); i++ {
		c := method[i]
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') {
			return "", dErrors.New(dErrors.CodeValidation, "did method must be lowercase alphanumeric")
		}
	}
	if strings.HasSuffix(msid, ":") {
		return "", dErrors.New(dErrors.CodeValidation, "did method-specific id must not end with ':'")
	}
	if !validMethodSpecificID(msid) {
		return "", dErrors.New(dErrors.CodeValidation, "did method-specific id contains invalid characters")
	}
	return DID(s), nil
}

func validMethodSpecificID(msid string) bool {
	for i := 0; i < len(msid); i++ {
		c := msid[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '.', c == '-', c == '_', c == ':':
		case c == '%':
			if i+2 >= len(msid) || !isHex(msid[i+1]) || !isHex(msid[i+2]) {
				return false
			}
			i += 2
		default:
			return false
		}
	}
	return true
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// Method returns the DID method name, e.g. "moca" for "did:moca:123".
func (d DID) Method() string {
	rest := strings.TrimPrefix(string(d), "did:")
	method, _, _ := strings.Cut(rest, ":")
	return method
}

func (d DID) String() string { return string(d) }
func (d DID) IsNil() bool    { return d == "" }
