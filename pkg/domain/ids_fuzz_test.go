//go:build go1.18

package domain

import (
	"strings"
	"testing"
	"unicode/utf8"
)

// FuzzParseDID checks that parsing never panics and that accepted values keep
// the structural invariants.
func FuzzParseDID(f *testing.F) {
	f.Add("")
	f.Add("did:x:1")
	f.Add("did:moca:issuer:test123")
	f.Add("did:web:example.com%3A8443")
	f.Add("did:x:")
	f.Add("'; DROP TABLE credentials;--")
	f.Add(string([]byte{0x00, 0x01, 0x02}))

	f.Fuzz(func(t *testing.T, input string) {
		did, err := ParseDID(input)
		if err != nil {
			return
		}
		if !strings.HasPrefix(did.String(), "did:") {
			t.Errorf("accepted DID without prefix: %q", input)
		}
		if did.Method() == "" {
			t.Errorf("accepted DID without method: %q", input)
		}
		if strings.HasSuffix(input, ":") {
			t.Errorf("accepted DID with trailing colon: %q", input)
		}
		if !utf8.ValidString(input) {
			t.Error("Non-UTF8 input was accepted")
		}
	})
}
