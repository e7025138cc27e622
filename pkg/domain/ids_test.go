package domain

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "credreg/pkg/domain-errors"
)

func TestParseDID(t *testing.T) {
	valid := []string{
		"did:x:1",
		"did:x:iss",
		"did:moca:issuer:test123",
		"did:web:example.com%3A8443",
		"did:key:z6MkhaXgBZDvotDkL5257faiztiGiC2QtKLGpbnnEGta2doK",
	}
	for _, s := range valid {
		t.Run("accepts "+s, func(t *testing.T) {
			did, err := ParseDID(s)
			require.NoError(t, err)
			assert.Equal(t, DID(s), did)
		})
	}

	invalid := map[string]string{
		"empty":               "",
		"missing prefix":      "x:1",
		"missing method":      "did::1",
		"missing msid":        "did:x:",
		"uppercase method":    "did:X:1",
		"trailing colon":      "did:x:1:",
		"space in msid":       "did:x:a b",
		"bad percent":         "did:x:%zz",
		"truncated percent":   "did:x:a%2",
		"only prefix":         "did:",
		"method without msid": "did:x",
	}
	for name, s := range invalid {
		t.Run("rejects "+name, func(t *testing.T) {
			_, err := ParseDID(s)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		})
	}
}

func TestDIDMethod(t *testing.T) {
	assert.Equal(t, "moca", DID("did:moca:issuer:1").Method())
}

func TestParseCredentialID(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseCredentialID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseCredentialID(uuid.Nil.String())
		require.Error(t, err)
	})

	t.Run("round-trips through JSON", func(t *testing.T) {
		id := NewCredentialID()
		b, err := json.Marshal(id)
		require.NoError(t, err)

		var decoded CredentialID
		require.NoError(t, json.Unmarshal(b, &decoded))
		assert.Equal(t, id, decoded)
	})
}

func TestNewCredentialIDIsUnique(t *testing.T) {
	seen := make(map[CredentialID]struct{}, 1000)
	for range 1000 {
		id := NewCredentialID()
		_, dup := seen[id]
		require.False(t, dup)
		seen[id] = struct{}{}
	}
}

func TestParseSchemaID(t *testing.T) {
	id, err := ParseSchemaID(" web3-bootcamp ")
	require.NoError(t, err)
	assert.Equal(t, SchemaID("web3-bootcamp"), id)

	_, err = ParseSchemaID("Has Spaces")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}
