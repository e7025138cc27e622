package domain

import (
	"regexp"
	"strings"

	"github.com/google/uuid"

	dErrors "credreg/pkg/domain-errors"
)

// CredentialID identifies an issued credential. Values are random (version 4)
// UUIDs so ids are unpredictable and collisions are negligible.
type CredentialID uuid.UUID

// BatchID identifies one bulk issuance run.
type BatchID uuid.UUID

// SchemaID is the stable, human-chosen identifier of a credential schema,
// such as "web3-bootcamp".
type SchemaID string

// NewCredentialID generates a fresh random credential id.
func NewCredentialID() CredentialID {
	return CredentialID(uuid.New())
}

// NewBatchID generates a fresh random batch id.
func NewBatchID() BatchID {
	return BatchID(uuid.New())
}

// ParseCredentialID parses a credential id from external input.
func ParseCredentialID(s string) (CredentialID, error) {
	u, err := parseUUID(s, "credential_id")
	if err != nil {
		return CredentialID{}, err
	}
	return CredentialID(u), nil
}

// ParseBatchID parses a batch id from external input.
func ParseBatchID(s string) (BatchID, error) {
	u, err := parseUUID(s, "batch_id")
	if err != nil {
		return BatchID{}, err
	}
	return BatchID(u), nil
}

func parseUUID(s, field string) (uuid.UUID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, field+" is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, field+" must be a valid UUID")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, field+" must not be the nil UUID")
	}
	return u, nil
}

func (id CredentialID) String() string { return uuid.UUID(id).String() }
func (id CredentialID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id BatchID) String() string      { return uuid.UUID(id).String() }
func (id BatchID) IsNil() bool         { return uuid.UUID(id) == uuid.Nil }

// MarshalText renders the id in canonical UUID form for JSON and map keys.
func (id CredentialID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

// UnmarshalText parses a canonical UUID.
func (id *CredentialID) UnmarshalText(b []byte) error {
	parsed, err := ParseCredentialID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id BatchID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *BatchID) UnmarshalText(b []byte) error {
	parsed, err := ParseBatchID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

var schemaIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{0,63}$`)

// ParseSchemaID validates a schema id: lowercase alphanumerics, dot, dash and
// underscore, at most 64 characters.
func ParseSchemaID(s string) (SchemaID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeValidation, "schema_id is required")
	}
	if !schemaIDPattern.MatchString(s) {
		return "", dErrors.New(dErrors.CodeValidation, "schema_id must match "+schemaIDPattern.String())
	}
	return SchemaID(s), nil
}

func (id SchemaID) String() string { return string(id) }
