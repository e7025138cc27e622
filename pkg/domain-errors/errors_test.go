package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOf(t *testing.T) {
	t.Run("returns code through fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("outer: %w", New(CodeNotFound, "credential not found"))
		assert.Equal(t, CodeNotFound, CodeOf(err))
		assert.True(t, HasCode(err, CodeNotFound))
	})

	t.Run("plain errors are internal", func(t *testing.T) {
		err := errors.New("boom")
		assert.Equal(t, CodeInternal, CodeOf(err))
		assert.False(t, HasCode(err, CodeInternal))
		assert.False(t, HasCode(nil, CodeInternal))
	})
}

func TestWrap(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := Wrap(cause, CodeExternalService, "cryptography provider: issue credential")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "cryptography provider: issue credential: dial tcp: refused", err.Error())
}

func TestWithFields(t *testing.T) {
	base := New(CodeSchemaValidation, "claims do not satisfy schema")
	fields := map[string]string{"name": "required field is missing"}
	err := base.WithFields(fields)

	fields["name"] = "mutated"
	assert.Nil(t, base.Fields)
	assert.Equal(t, "required field is missing", FieldsOf(err)["name"])
}
