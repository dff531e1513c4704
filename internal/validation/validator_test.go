package validation

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	planerrors "github.com/devrev/pairdb/placement/internal/errors"
)

func TestValidateKeyspace(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "orders", false},
		{"underscore and digits", "user_events_2", false},
		{"empty", "", true},
		{"too long", strings.Repeat("k", MaxKeyspaceNameSize+1), true},
		{"dash", "user-events", true},
		{"non ascii", "bestellungen_ü", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateKeyspace(tt.input)
			if tt.wantErr {
				assert.True(t, errors.Is(err, planerrors.ErrInvalidArgument))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateKey(t *testing.T) {
	v := NewValidatorWithLimits(4, MaxKeyspaceNameSize)

	assert.NoError(t, v.ValidateKey([]byte("k1")))
	assert.NoError(t, v.ValidateKey([]byte{0, 1, 2, 3}))
	assert.Error(t, v.ValidateKey(nil))
	assert.Error(t, v.ValidateKey([]byte("12345")))
}
