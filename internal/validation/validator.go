package validation

import (
	"fmt"
	"unicode"

	planerrors "github.com/devrev/pairdb/placement/internal/errors"
)

const (
	// Size limits
	MaxKeySize          = 65535 // partition keys are length-prefixed with 16 bits
	MaxKeyspaceNameSize = 48
)

// Validator validates plan request arguments
type Validator struct {
	maxKeySize          int
	maxKeyspaceNameSize int
}

// NewValidator creates a new validator with default limits
func NewValidator() *Validator {
	return &Validator{
		maxKeySize:          MaxKeySize,
		maxKeyspaceNameSize: MaxKeyspaceNameSize,
	}
}

// NewValidatorWithLimits creates a validator with custom limits
func NewValidatorWithLimits(maxKeySize, maxKeyspaceNameSize int) *Validator {
	return &Validator{
		maxKeySize:          maxKeySize,
		maxKeyspaceNameSize: maxKeyspaceNameSize,
	}
}

// ValidateKeyspace validates a keyspace name
func (v *Validator) ValidateKeyspace(name string) error {
	if name == "" {
		return planerrors.InvalidArgument("keyspace name cannot be empty", nil)
	}
	if len(name) > v.maxKeyspaceNameSize {
		return planerrors.InvalidArgument(
			fmt.Sprintf("keyspace name exceeds maximum size of %d bytes", v.maxKeyspaceNameSize), nil)
	}

	// Word characters only
	for _, r := range name {
		if r != '_' && (r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r))) {
			return planerrors.InvalidArgument(
				fmt.Sprintf("keyspace name %q may only contain letters, digits and underscores", name), nil)
		}
	}
	return nil
}

// ValidateKey validates a partition key
func (v *Validator) ValidateKey(key []byte) error {
	if len(key) == 0 {
		return planerrors.InvalidArgument("partition key cannot be empty", nil)
	}
	if len(key) > v.maxKeySize {
		return planerrors.InvalidArgument(
			fmt.Sprintf("partition key of %d bytes exceeds maximum size of %d bytes", len(key), v.maxKeySize), nil)
	}
	return nil
}
