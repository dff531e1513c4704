package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
)

func TestPlanError_IsMatchesByCode(t *testing.T) {
	err := EmptyReplicaSet("token 42")
	assert.True(t, errors.Is(err, ErrEmptyReplicaSet))
	assert.False(t, errors.Is(err, ErrUnavailable))

	wrapped := fmt.Errorf("planning write: %w", err)
	assert.True(t, errors.Is(wrapped, ErrEmptyReplicaSet))
	assert.Equal(t, ErrCodeEmptyReplicaSet, GetCode(wrapped))
	assert.True(t, IsPlanError(wrapped))
}

func TestGetCode_ForeignError(t *testing.T) {
	assert.Equal(t, ErrCodeInternal, GetCode(errors.New("boom")))
	assert.False(t, IsPlanError(errors.New("boom")))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(Unavailable("QUORUM", 2, 1, nil)))
	assert.False(t, IsRetryable(UnsupportedConsistencyLevel("EACH_QUORUM", "not datacenter aware")))
	assert.False(t, IsRetryable(DuplicateEndpoint("a:9042", "token 1")))
	assert.False(t, IsRetryable(errors.New("boom")))
}

func TestToGRPCStatus(t *testing.T) {
	tests := []struct {
		err  *PlanError
		want codes.Code
	}{
		{Unavailable("ONE", 1, 0, nil), codes.Unavailable},
		{UnknownKeyspace("ks"), codes.NotFound},
		{InvalidArgument("bad key", nil), codes.InvalidArgument},
		{UnsupportedConsistencyLevel("ANY", "reads"), codes.FailedPrecondition},
		{ReplicaOutOfScope("Full(a,(0,1])", "token 5"), codes.Internal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.err.ToGRPCStatus().Code(), tt.err.Error())
	}
}

func TestUnavailable_Details(t *testing.T) {
	err := Unavailable("EACH_QUORUM", 4, 3, map[string][2]int{"DC1": {2, 1}})
	assert.Equal(t, "EACH_QUORUM", err.Details["consistency_level"])
	assert.Equal(t, 4, err.Details["required"])
	assert.Equal(t, 3, err.Details["alive"])
	assert.Contains(t, err.Details, "per_datacenter")

	plain := Unavailable("ONE", 1, 0, nil)
	assert.NotContains(t, plain.Details, "per_datacenter")
}
