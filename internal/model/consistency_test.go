package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConsistencyLevel(t *testing.T) {
	for _, cl := range ConsistencyLevels {
		parsed, err := ParseConsistencyLevel(cl.String())
		require.NoError(t, err)
		assert.Equal(t, cl, parsed)
	}

	parsed, err := ParseConsistencyLevel(" local_quorum ")
	require.NoError(t, err)
	assert.Equal(t, LocalQuorum, parsed)

	_, err = ParseConsistencyLevel("SERIAL")
	assert.Error(t, err)
}

func TestConsistencyLevel_JSON(t *testing.T) {
	var payload struct {
		Level ConsistencyLevel `json:"level"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"level":"each_quorum"}`), &payload))
	assert.Equal(t, EachQuorum, payload.Level)

	out, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"level":"EACH_QUORUM"}`, string(out))
}

func TestConsistencyLevel_Scope(t *testing.T) {
	assert.True(t, LocalOne.IsDatacenterLocal())
	assert.True(t, LocalQuorum.IsDatacenterLocal())
	assert.False(t, EachQuorum.IsDatacenterLocal())
	assert.True(t, EachQuorum.IsPerDatacenter())
	assert.False(t, Quorum.IsPerDatacenter())
}

func TestTransientPolicies(t *testing.T) {
	defaults := DefaultTransientPolicies()
	assert.Equal(t, TransientNever, defaults.For(All))
	assert.Equal(t, TransientAlways, defaults.For(Any))
	assert.Equal(t, TransientFillShortfall, defaults.For(LocalQuorum))

	overrides := TransientPolicies{Quorum: TransientNever}
	assert.Equal(t, TransientNever, overrides.For(Quorum))
	assert.Equal(t, TransientFillShortfall, overrides.For(One))

	var unset TransientPolicies
	assert.Equal(t, TransientNever, unset.For(All))

	for _, p := range []TransientPolicy{TransientNever, TransientFillShortfall, TransientAlways} {
		parsed, err := ParseTransientPolicy(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, parsed)
	}
	_, err := ParseTransientPolicy("sometimes")
	assert.Error(t, err)
}
