package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReplicationFactor(t *testing.T) {
	tests := []struct {
		input   string
		want    ReplicationFactor
		wantErr bool
	}{
		{"3", ReplicationFactor{All: 3}, false},
		{"3/1", ReplicationFactor{All: 3, Transient: 1}, false},
		{" 5/2 ", ReplicationFactor{All: 5, Transient: 2}, false},
		{"0", ReplicationFactor{}, false},
		{"three", ReplicationFactor{}, true},
		{"3/x", ReplicationFactor{}, true},
		{"-1", ReplicationFactor{}, true},
		{"2/2", ReplicationFactor{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseReplicationFactor(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Equal(t, "3/1", ReplicationFactor{All: 3, Transient: 1}.String())
	assert.Equal(t, 2, ReplicationFactor{All: 3, Transient: 1}.Full())
}

func TestNewReplicationParams(t *testing.T) {
	params, err := NewReplicationParams(map[string]string{
		"class": "NetworkTopologyStrategy",
		"DC2":   "3/1",
		"DC1":   "3",
	})
	require.NoError(t, err)
	assert.True(t, params.IsDatacenterAware())
	assert.Equal(t, []string{"DC1", "DC2"}, params.Datacenters())
	assert.Equal(t, ReplicationFactor{All: 6, Transient: 1}, params.Total())
	assert.True(t, params.HasTransient())

	simple, err := NewReplicationParams(map[string]string{"class": "SimpleStrategy", "replication_factor": "3"})
	require.NoError(t, err)
	assert.False(t, simple.IsDatacenterAware())
	assert.Nil(t, simple.Datacenters())
	assert.Equal(t, Simple(ReplicationFactor{All: 3}), simple)

	_, err = NewReplicationParams(map[string]string{"class": "SimpleStrategy", "DC1": "3"})
	assert.Error(t, err)
	_, err = NewReplicationParams(map[string]string{"class": "SimpleStrategy"})
	assert.Error(t, err)
	_, err = NewReplicationParams(map[string]string{"class": "EverywhereStrategy"})
	assert.Error(t, err)
}

func TestNetworkTopology_CopiesFactors(t *testing.T) {
	factors := map[string]ReplicationFactor{"DC1": {All: 3}}
	params := NetworkTopology(factors)
	factors["DC1"] = ReplicationFactor{All: 1}
	assert.Equal(t, 3, params.Factors["DC1"].All)
}
