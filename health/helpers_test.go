package health

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConstructors(t *testing.T) {
	h := NewHealthy("a", "ok")
	assert.True(t, h.IsHealthy())
	assert.True(t, h.Healthy)
	assert.False(t, h.Timestamp.IsZero())

	d := NewDegraded("b", "slow")
	assert.True(t, d.IsDegraded())
	assert.False(t, d.Healthy)

	u := NewUnhealthy("c", "down")
	assert.True(t, u.IsUnhealthy())
	assert.Equal(t, "down", u.Message)
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name string
		subs []Status
		want string
	}{
		{"empty", nil, LevelHealthy},
		{"all healthy", []Status{NewHealthy("a", ""), NewHealthy("b", "")}, LevelHealthy},
		{"one degraded", []Status{NewHealthy("a", ""), NewDegraded("b", "")}, LevelDegraded},
		{"unhealthy wins", []Status{NewDegraded("a", ""), NewUnhealthy("b", "")}, LevelUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Aggregate("system", tt.subs)
			assert.Equal(t, tt.want, got.Status)
			assert.Equal(t, "system", got.Component)
			assert.Len(t, got.SubStatuses, len(tt.subs))
		})
	}
}

func TestAggregate_DoesNotAliasInput(t *testing.T) {
	subs := []Status{NewHealthy("a", "")}
	got := Aggregate("system", subs)

	subs[0].Status = LevelUnhealthy
	assert.Equal(t, LevelHealthy, got.SubStatuses[0].Status)
}
