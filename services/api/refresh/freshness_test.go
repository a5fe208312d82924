package refresh

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"

	"github.com/dijital/hydro-viewer/services/api/models"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func stationUpdatedAt(at *time.Time) models.Station {
	return models.Station{ID: "08MF005", Province: "BC", LastUpdate: at}
}

func ptr[T any](v T) *T { return &v }

func TestGateIsStale(t *testing.T) {
	gate := NewGate(clockwork.NewFakeClockAt(t0), time.Hour)

	tests := []struct {
		name       string
		lastUpdate *time.Time
		want       bool
	}{
		{name: "never updated", lastUpdate: nil, want: true},
		{name: "half an hour old", lastUpdate: ptr(t0.Add(-30 * time.Minute)), want: false},
		{name: "exactly at threshold", lastUpdate: ptr(t0.Add(-time.Hour)), want: false},
		{name: "just past threshold", lastUpdate: ptr(t0.Add(-time.Hour - time.Second)), want: true},
		{name: "two hours old", lastUpdate: ptr(t0.Add(-2 * time.Hour)), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, gate.IsStale(stationUpdatedAt(tt.lastUpdate)))
		})
	}
}

func TestGateFollowsClock(t *testing.T) {
	clock := clockwork.NewFakeClockAt(t0)
	gate := NewGate(clock, time.Hour)
	st := stationUpdatedAt(ptr(t0))

	assert.False(t, gate.IsStale(st))
	clock.Advance(59 * time.Minute)
	assert.False(t, gate.IsStale(st))
	clock.Advance(2 * time.Minute)
	assert.True(t, gate.IsStale(st))
}

func TestGateAge(t *testing.T) {
	gate := NewGate(clockwork.NewFakeClockAt(t0), 0)
	assert.Equal(t, DefaultThreshold, gate.Threshold())

	_, ok := gate.Age(stationUpdatedAt(nil))
	assert.False(t, ok)

	age, ok := gate.Age(stationUpdatedAt(ptr(t0.Add(-90 * time.Minute))))
	assert.True(t, ok)
	assert.Equal(t, 90*time.Minute, age)
}

func TestNewGateDefaultsToRealClock(t *testing.T) {
	gate := NewGate(nil, time.Hour)
	assert.WithinDuration(t, time.Now(), gate.Now(), time.Second)
}
