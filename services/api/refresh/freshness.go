package refresh

import (
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/dijital/hydro-viewer/services/api/models"
)

// DefaultThreshold is how long cached readings stay fresh.
const DefaultThreshold = time.Hour

// Gate decides whether a station's cached readings need a refresh. It reads
// only the station's stored last-update stamp and the clock.
type Gate struct {
	clock     clockwork.Clock
	threshold time.Duration
}

// NewGate returns a gate. A nil clock means wall time; a non-positive
// threshold means DefaultThreshold.
func NewGate(clock clockwork.Clock, threshold time.Duration) *Gate {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Gate{clock: clock, threshold: threshold}
}

// Now is the gate's notion of the current time.
func (g *Gate) Now() time.Time {
	return g.clock.Now()
}

// Threshold returns the configured freshness window.
func (g *Gate) Threshold() time.Duration {
	return g.threshold
}

// Age reports how long ago the station was last synchronized. ok is false
// when it never was.
func (g *Gate) Age(st models.Station) (age time.Duration, ok bool) {
	if st.LastUpdate == nil {
		return 0, false
	}
	return g.clock.Since(*st.LastUpdate), true
}

// IsStale is true when the station was never synchronized or its data is
// older than the threshold.
func (g *Gate) IsStale(st models.Station) bool {
	age, ok := g.Age(st)
	return !ok || age > g.threshold
}
