package reading

import (
	"context"
	"time"
)

// Reading is one sensor observation as exposed by the host platform.
// Value and Unit are raw strings; a value that does not parse as a number
// contributes nothing downstream.
type Reading struct {
	Value       *string
	Unit        *string
	LastChanged *time.Time
}

// Adapter exposes the current state of configured sensors.
type Adapter interface {
	// Get returns the reading for a sensor, or ok=false when the sensor
	// is not known to the platform at all.
	Get(ctx context.Context, sensorID string) (Reading, bool)
}
