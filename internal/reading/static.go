package reading

import (
	"context"
	"sync"
	"time"
)

// StaticAdapter serves readings from an in-memory map. Used by the
// simulate command and by tests.
type StaticAdapter struct {
	mu     sync.RWMutex
	states map[string]Reading
}

// NewStatic constructs an empty static adapter.
func NewStatic() *StaticAdapter {
	return &StaticAdapter{states: make(map[string]Reading)}
}

// Set stores a numeric reading rendered as its string state.
func (a *StaticAdapter) Set(sensorID, value, unit string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := time.Now().UTC()
	r := Reading{Value: &value, LastChanged: &now}
	if unit != "" {
		r.Unit = &unit
	}
	a.states[sensorID] = r
}

// SetReading stores a fully specified reading.
func (a *StaticAdapter) SetReading(sensorID string, r Reading) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.states[sensorID] = r
}

// Delete removes a sensor entirely, making it absent.
func (a *StaticAdapter) Delete(sensorID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.states, sensorID)
}

// Get implements Adapter.
func (a *StaticAdapter) Get(_ context.Context, sensorID string) (Reading, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	r, ok := a.states[sensorID]
	return r, ok
}

var _ Adapter = (*StaticAdapter)(nil)
