// Package assignment discovers the shuttle currently associated with a
// user and keeps its live telemetry fresh.
//
// No single backend endpoint reliably answers "what is my shuttle". The
// resolver walks role-specific fallback chains over documented and
// speculative endpoints, and every raw response shape is normalized into
// one Record before anything downstream sees it.
package assignment

// Status is the shuttle's lifecycle state as reported by the backend.
type Status string

const (
	StatusIdle      Status = "IDLE"
	StatusActive    Status = "ACTIVE"
	StatusOnRoute   Status = "ON_ROUTE"
	StatusCompleted Status = "COMPLETED"
)

// Location is a live GPS position.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// DriverRef identifies the driver attached to a rider's assignment.
type DriverRef struct {
	FullName      string `json:"fullName"`
	ContactNumber string `json:"contactNumber,omitempty"`
}

// Record is the canonical assignment shape. Whatever endpoint produced it,
// callers only ever see this. Records are never persisted; shuttle
// assignment is a time-varying fact owned by the backend and is refetched
// on demand.
type Record struct {
	ShuttleID   string     `json:"shuttleId"`
	PlateNumber string     `json:"plateNumber"`
	Capacity    int        `json:"capacity"`
	Occupancy   int        `json:"currentOccupancy"`
	Status      Status     `json:"status"`
	Driver      *DriverRef `json:"driver,omitempty"`
	Location    *Location  `json:"location,omitempty"`
	ETA         string     `json:"eta,omitempty"`
}

// InTransit reports whether the shuttle is out on a run; discovery is
// skipped for in-transit shuttles during polling, only telemetry refreshes.
func (r *Record) InTransit() bool {
	return r != nil && (r.Status == StatusActive || r.Status == StatusOnRoute)
}
