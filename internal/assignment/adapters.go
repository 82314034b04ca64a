package assignment

import (
	"shuttletrack/internal/api"
)

// payload is a loosely-typed backend response. The helpers below absorb the
// field-name and type drift between endpoints so each adapter stays a flat
// field mapping.
type payload map[string]any

func (p payload) str(keys ...string) string {
	for _, k := range keys {
		if v, ok := p[k]; ok {
			if s := api.FormatID(v); s != "" {
				return s
			}
		}
	}
	return ""
}

func (p payload) num(keys ...string) int {
	for _, k := range keys {
		switch v := p[k].(type) {
		case float64:
			return int(v)
		case int:
			return v
		}
	}
	return 0
}

func (p payload) obj(keys ...string) payload {
	for _, k := range keys {
		if m, ok := p[k].(map[string]any); ok {
			return payload(m)
		}
	}
	return nil
}

// looksLikeShuttle reports whether a probed response carries shuttle-like
// fields. Used when walking the speculative endpoint table.
func (p payload) looksLikeShuttle() bool {
	return p.str("shuttleNumber") != "" || p.str("plateNumber") != "" || p.obj("shuttle") != nil
}

// fromShuttlePayload maps a shuttle object, embedded or standalone, onto
// the canonical record. Handles both the backend's entity field names
// (licensePlate, maxCapacity) and the flat names some endpoints use.
func fromShuttlePayload(p payload) *Record {
	if p == nil {
		return nil
	}
	rec := &Record{
		ShuttleID:   p.str("shuttleId", "assignedShuttleId", "id", "shuttleNumber"),
		PlateNumber: p.str("plateNumber", "licensePlate"),
		Capacity:    p.num("capacity", "maxCapacity"),
		Occupancy:   p.num("currentOccupancy", "occupancy"),
		Status:      normalizeStatus(p.str("status")),
	}
	if rec.ShuttleID == "" && rec.PlateNumber == "" {
		return nil
	}
	return rec
}

// fromStudentProfile reads the full object graph GET /students/{id} can
// return: Student.assignedShuttle -> Shuttle, with driver -> Driver.user
// nested inside. One call yields shuttle and driver together, which makes
// this the preferred chain step.
func fromStudentProfile(p payload) *Record {
	shuttle := p.obj("assignedShuttle")
	if shuttle == nil {
		return nil
	}
	rec := fromShuttlePayload(shuttle)
	if rec == nil {
		return nil
	}

	if driver := shuttle.obj("driver"); driver != nil {
		ref := &DriverRef{ContactNumber: driver.str("contactPhone", "contactNumber")}
		if user := driver.obj("user"); user != nil {
			ref.FullName = user.str("username", "fullName")
		}
		if ref.FullName == "" {
			ref.FullName = driver.str("fullName")
		}
		if ref.FullName != "" || ref.ContactNumber != "" {
			rec.Driver = ref
		}
	}
	return rec
}

// fromAssignedShuttleStub reads the bare-identifier shape of the dedicated
// assigned-shuttle endpoints. The driver id, if any, is returned for the
// caller to chain a driver-detail fetch.
func fromAssignedShuttleStub(p payload) (*Record, string) {
	if inner := p.obj("shuttle"); inner != nil {
		return fromShuttlePayload(inner), p.str("driverId")
	}
	return fromShuttlePayload(p), p.str("driverId")
}

// fromDriverDetail maps GET /drivers/{id} onto a DriverRef.
func fromDriverDetail(p payload) *DriverRef {
	ref := &DriverRef{ContactNumber: p.str("contactPhone", "contactNumber")}
	if user := p.obj("user"); user != nil {
		ref.FullName = user.str("username", "fullName")
	}
	if ref.FullName == "" {
		ref.FullName = p.str("fullName")
	}
	if ref.FullName == "" && ref.ContactNumber == "" {
		return nil
	}
	return ref
}

func normalizeStatus(raw string) Status {
	switch Status(raw) {
	case StatusIdle, StatusActive, StatusOnRoute, StatusCompleted:
		return Status(raw)
	}
	return StatusIdle
}
