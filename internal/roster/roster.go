// Package roster builds the passenger list for a driver's shuttle.
// No dedicated passengers endpoint exists; the user list is fetched whole
// and filtered client-side, tolerating the backend's varying role spellings.
package roster

import (
	"context"

	"go.uber.org/zap"

	"shuttletrack/internal/api"
	"shuttletrack/internal/assignment"
	"shuttletrack/internal/identity"
)

// Passenger is one student riding the shuttle.
type Passenger struct {
	ID    string
	Name  string
	Grade string
}

// Service resolves a driver's passenger roster.
type Service struct {
	api         *api.Client
	assignments *assignment.Resolver
	log         *zap.Logger
}

// NewService creates a roster service. A nil logger disables logging.
func NewService(client *api.Client, assignments *assignment.Resolver, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{api: client, assignments: assignments, log: log}
}

// Passengers resolves the driver's shuttle, then filters the user list down
// to the students assigned to it. assignment.ErrNotAssigned passes through
// when the driver has no shuttle.
func (s *Service) Passengers(ctx context.Context, driverID string) (*assignment.Record, []Passenger, error) {
	shuttle, err := s.assignments.Resolve(ctx, driverID, identity.RoleDriver)
	if err != nil {
		return nil, nil, err
	}

	var users []map[string]any
	if err := s.api.GetJSON(ctx, "/users", &users); err != nil {
		s.log.Debug("user list fetch failed", zap.Error(err))
		return shuttle, nil, nil
	}

	var passengers []Passenger
	for _, raw := range users {
		if !isStudent(raw) || !ridesShuttle(raw, shuttle.ShuttleID) {
			continue
		}
		p := Passenger{
			ID:    api.FormatID(raw["id"]),
			Grade: stringField(raw, "gradeLevel"),
		}
		p.Name = stringField(raw, "fullName")
		if p.Name == "" {
			p.Name = stringField(raw, "username")
		}
		passengers = append(passengers, p)
	}
	return shuttle, passengers, nil
}

func isStudent(user map[string]any) bool {
	if role, ok := user["role"].(string); ok && role != "" {
		return identity.NormalizeRole(role) == identity.RoleStudent
	}
	if roles, ok := user["roles"].([]any); ok {
		for _, r := range roles {
			if s, ok := r.(string); ok && s != "" && identity.NormalizeRole(s) == identity.RoleStudent {
				return true
			}
		}
	}
	return false
}

func ridesShuttle(user map[string]any, shuttleID string) bool {
	if api.FormatID(user["shuttleId"]) == shuttleID {
		return true
	}
	if shuttle, ok := user["shuttle"].(map[string]any); ok {
		return api.FormatID(shuttle["id"]) == shuttleID
	}
	return false
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
