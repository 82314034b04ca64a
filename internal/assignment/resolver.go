package assignment

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"shuttletrack/internal/api"
	"shuttletrack/internal/config"
	"shuttletrack/internal/identity"
)

// ErrNotAssigned is the terminal no-data state: every endpoint in the chain
// was exhausted without a usable shuttle reference. It is not a failure:
// "no shuttle currently assigned" is a valid answer and is distinguishable
// from transport errors.
var ErrNotAssigned = errors.New("no shuttle assigned")

// Resolver discovers the shuttle associated with a user. Safe to call
// repeatedly; concurrent calls for the same user collapse into one chain
// walk.
type Resolver struct {
	api *api.Client
	cfg config.DiscoveryConfig
	log *zap.Logger
	sf  singleflight.Group
}

// NewResolver creates an assignment resolver. A nil logger disables logging.
func NewResolver(client *api.Client, cfg config.DiscoveryConfig, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{api: client, cfg: cfg, log: log}
}

// Resolve walks the role-specific discovery chain. Steps run strictly in
// order; a later step is reached only when the earlier ones were
// inconclusive. Per-step failures are absorbed.
func (r *Resolver) Resolve(ctx context.Context, userID string, role identity.Role) (*Record, error) {
	v, err, _ := r.sf.Do(string(role)+"/"+userID, func() (any, error) {
		switch role {
		case identity.RoleDriver:
			return r.resolveDriver(ctx, userID)
		case identity.RoleParent:
			return r.resolveParent(ctx, userID)
		case identity.RoleOperator:
			// Operators manage the fleet; no shuttle is theirs.
			return nil, ErrNotAssigned
		default:
			return r.resolveStudent(ctx, userID)
		}
	})
	if err != nil {
		return nil, err
	}
	return v.(*Record), nil
}

// fatal reports an error that must abort a chain instead of advancing it.
// A rejected token is not "this endpoint has no data"; every later step
// would be rejected the same way.
func fatal(err error) bool {
	return errors.Is(err, api.ErrUnauthorized) || errors.Is(err, context.Canceled)
}

// resolveDriver finds the driver's own vehicle.
func (r *Resolver) resolveDriver(ctx context.Context, driverID string) (*Record, error) {
	// Dedicated assigned-shuttle endpoint first.
	var assigned payload
	if err := r.api.GetJSON(ctx, "/drivers/"+driverID+"/assigned-shuttle", &assigned); err == nil {
		if rec, _ := fromAssignedShuttleStub(assigned); rec != nil {
			return rec, nil
		}
	} else if fatal(err) {
		return nil, err
	} else {
		r.log.Debug("driver assigned-shuttle endpoint inconclusive", zap.Error(err))
	}

	// The driver record itself sometimes embeds the shuttle.
	var driver payload
	if err := r.api.GetJSON(ctx, "/drivers/"+driverID, &driver); err == nil {
		if rec := fromShuttlePayload(driver.obj("shuttle", "assignedShuttle")); rec != nil {
			return rec, nil
		}
	} else if fatal(err) {
		return nil, err
	} else {
		r.log.Debug("driver record fetch inconclusive", zap.Error(err))
	}

	// Last resort: walk the configured candidate endpoints, keying off
	// whatever shuttle-like fields each response happens to carry.
	for _, tmpl := range r.cfg.DriverProbePaths {
		path := strings.ReplaceAll(tmpl, "{id}", driverID)
		var body payload
		if err := r.api.GetJSON(ctx, path, &body); err != nil {
			if fatal(err) {
				return nil, err
			}
			r.log.Debug("assignment probe missed", zap.String("path", path), zap.Error(err))
			continue
		}
		if !body.looksLikeShuttle() {
			continue
		}
		if inner := body.obj("shuttle"); inner != nil {
			if rec := fromShuttlePayload(inner); rec != nil {
				r.log.Debug("assignment probe hit", zap.String("path", path))
				return rec, nil
			}
			continue
		}
		if rec := fromShuttlePayload(body); rec != nil {
			r.log.Debug("assignment probe hit", zap.String("path", path))
			return rec, nil
		}
	}

	return nil, ErrNotAssigned
}

// resolveStudent finds the vehicle a student rides. The authenticated user
// id and the domain student id are not guaranteed to match, so the real
// student id is resolved first.
func (r *Resolver) resolveStudent(ctx context.Context, userID string) (*Record, error) {
	studentID, err := r.canonicalStudentID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return r.resolveForStudentID(ctx, studentID)
}

func (r *Resolver) resolveForStudentID(ctx context.Context, studentID string) (*Record, error) {
	// Preferred: the student profile returns the full object graph,
	// shuttle and driver in one call.
	var profile payload
	if err := r.api.GetJSON(ctx, "/students/"+studentID, &profile); err == nil {
		if rec := fromStudentProfile(profile); rec != nil {
			return rec, nil
		}
	} else if fatal(err) {
		return nil, err
	} else {
		r.log.Debug("student profile fetch inconclusive", zap.Error(err))
	}

	// Fallback: the assigned-shuttle endpoint returns bare identifiers;
	// driver details need a chained fetch.
	var stub payload
	if err := r.api.GetJSON(ctx, "/students/"+studentID+"/assigned-shuttle", &stub); err != nil {
		if fatal(err) {
			return nil, err
		}
		r.log.Debug("student assigned-shuttle endpoint inconclusive", zap.Error(err))
		return nil, ErrNotAssigned
	}
	rec, driverID := fromAssignedShuttleStub(stub)
	if rec == nil {
		return nil, ErrNotAssigned
	}
	if driverID != "" {
		var driver payload
		if err := r.api.GetJSON(ctx, "/drivers/"+driverID, &driver); err == nil {
			rec.Driver = fromDriverDetail(driver)
		}
	}
	return rec, nil
}

// canonicalStudentID maps an auth user id to the domain student id. Falls
// back to the user id itself when neither lookup can improve on it.
func (r *Resolver) canonicalStudentID(ctx context.Context, userID string) (string, error) {
	var profile payload
	if err := r.api.GetJSON(ctx, "/students/"+userID, &profile); err == nil {
		if id := profile.str("studentId"); id != "" {
			return id, nil
		}
		if len(profile) > 0 {
			return userID, nil
		}
	} else if fatal(err) {
		return "", err
	}

	var students []map[string]any
	if err := r.api.GetJSON(ctx, "/students", &students); err == nil {
		for _, raw := range students {
			s := payload(raw)
			if s.str("userId") == userID {
				if id := s.str("id", "studentId"); id != "" {
					return id, nil
				}
			}
		}
	} else if fatal(err) {
		return "", err
	}
	return userID, nil
}

// resolveParent resolves the first listed child, then runs the student
// chain on that child.
func (r *Resolver) resolveParent(ctx context.Context, parentID string) (*Record, error) {
	var children []map[string]any
	if err := r.api.GetJSON(ctx, "/students/parent/"+parentID, &children); err != nil {
		if fatal(err) {
			return nil, err
		}
		r.log.Debug("children lookup inconclusive", zap.Error(err))
		return nil, ErrNotAssigned
	}
	if len(children) == 0 {
		return nil, ErrNotAssigned
	}

	child := payload(children[0])
	childID := child.str("id", "studentId")
	if childID == "" {
		return nil, ErrNotAssigned
	}
	return r.resolveForStudentID(ctx, childID)
}
