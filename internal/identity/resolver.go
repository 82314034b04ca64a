package identity

import (
	"context"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"shuttletrack/internal/api"
	"shuttletrack/internal/config"
)

// Resolver turns a raw sign-in response into a canonical UserRecord.
//
// Strategies run in order; early ones are cheap and late ones hit the
// network. A STUDENT result from an early strategy is treated as low
// confidence, since it is also the backend's default, so the lookup
// strategies re-check it. The username heuristics run last and override everything.
type Resolver struct {
	api *api.Client
	cfg config.DiscoveryConfig
	log *zap.Logger
}

// NewResolver creates a role resolver. A nil logger disables logging.
func NewResolver(client *api.Client, cfg config.DiscoveryConfig, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{api: client, cfg: cfg, log: log}
}

// resolution is the mutable state threaded through the strategy chain.
// role stays a raw string until the final normalization step.
type resolution struct {
	id       string
	username string
	role     string
}

// inconclusive reports whether the role still needs checking. STUDENT
// counts: backends that default the field to STUDENT are the reason the
// later strategies exist.
func (r *resolution) inconclusive() bool {
	return r.role == "" || strings.EqualFold(r.role, "STUDENT")
}

type strategy func(ctx context.Context, res *api.SignInResponse, st *resolution)

// Resolve never fails: every strategy failure is absorbed and the chain
// falls through to the STUDENT default.
func (r *Resolver) Resolve(ctx context.Context, res *api.SignInResponse) UserRecord {
	st := &resolution{
		id:       res.UserID.String(),
		username: res.Username,
	}

	strategies := []strategy{
		r.fromDirectFields,
		r.fromTokenClaims,
		r.fromProfile,
		r.fromRoleProbes,
		r.fromUsernameHeuristics,
	}
	for _, run := range strategies {
		run(ctx, res, st)
	}

	role := NormalizeRole(st.role)
	r.log.Debug("role resolved",
		zap.String("user_id", st.id),
		zap.String("username", st.username),
		zap.String("role", string(role)))

	return UserRecord{ID: st.id, Username: st.username, Role: role}
}

// fromDirectFields reads the role straight off the sign-in payload.
func (r *Resolver) fromDirectFields(_ context.Context, res *api.SignInResponse, st *resolution) {
	switch {
	case res.Role != "":
		st.role = res.Role
	case len(res.Roles) > 0:
		st.role = res.Roles[0]
	case res.UserRole != "":
		st.role = res.UserRole
	}
}

// fromTokenClaims decodes the JWT payload without verifying the signature;
// the client has no key material and only wants the claims. A malformed
// token is the one failure worth logging, then the chain moves on.
func (r *Resolver) fromTokenClaims(_ context.Context, res *api.SignInResponse, st *resolution) {
	if st.role != "" && st.id != "" {
		return
	}

	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(res.AccessToken, claims); err != nil {
		r.log.Warn("bearer token payload not decodable", zap.Error(err))
		return
	}

	if st.role == "" {
		for _, key := range []string{"role", "roles", "authorities"} {
			if got := firstClaimValue(claims[key]); got != "" {
				st.role = got
				break
			}
		}
	}
	if st.id == "" {
		for _, key := range []string{"user_id", "id", "sub"} {
			if got := api.FormatID(claims[key]); got != "" {
				st.id = got
				break
			}
		}
	}
}

// firstClaimValue flattens a claim that may be a scalar or a list.
func firstClaimValue(val any) string {
	switch t := val.(type) {
	case string:
		return t
	case []any:
		if len(t) > 0 {
			if s, ok := t[0].(string); ok {
				return s
			}
		}
	case []string:
		if len(t) > 0 {
			return t[0]
		}
	}
	return ""
}

// fromProfile fetches /users/{id} and reads the role from either the top
// level or a nested user object. Lookup failures are inconclusive.
func (r *Resolver) fromProfile(ctx context.Context, _ *api.SignInResponse, st *resolution) {
	if !st.inconclusive() || st.id == "" {
		return
	}

	var profile map[string]any
	if err := r.api.GetJSON(ctx, "/users/"+st.id, &profile); err != nil {
		r.log.Debug("profile lookup inconclusive", zap.Error(err))
		return
	}
	if role, ok := profile["role"].(string); ok && role != "" {
		st.role = role
		return
	}
	if user, ok := profile["user"].(map[string]any); ok {
		if role, ok := user["role"].(string); ok && role != "" {
			st.role = role
		}
	}
}

// fromRoleProbes tries the per-role lookup endpoints in a fixed order and
// takes the first that knows the user. Any response counts as a hit; any
// error counts as not-found.
func (r *Resolver) fromRoleProbes(ctx context.Context, _ *api.SignInResponse, st *resolution) {
	if !st.inconclusive() || st.id == "" {
		return
	}

	probes := []struct {
		path string
		role Role
	}{
		{"/parents/" + st.id, RoleParent},
		{"/drivers/" + st.id, RoleDriver},
		{"/operators/" + st.id, RoleOperator},
	}
	for _, p := range probes {
		var body map[string]any
		if err := r.api.GetJSON(ctx, p.path, &body); err != nil {
			r.log.Debug("role probe missed", zap.String("path", p.path), zap.Error(err))
			continue
		}
		st.role = string(p.role)
		return
	}
}

// fromUsernameHeuristics is the fail-safe for accounts whose backend role
// is known to be wrong. It overrides every earlier strategy. Kept only for
// compatibility with the production data set.
func (r *Resolver) fromUsernameHeuristics(_ context.Context, _ *api.SignInResponse, st *resolution) {
	for _, parent := range r.cfg.ParentUsernames {
		if st.username == parent {
			st.role = string(RoleParent)
		}
	}

	lower := strings.ToLower(st.username)
	if strings.Contains(lower, "driver") {
		st.role = string(RoleDriver)
	}
	if strings.Contains(lower, "operator") || strings.Contains(lower, "admin") {
		st.role = string(RoleOperator)
	}
}
