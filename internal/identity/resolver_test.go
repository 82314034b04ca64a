package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shuttletrack/internal/api"
	"shuttletrack/internal/config"
)

// fakeBackend serves canned JSON per path; everything else 404s.
func fakeBackend(t *testing.T, routes map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := routes[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestResolver(t *testing.T, routes map[string]any) *Resolver {
	t.Helper()
	srv := fakeBackend(t, routes)
	client := api.NewClient(srv.URL, 2*time.Second, api.StaticToken("t"), nil)
	return NewResolver(client, config.Default().Discovery, nil)
}

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func TestResolveDirectRoleNormalized(t *testing.T) {
	r := newTestResolver(t, nil)

	user := r.Resolve(context.Background(), &api.SignInResponse{
		AccessToken: "not-a-jwt",
		UserID:      "42",
		Username:    "maria",
		Role:        "ROLE_STUDENT",
	})

	assert.Equal(t, RoleStudent, user.Role)
	assert.Equal(t, "42", user.ID)
	assert.Equal(t, "maria", user.Username)
}

func TestResolveRolesListTakesFirst(t *testing.T) {
	r := newTestResolver(t, nil)

	user := r.Resolve(context.Background(), &api.SignInResponse{
		AccessToken: "x",
		UserID:      "1",
		Username:    "plainname",
		Roles:       []string{"ROLE_OPERATOR", "ROLE_STUDENT"},
	})

	assert.Equal(t, RoleOperator, user.Role)
}

func TestResolveFromTokenClaims(t *testing.T) {
	r := newTestResolver(t, nil)
	token := signedToken(t, jwt.MapClaims{"role": "ROLE_PARENT", "user_id": "77"})

	user := r.Resolve(context.Background(), &api.SignInResponse{
		AccessToken: token,
		Username:    "someone",
	})

	assert.Equal(t, RoleParent, user.Role)
	assert.Equal(t, "77", user.ID)
}

func TestResolveTokenAuthoritiesListAndNumericID(t *testing.T) {
	r := newTestResolver(t, nil)
	token := signedToken(t, jwt.MapClaims{
		"authorities": []string{"ROLE_OPERATOR"},
		"id":          float64(9001),
	})

	user := r.Resolve(context.Background(), &api.SignInResponse{
		AccessToken: token,
		Username:    "someone",
	})

	assert.Equal(t, RoleOperator, user.Role)
	assert.Equal(t, "9001", user.ID)
}

func TestResolveMalformedTokenFallsThrough(t *testing.T) {
	// Second segment is not base64 JSON; resolution must not panic or
	// error, just continue down the chain to the STUDENT default.
	r := newTestResolver(t, nil)

	user := r.Resolve(context.Background(), &api.SignInResponse{
		AccessToken: "header.%%%not-base64%%%.sig",
		Username:    "someone",
	})

	assert.Equal(t, RoleStudent, user.Role)
}

func TestResolveProfileLookupTopLevelRole(t *testing.T) {
	r := newTestResolver(t, map[string]any{
		"/users/5": map[string]any{"id": "5", "role": "ROLE_DRIVER"},
	})

	user := r.Resolve(context.Background(), &api.SignInResponse{
		AccessToken: "x",
		UserID:      "5",
		Username:    "plainname",
	})

	assert.Equal(t, RoleDriver, user.Role)
}

func TestResolveProfileLookupNestedRole(t *testing.T) {
	r := newTestResolver(t, map[string]any{
		"/users/5": map[string]any{"user": map[string]any{"role": "OPERATOR"}},
	})

	user := r.Resolve(context.Background(), &api.SignInResponse{
		AccessToken: "x",
		UserID:      "5",
		Username:    "plainname",
	})

	assert.Equal(t, RoleOperator, user.Role)
}

func TestResolveStudentDefaultInvitesRecheck(t *testing.T) {
	// An explicit STUDENT is low confidence; the probe chain still runs
	// and can upgrade the role.
	r := newTestResolver(t, map[string]any{
		"/parents/5": map[string]any{"id": "5"},
	})

	user := r.Resolve(context.Background(), &api.SignInResponse{
		AccessToken: "x",
		UserID:      "5",
		Username:    "plainname",
		Role:        "STUDENT",
	})

	assert.Equal(t, RoleParent, user.Role)
}

func TestResolveProbeOrderStopsAtFirstHit(t *testing.T) {
	// Both parent and driver endpoints know the id; parent wins because
	// it is probed first.
	r := newTestResolver(t, map[string]any{
		"/parents/5": map[string]any{"id": "5"},
		"/drivers/5": map[string]any{"id": "5"},
	})

	user := r.Resolve(context.Background(), &api.SignInResponse{
		AccessToken: "x",
		UserID:      "5",
		Username:    "plainname",
	})

	assert.Equal(t, RoleParent, user.Role)
}

func TestResolveDriverProbe(t *testing.T) {
	r := newTestResolver(t, map[string]any{
		"/drivers/5": map[string]any{"id": "5"},
	})

	user := r.Resolve(context.Background(), &api.SignInResponse{
		AccessToken: "x",
		UserID:      "5",
		Username:    "plainname",
	})

	assert.Equal(t, RoleDriver, user.Role)
}

func TestResolveUsernameHeuristicOverridesExplicitRole(t *testing.T) {
	r := newTestResolver(t, nil)

	cases := []struct {
		username string
		want     Role
	}{
		{"j_driver99", RoleDriver},
		{"J_DRIVER99", RoleDriver},
		{"school_operator", RoleOperator},
		{"site-admin", RoleOperator},
	}
	for _, tc := range cases {
		user := r.Resolve(context.Background(), &api.SignInResponse{
			AccessToken: "x",
			UserID:      "5",
			Username:    tc.username,
			Role:        "STUDENT",
		})
		assert.Equal(t, tc.want, user.Role, "username %q", tc.username)
	}
}

func TestResolveParentUsernameOverride(t *testing.T) {
	r := newTestResolver(t, nil)

	user := r.Resolve(context.Background(), &api.SignInResponse{
		AccessToken: "x",
		UserID:      "5",
		Username:    "vicsotto",
		Role:        "STUDENT",
	})

	assert.Equal(t, RoleParent, user.Role)
}

func TestResolveNoRoleAnywhereDefaultsStudent(t *testing.T) {
	// Example from the field: {access_token: <jwt>, username: "pat"} and
	// a backend that knows nothing.
	r := newTestResolver(t, nil)
	token := signedToken(t, jwt.MapClaims{"sub": "31"})

	user := r.Resolve(context.Background(), &api.SignInResponse{
		AccessToken: token,
		Username:    "pat",
	})

	assert.Equal(t, RoleStudent, user.Role)
	assert.Equal(t, "31", user.ID)
}

func TestResolveAlwaysYieldsEnumValue(t *testing.T) {
	r := newTestResolver(t, nil)

	for _, raw := range []string{"", "ROLE_", "weird", "role_driver", "ROLE_TEACHER", "Driver", "PARENT "} {
		user := r.Resolve(context.Background(), &api.SignInResponse{
			AccessToken: "x",
			UserID:      "5",
			Username:    "plainname",
			Role:        raw,
		})
		assert.Contains(t, []Role{RoleStudent, RoleParent, RoleDriver, RoleOperator}, user.Role, "raw role %q", raw)
	}
}

func TestNormalizeRole(t *testing.T) {
	assert.Equal(t, RoleStudent, NormalizeRole("ROLE_STUDENT"))
	assert.Equal(t, RoleDriver, NormalizeRole("driver"))
	assert.Equal(t, RoleParent, NormalizeRole(" parent "))
	assert.Equal(t, RoleStudent, NormalizeRole(""))
	assert.Equal(t, RoleStudent, NormalizeRole("TEACHER"))
}
