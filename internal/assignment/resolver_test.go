package assignment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shuttletrack/internal/api"
	"shuttletrack/internal/config"
	"shuttletrack/internal/identity"
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

func TestStudentEmbeddedShuttleProfile(t *testing.T) {
	// The full object graph in one call: shuttle plus nested driver.user.
	r := newTestResolver(t, map[string]any{
		"/students/42": map[string]any{
			"studentId": "42",
			"assignedShuttle": map[string]any{
				"shuttleId":    7,
				"licensePlate": "ABC-123",
				"maxCapacity":  12,
				"status":       "ON_ROUTE",
				"driver": map[string]any{
					"contactPhone": "0917",
					"user":         map[string]any{"username": "Ben"},
				},
			},
		},
	})

	rec, err := r.Resolve(context.Background(), "42", identity.RoleStudent)
	require.NoError(t, err)

	want := &Record{
		ShuttleID:   "7",
		PlateNumber: "ABC-123",
		Capacity:    12,
		Status:      StatusOnRoute,
		Driver:      &DriverRef{FullName: "Ben", ContactNumber: "0917"},
	}
	if diff := cmp.Diff(want, rec); diff != "" {
		t.Fatalf("record mismatch (-want +got):\n%s", diff)
	}
}

func TestStudentFallbackToBareIDsAndDriverChain(t *testing.T) {
	// Profile has no embedded shuttle; the dedicated endpoint returns bare
	// identifiers and the driver detail comes from a chained fetch.
	r := newTestResolver(t, map[string]any{
		"/students/42": map[string]any{"studentId": "42", "fullName": "Maria"},
		"/students/42/assigned-shuttle": map[string]any{
			"shuttleId": "s-9",
			"driverId":  "d-1",
		},
		"/drivers/d-1": map[string]any{
			"contactPhone": "0918",
			"user":         map[string]any{"username": "Ben"},
		},
	})

	rec, err := r.Resolve(context.Background(), "42", identity.RoleStudent)
	require.NoError(t, err)
	assert.Equal(t, "s-9", rec.ShuttleID)
	require.NotNil(t, rec.Driver)
	assert.Equal(t, "Ben", rec.Driver.FullName)
	assert.Equal(t, "0918", rec.Driver.ContactNumber)
}

func TestStudentIDCanonicalizedViaListScan(t *testing.T) {
	// The auth user id (u-32) is not the domain student id (st-12); the
	// direct profile fetch 404s and the list scan maps one to the other.
	r := newTestResolver(t, map[string]any{
		"/students": []map[string]any{
			{"id": "st-11", "userId": "u-99"},
			{"id": "st-12", "userId": "u-32"},
		},
		"/students/st-12": map[string]any{
			"assignedShuttle": map[string]any{"shuttleId": "s-5", "licensePlate": "XYZ-77"},
		},
	})

	rec, err := r.Resolve(context.Background(), "u-32", identity.RoleStudent)
	require.NoError(t, err)
	assert.Equal(t, "s-5", rec.ShuttleID)
	assert.Equal(t, "XYZ-77", rec.PlateNumber)
}

func TestStudentNothingAnywhere(t *testing.T) {
	r := newTestResolver(t, map[string]any{
		"/students/42": map[string]any{"studentId": "42"},
	})

	_, err := r.Resolve(context.Background(), "42", identity.RoleStudent)
	assert.ErrorIs(t, err, ErrNotAssigned)
}

func TestAllEndpoints404IsNotAssignedNotError(t *testing.T) {
	for _, role := range []identity.Role{identity.RoleStudent, identity.RoleParent, identity.RoleDriver} {
		r := newTestResolver(t, nil)
		_, err := r.Resolve(context.Background(), "1", role)
		assert.ErrorIs(t, err, ErrNotAssigned, "role %s", role)
	}
}

func TestResolveIdempotent(t *testing.T) {
	r := newTestResolver(t, map[string]any{
		"/students/42": map[string]any{
			"assignedShuttle": map[string]any{"shuttleId": "s-1", "licensePlate": "AAA-111"},
		},
	})

	first, err := r.Resolve(context.Background(), "42", identity.RoleStudent)
	require.NoError(t, err)
	second, err := r.Resolve(context.Background(), "42", identity.RoleStudent)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestDriverDirectAssignedShuttle(t *testing.T) {
	r := newTestResolver(t, map[string]any{
		"/drivers/d-1/assigned-shuttle": map[string]any{
			"shuttle": map[string]any{"shuttleId": "s-3", "plateNumber": "DRV-001", "status": "ACTIVE"},
		},
	})

	rec, err := r.Resolve(context.Background(), "d-1", identity.RoleDriver)
	require.NoError(t, err)
	assert.Equal(t, "s-3", rec.ShuttleID)
	assert.Equal(t, StatusActive, rec.Status)
}

func TestDriverEmbeddedShuttleOnRecord(t *testing.T) {
	r := newTestResolver(t, map[string]any{
		"/drivers/d-1": map[string]any{
			"fullName":        "Ben",
			"assignedShuttle": map[string]any{"shuttleId": "s-4", "licensePlate": "DRV-002"},
		},
	})

	rec, err := r.Resolve(context.Background(), "d-1", identity.RoleDriver)
	require.NoError(t, err)
	assert.Equal(t, "s-4", rec.ShuttleID)
	assert.Equal(t, "DRV-002", rec.PlateNumber)
}

func TestDriverProbeTableFindsShuttleLikeResponse(t *testing.T) {
	// Documented endpoints are gone; a speculative path answers with
	// shuttle-like keys and wins.
	r := newTestResolver(t, map[string]any{
		"/shuttles/driver/d-1": map[string]any{"shuttleNumber": "5", "plateNumber": "PRB-005"},
	})

	rec, err := r.Resolve(context.Background(), "d-1", identity.RoleDriver)
	require.NoError(t, err)
	assert.Equal(t, "PRB-005", rec.PlateNumber)
}

func TestDriverProbeIgnoresNonShuttleResponses(t *testing.T) {
	// A probe endpoint that answers with something unrelated must not be
	// mistaken for an assignment.
	r := newTestResolver(t, map[string]any{
		"/shuttles/assigned": map[string]any{"message": "try again later"},
	})

	_, err := r.Resolve(context.Background(), "d-1", identity.RoleDriver)
	assert.ErrorIs(t, err, ErrNotAssigned)
}

func TestDriverProbePathsComeFromConfig(t *testing.T) {
	srv := fakeBackend(t, map[string]any{
		"/custom/d-1/vehicle": map[string]any{"shuttle": map[string]any{"shuttleId": "s-8", "plateNumber": "CFG-008"}},
	})
	client := api.NewClient(srv.URL, 2*time.Second, api.StaticToken("t"), nil)
	cfg := config.DiscoveryConfig{DriverProbePaths: []string{"/custom/{id}/vehicle"}}

	rec, err := NewResolver(client, cfg, nil).Resolve(context.Background(), "d-1", identity.RoleDriver)
	require.NoError(t, err)
	assert.Equal(t, "s-8", rec.ShuttleID)
}

func TestParentResolvesFirstChild(t *testing.T) {
	r := newTestResolver(t, map[string]any{
		"/students/parent/p-1": []map[string]any{
			{"id": "st-1", "fullName": "Kid One"},
			{"id": "st-2", "fullName": "Kid Two"},
		},
		"/students/st-1": map[string]any{
			"assignedShuttle": map[string]any{"shuttleId": "s-6", "licensePlate": "KID-001"},
		},
	})

	rec, err := r.Resolve(context.Background(), "p-1", identity.RoleParent)
	require.NoError(t, err)
	assert.Equal(t, "s-6", rec.ShuttleID)
}

func TestParentWithNoChildren(t *testing.T) {
	r := newTestResolver(t, map[string]any{
		"/students/parent/p-1": []map[string]any{},
	})

	_, err := r.Resolve(context.Background(), "p-1", identity.RoleParent)
	assert.ErrorIs(t, err, ErrNotAssigned)
}

func TestOperatorHasNoPersonalShuttle(t *testing.T) {
	r := newTestResolver(t, nil)
	_, err := r.Resolve(context.Background(), "o-1", identity.RoleOperator)
	assert.ErrorIs(t, err, ErrNotAssigned)
}

func TestUnauthorizedAbortsChain(t *testing.T) {
	// A rejected token is a real failure, not "no shuttle assigned";
	// the two terminal states must stay distinguishable.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)
	client := api.NewClient(srv.URL, 2*time.Second, api.StaticToken("stale"), nil)

	r := NewResolver(client, config.Default().Discovery, nil)
	_, err := r.Resolve(context.Background(), "42", identity.RoleStudent)
	assert.ErrorIs(t, err, api.ErrUnauthorized)
	assert.NotErrorIs(t, err, ErrNotAssigned)
}

func TestServerErrorsTreatedAsNoData(t *testing.T) {
	// 500s on every endpoint behave exactly like 404s for discovery.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)
	client := api.NewClient(srv.URL, 2*time.Second, api.StaticToken("t"), nil)

	r := NewResolver(client, config.Default().Discovery, nil)
	_, err := r.Resolve(context.Background(), "d-1", identity.RoleDriver)
	assert.ErrorIs(t, err, ErrNotAssigned)
}
