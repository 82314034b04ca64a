// Package session owns the resolved identity and assignment for the life
// of the process. It is the single writer of both; everything else reads
// snapshots. Lifecycle: Uninitialized -> Checking -> Authenticated or
// Unauthenticated, then between the last two on login, logout and backend
// session invalidation. No other states exist.
package session

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"shuttletrack/internal/api"
	"shuttletrack/internal/assignment"
	"shuttletrack/internal/credstore"
	"shuttletrack/internal/identity"
)

// State is the session lifecycle state.
type State int

const (
	StateUninitialized State = iota
	StateChecking
	StateAuthenticated
	StateUnauthenticated
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateChecking:
		return "checking"
	case StateAuthenticated:
		return "authenticated"
	case StateUnauthenticated:
		return "unauthenticated"
	}
	return "unknown"
}

// ErrNotAuthenticated is returned by operations that need a signed-in user.
var ErrNotAuthenticated = errors.New("not authenticated")

// Session is the process-wide auth and assignment state. It doubles as the
// api.TokenSource so the transport can read the live token and report 401s
// back without a dependency cycle.
type Session struct {
	store       *credstore.Store
	client      *api.Client
	roles       *identity.Resolver
	assignments *assignment.Resolver
	log         *zap.Logger

	// OnChange, when set before use, is invoked after every state
	// transition. Called without internal locks held.
	OnChange func(State)

	mu           sync.Mutex
	state        State
	token        string
	pendingToken string
	user         *identity.UserRecord
	record       *assignment.Record
}

// New wires a session over the store and transport. The session registers
// itself as the client's token source.
func New(store *credstore.Store, client *api.Client, roles *identity.Resolver, assignments *assignment.Resolver, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Session{
		store:       store,
		client:      client,
		roles:       roles,
		assignments: assignments,
		log:         log,
		state:       StateUninitialized,
	}
	client.SetAuth(s)
	return s
}

// Token implements api.TokenSource. During login the freshly issued token
// is served before it is persisted, so resolution strategies can make
// authenticated calls.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pendingToken != "" {
		return s.pendingToken
	}
	return s.token
}

// Invalidate implements api.TokenSource. Called by the transport on any
// 401. The credential is cleared unconditionally; the state transition to
// Unauthenticated happens exactly once no matter how many in-flight
// requests observe the same stale token.
func (s *Session) Invalidate() {
	if err := s.store.Clear(); err != nil {
		s.log.Warn("clearing credential failed", zap.Error(err))
	}

	s.mu.Lock()
	if s.state != StateAuthenticated {
		s.mu.Unlock()
		return
	}
	s.reset(StateUnauthenticated)
	s.mu.Unlock()

	s.notify(StateUnauthenticated)
	s.log.Info("session invalidated, sign-in required")
}

// Bootstrap restores a previous session from the credential store. Runs at
// process start.
func (s *Session) Bootstrap(ctx context.Context) State {
	s.transition(StateChecking)

	cred, err := s.store.Load()
	if err != nil {
		if !errors.Is(err, credstore.ErrNoCredential) {
			s.log.Warn("credential load failed", zap.Error(err))
		}
		s.transition(StateUnauthenticated)
		return StateUnauthenticated
	}

	s.mu.Lock()
	s.token = cred.Token
	user := cred.User
	s.user = &user
	s.state = StateAuthenticated
	s.mu.Unlock()

	s.notify(StateAuthenticated)
	s.log.Debug("session restored", zap.String("username", cred.User.Username), zap.String("role", string(cred.User.Role)))
	return StateAuthenticated
}

// Login signs in, resolves the role, and persists token and user record
// together. A sign-in rejection is the only user-visible error; if ctx is
// cancelled mid-resolution nothing is committed.
func (s *Session) Login(ctx context.Context, usernameOrEmail, password string) (identity.UserRecord, error) {
	res, err := s.client.SignIn(ctx, usernameOrEmail, password)
	if err != nil {
		return identity.UserRecord{}, err
	}

	// Serve the fresh token to the resolution strategies before anything
	// is persisted.
	s.mu.Lock()
	s.pendingToken = res.AccessToken
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.pendingToken = ""
		s.mu.Unlock()
	}()

	user := s.roles.Resolve(ctx, res)

	if ctx.Err() != nil {
		return identity.UserRecord{}, ctx.Err()
	}

	// Token and user record are one credential: both or neither.
	if err := s.store.Save(credstore.Credential{Token: res.AccessToken, User: user}); err != nil {
		return identity.UserRecord{}, err
	}

	s.mu.Lock()
	s.token = res.AccessToken
	u := user
	s.user = &u
	s.record = nil
	s.state = StateAuthenticated
	s.mu.Unlock()

	s.notify(StateAuthenticated)
	return user, nil
}

// Logout clears the credential and returns to Unauthenticated.
func (s *Session) Logout() error {
	err := s.store.Clear()

	s.mu.Lock()
	s.reset(StateUnauthenticated)
	s.mu.Unlock()

	s.notify(StateUnauthenticated)
	return err
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// User returns a copy of the resolved user, or false when signed out.
func (s *Session) User() (identity.UserRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return identity.UserRecord{}, false
	}
	return *s.user, true
}

// Assignment returns a copy of the last resolved assignment, or false when
// none has been resolved.
func (s *Session) Assignment() (assignment.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.record == nil {
		return assignment.Record{}, false
	}
	return *s.record, true
}

// ResolveAssignment runs the discovery chain for the current user and
// stores the result. assignment.ErrNotAssigned passes through untouched;
// it is a valid answer, not a failure.
func (s *Session) ResolveAssignment(ctx context.Context) (assignment.Record, error) {
	user, ok := s.User()
	if !ok {
		return assignment.Record{}, ErrNotAuthenticated
	}

	// A shuttle already underway keeps its record; re-running discovery
	// mid-trip could flap to ErrNotAssigned on a transient backend miss.
	s.mu.Lock()
	if s.record.InTransit() {
		rec := *s.record
		s.mu.Unlock()
		return rec, nil
	}
	s.mu.Unlock()

	rec, err := s.assignments.Resolve(ctx, user.ID, user.Role)
	if err != nil {
		return assignment.Record{}, err
	}

	s.mu.Lock()
	// Resolution may have raced a logout or invalidation; a record must
	// never be attached to a session that is no longer authenticated.
	if s.state != StateAuthenticated || ctx.Err() != nil {
		s.mu.Unlock()
		return assignment.Record{}, ErrNotAuthenticated
	}
	copied := *rec
	s.record = &copied
	s.mu.Unlock()

	return copied, nil
}

// ApplyTelemetry updates only the live fields of the current record.
// Samples arriving after logout are dropped.
func (s *Session) ApplyTelemetry(sample assignment.Telemetry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAuthenticated || s.record == nil {
		return
	}
	if sample.Location != nil {
		loc := *sample.Location
		s.record.Location = &loc
	}
	if sample.ETA != "" {
		s.record.ETA = sample.ETA
	}
}

// reset must be called with mu held.
func (s *Session) reset(st State) {
	s.state = st
	s.token = ""
	s.pendingToken = ""
	s.user = nil
	s.record = nil
}

func (s *Session) transition(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	s.notify(st)
}

func (s *Session) notify(st State) {
	if s.OnChange != nil {
		s.OnChange(st)
	}
}
