package main

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
)

// server serves the REST contract the client depends on. Endpoint groups
// can be disabled at startup to exercise the client's fallback chains the
// way the real backend exercises them: by not being there.
type server struct {
	world    *world
	secret   string
	disabled map[string]bool
}

func newServer(w *world, secret string, disabled []string) *server {
	d := make(map[string]bool, len(disabled))
	for _, name := range disabled {
		if name = strings.TrimSpace(name); name != "" {
			d[name] = true
		}
	}
	return &server{world: w, secret: secret, disabled: d}
}

func (s *server) router() http.Handler {
	r := chi.NewRouter()

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/sign-in", s.handleSignIn)

		r.Get("/users", s.handleListUsers)
		r.Get("/users/{id}", s.handleGetUser)
		r.Get("/students", s.handleListStudents)
		r.Get("/students/{id}", s.handleGetStudent)
		r.Get("/students/{id}/assigned-shuttle", s.handleStudentAssignedShuttle)
		r.Get("/students/parent/{id}", s.handleChildren)
		r.Get("/drivers/{id}", s.handleGetDriver)
		r.Get("/drivers/{id}/assigned-shuttle", s.handleDriverAssignedShuttle)
		r.Get("/parents/{id}", s.handleGetParent)
		r.Get("/operators/{id}", s.handleGetOperator)
		r.Get("/shuttles/{id}", s.handleGetShuttle)
		r.Get("/eta/shuttle/{id}/students", s.handleETA)

		r.Get("/messages/contacts", s.handleContacts)
		r.Get("/messages/history/{id}", s.handleHistory)
		r.Post("/messages/send", s.handleSend)
	})

	return r
}

// gone reports whether the endpoint group is disabled; disabled groups 404
// like the production endpoints that never existed.
func (s *server) gone(w http.ResponseWriter, group string) bool {
	if s.disabled[group] {
		writeError(w, http.StatusNotFound, "not found")
		return true
	}
	return false
}

func (s *server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UsernameOrEmail string `json:"usernameOrEmail"`
		Password        string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad request")
		return
	}

	u := s.world.userByName(req.UsernameOrEmail)
	if u == nil || u.Password != req.Password {
		writeError(w, http.StatusUnauthorized, "invalid username or password")
		return
	}

	claims := jwt.MapClaims{
		"sub": u.ID,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	if !s.disabled["token-role"] {
		claims["user_id"] = u.ID
		if u.Role != "" {
			claims["role"] = u.Role
		}
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.secret))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token signing failed")
		return
	}

	resp := map[string]any{
		"access_token": token,
		"user_id":      u.ID,
		"username":     u.Username,
	}
	if u.Role != "" && !s.disabled["signin-role"] {
		resp["role"] = u.Role
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	if s.gone(w, "users") {
		return
	}
	out := make([]map[string]any, 0, len(s.world.users))
	for _, u := range s.world.users {
		entry := map[string]any{
			"id":       u.ID,
			"username": u.Username,
			"fullName": u.FullName,
			"role":     strings.TrimPrefix(u.Role, "ROLE_"),
		}
		if u.ShuttleID != "" {
			entry["shuttleId"] = u.ShuttleID
		}
		out = append(out, entry)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	if s.gone(w, "users") {
		return
	}
	u := s.world.userByID(chi.URLParam(r, "id"))
	if u == nil {
		writeError(w, http.StatusNotFound, "no such user")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":       u.ID,
		"username": u.Username,
		"fullName": u.FullName,
		"role":     strings.TrimPrefix(u.Role, "ROLE_"),
	})
}

func (s *server) handleListStudents(w http.ResponseWriter, r *http.Request) {
	if s.gone(w, "students") {
		return
	}
	out := make([]map[string]any, 0, len(s.world.students))
	for _, st := range s.world.students {
		out = append(out, map[string]any{
			"id":       st.ID,
			"userId":   st.UserID,
			"fullName": st.FullName,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) handleGetStudent(w http.ResponseWriter, r *http.Request) {
	if s.gone(w, "students") {
		return
	}
	st := s.world.studentByAnyID(chi.URLParam(r, "id"))
	if st == nil {
		writeError(w, http.StatusNotFound, "no such student")
		return
	}

	body := map[string]any{
		"id":        st.ID,
		"studentId": st.ID,
		"userId":    st.UserID,
		"fullName":  st.FullName,
	}
	if parent := s.world.userByID(st.ParentID); parent != nil {
		body["parent"] = map[string]any{
			"parentId": parent.ID,
			"fullName": parent.FullName,
			"user":     map[string]any{"userId": parent.ID, "username": parent.Username},
		}
	}
	if st.ShuttleID == s.world.shuttle.ID && !s.disabled["profile-shuttle"] {
		sh := s.world.shuttle
		body["assignedShuttle"] = map[string]any{
			"shuttleId":    sh.ID,
			"licensePlate": sh.LicensePlate,
			"maxCapacity":  sh.MaxCapacity,
			"status":       sh.Status,
			"driver": map[string]any{
				"contactPhone": s.world.driver.ContactPhone,
				"user":         map[string]any{"username": s.world.driver.FullName},
			},
		}
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *server) handleStudentAssignedShuttle(w http.ResponseWriter, r *http.Request) {
	if s.gone(w, "assigned-shuttle") {
		return
	}
	st := s.world.studentByAnyID(chi.URLParam(r, "id"))
	if st == nil || st.ShuttleID == "" {
		writeError(w, http.StatusNotFound, "no assignment")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"shuttleId":         st.ShuttleID,
		"assignedShuttleId": st.ShuttleID,
		"driverId":          s.world.driver.UserID,
	})
}

func (s *server) handleChildren(w http.ResponseWriter, r *http.Request) {
	if s.gone(w, "parents") {
		return
	}
	parentID := chi.URLParam(r, "id")
	out := []map[string]any{}
	for _, st := range s.world.students {
		if st.ParentID == parentID {
			out = append(out, map[string]any{
				"id":       st.ID,
				"userId":   st.UserID,
				"fullName": st.FullName,
			})
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) handleGetDriver(w http.ResponseWriter, r *http.Request) {
	if s.gone(w, "drivers") {
		return
	}
	d := s.world.driver
	if chi.URLParam(r, "id") != d.UserID {
		writeError(w, http.StatusNotFound, "no such driver")
		return
	}
	body := map[string]any{
		"id":           d.UserID,
		"fullName":     d.FullName,
		"contactPhone": d.ContactPhone,
		"user":         map[string]any{"userId": d.UserID, "username": d.FullName},
	}
	if d.ShuttleID != "" && !s.disabled["driver-embedded-shuttle"] {
		body["shuttle"] = s.shuttleBody()
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *server) handleDriverAssignedShuttle(w http.ResponseWriter, r *http.Request) {
	if s.gone(w, "assigned-shuttle") {
		return
	}
	d := s.world.driver
	if chi.URLParam(r, "id") != d.UserID || d.ShuttleID == "" {
		writeError(w, http.StatusNotFound, "no assignment")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"shuttle": s.shuttleBody()})
}

func (s *server) handleGetParent(w http.ResponseWriter, r *http.Request) {
	if s.gone(w, "parents") {
		return
	}
	u := s.world.userByID(chi.URLParam(r, "id"))
	if u == nil || u.Username != "vicsotto" {
		writeError(w, http.StatusNotFound, "no such parent")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": u.ID, "fullName": u.FullName})
}

func (s *server) handleGetOperator(w http.ResponseWriter, r *http.Request) {
	if s.gone(w, "operators") {
		return
	}
	u := s.world.userByID(chi.URLParam(r, "id"))
	if u == nil || u.Role != "OPERATOR" {
		writeError(w, http.StatusNotFound, "no such operator")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": u.ID, "fullName": u.FullName})
}

func (s *server) handleGetShuttle(w http.ResponseWriter, r *http.Request) {
	if s.gone(w, "shuttles") {
		return
	}
	if chi.URLParam(r, "id") != s.world.shuttle.ID {
		writeError(w, http.StatusNotFound, "no such shuttle")
		return
	}
	writeJSON(w, http.StatusOK, s.shuttleBody())
}

func (s *server) handleETA(w http.ResponseWriter, r *http.Request) {
	if s.gone(w, "eta") {
		return
	}
	sh := s.world.shuttle
	if chi.URLParam(r, "id") != sh.ID {
		writeError(w, http.StatusNotFound, "no such shuttle")
		return
	}

	students := []map[string]any{}
	for _, st := range s.world.students {
		if st.ShuttleID == sh.ID {
			students = append(students, map[string]any{
				"studentId": st.UserID,
				"duration":  "8 mins",
			})
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"shuttleLocation": map[string]any{"lat": sh.Lat, "lng": sh.Lng},
		"students":        students,
	})
}

func (s *server) handleContacts(w http.ResponseWriter, r *http.Request) {
	if s.gone(w, "messages") {
		return
	}
	out := make([]map[string]any, 0, len(s.world.users))
	for _, u := range s.world.users {
		out = append(out, map[string]any{
			"userId":   u.ID,
			"username": u.Username,
			"fullName": u.FullName,
			"role":     strings.TrimPrefix(u.Role, "ROLE_"),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.gone(w, "messages") {
		return
	}
	otherID := chi.URLParam(r, "id")
	out := []map[string]any{}
	for _, m := range s.world.messages {
		if m.SenderID != otherID && m.ReceiverID != otherID {
			continue
		}
		out = append(out, map[string]any{
			"sender":    map[string]any{"userId": m.SenderID, "username": s.usernameOf(m.SenderID)},
			"receiver":  map[string]any{"userId": m.ReceiverID, "username": s.usernameOf(m.ReceiverID)},
			"content":   m.Content,
			"timestamp": m.Timestamp,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) handleSend(w http.ResponseWriter, r *http.Request) {
	if s.gone(w, "messages") {
		return
	}
	var req struct {
		ReceiverID string `json:"receiverId"`
		Content    string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ReceiverID == "" || req.Content == "" {
		writeError(w, http.StatusBadRequest, "receiverId and content required")
		return
	}
	s.world.messages = append(s.world.messages, message{
		SenderID:   s.bearerSubject(r),
		ReceiverID: req.ReceiverID,
		Content:    req.Content,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

// bearerSubject pulls the sender id out of the Authorization header; the
// stub does not enforce auth, it just reads the claim when present.
func (s *server) bearerSubject(r *http.Request) string {
	raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if raw == "" {
		return ""
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return ""
	}
	if sub, ok := claims["sub"].(string); ok {
		return sub
	}
	return ""
}

func (s *server) usernameOf(id string) string {
	if u := s.world.userByID(id); u != nil {
		return u.Username
	}
	return ""
}

func (s *server) shuttleBody() map[string]any {
	sh := s.world.shuttle
	return map[string]any{
		"id":            sh.ID,
		"shuttleId":     sh.ID,
		"shuttleNumber": sh.Number,
		"licensePlate":  sh.LicensePlate,
		"plateNumber":   sh.LicensePlate,
		"maxCapacity":   sh.MaxCapacity,
		"occupancy":     sh.Occupancy,
		"status":        sh.Status,
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
