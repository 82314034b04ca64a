package main

import (
	"github.com/google/uuid"
)

// world is the in-memory data set the stub serves. Shapes intentionally
// mirror the production backend's quirks: numeric-looking ids as strings,
// ROLE_ prefixes, shuttle fields named licensePlate/maxCapacity.
type world struct {
	users    []user
	students []student
	shuttle  shuttle
	driver   driver
	messages []message
}

type user struct {
	ID        string
	Username  string
	Password  string
	Role      string // raw, may carry ROLE_ prefix or be empty
	FullName  string
	ShuttleID string // set for students riding the shuttle
}

type student struct {
	ID        string // domain student id, deliberately != user id
	UserID    string
	FullName  string
	ParentID  string
	ShuttleID string
}

type shuttle struct {
	ID           string
	Number       string
	LicensePlate string
	MaxCapacity  int
	Occupancy    int
	Status       string
	Lat, Lng     float64
}

type driver struct {
	UserID       string
	FullName     string
	ContactPhone string
	ShuttleID    string
}

type message struct {
	SenderID   string
	ReceiverID string
	Content    string
	Timestamp  string
}

func defaultWorld() *world {
	shuttleID := uuid.NewString()
	studentUID := uuid.NewString()
	parentUID := uuid.NewString()
	driverUID := uuid.NewString()
	operatorUID := uuid.NewString()
	studentDomainID := uuid.NewString()

	return &world{
		shuttle: shuttle{
			ID:           shuttleID,
			Number:       "7",
			LicensePlate: "ABC-123",
			MaxCapacity:  12,
			Occupancy:    5,
			Status:       "ON_ROUTE",
			Lat:          13.6218,
			Lng:          123.1948,
		},
		driver: driver{
			UserID:       driverUID,
			FullName:     "Ben Reyes",
			ContactPhone: "09170000000",
			ShuttleID:    shuttleID,
		},
		users: []user{
			{ID: studentUID, Username: "maria", Password: "password", Role: "ROLE_STUDENT", FullName: "Maria Cruz", ShuttleID: shuttleID},
			{ID: parentUID, Username: "vicsotto", Password: "password", Role: "", FullName: "Vic Sotto"},
			{ID: driverUID, Username: "j_driver99", Password: "password", Role: "", FullName: "Ben Reyes"},
			{ID: operatorUID, Username: "ops_admin", Password: "password", Role: "OPERATOR", FullName: "Ana Ops"},
		},
		students: []student{
			{ID: studentDomainID, UserID: studentUID, FullName: "Maria Cruz", ParentID: parentUID, ShuttleID: shuttleID},
		},
		messages: []message{
			{SenderID: parentUID, ReceiverID: studentUID, Content: "On your way home?", Timestamp: "2026-08-30T07:30:00Z"},
		},
	}
}

func (w *world) userByName(name string) *user {
	for i := range w.users {
		if w.users[i].Username == name {
			return &w.users[i]
		}
	}
	return nil
}

func (w *world) userByID(id string) *user {
	for i := range w.users {
		if w.users[i].ID == id {
			return &w.users[i]
		}
	}
	return nil
}

func (w *world) studentByAnyID(id string) *student {
	for i := range w.students {
		if w.students[i].ID == id || w.students[i].UserID == id {
			return &w.students[i]
		}
	}
	return nil
}
