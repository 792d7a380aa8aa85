package store

import (
	"time"

	"face-attendance-backend/internal/attendance"
)

// Decider is the attendance policy as seen by the store: it scopes the
// record lookup to a day and picks the transition.
type Decider interface {
	Day(t time.Time) string
	Decide(current attendance.DayRecord, ev attendance.Event) (attendance.Transition, error)
}

// AttendanceQuery filters ListAttendance. Zero fields do not filter.
type AttendanceQuery struct {
	EmpID string
	Day   string
	Limit int
}

// DefaultListLimit caps listings when the query sets no limit.
const DefaultListLimit = 100

// Subscription is a push subscription together with the employees it follows.
type Subscription struct {
	Endpoint  string
	P256DH    string
	Auth      string
	Employees []string
}
