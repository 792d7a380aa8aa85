package attendance

import "time"

// Status is the punctuality verdict assigned at check-in.
type Status string

const (
	StatusEarly  Status = "Early"
	StatusOnTime Status = "On-Time"
	StatusLate   Status = "Late"
)

// Event is one recognition of a known identity at a point in time.
type Event struct {
	EmpID        string
	EmployeeName string
	At           time.Time
}

// OpenRecord is a record with a check-in and no check-out.
type OpenRecord struct {
	ID           string
	EmpID        string
	EmployeeName string
	WorkDate     string
	CheckIn      time.Time
	Status       Status
}

// ClosedRecord is terminal for its day.
type ClosedRecord struct {
	OpenRecord
	CheckOut          time.Time
	TotalWorkingHours float64
}

// DayRecord is the identity's record for one day: *OpenRecord or *ClosedRecord.
type DayRecord interface {
	day() string
}

func (r *OpenRecord) day() string   { return r.WorkDate }
func (r *ClosedRecord) day() string { return r.WorkDate }

// Transition is the outcome of a decision: either CheckIn or CheckOut.
type Transition interface {
	transition()
	Record() OpenRecord
}

// CheckIn creates a new open record.
type CheckIn struct {
	Open OpenRecord
}

// CheckOut closes an existing open record.
type CheckOut struct {
	Closed ClosedRecord
}

func (CheckIn) transition()  {}
func (CheckOut) transition() {}

func (c CheckIn) Record() OpenRecord  { return c.Open }
func (c CheckOut) Record() OpenRecord { return c.Closed.OpenRecord }
