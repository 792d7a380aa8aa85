package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"face-attendance-backend/internal/attendance"
)

// Attendance is one check-in/check-out row. A row is open while CheckOut is nil.
// WorkDate is the calendar day of CheckIn in the policy timezone and scopes the
// record lookup.
type Attendance struct {
	ID                uuid.UUID  `gorm:"type:char(36);primaryKey" json:"id"`
	EmpID             string     `gorm:"size:64;not null;index:idx_attendance_emp_day,priority:1" json:"emp_id"`
	WorkDate          string     `gorm:"size:10;not null;index:idx_attendance_emp_day,priority:2" json:"work_date"`
	EmployeeName      string     `gorm:"size:256;not null" json:"employee_name"`
	CheckIn           time.Time  `gorm:"not null" json:"check_in"`
	Status            string     `gorm:"size:16;not null" json:"status"`
	CheckOut          *time.Time `json:"check_out"`
	TotalWorkingHours *float64   `json:"total_working_hours"`
	CreatedAt         time.Time  `json:"-"`
	UpdatedAt         time.Time  `json:"-"`
}

// BeforeCreate assigns a new ID when none is set.
func (a *Attendance) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// IsOpen reports whether the row still awaits a check-out.
func (a *Attendance) IsOpen() bool {
	return a.CheckOut == nil
}

// Open converts the row to its open variant.
func (a *Attendance) Open() attendance.OpenRecord {
	return attendance.OpenRecord{
		ID:           a.ID.String(),
		EmpID:        a.EmpID,
		EmployeeName: a.EmployeeName,
		WorkDate:     a.WorkDate,
		CheckIn:      a.CheckIn,
		Status:       attendance.Status(a.Status),
	}
}

// Closed converts a row with a check-out to its closed variant.
func (a *Attendance) Closed() attendance.ClosedRecord {
	closed := attendance.ClosedRecord{OpenRecord: a.Open()}
	if a.CheckOut != nil {
		closed.CheckOut = *a.CheckOut
	}
	if a.TotalWorkingHours != nil {
		closed.TotalWorkingHours = *a.TotalWorkingHours
	}
	return closed
}

// NewOpenAttendance builds the row inserted by a check-in.
func NewOpenAttendance(r attendance.OpenRecord) Attendance {
	return Attendance{
		EmpID:        r.EmpID,
		WorkDate:     r.WorkDate,
		EmployeeName: r.EmployeeName,
		CheckIn:      r.CheckIn,
		Status:       string(r.Status),
	}
}
