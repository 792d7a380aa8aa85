// Package attendance implements the per-identity, per-day attendance state
// machine: No-Record -> Open -> Closed.
package attendance

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// DayLayout formats the calendar day that scopes record lookups.
const DayLayout = "2006-01-02"

var (
	// ErrCheckOutNotPermitted rejects a check-out before the check-out window opens.
	ErrCheckOutNotPermitted = errors.New("check-out not yet permitted")
	// ErrCheckOutBeforeCheckIn rejects a check-out that is not strictly after its check-in.
	ErrCheckOutBeforeCheckIn = errors.New("check-out must be after check-in")
	// ErrAlreadyCheckedOut rejects any event after the day's record was closed.
	ErrAlreadyCheckedOut = errors.New("already checked out for the day")
	// ErrRecordDayMismatch rejects deciding on a record from another day.
	ErrRecordDayMismatch = errors.New("record belongs to another day")
)

// Policy holds the time-of-day window, in fractional hours, evaluated in Location.
type Policy struct {
	CheckInStart  float64
	CheckInEnd    float64
	CheckOutStart float64
	Location      *time.Location
}

// DefaultPolicy returns the 9:00-9:30 check-in window with check-out from 17:00.
func DefaultPolicy() Policy {
	return Policy{
		CheckInStart:  9,
		CheckInEnd:    9.5,
		CheckOutStart: 17,
		Location:      time.Local,
	}
}

// NewPolicy builds and validates a policy. A nil location means time.Local.
func NewPolicy(checkInStart, checkInEnd, checkOutStart float64, loc *time.Location) (Policy, error) {
	if loc == nil {
		loc = time.Local
	}
	p := Policy{
		CheckInStart:  checkInStart,
		CheckInEnd:    checkInEnd,
		CheckOutStart: checkOutStart,
		Location:      loc,
	}
	return p, p.Validate()
}

// Validate checks that the window lies within one day and is ordered.
func (p Policy) Validate() error {
	inDay := func(h float64) bool { return h >= 0 && h <= 24 }
	if !inDay(p.CheckInStart) || !inDay(p.CheckInEnd) || !inDay(p.CheckOutStart) {
		return fmt.Errorf("policy hours must be within [0, 24]: %v/%v/%v", p.CheckInStart, p.CheckInEnd, p.CheckOutStart)
	}
	if p.CheckInStart > p.CheckInEnd {
		return fmt.Errorf("check-in start %v is after check-in end %v", p.CheckInStart, p.CheckInEnd)
	}
	return nil
}

func (p Policy) location() *time.Location {
	if p.Location == nil {
		return time.Local
	}
	return p.Location
}

// HourOfDay returns t's hour plus minutes as a fraction, in the policy timezone.
// Seconds are ignored, so 9:30:59 is still 9.5.
func (p Policy) HourOfDay(t time.Time) float64 {
	lt := t.In(p.location())
	return float64(lt.Hour()) + float64(lt.Minute())/60
}

// Day returns the calendar day of t in the policy timezone.
func (p Policy) Day(t time.Time) string {
	return t.In(p.location()).Format(DayLayout)
}

// StatusAt classifies a check-in time. Both window bounds are inclusive.
func (p Policy) StatusAt(t time.Time) Status {
	h := p.HourOfDay(t)
	switch {
	case h < p.CheckInStart:
		return StatusEarly
	case h <= p.CheckInEnd:
		return StatusOnTime
	default:
		return StatusLate
	}
}

// Decide picks the transition for ev given the identity's record for ev's
// day, or nil when there is none. A closed record is terminal for its day.
// It never mutates anything.
func (p Policy) Decide(current DayRecord, ev Event) (Transition, error) {
	switch rec := current.(type) {
	case nil:
		return p.checkIn(ev), nil
	case *OpenRecord:
		if rec == nil {
			return p.checkIn(ev), nil
		}
		return p.checkOut(rec, ev)
	case *ClosedRecord:
		if rec == nil {
			return p.checkIn(ev), nil
		}
		if rec.WorkDate != p.Day(ev.At) {
			return nil, fmt.Errorf("%w: record %s is for %s", ErrRecordDayMismatch, rec.ID, rec.WorkDate)
		}
		return nil, fmt.Errorf("%w: record %s closed at %s", ErrAlreadyCheckedOut, rec.ID, rec.CheckOut.Format(time.TimeOnly))
	default:
		return nil, fmt.Errorf("unexpected day record %T", current)
	}
}

func (p Policy) checkIn(ev Event) CheckIn {
	return CheckIn{Open: OpenRecord{
		EmpID:        ev.EmpID,
		EmployeeName: ev.EmployeeName,
		WorkDate:     p.Day(ev.At),
		CheckIn:      ev.At,
		Status:       p.StatusAt(ev.At),
	}}
}

func (p Policy) checkOut(open *OpenRecord, ev Event) (Transition, error) {
	if open.WorkDate != p.Day(ev.At) {
		return nil, fmt.Errorf("%w: record %s is for %s", ErrRecordDayMismatch, open.ID, open.WorkDate)
	}
	if p.HourOfDay(ev.At) < p.CheckOutStart {
		return nil, fmt.Errorf("%w: check-out is allowed only after %s", ErrCheckOutNotPermitted, FormatHour(p.CheckOutStart))
	}
	if !ev.At.After(open.CheckIn) {
		return nil, ErrCheckOutBeforeCheckIn
	}

	return CheckOut{Closed: ClosedRecord{
		OpenRecord:        *open,
		CheckOut:          ev.At,
		TotalWorkingHours: WorkingHours(open.CheckIn, ev.At),
	}}, nil
}

// WorkingHours returns out-in in hours rounded to two decimals.
func WorkingHours(in, out time.Time) float64 {
	return math.Round(out.Sub(in).Hours()*100) / 100
}

// FormatHour renders a fractional hour as HH:MM.
func FormatHour(h float64) string {
	minutes := int(math.Round(h * 60))
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
