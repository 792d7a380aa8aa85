// Package checkin runs the recognition-to-record pipeline for one submitted
// frame: decode, extract, match, then apply the attendance transition.
package checkin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log"
	"time"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"face-attendance-backend/internal/attendance"
	"face-attendance-backend/internal/embedder"
	"face-attendance-backend/internal/gallery"
	"face-attendance-backend/internal/model"
	"face-attendance-backend/internal/recognition"
	"face-attendance-backend/internal/store"
)

// Action names the transition a successful submission applied.
type Action string

const (
	ActionCheckIn  Action = "check_in"
	ActionCheckOut Action = "check_out"
)

// Records is the part of the store the pipeline needs.
type Records interface {
	FindUser(ctx context.Context, empID string) (*model.User, error)
	RecordRecognition(ctx context.Context, d store.Decider, ev attendance.Event) (attendance.Transition, error)
}

// Notifier is told about every applied transition. It must not block.
type Notifier interface {
	Notify(t attendance.Transition)
}

// Result describes a successful submission.
type Result struct {
	Action            Action
	EmpID             string
	EmployeeName      string
	Status            attendance.Status
	CheckIn           time.Time
	CheckOut          *time.Time
	TotalWorkingHours *float64
	Distance          float64
}

// Message is the human-readable outcome.
func (r *Result) Message() string {
	if r.Action == ActionCheckOut {
		return "Check-Out Successful!"
	}
	return "Check-In Successful!"
}

// Service wires the pipeline stages together.
type Service struct {
	gallery   gallery.Provider
	extractor recognition.Extractor
	matcher   *recognition.Matcher
	records   Records
	policy    attendance.Policy
	notifier  Notifier
	now       func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithNotifier registers a transition listener.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// NewService creates the pipeline.
func NewService(g gallery.Provider, ext recognition.Extractor, m *recognition.Matcher, r Records, p attendance.Policy, opts ...Option) *Service {
	s := &Service{
		gallery:   g,
		extractor: ext,
		matcher:   m,
		records:   r,
		policy:    p,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Mark processes one submitted image. Every failure is a *Error; on failure no
// record has been changed.
func (s *Service) Mark(ctx context.Context, img []byte) (*Result, error) {
	if len(img) == 0 {
		return nil, fail(KindInvalidImage, "Empty image upload!", nil)
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(img)); err != nil {
		return nil, fail(KindInvalidImage, "Invalid image format!", err)
	}

	g, err := s.gallery.Gallery(ctx)
	if err != nil {
		return nil, fail(KindUnavailable, "Known faces are unavailable, please try again.", err)
	}
	log.Printf("Loaded %d known faces for matching", len(g))

	faces, err := s.extractor.Extract(ctx, img)
	if err != nil {
		if errors.Is(err, embedder.ErrRejected) {
			return nil, fail(KindInvalidImage, "Image could not be processed!", err)
		}
		return nil, fail(KindUnavailable, "Face recognition is unavailable, please try again.", err)
	}
	if len(faces) == 0 {
		return nil, fail(KindRecognitionFailure, "No face detected. Please try again!", nil)
	}

	match, _ := s.matcher.MatchFirst(faces, g)
	if !match.Known() {
		return nil, fail(KindRecognitionFailure, "Face not recognized. Please try again!", nil)
	}
	log.Printf("Recognized employee %s (distance %.3f)", match.Identity, match.Distance)

	user, err := s.records.FindUser(ctx, match.Identity)
	if err != nil {
		return nil, s.classifyStoreError(err)
	}

	ev := attendance.Event{EmpID: user.EmpID, EmployeeName: user.Name, At: s.now()}
	tr, err := s.records.RecordRecognition(ctx, s.policy, ev)
	if err != nil {
		return nil, s.classifyStoreError(err)
	}

	if s.notifier != nil {
		s.notifier.Notify(tr)
	}

	res := &Result{
		EmpID:        user.EmpID,
		EmployeeName: user.Name,
		Distance:     match.Distance,
	}
	switch t := tr.(type) {
	case attendance.CheckIn:
		res.Action = ActionCheckIn
		res.Status = t.Open.Status
		res.CheckIn = t.Open.CheckIn
		log.Printf("Checked in %s at %s (%s)", user.EmpID, t.Open.CheckIn.Format(time.TimeOnly), t.Open.Status)
	case attendance.CheckOut:
		res.Action = ActionCheckOut
		res.Status = t.Closed.Status
		res.CheckIn = t.Closed.CheckIn
		out, hours := t.Closed.CheckOut, t.Closed.TotalWorkingHours
		res.CheckOut = &out
		res.TotalWorkingHours = &hours
		log.Printf("Checked out %s after %.2f h", user.EmpID, hours)
	}
	return res, nil
}

func (s *Service) classifyStoreError(err error) *Error {
	switch {
	case errors.Is(err, store.ErrUserNotFound):
		return fail(KindDataIntegrity, "Employee not found in the database!", err)
	case errors.Is(err, attendance.ErrCheckOutNotPermitted):
		reason := fmt.Sprintf("Check-Out is allowed only after %s!", attendance.FormatHour(s.policy.CheckOutStart))
		return fail(KindPolicyRejection, reason, err)
	case errors.Is(err, attendance.ErrAlreadyCheckedOut):
		return fail(KindPolicyRejection, "Already checked out for today!", err)
	case errors.Is(err, attendance.ErrCheckOutBeforeCheckIn):
		return fail(KindPolicyRejection, "Check-Out must be after Check-In!", err)
	case errors.Is(err, attendance.ErrRecordDayMismatch):
		return fail(KindDataIntegrity, "Attendance record is inconsistent!", err)
	default:
		return fail(KindUnavailable, "Attendance storage is unavailable, please try again.", err)
	}
}
