package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"face-attendance-backend/internal/attendance"
	"face-attendance-backend/internal/gallery"
	"face-attendance-backend/internal/model"
)

var (
	// ErrUserNotFound means the identity has no user directory entry.
	ErrUserNotFound = errors.New("user not found")
	// ErrConflict means a concurrent writer changed the open record first.
	ErrConflict = errors.New("attendance record changed concurrently")
	// ErrSubscriptionNotFound means no subscription exists for the endpoint.
	ErrSubscriptionNotFound = errors.New("subscription not found")
)

// Store defines the interface for all database operations.
type Store interface {
	DB() *gorm.DB

	FindUser(ctx context.Context, empID string) (*model.User, error)
	References(ctx context.Context) ([]gallery.Reference, error)

	// RecordRecognition reads the identity's record for the event's day,
	// lets d decide, and applies the transition as one atomic step.
	RecordRecognition(ctx context.Context, d Decider, ev attendance.Event) (attendance.Transition, error)
	ListAttendance(ctx context.Context, q AttendanceQuery) ([]model.Attendance, error)

	SaveSubscription(ctx context.Context, sub Subscription) error
	GetSubscription(ctx context.Context, endpoint string) (*Subscription, error)
	DeleteSubscription(ctx context.Context, endpoint string) error
	SubscriptionsFor(ctx context.Context, empID string) ([]model.PushSubscription, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db    *gorm.DB
	locks *keyedLock
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db, locks: newKeyedLock()}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

func (s *gormStore) FindUser(ctx context.Context, empID string) (*model.User, error) {
	var user model.User
	err := s.db.WithContext(ctx).Where("emp_id = ?", empID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, empID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user %s: %w", empID, err)
	}
	return &user, nil
}

// References implements gallery.Directory over the profiles table.
func (s *gormStore) References(ctx context.Context) ([]gallery.Reference, error) {
	var profiles []model.Profile
	if err := s.db.WithContext(ctx).Order("id").Find(&profiles).Error; err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}

	refs := make([]gallery.Reference, len(profiles))
	for i, p := range profiles {
		refs[i] = gallery.Reference{Identity: p.EmpID, Picture: p.ProfilePicture}
	}
	return refs, nil
}

func (s *gormStore) RecordRecognition(ctx context.Context, d Decider, ev attendance.Event) (attendance.Transition, error) {
	unlock, err := s.locks.lock(ctx, ev.EmpID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var result attendance.Transition
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Other processes serialize on the user row; sqlite has no row locks.
		if tx.Dialector.Name() != "sqlite" {
			var user model.User
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("emp_id = ?", ev.EmpID).First(&user).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("%w: %s", ErrUserNotFound, ev.EmpID)
				}
				return fmt.Errorf("failed to lock user %s: %w", ev.EmpID, err)
			}
		}

		current, err := findDayRecord(tx, ev.EmpID, d.Day(ev.At))
		if err != nil {
			return err
		}

		t, err := d.Decide(current, ev)
		if err != nil {
			return err
		}

		switch t := t.(type) {
		case attendance.CheckIn:
			row := model.NewOpenAttendance(t.Open)
			if err := tx.Create(&row).Error; err != nil {
				if isDuplicate(err) {
					return fmt.Errorf("%w: open record for %s already exists", ErrConflict, ev.EmpID)
				}
				return fmt.Errorf("failed to create attendance for %s: %w", ev.EmpID, err)
			}
			t.Open.ID = row.ID.String()
			result = t
		case attendance.CheckOut:
			res := tx.Model(&model.Attendance{}).
				Where("id = ? AND check_out IS NULL", t.Closed.ID).
				Updates(map[string]any{
					"check_out":           t.Closed.CheckOut,
					"total_working_hours": t.Closed.TotalWorkingHours,
				})
			if res.Error != nil {
				return fmt.Errorf("failed to close attendance %s: %w", t.Closed.ID, res.Error)
			}
			if res.RowsAffected != 1 {
				return fmt.Errorf("%w: record %s is no longer open", ErrConflict, t.Closed.ID)
			}
			result = t
		default:
			return fmt.Errorf("unexpected transition %T", t)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// findDayRecord returns the identity's record for day, or nil. An open record
// wins over closed ones.
func findDayRecord(tx *gorm.DB, empID, day string) (attendance.DayRecord, error) {
	var rows []model.Attendance
	if err := tx.Where("emp_id = ? AND work_date = ?", empID, day).
		Order("CASE WHEN check_out IS NULL THEN 0 ELSE 1 END").Order("check_in DESC").
		Limit(1).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch attendance for %s on %s: %w", empID, day, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	if rows[0].IsOpen() {
		open := rows[0].Open()
		return &open, nil
	}
	closed := rows[0].Closed()
	return &closed, nil
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (s *gormStore) ListAttendance(ctx context.Context, q AttendanceQuery) ([]model.Attendance, error) {
	limit := q.Limit
	if limit <= 0 || limit > DefaultListLimit {
		limit = DefaultListLimit
	}

	tx := s.db.WithContext(ctx).Model(&model.Attendance{})
	if q.EmpID != "" {
		tx = tx.Where("emp_id = ?", q.EmpID)
	}
	if q.Day != "" {
		tx = tx.Where("work_date = ?", q.Day)
	}

	var rows []model.Attendance
	if err := tx.Order("check_in DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list attendance: %w", err)
	}
	return rows, nil
}

// SaveSubscription creates or replaces a subscription and its followed employees.
// Unknown employee IDs are ignored.
func (s *gormStore) SaveSubscription(ctx context.Context, sub Subscription) error {
	row := model.PushSubscription{
		Endpoint: sub.Endpoint,
		P256DH:   sub.P256DH,
		Auth:     sub.Auth,
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "endpoint"}},
			DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth"}),
		}).Create(&row).Error; err != nil {
			return err
		}

		users := []*model.User{}
		if len(sub.Employees) > 0 {
			if err := tx.Where("emp_id IN ?", sub.Employees).Find(&users).Error; err != nil {
				return err
			}
		}

		return tx.Model(&row).Association("Employees").Replace(users)
	})
}

func (s *gormStore) GetSubscription(ctx context.Context, endpoint string) (*Subscription, error) {
	var row model.PushSubscription
	err := s.db.WithContext(ctx).Preload("Employees").First(&row, "endpoint = ?", endpoint).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, err
	}

	sub := &Subscription{
		Endpoint:  row.Endpoint,
		P256DH:    row.P256DH,
		Auth:      row.Auth,
		Employees: make([]string, len(row.Employees)),
	}
	for i, u := range row.Employees {
		sub.Employees[i] = u.EmpID
	}
	return sub, nil
}

func (s *gormStore) DeleteSubscription(ctx context.Context, endpoint string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := model.PushSubscription{Endpoint: endpoint}
		if err := tx.Model(&row).Association("Employees").Clear(); err != nil {
			return err
		}
		return tx.Delete(&row).Error
	})
}

// SubscriptionsFor returns the subscriptions following empID.
func (s *gormStore) SubscriptionsFor(ctx context.Context, empID string) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	err := s.db.WithContext(ctx).
		Joins("JOIN subscription_employee_mapping m ON m.push_subscription_endpoint = push_subscriptions.endpoint").
		Joins("JOIN users u ON u.id = m.user_id").
		Where("u.emp_id = ?", empID).
		Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query subscriptions for %s: %w", empID, err)
	}
	return subs, nil
}
