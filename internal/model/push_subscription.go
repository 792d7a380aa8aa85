package model

import "time"

// PushSubscription holds a browser push subscription and the employees whose
// attendance events it follows.
type PushSubscription struct {
	Endpoint  string    `gorm:"primaryKey;size:512"`
	P256DH    string    `gorm:"column:p256dh;not null"`
	Auth      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`

	// Associations
	Employees []*User `gorm:"many2many:subscription_employee_mapping;"`
}
