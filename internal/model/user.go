package model

import "time"

// User is an employee in the user directory. EmpID is the identity shared with
// profiles and attendance records.
type User struct {
	ID           int64  `gorm:"primaryKey"`
	EmpID        string `gorm:"uniqueIndex;size:64;not null"`
	Name         string `gorm:"size:256;not null"`
	CompanyEmail string `gorm:"size:256"`
	Department   string `gorm:"size:128"`
	Role         string `gorm:"size:32"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
