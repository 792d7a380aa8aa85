package model

import "time"

// Profile is an identity directory entry. ProfilePicture is the stored
// reference image path as uploaded, possibly empty.
type Profile struct {
	ID             int64  `gorm:"primaryKey"`
	EmpID          string `gorm:"uniqueIndex;size:64;not null"`
	ProfilePicture string `gorm:"size:512"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
