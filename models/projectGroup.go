package models

import "time"

// ProjectGroup is the parent grouping for portfolio properties. Groups are
// managed in the remote projects table; the linker attaches properties to
// them in a second pass after both sides exist locally.
type ProjectGroup struct {
	ID             uint    `gorm:"primary_key" json:"id"`
	Name           string  `gorm:"size:255;not null" json:"name"`
	RemoteRecordId *string `gorm:"uniqueIndex;size:64" json:"remote_record_id"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
