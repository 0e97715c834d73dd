// Package domain contains persistence models for stored objects.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// StorageObject is the catalog row for one uploaded file. The bytes live in
// the object store; this row carries ownership and size for fast listing.
type StorageObject struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"-"`
	UserID    snowflake.ID `gorm:"not null;uniqueIndex:ux_object_user_name" json:"-"`
	Filename  string       `gorm:"type:varchar(255);not null;uniqueIndex:ux_object_user_name" json:"filename"`
	ObjectKey string       `gorm:"type:varchar(512);not null" json:"-"`
	SizeBytes int64        `gorm:"not null" json:"size_bytes"`
	CreatedAt time.Time    `gorm:"not null" json:"uploaded_at"`
	UpdatedAt time.Time    `gorm:"not null" json:"-"`
}

// TableName sets the database table name.
func (StorageObject) TableName() string { return "storage_objects" }
