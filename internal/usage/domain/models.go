// Package domain contains persistence models for the usage ledger.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// DayLayout is the canonical key for one calendar day. ISO dates compare
// correctly as strings, which keeps range scans portable across dialects.
const DayLayout = "2006-01-02"

// UsageRecord stores one user's metered activity for one calendar day.
// StorageUsed is an absolute snapshot of total bytes owned, not a delta;
// APICalls is a monotonically non-decreasing counter within the day.
type UsageRecord struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"-"`
	UserID      snowflake.ID `gorm:"not null;uniqueIndex:ux_usage_user_day" json:"-"`
	Day         string       `gorm:"type:varchar(10);not null;uniqueIndex:ux_usage_user_day" json:"date"`
	StorageUsed int64        `gorm:"not null;default:0" json:"storage_used_bytes"`
	APICalls    int64        `gorm:"not null;default:0" json:"api_calls"`
	CreatedAt   time.Time    `gorm:"not null" json:"-"`
	UpdatedAt   time.Time    `gorm:"not null" json:"-"`
}

// TableName sets the database table name.
func (UsageRecord) TableName() string { return "usage_records" }
