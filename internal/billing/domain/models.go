// Package domain contains persistence models for invoicing.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

const (
	StatusGenerated = "generated"
	StatusPaid      = "paid"
)

// Invoice freezes one month's bill. The rates in effect at generation time
// are stored on the row so historical invoices survive price changes.
type Invoice struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	UserID      snowflake.ID `gorm:"not null;uniqueIndex:ux_invoice_user_month" json:"-"`
	Month       string       `gorm:"type:varchar(7);not null;uniqueIndex:ux_invoice_user_month" json:"month"`
	Year        int          `gorm:"not null" json:"year"`
	MonthNumber int          `gorm:"not null" json:"month_number"`

	AvgStorageBytes int64 `gorm:"not null;default:0" json:"avg_storage_bytes"`
	TotalAPICalls   int64 `gorm:"not null;default:0" json:"total_api_calls"`
	DaysActive      int   `gorm:"not null;default:0" json:"days_active"`

	StorageCost decimal.Decimal `gorm:"type:numeric(20,4);not null" json:"storage_cost"`
	APICost     decimal.Decimal `gorm:"type:numeric(20,4);not null" json:"api_cost"`
	TotalAmount decimal.Decimal `gorm:"type:numeric(20,4);not null" json:"total_amount"`

	RateStoragePerGBDay decimal.Decimal `gorm:"type:numeric(20,6);not null" json:"rate_storage_per_gb_day"`
	RateAPIPerCall      decimal.Decimal `gorm:"type:numeric(20,6);not null" json:"rate_api_per_call"`

	Status      string    `gorm:"type:varchar(20);not null;default:'generated'" json:"status"`
	GeneratedAt time.Time `gorm:"not null" json:"generated_at"`
	UpdatedAt   time.Time `gorm:"not null" json:"-"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }
