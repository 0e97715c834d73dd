package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

var ErrInvoiceNotFound = errors.New("invoice not found")

// BillUsage echoes the aggregated usage a bill was computed from.
type BillUsage struct {
	AvgStorageBytes int64   `json:"avg_storage_bytes"`
	AvgStorageMB    float64 `json:"avg_storage_mb"`
	AvgStorageGB    float64 `json:"avg_storage_gb"`
	TotalAPICalls   int64   `json:"total_api_calls"`
	DaysActive      int     `json:"days_active"`
	DaysInMonth     int     `json:"days_in_month"`
}

// BillBillable is usage after the free tier has been subtracted.
type BillBillable struct {
	StorageBytes int64   `json:"storage_bytes"`
	StorageGB    float64 `json:"storage_gb"`
	APICalls     int64   `json:"api_calls"`
}

// BillFreeTier itemizes what the free tier absorbed this month.
type BillFreeTier struct {
	FreeStorageBytes int64           `json:"free_storage_bytes"`
	FreeStorageGB    float64         `json:"free_storage_gb"`
	FreeAPICalls     int64           `json:"free_api_calls"`
	StorageSaved     decimal.Decimal `json:"storage_saved"`
	APISaved         decimal.Decimal `json:"api_saved"`
}

type BillRates struct {
	StoragePerGBDay decimal.Decimal `json:"storage_per_gb_day"`
	APIPerCall      decimal.Decimal `json:"api_per_call"`
}

type BillCosts struct {
	StorageCost decimal.Decimal `json:"storage_cost"`
	APICost     decimal.Decimal `json:"api_cost"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// Bill is a priced month. It is pure computation; nothing is persisted until
// GenerateInvoice freezes it.
type Bill struct {
	Year       int          `json:"year"`
	Month      int          `json:"month"`
	MonthLabel string       `json:"month_label"`
	Usage      BillUsage    `json:"usage"`
	Billable   BillBillable `json:"billable"`
	FreeTier   BillFreeTier `json:"free_tier"`
	Rates      BillRates    `json:"rates"`
	Costs      BillCosts    `json:"costs"`
}

// Forecast projects the month-end cost from the run rate so far.
type Forecast struct {
	StorageCost decimal.Decimal `json:"storage_cost"`
	APICost     decimal.Decimal `json:"api_cost"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// Estimate is the live "bill so far" view for the current month.
type Estimate struct {
	CurrentDate     string   `json:"current_date"`
	DayOfMonth      int      `json:"day_of_month"`
	DaysInMonth     int      `json:"days_in_month"`
	DaysRemaining   int      `json:"days_remaining"`
	ProgressPercent float64  `json:"progress_percent"`
	CurrentBill     Bill     `json:"current_bill"`
	Forecast        Forecast `json:"forecast"`
}

// GenerateResult distinguishes a fresh invoice from an idempotent replay.
type GenerateResult struct {
	Invoice        *Invoice `json:"invoice"`
	Bill           *Bill    `json:"bill_breakdown,omitempty"`
	AlreadyExisted bool     `json:"already_existed"`
}

// PayResult reports a payment transition. Paying a paid invoice is a no-op.
type PayResult struct {
	Invoice     *Invoice `json:"invoice"`
	AlreadyPaid bool     `json:"already_paid"`
}

type ListInvoicesResponse struct {
	TotalInvoices int             `json:"total_invoices"`
	TotalSpent    decimal.Decimal `json:"total_spent"`
	Invoices      []*Invoice      `json:"invoices"`
}

type Service interface {
	// CalculateBill prices one month without persisting anything.
	CalculateBill(ctx context.Context, userID snowflake.ID, year, month int) (Bill, error)
	CurrentEstimate(ctx context.Context, userID snowflake.ID) (Estimate, error)
	// GenerateInvoice freezes the month's bill. At most one invoice per
	// (user, month) ever exists; repeats return the stored one.
	GenerateInvoice(ctx context.Context, userID snowflake.ID, year, month int) (GenerateResult, error)
	ListInvoices(ctx context.Context, userID snowflake.ID) (ListInvoicesResponse, error)
	GetInvoice(ctx context.Context, userID, invoiceID snowflake.ID) (*Invoice, error)
	MarkPaid(ctx context.Context, userID, invoiceID snowflake.ID) (PayResult, error)
}
