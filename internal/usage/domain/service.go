package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrInvalidDays    = errors.New("days must be between 1 and 365")
	ErrInvalidMonth   = errors.New("month must be between 1 and 12")
	ErrInvalidYear    = errors.New("year out of range")
	ErrInvalidStorage = errors.New("storage total must be non-negative")
)

// TodayUsage is the live snapshot returned for the current day.
type TodayUsage struct {
	Date             string  `json:"date"`
	StorageUsedBytes int64   `json:"storage_used_bytes"`
	StorageUsedMB    float64 `json:"storage_used_mb"`
	APICallsToday    int64   `json:"api_calls_today"`
	TotalFiles       int64   `json:"total_files"`
}

// DayUsage is one gap-filled entry of the usage history.
type DayUsage struct {
	Date             string  `json:"date"`
	StorageUsedBytes int64   `json:"storage_used_bytes"`
	StorageUsedMB    float64 `json:"storage_used_mb"`
	APICalls         int64   `json:"api_calls"`
}

// MonthlySummary aggregates one calendar month. A month with no records is a
// valid, all-zero summary — never an error.
type MonthlySummary struct {
	Year             int     `json:"year"`
	Month            int     `json:"month"`
	MonthLabel       string  `json:"month_label"`
	AvgStorageBytes  int64   `json:"avg_storage_bytes"`
	AvgStorageMB     float64 `json:"avg_storage_mb"`
	PeakStorageBytes int64   `json:"peak_storage_bytes"`
	PeakStorageMB    float64 `json:"peak_storage_mb"`
	TotalAPICalls    int64   `json:"total_api_calls"`
	DaysActive       int     `json:"days_active"`
	DaysInMonth      int     `json:"days_in_month"`
}

// AllTimeStats covers the whole account lifetime, for profile/admin display.
type AllTimeStats struct {
	TotalAPICallsEver int64   `json:"total_api_calls_ever"`
	TotalDaysLogged   int64   `json:"total_days_logged"`
	PeakStorageBytes  int64   `json:"peak_storage_bytes"`
	PeakStorageMB     float64 `json:"peak_storage_mb"`
	TotalFilesStored  int64   `json:"total_files_stored"`
}

type Service interface {
	// RecordAPICall increments today's counter by one, creating the row if
	// absent. Request-level retries may over-count; the ledger is a counter,
	// not an event log.
	RecordAPICall(ctx context.Context, userID snowflake.ID) error
	// RecordStorageSnapshot overwrites today's storage total with an absolute
	// value, so retries are idempotent.
	RecordStorageSnapshot(ctx context.Context, userID snowflake.ID, totalBytes int64) error
	TodayUsage(ctx context.Context, userID snowflake.ID, username string) (TodayUsage, error)
	UsageHistory(ctx context.Context, userID snowflake.ID, days int) ([]DayUsage, error)
	MonthlySummary(ctx context.Context, userID snowflake.ID, year, month int) (MonthlySummary, error)
	CurrentMonthSummary(ctx context.Context, userID snowflake.ID) (MonthlySummary, error)
	AllTimeStats(ctx context.Context, userID snowflake.ID) (AllTimeStats, error)
}
