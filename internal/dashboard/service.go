// Package dashboard builds the admin read models: platform overview, per-user
// rollups, and cross-user invoice listings. Everything here is aggregation
// over rows the domain services own; nothing is written.
package dashboard

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	billingdomain "github.com/billflow/billflow/internal/billing/domain"
	"github.com/billflow/billflow/internal/clock"
	usagedomain "github.com/billflow/billflow/internal/usage/domain"
	userdomain "github.com/billflow/billflow/internal/user/domain"
)

type OverviewUsers struct {
	Total        int64 `json:"total"`
	Admins       int64 `json:"admins"`
	NewThisMonth int64 `json:"new_this_month"`
	ActiveToday  int64 `json:"active_today"`
}

type OverviewStorage struct {
	TotalFiles int64   `json:"total_files"`
	TotalBytes int64   `json:"total_bytes"`
	TotalMB    float64 `json:"total_mb"`
	TotalGB    float64 `json:"total_gb"`
}

type OverviewBilling struct {
	TotalInvoices   int64           `json:"total_invoices"`
	PendingInvoices int64           `json:"pending_invoices"`
	PaidRevenue     decimal.Decimal `json:"paid_revenue"`
	TotalBilled     decimal.Decimal `json:"total_billed"`
}

type Overview struct {
	Users   OverviewUsers   `json:"users"`
	Storage OverviewStorage `json:"storage"`
	Billing OverviewBilling `json:"billing"`
}

// UserStats is the per-account rollup shown in the admin user table.
type UserStats struct {
	FileCount     int64           `json:"file_count"`
	StorageBytes  int64           `json:"storage_bytes"`
	StorageMB     float64         `json:"storage_mb"`
	APICallsMonth int64           `json:"api_calls_month"`
	InvoiceCount  int64           `json:"invoice_count"`
	TotalBilled   decimal.Decimal `json:"total_billed"`
}

type UserRow struct {
	*userdomain.User
	Stats UserStats `json:"stats"`
}

type ListUsersResponse struct {
	Total  int        `json:"total"`
	Search string     `json:"search"`
	Users  []*UserRow `json:"users"`
}

// PlatformDay is one gap-filled entry of the platform-wide usage window.
type PlatformDay struct {
	Date        string  `json:"date"`
	Label       string  `json:"label"`
	APICalls    int64   `json:"api_calls"`
	StorageMB   float64 `json:"storage_mb"`
	ActiveUsers int64   `json:"active_users"`
}

type TopUser struct {
	Username  string  `json:"username"`
	StorageMB float64 `json:"storage_mb"`
}

type PlatformStats struct {
	DailyHistory      []PlatformDay `json:"daily_history"`
	TopUsersByStorage []TopUser     `json:"top_users_by_storage"`
}

type AdminInvoice struct {
	*billingdomain.Invoice
	Username string `json:"username"`
}

type InvoiceFilter struct {
	Status string
	UserID snowflake.ID
	Month  string
}

type AllInvoicesResponse struct {
	TotalInvoices int             `json:"total_invoices"`
	TotalRevenue  decimal.Decimal `json:"total_revenue"`
	PaidRevenue   decimal.Decimal `json:"paid_revenue"`
	PendingAmount decimal.Decimal `json:"pending_amount"`
	Invoices      []*AdminInvoice `json:"invoices"`
}

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
}

func NewService(p ServiceParam) *Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("dashboard.service"),
		clock: p.Clock,
	}
}

func (s *Service) Overview(ctx context.Context) (Overview, error) {
	db := s.db.WithContext(ctx)
	now := s.clock.Now()
	today := now.Format(usagedomain.DayLayout)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	var overview Overview

	if err := db.Model(&userdomain.User{}).Where("role = ?", userdomain.RoleUser).
		Count(&overview.Users.Total).Error; err != nil {
		return Overview{}, err
	}
	if err := db.Model(&userdomain.User{}).Where("role = ?", userdomain.RoleAdmin).
		Count(&overview.Users.Admins).Error; err != nil {
		return Overview{}, err
	}
	if err := db.Model(&userdomain.User{}).Where("created_at >= ?", monthStart).
		Count(&overview.Users.NewThisMonth).Error; err != nil {
		return Overview{}, err
	}
	if err := db.Model(&usagedomain.UsageRecord{}).Where("day = ?", today).
		Distinct("user_id").Count(&overview.Users.ActiveToday).Error; err != nil {
		return Overview{}, err
	}

	var storage struct {
		TotalFiles int64
		TotalBytes int64
	}
	if err := db.Raw(
		`SELECT COUNT(id) AS total_files, COALESCE(SUM(size_bytes), 0) AS total_bytes FROM storage_objects`,
	).Scan(&storage).Error; err != nil {
		return Overview{}, err
	}
	overview.Storage = OverviewStorage{
		TotalFiles: storage.TotalFiles,
		TotalBytes: storage.TotalBytes,
		TotalMB:    roundTo(float64(storage.TotalBytes)/(1024*1024), 2),
		TotalGB:    roundTo(float64(storage.TotalBytes)/(1<<30), 4),
	}

	var billing struct {
		TotalInvoices   int64
		PendingInvoices int64
		PaidRevenue     decimal.Decimal
		TotalBilled     decimal.Decimal
	}
	if err := db.Raw(
		`SELECT COUNT(id)                                                        AS total_invoices,
		        COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0)         AS pending_invoices,
		        COALESCE(SUM(CASE WHEN status = ? THEN total_amount ELSE 0 END), 0) AS paid_revenue,
		        COALESCE(SUM(total_amount), 0)                                   AS total_billed
		 FROM invoices`,
		billingdomain.StatusGenerated, billingdomain.StatusPaid,
	).Scan(&billing).Error; err != nil {
		return Overview{}, err
	}
	overview.Billing = OverviewBilling{
		TotalInvoices:   billing.TotalInvoices,
		PendingInvoices: billing.PendingInvoices,
		PaidRevenue:     billing.PaidRevenue.Round(4),
		TotalBilled:     billing.TotalBilled.Round(4),
	}
	return overview, nil
}

func (s *Service) ListUsers(ctx context.Context, search, roleFilter, sortBy string) (ListUsersResponse, error) {
	db := s.db.WithContext(ctx)

	query := db.Model(&userdomain.User{})
	if search != "" {
		pattern := "%" + search + "%"
		query = query.Where("lower(username) LIKE lower(?) OR lower(email) LIKE lower(?)", pattern, pattern)
	}
	if roleFilter != "" && roleFilter != "all" {
		query = query.Where("role = ?", roleFilter)
	}
	switch sortBy {
	case "username":
		query = query.Order("username asc")
	default:
		query = query.Order("created_at desc")
	}

	var users []*userdomain.User
	if err := query.Find(&users).Error; err != nil {
		return ListUsersResponse{}, err
	}

	monthStart := s.clock.Now()
	monthStart = time.Date(monthStart.Year(), monthStart.Month(), 1, 0, 0, 0, 0, time.UTC)

	rows := make([]*UserRow, 0, len(users))
	for _, user := range users {
		stats, err := s.userStats(ctx, user.ID, monthStart)
		if err != nil {
			return ListUsersResponse{}, err
		}
		rows = append(rows, &UserRow{User: user, Stats: stats})
	}
	return ListUsersResponse{Total: len(rows), Search: search, Users: rows}, nil
}

func (s *Service) userStats(ctx context.Context, userID snowflake.ID, monthStart time.Time) (UserStats, error) {
	db := s.db.WithContext(ctx)

	var files struct {
		FileCount    int64
		StorageBytes int64
	}
	if err := db.Raw(
		`SELECT COUNT(id) AS file_count, COALESCE(SUM(size_bytes), 0) AS storage_bytes
		 FROM storage_objects WHERE user_id = ?`,
		userID,
	).Scan(&files).Error; err != nil {
		return UserStats{}, err
	}

	var callsMonth int64
	if err := db.Raw(
		`SELECT COALESCE(SUM(api_calls), 0) FROM usage_records WHERE user_id = ? AND day >= ?`,
		userID, monthStart.Format(usagedomain.DayLayout),
	).Scan(&callsMonth).Error; err != nil {
		return UserStats{}, err
	}

	var invoices struct {
		InvoiceCount int64
		TotalBilled  decimal.Decimal
	}
	if err := db.Raw(
		`SELECT COUNT(id) AS invoice_count, COALESCE(SUM(total_amount), 0) AS total_billed
		 FROM invoices WHERE user_id = ?`,
		userID,
	).Scan(&invoices).Error; err != nil {
		return UserStats{}, err
	}

	return UserStats{
		FileCount:     files.FileCount,
		StorageBytes:  files.StorageBytes,
		StorageMB:     roundTo(float64(files.StorageBytes)/(1024*1024), 2),
		APICallsMonth: callsMonth,
		InvoiceCount:  invoices.InvoiceCount,
		TotalBilled:   invoices.TotalBilled.Round(4),
	}, nil
}

// PlatformStats aggregates the trailing usage window across all users,
// gap-filled so charts render every day.
func (s *Service) PlatformStats(ctx context.Context, days int) (PlatformStats, error) {
	if days < 1 || days > 365 {
		return PlatformStats{}, usagedomain.ErrInvalidDays
	}
	db := s.db.WithContext(ctx)

	end := s.clock.Now()
	start := end.AddDate(0, 0, -(days - 1))

	var daily []struct {
		Day          string
		TotalAPI     int64
		TotalStorage int64
		ActiveUsers  int64
	}
	if err := db.Raw(
		`SELECT day,
		        COALESCE(SUM(api_calls), 0)        AS total_api,
		        COALESCE(SUM(storage_used), 0)     AS total_storage,
		        COUNT(DISTINCT user_id)            AS active_users
		 FROM usage_records
		 WHERE day >= ? AND day <= ?
		 GROUP BY day`,
		start.Format(usagedomain.DayLayout), end.Format(usagedomain.DayLayout),
	).Scan(&daily).Error; err != nil {
		return PlatformStats{}, err
	}

	type dayAgg struct {
		api     int64
		storage int64
		active  int64
	}
	byDay := make(map[string]dayAgg, len(daily))
	for _, row := range daily {
		byDay[row.Day] = dayAgg{api: row.TotalAPI, storage: row.TotalStorage, active: row.ActiveUsers}
	}

	history := make([]PlatformDay, 0, days)
	for current := start; !current.After(end); current = current.AddDate(0, 0, 1) {
		key := current.Format(usagedomain.DayLayout)
		entry := PlatformDay{Date: key, Label: current.Format("02 Jan")}
		if agg, ok := byDay[key]; ok {
			entry.APICalls = agg.api
			entry.StorageMB = roundTo(float64(agg.storage)/(1024*1024), 2)
			entry.ActiveUsers = agg.active
		}
		history = append(history, entry)
	}

	var top []struct {
		Username   string
		TotalBytes int64
	}
	if err := db.Raw(
		`SELECT u.username AS username, COALESCE(SUM(o.size_bytes), 0) AS total_bytes
		 FROM users u
		 JOIN storage_objects o ON o.user_id = u.id
		 GROUP BY u.id, u.username
		 ORDER BY total_bytes DESC
		 LIMIT 5`,
	).Scan(&top).Error; err != nil {
		return PlatformStats{}, err
	}

	topUsers := make([]TopUser, 0, len(top))
	for _, row := range top {
		topUsers = append(topUsers, TopUser{
			Username:  row.Username,
			StorageMB: roundTo(float64(row.TotalBytes)/(1024*1024), 2),
		})
	}
	return PlatformStats{DailyHistory: history, TopUsersByStorage: topUsers}, nil
}

func (s *Service) AllInvoices(ctx context.Context, filter InvoiceFilter) (AllInvoicesResponse, error) {
	db := s.db.WithContext(ctx)

	query := db.Model(&billingdomain.Invoice{})
	if filter.Status != "" && filter.Status != "all" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.UserID != 0 {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.Month != "" {
		query = query.Where("month = ?", filter.Month)
	}

	var invoices []*billingdomain.Invoice
	if err := query.Order("generated_at desc").Find(&invoices).Error; err != nil {
		return AllInvoicesResponse{}, err
	}

	usernames := make(map[snowflake.ID]string)
	totalRevenue, paidRevenue := decimal.Zero, decimal.Zero
	result := make([]*AdminInvoice, 0, len(invoices))
	for _, invoice := range invoices {
		username, ok := usernames[invoice.UserID]
		if !ok {
			var user userdomain.User
			err := db.Where("id = ?", invoice.UserID).First(&user).Error
			switch {
			case err == nil:
				username = user.Username
			case errors.Is(err, gorm.ErrRecordNotFound):
				username = "deleted"
			default:
				return AllInvoicesResponse{}, err
			}
			usernames[invoice.UserID] = username
		}

		totalRevenue = totalRevenue.Add(invoice.TotalAmount)
		if invoice.Status == billingdomain.StatusPaid {
			paidRevenue = paidRevenue.Add(invoice.TotalAmount)
		}
		result = append(result, &AdminInvoice{Invoice: invoice, Username: username})
	}

	return AllInvoicesResponse{
		TotalInvoices: len(result),
		TotalRevenue:  totalRevenue.Round(4),
		PaidRevenue:   paidRevenue.Round(4),
		PendingAmount: totalRevenue.Sub(paidRevenue).Round(4),
		Invoices:      result,
	}, nil
}

// PlatformTotals feeds the hourly snapshot gauges.
func (s *Service) PlatformTotals(ctx context.Context) (users int64, storageBytes int64, callsToday int64, err error) {
	db := s.db.WithContext(ctx)

	if err = db.Model(&userdomain.User{}).Count(&users).Error; err != nil {
		return 0, 0, 0, err
	}
	if err = db.Raw(`SELECT COALESCE(SUM(size_bytes), 0) FROM storage_objects`).Scan(&storageBytes).Error; err != nil {
		return 0, 0, 0, err
	}
	today := s.clock.Now().Format(usagedomain.DayLayout)
	if err = db.Raw(`SELECT COALESCE(SUM(api_calls), 0) FROM usage_records WHERE day = ?`, today).Scan(&callsToday).Error; err != nil {
		return 0, 0, 0, err
	}
	return users, storageBytes, callsToday, nil
}

func roundTo(value float64, places int) float64 {
	factor := math.Pow(10, float64(places))
	return math.Round(value*factor) / factor
}
