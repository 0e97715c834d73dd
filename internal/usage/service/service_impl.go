package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/billflow/billflow/internal/clock"
	objectdomain "github.com/billflow/billflow/internal/object/domain"
	"github.com/billflow/billflow/internal/objectstore"
	usagedomain "github.com/billflow/billflow/internal/usage/domain"
	"github.com/billflow/billflow/pkg/repository"
)

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Store objectstore.Store `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	store objectstore.Store

	records repository.Repository[usagedomain.UsageRecord]
	objects repository.Repository[objectdomain.StorageObject]
}

func NewService(p ServiceParam) usagedomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("usage.service"),
		genID: p.GenID,
		clock: p.Clock,
		store: p.Store,

		records: repository.ProvideStore[usagedomain.UsageRecord](p.DB),
		objects: repository.ProvideStore[objectdomain.StorageObject](p.DB),
	}
}

func (s *Service) RecordAPICall(ctx context.Context, userID snowflake.ID) error {
	now := s.clock.Now()
	record := &usagedomain.UsageRecord{
		ID:        s.genID.Generate(),
		UserID:    userID,
		Day:       now.Format(usagedomain.DayLayout),
		APICalls:  1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "day"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"api_calls":  gorm.Expr("api_calls + 1"),
			"updated_at": now,
		}),
	}).Create(record).Error
}

func (s *Service) RecordStorageSnapshot(ctx context.Context, userID snowflake.ID, totalBytes int64) error {
	if totalBytes < 0 {
		return usagedomain.ErrInvalidStorage
	}
	now := s.clock.Now()
	record := &usagedomain.UsageRecord{
		ID:          s.genID.Generate(),
		UserID:      userID,
		Day:         now.Format(usagedomain.DayLayout),
		StorageUsed: totalBytes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "day"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"storage_used": totalBytes,
			"updated_at":   now,
		}),
	}).Create(record).Error
}

func (s *Service) TodayUsage(ctx context.Context, userID snowflake.ID, username string) (usagedomain.TodayUsage, error) {
	today := s.clock.Now().Format(usagedomain.DayLayout)

	record, err := s.records.FindOne(ctx, &usagedomain.UsageRecord{UserID: userID, Day: today})
	if err != nil {
		return usagedomain.TodayUsage{}, err
	}

	usage := usagedomain.TodayUsage{Date: today}
	if record != nil {
		usage.StorageUsedBytes = record.StorageUsed
		usage.APICallsToday = record.APICalls
	} else if s.store != nil {
		// No snapshot yet today: read the live total so the dashboard never
		// shows stale zeros after a quiet day.
		total, storeErr := s.store.TotalBytes(ctx, username)
		if storeErr != nil {
			s.log.Warn("live storage lookup failed", zap.String("username", username), zap.Error(storeErr))
		} else {
			usage.StorageUsedBytes = total
		}
	}
	usage.StorageUsedMB = toMB(usage.StorageUsedBytes)

	files, err := s.objects.Count(ctx, &objectdomain.StorageObject{UserID: userID})
	if err != nil {
		return usagedomain.TodayUsage{}, err
	}
	usage.TotalFiles = files

	return usage, nil
}

func (s *Service) UsageHistory(ctx context.Context, userID snowflake.ID, days int) ([]usagedomain.DayUsage, error) {
	if days < 1 || days > 365 {
		return nil, usagedomain.ErrInvalidDays
	}

	end := s.clock.Now()
	start := end.AddDate(0, 0, -(days - 1))

	rows, err := s.recordsInRange(ctx, userID, start.Format(usagedomain.DayLayout), end.Format(usagedomain.DayLayout))
	if err != nil {
		return nil, err
	}

	byDay := make(map[string]*usagedomain.UsageRecord, len(rows))
	for _, row := range rows {
		byDay[row.Day] = row
	}

	history := make([]usagedomain.DayUsage, 0, days)
	for current := start; !current.After(end); current = current.AddDate(0, 0, 1) {
		key := current.Format(usagedomain.DayLayout)
		entry := usagedomain.DayUsage{Date: key}
		if row, ok := byDay[key]; ok {
			entry.StorageUsedBytes = row.StorageUsed
			entry.StorageUsedMB = toMB(row.StorageUsed)
			entry.APICalls = row.APICalls
		}
		history = append(history, entry)
	}
	return history, nil
}

func (s *Service) MonthlySummary(ctx context.Context, userID snowflake.ID, year, month int) (usagedomain.MonthlySummary, error) {
	if month < 1 || month > 12 {
		return usagedomain.MonthlySummary{}, usagedomain.ErrInvalidMonth
	}
	if year < 2000 || year > 2100 {
		return usagedomain.MonthlySummary{}, usagedomain.ErrInvalidYear
	}

	daysInMonth := DaysInMonth(year, month)
	summary := usagedomain.MonthlySummary{
		Year:        year,
		Month:       month,
		MonthLabel:  MonthLabel(year, month),
		DaysInMonth: daysInMonth,
	}

	first := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	last := time.Date(year, time.Month(month), daysInMonth, 0, 0, 0, 0, time.UTC)
	rows, err := s.recordsInRange(ctx, userID, first.Format(usagedomain.DayLayout), last.Format(usagedomain.DayLayout))
	if err != nil {
		return usagedomain.MonthlySummary{}, err
	}
	if len(rows) == 0 {
		return summary, nil
	}

	var totalStorage, peakStorage, totalCalls int64
	for _, row := range rows {
		totalStorage += row.StorageUsed
		totalCalls += row.APICalls
		if row.StorageUsed > peakStorage {
			peakStorage = row.StorageUsed
		}
	}

	summary.DaysActive = len(rows)
	// Truncating division: fractional bytes are never rounded up into a bill.
	summary.AvgStorageBytes = totalStorage / int64(len(rows))
	summary.AvgStorageMB = toMB(summary.AvgStorageBytes)
	summary.PeakStorageBytes = peakStorage
	summary.PeakStorageMB = toMB(peakStorage)
	summary.TotalAPICalls = totalCalls
	return summary, nil
}

func (s *Service) CurrentMonthSummary(ctx context.Context, userID snowflake.ID) (usagedomain.MonthlySummary, error) {
	now := s.clock.Now()
	return s.MonthlySummary(ctx, userID, now.Year(), int(now.Month()))
}

func (s *Service) AllTimeStats(ctx context.Context, userID snowflake.ID) (usagedomain.AllTimeStats, error) {
	var row struct {
		TotalAPICalls int64
		TotalDays     int64
		PeakStorage   int64
	}
	err := s.db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(api_calls), 0)    AS total_api_calls,
		        COUNT(id)                      AS total_days,
		        COALESCE(MAX(storage_used), 0) AS peak_storage
		 FROM usage_records
		 WHERE user_id = ?`,
		userID,
	).Scan(&row).Error
	if err != nil {
		return usagedomain.AllTimeStats{}, err
	}

	files, err := s.objects.Count(ctx, &objectdomain.StorageObject{UserID: userID})
	if err != nil {
		return usagedomain.AllTimeStats{}, err
	}

	return usagedomain.AllTimeStats{
		TotalAPICallsEver: row.TotalAPICalls,
		TotalDaysLogged:   row.TotalDays,
		PeakStorageBytes:  row.PeakStorage,
		PeakStorageMB:     toMB(row.PeakStorage),
		TotalFilesStored:  files,
	}, nil
}

func (s *Service) recordsInRange(ctx context.Context, userID snowflake.ID, from, to string) ([]*usagedomain.UsageRecord, error) {
	return s.records.Find(ctx, &usagedomain.UsageRecord{UserID: userID},
		repository.WithCondition("day >= ? AND day <= ?", from, to),
		repository.WithOrder("day asc"),
	)
}

// DaysInMonth returns the calendar length of a month, leap years included.
func DaysInMonth(year, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// MonthLabel renders the invoice uniqueness key, e.g. "2026-02".
func MonthLabel(year, month int) string {
	return fmt.Sprintf("%04d-%02d", year, month)
}

func toMB(bytes int64) float64 {
	return math.Round(float64(bytes)/(1024*1024)*10000) / 10000
}
