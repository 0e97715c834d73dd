package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/billflow/billflow/internal/clock"
	objectdomain "github.com/billflow/billflow/internal/object/domain"
	usagedomain "github.com/billflow/billflow/internal/usage/domain"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, conn.AutoMigrate(&usagedomain.UsageRecord{}, &objectdomain.StorageObject{}))
	return conn
}

func newTestService(t *testing.T, at time.Time) (usagedomain.Service, *clock.FakeClock, *gorm.DB) {
	t.Helper()
	conn := newTestDB(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(at)

	svc := NewService(ServiceParam{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fake,
	})
	return svc, fake, conn
}

func TestRecordAPICall_IncrementsWithinDay(t *testing.T) {
	svc, _, conn := newTestService(t, time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC))
	ctx := context.Background()
	userID := snowflake.ID(42)

	require.NoError(t, svc.RecordAPICall(ctx, userID))
	require.NoError(t, svc.RecordAPICall(ctx, userID))
	require.NoError(t, svc.RecordAPICall(ctx, userID))

	var record usagedomain.UsageRecord
	require.NoError(t, conn.Where("user_id = ? AND day = ?", userID, "2026-02-10").First(&record).Error)
	assert.Equal(t, int64(3), record.APICalls)

	var count int64
	require.NoError(t, conn.Model(&usagedomain.UsageRecord{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestRecordAPICall_CounterOnlyGrows(t *testing.T) {
	svc, _, conn := newTestService(t, time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC))
	ctx := context.Background()
	userID := snowflake.ID(42)

	var last int64
	for i := 0; i < 25; i++ {
		require.NoError(t, svc.RecordAPICall(ctx, userID))

		var record usagedomain.UsageRecord
		require.NoError(t, conn.Where("user_id = ? AND day = ?", userID, "2026-02-10").First(&record).Error)
		require.Equal(t, last+1, record.APICalls)
		last = record.APICalls
	}
}

func TestRecordStorageSnapshot_OverwritesAndKeepsCalls(t *testing.T) {
	svc, _, conn := newTestService(t, time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC))
	ctx := context.Background()
	userID := snowflake.ID(42)

	require.NoError(t, svc.RecordAPICall(ctx, userID))
	require.NoError(t, svc.RecordStorageSnapshot(ctx, userID, 5000))
	require.NoError(t, svc.RecordStorageSnapshot(ctx, userID, 2000))

	var record usagedomain.UsageRecord
	require.NoError(t, conn.Where("user_id = ? AND day = ?", userID, "2026-02-10").First(&record).Error)
	assert.Equal(t, int64(2000), record.StorageUsed)
	assert.Equal(t, int64(1), record.APICalls)
}

func TestRecordStorageSnapshot_RejectsNegative(t *testing.T) {
	svc, _, _ := newTestService(t, time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC))

	err := svc.RecordStorageSnapshot(context.Background(), snowflake.ID(42), -1)
	assert.ErrorIs(t, err, usagedomain.ErrInvalidStorage)
}

func TestUsageHistory_GapFills(t *testing.T) {
	svc, fake, _ := newTestService(t, time.Date(2026, 2, 8, 12, 0, 0, 0, time.UTC))
	ctx := context.Background()
	userID := snowflake.ID(42)

	require.NoError(t, svc.RecordAPICall(ctx, userID))
	require.NoError(t, svc.RecordStorageSnapshot(ctx, userID, 1024*1024))

	fake.Set(time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC))
	require.NoError(t, svc.RecordAPICall(ctx, userID))

	history, err := svc.UsageHistory(ctx, userID, 5)
	require.NoError(t, err)
	require.Len(t, history, 5)

	assert.Equal(t, "2026-02-06", history[0].Date)
	assert.Zero(t, history[0].APICalls)

	assert.Equal(t, "2026-02-08", history[2].Date)
	assert.Equal(t, int64(1), history[2].APICalls)
	assert.Equal(t, int64(1024*1024), history[2].StorageUsedBytes)
	assert.Equal(t, 1.0, history[2].StorageUsedMB)

	assert.Equal(t, "2026-02-09", history[3].Date)
	assert.Zero(t, history[3].APICalls)

	assert.Equal(t, "2026-02-10", history[4].Date)
	assert.Equal(t, int64(1), history[4].APICalls)
}

func TestUsageHistory_RejectsBadWindow(t *testing.T) {
	svc, _, _ := newTestService(t, time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC))

	_, err := svc.UsageHistory(context.Background(), snowflake.ID(42), 0)
	assert.ErrorIs(t, err, usagedomain.ErrInvalidDays)

	_, err = svc.UsageHistory(context.Background(), snowflake.ID(42), 366)
	assert.ErrorIs(t, err, usagedomain.ErrInvalidDays)
}

func TestMonthlySummary_AveragesOverActiveDays(t *testing.T) {
	svc, fake, _ := newTestService(t, time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC))
	ctx := context.Background()
	userID := snowflake.ID(42)

	require.NoError(t, svc.RecordStorageSnapshot(ctx, userID, 1000))
	require.NoError(t, svc.RecordAPICall(ctx, userID))

	fake.Set(time.Date(2026, 2, 2, 12, 0, 0, 0, time.UTC))
	require.NoError(t, svc.RecordStorageSnapshot(ctx, userID, 2001))
	require.NoError(t, svc.RecordAPICall(ctx, userID))
	require.NoError(t, svc.RecordAPICall(ctx, userID))

	summary, err := svc.MonthlySummary(ctx, userID, 2026, 2)
	require.NoError(t, err)

	assert.Equal(t, "2026-02", summary.MonthLabel)
	assert.Equal(t, 28, summary.DaysInMonth)
	assert.Equal(t, 2, summary.DaysActive)
	// (1000+2001)/2 truncates; fractional bytes never round up.
	assert.Equal(t, int64(1500), summary.AvgStorageBytes)
	assert.Equal(t, int64(2001), summary.PeakStorageBytes)
	assert.Equal(t, int64(3), summary.TotalAPICalls)
}

func TestMonthlySummary_EmptyMonthIsZero(t *testing.T) {
	svc, _, _ := newTestService(t, time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC))

	summary, err := svc.MonthlySummary(context.Background(), snowflake.ID(42), 2025, 11)
	require.NoError(t, err)
	assert.Equal(t, 30, summary.DaysInMonth)
	assert.Zero(t, summary.DaysActive)
	assert.Zero(t, summary.AvgStorageBytes)
	assert.Zero(t, summary.TotalAPICalls)
}

func TestMonthlySummary_Validation(t *testing.T) {
	svc, _, _ := newTestService(t, time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC))
	ctx := context.Background()

	_, err := svc.MonthlySummary(ctx, snowflake.ID(42), 2026, 0)
	assert.ErrorIs(t, err, usagedomain.ErrInvalidMonth)
	_, err = svc.MonthlySummary(ctx, snowflake.ID(42), 2026, 13)
	assert.ErrorIs(t, err, usagedomain.ErrInvalidMonth)
	_, err = svc.MonthlySummary(ctx, snowflake.ID(42), 1999, 1)
	assert.ErrorIs(t, err, usagedomain.ErrInvalidYear)
}

func TestTodayUsage_CountsFiles(t *testing.T) {
	svc, _, conn := newTestService(t, time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC))
	ctx := context.Background()
	userID := snowflake.ID(42)

	require.NoError(t, conn.Create(&objectdomain.StorageObject{
		ID: 1, UserID: userID, Filename: "a.txt", ObjectKey: "user-x/a.txt", SizeBytes: 10,
	}).Error)
	require.NoError(t, svc.RecordStorageSnapshot(ctx, userID, 4096))
	require.NoError(t, svc.RecordAPICall(ctx, userID))

	usage, err := svc.TodayUsage(ctx, userID, "x")
	require.NoError(t, err)
	assert.Equal(t, "2026-02-10", usage.Date)
	assert.Equal(t, int64(4096), usage.StorageUsedBytes)
	assert.Equal(t, int64(1), usage.APICallsToday)
	assert.Equal(t, int64(1), usage.TotalFiles)
}

func TestDaysInMonth(t *testing.T) {
	assert.Equal(t, 29, DaysInMonth(2024, 2))
	assert.Equal(t, 28, DaysInMonth(2026, 2))
	assert.Equal(t, 31, DaysInMonth(2026, 1))
	assert.Equal(t, 30, DaysInMonth(2026, 4))
}
