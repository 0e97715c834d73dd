package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	billingdomain "github.com/billflow/billflow/internal/billing/domain"
	billingservice "github.com/billflow/billflow/internal/billing/service"
	"github.com/billflow/billflow/internal/clock"
	"github.com/billflow/billflow/internal/config"
	"github.com/billflow/billflow/internal/dashboard"
	objectdomain "github.com/billflow/billflow/internal/object/domain"
	objectservice "github.com/billflow/billflow/internal/object/service"
	"github.com/billflow/billflow/internal/objectstore"
	usagedomain "github.com/billflow/billflow/internal/usage/domain"
	usageservice "github.com/billflow/billflow/internal/usage/service"
	userdomain "github.com/billflow/billflow/internal/user/domain"
	userservice "github.com/billflow/billflow/internal/user/service"
)

type sentMail struct {
	To      []string
	Subject string
	Body    string
}

type recorderEmail struct {
	mu       sync.Mutex
	sent     []sentMail
	attempts int
	failWith error
}

func (r *recorderEmail) Send(ctx context.Context, to []string, subject, htmlBody string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts++
	if r.failWith != nil {
		return r.failWith
	}
	r.sent = append(r.sent, sentMail{To: to, Subject: subject, Body: htmlBody})
	return nil
}

func (r *recorderEmail) Sent() []sentMail {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sentMail(nil), r.sent...)
}

func (r *recorderEmail) Attempts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts
}

func (r *recorderEmail) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failWith = err
}

type schedulerFixture struct {
	sched   *Scheduler
	clock   *clock.FakeClock
	conn    *gorm.DB
	node    *snowflake.Node
	userSvc userdomain.Service
	usage   usagedomain.Service
	billing billingdomain.Service
	store   *objectstore.FakeStore
	email   *recorderEmail
}

func pricingForTest() config.PricingConfig {
	return config.PricingConfig{
		StoragePerGBDay:  decimal.RequireFromString("0.25"),
		APIPerCall:       decimal.RequireFromString("0.001"),
		FreeStorageBytes: 1 << 30,
		FreeAPICalls:     1000,
	}
}

func newSchedulerFixture(t *testing.T, at time.Time) *schedulerFixture {
	return newSchedulerFixtureWithConfig(t, at, Config{})
}

func newSchedulerFixtureWithConfig(t *testing.T, at time.Time, cfg Config) *schedulerFixture {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, conn.AutoMigrate(
		&userdomain.User{},
		&usagedomain.UsageRecord{},
		&objectdomain.StorageObject{},
		&billingdomain.Invoice{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(at)
	log := zap.NewNop()
	store := objectstore.NewFakeStore()
	mailer := &recorderEmail{}

	userSvc := userservice.NewService(userservice.ServiceParam{DB: conn, Log: log, GenID: node})
	usageSvc := usageservice.NewService(usageservice.ServiceParam{
		DB: conn, Log: log, GenID: node, Clock: fake, Store: store,
	})
	billingSvc := billingservice.NewService(billingservice.ServiceParam{
		DB: conn, Log: log, GenID: node, Clock: fake, Usage: usageSvc, Pricing: pricingForTest(),
	})
	objectSvc := objectservice.NewService(objectservice.ServiceParam{
		DB: conn, Log: log, GenID: node, Clock: fake, Store: store, Usage: usageSvc,
		Quota: config.QuotaConfig{StorageQuotaBytes: 50 * 1024 * 1024, MaxFileSizeBytes: 10 * 1024 * 1024},
	})
	dashboardSvc := dashboard.NewService(dashboard.ServiceParam{DB: conn, Log: log, Clock: fake})

	sched, err := New(Params{
		DB:         conn,
		Log:        log,
		UserSvc:    userSvc,
		UsageSvc:   usageSvc,
		BillingSvc: billingSvc,
		ObjectSvc:  objectSvc,
		Dashboard:  dashboardSvc,
		Email:      mailer,
		GenID:      node,
		Clock:      fake,
		Config:     cfg,
	})
	require.NoError(t, err)

	return &schedulerFixture{
		sched:   sched,
		clock:   fake,
		conn:    conn,
		node:    node,
		userSvc: userSvc,
		usage:   usageSvc,
		billing: billingSvc,
		store:   store,
		email:   mailer,
	}
}

func (f *schedulerFixture) addUser(t *testing.T, username string, role userdomain.Role) *userdomain.User {
	t.Helper()
	user, err := f.userSvc.Create(context.Background(), userdomain.CreateUserRequest{
		Username:     username,
		Email:        username + "@x.com",
		PasswordHash: "irrelevant",
		Role:         role,
	})
	require.NoError(t, err)
	return user
}

func (f *schedulerFixture) recordUsage(t *testing.T, userID snowflake.ID, day time.Time, storage int64, calls int) {
	t.Helper()
	saved := f.clock.Now()
	f.clock.Set(day)
	require.NoError(t, f.usage.RecordStorageSnapshot(context.Background(), userID, storage))
	for i := 0; i < calls; i++ {
		require.NoError(t, f.usage.RecordAPICall(context.Background(), userID))
	}
	f.clock.Set(saved)
}

func TestGenerateMonthlyInvoicesJob_IsolatesUsers(t *testing.T) {
	f := newSchedulerFixture(t, time.Date(2026, 3, 1, 2, 30, 0, 0, time.UTC))
	ctx := context.Background()

	alice := f.addUser(t, "alice", userdomain.RoleUser)
	bob := f.addUser(t, "bob", userdomain.RoleUser)
	carol := f.addUser(t, "carol", userdomain.RoleUser)
	f.addUser(t, "root", userdomain.RoleAdmin)

	feb := time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)
	f.recordUsage(t, alice.ID, feb, 2<<30, 5)
	f.recordUsage(t, bob.ID, feb, 512, 2)

	// Carol's invoice already exists from an earlier run.
	_, err := f.billing.GenerateInvoice(ctx, carol.ID, 2026, 2)
	require.NoError(t, err)

	result, err := f.sched.GenerateMonthlyInvoicesJob(ctx)
	require.NoError(t, err)

	assert.Equal(t, "2026-02", result.Month)
	assert.Equal(t, 2, result.Generated)
	assert.Equal(t, 1, result.Skipped)
	assert.Zero(t, result.Failed)

	var count int64
	require.NoError(t, f.conn.Model(&billingdomain.Invoice{}).Count(&count).Error)
	assert.Equal(t, int64(3), count)

	// Invoice mail goes only to the freshly generated ones.
	sent := f.email.Sent()
	require.Len(t, sent, 2)
	for _, mail := range sent {
		assert.Contains(t, mail.Subject, "Invoice - 2026-02")
	}
}

func TestGenerateMonthlyInvoicesJob_JanuaryBillsDecember(t *testing.T) {
	f := newSchedulerFixture(t, time.Date(2026, 1, 1, 2, 30, 0, 0, time.UTC))
	f.addUser(t, "alice", userdomain.RoleUser)

	result, err := f.sched.GenerateMonthlyInvoicesJob(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2025-12", result.Month)
}

func TestStorageAlertsJob_Thresholds(t *testing.T) {
	f := newSchedulerFixture(t, time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC))
	ctx := context.Background()

	f.addUser(t, "quiet", userdomain.RoleUser)
	warn := f.addUser(t, "warn", userdomain.RoleUser)
	critical := f.addUser(t, "critical", userdomain.RoleUser)

	// warn sits at 85% of the 50 MB quota, critical at 96%.
	require.NoError(t, f.store.Put(ctx, "warn", "w.bin",
		strings.NewReader(strings.Repeat("x", 85*50*1024*1024/100)), 0, ""))
	require.NoError(t, f.store.Put(ctx, "critical", "c.bin",
		strings.NewReader(strings.Repeat("x", 96*50*1024*1024/100)), 0, ""))

	result, err := f.sched.StorageAlertsJob(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Alerted)

	sent := f.email.Sent()
	require.Len(t, sent, 2)
	bodies := sent[0].Body + sent[1].Body
	assert.Contains(t, bodies, "WARNING")
	assert.Contains(t, bodies, "CRITICAL")

	recipients := make([]string, 0, len(sent))
	for _, mail := range sent {
		assert.Contains(t, mail.Subject, "Storage Alert")
		recipients = append(recipients, mail.To...)
	}
	assert.Contains(t, recipients, warn.Email)
	assert.Contains(t, recipients, critical.Email)
}

func TestUsageSnapshotJob_LeavesLedgersUntouched(t *testing.T) {
	f := newSchedulerFixture(t, time.Date(2026, 2, 2, 14, 0, 0, 0, time.UTC))
	ctx := context.Background()

	alice := f.addUser(t, "alice", userdomain.RoleUser)
	f.recordUsage(t, alice.ID, time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC), 2<<30, 0)

	require.NoError(t, f.sched.UsageSnapshotJob(ctx))

	// An idle day must not gain a ledger row; that would count as an
	// active day and dilute the monthly storage average.
	var count int64
	require.NoError(t, f.conn.Model(&usagedomain.UsageRecord{}).
		Where("user_id = ? AND day = ?", alice.ID, "2026-02-02").Count(&count).Error)
	assert.Zero(t, count)

	summary, err := f.usage.MonthlySummary(ctx, alice.ID, 2026, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.DaysActive)
	assert.Equal(t, int64(2<<30), summary.AvgStorageBytes)
}

func TestRunDue_AbandonsFailingJobAfterRetryCap(t *testing.T) {
	f := newSchedulerFixtureWithConfig(t, time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC), Config{
		MaxJobAttempts: 3,
		EnabledJobs:    []string{JobStorageAlerts},
	})
	ctx := context.Background()

	f.addUser(t, "full", userdomain.RoleUser)
	require.NoError(t, f.store.Put(ctx, "full", "f.bin",
		strings.NewReader(strings.Repeat("x", 85*50*1024*1024/100)), 0, ""))
	f.email.FailWith(errors.New("smtp down"))

	for i := 0; i < 3; i++ {
		assert.Error(t, f.sched.RunDue(ctx))
		f.clock.Advance(time.Minute)
	}
	assert.Equal(t, 3, f.email.Attempts())

	// The period is consumed; further ticks stop hammering the mailer.
	require.NoError(t, f.sched.RunDue(ctx))
	assert.Equal(t, 3, f.email.Attempts())

	// The next day gets a fresh attempt budget.
	f.email.FailWith(nil)
	f.clock.Set(time.Date(2026, 2, 11, 9, 30, 0, 0, time.UTC))
	require.NoError(t, f.sched.RunDue(ctx))
	assert.Len(t, f.email.Sent(), 1)
}

func TestRunDue_FiresOncePerPeriod(t *testing.T) {
	f := newSchedulerFixture(t, time.Date(2026, 3, 1, 2, 30, 0, 0, time.UTC))
	ctx := context.Background()
	f.addUser(t, "alice", userdomain.RoleUser)

	require.NoError(t, f.sched.RunDue(ctx))
	var count int64
	require.NoError(t, f.conn.Model(&billingdomain.Invoice{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
	firstMails := len(f.email.Sent())

	// Same tick again: the month key is unchanged, nothing re-fires.
	f.clock.Advance(time.Minute)
	require.NoError(t, f.sched.RunDue(ctx))
	require.NoError(t, f.conn.Model(&billingdomain.Invoice{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, firstMails, len(f.email.Sent()))
}

func TestRunDue_SkipsBeforeSlot(t *testing.T) {
	f := newSchedulerFixture(t, time.Date(2026, 3, 1, 1, 30, 0, 0, time.UTC))
	ctx := context.Background()
	f.addUser(t, "alice", userdomain.RoleUser)

	require.NoError(t, f.sched.RunDue(ctx))
	var count int64
	require.NoError(t, f.conn.Model(&billingdomain.Invoice{}).Count(&count).Error)
	assert.Zero(t, count, "invoices must not generate before the configured hour")

	f.clock.Set(time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC))
	require.NoError(t, f.sched.RunDue(ctx))
	require.NoError(t, f.conn.Model(&billingdomain.Invoice{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestTrigger_ByName(t *testing.T) {
	f := newSchedulerFixture(t, time.Date(2026, 2, 10, 14, 0, 0, 0, time.UTC))
	ctx := context.Background()
	f.addUser(t, "alice", userdomain.RoleUser)

	require.NoError(t, f.sched.Trigger(ctx, "USAGE_SNAPSHOT"))

	err := f.sched.Trigger(ctx, "reticulate_splines")
	assert.ErrorIs(t, err, ErrUnknownJob)
}

func TestNew_RejectsMissingDependencies(t *testing.T) {
	_, err := New(Params{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
