package dashboard

import (
	"context"
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
	"github.com/billflow/billflow/internal/clock"
	objectdomain "github.com/billflow/billflow/internal/object/domain"
	usagedomain "github.com/billflow/billflow/internal/usage/domain"
	userdomain "github.com/billflow/billflow/internal/user/domain"
)

type dashFixture struct {
	svc   *Service
	conn  *gorm.DB
	node  *snowflake.Node
	clock *clock.FakeClock
}

func newDashFixture(t *testing.T, at time.Time) *dashFixture {
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
	svc := NewService(ServiceParam{DB: conn, Log: zap.NewNop(), Clock: fake})
	return &dashFixture{svc: svc, conn: conn, node: node, clock: fake}
}

func (f *dashFixture) addUser(t *testing.T, username string, role userdomain.Role, createdAt time.Time) *userdomain.User {
	t.Helper()
	user := &userdomain.User{
		ID:        f.node.Generate(),
		Username:  username,
		Email:     username + "@x.com",
		Role:      role,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
	require.NoError(t, f.conn.Create(user).Error)
	return user
}

func (f *dashFixture) addInvoice(t *testing.T, userID snowflake.ID, month, status, amount string) *billingdomain.Invoice {
	t.Helper()
	invoice := &billingdomain.Invoice{
		ID:          f.node.Generate(),
		UserID:      userID,
		Month:       month,
		Year:        2026,
		MonthNumber: 2,
		TotalAmount: decimal.RequireFromString(amount),
		Status:      status,
		GeneratedAt: f.clock.Now(),
		UpdatedAt:   f.clock.Now(),
	}
	require.NoError(t, f.conn.Create(invoice).Error)
	return invoice
}

func TestOverview_Rollup(t *testing.T) {
	now := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	f := newDashFixture(t, now)
	ctx := context.Background()

	alice := f.addUser(t, "alice", userdomain.RoleUser, now.AddDate(0, -2, 0))
	bob := f.addUser(t, "bob", userdomain.RoleUser, now.AddDate(0, 0, -3))
	f.addUser(t, "root", userdomain.RoleAdmin, now.AddDate(0, -6, 0))

	require.NoError(t, f.conn.Create(&usagedomain.UsageRecord{
		ID: f.node.Generate(), UserID: alice.ID, Day: "2026-02-10", APICalls: 4,
	}).Error)
	require.NoError(t, f.conn.Create(&objectdomain.StorageObject{
		ID: f.node.Generate(), UserID: alice.ID, Filename: "a.txt", ObjectKey: "user-alice/a.txt", SizeBytes: 2 * 1024 * 1024,
	}).Error)

	f.addInvoice(t, alice.ID, "2026-01", billingdomain.StatusPaid, "7.5")
	f.addInvoice(t, bob.ID, "2026-01", billingdomain.StatusGenerated, "2.5")

	overview, err := f.svc.Overview(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(2), overview.Users.Total)
	assert.Equal(t, int64(1), overview.Users.Admins)
	assert.Equal(t, int64(1), overview.Users.NewThisMonth)
	assert.Equal(t, int64(1), overview.Users.ActiveToday)

	assert.Equal(t, int64(1), overview.Storage.TotalFiles)
	assert.Equal(t, int64(2*1024*1024), overview.Storage.TotalBytes)
	assert.Equal(t, 2.0, overview.Storage.TotalMB)

	assert.Equal(t, int64(2), overview.Billing.TotalInvoices)
	assert.Equal(t, int64(1), overview.Billing.PendingInvoices)
	assert.Equal(t, "7.5", overview.Billing.PaidRevenue.String())
	assert.Equal(t, "10", overview.Billing.TotalBilled.String())
}

func TestListUsers_SearchAndSort(t *testing.T) {
	now := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	f := newDashFixture(t, now)
	ctx := context.Background()

	f.addUser(t, "alice", userdomain.RoleUser, now.AddDate(0, 0, -2))
	f.addUser(t, "bob", userdomain.RoleUser, now.AddDate(0, 0, -1))
	f.addUser(t, "root", userdomain.RoleAdmin, now.AddDate(0, 0, -3))

	byName, err := f.svc.ListUsers(ctx, "", "user", "username")
	require.NoError(t, err)
	require.Equal(t, 2, byName.Total)
	assert.Equal(t, "alice", byName.Users[0].Username)
	assert.Equal(t, "bob", byName.Users[1].Username)

	found, err := f.svc.ListUsers(ctx, "ALI", "", "")
	require.NoError(t, err)
	require.Equal(t, 1, found.Total)
	assert.Equal(t, "alice", found.Users[0].Username)
	assert.Equal(t, "ALI", found.Search)
}

func TestAllInvoices_FiltersAndTotals(t *testing.T) {
	now := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	f := newDashFixture(t, now)
	ctx := context.Background()

	alice := f.addUser(t, "alice", userdomain.RoleUser, now)
	bob := f.addUser(t, "bob", userdomain.RoleUser, now)

	f.addInvoice(t, alice.ID, "2026-01", billingdomain.StatusPaid, "7.5")
	f.addInvoice(t, bob.ID, "2026-01", billingdomain.StatusGenerated, "2.5")

	all, err := f.svc.AllInvoices(ctx, InvoiceFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, all.TotalInvoices)
	assert.Equal(t, "10", all.TotalRevenue.String())
	assert.Equal(t, "7.5", all.PaidRevenue.String())
	assert.Equal(t, "2.5", all.PendingAmount.String())

	paid, err := f.svc.AllInvoices(ctx, InvoiceFilter{Status: billingdomain.StatusPaid})
	require.NoError(t, err)
	require.Equal(t, 1, paid.TotalInvoices)
	assert.Equal(t, "alice", paid.Invoices[0].Username)

	mine, err := f.svc.AllInvoices(ctx, InvoiceFilter{UserID: bob.ID})
	require.NoError(t, err)
	require.Equal(t, 1, mine.TotalInvoices)
	assert.Equal(t, "bob", mine.Invoices[0].Username)
}

func TestAllInvoices_DeletedOwner(t *testing.T) {
	now := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	f := newDashFixture(t, now)

	f.addInvoice(t, f.node.Generate(), "2026-01", billingdomain.StatusGenerated, "1.0")

	all, err := f.svc.AllInvoices(context.Background(), InvoiceFilter{})
	require.NoError(t, err)
	require.Equal(t, 1, all.TotalInvoices)
	assert.Equal(t, "deleted", all.Invoices[0].Username)
}

func TestPlatformStats_GapFillsWindow(t *testing.T) {
	now := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	f := newDashFixture(t, now)
	ctx := context.Background()

	alice := f.addUser(t, "alice", userdomain.RoleUser, now)
	require.NoError(t, f.conn.Create(&usagedomain.UsageRecord{
		ID: f.node.Generate(), UserID: alice.ID, Day: "2026-02-09", APICalls: 3, StorageUsed: 1024 * 1024,
	}).Error)
	require.NoError(t, f.conn.Create(&objectdomain.StorageObject{
		ID: f.node.Generate(), UserID: alice.ID, Filename: "a.txt", ObjectKey: "user-alice/a.txt", SizeBytes: 4 * 1024 * 1024,
	}).Error)

	stats, err := f.svc.PlatformStats(ctx, 3)
	require.NoError(t, err)
	require.Len(t, stats.DailyHistory, 3)

	assert.Equal(t, "2026-02-08", stats.DailyHistory[0].Date)
	assert.Zero(t, stats.DailyHistory[0].APICalls)
	assert.Equal(t, "2026-02-09", stats.DailyHistory[1].Date)
	assert.Equal(t, int64(3), stats.DailyHistory[1].APICalls)
	assert.Equal(t, 1.0, stats.DailyHistory[1].StorageMB)
	assert.Equal(t, int64(1), stats.DailyHistory[1].ActiveUsers)
	assert.Equal(t, "2026-02-10", stats.DailyHistory[2].Date)

	require.Len(t, stats.TopUsersByStorage, 1)
	assert.Equal(t, "alice", stats.TopUsersByStorage[0].Username)
	assert.Equal(t, 4.0, stats.TopUsersByStorage[0].StorageMB)

	_, err = f.svc.PlatformStats(ctx, 0)
	assert.ErrorIs(t, err, usagedomain.ErrInvalidDays)
}
