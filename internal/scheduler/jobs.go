package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	obsmetrics "github.com/billflow/billflow/internal/observability/metrics"
	userdomain "github.com/billflow/billflow/internal/user/domain"
)

// InvoiceRunResult summarizes one monthly invoice sweep.
type InvoiceRunResult struct {
	Month     string `json:"month"`
	Generated int    `json:"generated"`
	Skipped   int    `json:"skipped"`
	Failed    int    `json:"failed"`
}

// GenerateMonthlyInvoicesJob freezes the previous month's bill for every
// non-admin account. A failure for one user never blocks the rest of the
// run; re-running is safe because generation is idempotent per month.
func (s *Scheduler) GenerateMonthlyInvoicesJob(ctx context.Context) (InvoiceRunResult, error) {
	now := s.clock.Now()
	billYear, billMonth := previousMonth(now)
	result := InvoiceRunResult{Month: fmt.Sprintf("%04d-%02d", billYear, billMonth)}

	users, err := s.userSvc.ListByRole(ctx, userdomain.RoleUser)
	if err != nil {
		return result, err
	}

	var jobErr error
	for _, user := range users {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		generated, genErr := s.billingSvc.GenerateInvoice(ctx, user.ID, billYear, billMonth)
		if genErr != nil {
			result.Failed++
			jobErr = errors.Join(jobErr, genErr)
			s.log.Warn("invoice generation failed",
				zap.String("username", user.Username),
				zap.String("month", result.Month),
				zap.Error(genErr),
			)
			continue
		}
		if generated.AlreadyExisted {
			result.Skipped++
			continue
		}

		result.Generated++
		obsmetrics.App().IncInvoiceGenerated()
		s.sendInvoiceEmail(ctx, user, generated.Invoice.Month, generated.Invoice.TotalAmount.StringFixed(4))
	}

	s.log.Info("monthly invoice run complete",
		zap.String("month", result.Month),
		zap.Int("generated", result.Generated),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
	)
	return result, jobErr
}

// AlertRunResult summarizes one storage alert sweep.
type AlertRunResult struct {
	Alerted int `json:"alerted"`
}

// StorageAlertsJob emails every non-admin user whose bucket is at least 80%
// full. At 95% the alert escalates to critical.
func (s *Scheduler) StorageAlertsJob(ctx context.Context) (AlertRunResult, error) {
	users, err := s.userSvc.ListByRole(ctx, userdomain.RoleUser)
	if err != nil {
		return AlertRunResult{}, err
	}

	var result AlertRunResult
	var jobErr error
	for _, user := range users {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		summary, sumErr := s.objectSvc.Summary(ctx, user.Username)
		if sumErr != nil {
			jobErr = errors.Join(jobErr, sumErr)
			s.log.Warn("storage summary failed", zap.String("username", user.Username), zap.Error(sumErr))
			continue
		}
		if summary.PercentUsed < 80 {
			continue
		}

		level := "WARNING"
		if summary.PercentUsed >= 95 {
			level = "CRITICAL"
		}
		body := fmt.Sprintf(
			"<h2>Storage Alert</h2>"+
				"<p>Hi %s,</p>"+
				"<p>%s: your storage is %.1f%% full.</p>"+
				"<p>Used: %s of %s.</p>",
			user.Username, level, summary.PercentUsed, summary.UsedReadable, summary.QuotaReadable,
		)
		subject := fmt.Sprintf("Storage Alert - %.0f%% Used", summary.PercentUsed)
		if mailErr := s.email.Send(ctx, []string{user.Email}, subject, body); mailErr != nil {
			jobErr = errors.Join(jobErr, mailErr)
			s.log.Warn("storage alert failed", zap.String("username", user.Username), zap.Error(mailErr))
			continue
		}
		result.Alerted++
	}

	s.log.Info("storage alert run complete", zap.Int("alerted", result.Alerted))
	return result, jobErr
}

// DigestRunResult summarizes one daily digest sweep.
type DigestRunResult struct {
	Sent int `json:"sent"`
}

// DailyDigestJob mails each non-admin user their usage for today and the
// running estimate for the current month.
func (s *Scheduler) DailyDigestJob(ctx context.Context) (DigestRunResult, error) {
	users, err := s.userSvc.ListByRole(ctx, userdomain.RoleUser)
	if err != nil {
		return DigestRunResult{}, err
	}

	today := s.clock.Now().Format("2006-01-02")
	var result DigestRunResult
	var jobErr error
	for _, user := range users {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		usage, usageErr := s.usageSvc.TodayUsage(ctx, user.ID, user.Username)
		if usageErr != nil {
			jobErr = errors.Join(jobErr, usageErr)
			continue
		}
		estimate, estErr := s.billingSvc.CurrentEstimate(ctx, user.ID)
		if estErr != nil {
			jobErr = errors.Join(jobErr, estErr)
			continue
		}

		body := fmt.Sprintf(
			"<h2>Your Daily Summary</h2>"+
				"<p>Hi %s,</p>"+
				"<p>Storage used today: %.4f MB</p>"+
				"<p>API calls today: %d</p>"+
				"<p>Estimated bill so far: %s</p>",
			user.Username, usage.StorageUsedMB, usage.APICallsToday,
			estimate.CurrentBill.Costs.TotalAmount.StringFixed(4),
		)
		subject := fmt.Sprintf("Daily Summary - %s", today)
		if mailErr := s.email.Send(ctx, []string{user.Email}, subject, body); mailErr != nil {
			jobErr = errors.Join(jobErr, mailErr)
			s.log.Warn("daily digest failed", zap.String("username", user.Username), zap.Error(mailErr))
			continue
		}
		result.Sent++
	}

	s.log.Info("daily digest run complete", zap.Int("sent", result.Sent))
	return result, jobErr
}

// UsageSnapshotJob refreshes the platform gauges from the current rollups.
// It is read-only: per-user ledger rows are written by the object service
// when a bucket actually changes, never on a timer. A row appearing on an
// idle day would count as an active day and shrink the monthly average.
func (s *Scheduler) UsageSnapshotJob(ctx context.Context) error {
	userCount, storageBytes, callsToday, err := s.dashboard.PlatformTotals(ctx)
	if err != nil {
		return err
	}
	obsmetrics.App().SetPlatformTotals(int(userCount), storageBytes, callsToday)
	s.log.Info("usage snapshot complete",
		zap.Int64("users", userCount),
		zap.Int64("storage_bytes", storageBytes),
		zap.Int64("api_calls_today", callsToday),
	)
	return nil
}

func (s *Scheduler) sendInvoiceEmail(ctx context.Context, user *userdomain.User, month, total string) {
	body := fmt.Sprintf(
		"<h2>Your Invoice - %s</h2>"+
			"<p>Hi %s,</p>"+
			"<p>Total due: %s</p>",
		month, user.Username, total,
	)
	if err := s.email.Send(ctx, []string{user.Email}, fmt.Sprintf("Invoice - %s", month), body); err != nil {
		s.log.Warn("invoice email failed", zap.String("username", user.Username), zap.Error(err))
	}
}

func previousMonth(now time.Time) (int, int) {
	if now.Month() == time.January {
		return now.Year() - 1, 12
	}
	return now.Year(), int(now.Month()) - 1
}
