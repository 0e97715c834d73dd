// Package scheduler drives the periodic billing jobs: the monthly invoice
// run, storage alerts, the daily digest, and hourly usage snapshots. One
// ticker evaluates due times; each job runs with its own deadline and its
// failures never block the others.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	billingdomain "github.com/billflow/billflow/internal/billing/domain"
	"github.com/billflow/billflow/internal/clock"
	"github.com/billflow/billflow/internal/dashboard"
	objectdomain "github.com/billflow/billflow/internal/object/domain"
	obsmetrics "github.com/billflow/billflow/internal/observability/metrics"
	"github.com/billflow/billflow/internal/providers/email"
	usagedomain "github.com/billflow/billflow/internal/usage/domain"
	userdomain "github.com/billflow/billflow/internal/user/domain"
)

var ErrInvalidConfig = errors.New("scheduler requires db, logger, services, and clock")

const (
	JobMonthlyInvoices = "monthly_invoices"
	JobStorageAlerts   = "storage_alerts"
	JobDailyDigest     = "daily_digest"
	JobUsageSnapshot   = "usage_snapshot"
)

var ErrUnknownJob = errors.New("unknown job name")

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	UserSvc    userdomain.Service
	UsageSvc   usagedomain.Service
	BillingSvc billingdomain.Service
	ObjectSvc  objectdomain.Service
	Dashboard  *dashboard.Service
	Email      email.Provider
	GenID      *snowflake.Node
	Clock      clock.Clock
	Config     Config `optional:"true"`
}

type Scheduler struct {
	db         *gorm.DB
	log        *zap.Logger
	cfg        Config
	genID      *snowflake.Node
	clock      clock.Clock
	userSvc    userdomain.Service
	usageSvc   usagedomain.Service
	billingSvc billingdomain.Service
	objectSvc  objectdomain.Service
	dashboard  *dashboard.Service
	email      email.Provider

	// lastPeriod maps job name to the period key it last completed, so a
	// job fires once per period no matter how often the ticker wakes up.
	lastPeriod map[string]string
	// attempts counts failed runs per job within its current period. At
	// MaxJobAttempts the period is consumed and the failure is left to an
	// operator instead of retrying on every tick.
	attempts map[string]periodAttempts
}

type periodAttempts struct {
	period string
	count  int
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.UserSvc == nil || p.UsageSvc == nil ||
		p.BillingSvc == nil || p.ObjectSvc == nil || p.Dashboard == nil ||
		p.Email == nil || p.GenID == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:         p.DB,
		log:        p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:        p.Config.withDefaults(),
		genID:      p.GenID,
		clock:      p.Clock,
		userSvc:    p.UserSvc,
		usageSvc:   p.UsageSvc,
		billingSvc: p.BillingSvc,
		objectSvc:  p.ObjectSvc,
		dashboard:  p.Dashboard,
		email:      p.Email,
		lastPeriod: make(map[string]string),
		attempts:   make(map[string]periodAttempts),
	}, nil
}

func (s *Scheduler) runJob(parent context.Context, name string, fn func(ctx context.Context) error) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	log := s.log.With(
		zap.String("job", name),
		zap.String("run_id", uuid.NewString()),
	)
	appMetrics := obsmetrics.App()
	appMetrics.IncJobRun(name)
	log.Info("job started")

	err := fn(ctx)
	appMetrics.ObserveJobDuration(name, time.Since(start))
	if err == nil {
		log.Info("job finished", zap.Duration("elapsed", time.Since(start)))
		return nil
	}

	appMetrics.IncJobError(name)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		log.Warn("job timed out", zap.Duration("timeout", s.cfg.JobTimeout), zap.Error(err))
		return nil
	}
	log.Error("job failed", zap.Error(err))
	return fmt.Errorf("%s: %w", name, err)
}

type jobSpec struct {
	Name string
	// PeriodKey identifies the window the job fires once in.
	PeriodKey func(now time.Time) string
	// Due reports whether now is at or past the job's slot in the window.
	Due func(now time.Time) bool
	Run func(ctx context.Context) error
}

func (s *Scheduler) jobs() []jobSpec {
	return []jobSpec{
		{
			Name:      JobMonthlyInvoices,
			PeriodKey: func(now time.Time) string { return now.Format("2006-01") },
			Due: func(now time.Time) bool {
				return now.Day() == 1 && now.Hour() >= s.cfg.InvoiceHour
			},
			Run: func(ctx context.Context) error {
				_, err := s.GenerateMonthlyInvoicesJob(ctx)
				return err
			},
		},
		{
			Name:      JobDailyDigest,
			PeriodKey: func(now time.Time) string { return now.Format(usagedomain.DayLayout) },
			Due:       func(now time.Time) bool { return now.Hour() >= s.cfg.DigestHour },
			Run: func(ctx context.Context) error {
				_, err := s.DailyDigestJob(ctx)
				return err
			},
		},
		{
			Name:      JobStorageAlerts,
			PeriodKey: func(now time.Time) string { return now.Format(usagedomain.DayLayout) },
			Due:       func(now time.Time) bool { return now.Hour() >= s.cfg.AlertHour },
			Run: func(ctx context.Context) error {
				_, err := s.StorageAlertsJob(ctx)
				return err
			},
		},
		{
			Name:      JobUsageSnapshot,
			PeriodKey: func(now time.Time) string { return now.Format("2006-01-02T15") },
			Due:       func(now time.Time) bool { return true },
			Run:       s.UsageSnapshotJob,
		},
	}
}

// RunDue runs every enabled job whose slot has arrived in the current period
// and which has not completed in that period yet. A failing job is retried
// on later ticks up to MaxJobAttempts, then its period is consumed.
func (s *Scheduler) RunDue(ctx context.Context) error {
	now := s.clock.Now()
	var err error
	for _, job := range s.jobs() {
		if !s.isJobEnabled(job.Name) {
			continue
		}
		key := job.PeriodKey(now)
		if s.lastPeriod[job.Name] == key || !job.Due(now) {
			continue
		}
		runErr := s.runJob(ctx, job.Name, job.Run)
		if runErr == nil {
			s.lastPeriod[job.Name] = key
			delete(s.attempts, job.Name)
			continue
		}
		err = errors.Join(err, runErr)

		state := s.attempts[job.Name]
		if state.period != key {
			state = periodAttempts{period: key}
		}
		state.count++
		if state.count < s.cfg.MaxJobAttempts {
			s.attempts[job.Name] = state
			continue
		}
		s.lastPeriod[job.Name] = key
		delete(s.attempts, job.Name)
		obsmetrics.App().IncJobError(job.Name)
		s.log.Error("job abandoned for this period",
			zap.String("job", job.Name),
			zap.String("period", key),
			zap.Int("attempts", state.count),
			zap.Error(runErr),
		)
	}
	return err
}

// RunOnce forces every enabled job regardless of schedule.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	var err error
	for _, job := range s.jobs() {
		if !s.isJobEnabled(job.Name) {
			continue
		}
		err = errors.Join(err, s.runJob(ctx, job.Name, job.Run))
	}
	return err
}

// Trigger runs a single job by name, on demand.
func (s *Scheduler) Trigger(ctx context.Context, name string) error {
	for _, job := range s.jobs() {
		if strings.EqualFold(job.Name, name) {
			return s.runJob(ctx, job.Name, job.Run)
		}
	}
	return ErrUnknownJob
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		if err := s.RunDue(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}
