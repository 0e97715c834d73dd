package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	billingdomain "github.com/billflow/billflow/internal/billing/domain"
	"github.com/billflow/billflow/internal/clock"
	"github.com/billflow/billflow/internal/config"
	usagedomain "github.com/billflow/billflow/internal/usage/domain"
	"github.com/billflow/billflow/pkg/db"
	"github.com/billflow/billflow/pkg/repository"
)

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Usage   usagedomain.Service
	Pricing config.PricingConfig
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	usage   usagedomain.Service
	pricing config.PricingConfig

	invoices repository.Repository[billingdomain.Invoice]
}

func NewService(p ServiceParam) billingdomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("billing.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		usage:   p.Usage,
		pricing: p.Pricing,

		invoices: repository.ProvideStore[billingdomain.Invoice](p.DB),
	}
}

func (s *Service) CalculateBill(ctx context.Context, userID snowflake.ID, year, month int) (billingdomain.Bill, error) {
	summary, err := s.usage.MonthlySummary(ctx, userID, year, month)
	if err != nil {
		return billingdomain.Bill{}, err
	}
	return ComputeBill(summary, s.pricing), nil
}

func (s *Service) CurrentEstimate(ctx context.Context, userID snowflake.ID) (billingdomain.Estimate, error) {
	now := s.clock.Now()
	year, month, day := now.Year(), int(now.Month()), now.Day()

	bill, err := s.CalculateBill(ctx, userID, year, month)
	if err != nil {
		return billingdomain.Estimate{}, err
	}

	daysInMonth := bill.Usage.DaysInMonth
	return billingdomain.Estimate{
		CurrentDate:     now.Format(usagedomain.DayLayout),
		DayOfMonth:      day,
		DaysInMonth:     daysInMonth,
		DaysRemaining:   daysInMonth - day,
		ProgressPercent: roundTo(float64(day)/float64(daysInMonth)*100, 1),
		CurrentBill:     bill,
		Forecast:        forecastMonth(bill, day, daysInMonth),
	}, nil
}

func (s *Service) GenerateInvoice(ctx context.Context, userID snowflake.ID, year, month int) (billingdomain.GenerateResult, error) {
	bill, err := s.CalculateBill(ctx, userID, year, month)
	if err != nil {
		return billingdomain.GenerateResult{}, err
	}

	existing, err := s.invoices.FindOne(ctx, &billingdomain.Invoice{UserID: userID, Month: bill.MonthLabel})
	if err != nil {
		return billingdomain.GenerateResult{}, err
	}
	if existing != nil {
		return billingdomain.GenerateResult{Invoice: existing, AlreadyExisted: true}, nil
	}

	now := s.clock.Now()
	invoice := &billingdomain.Invoice{
		ID:          s.genID.Generate(),
		UserID:      userID,
		Month:       bill.MonthLabel,
		Year:        year,
		MonthNumber: month,

		AvgStorageBytes: bill.Usage.AvgStorageBytes,
		TotalAPICalls:   bill.Usage.TotalAPICalls,
		DaysActive:      bill.Usage.DaysActive,

		StorageCost: bill.Costs.StorageCost,
		APICost:     bill.Costs.APICost,
		TotalAmount: bill.Costs.TotalAmount,

		RateStoragePerGBDay: bill.Rates.StoragePerGBDay,
		RateAPIPerCall:      bill.Rates.APIPerCall,

		Status:      billingdomain.StatusGenerated,
		GeneratedAt: now,
		UpdatedAt:   now,
	}
	if err := s.invoices.Create(ctx, invoice); err != nil {
		// Concurrent generation for the same month: the unique index decides
		// the winner, everyone else returns the stored row.
		if db.IsDuplicateKeyErr(err) {
			stored, findErr := s.invoices.FindOne(ctx, &billingdomain.Invoice{UserID: userID, Month: bill.MonthLabel})
			if findErr != nil {
				return billingdomain.GenerateResult{}, findErr
			}
			return billingdomain.GenerateResult{Invoice: stored, AlreadyExisted: true}, nil
		}
		return billingdomain.GenerateResult{}, err
	}

	s.log.Info("invoice generated",
		zap.String("month", bill.MonthLabel),
		zap.Int64("user_id", int64(userID)),
		zap.String("total_amount", bill.Costs.TotalAmount.String()),
	)
	return billingdomain.GenerateResult{Invoice: invoice, Bill: &bill, AlreadyExisted: false}, nil
}

func (s *Service) ListInvoices(ctx context.Context, userID snowflake.ID) (billingdomain.ListInvoicesResponse, error) {
	invoices, err := s.invoices.Find(ctx, &billingdomain.Invoice{UserID: userID},
		repository.WithOrder("year desc, month_number desc"),
	)
	if err != nil {
		return billingdomain.ListInvoicesResponse{}, err
	}

	totalSpent := decimal.Zero
	for _, invoice := range invoices {
		totalSpent = totalSpent.Add(invoice.TotalAmount)
	}
	return billingdomain.ListInvoicesResponse{
		TotalInvoices: len(invoices),
		TotalSpent:    totalSpent.Round(4),
		Invoices:      invoices,
	}, nil
}

func (s *Service) GetInvoice(ctx context.Context, userID, invoiceID snowflake.ID) (*billingdomain.Invoice, error) {
	invoice, err := s.invoices.FindOne(ctx, &billingdomain.Invoice{ID: invoiceID, UserID: userID})
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, billingdomain.ErrInvoiceNotFound
	}
	return invoice, nil
}

func (s *Service) MarkPaid(ctx context.Context, userID, invoiceID snowflake.ID) (billingdomain.PayResult, error) {
	invoice, err := s.GetInvoice(ctx, userID, invoiceID)
	if err != nil {
		return billingdomain.PayResult{}, err
	}
	if invoice.Status == billingdomain.StatusPaid {
		return billingdomain.PayResult{Invoice: invoice, AlreadyPaid: true}, nil
	}

	invoice.Status = billingdomain.StatusPaid
	invoice.UpdatedAt = s.clock.Now()
	if err := s.invoices.Update(ctx, int64(invoice.ID), invoice); err != nil {
		return billingdomain.PayResult{}, err
	}

	s.log.Info("invoice paid",
		zap.String("month", invoice.Month),
		zap.Int64("user_id", int64(userID)),
	)
	return billingdomain.PayResult{Invoice: invoice, AlreadyPaid: false}, nil
}
