package service

import (
	"github.com/shopspring/decimal"

	billingdomain "github.com/billflow/billflow/internal/billing/domain"
)

// forecastMonth projects each cost component's run rate to the full month.
// With zero elapsed days there is no rate to project, so everything is zero.
func forecastMonth(bill billingdomain.Bill, daysElapsed, daysInMonth int) billingdomain.Forecast {
	if daysElapsed <= 0 {
		return billingdomain.Forecast{
			StorageCost: decimal.Zero,
			APICost:     decimal.Zero,
			TotalAmount: decimal.Zero,
		}
	}

	elapsed := decimal.NewFromInt(int64(daysElapsed))
	full := decimal.NewFromInt(int64(daysInMonth))
	project := func(cost decimal.Decimal) decimal.Decimal {
		return cost.Div(elapsed).Mul(full).Round(4)
	}
	return billingdomain.Forecast{
		StorageCost: project(bill.Costs.StorageCost),
		APICost:     project(bill.Costs.APICost),
		TotalAmount: project(bill.Costs.TotalAmount),
	}
}
