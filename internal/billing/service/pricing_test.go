package service

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/billflow/billflow/internal/config"
	usagedomain "github.com/billflow/billflow/internal/usage/domain"
)

func testPricing() config.PricingConfig {
	return config.PricingConfig{
		StoragePerGBDay:  decimal.RequireFromString("0.25"),
		APIPerCall:       decimal.RequireFromString("0.001"),
		FreeStorageBytes: 1 << 30,
		FreeAPICalls:     1000,
	}
}

func TestComputeBill_ChargesAboveFreeTier(t *testing.T) {
	summary := usagedomain.MonthlySummary{
		Year:            2026,
		Month:           2,
		MonthLabel:      "2026-02",
		AvgStorageBytes: 2 << 30, // 2 GB average
		TotalAPICalls:   1500,
		DaysActive:      28,
		DaysInMonth:     28,
	}

	bill := ComputeBill(summary, testPricing())

	// 1 GB billable x 28 days x 0.25
	assert.Equal(t, "7", bill.Costs.StorageCost.String())
	// 500 billable calls x 0.001
	assert.Equal(t, "0.5", bill.Costs.APICost.String())
	assert.Equal(t, "7.5", bill.Costs.TotalAmount.String())

	assert.Equal(t, int64(1<<30), bill.Billable.StorageBytes)
	assert.Equal(t, int64(500), bill.Billable.APICalls)

	// The free GB and the first 1000 calls were fully consumed.
	assert.Equal(t, "7", bill.FreeTier.StorageSaved.String())
	assert.Equal(t, "1", bill.FreeTier.APISaved.String())
}

func TestComputeBill_FreeTierCoversEverything(t *testing.T) {
	summary := usagedomain.MonthlySummary{
		Year:            2026,
		Month:           1,
		MonthLabel:      "2026-01",
		AvgStorageBytes: 1 << 30,
		TotalAPICalls:   1000,
		DaysActive:      31,
		DaysInMonth:     31,
	}

	bill := ComputeBill(summary, testPricing())

	assert.True(t, bill.Costs.StorageCost.IsZero())
	assert.True(t, bill.Costs.APICost.IsZero())
	assert.True(t, bill.Costs.TotalAmount.IsZero())
	assert.Zero(t, bill.Billable.StorageBytes)
	assert.Zero(t, bill.Billable.APICalls)

	// Savings reflect actual usage, capped at the tier.
	assert.Equal(t, "7.75", bill.FreeTier.StorageSaved.String())
	assert.Equal(t, "1", bill.FreeTier.APISaved.String())
}

func TestComputeBill_ZeroUsage(t *testing.T) {
	summary := usagedomain.MonthlySummary{
		Year: 2026, Month: 3, MonthLabel: "2026-03", DaysInMonth: 31,
	}

	bill := ComputeBill(summary, testPricing())

	assert.True(t, bill.Costs.TotalAmount.IsZero())
	assert.True(t, bill.FreeTier.StorageSaved.IsZero())
	assert.True(t, bill.FreeTier.APISaved.IsZero())
}

func TestComputeBill_RoundsToFourPlaces(t *testing.T) {
	summary := usagedomain.MonthlySummary{
		Year:            2026,
		Month:           2,
		MonthLabel:      "2026-02",
		AvgStorageBytes: (1 << 30) + 333, // a hair over the free tier
		TotalAPICalls:   1001,
		DaysActive:      28,
		DaysInMonth:     28,
	}

	bill := ComputeBill(summary, testPricing())

	// 333 bytes over the free tier rounds away at 4 places.
	assert.True(t, bill.Costs.StorageCost.IsZero())
	assert.Equal(t, "0.001", bill.Costs.APICost.String())
	assert.Equal(t, int64(333), bill.Billable.StorageBytes)
}

func TestForecastMonth_DayZeroIsZero(t *testing.T) {
	bill := ComputeBill(usagedomain.MonthlySummary{DaysInMonth: 28}, testPricing())

	forecast := forecastMonth(bill, 0, 28)
	assert.True(t, forecast.StorageCost.IsZero())
	assert.True(t, forecast.APICost.IsZero())
	assert.True(t, forecast.TotalAmount.IsZero())
}

func TestForecastMonth_ProjectsRunRate(t *testing.T) {
	summary := usagedomain.MonthlySummary{
		Year:            2026,
		Month:           2,
		MonthLabel:      "2026-02",
		AvgStorageBytes: 2 << 30,
		TotalAPICalls:   1500,
		DaysActive:      14,
		DaysInMonth:     28,
	}
	bill := ComputeBill(summary, testPricing())

	forecast := forecastMonth(bill, 14, 28)

	// Half the month elapsed: every component doubles.
	assert.Equal(t, "14", forecast.StorageCost.String())
	assert.Equal(t, "1", forecast.APICost.String())
	assert.Equal(t, "15", forecast.TotalAmount.String())
}
