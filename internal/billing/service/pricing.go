package service

import (
	"math"

	"github.com/shopspring/decimal"

	billingdomain "github.com/billflow/billflow/internal/billing/domain"
	"github.com/billflow/billflow/internal/config"
	usagedomain "github.com/billflow/billflow/internal/usage/domain"
)

var bytesPerGB = decimal.NewFromInt(1 << 30)

// ComputeBill prices one month of aggregated usage. Pure function: money
// stays decimal end to end and is rounded to 4 places only at the edges
// that callers see.
func ComputeBill(summary usagedomain.MonthlySummary, pricing config.PricingConfig) billingdomain.Bill {
	billableStorage := summary.AvgStorageBytes - pricing.FreeStorageBytes
	if billableStorage < 0 {
		billableStorage = 0
	}
	billableCalls := summary.TotalAPICalls - pricing.FreeAPICalls
	if billableCalls < 0 {
		billableCalls = 0
	}

	days := decimal.NewFromInt(int64(summary.DaysInMonth))
	billableGB := decimal.NewFromInt(billableStorage).Div(bytesPerGB)
	storageCost := billableGB.Mul(days).Mul(pricing.StoragePerGBDay)
	apiCost := decimal.NewFromInt(billableCalls).Mul(pricing.APIPerCall)
	total := storageCost.Add(apiCost)

	coveredStorage := summary.AvgStorageBytes
	if coveredStorage > pricing.FreeStorageBytes {
		coveredStorage = pricing.FreeStorageBytes
	}
	coveredCalls := summary.TotalAPICalls
	if coveredCalls > pricing.FreeAPICalls {
		coveredCalls = pricing.FreeAPICalls
	}
	storageSaved := decimal.NewFromInt(coveredStorage).Div(bytesPerGB).Mul(days).Mul(pricing.StoragePerGBDay)
	apiSaved := decimal.NewFromInt(coveredCalls).Mul(pricing.APIPerCall)

	return billingdomain.Bill{
		Year:       summary.Year,
		Month:      summary.Month,
		MonthLabel: summary.MonthLabel,
		Usage: billingdomain.BillUsage{
			AvgStorageBytes: summary.AvgStorageBytes,
			AvgStorageMB:    summary.AvgStorageMB,
			AvgStorageGB:    roundTo(float64(summary.AvgStorageBytes)/float64(1<<30), 6),
			TotalAPICalls:   summary.TotalAPICalls,
			DaysActive:      summary.DaysActive,
			DaysInMonth:     summary.DaysInMonth,
		},
		Billable: billingdomain.BillBillable{
			StorageBytes: billableStorage,
			StorageGB:    roundTo(float64(billableStorage)/float64(1<<30), 6),
			APICalls:     billableCalls,
		},
		FreeTier: billingdomain.BillFreeTier{
			FreeStorageBytes: pricing.FreeStorageBytes,
			FreeStorageGB:    roundTo(float64(pricing.FreeStorageBytes)/float64(1<<30), 2),
			FreeAPICalls:     pricing.FreeAPICalls,
			StorageSaved:     storageSaved.Round(4),
			APISaved:         apiSaved.Round(4),
		},
		Rates: billingdomain.BillRates{
			StoragePerGBDay: pricing.StoragePerGBDay,
			APIPerCall:      pricing.APIPerCall,
		},
		Costs: billingdomain.BillCosts{
			StorageCost: storageCost.Round(4),
			APICost:     apiCost.Round(4),
			TotalAmount: total.Round(4),
		},
	}
}

func roundTo(value float64, places int) float64 {
	factor := math.Pow(10, float64(places))
	return math.Round(value*factor) / factor
}
