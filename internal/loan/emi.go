package loan

import (
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/money"
	"github.com/shopspring/decimal"
)

const ratePrecision = 18

var (
	monthsTimesPercent = decimal.NewFromInt(1200)
	penaltyRate        = decimal.RequireFromString("0.02")
	penaltyDays        = decimal.NewFromInt(30)
)

// MonthlyRate converts an annual percentage into a monthly fraction.
func MonthlyRate(annualPercent decimal.Decimal) decimal.Decimal {
	return annualPercent.DivRound(monthsTimesPercent, ratePrecision)
}

// CalculateEMI returns the fixed instalment P·r·(1+r)^N / ((1+r)^N − 1)
// rounded to cents. A zero rate splits the principal evenly.
func CalculateEMI(principal, annualPercent decimal.Decimal, tenureMonths int) decimal.Decimal {
	if tenureMonths <= 0 {
		return decimal.Zero
	}

	n := decimal.NewFromInt(int64(tenureMonths))
	r := MonthlyRate(annualPercent)

	if r.IsZero() {
		return principal.DivRound(n, money.Scale)
	}

	growth := decimal.NewFromInt(1)
	onePlusR := growth.Add(r)

	for range tenureMonths {
		growth = growth.Mul(onePlusR).Round(ratePrecision)
	}

	return principal.Mul(r).Mul(growth).DivRound(growth.Sub(decimal.NewFromInt(1)), money.Scale)
}

// BuildSchedule splits a loan into tenureMonths instalments due one month
// apart starting a month after start. Interest is charged on the outstanding
// principal; the rest of each instalment repays principal.
func BuildSchedule(principal, annualPercent decimal.Decimal, tenureMonths int, start Date, emi decimal.Decimal) []EMI {
	r := MonthlyRate(annualPercent)
	outstanding := principal
	rows := make([]EMI, 0, tenureMonths)

	for i := 1; i <= tenureMonths; i++ {
		interest := money.Round(outstanding.Mul(r))
		principalPart := emi.Sub(interest)
		outstanding = outstanding.Sub(principalPart)

		rows = append(rows, EMI{
			Number:             i,
			DueDate:            start.AddMonths(i),
			Amount:             emi,
			PrincipalComponent: principalPart,
			InterestComponent:  interest,
			Status:             EMIPending,
			PenaltyAmount:      decimal.Zero,
		})
	}

	return rows
}

// Penalty is 2% of the instalment per 30 days late, accrued daily and
// rounded to cents.
func Penalty(emi decimal.Decimal, overdueDays int) decimal.Decimal {
	if overdueDays <= 0 {
		return decimal.Zero
	}

	return emi.Mul(penaltyRate).Mul(decimal.NewFromInt(int64(overdueDays))).DivRound(penaltyDays, money.Scale)
}
