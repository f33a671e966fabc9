// Package fraud scores transactions against an ordered rule table and keeps
// an alert for every check. The orchestrator reaches it through a Dispatcher,
// so scoring never blocks or fails a money movement.
package fraud

import (
	"github.com/shopspring/decimal"
)

// Channels with dedicated rules.
const (
	ChannelUPI  = "UPI"
	ChannelCard = "CARD"
	ChannelATM  = "ATM"
)

const (
	defaultScore   = 10
	defaultReason  = "Normal transaction"
	defaultAnomaly = "None"
)

// Verdict is the outcome of Evaluate.
type Verdict struct {
	RiskScore int    `json:"risk_score"`
	FraudFlag bool   `json:"fraud_flag"`
	Reason    string `json:"reason"`
	Anomaly   string `json:"anomaly"`
}

type rule struct {
	verdict Verdict
	matches func(amount decimal.Decimal, channel string, branchID int) bool
}

func over(amount decimal.Decimal, limit int64) bool {
	return amount.GreaterThan(decimal.NewFromInt(limit))
}

// Order matters: the first matching rule decides.
var rules = []rule{
	{
		Verdict{98, true, "Very high transaction amount", "VERY_HIGH_AMOUNT"},
		func(a decimal.Decimal, _ string, _ int) bool {
			return a.GreaterThanOrEqual(decimal.NewFromInt(1_000_000))
		},
	},
	{
		Verdict{85, true, "UPI transaction exceeding normal limits", "UPI_LIMIT_BREACH"},
		func(a decimal.Decimal, ch string, _ int) bool { return ch == ChannelUPI && over(a, 100_000) },
	},
	{
		Verdict{75, true, "High value card transaction", "CARD_HIGH_VALUE"},
		func(a decimal.Decimal, ch string, _ int) bool { return ch == ChannelCard && over(a, 150_000) },
	},
	{
		Verdict{80, true, "Unusually large ATM withdrawal", "ATM_HIGH_WITHDRAWAL"},
		func(a decimal.Decimal, ch string, _ int) bool { return ch == ChannelATM && over(a, 50_000) },
	},
	{
		Verdict{70, true, "High value transaction from uncommon branch", "UNUSUAL_BRANCH_HIGH_VALUE"},
		func(a decimal.Decimal, _ string, b int) bool { return over(a, 300_000) && b > 50 },
	},
	{
		Verdict{60, false, "Moderately high digital transaction", "DIGITAL_CHANNEL_RISK"},
		func(a decimal.Decimal, ch string, _ int) bool {
			return (ch == ChannelUPI || ch == ChannelCard) && over(a, 75_000)
		},
	},
	{
		Verdict{65, true, "Large transaction from far-mapped branch", "BRANCH_DISTANCE_RISK"},
		func(a decimal.Decimal, _ string, b int) bool { return over(a, 200_000) && b > 100 },
	},
	{
		Verdict{55, false, "ATM usage approaching risky threshold", "ATM_BEHAVIOR_RISK"},
		func(a decimal.Decimal, ch string, _ int) bool { return ch == ChannelATM && over(a, 30_000) },
	},
	{
		Verdict{72, false, "High value transaction under monitoring", "HIGH_VALUE_MONITOR"},
		func(a decimal.Decimal, _ string, _ int) bool { return over(a, 250_000) },
	},
}

// Evaluate scores one transaction. It is pure: the same input always yields
// the same verdict.
func Evaluate(amount decimal.Decimal, channel string, branchID int) Verdict {
	v := Verdict{RiskScore: defaultScore, Reason: defaultReason, Anomaly: defaultAnomaly}

	for _, r := range rules {
		if r.matches(amount, channel, branchID) {
			v = r.verdict
			break
		}
	}

	v.RiskScore = min(max(v.RiskScore, 0), 100)

	return v
}
