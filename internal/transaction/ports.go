package transaction

import (
	"context"

	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/balance"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/fraud"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/ledger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BalanceAuthority owns account balances. balance.Service and balance.Client
// both satisfy it.
type BalanceAuthority interface {
	GetAccount(ctx context.Context, id uuid.UUID) (balance.Account, error)
	AdjustBalance(ctx context.Context, id uuid.UUID, delta decimal.Decimal) (balance.Account, error)
}

// LedgerRecorder posts the double entry of a completed movement.
type LedgerRecorder interface {
	Record(ctx context.Context, in ledger.RecordInput) (ledger.RecordResult, error)
}

// FraudNotifier receives completed movements for scoring. It must not block.
type FraudNotifier interface {
	Notify(ctx context.Context, in fraud.CheckInput)
}

var (
	_ BalanceAuthority = (*balance.Service)(nil)
	_ BalanceAuthority = (*balance.Client)(nil)
	_ LedgerRecorder   = (*ledger.Service)(nil)
	_ LedgerRecorder   = (*ledger.Client)(nil)
	_ FraudNotifier    = (*fraud.Dispatcher)(nil)
)
