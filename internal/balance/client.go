package balance

import (
	"context"
	"net/http"

	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/httpx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Client reaches a remote Balance Authority.
type Client struct {
	http *httpx.Client
}

// NewClient wraps an httpx.Client pointed at the Balance Authority.
func NewClient(c *httpx.Client) *Client {
	return &Client{http: c}
}

func (c *Client) GetAccount(ctx context.Context, id uuid.UUID) (Account, error) {
	var account Account
	if err := c.http.Do(ctx, http.MethodGet, "/v1/accounts/"+id.String(), nil, &account); err != nil {
		return Account{}, err
	}

	return account, nil
}

func (c *Client) AdjustBalance(ctx context.Context, id uuid.UUID, delta decimal.Decimal) (Account, error) {
	var account Account
	if err := c.http.Do(ctx, http.MethodPost, "/v1/accounts/"+id.String()+"/adjust-balance",
		AdjustBalanceRequest{Delta: delta}, &account); err != nil {
		return Account{}, err
	}

	return account, nil
}
