package transaction

import (
	"context"
	"net/http"
	"net/url"

	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/httpx"
)

// Client reaches a remote Orchestrator.
type Client struct {
	http *httpx.Client
}

// NewClient wraps an httpx.Client pointed at the Orchestrator.
func NewClient(c *httpx.Client) *Client {
	return &Client{http: c}
}

func (c *Client) Debit(ctx context.Context, in DebitInput) (*Transaction, error) {
	return c.post(ctx, "/v1/transactions/debit", in)
}

func (c *Client) Credit(ctx context.Context, in CreditInput) (*Transaction, error) {
	return c.post(ctx, "/v1/transactions/credit", in)
}

func (c *Client) Transfer(ctx context.Context, in TransferInput) (*Transaction, error) {
	return c.post(ctx, "/v1/transactions/transfer", in)
}

// GetByIdempotencyKey lets callers recover the record of a failed saga.
func (c *Client) GetByIdempotencyKey(ctx context.Context, key string) (*Transaction, error) {
	var tx Transaction
	if err := c.http.Do(ctx, http.MethodGet, "/v1/transactions/idempotency/"+url.PathEscape(key), nil, &tx); err != nil {
		return nil, err
	}

	return &tx, nil
}

func (c *Client) post(ctx context.Context, path string, in any) (*Transaction, error) {
	var tx Transaction
	if err := c.http.Do(ctx, http.MethodPost, path, in, &tx); err != nil {
		return nil, err
	}

	return &tx, nil
}
