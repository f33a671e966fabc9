package fraud

import (
	"context"
	"net/http"

	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/httpx"
)

// Client reaches a remote Fraud Scorer.
type Client struct {
	http *httpx.Client
}

var _ Checker = (*Client)(nil)

// NewClient wraps an httpx.Client pointed at the Fraud Scorer.
func NewClient(c *httpx.Client) *Client {
	return &Client{http: c}
}

func (c *Client) Check(ctx context.Context, in CheckInput) (Alert, error) {
	var alert Alert
	if err := c.http.Do(ctx, http.MethodPost, "/v1/fraud/check", in, &alert); err != nil {
		return Alert{}, err
	}

	return alert, nil
}
