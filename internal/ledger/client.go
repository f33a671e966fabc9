package ledger

import (
	"context"
	"net/http"

	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/httpx"
)

// Client reaches a remote Ledger Recorder.
type Client struct {
	http *httpx.Client
}

// NewClient wraps an httpx.Client pointed at the Ledger Recorder.
func NewClient(c *httpx.Client) *Client {
	return &Client{http: c}
}

func (c *Client) Record(ctx context.Context, in RecordInput) (RecordResult, error) {
	var res RecordResult
	if err := c.http.Do(ctx, http.MethodPost, "/v1/ledger/record", in, &res); err != nil {
		return RecordResult{}, err
	}

	return res, nil
}
