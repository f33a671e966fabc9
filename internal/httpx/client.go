package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/apperr"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/circuitbreaker"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/tracking"
)

// ErrBadStatus is wrapped when a remote service answers with an error body
// that is not part of the corebank catalogue.
var ErrBadStatus = errors.New("unexpected response status")

const maxErrorBody = 64 << 10

// Client calls another corebank service over JSON, guarded by a circuit
// breaker named after the service.
type Client struct {
	name     string
	baseURL  string
	http     *http.Client
	breakers *circuitbreaker.Manager
}

// NewClient builds a Client for the service reachable at baseURL.
func NewClient(name, baseURL string, timeout time.Duration, breakers *circuitbreaker.Manager) *Client {
	if breakers == nil {
		breakers = circuitbreaker.NewManager(nil)
	}

	return &Client{
		name:     name,
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: timeout},
		breakers: breakers,
	}
}

// Do sends in (if not nil) as the JSON body and decodes a 2xx response into
// out (if not nil).
//
// Catalogued error responses come back as the matching apperr sentinel so
// callers can errors.Is them across the wire. Transport failures, 5xx answers
// without a catalogued code and open breakers all wrap
// apperr.ErrDownstreamUnavailable.
func (c *Client) Do(ctx context.Context, method, path string, in, out any) error {
	var body []byte

	if in != nil {
		var err error

		body, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", c.name, err)
		}
	}

	_, err := c.breakers.Execute(c.name, func() (any, error) {
		return nil, c.do(ctx, method, path, body, out)
	})
	if err == nil {
		return nil
	}

	if errors.Is(err, circuitbreaker.ErrUnavailable) {
		return fmt.Errorf("%w: %w", apperr.ErrDownstreamUnavailable, err)
	}

	if errors.Is(err, apperr.ErrDownstreamUnavailable) || !isTransport(err) {
		return err
	}

	return fmt.Errorf("%w: %s %s: %w", apperr.ErrDownstreamUnavailable, c.name, path, err)
}

type transportError struct {
	err error
}

func (e *transportError) Error() string { return e.err.Error() }

func (e *transportError) Unwrap() error { return e.err }

func isTransport(err error) bool {
	var te *transportError

	return errors.As(err, &te)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build %s request: %w", c.name, err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	_, _, requestID, _ := tracking.NewTrackingFromContext(ctx)
	req.Header.Set(HeaderRequestID, requestID)
	tracking.InjectHTTPContext(ctx, req.Header)

	resp, err := c.http.Do(req)
	if err != nil {
		return &transportError{err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			_, _ = io.Copy(io.Discard, resp.Body)

			return nil
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &transportError{err: fmt.Errorf("decode %s response: %w", c.name, err)}
		}

		return nil
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var rb apperr.Response
	if err := json.Unmarshal(raw, &rb); err == nil && rb.Code != "" {
		if sentinel := apperr.FromCode(rb.Code); sentinel != nil {
			if sentinel == apperr.ErrDownstreamUnavailable {
				return fmt.Errorf("%w: %s: %s", sentinel, c.name, rb.Message)
			}

			if errors.Is(sentinel, apperr.ErrValidation) {
				return circuitbreaker.Ignore(apperr.DomainError{Code: rb.Code, Field: rb.Field, Message: rb.Message})
			}

			return circuitbreaker.Ignore(fmt.Errorf("%s: %s: %w", c.name, rb.Message, sentinel))
		}
	}

	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: %s answered %d", apperr.ErrDownstreamUnavailable, c.name, resp.StatusCode)
	}

	return circuitbreaker.Ignore(fmt.Errorf("%w: %s answered %d", ErrBadStatus, c.name, resp.StatusCode))
}
