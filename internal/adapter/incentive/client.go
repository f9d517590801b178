// Package incentive implements the HTTP client for the external incentive
// service. The service is untrusted: calls are bounded by a timeout, wrapped
// in a circuit breaker so a dead resolver fails fast, and every failure mode
// (unreachable, timeout, bad response) is surfaced as a typed error; the
// incentive is never silently defaulted.
package incentive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"

	"github.com/dmcarvalho/transferflow-backend/internal/domain"
	"github.com/dmcarvalho/transferflow-backend/internal/platform/logger"
)

const (
	defaultTimeout = 3 * time.Second

	// breakerConsecutiveFailures is the consecutive-failure count that
	// opens the circuit.
	breakerConsecutiveFailures = 5

	// breakerOpenInterval is how long the circuit stays open before
	// allowing a probe request.
	breakerOpenInterval = 30 * time.Second

	maxResponseBytes = 1 << 20
)

// Client calls the incentive service over HTTP POST.
type Client struct {
	url     string
	timeout time.Duration
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	log     *logger.Logger
}

// NewClient creates an incentive client for the given endpoint. A
// non-positive timeout falls back to the default.
func NewClient(url string, timeout time.Duration, log *logger.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	settings := gobreaker.Settings{
		Name:    "incentive-resolver",
		Timeout: breakerOpenInterval,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warnw("incentive circuit breaker state change",
				"breaker", name, "from", from.String(), "to", to.String())
		},
	}

	return &Client{
		url:     url,
		timeout: timeout,
		http:    &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(settings),
		log:     log,
	}
}

// incentivePayload is the outbound wire shape. Amount is emitted as a bare
// JSON number regardless of the decimal marshalling mode.
type incentivePayload struct {
	SenderID    int64       `json:"senderId"`
	RecipientID int64       `json:"recipientId"`
	Amount      json.Number `json:"amount"`
}

// incentiveResponse is the expected response body.
type incentiveResponse struct {
	Amount decimal.Decimal `json:"amount"`
}

// Resolve POSTs the transfer to the incentive service and returns the
// computed incentive. Implements domain.IncentiveResolver.
func (c *Client) Resolve(ctx context.Context, req domain.TransferRequest) (domain.Incentive, error) {
	result, err := c.breaker.Execute(func() (any, error) {
		return c.fetch(ctx, req)
	})
	if err != nil {
		return domain.Incentive{}, c.classify(err)
	}

	return result.(domain.Incentive), nil
}

func (c *Client) fetch(ctx context.Context, transfer domain.TransferRequest) (domain.Incentive, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload := incentivePayload{
		SenderID:    transfer.SenderID,
		RecipientID: transfer.RecipientID,
		Amount:      json.Number(transfer.Amount.String()),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return domain.Incentive{}, fmt.Errorf("marshal incentive request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return domain.Incentive{}, fmt.Errorf("build incentive request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return domain.Incentive{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.Incentive{}, &badResponseError{
			reason: fmt.Sprintf("unexpected status %d", resp.StatusCode),
		}
	}

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return domain.Incentive{}, err
	}

	var parsed incentiveResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return domain.Incentive{}, &badResponseError{
			reason: fmt.Sprintf("malformed response body: %v", err),
		}
	}

	if parsed.Amount.IsNegative() {
		return domain.Incentive{}, &badResponseError{
			reason: fmt.Sprintf("negative incentive amount %s", parsed.Amount),
		}
	}

	return domain.Incentive{Amount: parsed.Amount}, nil
}

// badResponseError marks a reachable resolver that returned unusable data.
type badResponseError struct {
	reason string
}

func (e *badResponseError) Error() string {
	return "incentive service " + e.reason
}

// classify maps transport, breaker and response errors onto the domain's
// incentive failure kinds.
func (c *Client) classify(err error) error {
	var bad *badResponseError
	if errors.As(err, &bad) {
		return domain.NewIncentiveError(domain.IncentiveBadResponse, err)
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return domain.NewIncentiveError(domain.IncentiveUnreachable, err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return domain.NewIncentiveError(domain.IncentiveTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.NewIncentiveError(domain.IncentiveTimeout, err)
	}

	return domain.NewIncentiveError(domain.IncentiveUnreachable, err)
}
