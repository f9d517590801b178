package incentive

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmcarvalho/transferflow-backend/internal/domain"
	"github.com/dmcarvalho/transferflow-backend/internal/platform/logger"
)

func testTransfer() domain.TransferRequest {
	return domain.TransferRequest{
		SenderID:    1,
		RecipientID: 2,
		Amount:      decimal.NewFromInt(30),
	}
}

func TestResolve_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var payload map[string]json.Number
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, json.Number("1"), payload["senderId"])
		assert.Equal(t, json.Number("2"), payload["recipientId"])
		assert.Equal(t, json.Number("30"), payload["amount"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"amount": 2}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second, logger.NewNop())

	incentive, err := client.Resolve(context.Background(), testTransfer())
	require.NoError(t, err)
	assert.True(t, incentive.Amount.Equal(decimal.NewFromInt(2)))
}

func TestResolve_ZeroIncentiveIsValid(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"amount": 0}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second, logger.NewNop())

	incentive, err := client.Resolve(context.Background(), testTransfer())
	require.NoError(t, err)
	assert.True(t, incentive.Amount.IsZero())
}

func TestResolve_NonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second, logger.NewNop())

	_, err := client.Resolve(context.Background(), testTransfer())
	require.Error(t, err)

	var incErr *domain.IncentiveError
	require.ErrorAs(t, err, &incErr)
	assert.Equal(t, domain.IncentiveBadResponse, incErr.Kind)
}

func TestResolve_MalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second, logger.NewNop())

	_, err := client.Resolve(context.Background(), testTransfer())
	require.Error(t, err)

	var incErr *domain.IncentiveError
	require.ErrorAs(t, err, &incErr)
	assert.Equal(t, domain.IncentiveBadResponse, incErr.Kind)
}

func TestResolve_NegativeAmount(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"amount": -3}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second, logger.NewNop())

	_, err := client.Resolve(context.Background(), testTransfer())
	require.Error(t, err)

	var incErr *domain.IncentiveError
	require.ErrorAs(t, err, &incErr)
	assert.Equal(t, domain.IncentiveBadResponse, incErr.Kind)
}

func TestResolve_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(300 * time.Millisecond)
		_, _ = w.Write([]byte(`{"amount": 1}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, 50*time.Millisecond, logger.NewNop())

	_, err := client.Resolve(context.Background(), testTransfer())
	require.Error(t, err)

	var incErr *domain.IncentiveError
	require.ErrorAs(t, err, &incErr)
	assert.Equal(t, domain.IncentiveTimeout, incErr.Kind)
}

func TestResolve_Unreachable(t *testing.T) {
	// Point at a closed port.
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	client := NewClient(url, time.Second, logger.NewNop())

	_, err := client.Resolve(context.Background(), testTransfer())
	require.Error(t, err)

	var incErr *domain.IncentiveError
	require.ErrorAs(t, err, &incErr)
	assert.Equal(t, domain.IncentiveUnreachable, incErr.Kind)
}

func TestResolve_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second, logger.NewNop())

	for i := 0; i < breakerConsecutiveFailures; i++ {
		_, err := client.Resolve(context.Background(), testTransfer())
		require.Error(t, err)
	}
	assert.Equal(t, int64(breakerConsecutiveFailures), hits.Load())

	// The circuit is open: the next call fails fast without hitting the
	// server and reports the resolver as unreachable.
	_, err := client.Resolve(context.Background(), testTransfer())
	require.Error(t, err)

	var incErr *domain.IncentiveError
	require.ErrorAs(t, err, &incErr)
	assert.Equal(t, domain.IncentiveUnreachable, incErr.Kind)
	assert.Equal(t, int64(breakerConsecutiveFailures), hits.Load())
}
