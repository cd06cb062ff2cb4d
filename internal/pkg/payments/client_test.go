package payments

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(baseURL string) *Client {
	c := NewClient(baseURL, "cst_test_key")
	// Keep tests fast; the schedule length (attempt count) is what matters.
	c.backoff = []time.Duration{time.Millisecond, time.Millisecond}
	return c
}

func TestClientVerifyPaymentSuccess(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "/api/v1/payments/verify", r.URL.Path)
		assert.Equal(t, "cst_test_key", r.Header.Get("X-API-Key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"applied","state":"done","credits_applied":10}`))
	}))
	defer srv.Close()

	result, err := newTestClient(srv.URL).VerifyPayment(context.Background(), "cs_123")
	require.NoError(t, err)
	assert.Equal(t, StatusApplied, result.Status)
	assert.Equal(t, int64(10), result.CreditsApplied)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClientRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"status":"applied","state":"done"}`))
	}))
	defer srv.Close()

	result, err := newTestClient(srv.URL).VerifyPayment(context.Background(), "cs_123")
	require.NoError(t, err)
	assert.Equal(t, StatusApplied, result.Status)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClientGivesUpAfterSchedule(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).VerifyPayment(context.Background(), "cs_123")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "please try again")
	// 1 initial attempt + 2 retries.
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).VerifyPayment(context.Background(), "cs_123")
	require.Error(t, err)

	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.False(t, apiErr.Transient())
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClientHonorsContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	c.backoff = []time.Duration{time.Hour}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.VerifyPayment(ctx, "cs_123")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAPIErrorTransientClassification(t *testing.T) {
	assert.True(t, (&APIError{StatusCode: 500}).Transient())
	assert.True(t, (&APIError{StatusCode: 503}).Transient())
	assert.False(t, (&APIError{StatusCode: 400}).Transient())
	assert.False(t, (&APIError{StatusCode: 404}).Transient())
	assert.False(t, (&APIError{StatusCode: 429}).Transient())
}
