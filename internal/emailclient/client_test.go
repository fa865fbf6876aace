package emailclient_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heraldhq/herald/internal/backoff"
	"github.com/heraldhq/herald/internal/emailclient"
	"github.com/heraldhq/herald/internal/util/testutil"
)

func fastClient(t *testing.T, baseURL string, opts ...emailclient.ClientOption) *emailclient.Client {
	t.Helper()
	base := []emailclient.ClientOption{
		emailclient.WithBackoff(&backoff.ConstantBackoff{Interval: time.Millisecond}),
		emailclient.WithAttemptTimeout(2 * time.Second),
	}
	return emailclient.New(baseURL, testutil.CreateTestLogger(t), append(base, opts...)...)
}

func TestClient_Send(t *testing.T) {
	t.Parallel()

	t.Run("posts payload and succeeds", func(t *testing.T) {
		t.Parallel()

		var gotBody map[string]string
		var gotContentType string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			require.Equal(t, "/send-email", r.URL.Path)
			gotContentType = r.Header.Get("Content-Type")
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		client := fastClient(t, server.URL)
		err := client.Send(context.Background(), "john.doe@example.com", "Hey, John Doe it's your birthday")
		require.NoError(t, err)

		assert.Equal(t, "application/json", gotContentType)
		assert.Equal(t, map[string]string{
			"email":   "john.doe@example.com",
			"message": "Hey, John Doe it's your birthday",
		}, gotBody)

		snap := client.Metrics().Snapshot()
		assert.Equal(t, int64(1), snap.TotalAttempts)
		assert.Equal(t, int64(1), snap.SuccessCount)
		assert.Equal(t, int64(0), snap.FailureCount)
	})

	t.Run("retries transient failures then succeeds", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) <= 2 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		client := fastClient(t, server.URL)
		err := client.Send(context.Background(), "john.doe@example.com", "hello")
		require.NoError(t, err)
		assert.Equal(t, int32(3), calls.Load())

		snap := client.Metrics().Snapshot()
		assert.Equal(t, int64(3), snap.TotalAttempts)
		assert.Equal(t, int64(1), snap.SuccessCount)
		// Streak resets on success.
		assert.Equal(t, int64(0), snap.FailureCount)
	})

	t.Run("gives up after retry budget", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		client := fastClient(t, server.URL, emailclient.WithMaxRetries(2))
		err := client.Send(context.Background(), "john.doe@example.com", "hello")

		var statusErr *emailclient.StatusError
		require.ErrorAs(t, err, &statusErr)
		assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
		// Initial attempt plus two retries.
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("terminal status fails without retrying", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadRequest)
		}))
		defer server.Close()

		client := fastClient(t, server.URL)
		err := client.Send(context.Background(), "john.doe@example.com", "hello")

		var statusErr *emailclient.StatusError
		require.ErrorAs(t, err, &statusErr)
		assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("in-flight attempt survives cancellation", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		// The attempt already underway runs on its own deadline; only the
		// retry boundary observes the caller's cancellation.
		client := fastClient(t, server.URL)
		require.NoError(t, client.Send(ctx, "john.doe@example.com", "hello"))
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("cancellation stops at retry boundary", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		client := fastClient(t, server.URL, emailclient.WithMaxRetries(3))
		err := client.Send(ctx, "john.doe@example.com", "hello")
		require.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("counts timeouts", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
		}))
		defer server.Close()

		client := fastClient(t, server.URL,
			emailclient.WithAttemptTimeout(50*time.Millisecond),
			emailclient.WithMaxRetries(1))
		err := client.Send(context.Background(), "john.doe@example.com", "hello")
		require.Error(t, err)

		snap := client.Metrics().Snapshot()
		assert.Equal(t, int64(2), snap.TimeoutCount)
	})
}

func TestClient_CircuitBreaker(t *testing.T) {
	t.Parallel()

	t.Run("opens after consecutive failures and short-circuits", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		client := fastClient(t, server.URL,
			emailclient.WithMaxRetries(0),
			emailclient.WithBreakerSettings(3, time.Minute))

		for i := 0; i < 3; i++ {
			err := client.Send(context.Background(), "john.doe@example.com", "hello")
			var statusErr *emailclient.StatusError
			require.ErrorAs(t, err, &statusErr)
		}
		require.Equal(t, int32(3), calls.Load())

		// Breaker is open now; the remote must not be contacted again.
		err := client.Send(context.Background(), "john.doe@example.com", "hello")
		require.ErrorIs(t, err, emailclient.ErrBreakerOpen)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("half-open probe closes the breaker on success", func(t *testing.T) {
		t.Parallel()

		var fail atomic.Bool
		fail.Store(true)
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			if fail.Load() {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		client := fastClient(t, server.URL,
			emailclient.WithMaxRetries(0),
			emailclient.WithBreakerSettings(2, 50*time.Millisecond))

		for i := 0; i < 2; i++ {
			require.Error(t, client.Send(context.Background(), "john.doe@example.com", "hello"))
		}
		require.ErrorIs(t, client.Send(context.Background(), "john.doe@example.com", "hello"),
			emailclient.ErrBreakerOpen)

		fail.Store(false)
		time.Sleep(100 * time.Millisecond)

		require.NoError(t, client.Send(context.Background(), "john.doe@example.com", "hello"))
		require.NoError(t, client.Send(context.Background(), "john.doe@example.com", "hello"))
		assert.Equal(t, int32(4), calls.Load())
	})
}

func TestRetryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"server error", &emailclient.StatusError{StatusCode: 500}, true},
		{"bad gateway", &emailclient.StatusError{StatusCode: 502}, true},
		{"request timeout", &emailclient.StatusError{StatusCode: 408}, true},
		{"too many requests", &emailclient.StatusError{StatusCode: 429}, true},
		{"bad request", &emailclient.StatusError{StatusCode: 400}, false},
		{"not found", &emailclient.StatusError{StatusCode: 404}, false},
		{"unprocessable", &emailclient.StatusError{StatusCode: 422}, false},
		{"transport error", errors.New("connection refused"), true},
		{"deadline", context.DeadlineExceeded, true},
		{"breaker open", emailclient.ErrBreakerOpen, true},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, emailclient.Retryable(tc.err))
		})
	}
}

func TestClassification(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "success", emailclient.Classification(nil))
	assert.Equal(t, "breaker_open", emailclient.Classification(emailclient.ErrBreakerOpen))
	assert.Equal(t, "timeout", emailclient.Classification(context.DeadlineExceeded))
	assert.Equal(t, "transient", emailclient.Classification(&emailclient.StatusError{StatusCode: 503}))
	assert.Equal(t, "terminal", emailclient.Classification(&emailclient.StatusError{StatusCode: 400}))
}
