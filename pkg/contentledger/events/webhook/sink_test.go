package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/content-ledger/pkg/contentledger"
	"go.uber.org/atomic"
)

func newSink(t *testing.T, url string) *Sink {
	t.Helper()
	sink, err := New(Config{
		URL:          url,
		RetryMax:     2,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: 5 * time.Millisecond,
	})
	require.NoError(t, err)
	return sink
}

func TestNew_RequiresURL(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestSink_Publish(t *testing.T) {
	var received contentledger.Event
	var kindHeader, contentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		kindHeader = r.Header.Get("X-Ledger-Event")
		contentType = r.Header.Get("Content-Type")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	event := contentledger.SomethingStoredEvent(7, "alice")
	event.Sequence = 3
	require.NoError(t, newSink(t, server.URL).Publish(context.Background(), event))

	assert.Equal(t, event, received)
	assert.Equal(t, "something_stored", kindHeader)
	assert.Equal(t, "application/json", contentType)
}

func TestSink_RetriesServerErrors(t *testing.T) {
	calls := atomic.NewInt32(0)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Inc() < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	require.NoError(t, newSink(t, server.URL).Publish(context.Background(), contentledger.SomethingStoredEvent(1, "alice")))
	assert.Equal(t, int32(3), calls.Load())
}

func TestSink_Failures(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantCalls int32
	}{
		{name: "client error is not retried", status: http.StatusBadRequest, wantCalls: 1},
		{name: "server error gives up", status: http.StatusInternalServerError, wantCalls: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := atomic.NewInt32(0)
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Inc()
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			err := newSink(t, server.URL).Publish(context.Background(), contentledger.SomethingStoredEvent(1, "alice"))
			assert.Error(t, err)
			assert.Equal(t, tt.wantCalls, calls.Load())
		})
	}
}
