package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeliver_Signed(t *testing.T) {
	var (
		gotBody []byte
		gotSig  string
		gotUA   string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSig = r.Header.Get(SignatureHeader)
		gotUA = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	ev := NewEvent(EventRunCompleted, "run-1", map[string]int{"succeeded": 2})
	require.NoError(t, Deliver(context.Background(), srv.URL, "s3cret", ev))

	assert.Equal(t, "Perkins-Webhook/1.0", gotUA)
	assert.Equal(t, "sha256="+Sign("s3cret", gotBody), gotSig)

	var decoded Event
	require.NoError(t, json.Unmarshal(gotBody, &decoded))
	assert.Equal(t, EventRunCompleted, decoded.Type)
	assert.Equal(t, "run-1", decoded.RunID)
}

func TestDeliver_Unsigned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get(SignatureHeader))
	}))
	defer srv.Close()

	require.NoError(t, Deliver(context.Background(), srv.URL, "", NewEvent(EventRunCompleted, "r", nil)))
}

func TestDeliver_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := Deliver(context.Background(), srv.URL, "", NewEvent(EventRunCompleted, "r", nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestDeliverWithRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	delays := []time.Duration{0, time.Millisecond, time.Millisecond}
	require.NoError(t, deliverWithRetry(srv.URL, "", NewEvent(EventRunCompleted, "r", nil), delays))
	assert.Equal(t, int32(3), calls.Load())
}

func TestDeliverWithRetry_Exhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := deliverWithRetry(srv.URL, "", NewEvent(EventRunCompleted, "r", nil), []time.Duration{0, 0})
	assert.Error(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestMaxDeliveryTime(t *testing.T) {
	// 0+1+5+30s of delays and four 10s attempts.
	assert.Equal(t, 76*time.Second, MaxDeliveryTime())
}

func TestDeliverAsync(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	select {
	case err := <-DeliverAsync(srv.URL, "k", NewEvent(EventRunCompleted, "r", nil)):
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("async delivery did not finish")
	}
}
