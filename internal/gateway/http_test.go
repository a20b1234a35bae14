package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, handler func(w http.ResponseWriter, req Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req Request
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		assert.NotEmpty(t, r.Header.Get("X-Request-Id"))
		handler(w, req)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClientDeleteEvent(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, req Request) {
		assert.Equal(t, DeleteEvent, req.Action)
		assert.Equal(t, "secret", req.Token)
		assert.Equal(t, "ev-1", req.EventID)
		assert.Nil(t, req.Payload)
		_, _ = w.Write([]byte(`{"ok":true,"deleted":false}`))
	})

	ack, err := NewClient(srv.URL, time.Second).DeleteEvent(context.Background(), "secret", "ev-1")

	require.NoError(t, err)
	assert.True(t, ack.OK)
	assert.True(t, ack.AlreadyAbsent())
}

func TestClientUpdateEventSendsPayload(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, req Request) {
		assert.Equal(t, UpdateEvent, req.Action)
		if assert.NotNil(t, req.Payload) {
			assert.Equal(t, "Dentist", req.Payload.Title)
		}
		_, _ = w.Write([]byte(`{"ok":true,"fileId":"f-9"}`))
	})

	ack, err := NewClient(srv.URL, time.Second).UpdateEvent(context.Background(), "t", "ev-1", EventPayload{Title: "Dentist"})

	require.NoError(t, err)
	assert.True(t, ack.OK)
	assert.Equal(t, "f-9", ack.FileID)
	assert.False(t, ack.AlreadyAbsent())
}

func TestClientReportedFailures(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		reason string
	}{
		{"ok false", http.StatusOK, `{"ok":false,"error":"bad token"}`, "bad token"},
		{"server error with reason", http.StatusInternalServerError, `{"ok":false,"error":"quota"}`, "quota"},
		{"server error without body", http.StatusBadGateway, `<html>`, "syncNow: 502 Bad Gateway"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := newServer(t, func(w http.ResponseWriter, _ Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})

			ack, err := NewClient(srv.URL, time.Second).SyncNow(context.Background(), "t")

			require.NoError(t, err)
			assert.False(t, ack.OK)
			assert.Equal(t, tc.reason, ack.Error)
		})
	}
}

func TestClientTransportFailures(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, _ Request) {
		_, _ = w.Write([]byte("<html>moved</html>"))
	})
	_, err := NewClient(srv.URL, time.Second).SyncNow(context.Background(), "t")
	assert.True(t, errors.Is(err, ErrTransport))

	closed := httptest.NewServer(http.NotFoundHandler())
	closed.Close()
	_, err = NewClient(closed.URL, time.Second).DeleteEvent(context.Background(), "t", "ev")
	assert.True(t, errors.Is(err, ErrTransport))
}

func TestClientFallbackPostsSameBody(t *testing.T) {
	var calls atomic.Int32
	srv := newServer(t, func(w http.ResponseWriter, req Request) {
		calls.Add(1)
		assert.Equal(t, DeleteEvent, req.Action)
		assert.Equal(t, "ev-2", req.EventID)
		w.WriteHeader(http.StatusTeapot)
	})

	NewClient(srv.URL, time.Second).Fallback(context.Background(), DeleteRequest("t", "ev-2"))

	assert.Equal(t, int32(1), calls.Load())
}
