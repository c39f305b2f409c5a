package fetcher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Success bool   `json:"success"`
	Name    string `json:"name"`
}

func newClient(url string) *Client {
	return New(StaticBaseURL(url), time.Second, DefaultBreakerConfig())
}

func TestClient_Get(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr error
		want    payload
	}{
		{
			name: "ok",
			handler: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/promotions/active", r.URL.Path)
				_, _ = w.Write([]byte(`{"success":true,"name":"x"}`))
			},
			want: payload{Success: true, Name: "x"},
		},
		{
			name: "non-2xx",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
			wantErr: ErrStatus,
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`<html>oops</html>`))
			},
			wantErr: ErrDecode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(tt.handler)
			defer ts.Close()

			var got payload
			err := newClient(ts.URL).Get(context.Background(), "/promotions/active", &got)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClient_StatusErrorCode(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	err := newClient(ts.URL).Get(context.Background(), "/features", nil)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.Code)
}

func TestClient_TransportFailure(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	err := newClient(url).Get(context.Background(), "/features", nil)
	assert.ErrorIs(t, err, ErrTransport)
}

func TestClient_Post(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		_ = json.NewEncoder(w).Encode(payload{Success: true, Name: in["name"]})
	}))
	defer ts.Close()

	var got payload
	err := newClient(ts.URL).Post(context.Background(), "echo", map[string]string{"name": "voucher"}, &got)
	require.NoError(t, err)
	assert.Equal(t, "voucher", got.Name)
}

func TestClient_BreakerOpensOnServerErrors(t *testing.T) {
	calls := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	bc := DefaultBreakerConfig()
	bc.FailureThreshold = 2
	c := New(StaticBaseURL(ts.URL), time.Second, bc)

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, c.Get(context.Background(), "/features", nil), ErrStatus)
	}
	assert.Equal(t, gobreaker.StateOpen, c.BreakerState())

	err := c.Get(context.Background(), "/features", nil)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 2, calls)
}

func TestClient_ClientErrorsKeepBreakerClosed(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	bc := DefaultBreakerConfig()
	bc.FailureThreshold = 1
	c := New(StaticBaseURL(ts.URL), time.Second, bc)

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, c.Get(context.Background(), "/features", nil), ErrStatus)
	}
	assert.Equal(t, gobreaker.StateClosed, c.BreakerState())
}

type switchingBase struct{ url string }

func (s *switchingBase) BaseURL(context.Context) string { return s.url }

func TestClient_ResolvesBaseURLPerCall(t *testing.T) {
	a := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"name":"a"}`))
	}))
	defer a.Close()
	b := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"name":"b"}`))
	}))
	defer b.Close()

	base := &switchingBase{url: a.URL + "/"}
	c := New(base, time.Second, DefaultBreakerConfig())

	var got payload
	require.NoError(t, c.Get(context.Background(), "/x", &got))
	assert.Equal(t, "a", got.Name)

	base.url = b.URL
	require.NoError(t, c.Get(context.Background(), "/x", &got))
	assert.Equal(t, "b", got.Name)
}

func TestClient_CancelledCallersKeepBreakerClosed(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"name":"ok"}`))
	}))
	defer ts.Close()

	c := newClient(ts.URL)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < 5; i++ {
		err := c.Get(ctx, "/promotions/active", nil)
		assert.ErrorIs(t, err, ErrTransport)
		assert.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, gobreaker.StateClosed, c.BreakerState())

	var got payload
	require.NoError(t, c.Get(context.Background(), "/promotions/active", &got))
	assert.Equal(t, "ok", got.Name)
}
