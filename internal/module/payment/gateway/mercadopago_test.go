package gateway

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, srv *httptest.Server, mutate func(*Config)) *MercadoPago {
	t.Helper()
	cfg := Config{
		BaseURL:         srv.URL,
		AccessToken:     "test-token",
		NotificationURL: "https://payflow.example/v1/webhooks/mercadopago",
	}
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := NewMercadoPago(cfg, srv.Client(), nil, nil)
	require.NoError(t, err)
	return c
}

func preferenceRequest() *PreferenceRequest {
	return &PreferenceRequest{
		Title:             "Order #1",
		UnitPrice:         decimal.RequireFromString("100.50"),
		Currency:          "BRL",
		ExternalReference: "p1",
	}
}

func TestMercadoPago_CreatePreference(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/checkout/preferences", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &captured))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pref-1","init_point":"https://mp/checkout/pref-1","sandbox_init_point":"https://sandbox.mp/pref-1"}`))
	}))
	defer srv.Close()

	pref, err := newTestClient(t, srv, nil).CreatePreference(context.Background(), preferenceRequest())
	require.NoError(t, err)

	assert.Equal(t, "pref-1", pref.ReferenceID)
	assert.Equal(t, "https://mp/checkout/pref-1", pref.CheckoutURL)

	assert.Equal(t, "p1", captured["external_reference"])
	assert.Equal(t, "https://payflow.example/v1/webhooks/mercadopago", captured["notification_url"])
	items := captured["items"].([]any)
	require.Len(t, items, 1)
	item := items[0].(map[string]any)
	assert.Equal(t, "Order #1", item["title"])
	assert.Equal(t, float64(1), item["quantity"])
	assert.Equal(t, 100.5, item["unit_price"])
	assert.Equal(t, "BRL", item["currency_id"])
}

func TestMercadoPago_SandboxCheckout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"pref-1","init_point":"https://mp/1","sandbox_init_point":"https://sandbox.mp/1"}`))
	}))
	defer srv.Close()

	pref, err := newTestClient(t, srv, func(c *Config) { c.Sandbox = true }).
		CreatePreference(context.Background(), preferenceRequest())
	require.NoError(t, err)
	assert.Equal(t, "https://sandbox.mp/1", pref.CheckoutURL)
}

func TestMercadoPago_Errors(t *testing.T) {
	t.Run("non-2xx is unavailable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"message":"invalid"}`, http.StatusBadGateway)
		}))
		defer srv.Close()

		_, err := newTestClient(t, srv, nil).CreatePreference(context.Background(), preferenceRequest())
		assert.ErrorIs(t, err, ErrGatewayUnavailable)
	})

	t.Run("missing id is unavailable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"init_point":"https://mp/1"}`))
		}))
		defer srv.Close()

		_, err := newTestClient(t, srv, nil).CreatePreference(context.Background(), preferenceRequest())
		assert.ErrorIs(t, err, ErrGatewayUnavailable)
	})

	t.Run("circuit opens after consecutive failures", func(t *testing.T) {
		var hits int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&hits, 1)
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		client := newTestClient(t, srv, func(c *Config) { c.FailureThreshold = 2 })
		for i := 0; i < 4; i++ {
			_, err := client.CreatePreference(context.Background(), preferenceRequest())
			assert.ErrorIs(t, err, ErrGatewayUnavailable)
		}
		assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
	})
}

func TestNewMercadoPago_RequiresToken(t *testing.T) {
	_, err := NewMercadoPago(Config{}, nil, nil, nil)
	assert.Error(t, err)
}
