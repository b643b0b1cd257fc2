package payments

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-booking/internal/config"
)

func testP24Config(baseURL string) config.P24Config {
	return config.P24Config{
		MerchantID:  11111,
		PosID:       11111,
		APIKey:      "api-key",
		CRC:         "crc-secret",
		BaseURL:     baseURL,
		RedirectURL: "https://sandbox.przelewy24.pl/trnRequest",
		ReturnURL:   "https://gabinet.example.pl/payments/return",
		StatusURL:   "https://gabinet.example.pl/payments/status",
	}
}

func TestSigns(t *testing.T) {
	c := NewP24Client(testP24Config(""), nil)

	assert.Equal(t,
		"e4c051b2d4e17c26b7c78f1e27b333af3ea6cbcfa8c02a3fd69dbe796c0b880cff71e43f8941fd63a0eec430dda85186",
		c.RegisterSign("sess-1", 20000, "PLN"))
	assert.Equal(t,
		"1ffc4e38ded931efc7f8d76671ff70654a9502d76ebda3d70f4d583a5452bee458a1d1ec906d57422e590fab4db0a526",
		c.StatusSign("sess-1", "987654", 20000, "PLN"))
	assert.Equal(t, "https://sandbox.przelewy24.pl/trnRequest/TOKEN", c.RedirectURL("TOKEN"))
}

func TestP24ClientRegister(t *testing.T) {
	var got registerPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/transaction/register", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "11111", user)
		assert.Equal(t, "api-key", pass)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"data":{"token":"TOKEN-1"},"responseCode":0}`))
	}))
	defer srv.Close()

	c := NewP24Client(testP24Config(srv.URL), srv.Client())
	token, err := c.Register(context.Background(), RegisterRequest{
		SessionID: "sess-1", AmountMinor: 20000, Currency: "PLN", Description: "Wizyta 04.03.2026 09:00", Email: "jan@example.pl",
	})
	require.NoError(t, err)
	assert.Equal(t, "TOKEN-1", token)

	assert.Equal(t, 11111, got.MerchantID)
	assert.Equal(t, int64(20000), got.Amount)
	assert.Equal(t, "PL", got.Country)
	assert.Equal(t, "pl", got.Language)
	assert.Equal(t, "https://gabinet.example.pl/payments/status", got.URLStatus)
	assert.Equal(t, c.RegisterSign("sess-1", 20000, "PLN"), got.Sign)
}

func TestP24ClientErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/transaction/register" {
			_, _ = w.Write([]byte(`{"data":{}}`))
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"Invalid sign","code":400}`))
	}))
	defer srv.Close()

	c := NewP24Client(testP24Config(srv.URL), srv.Client())
	_, err := c.Register(context.Background(), RegisterRequest{SessionID: "s", AmountMinor: 1, Currency: "PLN"})
	assert.ErrorIs(t, err, ErrGateway)

	err = c.Verify(context.Background(), VerifyRequest{SessionID: "s", OrderID: 1, AmountMinor: 1, Currency: "PLN"})
	assert.ErrorIs(t, err, ErrGateway)
}

func TestP24ClientVerify(t *testing.T) {
	var got verifyPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/v1/transaction/verify", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"data":{"status":"success"},"responseCode":0}`))
	}))
	defer srv.Close()

	c := NewP24Client(testP24Config(srv.URL), srv.Client())
	require.NoError(t, c.Verify(context.Background(), VerifyRequest{SessionID: "sess-1", OrderID: 987654, AmountMinor: 20000, Currency: "PLN"}))
	assert.Equal(t, int64(987654), got.OrderID)
	assert.Equal(t, c.StatusSign("sess-1", "987654", 20000, "PLN"), got.Sign)
}
