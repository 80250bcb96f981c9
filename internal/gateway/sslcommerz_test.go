package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Zannatul-Fahmida/e-commerce-core/internal/config"
)

func testClient(baseURL string) *Client {
	cfg := config.Config{
		Gateway: config.Gateway{
			StoreID:       "teststore",
			StorePassword: "testpass",
			BaseURL:       baseURL,
			Timeout:       5 * time.Second,
		},
		Checkout: config.Checkout{
			PublicBaseURL: "https://shop.example.com",
			SuccessPage:   "/success",
			CancelPage:    "/cancel",
		},
	}
	return NewClient(cfg, zap.NewNop())
}

func sessionRequest() SessionRequest {
	return SessionRequest{
		TranID:        "TXN-1",
		Amount:        decimal.NewFromInt(1500),
		Currency:      "BDT",
		ProductID:     "3f2c1f9e-0000-0000-0000-000000000001",
		ProductName:   "Cart Checkout - 2 items",
		OrderID:       "3f2c1f9e-0000-0000-0000-000000000002",
		CustomerName:  "Test Customer",
		CustomerEmail: "test@example.com",
		CustomerPhone: "01700000000",
	}
}

func TestCreateSessionSendsFullForm(t *testing.T) {
	var form url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/gwprocess/v4/api.php", r.URL.Path)
		require.NoError(t, r.ParseForm())
		form = r.PostForm
		w.Write([]byte(`{"status":"SUCCESS","GatewayPageURL":"https://sandbox.sslcommerz.com/EasyCheckOut/x"}`))
	}))
	defer srv.Close()

	sess, err := testClient(srv.URL).CreateSession(context.Background(), sessionRequest())
	require.NoError(t, err)
	assert.Equal(t, "https://sandbox.sslcommerz.com/EasyCheckOut/x", sess.RedirectURL)
	assert.Equal(t, "TXN-1", sess.TransactionID)

	assert.Equal(t, "teststore", form.Get("store_id"))
	assert.Equal(t, "testpass", form.Get("store_passwd"))
	assert.Equal(t, "1500", form.Get("total_amount"))
	assert.Equal(t, "BDT", form.Get("currency"))
	assert.Equal(t, "TXN-1", form.Get("tran_id"))
	assert.Equal(t, "https://shop.example.com/payment/success", form.Get("success_url"))
	assert.Equal(t, "https://shop.example.com/payment/fail", form.Get("fail_url"))
	assert.Equal(t, "https://shop.example.com/payment/ipn", form.Get("ipn_url"))
	// Cancel goes straight back to the storefront page, not a callback.
	assert.Equal(t, "https://shop.example.com/cancel", form.Get("cancel_url"))
	assert.Equal(t, "3f2c1f9e-0000-0000-0000-000000000001", form.Get("value_a"))
	assert.Equal(t, "3f2c1f9e-0000-0000-0000-000000000002", form.Get("value_b"))
	assert.Equal(t, "Test Customer", form.Get("cus_name"))
}

func TestCreateSessionRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"FAILED","failedreason":"store credential error"}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).CreateSession(context.Background(), sessionRequest())
	assert.ErrorIs(t, err, ErrSessionRejected)
	assert.Contains(t, err.Error(), "store credential error")
}

func TestCreateSessionFailsClosedOnMissingRedirect(t *testing.T) {
	// A SUCCESS status without a redirect URL is still a rejection.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"SUCCESS","GatewayPageURL":""}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).CreateSession(context.Background(), sessionRequest())
	assert.ErrorIs(t, err, ErrSessionRejected)
}

func TestCreateSessionTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	_, err := testClient(srv.URL).CreateSession(context.Background(), sessionRequest())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSessionRejected)
}

func TestCreateSessionMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>gateway down</html>`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).CreateSession(context.Background(), sessionRequest())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSessionRejected)
}
