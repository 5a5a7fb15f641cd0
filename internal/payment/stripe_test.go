package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

const testWebhookSecret = "whsec_test"

func newTestStripeClient(serverURL string) *StripeClient {
	return NewStripeClient(serverURL, "sk_test", testWebhookSecret, 5*time.Second)
}

func stripeSign(t *testing.T, secret string, ts time.Time, body []byte) string {
	t.Helper()
	timestamp := fmt.Sprintf("%d", ts.Unix())
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + "."))
	mac.Write(body)
	return fmt.Sprintf("t=%s,v1=%s", timestamp, hex.EncodeToString(mac.Sum(nil)))
}

func TestStripeClient_CreateOrder(t *testing.T) {
	var gotForm map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payment_intents", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		assert.NoError(t, r.ParseForm())
		gotForm = map[string]string{
			"amount":                r.PostFormValue("amount"),
			"currency":              r.PostFormValue("currency"),
			"metadata[correlation]": r.PostFormValue("metadata[correlation]"),
		}
		fmt.Fprint(w, `{"id":"pi_1","client_secret":"pi_1_secret"}`)
	}))
	defer server.Close()

	client := newTestStripeClient(server.URL)
	order, err := client.CreateOrder(context.Background(), CreateOrderRequest{
		Amount:      199.99,
		Currency:    "USD",
		Description: "Комиссия",
		Correlation: `{"c":"x"}`,
	})
	assert.NoError(t, err)
	assert.Equal(t, "pi_1", order.ID)
	assert.Equal(t, "pi_1_secret", order.ClientSecret)
	// Сумма уходит в минорных единицах, валюта в нижнем регистре.
	assert.Equal(t, "19999", gotForm["amount"])
	assert.Equal(t, "usd", gotForm["currency"])
	assert.Equal(t, `{"c":"x"}`, gotForm["metadata[correlation]"])
}

func TestStripeClient_CreateOrder_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		fmt.Fprint(w, `{"error":{"code":"card_declined"}}`)
	}))
	defer server.Close()

	client := newTestStripeClient(server.URL)
	_, err := client.CreateOrder(context.Background(), CreateOrderRequest{Amount: 10, Currency: "USD"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "402")
}

func TestStripeClient_CaptureOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payment_intents/pi_1/capture", r.URL.Path)
		fmt.Fprint(w, `{"id":"pi_1","status":"succeeded","latest_charge":"ch_1","metadata":{"correlation":"tok"}}`)
	}))
	defer server.Close()

	client := newTestStripeClient(server.URL)
	result, err := client.CaptureOrder(context.Background(), "pi_1")
	assert.NoError(t, err)
	assert.Equal(t, "ch_1", result.CaptureID)
	assert.Equal(t, "tok", result.Correlation)
}

func TestStripeClient_CaptureOrder_NotSucceeded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"pi_1","status":"requires_payment_method"}`)
	}))
	defer server.Close()

	client := newTestStripeClient(server.URL)
	_, err := client.CaptureOrder(context.Background(), "pi_1")
	assert.True(t, errors.Is(err, ErrOrderNotApproved))
}

func TestStripeClient_Transfer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/transfers", r.URL.Path)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "80000", r.PostFormValue("amount"))
		assert.Equal(t, "acct_artist", r.PostFormValue("destination"))
		fmt.Fprint(w, `{"id":"tr_1"}`)
	}))
	defer server.Close()

	client := newTestStripeClient(server.URL)
	result, err := client.Transfer(context.Background(), TransferRequest{
		Amount:      800,
		Currency:    "USD",
		RecipientID: "acct_artist",
	})
	assert.NoError(t, err)
	assert.Equal(t, "tr_1", result.TransferID)
}

func TestStripeClient_ParseWebhook_ValidSignature(t *testing.T) {
	client := newTestStripeClient("http://stripe.invalid")
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	client.now = func() time.Time { return now }

	body := []byte(`{"type":"payment_intent.succeeded","data":{"object":{"id":"pi_1","latest_charge":"ch_1","metadata":{"correlation":"tok"}}}}`)
	headers := map[string]string{"Stripe-Signature": stripeSign(t, testWebhookSecret, now, body)}

	event, err := client.ParseWebhook(context.Background(), headers, body)
	assert.NoError(t, err)
	assert.Equal(t, EventCaptureCompleted, event.Type)
	assert.Equal(t, "pi_1", event.OrderID)
	assert.Equal(t, "ch_1", event.CaptureID)
	assert.Equal(t, "tok", event.Correlation)
}

func TestStripeClient_ParseWebhook_WrongSecret(t *testing.T) {
	client := newTestStripeClient("http://stripe.invalid")
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	client.now = func() time.Time { return now }

	body := []byte(`{"type":"payment_intent.succeeded"}`)
	headers := map[string]string{"Stripe-Signature": stripeSign(t, "whsec_other", now, body)}

	_, err := client.ParseWebhook(context.Background(), headers, body)
	assert.True(t, errors.Is(err, ErrInvalidSignature))
}

func TestStripeClient_ParseWebhook_StaleTimestamp(t *testing.T) {
	client := newTestStripeClient("http://stripe.invalid")
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	client.now = func() time.Time { return now }

	body := []byte(`{"type":"payment_intent.succeeded"}`)
	// Подпись корректна, но отметка времени старше допуска: возможен replay.
	headers := map[string]string{"Stripe-Signature": stripeSign(t, testWebhookSecret, now.Add(-6*time.Minute), body)}

	_, err := client.ParseWebhook(context.Background(), headers, body)
	assert.True(t, errors.Is(err, ErrInvalidSignature))
}

func TestStripeClient_ParseWebhook_MissingHeader(t *testing.T) {
	client := newTestStripeClient("http://stripe.invalid")
	_, err := client.ParseWebhook(context.Background(), map[string]string{}, []byte(`{}`))
	assert.True(t, errors.Is(err, ErrInvalidSignature))
}

// charge.refunded приносит объект charge: идентификатор заказа лежит
// в поле payment_intent, а не в id.
func TestStripeClient_ParseWebhook_RefundRemapsOrderID(t *testing.T) {
	client := newTestStripeClient("http://stripe.invalid")
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	client.now = func() time.Time { return now }

	body := []byte(`{"type":"charge.refunded","data":{"object":{"id":"ch_9","payment_intent":"pi_9"}}}`)
	headers := map[string]string{"Stripe-Signature": stripeSign(t, testWebhookSecret, now, body)}

	event, err := client.ParseWebhook(context.Background(), headers, body)
	assert.NoError(t, err)
	assert.Equal(t, EventCaptureRefunded, event.Type)
	assert.Equal(t, "pi_9", event.OrderID)
	assert.Equal(t, "ch_9", event.CaptureID)
}

func TestToMinorUnits(t *testing.T) {
	assert.Equal(t, int64(19999), toMinorUnits(199.99))
	assert.Equal(t, int64(100), toMinorUnits(1))
	// 0.1+0.2 в float64 чуть больше 0.3; округление спасает от 29 центов.
	assert.Equal(t, int64(30), toMinorUnits(0.1+0.2))
}
