package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ignatzorin/artcommission-backend/internal/models"
)

// Допустимый разбег часов между провайдером и нами при проверке подписи.
const stripeSignatureTolerance = 5 * time.Minute

// StripeClient — клиент Stripe API поверх payment intents.
type StripeClient struct {
	baseURL       string
	secretKey     string
	webhookSecret string
	httpClient    *http.Client
	now           func() time.Time
}

// NewStripeClient создаёт клиента Stripe.
func NewStripeClient(baseURL, secretKey, webhookSecret string, timeout time.Duration) *StripeClient {
	return &StripeClient{
		baseURL:       strings.TrimSuffix(baseURL, "/"),
		secretKey:     secretKey,
		webhookSecret: webhookSecret,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		now: time.Now,
	}
}

// Name возвращает идентификатор провайдера.
func (c *StripeClient) Name() string {
	return models.ProviderStripe
}

type stripePaymentIntent struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	ClientSecret string `json:"client_secret"`
	LatestCharge string `json:"latest_charge"`
	// PaymentIntent заполнен, когда объект события — charge, а не intent.
	PaymentIntent string `json:"payment_intent"`
	Metadata      struct {
		Correlation string `json:"correlation"`
	} `json:"metadata"`
}

// CreateOrder открывает payment intent на сумму в минорных единицах валюты.
func (c *StripeClient) CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(toMinorUnits(req.Amount), 10))
	form.Set("currency", strings.ToLower(req.Currency))
	form.Set("description", req.Description)
	form.Set("metadata[correlation]", req.Correlation)

	var intent stripePaymentIntent
	if err := c.postForm(ctx, "/v1/payment_intents", form, &intent); err != nil {
		return nil, err
	}
	return &Order{ID: intent.ID, ClientSecret: intent.ClientSecret}, nil
}

// CaptureOrder захватывает средства по payment intent.
func (c *StripeClient) CaptureOrder(ctx context.Context, orderID string) (*CaptureResult, error) {
	var intent stripePaymentIntent
	err := c.postForm(ctx, "/v1/payment_intents/"+orderID+"/capture", url.Values{}, &intent)
	if err != nil {
		return nil, err
	}
	if intent.Status != "succeeded" {
		return nil, fmt.Errorf("%w: статус %s", ErrOrderNotApproved, intent.Status)
	}
	captureID := intent.LatestCharge
	if captureID == "" {
		captureID = intent.ID
	}
	return &CaptureResult{CaptureID: captureID, Correlation: intent.Metadata.Correlation}, nil
}

// Transfer выплачивает средства на connected-аккаунт художника.
func (c *StripeClient) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(toMinorUnits(req.Amount), 10))
	form.Set("currency", strings.ToLower(req.Currency))
	form.Set("destination", req.RecipientID)
	form.Set("description", req.Description)

	var transfer struct {
		ID string `json:"id"`
	}
	if err := c.postForm(ctx, "/v1/transfers", form, &transfer); err != nil {
		return nil, err
	}
	return &TransferResult{TransferID: transfer.ID}, nil
}

// ParseWebhook проверяет заголовок Stripe-Signature (t=...,v1=...) и разбирает событие.
func (c *StripeClient) ParseWebhook(ctx context.Context, headers map[string]string, body []byte) (*WebhookEvent, error) {
	if err := c.verifySignature(headers["Stripe-Signature"], body); err != nil {
		return nil, err
	}

	var event struct {
		Type string `json:"type"`
		Data struct {
			Object stripePaymentIntent `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("stripe: разбор вебхука %w", err)
	}

	intent := event.Data.Object
	parsed := &WebhookEvent{
		OrderID:     intent.ID,
		CaptureID:   intent.LatestCharge,
		Correlation: intent.Metadata.Correlation,
	}
	if intent.PaymentIntent != "" {
		parsed.OrderID = intent.PaymentIntent
		parsed.CaptureID = intent.ID
	}
	switch event.Type {
	case "payment_intent.succeeded":
		parsed.Type = EventCaptureCompleted
	case "payment_intent.payment_failed":
		parsed.Type = EventCaptureFailed
	case "charge.refunded":
		parsed.Type = EventCaptureRefunded
	default:
		parsed.Type = event.Type
	}
	if parsed.CaptureID == "" {
		parsed.CaptureID = intent.ID
	}
	return parsed, nil
}

func (c *StripeClient) verifySignature(header string, body []byte) error {
	if header == "" {
		return ErrInvalidSignature
	}

	var timestamp string
	var signatures []string
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			timestamp = value
		case "v1":
			signatures = append(signatures, value)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return ErrInvalidSignature
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrInvalidSignature
	}
	age := c.now().Sub(time.Unix(ts, 0))
	if age > stripeSignatureTolerance || age < -stripeSignatureTolerance {
		return ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(c.webhookSecret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, signature := range signatures {
		if hmac.Equal([]byte(expected), []byte(signature)) {
			return nil
		}
	}
	return ErrInvalidSignature
}

func (c *StripeClient) postForm(ctx context.Context, path string, form url.Values, out any) error {
	if c.baseURL == "" {
		return fmt.Errorf("stripe: baseURL не задан")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("stripe: запрос %s %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errorBody map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&errorBody)
		return fmt.Errorf("stripe: код ответа %d: %v", resp.StatusCode, errorBody)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("stripe: декодирование ответа %w", err)
	}
	return nil
}

// toMinorUnits переводит сумму в минорные единицы валюты (центы).
func toMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
