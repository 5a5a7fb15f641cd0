package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/artcommission-backend/internal/models"
)

// PayPalClient — клиент PayPal REST API поверх checkout orders и payouts.
type PayPalClient struct {
	baseURL      string
	clientID     string
	clientSecret string
	webhookID    string
	httpClient   *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewPayPalClient создаёт клиента PayPal.
func NewPayPalClient(baseURL, clientID, clientSecret, webhookID string, timeout time.Duration) *PayPalClient {
	return &PayPalClient{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		webhookID:    webhookID,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Name возвращает идентификатор провайдера.
func (c *PayPalClient) Name() string {
	return models.ProviderPayPal
}

type paypalAmount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

// CreateOrder открывает checkout-заказ. Токен корреляции уходит в custom_id
// purchase unit и возвращается в событиях захвата.
func (c *PayPalClient) CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	if len(req.Correlation) > maxCorrelationLen {
		return nil, fmt.Errorf("paypal: custom_id длиннее %d байт", maxCorrelationLen)
	}

	payload := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []map[string]any{{
			"amount": paypalAmount{
				CurrencyCode: strings.ToUpper(req.Currency),
				Value:        fmt.Sprintf("%.2f", req.Amount),
			},
			"custom_id":   req.Correlation,
			"description": req.Description,
		}},
	}

	var created struct {
		ID    string `json:"id"`
		Links []struct {
			Rel  string `json:"rel"`
			Href string `json:"href"`
		} `json:"links"`
	}
	if err := c.postJSON(ctx, "/v2/checkout/orders", payload, &created); err != nil {
		return nil, err
	}

	order := &Order{ID: created.ID}
	for _, link := range created.Links {
		if link.Rel == "approve" {
			order.ApprovalURL = link.Href
		}
	}
	return order, nil
}

// CaptureOrder захватывает средства по одобренному заказу.
func (c *PayPalClient) CaptureOrder(ctx context.Context, orderID string) (*CaptureResult, error) {
	var captured struct {
		Status        string `json:"status"`
		PurchaseUnits []struct {
			Payments struct {
				Captures []struct {
					ID       string `json:"id"`
					Status   string `json:"status"`
					CustomID string `json:"custom_id"`
				} `json:"captures"`
			} `json:"payments"`
		} `json:"purchase_units"`
	}
	err := c.postJSON(ctx, "/v2/checkout/orders/"+orderID+"/capture", map[string]any{}, &captured)
	if err != nil {
		return nil, err
	}
	if captured.Status != "COMPLETED" {
		return nil, fmt.Errorf("%w: статус %s", ErrOrderNotApproved, captured.Status)
	}
	for _, unit := range captured.PurchaseUnits {
		for _, capture := range unit.Payments.Captures {
			if capture.Status == "COMPLETED" {
				return &CaptureResult{CaptureID: capture.ID, Correlation: capture.CustomID}, nil
			}
		}
	}
	return nil, fmt.Errorf("paypal: в ответе capture нет завершённых захватов")
}

// Transfer выплачивает средства художнику через payouts.
func (c *PayPalClient) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	payload := map[string]any{
		"sender_batch_header": map[string]any{
			"sender_batch_id": uuid.NewString(),
			"email_subject":   req.Description,
		},
		"items": []map[string]any{{
			"recipient_type": "PAYPAL_ID",
			"receiver":       req.RecipientID,
			"note":           req.Description,
			"amount": map[string]string{
				"currency": strings.ToUpper(req.Currency),
				"value":    fmt.Sprintf("%.2f", req.Amount),
			},
		}},
	}

	var payout struct {
		BatchHeader struct {
			PayoutBatchID string `json:"payout_batch_id"`
		} `json:"batch_header"`
	}
	if err := c.postJSON(ctx, "/v1/payments/payouts", payload, &payout); err != nil {
		return nil, err
	}
	return &TransferResult{TransferID: payout.BatchHeader.PayoutBatchID}, nil
}

// ParseWebhook проверяет подпись через verify-webhook-signature и разбирает событие.
func (c *PayPalClient) ParseWebhook(ctx context.Context, headers map[string]string, body []byte) (*WebhookEvent, error) {
	payload := map[string]any{
		"transmission_id":   headers["Paypal-Transmission-Id"],
		"transmission_time": headers["Paypal-Transmission-Time"],
		"transmission_sig":  headers["Paypal-Transmission-Sig"],
		"cert_url":          headers["Paypal-Cert-Url"],
		"auth_algo":         headers["Paypal-Auth-Algo"],
		"webhook_id":        c.webhookID,
		"webhook_event":     json.RawMessage(body),
	}

	var verification struct {
		VerificationStatus string `json:"verification_status"`
	}
	err := c.postJSON(ctx, "/v1/notifications/verify-webhook-signature", payload, &verification)
	if err != nil {
		return nil, err
	}
	if verification.VerificationStatus != "SUCCESS" {
		return nil, ErrInvalidSignature
	}

	var event struct {
		EventType string `json:"event_type"`
		Resource  struct {
			ID                string `json:"id"`
			CustomID          string `json:"custom_id"`
			SupplementaryData struct {
				RelatedIDs struct {
					OrderID string `json:"order_id"`
				} `json:"related_ids"`
			} `json:"supplementary_data"`
		} `json:"resource"`
	}
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("paypal: разбор вебхука %w", err)
	}

	parsed := &WebhookEvent{
		OrderID:     event.Resource.SupplementaryData.RelatedIDs.OrderID,
		CaptureID:   event.Resource.ID,
		Correlation: event.Resource.CustomID,
	}
	switch event.EventType {
	case "PAYMENT.CAPTURE.COMPLETED":
		parsed.Type = EventCaptureCompleted
	case "PAYMENT.CAPTURE.DENIED", "PAYMENT.CAPTURE.DECLINED":
		parsed.Type = EventCaptureFailed
	case "PAYMENT.CAPTURE.REFUNDED":
		parsed.Type = EventCaptureRefunded
	default:
		parsed.Type = event.EventType
	}
	return parsed, nil
}

// token возвращает действующий OAuth2-токен, обновляя его по необходимости.
func (c *PayPalClient) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.clientID, c.clientSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("paypal: запрос токена %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errorBody map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&errorBody)
		return "", fmt.Errorf("paypal: код ответа токена %d: %v", resp.StatusCode, errorBody)
	}

	var token struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return "", fmt.Errorf("paypal: декодирование токена %w", err)
	}

	c.accessToken = token.AccessToken
	// Минута запаса, чтобы не уйти в запрос с токеном на грани истечения.
	c.tokenExpiry = time.Now().Add(time.Duration(token.ExpiresIn)*time.Second - time.Minute)
	return c.accessToken, nil
}

func (c *PayPalClient) postJSON(ctx context.Context, path string, payload any, out any) error {
	if c.baseURL == "" {
		return fmt.Errorf("paypal: baseURL не задан")
	}

	accessToken, err := c.token(ctx)
	if err != nil {
		return err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("paypal: запрос %s %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errorBody map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&errorBody)
		return fmt.Errorf("paypal: код ответа %d: %v", resp.StatusCode, errorBody)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("paypal: декодирование ответа %w", err)
	}
	return nil
}
