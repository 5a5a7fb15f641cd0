// Package payment содержит клиенты платёжных провайдеров и общий
// интерфейс, через который сервисный слой открывает заказы, подтверждает
// захват средств и выплачивает художникам.
package payment

import (
	"context"
	"errors"
)

var (
	// ErrInvalidSignature возвращается, когда подпись вебхука не прошла проверку.
	ErrInvalidSignature = errors.New("payment: недействительная подпись вебхука")
	// ErrOrderNotApproved возвращается при попытке захвата неподтверждённого заказа.
	ErrOrderNotApproved = errors.New("payment: заказ не подтверждён плательщиком")
)

// CreateOrderRequest описывает открытие заказа у провайдера.
type CreateOrderRequest struct {
	Amount      float64
	Currency    string
	Description string
	// Correlation — компактный токен, который провайдер вернёт в вебхуке.
	// Ограничен 127 байтами: это лимит самого тесного из поддерживаемых полей.
	Correlation string
}

// Order — открытый у провайдера заказ.
type Order struct {
	ID string
	// ClientSecret используется Stripe-фронтендом для подтверждения платежа.
	ClientSecret string
	// ApprovalURL — ссылка одобрения для redirect-флоу PayPal.
	ApprovalURL string
}

// CaptureResult — результат захвата средств по заказу.
type CaptureResult struct {
	CaptureID   string
	Correlation string
}

// TransferRequest описывает выплату художнику при release escrow.
type TransferRequest struct {
	Amount      float64
	Currency    string
	RecipientID string
	Description string
}

// TransferResult — подтверждённая провайдером выплата.
type TransferResult struct {
	TransferID string
}

// WebhookEvent — разобранное и проверенное событие вебхука.
type WebhookEvent struct {
	// Type нормализован до "capture_completed" / "capture_failed";
	// остальные типы событий провайдера сервис игнорирует.
	Type        string
	OrderID     string
	CaptureID   string
	Correlation string
}

// Нормализованные типы событий вебхуков.
const (
	EventCaptureCompleted = "capture_completed"
	EventCaptureFailed    = "capture_failed"
	EventCaptureRefunded  = "capture_refunded"
)

// Provider — платёжный провайдер. Реализации внедряются в сервисный слой,
// чтобы тесты могли подменять провайдера без сетевых вызовов.
type Provider interface {
	// Name возвращает строковый идентификатор провайдера ("stripe"/"paypal").
	Name() string
	// CreateOrder открывает заказ на сумму и возвращает его идентификатор.
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error)
	// CaptureOrder захватывает средства по одобренному заказу.
	CaptureOrder(ctx context.Context, orderID string) (*CaptureResult, error)
	// Transfer выплачивает средства художнику.
	Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error)
	// ParseWebhook проверяет подпись и разбирает тело вебхука.
	ParseWebhook(ctx context.Context, headers map[string]string, body []byte) (*WebhookEvent, error)
}
