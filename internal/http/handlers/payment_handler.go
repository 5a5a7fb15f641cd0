package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/artcommission-backend/internal/http/handlers/common"
	"github.com/ignatzorin/artcommission-backend/internal/interface/http/response"
	"github.com/ignatzorin/artcommission-backend/internal/service"
)

// PaymentHandler обслуживает платёжные маршруты: открытие заказов,
// вебхуки провайдеров, синхронный capture и release escrow.
type PaymentHandler struct {
	payments *service.PaymentService
}

// NewPaymentHandler создаёт новый хэндлер.
func NewPaymentHandler(payments *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

type openPaymentRequest struct {
	CommissionID uuid.UUID  `json:"commission_id" binding:"required"`
	PaymentType  string     `json:"payment_type" binding:"required"`
	Provider     string     `json:"provider" binding:"required"`
	Amount       *float64   `json:"amount"`
	MilestoneID  *uuid.UUID `json:"milestone_id"`
}

// OpenPayment обрабатывает POST /payments/open.
func (h *PaymentHandler) OpenPayment(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		response.Unauthorized(c, err.Error())
		return
	}

	var req openPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "некорректное тело запроса")
		return
	}

	result, err := h.payments.OpenPayment(c.Request.Context(), userID, service.OpenPaymentInput{
		CommissionID:   req.CommissionID,
		PaymentType:    req.PaymentType,
		Provider:       req.Provider,
		ExplicitAmount: req.Amount,
		MilestoneID:    req.MilestoneID,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

type captureRequest struct {
	OrderID string `json:"order_id" binding:"required"`
}

// Capture обрабатывает POST /payments/capture/:provider — синхронное
// подтверждение после одобрения платежа в UI провайдера.
func (h *PaymentHandler) Capture(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		response.Unauthorized(c, err.Error())
		return
	}

	var req captureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "некорректное тело запроса")
		return
	}

	tx, err := h.payments.Capture(c.Request.Context(), userID, c.Param("provider"), req.OrderID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, tx)
}

// Webhook обрабатывает POST /webhooks/:provider. Маршрут без авторизации:
// подлинность подтверждает подпись провайдера. Повторная доставка одного
// события отвечает 200, чтобы провайдер перестал ретраить.
func (h *PaymentHandler) Webhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.BadRequest(c, "не удалось прочитать тело вебхука")
		return
	}

	headers := make(map[string]string, len(c.Request.Header))
	for name := range c.Request.Header {
		headers[http.CanonicalHeaderKey(name)] = c.GetHeader(name)
	}

	if err := h.payments.HandleWebhook(c.Request.Context(), c.Param("provider"), headers, body); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"received": true})
}

// ReleaseEscrow обрабатывает POST /commissions/:id/escrow/release.
func (h *PaymentHandler) ReleaseEscrow(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		response.Unauthorized(c, err.Error())
		return
	}
	commissionID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.payments.ReleaseEscrow(c.Request.Context(), commissionID, userID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"released": true})
}

// ListCommissionTransactions обрабатывает GET /commissions/:id/transactions.
func (h *PaymentHandler) ListCommissionTransactions(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		response.Unauthorized(c, err.Error())
		return
	}
	commissionID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	txs, err := h.payments.ListCommissionTransactions(c.Request.Context(), commissionID, userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, txs)
}

// ListUserTransactions обрабатывает GET /payments/history.
func (h *PaymentHandler) ListUserTransactions(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		response.Unauthorized(c, err.Error())
		return
	}
	limit, offset := common.GetPagination(c)

	txs, err := h.payments.ListUserTransactions(c.Request.Context(), userID, limit, offset)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, txs)
}
