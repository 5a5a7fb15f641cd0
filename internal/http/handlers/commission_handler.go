package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/artcommission-backend/internal/http/handlers/common"
	"github.com/ignatzorin/artcommission-backend/internal/interface/http/response"
	"github.com/ignatzorin/artcommission-backend/internal/service"
)

// CommissionHandler обслуживает маршруты жизненного цикла комиссии.
type CommissionHandler struct {
	commissions *service.CommissionService
}

// NewCommissionHandler создаёт новый хэндлер.
func NewCommissionHandler(commissions *service.CommissionService) *CommissionHandler {
	return &CommissionHandler{commissions: commissions}
}

type createCommissionRequest struct {
	ArtistID          uuid.UUID  `json:"artist_id" binding:"required"`
	ArtworkID         *uuid.UUID `json:"artwork_id"`
	Description       string     `json:"description" binding:"required"`
	Budget            float64    `json:"budget" binding:"required"`
	PaymentType       string     `json:"payment_type" binding:"required"`
	DepositPercentage float64    `json:"deposit_percentage"`
	MaxRevisionCount  int        `json:"max_revision_count"`
}

// CreateCommission обрабатывает POST /commissions.
func (h *CommissionHandler) CreateCommission(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		response.Unauthorized(c, err.Error())
		return
	}

	var req createCommissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "некорректное тело запроса")
		return
	}

	commission, err := h.commissions.CreateCommission(c.Request.Context(), userID, service.CreateCommissionInput{
		ArtistID:          req.ArtistID,
		ArtworkID:         req.ArtworkID,
		Description:       req.Description,
		Budget:            req.Budget,
		PaymentType:       req.PaymentType,
		DepositPercentage: req.DepositPercentage,
		MaxRevisionCount:  req.MaxRevisionCount,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, commission)
}

// GetCommission обрабатывает GET /commissions/:id.
func (h *CommissionHandler) GetCommission(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		response.Unauthorized(c, err.Error())
		return
	}
	id, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	commission, err := h.commissions.GetCommission(c.Request.Context(), id, userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, commission)
}

// ListCommissions обрабатывает GET /commissions?role=client|artist.
func (h *CommissionHandler) ListCommissions(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		response.Unauthorized(c, err.Error())
		return
	}
	limit, offset := common.GetPagination(c)

	commissions, err := h.commissions.ListCommissions(c.Request.Context(), userID, c.Query("role"), limit, offset)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, commissions)
}

type acceptCommissionRequest struct {
	FinalPrice *float64 `json:"final_price"`
}

// AcceptCommission обрабатывает POST /commissions/:id/accept.
func (h *CommissionHandler) AcceptCommission(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		response.Unauthorized(c, err.Error())
		return
	}
	id, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	var req acceptCommissionRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		response.BadRequest(c, "некорректное тело запроса")
		return
	}

	commission, err := h.commissions.Accept(c.Request.Context(), id, userID, req.FinalPrice)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, commission)
}

// DeclineCommission обрабатывает POST /commissions/:id/decline.
func (h *CommissionHandler) DeclineCommission(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		response.Unauthorized(c, err.Error())
		return
	}
	id, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.commissions.Decline(c.Request.Context(), id, userID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"declined": true})
}

// CancelCommission обрабатывает POST /commissions/:id/cancel.
func (h *CommissionHandler) CancelCommission(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		response.Unauthorized(c, err.Error())
		return
	}
	id, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.commissions.Cancel(c.Request.Context(), id, userID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"cancelled": true})
}

// CompleteCommission обрабатывает POST /commissions/:id/complete.
func (h *CommissionHandler) CompleteCommission(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		response.Unauthorized(c, err.Error())
		return
	}
	id, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	commission, err := h.commissions.Complete(c.Request.Context(), id, userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, commission)
}
