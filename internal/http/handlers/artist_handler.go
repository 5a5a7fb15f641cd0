package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/artcommission-backend/internal/http/handlers/common"
	"github.com/ignatzorin/artcommission-backend/internal/interface/http/response"
	"github.com/ignatzorin/artcommission-backend/internal/models"
	"github.com/ignatzorin/artcommission-backend/internal/service"
)

// ArtistHandler обслуживает настройки приёма заказов и admission gate.
type ArtistHandler struct {
	admission *service.AdmissionService
}

// NewArtistHandler создаёт новый хэндлер.
func NewArtistHandler(admission *service.AdmissionService) *ArtistHandler {
	return &ArtistHandler{admission: admission}
}

// GetSettings обрабатывает GET /artist/settings.
func (h *ArtistHandler) GetSettings(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		response.Unauthorized(c, err.Error())
		return
	}

	settings, err := h.admission.GetSettings(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, settings)
}

type updateSettingsRequest struct {
	MaxQueueSlots     int  `json:"max_queue_slots" binding:"required"`
	IsOpen            bool `json:"is_open"`
	CommissionsPaused bool `json:"commissions_paused"`
	AllowWaitlist     bool `json:"allow_waitlist"`
}

// UpdateSettings обрабатывает PUT /artist/settings.
func (h *ArtistHandler) UpdateSettings(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		response.Unauthorized(c, err.Error())
		return
	}

	var req updateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "некорректное тело запроса")
		return
	}

	settings := &models.ArtistSettings{
		UserID:            userID,
		MaxQueueSlots:     req.MaxQueueSlots,
		IsOpen:            req.IsOpen,
		CommissionsPaused: req.CommissionsPaused,
		AllowWaitlist:     req.AllowWaitlist,
	}
	if err := h.admission.UpdateSettings(c.Request.Context(), settings); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, settings)
}

// CheckAdmission обрабатывает GET /artists/:id/admission — фронтенд
// показывает клиенту доступность очереди до отправки запроса.
func (h *ArtistHandler) CheckAdmission(c *gin.Context) {
	artistID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	decision, err := h.admission.CanAdmit(c.Request.Context(), artistID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, decision)
}
