package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/artcommission-backend/internal/http/handlers/common"
	"github.com/ignatzorin/artcommission-backend/internal/interface/http/response"
	"github.com/ignatzorin/artcommission-backend/internal/service"
)

// MilestoneHandler обслуживает маршруты плана этапов.
type MilestoneHandler struct {
	milestones *service.MilestoneService
}

// NewMilestoneHandler создаёт новый хэндлер.
func NewMilestoneHandler(milestones *service.MilestoneService) *MilestoneHandler {
	return &MilestoneHandler{milestones: milestones}
}

// GeneratePlan обрабатывает POST /commissions/:id/milestones/generate.
func (h *MilestoneHandler) GeneratePlan(c *gin.Context) {
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

	plan, err := h.milestones.GeneratePlan(c.Request.Context(), commissionID, userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, plan)
}

type customPlanRequest struct {
	Milestones []service.CustomMilestoneInput `json:"milestones" binding:"required"`
}

// CreateCustomPlan обрабатывает POST /commissions/:id/milestones.
func (h *MilestoneHandler) CreateCustomPlan(c *gin.Context) {
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

	var req customPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "некорректное тело запроса")
		return
	}

	plan, err := h.milestones.CreateCustomPlan(c.Request.Context(), commissionID, userID, req.Milestones)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, plan)
}

// ListMilestones обрабатывает GET /commissions/:id/milestones.
func (h *MilestoneHandler) ListMilestones(c *gin.Context) {
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

	milestones, err := h.milestones.ListMilestones(c.Request.Context(), commissionID, userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, milestones)
}

type editMilestoneRequest struct {
	Title       string  `json:"title" binding:"required"`
	Description *string `json:"description"`
	Amount      float64 `json:"amount" binding:"required"`
	Percentage  float64 `json:"percentage" binding:"required"`
}

// EditMilestone обрабатывает PATCH /milestones/:id.
func (h *MilestoneHandler) EditMilestone(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		response.Unauthorized(c, err.Error())
		return
	}
	milestoneID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	var req editMilestoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "некорректное тело запроса")
		return
	}

	milestone, err := h.milestones.EditMilestone(c.Request.Context(), milestoneID, userID, req.Title, req.Description, req.Amount, req.Percentage)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, milestone)
}

// ConfirmPlan обрабатывает POST /commissions/:id/milestones/confirm.
func (h *MilestoneHandler) ConfirmPlan(c *gin.Context) {
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

	if err := h.milestones.ConfirmPlan(c.Request.Context(), commissionID, userID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"confirmed": true})
}

// StartMilestone обрабатывает POST /milestones/:id/start.
func (h *MilestoneHandler) StartMilestone(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		response.Unauthorized(c, err.Error())
		return
	}
	milestoneID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.milestones.StartMilestone(c.Request.Context(), milestoneID, userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

type completeMilestoneRequest struct {
	ImageURL string  `json:"image_url" binding:"required"`
	Note     *string `json:"note"`
}

// CompleteMilestone обрабатывает POST /milestones/:id/complete.
func (h *MilestoneHandler) CompleteMilestone(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		response.Unauthorized(c, err.Error())
		return
	}
	milestoneID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	var req completeMilestoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "некорректное тело запроса")
		return
	}

	update, err := h.milestones.CompleteMilestone(c.Request.Context(), milestoneID, userID, req.ImageURL, req.Note)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, update)
}

// ApproveProgress обрабатывает POST /progress/:id/approve.
func (h *MilestoneHandler) ApproveProgress(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		response.Unauthorized(c, err.Error())
		return
	}
	progressID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.milestones.ApproveProgress(c.Request.Context(), progressID, userID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"approved": true})
}

// RejectProgress обрабатывает POST /progress/:id/reject.
func (h *MilestoneHandler) RejectProgress(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		response.Unauthorized(c, err.Error())
		return
	}
	progressID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.milestones.RejectProgress(c.Request.Context(), progressID, userID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"rejected": true})
}
