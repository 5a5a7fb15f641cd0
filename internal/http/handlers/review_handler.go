package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/artcommission-backend/internal/http/handlers/common"
	"github.com/ignatzorin/artcommission-backend/internal/interface/http/response"
	"github.com/ignatzorin/artcommission-backend/internal/service"
)

// ReviewHandler обслуживает маршруты отзывов.
type ReviewHandler struct {
	reviews *service.ReviewService
}

// NewReviewHandler создаёт новый хэндлер.
func NewReviewHandler(reviews *service.ReviewService) *ReviewHandler {
	return &ReviewHandler{reviews: reviews}
}

type submitReviewRequest struct {
	Rating  int     `json:"rating" binding:"required"`
	Comment *string `json:"comment"`
}

// SubmitReview обрабатывает POST /commissions/:id/reviews.
func (h *ReviewHandler) SubmitReview(c *gin.Context) {
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

	var req submitReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "некорректное тело запроса")
		return
	}

	if err := h.reviews.SubmitReview(c.Request.Context(), commissionID, userID, req.Rating, req.Comment); err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, gin.H{"submitted": true})
}

// ListCommissionReviews обрабатывает GET /commissions/:id/reviews.
func (h *ReviewHandler) ListCommissionReviews(c *gin.Context) {
	commissionID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	reviews, err := h.reviews.ListCommissionReviews(c.Request.Context(), commissionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, reviews)
}

// ListUserReviews обрабатывает GET /users/:id/reviews.
func (h *ReviewHandler) ListUserReviews(c *gin.Context) {
	reviewedID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	limit, offset := common.GetPagination(c)

	reviews, err := h.reviews.ListUserReviews(c.Request.Context(), reviewedID, limit, offset)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, reviews)
}
