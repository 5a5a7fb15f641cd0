package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/artcommission-backend/internal/http/handlers/common"
	"github.com/ignatzorin/artcommission-backend/internal/interface/http/response"
	"github.com/ignatzorin/artcommission-backend/internal/service"
)

// ChatHandler обслуживает переписку по комиссии.
type ChatHandler struct {
	chat *service.ChatService
}

// NewChatHandler создаёт новый хэндлер.
func NewChatHandler(chat *service.ChatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

type sendMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

// SendMessage обрабатывает POST /commissions/:id/messages.
func (h *ChatHandler) SendMessage(c *gin.Context) {
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

	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "некорректное тело запроса")
		return
	}

	msg, err := h.chat.SendMessage(c.Request.Context(), commissionID, userID, req.Content)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, msg)
}

// ListMessages обрабатывает GET /commissions/:id/messages.
func (h *ChatHandler) ListMessages(c *gin.Context) {
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
	limit, offset := common.GetPagination(c)

	messages, err := h.chat.ListMessages(c.Request.Context(), commissionID, userID, limit, offset)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, messages)
}
