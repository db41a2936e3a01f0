package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"watch_party/internal/middleware"
	"watch_party/internal/service"
	"watch_party/pkg/logger"
)

type ChatHandler struct {
	chatService service.ChatService
	log         logger.Logger
}

func NewChatHandler(chatService service.ChatService, log logger.Logger) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		log:         log,
	}
}

type SendMessageRequest struct {
	Content string `json:"content" binding:"required,max=1000"`
}

func (h *ChatHandler) Send(c *gin.Context) {
	userID, _ := middleware.CurrentUserID(c)
	roomID, ok := parseRoomID(c)
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	message, err := h.chatService.Send(c.Request.Context(), roomID, userID, req.Content)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, message)
}

// History returns the newest messages, oldest first.
func (h *ChatHandler) History(c *gin.Context) {
	userID, _ := middleware.CurrentUserID(c)
	roomID, ok := parseRoomID(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	messages, err := h.chatService.History(c.Request.Context(), roomID, userID, limit)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": messages})
}
