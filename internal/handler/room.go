package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"watch_party/internal/middleware"
	"watch_party/internal/service"
	"watch_party/pkg/logger"
)

type RoomHandler struct {
	roomService service.RoomService
	log         logger.Logger
}

func NewRoomHandler(roomService service.RoomService, log logger.Logger) *RoomHandler {
	return &RoomHandler{
		roomService: roomService,
		log:         log,
	}
}

type CreateRoomRequest struct {
	MatchID     uuid.UUID `json:"match_id" binding:"required"`
	Title       string    `json:"title" binding:"required,min=2,max=100"`
	Description *string   `json:"description" binding:"omitempty,max=500"`
	Capacity    int       `json:"capacity" binding:"omitempty,min=2"`
}

type UpdateRoomRequest struct {
	Title       *string `json:"title" binding:"omitempty,min=2,max=100"`
	Description *string `json:"description" binding:"omitempty,max=500"`
	Notice      *string `json:"notice" binding:"omitempty,max=500"`
}

func (h *RoomHandler) Create(c *gin.Context) {
	userID, _ := middleware.CurrentUserID(c)

	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	room, err := h.roomService.Create(c.Request.Context(), userID, service.CreateRoomInput{
		MatchID:     req.MatchID,
		Title:       req.Title,
		Description: req.Description,
		Capacity:    req.Capacity,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, room)
}

func (h *RoomHandler) GetByID(c *gin.Context) {
	roomID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room ID"})
		return
	}

	info, err := h.roomService.GetInfo(c.Request.Context(), roomID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, info)
}

func (h *RoomHandler) Update(c *gin.Context) {
	userID, _ := middleware.CurrentUserID(c)

	roomID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room ID"})
		return
	}

	var req UpdateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	room, err := h.roomService.Update(c.Request.Context(), roomID, userID, service.UpdateRoomInput{
		Title:       req.Title,
		Description: req.Description,
		Notice:      req.Notice,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, room)
}

func (h *RoomHandler) Delete(c *gin.Context) {
	userID, _ := middleware.CurrentUserID(c)

	roomID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room ID"})
		return
	}

	if err := h.roomService.Delete(c.Request.Context(), roomID, userID); err != nil {
		c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}
