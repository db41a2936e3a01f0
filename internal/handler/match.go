package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"watch_party/internal/middleware"
	"watch_party/internal/service"
	"watch_party/pkg/logger"
)

type MatchHandler struct {
	matchService service.MatchService
	roomService  service.RoomService
	log          logger.Logger
}

func NewMatchHandler(matchService service.MatchService, roomService service.RoomService, log logger.Logger) *MatchHandler {
	return &MatchHandler{
		matchService: matchService,
		roomService:  roomService,
		log:          log,
	}
}

type CreateMatchRequest struct {
	HomeTeam    string    `json:"home_team" binding:"required"`
	AwayTeam    string    `json:"away_team" binding:"required"`
	League      string    `json:"league" binding:"required"`
	ScheduledAt time.Time `json:"scheduled_at" binding:"required"`
}

type UpdateMatchStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=SCHEDULED LIVE ENDED CANCELLED"`
}

func (h *MatchHandler) Create(c *gin.Context) {
	userID, _ := middleware.CurrentUserID(c)

	var req CreateMatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	match, err := h.matchService.Create(c.Request.Context(), userID, service.CreateMatchInput{
		HomeTeam:    req.HomeTeam,
		AwayTeam:    req.AwayTeam,
		League:      req.League,
		ScheduledAt: req.ScheduledAt,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, match)
}

func (h *MatchHandler) List(c *gin.Context) {
	from := time.Now().Add(-6 * time.Hour)
	if raw := c.Query("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from timestamp"})
			return
		}
		from = parsed
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	matches, err := h.matchService.List(c.Request.Context(), from, limit)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"matches": matches})
}

func (h *MatchHandler) GetByID(c *gin.Context) {
	matchID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid match ID"})
		return
	}

	match, err := h.matchService.GetByID(c.Request.Context(), matchID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, match)
}

func (h *MatchHandler) ListRooms(c *gin.Context) {
	matchID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid match ID"})
		return
	}

	rooms, err := h.roomService.ListByMatch(c.Request.Context(), matchID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

func (h *MatchHandler) UpdateStatus(c *gin.Context) {
	matchID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid match ID"})
		return
	}

	var req UpdateMatchStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	if err := h.matchService.UpdateStatus(c.Request.Context(), matchID, req.Status); err != nil {
		c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}
