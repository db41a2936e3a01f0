package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"watch_party/internal/middleware"
	"watch_party/internal/service"
	"watch_party/pkg/logger"
)

type MembershipHandler struct {
	membershipService service.MembershipService
	log               logger.Logger
}

func NewMembershipHandler(membershipService service.MembershipService, log logger.Logger) *MembershipHandler {
	return &MembershipHandler{
		membershipService: membershipService,
		log:               log,
	}
}

func parseRoomID(c *gin.Context) (uuid.UUID, bool) {
	roomID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room ID"})
		return uuid.Nil, false
	}
	return roomID, true
}

type targetUserRequest struct {
	UserID uuid.UUID `json:"user_id" binding:"required"`
}

func bindTargetUserID(c *gin.Context) (uuid.UUID, bool) {
	var req targetUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return uuid.Nil, false
	}
	return req.UserID, true
}

// RequestEntry queues the caller for an approval-gated room or seats
// them at once in an approval-free one. Repeating the call is safe.
func (h *MembershipHandler) RequestEntry(c *gin.Context) {
	userID, _ := middleware.CurrentUserID(c)
	roomID, ok := parseRoomID(c)
	if !ok {
		return
	}

	m, err := h.membershipService.RequestEntry(c.Request.Context(), roomID, userID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, m)
}

func (h *MembershipHandler) Cancel(c *gin.Context) {
	userID, _ := middleware.CurrentUserID(c)
	roomID, ok := parseRoomID(c)
	if !ok {
		return
	}

	if err := h.membershipService.Cancel(c.Request.Context(), roomID, userID); err != nil {
		c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *MembershipHandler) Approve(c *gin.Context) {
	hostID, _ := middleware.CurrentUserID(c)
	roomID, ok := parseRoomID(c)
	if !ok {
		return
	}
	applicantID, ok := bindTargetUserID(c)
	if !ok {
		return
	}

	m, err := h.membershipService.Approve(c.Request.Context(), roomID, hostID, applicantID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, m)
}

func (h *MembershipHandler) Reject(c *gin.Context) {
	hostID, _ := middleware.CurrentUserID(c)
	roomID, ok := parseRoomID(c)
	if !ok {
		return
	}
	applicantID, ok := bindTargetUserID(c)
	if !ok {
		return
	}

	if err := h.membershipService.Reject(c.Request.Context(), roomID, hostID, applicantID); err != nil {
		c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *MembershipHandler) Kick(c *gin.Context) {
	hostID, _ := middleware.CurrentUserID(c)
	roomID, ok := parseRoomID(c)
	if !ok {
		return
	}
	targetID, ok := bindTargetUserID(c)
	if !ok {
		return
	}

	if err := h.membershipService.Kick(c.Request.Context(), roomID, hostID, targetID); err != nil {
		c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *MembershipHandler) Leave(c *gin.Context) {
	userID, _ := middleware.CurrentUserID(c)
	roomID, ok := parseRoomID(c)
	if !ok {
		return
	}

	if err := h.membershipService.Leave(c.Request.Context(), roomID, userID); err != nil {
		c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *MembershipHandler) ListPending(c *gin.Context) {
	hostID, _ := middleware.CurrentUserID(c)
	roomID, ok := parseRoomID(c)
	if !ok {
		return
	}

	applicants, err := h.membershipService.ListPending(c.Request.Context(), roomID, hostID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"pending": applicants})
}

func (h *MembershipHandler) MarkRead(c *gin.Context) {
	userID, _ := middleware.CurrentUserID(c)
	roomID, ok := parseRoomID(c)
	if !ok {
		return
	}

	if err := h.membershipService.MarkRead(c.Request.Context(), roomID, userID); err != nil {
		c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *MembershipHandler) UnreadCount(c *gin.Context) {
	userID, _ := middleware.CurrentUserID(c)
	roomID, ok := parseRoomID(c)
	if !ok {
		return
	}

	count, err := h.membershipService.UnreadCount(c.Request.Context(), roomID, userID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"unread": count})
}
