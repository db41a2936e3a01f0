package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"watch_party/internal/domain"
	"watch_party/internal/gateway"
	"watch_party/internal/service"
	apperrors "watch_party/pkg/errors"
	"watch_party/pkg/logger"
)

const (
	readLimit    = 4096
	readDeadline = 60 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // origin allow-list is the reverse proxy's job
	},
}

type WebSocketHandler struct {
	gw                *gateway.Gateway
	authService       service.AuthService
	membershipService service.MembershipService
	chatService       service.ChatService
	log               logger.Logger
}

func NewWebSocketHandler(
	gw *gateway.Gateway,
	authService service.AuthService,
	membershipService service.MembershipService,
	chatService service.ChatService,
	log logger.Logger,
) *WebSocketHandler {
	return &WebSocketHandler{
		gw:                gw,
		authService:       authService,
		membershipService: membershipService,
		chatService:       chatService,
		log:               log,
	}
}

// clientFrame is the inbound protocol. Outbound traffic is the event
// vocabulary in the gateway package; the two never mix.
type clientFrame struct {
	Type    string    `json:"type"`
	RoomID  uuid.UUID `json:"room_id"`
	Content string    `json:"content,omitempty"`
}

// Serve upgrades the connection and pumps client frames. Browsers
// cannot set headers on websocket dials, so the token also travels as
// a query parameter.
func (h *WebSocketHandler) Serve(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
			token = strings.TrimPrefix(header, "Bearer ")
		}
	}

	claims, err := h.authService.ValidateToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error("Failed to upgrade connection", "error", err)
		return
	}

	conn := gateway.NewConnection(claims.UserID, ws)
	conn.Start()
	h.gw.Attach(conn)

	h.log.Info("WebSocket connected", "user_id", claims.UserID, "session_id", conn.ID())
	defer func() {
		h.gw.Disconnect(conn)
		conn.Close(websocket.CloseNormalClosure, "bye")
		h.log.Info("WebSocket disconnected", "user_id", claims.UserID, "session_id", conn.ID())
	}()

	ws.SetReadLimit(readLimit)
	_ = ws.SetReadDeadline(time.Now().Add(readDeadline))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(readDeadline))
	})

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Warn("WebSocket read failed", "error", err, "user_id", claims.UserID)
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(readDeadline))

		var frame clientFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			h.gw.SendTo(conn, gateway.NewJoinError(uuid.Nil, "BAD_FRAME", "unparseable frame"))
			continue
		}

		h.handleFrame(c, conn, claims.UserID, frame)
	}
}

func (h *WebSocketHandler) handleFrame(c *gin.Context, conn *gateway.Connection, userID uuid.UUID, frame clientFrame) {
	ctx := c.Request.Context()

	switch frame.Type {
	case "join_room":
		m, err := h.membershipService.RequestEntry(ctx, frame.RoomID, userID)
		if err != nil {
			// Entry failures go to the requester alone; the room never
			// hears about them.
			h.gw.SendTo(conn, gateway.NewJoinError(frame.RoomID, apperrors.CodeFromError(err), err.Error()))
			return
		}
		switch m.Status {
		case domain.MembershipStatusJoined:
			h.gw.Subscribe(conn, frame.RoomID)
			h.gw.SendTo(conn, gateway.Event{
				Type:    gateway.EventJoinApproved,
				RoomID:  frame.RoomID,
				Payload: gateway.MemberPayload{UserID: userID, Status: m.Status},
			})
		case domain.MembershipStatusPending:
			h.gw.SendTo(conn, gateway.Event{
				Type:    gateway.EventJoinRequest,
				RoomID:  frame.RoomID,
				Payload: gateway.MemberPayload{UserID: userID, Status: m.Status},
			})
		}

	case "leave_channel":
		// Connection-level unsubscribe only; the seat stays taken.
		h.gw.Unsubscribe(conn, frame.RoomID)

	case "send_message":
		if _, err := h.chatService.Send(ctx, frame.RoomID, userID, frame.Content); err != nil {
			h.gw.SendTo(conn, gateway.NewJoinError(frame.RoomID, apperrors.CodeFromError(err), err.Error()))
		}

	case "mark_read":
		if err := h.membershipService.MarkRead(ctx, frame.RoomID, userID); err != nil {
			h.log.Warn("Failed to mark read", "error", err, "room_id", frame.RoomID, "user_id", userID)
		}

	default:
		h.log.Warn("Unknown frame type", "type", frame.Type, "user_id", userID)
	}
}
