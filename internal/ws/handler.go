package ws

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"

	"messenger-service/internal/models"
	"messenger-service/internal/observability"
	"messenger-service/internal/repositories"
	"messenger-service/internal/security"
)

const dispatchTimeout = 5 * time.Second

// Handler owns the websocket endpoint: handshake authentication, presence
// registration, and the per-connection command loop.
type Handler struct {
	hub           *Hub
	presence      *Presence
	tokens        *security.TokenService
	users         repositories.UserRepository
	chats         repositories.ChatRepository
	messages      repositories.MessageRepository
	notifications repositories.NotificationRepository
	upgrader      websocket.Upgrader
}

// NewHandler constructs a Handler. With no allowed origins configured every
// origin is accepted (development mode).
func NewHandler(hub *Hub, presence *Presence, tokens *security.TokenService,
	users repositories.UserRepository, chats repositories.ChatRepository,
	messages repositories.MessageRepository, notifications repositories.NotificationRepository,
	allowedOrigins []string) *Handler {

	return &Handler{
		hub:           hub,
		presence:      presence,
		tokens:        tokens,
		users:         users,
		chats:         chats,
		messages:      messages,
		notifications: notifications,
		upgrader:      websocket.Upgrader{CheckOrigin: makeCheckOrigin(allowedOrigins)},
	}
}

func makeCheckOrigin(allowedOrigins []string) func(r *http.Request) bool {
	if len(allowedOrigins) == 0 {
		return func(r *http.Request) bool { return true }
	}
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[strings.ToLower(strings.TrimSpace(origin))] = struct{}{}
	}
	return func(r *http.Request) bool {
		_, ok := allowed[strings.ToLower(r.Header.Get("Origin"))]
		return ok
	}
}

// Handle upgrades the connection, authenticates it, and registers presence.
// Authentication failures reject the connection before any state mutation.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("messenger-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := bearerToken(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	userID, err := h.tokens.Verify(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	if _, err := h.users.GetUser(ctx, userID); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown user"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	client := NewClient(conn, userID)
	client.Info = connInfoFromRequest(c.Request, span.SpanContext().TraceID().String())
	go client.WritePump()

	transition := h.presence.Register(userID)
	h.hub.Add(client)

	observability.IncWSActive()
	observability.SetOnlineUsers(h.presence.Count())
	h.publishLifecycle(ctx, client, "ws_connect", "")

	if transition == BecameOnline {
		if err := h.users.SetOnlineStatus(ctx, userID, true); err != nil {
			log.Error().Err(err).Int("user_id", userID).Msg("persist online flag")
		}
		h.hub.BroadcastAll(models.Event{Type: models.EventUserOnline, UserID: userIDString(userID)})
	}
	// roster goes out after every transition so clients can self-heal drift
	h.hub.BroadcastAll(models.Event{Type: models.EventOnlineUsers, UserIDs: h.presence.Snapshot()})

	log.Info().Int("user_id", userID).Str("conn_id", client.ConnID).
		Str("transition", transition.String()).Msg("websocket connected")

	go h.readLoop(client)
}

func (h *Handler) readLoop(client *Client) {
	defer h.teardown(client)
	for {
		var event models.Event
		if err := client.conn.ReadJSON(&event); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.publishLifecycle(context.Background(), client, "ws_error", err.Error())
			}
			return
		}
		h.dispatch(client, event)
	}
}

func (h *Handler) teardown(client *Client) {
	h.hub.Remove(client)
	transition := h.presence.Deregister(client.UserID)

	observability.DecWSActive()
	observability.SetOnlineUsers(h.presence.Count())
	h.publishLifecycle(context.Background(), client, "ws_disconnect", "")

	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	if transition == BecameOffline {
		if err := h.users.SetOnlineStatus(ctx, client.UserID, false); err != nil {
			log.Error().Err(err).Int("user_id", client.UserID).Msg("persist last seen")
		}
		h.hub.BroadcastAll(models.Event{Type: models.EventUserOffline, UserID: userIDString(client.UserID)})
	}
	h.hub.BroadcastAll(models.Event{Type: models.EventOnlineUsers, UserIDs: h.presence.Snapshot()})

	log.Info().Int("user_id", client.UserID).Str("conn_id", client.ConnID).
		Str("transition", transition.String()).Msg("websocket disconnected")
}

func (h *Handler) publishLifecycle(ctx context.Context, client *Client, event, reason string) {
	payload := map[string]any{
		"ws": map[string]any{
			"event":       event,
			"conn_id":     client.ConnID,
			"duration_ms": time.Since(client.ConnectedAt).Milliseconds(),
			"reason":      reason,
		},
		"identity": map[string]any{
			"user_id":   client.UserID,
			"device_id": client.Info.DeviceID,
			"ip":        client.Info.IP,
		},
	}
	_ = observability.PublishEvent(ctx, "ws_events", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload:   payload,
	}, observability.BuildHeaders(client.Info.RequestID, client.Info.TraceID))
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return parts[1]
	}
	return c.Query("token")
}
