package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"messenger-service/internal/middleware"
	"messenger-service/internal/models"
	"messenger-service/internal/repositories"
	"messenger-service/internal/ws"
)

// MessageHandler manages message history and mutation endpoints.
//
// Posting a message only persists it; fan-out to the chat room happens when
// the sender issues the `new message` websocket command. The HTTP ack and the
// room broadcast are deliberately independent.
type MessageHandler struct {
	chatRepo    repositories.ChatRepository
	messageRepo repositories.MessageRepository
	hub         *ws.Hub
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(chatRepo repositories.ChatRepository, messageRepo repositories.MessageRepository, hub *ws.Hub) *MessageHandler {
	return &MessageHandler{
		chatRepo:    chatRepo,
		messageRepo: messageRepo,
		hub:         hub,
	}
}

func (h *MessageHandler) requireParticipant(c *gin.Context) (chatID, userID int, ok bool) {
	userID = middleware.UserID(c)

	chatID, err := strconv.Atoi(c.Param("chat_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return 0, 0, false
	}

	member, err := h.chatRepo.IsParticipant(c.Request.Context(), chatID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to check membership"})
		return 0, 0, false
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a chat participant"})
		return 0, 0, false
	}
	return chatID, userID, true
}

// GetChatMessages returns the chat history visible to the caller. Messages
// the caller deleted for themselves are filtered out; messages deleted for
// everyone appear with placeholder content.
func (h *MessageHandler) GetChatMessages(c *gin.Context) {
	chatID, userID, ok := h.requireParticipant(c)
	if !ok {
		return
	}

	messages, err := h.messageRepo.ListForUser(c.Request.Context(), chatID, userID)
	if err != nil {
		log.Error().Err(err).Int("chat_id", chatID).Msg("list messages failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

type postMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

// PostChatMessage persists a message and acks it to the sender. It does not
// broadcast; the sender drives fan-out over its websocket connection.
func (h *MessageHandler) PostChatMessage(c *gin.Context) {
	chatID, userID, ok := h.requireParticipant(c)
	if !ok {
		return
	}

	var req postMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message content is required"})
		return
	}

	message, err := h.messageRepo.CreateMessage(c.Request.Context(), chatID, userID, req.Content)
	if err != nil {
		log.Error().Err(err).Int("chat_id", chatID).Int("user_id", userID).Msg("create message failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save message"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": message})
}

type editMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

// EditMessage updates a message's content. Only the sender may edit, and
// deleted messages cannot be edited.
func (h *MessageHandler) EditMessage(c *gin.Context) {
	chatID, userID, ok := h.requireParticipant(c)
	if !ok {
		return
	}

	messageID, err := strconv.Atoi(c.Param("message_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return
	}

	var req editMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message content is required"})
		return
	}

	message, err := h.messageRepo.EditMessage(c.Request.Context(), messageID, userID, req.Content)
	if err != nil {
		if errors.Is(err, repositories.ErrMessageNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to edit message"})
		return
	}

	last, err := h.messageRepo.LatestVisible(c.Request.Context(), chatID)
	if err != nil {
		log.Warn().Err(err).Int("chat_id", chatID).Msg("last message recompute failed after edit")
	} else {
		h.hub.BroadcastRoom(ws.ChatRoom(chatID), models.Event{
			Type:        models.EventChatUpdated,
			ChatID:      chatID,
			LastMessage: last,
		}, nil)
	}

	c.JSON(http.StatusOK, gin.H{"message": message})
}

// DeleteMessage soft-deletes a message. The sender deletes for everyone and
// the content is replaced by a placeholder; anyone else deletes only for
// themselves. Persistence only: the client announces a delete-for-all over
// the socket once this returns, the same split as posting a message.
func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	chatID, userID, ok := h.requireParticipant(c)
	if !ok {
		return
	}

	messageID, err := strconv.Atoi(c.Param("message_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return
	}

	message, err := h.messageRepo.GetMessage(c.Request.Context(), messageID)
	if err != nil {
		if errors.Is(err, repositories.ErrMessageNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load message"})
		return
	}
	if message.ChatID != chatID {
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
		return
	}

	if message.SenderID == userID {
		if err := h.messageRepo.MarkDeletedForAll(c.Request.Context(), messageID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete message"})
			return
		}
	} else {
		if err := h.messageRepo.AddDeletionFor(c.Request.Context(), messageID, userID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete message"})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// DeleteChatMessages removes every message in the chat. Participants only.
func (h *MessageHandler) DeleteChatMessages(c *gin.Context) {
	chatID, _, ok := h.requireParticipant(c)
	if !ok {
		return
	}

	if err := h.messageRepo.DeleteAllInChat(c.Request.Context(), chatID); err != nil {
		log.Error().Err(err).Int("chat_id", chatID).Msg("delete chat messages failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// GetUnreadCounts returns the caller's unread message count per chat. Chats
// with nothing unread are absent from the map.
func (h *MessageHandler) GetUnreadCounts(c *gin.Context) {
	userID := middleware.UserID(c)

	counts, err := h.messageRepo.UnreadCounts(c.Request.Context(), userID)
	if err != nil {
		log.Error().Err(err).Int("user_id", userID).Msg("unread counts failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load unread counts"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"unread_counts": counts})
}

// MarkChatRead advances the caller's read watermark for a chat and echoes the
// event to their other connections.
func (h *MessageHandler) MarkChatRead(c *gin.Context) {
	chatID, userID, ok := h.requireParticipant(c)
	if !ok {
		return
	}

	if err := h.messageRepo.MarkChatRead(c.Request.Context(), chatID, userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mark chat read"})
		return
	}

	h.hub.BroadcastUsers([]int{userID}, models.Event{
		Type:   models.EventMarkRead,
		ChatID: chatID,
	})

	c.JSON(http.StatusOK, gin.H{"status": "marked"})
}
