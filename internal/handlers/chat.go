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

// ChatHandler manages chat listing and creation endpoints.
type ChatHandler struct {
	chatRepo repositories.ChatRepository
	hub      *ws.Hub
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(chatRepo repositories.ChatRepository, hub *ws.Hub) *ChatHandler {
	return &ChatHandler{chatRepo: chatRepo, hub: hub}
}

// ListChats returns the caller's chats, most recently active first.
func (h *ChatHandler) ListChats(c *gin.Context) {
	userID := middleware.UserID(c)

	chats, err := h.chatRepo.ListChats(c.Request.Context(), userID)
	if err != nil {
		log.Error().Err(err).Int("user_id", userID).Msg("list chats failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load chats"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

type startChatRequest struct {
	FriendID int `json:"friend_id" binding:"required"`
}

// StartChat returns the direct chat with the given user, creating it if
// necessary. Repeated calls with the same pair return the same chat.
func (h *ChatHandler) StartChat(c *gin.Context) {
	userID := middleware.UserID(c)

	var req startChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.FriendID == userID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot start a chat with yourself"})
		return
	}

	chat, err := h.chatRepo.CreateOrGetDirectChat(c.Request.Context(), userID, req.FriendID)
	if err != nil {
		log.Error().Err(err).Int("user_id", userID).Int("friend_id", req.FriendID).Msg("start chat failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start chat"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"chat": chat})
}

type createGroupRequest struct {
	Name      string `json:"name" binding:"required"`
	MemberIDs []int  `json:"member_ids" binding:"required,min=2"`
	AvatarURL string `json:"avatar_url"`
}

// CreateGroup creates a group chat with the caller as admin.
func (h *ChatHandler) CreateGroup(c *gin.Context) {
	userID := middleware.UserID(c)

	var req createGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "a name and at least two members are required"})
		return
	}

	chat, err := h.chatRepo.CreateGroupChat(c.Request.Context(), userID, req.Name, req.AvatarURL, req.MemberIDs)
	if err != nil {
		log.Error().Err(err).Int("user_id", userID).Msg("create group failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create group"})
		return
	}

	// Pull the new group into every member's chat list.
	h.hub.BroadcastUsers(chat.ParticipantIDs(), models.Event{
		Type:   models.EventChatUpdated,
		ChatID: chat.ID,
	})

	c.JSON(http.StatusCreated, gin.H{"chat": chat})
}

type renameGroupRequest struct {
	Name string `json:"name" binding:"required"`
}

// RenameGroup renames a group chat. Only the group admin may rename.
func (h *ChatHandler) RenameGroup(c *gin.Context) {
	userID := middleware.UserID(c)

	chatID, err := strconv.Atoi(c.Param("chat_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return
	}

	var req renameGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	chat, err := h.chatRepo.GetChat(c.Request.Context(), chatID)
	if err != nil {
		if errors.Is(err, repositories.ErrChatNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load chat"})
		return
	}
	if chat.AdminID == nil || *chat.AdminID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "only the group admin can rename"})
		return
	}

	if err := h.chatRepo.RenameGroup(c.Request.Context(), chatID, req.Name); err != nil {
		if errors.Is(err, repositories.ErrNotGroupChat) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "not a group chat"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to rename group"})
		return
	}

	h.hub.BroadcastUsers(chat.ParticipantIDs(), models.Event{
		Type:   models.EventChatUpdated,
		ChatID: chatID,
	})

	c.JSON(http.StatusOK, gin.H{"status": "renamed"})
}
