package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"messenger-service/internal/middleware"
	"messenger-service/internal/repositories"
)

const (
	defaultNotificationPage  = 1
	defaultNotificationLimit = 20
	maxNotificationLimit     = 100
)

// NotificationHandler serves the caller's notification inbox. Everything is
// scoped to the authenticated user; another recipient's notification id reads
// as not found.
type NotificationHandler struct {
	notificationRepo repositories.NotificationRepository
}

// NewNotificationHandler builds a NotificationHandler.
func NewNotificationHandler(notificationRepo repositories.NotificationRepository) *NotificationHandler {
	return &NotificationHandler{notificationRepo: notificationRepo}
}

// ListNotifications returns a page of the caller's notifications, newest
// first. ?unread_only=true narrows to unacknowledged ones.
func (h *NotificationHandler) ListNotifications(c *gin.Context) {
	userID := middleware.UserID(c)

	page, err := strconv.Atoi(c.DefaultQuery("page", strconv.Itoa(defaultNotificationPage)))
	if err != nil || page < 1 {
		page = defaultNotificationPage
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultNotificationLimit)))
	if err != nil || limit < 1 || limit > maxNotificationLimit {
		limit = defaultNotificationLimit
	}
	unreadOnly := c.Query("unread_only") == "true"

	notifications, total, err := h.notificationRepo.List(
		c.Request.Context(), userID, limit, (page-1)*limit, unreadOnly)
	if err != nil {
		log.Error().Err(err).Int("user_id", userID).Msg("list notifications failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load notifications"})
		return
	}

	totalPages := (total + limit - 1) / limit
	c.JSON(http.StatusOK, gin.H{
		"notifications": notifications,
		"total":         total,
		"total_pages":   totalPages,
		"current_page":  page,
	})
}

// GetUnreadNotificationCount returns how many notifications the caller has
// not acknowledged.
func (h *NotificationHandler) GetUnreadNotificationCount(c *gin.Context) {
	userID := middleware.UserID(c)

	count, err := h.notificationRepo.UnreadCount(c.Request.Context(), userID)
	if err != nil {
		log.Error().Err(err).Int("user_id", userID).Msg("unread notification count failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count notifications"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"unread_count": count})
}

// MarkNotificationRead acknowledges one notification.
func (h *NotificationHandler) MarkNotificationRead(c *gin.Context) {
	userID := middleware.UserID(c)

	notificationID, err := strconv.Atoi(c.Param("notification_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notification id"})
		return
	}

	err = h.notificationRepo.MarkRead(c.Request.Context(), notificationID, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotificationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "notification not found"})
			return
		}
		log.Error().Err(err).Int("notification_id", notificationID).Msg("mark notification read failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mark notification read"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "read"})
}

// MarkAllNotificationsRead acknowledges every unread notification and reports
// how many changed.
func (h *NotificationHandler) MarkAllNotificationsRead(c *gin.Context) {
	userID := middleware.UserID(c)

	count, err := h.notificationRepo.MarkAllRead(c.Request.Context(), userID)
	if err != nil {
		log.Error().Err(err).Int("user_id", userID).Msg("mark all notifications read failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mark notifications read"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "read", "modified": count})
}

// DeleteNotification removes one of the caller's notifications.
func (h *NotificationHandler) DeleteNotification(c *gin.Context) {
	userID := middleware.UserID(c)

	notificationID, err := strconv.Atoi(c.Param("notification_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notification id"})
		return
	}

	err = h.notificationRepo.Delete(c.Request.Context(), notificationID, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotificationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "notification not found"})
			return
		}
		log.Error().Err(err).Int("notification_id", notificationID).Msg("delete notification failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete notification"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
