package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messenger-service/internal/mocks"
	"messenger-service/internal/models"
	"messenger-service/internal/repositories"
	"messenger-service/internal/ws"
)

func setupMessageRouter(chatRepo *mocks.ChatRepositoryMock, messageRepo *mocks.MessageRepositoryMock) *gin.Engine {
	gin.SetMode(gin.TestMode)
	handler := NewMessageHandler(chatRepo, messageRepo, ws.NewHub())

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", 1)
		c.Next()
	})
	r.GET("/chats/:chat_id/messages", handler.GetChatMessages)
	r.POST("/chats/:chat_id/messages", handler.PostChatMessage)
	r.PUT("/chats/:chat_id/messages/:message_id", handler.EditMessage)
	r.DELETE("/chats/:chat_id/messages/:message_id", handler.DeleteMessage)
	r.DELETE("/chats/:chat_id/messages", handler.DeleteChatMessages)
	r.GET("/messages/unread-counts", handler.GetUnreadCounts)
	r.PUT("/messages/mark-read/:chat_id", handler.MarkChatRead)
	return r
}

func TestGetChatMessagesForbiddenForNonParticipant(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	router := setupMessageRouter(chatRepo, messageRepo)

	chatRepo.On("IsParticipant", mock.Anything, 7, 1).Return(false, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/chats/7/messages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	messageRepo.AssertNotCalled(t, "ListForUser")
}

func TestGetChatMessagesSuccess(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	router := setupMessageRouter(chatRepo, messageRepo)

	chatRepo.On("IsParticipant", mock.Anything, 7, 1).Return(true, nil).Once()
	messageRepo.On("ListForUser", mock.Anything, 7, 1).
		Return([]models.Message{{ID: 1, ChatID: 7, Content: "hi"}}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/chats/7/messages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	messageRepo.AssertExpectations(t)
}

func TestPostChatMessagePersistsWithoutBroadcast(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	router := setupMessageRouter(chatRepo, messageRepo)

	chatRepo.On("IsParticipant", mock.Anything, 7, 1).Return(true, nil).Once()
	messageRepo.On("CreateMessage", mock.Anything, 7, 1, "hello").
		Return(models.Message{ID: 10, ChatID: 7, SenderID: 1, Content: "hello"}, nil).Once()

	body := bytes.NewBufferString(`{"content":"hello"}`)
	req := httptest.NewRequest(http.MethodPost, "/chats/7/messages", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp struct {
		Message models.Message `json:"message"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, 10, resp.Message.ID)
	messageRepo.AssertExpectations(t)
}

func TestDeleteMessageBySenderDeletesForAll(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	router := setupMessageRouter(chatRepo, messageRepo)

	chatRepo.On("IsParticipant", mock.Anything, 7, 1).Return(true, nil).Once()
	messageRepo.On("GetMessage", mock.Anything, 10).
		Return(models.Message{ID: 10, ChatID: 7, SenderID: 1}, nil).Once()
	messageRepo.On("MarkDeletedForAll", mock.Anything, 10).Return(nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/chats/7/messages/10", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	messageRepo.AssertExpectations(t)
	messageRepo.AssertNotCalled(t, "AddDeletionFor")
	// The socket relay owns the delete broadcast, so the handler recomputes
	// nothing itself.
	messageRepo.AssertNotCalled(t, "LatestVisible")
}

func TestDeleteMessageByRecipientDeletesForMe(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	router := setupMessageRouter(chatRepo, messageRepo)

	chatRepo.On("IsParticipant", mock.Anything, 7, 1).Return(true, nil).Once()
	messageRepo.On("GetMessage", mock.Anything, 10).
		Return(models.Message{ID: 10, ChatID: 7, SenderID: 2}, nil).Once()
	messageRepo.On("AddDeletionFor", mock.Anything, 10, 1).Return(nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/chats/7/messages/10", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	messageRepo.AssertExpectations(t)
	messageRepo.AssertNotCalled(t, "MarkDeletedForAll")
}

func TestDeleteMessageWrongChat(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	router := setupMessageRouter(chatRepo, messageRepo)

	chatRepo.On("IsParticipant", mock.Anything, 7, 1).Return(true, nil).Once()
	messageRepo.On("GetMessage", mock.Anything, 10).
		Return(models.Message{ID: 10, ChatID: 8, SenderID: 1}, nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/chats/7/messages/10", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	messageRepo.AssertNotCalled(t, "MarkDeletedForAll")
	messageRepo.AssertNotCalled(t, "AddDeletionFor")
}

func TestDeleteMessageUnknown(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	router := setupMessageRouter(chatRepo, messageRepo)

	chatRepo.On("IsParticipant", mock.Anything, 7, 1).Return(true, nil).Once()
	messageRepo.On("GetMessage", mock.Anything, 10).
		Return(models.Message{}, repositories.ErrMessageNotFound).Once()

	req := httptest.NewRequest(http.MethodDelete, "/chats/7/messages/10", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEditMessageNotOwnedReturnsNotFound(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	router := setupMessageRouter(chatRepo, messageRepo)

	chatRepo.On("IsParticipant", mock.Anything, 7, 1).Return(true, nil).Once()
	messageRepo.On("EditMessage", mock.Anything, 10, 1, "changed").
		Return(models.Message{}, repositories.ErrMessageNotFound).Once()

	body := bytes.NewBufferString(`{"content":"changed"}`)
	req := httptest.NewRequest(http.MethodPut, "/chats/7/messages/10", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteChatMessages(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	router := setupMessageRouter(chatRepo, messageRepo)

	chatRepo.On("IsParticipant", mock.Anything, 7, 1).Return(true, nil).Once()
	messageRepo.On("DeleteAllInChat", mock.Anything, 7).Return(nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/chats/7/messages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	messageRepo.AssertExpectations(t)
}

func TestGetUnreadCountsOmitsZeroEntries(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	router := setupMessageRouter(chatRepo, messageRepo)

	messageRepo.On("UnreadCounts", mock.Anything, 1).
		Return(map[int]int{7: 3}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/messages/unread-counts", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		UnreadCounts map[string]int `json:"unread_counts"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, map[string]int{"7": 3}, resp.UnreadCounts)
}

func TestMarkChatRead(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	router := setupMessageRouter(chatRepo, messageRepo)

	chatRepo.On("IsParticipant", mock.Anything, 7, 1).Return(true, nil).Once()
	messageRepo.On("MarkChatRead", mock.Anything, 7, 1).Return(nil).Once()

	req := httptest.NewRequest(http.MethodPut, "/messages/mark-read/7", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	messageRepo.AssertExpectations(t)
}
