package ws

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messenger-service/internal/mocks"
	"messenger-service/internal/models"
	"messenger-service/internal/security"
)

type wsFixture struct {
	server        *httptest.Server
	hub           *Hub
	presence      *Presence
	tokens        *security.TokenService
	users         *mocks.UserRepositoryMock
	chats         *mocks.ChatRepositoryMock
	messages      *mocks.MessageRepositoryMock
	notifications *mocks.NotificationRepositoryMock
}

func newWSFixture(t *testing.T) *wsFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &wsFixture{
		hub:           NewHub(),
		presence:      NewPresence(),
		tokens:        security.NewTokenService("test-secret", time.Hour),
		users:         new(mocks.UserRepositoryMock),
		chats:         new(mocks.ChatRepositoryMock),
		messages:      new(mocks.MessageRepositoryMock),
		notifications: new(mocks.NotificationRepositoryMock),
	}

	handler := NewHandler(f.hub, f.presence, f.tokens, f.users, f.chats, f.messages, f.notifications, nil)
	router := gin.New()
	router.GET("/ws", handler.Handle)

	f.server = httptest.NewServer(router)
	t.Cleanup(f.server.Close)
	return f
}

func (f *wsFixture) connect(t *testing.T, userID int) *websocket.Conn {
	t.Helper()

	f.users.On("GetUser", mock.Anything, userID).Return(models.User{ID: userID}, nil)
	f.users.On("SetOnlineStatus", mock.Anything, userID, true).Return(nil)
	f.users.On("SetOnlineStatus", mock.Anything, userID, false).Return(nil)

	token, err := f.tokens.CreateForUser(userID)
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads events until one of the wanted type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, eventType string) models.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var event models.Event
		require.NoError(t, conn.ReadJSON(&event), "waiting for %q", eventType)
		if event.Type == eventType {
			return event
		}
	}
}

// expectNone drains the connection briefly and fails if any event of the
// given types shows up. Presence chatter from connection setup is ignored.
func expectNone(t *testing.T, conn *websocket.Conn, types ...string) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	for {
		var event models.Event
		if err := conn.ReadJSON(&event); err != nil {
			return // deadline hit, nothing forbidden arrived
		}
		for _, banned := range types {
			require.NotEqual(t, banned, event.Type, "event should not have been delivered")
		}
	}
}

func TestHandshakeRejectsBadToken(t *testing.T) {
	f := newWSFixture(t)

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws?token=garbage"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	require.Equal(t, 0, f.presence.Count())
}

func TestHandshakeRejectsMissingToken(t *testing.T) {
	f := newWSFixture(t)

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestPresenceBroadcastOnConnectAndDisconnect(t *testing.T) {
	f := newWSFixture(t)

	watcher := f.connect(t, 1)
	readUntil(t, watcher, models.EventOnlineUsers)

	peer := f.connect(t, 2)
	online := readUntil(t, watcher, models.EventUserOnline)
	require.Equal(t, "2", online.UserID)
	roster := readUntil(t, watcher, models.EventOnlineUsers)
	require.Contains(t, roster.UserIDs, "1")
	require.Contains(t, roster.UserIDs, "2")

	peer.Close()
	offline := readUntil(t, watcher, models.EventUserOffline)
	require.Equal(t, "2", offline.UserID)
	roster = readUntil(t, watcher, models.EventOnlineUsers)
	require.NotContains(t, roster.UserIDs, "2")
}

func TestSecondConnectionDoesNotRebroadcastOnline(t *testing.T) {
	f := newWSFixture(t)

	watcher := f.connect(t, 1)
	readUntil(t, watcher, models.EventOnlineUsers)

	phone := f.connect(t, 2)
	readUntil(t, watcher, models.EventUserOnline)
	readUntil(t, watcher, models.EventOnlineUsers)

	laptop := f.connect(t, 2)
	// second connection of the same user: roster only, no unary event
	roster := readUntil(t, watcher, models.EventOnlineUsers)
	require.Contains(t, roster.UserIDs, "2")

	laptop.Close()
	roster = readUntil(t, watcher, models.EventOnlineUsers)
	require.Contains(t, roster.UserIDs, "2", "still online through remaining connection")

	phone.Close()
	offline := readUntil(t, watcher, models.EventUserOffline)
	require.Equal(t, "2", offline.UserID)
}

func TestTypingRelayToRoomPeers(t *testing.T) {
	f := newWSFixture(t)
	f.chats.On("IsParticipant", mock.Anything, 7, 1).Return(true, nil)
	f.chats.On("IsParticipant", mock.Anything, 7, 2).Return(true, nil)

	typist := f.connect(t, 1)
	peer := f.connect(t, 2)

	require.NoError(t, typist.WriteJSON(models.Event{Type: models.EventJoinChat, ChatID: 7}))
	require.NoError(t, peer.WriteJSON(models.Event{Type: models.EventJoinChat, ChatID: 7}))
	require.Eventually(t, func() bool { return f.hub.RoomSize(ChatRoom(7)) == 2 },
		2*time.Second, 10*time.Millisecond)

	require.NoError(t, typist.WriteJSON(models.Event{Type: models.EventTyping, ChatID: 7}))
	event := readUntil(t, peer, models.EventTyping)
	require.Equal(t, 7, event.ChatID)
	require.Equal(t, "1", event.UserID)

	require.NoError(t, typist.WriteJSON(models.Event{Type: models.EventStopTyping, ChatID: 7}))
	event = readUntil(t, peer, models.EventStopTyping)
	require.Equal(t, "1", event.UserID)

	// the typist never hears its own indicator
	expectNone(t, typist, models.EventTyping, models.EventStopTyping)
}

func TestTypingDroppedWhenRoomNotJoined(t *testing.T) {
	f := newWSFixture(t)
	f.chats.On("IsParticipant", mock.Anything, 7, 1).Return(true, nil)

	member := f.connect(t, 1)
	lurker := f.connect(t, 2)

	require.NoError(t, member.WriteJSON(models.Event{Type: models.EventJoinChat, ChatID: 7}))
	require.Eventually(t, func() bool { return f.hub.RoomSize(ChatRoom(7)) == 1 },
		2*time.Second, 10*time.Millisecond)

	// lurker never joined chat 7; its signal must not reach the member
	require.NoError(t, lurker.WriteJSON(models.Event{Type: models.EventTyping, ChatID: 7}))
	expectNone(t, member, models.EventTyping)
}

func TestNonMemberJoinIsDropped(t *testing.T) {
	f := newWSFixture(t)
	f.chats.On("IsParticipant", mock.Anything, 7, 2).Return(false, nil)

	outsider := f.connect(t, 2)
	require.NoError(t, outsider.WriteJSON(models.Event{Type: models.EventJoinChat, ChatID: 7}))

	require.Never(t, func() bool { return f.hub.RoomSize(ChatRoom(7)) > 0 },
		300*time.Millisecond, 20*time.Millisecond)
	// no error event comes back either; the command is silently dropped
	expectNone(t, outsider, models.EventError)
}

func TestNewMessageFanOut(t *testing.T) {
	f := newWSFixture(t)
	f.chats.On("IsParticipant", mock.Anything, 7, 1).Return(true, nil)
	f.chats.On("IsParticipant", mock.Anything, 7, 2).Return(true, nil)
	f.chats.On("ParticipantIDs", mock.Anything, 7).Return([]int{1, 2}, nil)

	msg := models.Message{ID: 10, ChatID: 7, SenderID: 1, Content: "hello"}
	f.messages.On("GetMessage", mock.Anything, 10).Return(msg, nil)

	wantNotification := models.Notification{
		UserID: 2, SenderID: 1, Type: models.NotificationNewMessage,
		ChatID: 7, MessageID: 10, Content: "hello",
	}
	f.notifications.On("Create", mock.Anything, wantNotification).
		Return(wantNotification, nil).Once()

	sender := f.connect(t, 1)
	peer := f.connect(t, 2)

	require.NoError(t, sender.WriteJSON(models.Event{Type: models.EventJoinChat, ChatID: 7}))
	require.NoError(t, peer.WriteJSON(models.Event{Type: models.EventJoinChat, ChatID: 7}))
	require.Eventually(t, func() bool { return f.hub.RoomSize(ChatRoom(7)) == 2 },
		2*time.Second, 10*time.Millisecond)

	require.NoError(t, sender.WriteJSON(models.Event{Type: models.EventNewMessage, ChatID: 7, MessageID: 10}))

	received := readUntil(t, peer, models.EventMessageReceived)
	require.NotNil(t, received.Message)
	require.Equal(t, "hello", received.Message.Content)

	unread := readUntil(t, peer, models.EventUnreadCount)
	require.Equal(t, 7, unread.ChatID)
	require.Equal(t, 1, unread.SenderID)

	// sender gets the chat-list preview but neither the echo nor an unread bump
	updated := readUntil(t, sender, models.EventChatUpdated)
	require.Equal(t, 7, updated.ChatID)
	require.NotNil(t, updated.LastMessage)
	expectNone(t, sender, models.EventMessageReceived, models.EventUnreadCount)

	// every recipient except the sender got a persisted notification
	f.notifications.AssertExpectations(t)
}

func TestNewMessageSpoofedSenderIsDropped(t *testing.T) {
	f := newWSFixture(t)
	f.chats.On("IsParticipant", mock.Anything, 7, 1).Return(true, nil)
	f.chats.On("IsParticipant", mock.Anything, 7, 2).Return(true, nil)

	msg := models.Message{ID: 10, ChatID: 7, SenderID: 1, Content: "hello"}
	f.messages.On("GetMessage", mock.Anything, 10).Return(msg, nil)

	victim := f.connect(t, 1)
	spoofer := f.connect(t, 2)

	require.NoError(t, victim.WriteJSON(models.Event{Type: models.EventJoinChat, ChatID: 7}))
	require.NoError(t, spoofer.WriteJSON(models.Event{Type: models.EventJoinChat, ChatID: 7}))
	require.Eventually(t, func() bool { return f.hub.RoomSize(ChatRoom(7)) == 2 },
		2*time.Second, 10*time.Millisecond)

	// spoofer tries to fan out the victim's message
	require.NoError(t, spoofer.WriteJSON(models.Event{Type: models.EventNewMessage, ChatID: 7, MessageID: 10}))
	expectNone(t, victim, models.EventMessageReceived)
}

func TestDeleteBroadcastReachesRoom(t *testing.T) {
	f := newWSFixture(t)
	f.chats.On("IsParticipant", mock.Anything, 7, 1).Return(true, nil)
	f.chats.On("IsParticipant", mock.Anything, 7, 2).Return(true, nil)

	deleted := models.Message{ID: 10, ChatID: 7, SenderID: 1,
		Content: models.DeletedPlaceholder, DeletedForAll: true}
	f.messages.On("GetMessage", mock.Anything, 10).Return(deleted, nil)
	f.messages.On("LatestVisible", mock.Anything, 7).
		Return(&models.Message{ID: 9, ChatID: 7, Content: "previous"}, nil)

	sender := f.connect(t, 1)
	peer := f.connect(t, 2)

	require.NoError(t, sender.WriteJSON(models.Event{Type: models.EventJoinChat, ChatID: 7}))
	require.NoError(t, peer.WriteJSON(models.Event{Type: models.EventJoinChat, ChatID: 7}))
	require.Eventually(t, func() bool { return f.hub.RoomSize(ChatRoom(7)) == 2 },
		2*time.Second, 10*time.Millisecond)

	require.NoError(t, sender.WriteJSON(models.Event{Type: models.EventMessageDeleted, ChatID: 7, MessageID: 10}))

	event := readUntil(t, peer, models.EventMessageDeleted)
	require.Equal(t, 10, event.MessageID)
	require.NotNil(t, event.LastMessage)
	require.Equal(t, "previous", event.LastMessage.Content)
}

func TestDeleteBroadcastForLiveMessageIsDropped(t *testing.T) {
	f := newWSFixture(t)
	f.chats.On("IsParticipant", mock.Anything, 7, 1).Return(true, nil)
	f.chats.On("IsParticipant", mock.Anything, 7, 2).Return(true, nil)

	// message exists but nobody deleted it; a relay claiming otherwise is bogus
	f.messages.On("GetMessage", mock.Anything, 10).
		Return(models.Message{ID: 10, ChatID: 7, SenderID: 1, Content: "hello"}, nil)

	victim := f.connect(t, 1)
	vandal := f.connect(t, 2)

	require.NoError(t, victim.WriteJSON(models.Event{Type: models.EventJoinChat, ChatID: 7}))
	require.NoError(t, vandal.WriteJSON(models.Event{Type: models.EventJoinChat, ChatID: 7}))
	require.Eventually(t, func() bool { return f.hub.RoomSize(ChatRoom(7)) == 2 },
		2*time.Second, 10*time.Millisecond)

	require.NoError(t, vandal.WriteJSON(models.Event{Type: models.EventMessageDeleted, ChatID: 7, MessageID: 10}))
	expectNone(t, victim, models.EventMessageDeleted)
	f.messages.AssertNotCalled(t, "LatestVisible", mock.Anything, 7)
}

func TestDeleteBroadcastForWrongChatIsDropped(t *testing.T) {
	f := newWSFixture(t)
	f.chats.On("IsParticipant", mock.Anything, 7, 1).Return(true, nil)
	f.chats.On("IsParticipant", mock.Anything, 7, 2).Return(true, nil)

	// deleted for all, but it lives in chat 9, not the room being told
	f.messages.On("GetMessage", mock.Anything, 10).
		Return(models.Message{ID: 10, ChatID: 9, SenderID: 2, DeletedForAll: true}, nil)

	victim := f.connect(t, 1)
	vandal := f.connect(t, 2)

	require.NoError(t, victim.WriteJSON(models.Event{Type: models.EventJoinChat, ChatID: 7}))
	require.NoError(t, vandal.WriteJSON(models.Event{Type: models.EventJoinChat, ChatID: 7}))
	require.Eventually(t, func() bool { return f.hub.RoomSize(ChatRoom(7)) == 2 },
		2*time.Second, 10*time.Millisecond)

	require.NoError(t, vandal.WriteJSON(models.Event{Type: models.EventMessageDeleted, ChatID: 7, MessageID: 10}))
	expectNone(t, victim, models.EventMessageDeleted)
}

func TestMarkReadRepoErrorReportsToCaller(t *testing.T) {
	f := newWSFixture(t)
	f.chats.On("IsParticipant", mock.Anything, 7, 1).
		Return(false, errors.New("connection refused"))

	conn := f.connect(t, 1)
	require.NoError(t, conn.WriteJSON(models.Event{Type: models.EventMarkRead, ChatID: 7}))

	event := readUntil(t, conn, models.EventError)
	require.Equal(t, "failed to mark chat read", event.Error)
	f.messages.AssertNotCalled(t, "MarkChatRead", mock.Anything, 7, 1)
}

func TestMarkReadEchoesToOwnDevices(t *testing.T) {
	f := newWSFixture(t)
	f.chats.On("IsParticipant", mock.Anything, 7, 1).Return(true, nil)
	f.messages.On("MarkChatRead", mock.Anything, 7, 1).Return(nil)

	phone := f.connect(t, 1)
	laptop := f.connect(t, 1)

	require.NoError(t, phone.WriteJSON(models.Event{Type: models.EventMarkRead, ChatID: 7}))

	event := readUntil(t, laptop, models.EventMarkRead)
	require.Equal(t, 7, event.ChatID)
}
