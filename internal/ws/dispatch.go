package ws

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"messenger-service/internal/models"
)

// dispatch routes one inbound client command. Membership violations are
// protocol violations from a misbehaving or stale client: they are dropped
// with a warning and never surfaced to the actor as errors.
func (h *Handler) dispatch(client *Client, event models.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	switch event.Type {
	case models.EventJoinChat:
		h.handleJoinChat(ctx, client, event)
	case models.EventLeaveChat:
		h.handleLeaveChat(client, event)
	case models.EventTyping, models.EventStopTyping:
		h.handleTyping(client, event)
	case models.EventNewMessage:
		h.handleNewMessage(ctx, client, event)
	case models.EventMessageDeleted:
		h.handleMessageDeleted(ctx, client, event)
	case models.EventMarkRead:
		h.handleMarkRead(ctx, client, event)
	default:
		log.Warn().Str("event", event.Type).Int("user_id", client.UserID).
			Msg("unknown websocket command")
	}
}

func (h *Handler) handleJoinChat(ctx context.Context, client *Client, event models.Event) {
	if event.ChatID == 0 {
		log.Warn().Int("user_id", client.UserID).Msg("join chat with no chat id")
		return
	}
	member, err := h.chats.IsParticipant(ctx, event.ChatID, client.UserID)
	if err != nil {
		log.Error().Err(err).Int("chat_id", event.ChatID).Msg("verify chat membership")
		h.sendError(client, "failed to join chat")
		return
	}
	if !member {
		log.Warn().Int("user_id", client.UserID).Int("chat_id", event.ChatID).
			Msg("join attempt on chat without membership")
		return
	}
	h.hub.JoinChat(client, event.ChatID)
}

func (h *Handler) handleLeaveChat(client *Client, event models.Event) {
	if event.ChatID == 0 {
		log.Warn().Int("user_id", client.UserID).Msg("leave chat with no chat id")
		return
	}
	h.hub.LeaveChat(client, event.ChatID)
}

// handleTyping relays a typing or stop-typing signal to the chat room,
// excluding the sender. Signals for rooms the connection has not joined are
// dropped so a client cannot spoof indicators into chats it never subscribed
// to.
func (h *Handler) handleTyping(client *Client, event models.Event) {
	if event.ChatID == 0 {
		log.Warn().Int("user_id", client.UserID).Str("event", event.Type).
			Msg("typing signal with no chat id")
		return
	}
	if !h.hub.InChat(client, event.ChatID) {
		log.Warn().Int("user_id", client.UserID).Int("chat_id", event.ChatID).
			Str("event", event.Type).Msg("typing signal for room not joined")
		return
	}
	h.hub.BroadcastRoom(ChatRoom(event.ChatID), models.Event{
		Type:   event.Type,
		ChatID: event.ChatID,
		UserID: userIDString(client.UserID),
	}, client)
}

// handleNewMessage fans a freshly persisted message out to the chat room and
// notifies every participant's devices for unread badges and chat-list
// previews. The HTTP acknowledgment to the sender and this broadcast are
// independent channels.
func (h *Handler) handleNewMessage(ctx context.Context, client *Client, event models.Event) {
	if event.MessageID == 0 {
		log.Warn().Int("user_id", client.UserID).Msg("new message with no message id")
		return
	}
	msg, err := h.messages.GetMessage(ctx, event.MessageID)
	if err != nil {
		log.Error().Err(err).Int("message_id", event.MessageID).Msg("load message for fan-out")
		h.sendError(client, "message not found")
		return
	}
	if msg.SenderID != client.UserID {
		log.Warn().Int("user_id", client.UserID).Int("message_id", msg.ID).
			Msg("fan-out attempt for another sender's message")
		return
	}

	h.hub.BroadcastRoom(ChatRoom(msg.ChatID), models.Event{
		Type:    models.EventMessageReceived,
		ChatID:  msg.ChatID,
		Message: &msg,
	}, client)

	participants, err := h.chats.ParticipantIDs(ctx, msg.ChatID)
	if err != nil {
		log.Error().Err(err).Int("chat_id", msg.ChatID).Msg("load participants for fan-out")
		return
	}
	recipients := make([]int, 0, len(participants))
	for _, id := range participants {
		if id != msg.SenderID {
			recipients = append(recipients, id)
		}
	}
	for _, id := range recipients {
		_, err := h.notifications.Create(ctx, models.Notification{
			UserID:    id,
			SenderID:  msg.SenderID,
			Type:      models.NotificationNewMessage,
			ChatID:    msg.ChatID,
			MessageID: msg.ID,
			Content:   msg.Content,
		})
		if err != nil {
			log.Error().Err(err).Int("user_id", id).Int("message_id", msg.ID).
				Msg("persist notification")
		}
	}
	// recipients learn about unread growth on every device, chat open or not
	h.hub.BroadcastUsers(recipients, models.Event{
		Type:     models.EventUnreadCount,
		ChatID:   msg.ChatID,
		SenderID: msg.SenderID,
	})
	h.hub.BroadcastUsers(participants, models.Event{
		Type:        models.EventChatUpdated,
		ChatID:      msg.ChatID,
		LastMessage: &msg,
	})
}

// handleMessageDeleted rebroadcasts a delete-for-all to the chat room with
// the recomputed last-message preview, sender included, so detail views and
// chat lists update together. The stored message is the source of truth: a
// relay for a message that is not actually deleted, or that lives in another
// chat, is a fabrication and gets dropped.
func (h *Handler) handleMessageDeleted(ctx context.Context, client *Client, event models.Event) {
	if event.ChatID == 0 || event.MessageID == 0 {
		log.Warn().Int("user_id", client.UserID).Msg("message deleted with no chat or message id")
		return
	}
	if !h.hub.InChat(client, event.ChatID) {
		log.Warn().Int("user_id", client.UserID).Int("chat_id", event.ChatID).
			Msg("delete broadcast for room not joined")
		return
	}
	msg, err := h.messages.GetMessage(ctx, event.MessageID)
	if err != nil {
		log.Error().Err(err).Int("message_id", event.MessageID).Msg("load message for delete broadcast")
		h.sendError(client, "message not found")
		return
	}
	if msg.ChatID != event.ChatID || !msg.DeletedForAll {
		log.Warn().Int("user_id", client.UserID).Int("chat_id", event.ChatID).
			Int("message_id", event.MessageID).Msg("delete broadcast for message not deleted")
		return
	}
	last, err := h.messages.LatestVisible(ctx, event.ChatID)
	if err != nil {
		log.Error().Err(err).Int("chat_id", event.ChatID).Msg("recompute last message")
		h.sendError(client, "failed to update chat preview")
		return
	}
	h.hub.BroadcastRoom(ChatRoom(event.ChatID), models.Event{
		Type:        models.EventMessageDeleted,
		ChatID:      event.ChatID,
		MessageID:   event.MessageID,
		LastMessage: last,
	}, nil)
}

// handleMarkRead zeroes the caller's read watermark and tells their other
// devices so every badge clears at once.
func (h *Handler) handleMarkRead(ctx context.Context, client *Client, event models.Event) {
	if event.ChatID == 0 {
		log.Warn().Int("user_id", client.UserID).Msg("mark read with no chat id")
		return
	}
	member, err := h.chats.IsParticipant(ctx, event.ChatID, client.UserID)
	if err != nil {
		log.Error().Err(err).Int("chat_id", event.ChatID).Msg("check chat membership")
		h.sendError(client, "failed to mark chat read")
		return
	}
	if !member {
		log.Warn().Int("user_id", client.UserID).Int("chat_id", event.ChatID).
			Msg("mark read without membership")
		return
	}
	if err := h.messages.MarkChatRead(ctx, event.ChatID, client.UserID); err != nil {
		log.Error().Err(err).Int("chat_id", event.ChatID).Msg("persist read watermark")
		h.sendError(client, "failed to mark chat read")
		return
	}
	h.hub.BroadcastUsers([]int{client.UserID}, models.Event{
		Type:   models.EventMarkRead,
		ChatID: event.ChatID,
	})
}

func (h *Handler) sendError(client *Client, message string) {
	payload, err := json.Marshal(models.Event{Type: models.EventError, Error: message})
	if err != nil {
		return
	}
	_ = client.enqueue(payload)
}
