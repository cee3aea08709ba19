package chatws

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/kaveh-r/GymAppBack/internal/models"
	"github.com/kaveh-r/GymAppBack/internal/services"
)

type stubChatSender struct {
	authorizeErr error
	appendErr    error
	delivery     *services.ChatDelivery

	authorized []int64
	appended   []int64
}

func (s *stubChatSender) AppendMessage(_ context.Context, _ int64, _ string, conversationID int64, _ models.MessageContent) (*services.ChatDelivery, error) {
	s.appended = append(s.appended, conversationID)
	if s.appendErr != nil {
		return nil, s.appendErr
	}
	return s.delivery, nil
}

func (s *stubChatSender) Authorize(_ context.Context, _ int64, _ string, conversationID int64) error {
	s.authorized = append(s.authorized, conversationID)
	return s.authorizeErr
}

func encodeFrame(t *testing.T, envelope Envelope) []byte {
	t.Helper()
	payload, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("encode frame: %v", err)
	}
	return payload
}

func TestTypingFrameRequiresParticipation(t *testing.T) {
	hub := NewHub()
	typist := NewClient(hub, nil, 1)
	peer := NewClient(hub, nil, 2)
	hub.clients[1] = map[*Client]struct{}{typist: {}}
	hub.clients[2] = map[*Client]struct{}{peer: {}}
	hub.rooms[10] = map[*Client]struct{}{typist: {}, peer: {}}

	service := &stubChatSender{authorizeErr: errors.New("not a participant")}
	typist.handleFrame(service, models.RoleMember, encodeFrame(t, Envelope{
		Event:          EventTyping,
		ConversationID: 10,
	}))
	drainOutbound(hub)

	if len(service.authorized) != 1 || service.authorized[0] != 10 {
		t.Fatalf("typing frame skipped authorization: %v", service.authorized)
	}
	select {
	case payload := <-peer.send:
		t.Fatalf("unauthorized typing indicator relayed: %s", payload)
	default:
	}

	service.authorizeErr = nil
	typist.handleFrame(service, models.RoleMember, encodeFrame(t, Envelope{
		Event:          EventTyping,
		ConversationID: 10,
	}))
	drainOutbound(hub)

	frame := readFrame(t, peer)
	if frame.Event != EventTyping || frame.SenderID != 1 || frame.ConversationID != 10 {
		t.Fatalf("unexpected typing frame: %+v", frame)
	}

	typist.handleFrame(service, models.RoleMember, encodeFrame(t, Envelope{
		Event:          EventStopTyping,
		ConversationID: 10,
	}))
	drainOutbound(hub)
	if frame := readFrame(t, peer); frame.Event != EventStopTyping {
		t.Fatalf("expected stopTyping, got %q", frame.Event)
	}
}

func TestJoinRoomFrameRequiresAuthorization(t *testing.T) {
	hub := NewHub()
	client := NewClient(hub, nil, 1)
	hub.clients[1] = map[*Client]struct{}{client: {}}

	service := &stubChatSender{authorizeErr: errors.New("not a participant")}
	client.handleFrame(service, models.RoleMember, encodeFrame(t, Envelope{
		Event:          EventJoinRoom,
		ConversationID: 10,
	}))

	if len(hub.join) != 0 {
		t.Fatal("unauthorized join request queued")
	}
	frame := readFrame(t, client)
	if frame.Event != EventMessageError {
		t.Fatalf("expected messageError, got %q", frame.Event)
	}
}

func TestSendMessageFrameReportsFailureToSenderOnly(t *testing.T) {
	hub := NewHub()
	sender := NewClient(hub, nil, 1)
	peer := NewClient(hub, nil, 2)
	hub.clients[1] = map[*Client]struct{}{sender: {}}
	hub.clients[2] = map[*Client]struct{}{peer: {}}
	hub.rooms[10] = map[*Client]struct{}{sender: {}, peer: {}}

	service := &stubChatSender{appendErr: errors.New("boom")}
	sender.handleFrame(service, models.RoleMember, encodeFrame(t, Envelope{
		Event:          EventSendMessage,
		ConversationID: 10,
		Content:        &models.MessageContent{Text: "hello"},
	}))
	drainOutbound(hub)

	frame := readFrame(t, sender)
	if frame.Event != EventMessageError || frame.Error == "" {
		t.Fatalf("expected messageError to sender, got %+v", frame)
	}
	select {
	case payload := <-peer.send:
		t.Fatalf("peer received a frame for a failed send: %s", payload)
	default:
	}
}

func TestSendMessageFrameBroadcastsDelivery(t *testing.T) {
	hub := NewHub()
	sender := NewClient(hub, nil, 1)
	peer := NewClient(hub, nil, 2)
	hub.clients[1] = map[*Client]struct{}{sender: {}}
	hub.clients[2] = map[*Client]struct{}{peer: {}}
	hub.rooms[10] = map[*Client]struct{}{sender: {}, peer: {}}

	service := &stubChatSender{delivery: &services.ChatDelivery{
		Message: &models.Message{
			ID: 4, ConversationID: 10, SenderID: 1, Text: "hello", CreatedAt: time.Now().UTC(),
		},
		RecipientID: 2,
	}}
	sender.handleFrame(service, models.RoleMember, encodeFrame(t, Envelope{
		Event:          EventSendMessage,
		ConversationID: 10,
		Content:        &models.MessageContent{Text: "hello"},
	}))
	drainOutbound(hub)

	if len(service.appended) != 1 || service.appended[0] != 10 {
		t.Fatalf("message not persisted: %v", service.appended)
	}
	for _, client := range []*Client{sender, peer} {
		frame := readFrame(t, client)
		if frame.Event != EventNewMessage || frame.Message == nil || frame.Message.ID != 4 {
			t.Fatalf("unexpected broadcast frame: %+v", frame)
		}
	}
}
