package chatclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kaveh-r/GymAppBack/internal/models"
	chatws "github.com/kaveh-r/GymAppBack/internal/websocket"
)

func TestEmitBeforeConnectReportsUnavailable(t *testing.T) {
	transport := NewSocketTransport(1)

	err := transport.EmitMessage(10, models.MessageContent{Text: "hello"})
	if !errors.Is(err, ErrTransportUnavailable) {
		t.Fatalf("expected ErrTransportUnavailable, got %v", err)
	}
	if err := transport.JoinRoom(10); !errors.Is(err, ErrTransportUnavailable) {
		t.Fatalf("expected ErrTransportUnavailable, got %v", err)
	}
}

func TestConnectAnnouncesAndRelaysFrames(t *testing.T) {
	received := make(chan chatws.Envelope, 8)
	upgrader := websocket.Upgrader{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != "test-token" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// first frame must be the presence announce
		var announce chatws.Envelope
		if err := conn.ReadJSON(&announce); err != nil {
			return
		}
		received <- announce

		// push one message back and collect whatever else arrives
		_ = conn.WriteJSON(chatws.Envelope{
			Event: chatws.EventNewMessage,
			Message: &models.Message{
				ID: 3, ConversationID: 10, SenderID: 2, Text: "from server",
			},
		})
		for {
			var envelope chatws.Envelope
			if err := conn.ReadJSON(&envelope); err != nil {
				return
			}
			received <- envelope
		}
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	transport := NewSocketTransport(1)
	if err := transport.Connect(context.Background(), wsURL, "test-token"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer transport.Close()

	announce := waitEnvelope(t, received)
	if announce.Event != chatws.EventUserJoined || announce.SenderID != 1 {
		t.Fatalf("unexpected announce: %+v", announce)
	}

	inbound := waitEnvelope(t, transport.Inbound())
	if inbound.Event != chatws.EventNewMessage || inbound.Message == nil || inbound.Message.ID != 3 {
		t.Fatalf("unexpected inbound frame: %+v", inbound)
	}

	if err := transport.EmitMessage(10, models.MessageContent{Text: "hello"}); err != nil {
		t.Fatalf("EmitMessage: %v", err)
	}
	sent := waitEnvelope(t, received)
	if sent.Event != chatws.EventSendMessage || sent.ConversationID != 10 {
		t.Fatalf("unexpected sent frame: %+v", sent)
	}
	if sent.Content == nil || sent.Content.Text != "hello" {
		t.Fatalf("content lost in transit: %+v", sent.Content)
	}
}

func TestInboundClosesWhenConnectionDrops(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		var announce chatws.Envelope
		_ = conn.ReadJSON(&announce)
		conn.Close()
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	transport := NewSocketTransport(1)
	if err := transport.Connect(context.Background(), wsURL, "token"); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	select {
	case _, ok := <-transport.Inbound():
		if ok {
			t.Fatal("expected inbound channel to close")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("inbound channel did not close after drop")
	}

	if err := transport.EmitMessage(10, models.MessageContent{Text: "late"}); !errors.Is(err, ErrTransportUnavailable) {
		t.Fatalf("expected ErrTransportUnavailable after drop, got %v", err)
	}
}

func TestReconnectDeliversOnFreshInboundChannel(t *testing.T) {
	var connCount int32
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		var announce chatws.Envelope
		if err := conn.ReadJSON(&announce); err != nil {
			conn.Close()
			return
		}
		// first connection drops right after the announce
		if atomic.AddInt32(&connCount, 1) == 1 {
			conn.Close()
			return
		}
		_ = conn.WriteJSON(chatws.Envelope{
			Event: chatws.EventNewMessage,
			Message: &models.Message{
				ID: 8, ConversationID: 10, SenderID: 2, Text: "after reconnect",
			},
		})
		for {
			var envelope chatws.Envelope
			if err := conn.ReadJSON(&envelope); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	transport := NewSocketTransport(1)
	if err := transport.Connect(context.Background(), wsURL, "token"); err != nil {
		t.Fatalf("first Connect: %v", err)
	}

	first := transport.Inbound()
	select {
	case _, ok := <-first:
		if ok {
			t.Fatal("expected first inbound channel to close on drop")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("first connection did not drop")
	}

	if err := transport.Connect(context.Background(), wsURL, "token"); err != nil {
		t.Fatalf("second Connect: %v", err)
	}
	defer transport.Close()

	if transport.Inbound() == first {
		t.Fatal("reconnect must replace the inbound channel")
	}

	envelope := waitEnvelope(t, transport.Inbound())
	if envelope.Event != chatws.EventNewMessage || envelope.Message == nil || envelope.Message.Text != "after reconnect" {
		t.Fatalf("unexpected frame after reconnect: %+v", envelope)
	}

	if err := transport.EmitMessage(10, models.MessageContent{Text: "still alive"}); err != nil {
		t.Fatalf("EmitMessage after reconnect: %v", err)
	}
}

func waitEnvelope(t *testing.T, ch <-chan chatws.Envelope) chatws.Envelope {
	t.Helper()
	select {
	case envelope := <-ch:
		return envelope
	case <-time.After(2 * time.Second):
		t.Fatal("no envelope within deadline")
	}
	return chatws.Envelope{}
}
