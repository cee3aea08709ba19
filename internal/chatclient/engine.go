package chatclient

import (
	"context"
	"fmt"
	"io"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kaveh-r/GymAppBack/internal/models"
	chatws "github.com/kaveh-r/GymAppBack/internal/websocket"
)

// DeliveryState is the client-local lifecycle of an optimistic message. The
// server only ever stores confirmed messages; these states exist in the cache
// alone.
type DeliveryState int

const (
	StateSending DeliveryState = iota
	StateSent
	StateFailed
)

func (s DeliveryState) String() string {
	switch s {
	case StateSending:
		return "sending"
	case StateSent:
		return "sent"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// LocalMessage wraps a message with its client-local identity and state. The
// LocalID exists before (and independent of) the durable id the server
// assigns on persistence.
type LocalMessage struct {
	LocalID string
	State   DeliveryState
	Message models.Message
}

// Draft is the input to SendMessage.
type Draft struct {
	Text       string
	Attachment *AttachmentDraft
	ReplyTo    *int64
}

// AttachmentDraft is an unuploaded binary payload. It is uploaded before the
// message is constructed; a message never carries a dangling local handle.
type AttachmentDraft struct {
	Name     string
	MimeType string
	Content  io.Reader
}

const typingIdleTimeout = 3 * time.Second

// Session owns all client-visible chat state for one authenticated user: the
// conversation list, the per-conversation message caches, and the presence
// table. One instance per active chat session; nothing is shared globally.
//
// Every mutation happens under one mutex, and inbound transport events are
// drained serially by Run, so cache updates are atomic with respect to both
// the UI and the socket.
type Session struct {
	userID    int64
	role      string
	api       RoomAPI
	transport Transport
	uploader  Uploader
	assetBase string

	mu             sync.Mutex
	rooms          []*RoomEntry
	current        *RoomEntry
	messagesByRoom map[int64][]LocalMessage
	statuses       map[int64]models.PresenceRecord
	loading        bool
	lastErr        error
	typingTimer    *time.Timer
	closed         bool
}

func NewSession(userID int64, role string, api RoomAPI, transport Transport, uploader Uploader, assetBase string) *Session {
	return &Session{
		userID:         userID,
		role:           role,
		api:            api,
		transport:      transport,
		uploader:       uploader,
		assetBase:      strings.TrimRight(assetBase, "/"),
		messagesByRoom: make(map[int64][]LocalMessage),
		statuses:       make(map[int64]models.PresenceRecord),
	}
}

// Run drains the transport's inbound queue until the context ends or the
// connection drops. Events are applied one at a time; ordering within the
// connection is preserved structurally.
func (s *Session) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case envelope, ok := <-s.transport.Inbound():
			if !ok {
				return
			}
			s.handleEnvelope(envelope)
		}
	}
}

// SeedRooms builds the conversation list: one entry per existing conversation
// in the order given, then a placeholder for every roster partner without
// one. The positions assigned here are the originalIndex tie-break keys for
// the lifetime of the session.
func (s *Session) SeedRooms(summaries []models.ConversationSummary, partners []models.Participant) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[int64]struct{})
	rooms := make([]*RoomEntry, 0, len(summaries)+len(partners))

	for _, summary := range summaries {
		conversation := summary.Conversation
		entry := &RoomEntry{
			Ref:           Durable{Conversation: &conversation},
			OriginalIndex: len(rooms),
			UpdatedAt:     conversation.UpdatedAt,
			LastMessage:   summary.LastMessage,
			UnreadCount:   summary.UnreadCount,
		}
		seen[entry.CounterpartID(s.userID)] = struct{}{}
		rooms = append(rooms, entry)
	}

	for _, partner := range partners {
		if _, ok := seen[partner.ID]; ok {
			continue
		}
		rooms = append(rooms, &RoomEntry{
			Ref:           Placeholder{Counterpart: partner},
			OriginalIndex: len(rooms),
		})
	}

	s.rooms = rooms
}

// SelectRoom opens the conversation with the given counterpart. A placeholder
// entry is first resolved to a durable conversation, keeping its display
// metadata and originalIndex. With useCache set and a warm cache entry, the
// cached transcript is served with no fetch and no loading transition.
func (s *Session) SelectRoom(ctx context.Context, counterpartID int64, useCache bool) error {
	s.mu.Lock()
	entry := s.findRoomLocked(counterpartID)
	if entry == nil {
		s.mu.Unlock()
		return ErrUnknownRoom
	}
	// Leaving a room retracts any typing indicator still pending for it.
	var retractTyping int64
	if s.current != nil && s.current != entry && s.typingTimer != nil {
		s.typingTimer.Stop()
		s.typingTimer = nil
		retractTyping = s.current.ConversationID()
	}
	_, isPlaceholder := entry.Ref.(Placeholder)
	s.mu.Unlock()

	if retractTyping != 0 {
		_ = s.transport.EmitStopTyping(retractTyping)
	}

	if isPlaceholder {
		memberID, trainerID := s.pairFor(counterpartID)
		conversation, err := s.api.ResolveRoom(ctx, memberID, trainerID)
		if err != nil {
			err = fmt.Errorf("%w: %v", ErrRoomResolution, err)
			s.mu.Lock()
			s.lastErr = err
			s.mu.Unlock()
			return err
		}

		s.mu.Lock()
		// Re-find by participant id: the slice may have been resorted while
		// the resolution was in flight.
		if entry = s.findRoomLocked(counterpartID); entry == nil {
			s.mu.Unlock()
			return ErrUnknownRoom
		}
		entry.Ref = Durable{Conversation: conversation}
		entry.UpdatedAt = conversation.UpdatedAt
		s.mu.Unlock()
	}

	conversationID := entry.ConversationID()

	// Idempotent and unacknowledged; a dead transport only costs live
	// updates, the transcript still loads over HTTP.
	if err := s.transport.JoinRoom(conversationID); err != nil {
		log.Printf("chat: join room %d: %v", conversationID, err)
	}

	s.mu.Lock()
	if useCache {
		if cached, ok := s.messagesByRoom[conversationID]; ok {
			s.current = entry
			s.lastErr = nil
			entry.UnreadCount = 0
			entry.UpdatedAt = latestTimestamp(cached, entry.UpdatedAt)
			s.mu.Unlock()
			return nil
		}
	}
	s.loading = true
	s.mu.Unlock()

	messages, err := s.api.FetchMessages(ctx, conversationID, 0)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	if err != nil {
		// The failed room shows an empty transcript with an error state;
		// caches of other conversations stay intact.
		s.lastErr = fmt.Errorf("%w: %v", ErrFetchFailed, err)
		s.current = entry
		return s.lastErr
	}

	cache := make([]LocalMessage, len(messages))
	for i, message := range messages {
		cache[i] = LocalMessage{
			LocalID: uuid.NewString(),
			State:   StateSent,
			Message: message,
		}
	}
	s.messagesByRoom[conversationID] = cache
	s.current = entry
	s.lastErr = nil
	entry.UnreadCount = 0
	if len(cache) > 0 {
		last := cache[len(cache)-1].Message
		entry.LastMessage = &last
	}
	// Recency comes from the latest message, not from the conversation
	// record, so merely opening a room does not look like activity.
	entry.UpdatedAt = latestTimestamp(cache, entry.UpdatedAt)
	return nil
}

// SendMessage performs the optimistic send: upload the attachment if there is
// one, append a pending copy to the transcript synchronously, then emit. The
// returned snapshot reflects the post-emission state.
func (s *Session) SendMessage(ctx context.Context, draft Draft) (LocalMessage, error) {
	s.mu.Lock()
	current := s.current
	s.mu.Unlock()

	if current == nil || current.ConversationID() == 0 {
		return LocalMessage{}, ErrNoRoomSelected
	}
	conversationID := current.ConversationID()

	content := models.MessageContent{
		Text:    strings.TrimSpace(draft.Text),
		ReplyTo: draft.ReplyTo,
	}

	if draft.Attachment != nil {
		stored, err := s.uploader.Upload(ctx, draft.Attachment.Name, draft.Attachment.MimeType, draft.Attachment.Content)
		if err != nil {
			// The send aborts entirely; no message is constructed around a
			// rejected upload.
			return LocalMessage{}, fmt.Errorf("%w: %v", ErrUploadRejected, err)
		}
		switch {
		case strings.HasPrefix(stored.MimeType, "image/"):
			content.ImageURL = stored.URL
		case strings.HasPrefix(stored.MimeType, "audio/"):
			content.VoiceURL = stored.URL
		default:
			content.AttachmentURL = stored.URL
			content.AttachmentName = stored.OriginalName
		}
	}

	if content.Empty() {
		return LocalMessage{}, ErrEmptyMessage
	}

	return s.submit(conversationID, content)
}

// RetryMessage re-submits a failed message's content as a fresh attempt. The
// failed entry is withdrawn rather than mutated in place.
func (s *Session) RetryMessage(localID string) (LocalMessage, error) {
	s.mu.Lock()
	var content models.MessageContent
	var conversationID int64
	found := false
	for roomID, cache := range s.messagesByRoom {
		for i, message := range cache {
			if message.LocalID != localID {
				continue
			}
			if message.State != StateFailed {
				s.mu.Unlock()
				return LocalMessage{}, ErrNotRetryable
			}
			content = message.Message.Content()
			conversationID = roomID
			next := make([]LocalMessage, 0, len(cache)-1)
			next = append(next, cache[:i]...)
			next = append(next, cache[i+1:]...)
			s.messagesByRoom[roomID] = next
			found = true
			break
		}
		if found {
			break
		}
	}
	s.mu.Unlock()

	if !found {
		return LocalMessage{}, ErrNotRetryable
	}
	return s.submit(conversationID, content)
}

// submit appends the optimistic copy and emits it. The append completes
// before any network activity so the sender sees the message instantly.
func (s *Session) submit(conversationID int64, content models.MessageContent) (LocalMessage, error) {
	local := LocalMessage{
		LocalID: uuid.NewString(),
		State:   StateSending,
		Message: models.Message{
			ConversationID: conversationID,
			SenderID:       s.userID,
			Text:           content.Text,
			ImageURL:       content.ImageURL,
			VoiceURL:       content.VoiceURL,
			AttachmentURL:  content.AttachmentURL,
			AttachmentName: content.AttachmentName,
			ReplyTo:        content.ReplyTo,
			CreatedAt:      time.Now().UTC(),
		},
	}

	s.mu.Lock()
	s.messagesByRoom[conversationID] = appendMessage(s.messagesByRoom[conversationID], local)
	s.mu.Unlock()

	err := s.transport.EmitMessage(conversationID, content)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		// No queueing and no automatic retry; the entry stays visible as
		// failed with a retry affordance.
		local.State = StateFailed
		s.setStateLocked(conversationID, local.LocalID, StateFailed)
		log.Printf("chat: emit message: %v", err)
		return local, nil
	}

	// Delivery is inferred from the emission succeeding; the hub echo for our
	// own messages is ignored on receipt.
	local.State = StateSent
	s.setStateLocked(conversationID, local.LocalID, StateSent)
	if entry := s.roomByConversationLocked(conversationID); entry != nil {
		entry.UpdatedAt = local.Message.CreatedAt
		message := local.Message
		entry.LastMessage = &message
	}
	return local, nil
}

func (s *Session) handleEnvelope(envelope chatws.Envelope) {
	switch envelope.Event {
	case chatws.EventNewMessage:
		s.receiveMessage(envelope.Message)
	case chatws.EventStatusUpdate:
		s.applyStatus(envelope.Status)
	case chatws.EventTyping:
		s.setTyping(envelope.ConversationID, envelope.SenderID)
	case chatws.EventStopTyping:
		s.setTyping(envelope.ConversationID, 0)
	case chatws.EventMessageError:
		log.Printf("chat: server reported: %s", envelope.Error)
	}
}

// receiveMessage reconciles an authoritative message event into the cache.
// Self-echoes are dropped: the optimistic copy is already present and the
// emission result is trusted over the round trip. Everything else is
// deduplicated by durable id and appended to the owning conversation's cache,
// whether or not that conversation is open.
func (s *Session) receiveMessage(message *models.Message) {
	if message == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if message.SenderID == s.userID {
		return
	}

	cache := s.messagesByRoom[message.ConversationID]
	for _, existing := range cache {
		if existing.Message.ID != 0 && existing.Message.ID == message.ID {
			return
		}
	}

	s.messagesByRoom[message.ConversationID] = appendMessage(cache, LocalMessage{
		LocalID: uuid.NewString(),
		State:   StateSent,
		Message: *message,
	})

	entry := s.roomByConversationLocked(message.ConversationID)
	if entry == nil {
		return
	}
	entry.UpdatedAt = message.CreatedAt
	copied := *message
	entry.LastMessage = &copied
	entry.TypingFrom = 0
	if s.current == nil || s.current.ConversationID() != message.ConversationID {
		entry.UnreadCount++
	}
}

func (s *Session) applyStatus(record *models.PresenceRecord) {
	if record == nil {
		return
	}
	s.mu.Lock()
	s.statuses[record.UserID] = *record
	s.mu.Unlock()
}

func (s *Session) setTyping(conversationID, senderID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry := s.roomByConversationLocked(conversationID); entry != nil {
		entry.TypingFrom = senderID
	}
}

// NotifyTyping emits a typing indicator for the open conversation and arms
// the idle timer that retracts it.
func (s *Session) NotifyTyping() {
	s.mu.Lock()
	if s.closed || s.current == nil {
		s.mu.Unlock()
		return
	}
	conversationID := s.current.ConversationID()
	if s.typingTimer != nil {
		s.typingTimer.Stop()
	}
	s.typingTimer = time.AfterFunc(typingIdleTimeout, func() {
		// The room may have changed while the timer was pending; a stop
		// signal never chases a conversation the user already left.
		s.mu.Lock()
		stale := s.closed || s.current == nil || s.current.ConversationID() != conversationID
		s.mu.Unlock()
		if stale {
			return
		}
		_ = s.transport.EmitStopTyping(conversationID)
	})
	s.mu.Unlock()

	_ = s.transport.EmitTyping(conversationID)
}

// Close tears the session down: the typing timer stops, a stop-typing signal
// goes out for the open room, and the transport is closed. Runs on every exit
// path from the chat view.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.typingTimer != nil {
		s.typingTimer.Stop()
		s.typingTimer = nil
	}
	var conversationID int64
	if s.current != nil {
		conversationID = s.current.ConversationID()
	}
	s.mu.Unlock()

	if conversationID != 0 {
		_ = s.transport.EmitStopTyping(conversationID)
	}
	return s.transport.Close()
}

// Messages returns a snapshot of the open conversation's transcript.
func (s *Session) Messages() []LocalMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	cache := s.messagesByRoom[s.current.ConversationID()]
	out := make([]LocalMessage, len(cache))
	copy(out, cache)
	return out
}

// Rooms returns a snapshot of the conversation list in its current order.
func (s *Session) Rooms() []RoomEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RoomEntry, len(s.rooms))
	for i, entry := range s.rooms {
		out[i] = *entry
	}
	return out
}

// CurrentRoom returns the open conversation entry, if any.
func (s *Session) CurrentRoom() (RoomEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return RoomEntry{}, false
	}
	return *s.current, true
}

func (s *Session) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// SortByRecency reorders the conversation list by UpdatedAt, newest first.
// This is the only way the list order changes: recency updates alone never
// reshuffle it out from under the user.
func (s *Session) SortByRecency() {
	s.mu.Lock()
	defer s.mu.Unlock()
	sort.SliceStable(s.rooms, func(i, j int) bool {
		if !s.rooms[i].UpdatedAt.Equal(s.rooms[j].UpdatedAt) {
			return s.rooms[i].UpdatedAt.After(s.rooms[j].UpdatedAt)
		}
		return s.rooms[i].OriginalIndex < s.rooms[j].OriginalIndex
	})
}

// StatusLabel renders a user's presence for display.
func (s *Session) StatusLabel(userID int64) string {
	s.mu.Lock()
	record, ok := s.statuses[userID]
	s.mu.Unlock()

	if !ok {
		return "Offline"
	}
	if record.IsActive {
		return "Online"
	}
	minutes := int(time.Since(record.LastSeen).Minutes())
	if minutes < 1 {
		return "Last seen just now"
	}
	if minutes == 1 {
		return "Last seen 1 minute ago"
	}
	return fmt.Sprintf("Last seen %d minutes ago", minutes)
}

// ResolveAssetURL qualifies a stored-file reference against the service base.
// Already-absolute references pass through unchanged.
func (s *Session) ResolveAssetURL(ref string) string {
	if ref == "" {
		return ""
	}
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	return s.assetBase + "/" + strings.TrimLeft(ref, "/")
}

func (s *Session) pairFor(counterpartID int64) (memberID, trainerID int64) {
	if s.role == models.RoleTrainer {
		return counterpartID, s.userID
	}
	return s.userID, counterpartID
}

func (s *Session) findRoomLocked(counterpartID int64) *RoomEntry {
	for _, entry := range s.rooms {
		if entry.CounterpartID(s.userID) == counterpartID {
			return entry
		}
	}
	return nil
}

func (s *Session) roomByConversationLocked(conversationID int64) *RoomEntry {
	for _, entry := range s.rooms {
		if entry.ConversationID() == conversationID {
			return entry
		}
	}
	return nil
}

func (s *Session) setStateLocked(conversationID int64, localID string, state DeliveryState) {
	cache := s.messagesByRoom[conversationID]
	next := make([]LocalMessage, len(cache))
	copy(next, cache)
	for i := range next {
		if next[i].LocalID == localID {
			next[i].State = state
			break
		}
	}
	s.messagesByRoom[conversationID] = next
}

// appendMessage replaces the slice wholesale so consumers holding the old
// reference never observe an in-place mutation.
func appendMessage(cache []LocalMessage, message LocalMessage) []LocalMessage {
	next := make([]LocalMessage, len(cache)+1)
	copy(next, cache)
	next[len(cache)] = message
	return next
}

func latestTimestamp(cache []LocalMessage, fallback time.Time) time.Time {
	if len(cache) == 0 {
		return fallback
	}
	return cache[len(cache)-1].Message.CreatedAt
}
