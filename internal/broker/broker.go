package broker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/zach-short/ceros/internal/archive"
	"github.com/zach-short/ceros/internal/config"
	"github.com/zach-short/ceros/internal/domain"
	"github.com/zach-short/ceros/internal/hub"
	"github.com/zach-short/ceros/internal/registry"
	"github.com/zach-short/ceros/internal/rooms"
	"github.com/zach-short/ceros/internal/store"
	"github.com/zach-short/ceros/pkg/log"
)

// Broker validates client actions, persists them through the message
// store and fans the resulting events out to the room. Rejections go back
// to the acting session only; fan-out happens strictly after successful
// persistence, so every delivered event matches durably recorded state.
//
// A per-room lock serializes the persist+fanout pair, which makes event
// order per room equal to persist order. The hub's own lock is only taken
// inside Fanout, never across store I/O.
type Broker struct {
	hub        *hub.Hub
	store      store.MessageStore
	membership rooms.Source
	registry   registry.Registry      // optional room presence
	archiver   archive.EventArchiver  // optional event mirror
	cfg        config.ChatConfig
	logger     zerolog.Logger
	now        func() time.Time

	mu        sync.Mutex
	roomLocks map[string]*roomLock
}

// roomLock serializes persist+fanout per room. refs counts holders and
// waiters so the entry can be pruned once the last one releases.
type roomLock struct {
	sync.Mutex
	refs int
}

func New(h *hub.Hub, st store.MessageStore, membership rooms.Source, cfg config.ChatConfig, logger zerolog.Logger) *Broker {
	if cfg.EditWindow <= 0 {
		cfg.EditWindow = 15 * time.Minute
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 5 * time.Second
	}
	return &Broker{
		hub:        h,
		store:      st,
		membership: membership,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
		roomLocks:  make(map[string]*roomLock),
	}
}

// WithRegistry attaches a room presence registry.
func (b *Broker) WithRegistry(reg registry.Registry) *Broker {
	b.registry = reg
	return b
}

// WithArchiver attaches an event archiver.
func (b *Broker) WithArchiver(a archive.EventArchiver) *Broker {
	b.archiver = a
	return b
}

func (b *Broker) lockRoom(roomID string) *roomLock {
	b.mu.Lock()
	l, ok := b.roomLocks[roomID]
	if !ok {
		l = &roomLock{}
		b.roomLocks[roomID] = l
	}
	l.refs++
	b.mu.Unlock()

	l.Lock()
	return l
}

func (b *Broker) unlockRoom(roomID string, l *roomLock) {
	l.Unlock()

	b.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(b.roomLocks, roomID)
	}
	b.mu.Unlock()
}

func (b *Broker) storeCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), b.cfg.StoreTimeout)
}

// HandleFrame decodes one inbound frame and dispatches the action.
// Runs on the session's read goroutine.
func (b *Broker) HandleFrame(c *hub.Client, data []byte) {
	if c.State() != hub.StateActive {
		return
	}

	var frame domain.InboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		b.reject(c, domain.ErrCodeBadPayload, "invalid frame")
		return
	}

	switch frame.Action {
	case domain.ActionJoinRoom:
		b.handleJoinRoom(c, frame)
	case domain.ActionLeaveRoom:
		b.handleLeaveRoom(c, frame)
	case domain.ActionSendMessage:
		b.handleSendMessage(c, frame)
	case domain.ActionReplyToMessage:
		b.handleReply(c, frame)
	case domain.ActionEditMessage:
		b.handleEdit(c, frame)
	case domain.ActionDeleteMessage:
		b.handleDelete(c, frame)
	case domain.ActionToggleReaction:
		b.handleToggleReaction(c, frame)
	case domain.ActionProposeMotion:
		b.handleProposeMotion(c, frame)
	case domain.ActionSecondMotion:
		b.handleSecondMotion(c, frame)
	case domain.ActionVoteMotion:
		b.handleVoteMotion(c, frame)
	case domain.ActionPing:
		c.Enqueue(domain.Frame{Action: domain.ActionPong})
	default:
		b.logger.Warn().Str(log.FieldAction, frame.Action).Str(log.FieldClientID, c.ID).Msg("unknown action")
		b.reject(c, domain.ErrCodeBadPayload, "unknown action")
	}
}

// reject surfaces an error to the acting session only.
func (b *Broker) reject(c *hub.Client, code, message string) {
	if err := c.Enqueue(domain.NewErrorFrame(code, message)); err != nil && !errors.Is(err, hub.ErrSessionClosed) {
		b.logger.Warn().Err(err).Str(log.FieldClientID, c.ID).Msg("failed to deliver rejection")
	}
}

func (b *Broker) requireJoined(c *hub.Client, roomID string) bool {
	if roomID == "" {
		b.reject(c, domain.ErrCodeBadPayload, "roomId required")
		return false
	}
	if !b.hub.IsJoined(c, roomID) {
		b.reject(c, domain.ErrCodeNotJoined, "not joined to room "+roomID)
		return false
	}
	return true
}

func (b *Broker) handleJoinRoom(c *hub.Client, frame domain.InboundFrame) {
	var roomID string
	if err := json.Unmarshal(frame.Payload, &roomID); err != nil || roomID == "" {
		b.reject(c, domain.ErrCodeBadPayload, "invalid room id")
		return
	}

	ctx, cancel := b.storeCtx()
	defer cancel()

	ok, err := b.membership.IsParticipant(ctx, c.UserID, roomID)
	if err != nil {
		b.logger.Error().Err(err).Str(log.FieldRoomID, roomID).Msg("membership lookup failed")
		b.reject(c, domain.ErrCodeStoreUnavailable, "membership check failed")
		return
	}
	if !ok {
		b.reject(c, domain.ErrCodeForbidden, "not a participant of room "+roomID)
		return
	}

	b.hub.Join(c, roomID)

	if b.registry != nil && b.hub.RoomSize(roomID) == 1 {
		if err := b.registry.Register(ctx, roomID); err != nil {
			b.logger.Warn().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to register room presence")
		}
	}
}

func (b *Broker) handleLeaveRoom(c *hub.Client, frame domain.InboundFrame) {
	var roomID string
	if err := json.Unmarshal(frame.Payload, &roomID); err != nil || roomID == "" {
		b.reject(c, domain.ErrCodeBadPayload, "invalid room id")
		return
	}
	if !b.requireJoined(c, roomID) {
		return
	}

	b.hub.Leave(c, roomID)
	b.releaseIfEmpty(roomID)
}

// ReleaseRooms drops external presence for rooms whose local membership
// hit zero; wired into session teardown.
func (b *Broker) ReleaseRooms(roomIDs []string) {
	for _, roomID := range roomIDs {
		b.releaseIfEmpty(roomID)
	}
}

func (b *Broker) releaseIfEmpty(roomID string) {
	if b.registry == nil || b.hub.RoomSize(roomID) != 0 {
		return
	}
	ctx, cancel := b.storeCtx()
	defer cancel()
	if err := b.registry.Deregister(ctx, roomID); err != nil {
		b.logger.Warn().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to deregister room presence")
	}
}

func (b *Broker) handleSendMessage(c *hub.Client, frame domain.InboundFrame) {
	var p domain.SendMessagePayload
	if err := json.Unmarshal(frame.Payload, &p); err != nil || p.Content == "" || p.RoomID == "" {
		b.reject(c, domain.ErrCodeBadPayload, "invalid message payload")
		return
	}
	if !b.requireJoined(c, p.RoomID) {
		return
	}

	msg := &domain.Message{
		ID:        uuid.NewString(),
		Type:      messageType(frame.Type, p.RoomID),
		SenderID:  c.UserID,
		Content:   p.Content,
		RoomID:    p.RoomID,
		Timestamp: b.now().UTC(),
	}

	lock := b.lockRoom(p.RoomID)
	defer b.unlockRoom(p.RoomID, lock)

	ctx, cancel := b.storeCtx()
	defer cancel()

	if err := b.store.Create(ctx, msg); err != nil {
		b.logger.Error().Err(err).Str(log.FieldRoomID, p.RoomID).Msg("failed to persist message")
		b.reject(c, domain.ErrCodeStoreUnavailable, "failed to save message")
		return
	}

	event := domain.Frame{Action: domain.ActionNewMessage, Type: msg.Type, Payload: msg}
	b.hub.Fanout(p.RoomID, event, nil)
	b.archive(p.RoomID, event)

	b.logger.Debug().
		Str(log.FieldMessageID, msg.ID).
		Str(log.FieldRoomID, p.RoomID).
		Str(log.FieldUserID, c.UserID).
		Msg("message sent")
}

func (b *Broker) handleReply(c *hub.Client, frame domain.InboundFrame) {
	var p domain.ReplyPayload
	if err := json.Unmarshal(frame.Payload, &p); err != nil || p.Content == "" || p.RoomID == "" || p.ParentMessageID == "" {
		b.reject(c, domain.ErrCodeBadPayload, "invalid reply payload")
		return
	}
	if !b.requireJoined(c, p.RoomID) {
		return
	}

	lock := b.lockRoom(p.RoomID)
	defer b.unlockRoom(p.RoomID, lock)

	ctx, cancel := b.storeCtx()
	defer cancel()

	parent, err := b.store.Get(ctx, p.ParentMessageID)
	if errors.Is(err, store.ErrNotFound) {
		b.reject(c, domain.ErrCodeParentNotFound, "parent message not found")
		return
	}
	if err != nil {
		b.reject(c, domain.ErrCodeStoreUnavailable, "failed to load parent message")
		return
	}
	if parent.RoomID != p.RoomID {
		// A reply must reference a message in the same room.
		b.reject(c, domain.ErrCodeParentNotFound, "parent message not in room")
		return
	}

	parentID := p.ParentMessageID
	msg := &domain.Message{
		ID:              uuid.NewString(),
		Type:            domain.TypeReply,
		SenderID:        c.UserID,
		Content:         p.Content,
		RoomID:          p.RoomID,
		ParentMessageID: &parentID,
		Timestamp:       b.now().UTC(),
	}

	if err := b.store.Create(ctx, msg); err != nil {
		b.logger.Error().Err(err).Str(log.FieldRoomID, p.RoomID).Msg("failed to persist reply")
		b.reject(c, domain.ErrCodeStoreUnavailable, "failed to save reply")
		return
	}

	// Thread count bookkeeping is best effort.
	if _, err := b.store.Update(ctx, parentID, func(m *domain.Message) {
		m.ThreadCount++
	}); err != nil {
		b.logger.Warn().Err(err).Str(log.FieldMessageID, parentID).Msg("failed to bump thread count")
	}

	event := domain.Frame{Action: domain.ActionNewReply, Type: msg.Type, Payload: msg}
	b.hub.Fanout(p.RoomID, event, nil)
	b.archive(p.RoomID, event)
}

func (b *Broker) handleEdit(c *hub.Client, frame domain.InboundFrame) {
	var p domain.EditMessagePayload
	if err := json.Unmarshal(frame.Payload, &p); err != nil || p.MessageID == "" || p.RoomID == "" || p.Content == "" {
		b.reject(c, domain.ErrCodeBadPayload, "invalid edit payload")
		return
	}
	if !b.requireJoined(c, p.RoomID) {
		return
	}

	lock := b.lockRoom(p.RoomID)
	defer b.unlockRoom(p.RoomID, lock)

	ctx, cancel := b.storeCtx()
	defer cancel()

	msg, err := b.store.Get(ctx, p.MessageID)
	if errors.Is(err, store.ErrNotFound) {
		b.reject(c, domain.ErrCodeBadPayload, "message not found")
		return
	}
	if err != nil {
		b.reject(c, domain.ErrCodeStoreUnavailable, "failed to load message")
		return
	}
	if msg.RoomID != p.RoomID {
		b.reject(c, domain.ErrCodeBadPayload, "message not in room")
		return
	}
	if msg.SenderID != c.UserID {
		b.reject(c, domain.ErrCodeForbidden, "only the sender can edit a message")
		return
	}
	if b.now().Sub(msg.Timestamp) > b.cfg.EditWindow {
		b.reject(c, domain.ErrCodeForbidden, "message too old to edit")
		return
	}

	editedAt := b.now().UTC()
	updated, err := b.store.Update(ctx, p.MessageID, func(m *domain.Message) {
		if !m.IsEdited {
			// One-level history: the first edit pins the original.
			m.OriginalContent = m.Content
		}
		m.Content = p.Content
		m.IsEdited = true
		m.EditedAt = &editedAt
	})
	if err != nil {
		b.reject(c, domain.ErrCodeStoreUnavailable, "failed to save edit")
		return
	}

	event := domain.Frame{Action: domain.ActionMessageEdited, Type: updated.Type, Payload: updated}
	b.hub.Fanout(p.RoomID, event, nil)
	b.archive(p.RoomID, event)
}

func (b *Broker) handleDelete(c *hub.Client, frame domain.InboundFrame) {
	var p domain.DeleteMessagePayload
	if err := json.Unmarshal(frame.Payload, &p); err != nil || p.MessageID == "" || p.RoomID == "" {
		b.reject(c, domain.ErrCodeBadPayload, "invalid delete payload")
		return
	}
	if !b.requireJoined(c, p.RoomID) {
		return
	}

	lock := b.lockRoom(p.RoomID)
	defer b.unlockRoom(p.RoomID, lock)

	ctx, cancel := b.storeCtx()
	defer cancel()

	msg, err := b.store.Get(ctx, p.MessageID)
	if errors.Is(err, store.ErrNotFound) {
		b.reject(c, domain.ErrCodeBadPayload, "message not found")
		return
	}
	if err != nil {
		b.reject(c, domain.ErrCodeStoreUnavailable, "failed to load message")
		return
	}
	if msg.RoomID != p.RoomID {
		b.reject(c, domain.ErrCodeBadPayload, "message not in room")
		return
	}
	if msg.SenderID != c.UserID && !c.HasRole("admin") {
		b.reject(c, domain.ErrCodeForbidden, "only the sender or an admin can delete a message")
		return
	}

	if err := b.store.Delete(ctx, p.MessageID); err != nil {
		b.reject(c, domain.ErrCodeStoreUnavailable, "failed to delete message")
		return
	}

	event := domain.Frame{
		Action:  domain.ActionMessageDeleted,
		Type:    msg.Type,
		Payload: domain.MessageDeletedPayload{MessageID: p.MessageID, RoomID: p.RoomID},
	}
	b.hub.Fanout(p.RoomID, event, nil)
	b.archive(p.RoomID, event)
}

func (b *Broker) handleToggleReaction(c *hub.Client, frame domain.InboundFrame) {
	var p domain.ToggleReactionPayload
	if err := json.Unmarshal(frame.Payload, &p); err != nil || p.MessageID == "" || p.RoomID == "" || p.Emoji == "" {
		b.reject(c, domain.ErrCodeBadPayload, "invalid reaction payload")
		return
	}
	if !b.requireJoined(c, p.RoomID) {
		return
	}

	lock := b.lockRoom(p.RoomID)
	defer b.unlockRoom(p.RoomID, lock)

	ctx, cancel := b.storeCtx()
	defer cancel()

	msg, err := b.store.Get(ctx, p.MessageID)
	if errors.Is(err, store.ErrNotFound) {
		b.reject(c, domain.ErrCodeBadPayload, "message not found")
		return
	}
	if err != nil {
		b.reject(c, domain.ErrCodeStoreUnavailable, "failed to load message")
		return
	}
	if msg.RoomID != p.RoomID {
		b.reject(c, domain.ErrCodeBadPayload, "message not in room")
		return
	}

	updated, err := b.store.Update(ctx, p.MessageID, func(m *domain.Message) {
		m.ToggleReaction(p.Emoji, c.UserID)
	})
	if err != nil {
		b.reject(c, domain.ErrCodeStoreUnavailable, "failed to save reaction")
		return
	}

	event := domain.Frame{
		Action: domain.ActionReactionUpdate,
		Type:   updated.Type,
		Payload: domain.ReactionUpdatePayload{
			MessageID: updated.ID,
			RoomID:    updated.RoomID,
			Reactions: updated.ReactionSummaries(),
		},
	}
	b.hub.Fanout(p.RoomID, event, nil)
	b.archive(p.RoomID, event)
}

func (b *Broker) archive(roomID string, frame domain.Frame) {
	if b.archiver == nil {
		return
	}
	ctx, cancel := b.storeCtx()
	defer cancel()
	if err := b.archiver.Archive(ctx, roomID, frame); err != nil {
		b.logger.Warn().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to archive event")
	}
}

// messageType keeps the client-declared tag when present, otherwise
// derives it from the room kind.
func messageType(declared domain.MessageType, roomID string) domain.MessageType {
	switch declared {
	case domain.TypeDM, domain.TypeGroup, domain.TypeMotion, domain.TypeSystem:
		return declared
	}
	if kind, ok := domain.RoomTypeOf(roomID); ok && kind != domain.RoomTypeDM {
		return domain.TypeGroup
	}
	return domain.TypeDM
}
