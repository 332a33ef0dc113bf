package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	v1 "parley/contracts/chat/v1"
)

// Service implements the three message send paths (global, private, group)
// and the history query.
//
// Every path follows the same order: validate against the authenticated
// sender, build an immutable record with a server-assigned timestamp, persist
// it, and only then dispatch. A message visible to any recipient is already
// durable; a persistence failure aborts the send and surfaces to the caller.
type Service struct {
	log      *slog.Logger
	store    MessageStore
	users    UserStore
	groups   GroupStore
	registry *Registry
	router   *Router
}

// NewService constructs the message service.
func NewService(log *slog.Logger, store MessageStore, users UserStore, groups GroupStore, registry *Registry, router *Router) *Service {
	return &Service{
		log:      log,
		store:    store,
		users:    users,
		groups:   groups,
		registry: registry,
		router:   router,
	}
}

// SendGlobal persists a global-room message and fans it out to everyone,
// sender included.
func (s *Service) SendGlobal(ctx context.Context, sender *Client, content, kind string) error {
	content, kind, err := validateMessage(sender, content, kind)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	msg, err := s.store.Append(ctx, Message{
		SenderID:   sender.UserID,
		SenderName: sender.Username,
		Content:    content,
		Kind:       kind,
		SentAt:     now,
	})
	if err != nil {
		return fmt.Errorf("persist message: %w", err)
	}
	messagesTotal.WithLabelValues("global").Inc()

	env := NewEvent(v1.TypeMessageReceive, v1.MessageReceivePayload{
		Sender:  msg.SenderName,
		Content: msg.Content,
		SentAt:  msg.SentAt,
		Kind:    msg.Kind,
	}, now)
	s.router.Dispatch(env, Everyone())
	return nil
}

// SendPrivate persists a private message and delivers it to every live
// connection of the target plus an echo to the caller. The record is durable
// even when the target is offline; the caller then gets ErrRecipientOffline
// instead of a false success.
func (s *Service) SendPrivate(ctx context.Context, sender *Client, targetUserID int64, content string) error {
	content, _, err := validateMessage(sender, content, v1.KindText)
	if err != nil {
		return err
	}
	if targetUserID == sender.UserID {
		return fmt.Errorf("%w: cannot message yourself", ErrInvalidInput)
	}

	if _, err := s.users.UserByID(ctx, targetUserID); err != nil {
		return err
	}

	now := time.Now().UTC()
	msg, err := s.store.Append(ctx, Message{
		SenderID:    sender.UserID,
		SenderName:  sender.Username,
		Content:     content,
		Kind:        v1.KindText,
		RecipientID: &targetUserID,
		SentAt:      now,
	})
	if err != nil {
		return fmt.Errorf("persist message: %w", err)
	}
	messagesTotal.WithLabelValues("private").Inc()

	if !s.registry.IsOnline(targetUserID) {
		return ErrRecipientOffline
	}

	env := NewEvent(v1.TypePrivateReceive, v1.PrivateReceivePayload{
		Sender:  msg.SenderName,
		Content: msg.Content,
		SentAt:  msg.SentAt,
	}, now)
	s.router.Dispatch(env, ToUser(targetUserID))
	s.router.Dispatch(env, ToCaller(sender))
	return nil
}

// SendGroup persists a group message and fans it out to the group's room.
// Only members may post.
func (s *Service) SendGroup(ctx context.Context, sender *Client, groupID int64, content, kind string) error {
	content, kind, err := validateMessage(sender, content, kind)
	if err != nil {
		return err
	}

	group, err := s.groups.GroupByID(ctx, groupID)
	if err != nil {
		return err
	}
	ok, err := s.groups.IsMember(ctx, groupID, sender.UserID)
	if err != nil {
		return fmt.Errorf("membership check: %w", err)
	}
	if !ok {
		return ErrForbidden
	}

	now := time.Now().UTC()
	msg, err := s.store.Append(ctx, Message{
		SenderID:   sender.UserID,
		SenderName: sender.Username,
		Content:    content,
		Kind:       kind,
		GroupID:    &groupID,
		SentAt:     now,
	})
	if err != nil {
		return fmt.Errorf("persist message: %w", err)
	}
	messagesTotal.WithLabelValues("group").Inc()

	env := NewEvent(v1.TypeGroupReceive, v1.GroupReceivePayload{
		Sender:    msg.SenderName,
		GroupID:   group.ID,
		GroupName: group.Name,
		Content:   msg.Content,
		SentAt:    msg.SentAt,
		Kind:      msg.Kind,
	}, now)
	s.router.Dispatch(env, ToGroup(groupID))
	return nil
}

// History returns the newest limit messages for a room (global when groupID
// is nil), re-ordered oldest-first for display.
func (s *Service) History(ctx context.Context, groupID *int64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return s.store.Recent(ctx, groupID, limit)
}

// HistoryFor is History with a membership guard: group history is only served
// to members, global history to anyone authenticated.
func (s *Service) HistoryFor(ctx context.Context, callerID int64, groupID *int64, limit int) ([]Message, error) {
	if groupID != nil {
		if _, err := s.groups.GroupByID(ctx, *groupID); err != nil {
			return nil, err
		}
		ok, err := s.groups.IsMember(ctx, *groupID, callerID)
		if err != nil {
			return nil, fmt.Errorf("membership check: %w", err)
		}
		if !ok {
			return nil, ErrForbidden
		}
	}
	return s.History(ctx, groupID, limit)
}

// validateMessage trims and bounds the content and normalizes the kind.
// The sender identity always comes from the authenticated connection; a
// client-supplied sender field does not exist in the contract.
func validateMessage(sender *Client, content, kind string) (string, string, error) {
	if sender == nil {
		return "", "", ErrInvalidInput
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return "", "", fmt.Errorf("%w: empty content", ErrInvalidInput)
	}
	if len([]rune(content)) > maxMessageChars {
		return "", "", fmt.Errorf("%w: message too long (max %d chars)", ErrInvalidInput, maxMessageChars)
	}

	if kind == "" {
		kind = v1.KindText
	}
	if !v1.ValidKind(kind) {
		return "", "", fmt.Errorf("%w: unknown kind %q", ErrInvalidInput, kind)
	}
	return content, kind, nil
}
