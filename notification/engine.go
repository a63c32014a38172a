// Package notification creates, stores and executes typed notification
// records. A notification encodes a pending cross-account transition
// (accept this friend request, join this discussion) that must apply at
// most once in effect no matter how often its execution is triggered.
package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/meeplemeet/server/model"
	"github.com/meeplemeet/server/store"
	"go.uber.org/zap"
)

var (
	// ErrNotFound reports that the receiver holds no notification with
	// the given id.
	ErrNotFound = errors.New("notification: not found")
	// ErrSelfNotification rejects sending a notification to oneself.
	ErrSelfNotification = errors.New("notification: cannot notify yourself")
	// ErrUnknownType rejects execution of a notification whose type tag
	// is not recognized.
	ErrUnknownType = errors.New("notification: unknown type")
)

// Relationships is the capability Execute needs for friend requests.
// Satisfied by relationship.Engine.
type Relationships interface {
	AcceptFriendRequest(ctx context.Context, responder, requester string) error
}

// Memberships is the capability Execute needs for discussion and session
// invites. Satisfied by discussion.Service.
type Memberships interface {
	AddParticipant(ctx context.Context, discussionID, accountID string) error
	AddSessionParticipant(ctx context.Context, sessionID, accountID string) error
}

// Engine manages each account's ordered notification list and dispatches
// notification execution to the owning capability.
type Engine struct {
	store   store.Client
	rel     Relationships
	members Memberships
	logger  *zap.Logger
}

// NewEngine creates a notification Engine.
func NewEngine(s store.Client, rel Relationships, members Memberships, logger *zap.Logger) *Engine {
	return &Engine{store: s, rel: rel, members: members, logger: logger}
}

// SendFriendRequestNotification appends a friend_request notification to
// the receiver's list. senderID is the requesting account.
func (e *Engine) SendFriendRequestNotification(ctx context.Context, receiverID, senderID string) (*model.Notification, error) {
	if receiverID == senderID {
		return nil, ErrSelfNotification
	}
	return e.send(ctx, receiverID, senderID, model.NotifFriendRequest)
}

// SendJoinDiscussionNotification appends a join_discussion invite
// referencing the given discussion.
func (e *Engine) SendJoinDiscussionNotification(ctx context.Context, receiverID, discussionID string) (*model.Notification, error) {
	return e.send(ctx, receiverID, discussionID, model.NotifJoinDiscussion)
}

// SendJoinSessionNotification appends a join_session invite referencing
// the given session.
func (e *Engine) SendJoinSessionNotification(ctx context.Context, receiverID, sessionID string) (*model.Notification, error) {
	return e.send(ctx, receiverID, sessionID, model.NotifJoinSession)
}

// send appends a fresh record to the receiver's list. There is no
// deduplication: two sends are two independent notifications.
func (e *Engine) send(ctx context.Context, receiverID, refID string, typ model.NotificationType) (*model.Notification, error) {
	n := model.Notification{
		ID:                   uuid.NewString(),
		ReceiverID:           receiverID,
		SenderOrDiscussionID: refID,
		Type:                 typ,
		CreatedAt:            time.Now().UTC(),
	}
	err := e.store.RunTransaction(ctx, func(tx store.Tx) error {
		fields, err := tx.Get(model.CollAccounts, receiverID)
		if err != nil {
			return fmt.Errorf("load receiver %s: %w", receiverID, err)
		}
		acc := model.AccountFromFields(receiverID, fields)
		acc.Notifications = append(acc.Notifications, n)
		return tx.Set(model.CollAccounts, receiverID, acc.NotificationsField())
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("notification sent",
		zap.String("id", n.ID),
		zap.String("receiver", receiverID),
		zap.String("ref", refID),
		zap.String("type", string(typ)))
	return &n, nil
}

// List returns the receiver's notifications in creation order.
func (e *Engine) List(ctx context.Context, receiverID string) ([]model.Notification, error) {
	fields, err := e.store.Get(ctx, model.CollAccounts, receiverID)
	if err != nil {
		return nil, err
	}
	return model.AccountFromFields(receiverID, fields).Notifications, nil
}

// Get returns one notification by id.
func (e *Engine) Get(ctx context.Context, receiverID, notifID string) (*model.Notification, error) {
	list, err := e.List(ctx, receiverID)
	if err != nil {
		return nil, err
	}
	for i := range list {
		if list[i].ID == notifID {
			return &list[i], nil
		}
	}
	return nil, ErrNotFound
}

// MarkRead flags a notification as read. Calling it again is a no-op with
// the same observable state.
func (e *Engine) MarkRead(ctx context.Context, receiverID, notifID string) error {
	err := e.store.RunTransaction(ctx, func(tx store.Tx) error {
		fields, err := tx.Get(model.CollAccounts, receiverID)
		if err != nil {
			return err
		}
		acc := model.AccountFromFields(receiverID, fields)
		found := false
		for i := range acc.Notifications {
			if acc.Notifications[i].ID == notifID {
				acc.Notifications[i].Read = true
				found = true
				break
			}
		}
		if !found {
			return ErrNotFound
		}
		return tx.Set(model.CollAccounts, receiverID, acc.NotificationsField())
	})
	return err
}

// Delete removes a notification. Deleting one that is already gone is a
// successful no-op, so delete is a safe terminal action.
func (e *Engine) Delete(ctx context.Context, receiverID, notifID string) error {
	return e.store.RunTransaction(ctx, func(tx store.Tx) error {
		fields, err := tx.Get(model.CollAccounts, receiverID)
		if err != nil {
			return err
		}
		acc := model.AccountFromFields(receiverID, fields)
		kept := acc.Notifications[:0]
		for _, n := range acc.Notifications {
			if n.ID != notifID {
				kept = append(kept, n)
			}
		}
		if len(kept) == len(acc.Notifications) {
			return nil
		}
		acc.Notifications = kept
		return tx.Set(model.CollAccounts, receiverID, acc.NotificationsField())
	})
}

// Execute applies the transition the notification encodes, dispatching on
// its type tag. A handle that already ran is short-circuited; beyond that,
// the delegated operations are idempotent in effect, so re-execution
// through a fresh handle cannot double-apply.
func (e *Engine) Execute(ctx context.Context, n *model.Notification) error {
	if n.Executed() {
		return nil
	}
	var err error
	switch n.Type {
	case model.NotifFriendRequest:
		err = e.rel.AcceptFriendRequest(ctx, n.ReceiverID, n.SenderOrDiscussionID)
	case model.NotifJoinDiscussion:
		err = e.members.AddParticipant(ctx, n.SenderOrDiscussionID, n.ReceiverID)
	case model.NotifJoinSession:
		err = e.members.AddSessionParticipant(ctx, n.SenderOrDiscussionID, n.ReceiverID)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownType, n.Type)
	}
	if err != nil {
		return err
	}
	n.MarkExecuted()
	e.logger.Info("notification executed",
		zap.String("id", n.ID),
		zap.String("receiver", n.ReceiverID),
		zap.String("type", string(n.Type)))
	return nil
}
