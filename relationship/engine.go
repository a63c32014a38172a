// Package relationship maintains the pairwise relationship state machine
// between accounts. Every two-sided mutation runs inside one store
// transaction so the bidirectional invariant survives partial failures:
// (A→B, B→A) is always one of (absent, absent), (sent, pending),
// (pending, sent), (friend, friend), (blocked, absent), (absent, blocked)
// or (blocked, blocked).
package relationship

import (
	"context"
	"errors"
	"fmt"

	"github.com/meeplemeet/server/model"
	"github.com/meeplemeet/server/store"
	"go.uber.org/zap"
)

// Validation rejections, surfaced before (and re-checked inside) the
// transaction. None of them leaves partial state behind.
var (
	// ErrSelfAction rejects any relationship action where self == other.
	ErrSelfAction = errors.New("relationship: cannot act on yourself")
	// ErrAlreadyRelated rejects a friend request when any relationship
	// already exists in either direction.
	ErrAlreadyRelated = errors.New("relationship: relationship already exists")
	// ErrNotPending rejects an accept without the exact pending/sent pairing.
	ErrNotPending = errors.New("relationship: no pending request to accept")
	// ErrBlocked rejects actions between accounts where either side holds
	// a block against the other.
	ErrBlocked = errors.New("relationship: blocked")
)

// Engine computes and persists relationship transitions.
type Engine struct {
	store  store.Client
	logger *zap.Logger
}

// NewEngine creates a relationship Engine.
func NewEngine(s store.Client, logger *zap.Logger) *Engine {
	return &Engine{store: s, logger: logger}
}

// SendFriendRequest sets self→other = sent and other→self = pending.
// Valid only when no relationship exists in either direction.
func (e *Engine) SendFriendRequest(ctx context.Context, self, other string) error {
	if self == other {
		return ErrSelfAction
	}
	err := e.store.RunTransaction(ctx, func(tx store.Tx) error {
		a, b, err := loadPair(tx, self, other)
		if err != nil {
			return err
		}
		if a.Relationships[other] == model.StatusBlocked || b.Relationships[self] == model.StatusBlocked {
			return ErrBlocked
		}
		if _, ok := a.Relationships[other]; ok {
			return ErrAlreadyRelated
		}
		if _, ok := b.Relationships[self]; ok {
			return ErrAlreadyRelated
		}
		a.Relationships[other] = model.StatusSent
		b.Relationships[self] = model.StatusPending
		return storePair(tx, a, b)
	})
	if err != nil {
		return err
	}
	e.logger.Info("friend request sent", zap.String("from", self), zap.String("to", other))
	return nil
}

// AcceptFriendRequest promotes the exact pending/sent pairing to mutual
// friendship. Any other current state is a typed rejection, not a crash.
func (e *Engine) AcceptFriendRequest(ctx context.Context, responder, requester string) error {
	if responder == requester {
		return ErrSelfAction
	}
	err := e.store.RunTransaction(ctx, func(tx store.Tx) error {
		resp, req, err := loadPair(tx, responder, requester)
		if err != nil {
			return err
		}
		if resp.Relationships[requester] == model.StatusBlocked || req.Relationships[responder] == model.StatusBlocked {
			return ErrBlocked
		}
		if resp.Relationships[requester] != model.StatusPending || req.Relationships[responder] != model.StatusSent {
			return ErrNotPending
		}
		resp.Relationships[requester] = model.StatusFriend
		req.Relationships[responder] = model.StatusFriend
		return storePair(tx, resp, req)
	})
	if err != nil {
		return err
	}
	e.logger.Info("friend request accepted", zap.String("responder", responder), zap.String("requester", requester))
	return nil
}

// BlockUser sets self→other = blocked and removes other→self entirely.
// Valid regardless of prior state. A block the peer independently holds
// against self is left untouched, so mutual blocks coexist.
func (e *Engine) BlockUser(ctx context.Context, self, other string) error {
	if self == other {
		return ErrSelfAction
	}
	err := e.store.RunTransaction(ctx, func(tx store.Tx) error {
		a, b, err := loadPair(tx, self, other)
		if err != nil {
			return err
		}
		a.Relationships[other] = model.StatusBlocked
		if b.Relationships[self] != model.StatusBlocked {
			delete(b.Relationships, self)
		}
		return storePair(tx, a, b)
	})
	if err != nil {
		return err
	}
	e.logger.Info("user blocked", zap.String("by", self), zap.String("blocked", other))
	return nil
}

// ResetRelationship deletes self→other, and other→self when clearOther is
// set. Cancel, deny, unfriend and unblock all route through here; the
// caller knows which sides to clear. Resetting an absent relationship is
// a successful no-op, and reset is the one action never rejected by an
// existing block.
func (e *Engine) ResetRelationship(ctx context.Context, self, other string, clearOther bool) error {
	if self == other {
		return ErrSelfAction
	}
	err := e.store.RunTransaction(ctx, func(tx store.Tx) error {
		a, b, err := loadPair(tx, self, other)
		if err != nil {
			return err
		}
		delete(a.Relationships, other)
		if clearOther {
			delete(b.Relationships, self)
		}
		return storePair(tx, a, b)
	})
	if err != nil {
		return err
	}
	e.logger.Info("relationship reset",
		zap.String("self", self), zap.String("other", other), zap.Bool("both_sides", clearOther))
	return nil
}

// Relationships returns the current relationship map of an account.
func (e *Engine) Relationships(ctx context.Context, accountID string) (map[string]model.RelationshipStatus, error) {
	fields, err := e.store.Get(ctx, model.CollAccounts, accountID)
	if err != nil {
		return nil, err
	}
	return model.AccountFromFields(accountID, fields).Relationships, nil
}

func loadPair(tx store.Tx, selfID, otherID string) (*model.Account, *model.Account, error) {
	selfFields, err := tx.Get(model.CollAccounts, selfID)
	if err != nil {
		return nil, nil, fmt.Errorf("load %s: %w", selfID, err)
	}
	otherFields, err := tx.Get(model.CollAccounts, otherID)
	if err != nil {
		return nil, nil, fmt.Errorf("load %s: %w", otherID, err)
	}
	return model.AccountFromFields(selfID, selfFields), model.AccountFromFields(otherID, otherFields), nil
}

func storePair(tx store.Tx, a, b *model.Account) error {
	if err := tx.Set(model.CollAccounts, a.ID, a.RelationshipsField()); err != nil {
		return err
	}
	return tx.Set(model.CollAccounts, b.ID, b.RelationshipsField())
}
