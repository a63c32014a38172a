// Package discussion manages group discussions, their planned game
// sessions and the per-account message previews (last message plus unread
// counter) kept on each participant's account document.
package discussion

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
	// ErrNotParticipant rejects actions on a discussion or session the
	// account has not joined.
	ErrNotParticipant = errors.New("discussion: not a participant")
	// ErrEmptyMessage rejects posting a message without text.
	ErrEmptyMessage = errors.New("discussion: empty message")
)

// Service owns the discussions and sessions collections. Its membership
// methods back notification execution for join invites.
type Service struct {
	store  store.Client
	logger *zap.Logger
}

// NewService creates a discussion Service.
func NewService(s store.Client, logger *zap.Logger) *Service {
	return &Service{store: s, logger: logger}
}

// CreateDiscussion creates a discussion with the creator as the first
// participant and seeds the creator's preview entry.
func (s *Service) CreateDiscussion(ctx context.Context, creatorID, name string) (*model.Discussion, error) {
	d := &model.Discussion{
		ID:           uuid.NewString(),
		Name:         name,
		CreatorID:    creatorID,
		Participants: []string{creatorID},
		CreatedAt:    time.Now().UTC(),
	}
	err := s.store.RunTransaction(ctx, func(tx store.Tx) error {
		fields, err := tx.Get(model.CollAccounts, creatorID)
		if err != nil {
			return fmt.Errorf("load creator %s: %w", creatorID, err)
		}
		acc := model.AccountFromFields(creatorID, fields)
		acc.Previews[d.ID] = model.Preview{UpdatedAt: d.CreatedAt}
		if err := tx.Set(model.CollAccounts, creatorID, acc.PreviewsField()); err != nil {
			return err
		}
		return tx.Set(model.CollDiscussions, d.ID, d.Fields())
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("discussion created", zap.String("id", d.ID), zap.String("creator", creatorID))
	return d, nil
}

// Discussion loads a discussion by id.
func (s *Service) Discussion(ctx context.Context, discussionID string) (*model.Discussion, error) {
	fields, err := s.store.Get(ctx, model.CollDiscussions, discussionID)
	if err != nil {
		return nil, err
	}
	return model.DiscussionFromFields(discussionID, fields), nil
}

// AddParticipant adds an account to a discussion's participant set.
// Participants form a set: adding an existing member changes nothing, so
// executing a join notification twice is harmless.
func (s *Service) AddParticipant(ctx context.Context, discussionID, accountID string) error {
	err := s.store.RunTransaction(ctx, func(tx store.Tx) error {
		dFields, err := tx.Get(model.CollDiscussions, discussionID)
		if err != nil {
			return fmt.Errorf("load discussion %s: %w", discussionID, err)
		}
		d := model.DiscussionFromFields(discussionID, dFields)
		if d.HasParticipant(accountID) {
			return nil
		}
		aFields, err := tx.Get(model.CollAccounts, accountID)
		if err != nil {
			return fmt.Errorf("load account %s: %w", accountID, err)
		}
		acc := model.AccountFromFields(accountID, aFields)
		if _, ok := acc.Previews[discussionID]; !ok {
			acc.Previews[discussionID] = model.Preview{UpdatedAt: time.Now().UTC()}
		}
		d.Participants = append(d.Participants, accountID)
		if err := tx.Set(model.CollAccounts, accountID, acc.PreviewsField()); err != nil {
			return err
		}
		return tx.Set(model.CollDiscussions, discussionID, map[string]any{
			"participants": model.StringsToField(d.Participants),
		})
	})
	if err != nil {
		return err
	}
	s.logger.Info("participant added",
		zap.String("discussion", discussionID), zap.String("account", accountID))
	return nil
}

// CreateSession plans a game session inside a discussion. Only
// participants of the discussion can plan sessions in it; the planner is
// the session's first participant.
func (s *Service) CreateSession(ctx context.Context, creatorID, discussionID, name, location string, startsAt time.Time) (*model.Session, error) {
	sess := &model.Session{
		ID:           uuid.NewString(),
		DiscussionID: discussionID,
		Name:         name,
		Location:     location,
		StartsAt:     startsAt.UTC(),
		Participants: []string{creatorID},
		CreatedAt:    time.Now().UTC(),
	}
	err := s.store.RunTransaction(ctx, func(tx store.Tx) error {
		dFields, err := tx.Get(model.CollDiscussions, discussionID)
		if err != nil {
			return fmt.Errorf("load discussion %s: %w", discussionID, err)
		}
		d := model.DiscussionFromFields(discussionID, dFields)
		if !d.HasParticipant(creatorID) {
			return ErrNotParticipant
		}
		return tx.Set(model.CollSessions, sess.ID, sess.Fields())
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("session created",
		zap.String("id", sess.ID), zap.String("discussion", discussionID), zap.String("creator", creatorID))
	return sess, nil
}

// Session loads a session by id.
func (s *Service) Session(ctx context.Context, sessionID string) (*model.Session, error) {
	fields, err := s.store.Get(ctx, model.CollSessions, sessionID)
	if err != nil {
		return nil, err
	}
	return model.SessionFromFields(sessionID, fields), nil
}

// AddSessionParticipant adds an account to a session's participant set.
// Idempotent like AddParticipant.
func (s *Service) AddSessionParticipant(ctx context.Context, sessionID, accountID string) error {
	err := s.store.RunTransaction(ctx, func(tx store.Tx) error {
		fields, err := tx.Get(model.CollSessions, sessionID)
		if err != nil {
			return fmt.Errorf("load session %s: %w", sessionID, err)
		}
		sess := model.SessionFromFields(sessionID, fields)
		if sess.HasParticipant(accountID) {
			return nil
		}
		if _, err := tx.Get(model.CollAccounts, accountID); err != nil {
			return fmt.Errorf("load account %s: %w", accountID, err)
		}
		sess.Participants = append(sess.Participants, accountID)
		return tx.Set(model.CollSessions, sessionID, map[string]any{
			"participants": model.StringsToField(sess.Participants),
		})
	})
	if err != nil {
		return err
	}
	s.logger.Info("session participant added",
		zap.String("session", sessionID), zap.String("account", accountID))
	return nil
}

// PostMessage appends a message and refreshes every other participant's
// preview: last message, last sender and an unread counter bump. The
// sender's own preview updates without counting as unread.
func (s *Service) PostMessage(ctx context.Context, discussionID, senderID, text string) (*model.Message, error) {
	if text == "" {
		return nil, ErrEmptyMessage
	}
	msg := &model.Message{
		ID:       uuid.NewString(),
		SenderID: senderID,
		Text:     text,
		SentAt:   time.Now().UTC(),
	}
	err := s.store.RunTransaction(ctx, func(tx store.Tx) error {
		dFields, err := tx.Get(model.CollDiscussions, discussionID)
		if err != nil {
			return fmt.Errorf("load discussion %s: %w", discussionID, err)
		}
		d := model.DiscussionFromFields(discussionID, dFields)
		if !d.HasParticipant(senderID) {
			return ErrNotParticipant
		}
		d.Messages = append(d.Messages, *msg)
		if err := tx.Set(model.CollDiscussions, discussionID, map[string]any{
			"messages": d.Fields()["messages"],
		}); err != nil {
			return err
		}
		for _, pid := range d.Participants {
			aFields, err := tx.Get(model.CollAccounts, pid)
			if err != nil {
				return fmt.Errorf("load participant %s: %w", pid, err)
			}
			acc := model.AccountFromFields(pid, aFields)
			p := acc.Previews[discussionID]
			p.LastMessage = msg.Text
			p.LastSender = senderID
			p.UpdatedAt = msg.SentAt
			if pid != senderID {
				p.UnreadCount++
			}
			acc.Previews[discussionID] = p
			if err := tx.Set(model.CollAccounts, pid, acc.PreviewsField()); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("message posted",
		zap.String("discussion", discussionID), zap.String("sender", senderID))
	return msg, nil
}

// OpenDiscussion marks the discussion as seen by the account, resetting
// its unread counter. Opening with nothing unread is a no-op.
func (s *Service) OpenDiscussion(ctx context.Context, accountID, discussionID string) error {
	return s.store.RunTransaction(ctx, func(tx store.Tx) error {
		aFields, err := tx.Get(model.CollAccounts, accountID)
		if err != nil {
			return err
		}
		acc := model.AccountFromFields(accountID, aFields)
		p, ok := acc.Previews[discussionID]
		if !ok || p.UnreadCount == 0 {
			return nil
		}
		p.UnreadCount = 0
		acc.Previews[discussionID] = p
		return tx.Set(model.CollAccounts, accountID, acc.PreviewsField())
	})
}

// Previews returns the account's discussion previews.
func (s *Service) Previews(ctx context.Context, accountID string) (map[string]model.Preview, error) {
	fields, err := s.store.Get(ctx, model.CollAccounts, accountID)
	if err != nil {
		return nil, err
	}
	return model.AccountFromFields(accountID, fields).Previews, nil
}
