package discussion_test

import (
	"context"
	"testing"
	"time"

	"github.com/meeplemeet/server/discussion"
	"github.com/meeplemeet/server/model"
	"github.com/meeplemeet/server/store"
	"github.com/meeplemeet/server/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newService(t *testing.T) (*discussion.Service, store.Client) {
	t.Helper()
	s := testutil.SetupTestStore(t)
	logger, _ := zap.NewDevelopment()
	return discussion.NewService(s, logger), s
}

func seedAccount(t *testing.T, s store.Client, id string) {
	t.Helper()
	acc := &model.Account{ID: id, Handle: id}
	require.NoError(t, s.Set(context.Background(), model.CollAccounts, id, acc.Fields()))
}

func TestCreateDiscussion(t *testing.T) {
	svc, s := newService(t)
	seedAccount(t, s, "alice")
	ctx := context.Background()

	d, err := svc.CreateDiscussion(ctx, "alice", "friday games")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, d.Participants)

	got, err := svc.Discussion(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "friday games", got.Name)
	assert.Equal(t, "alice", got.CreatorID)

	previews, err := svc.Previews(ctx, "alice")
	require.NoError(t, err)
	_, ok := previews[d.ID]
	assert.True(t, ok, "creator gets a preview entry")
}

func TestAddParticipantIdempotent(t *testing.T) {
	svc, s := newService(t)
	seedAccount(t, s, "alice")
	seedAccount(t, s, "bob")
	ctx := context.Background()

	d, err := svc.CreateDiscussion(ctx, "alice", "games")
	require.NoError(t, err)

	require.NoError(t, svc.AddParticipant(ctx, d.ID, "bob"))
	require.NoError(t, svc.AddParticipant(ctx, d.ID, "bob"))
	require.NoError(t, svc.AddParticipant(ctx, d.ID, "bob"))

	got, err := svc.Discussion(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, got.Participants, "set semantics, no duplicates")
}

func TestAddParticipantMissingDiscussion(t *testing.T) {
	svc, s := newService(t)
	seedAccount(t, s, "bob")

	err := svc.AddParticipant(context.Background(), "nope", "bob")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPostMessageUpdatesPreviews(t *testing.T) {
	svc, s := newService(t)
	seedAccount(t, s, "alice")
	seedAccount(t, s, "bob")
	seedAccount(t, s, "carol")
	ctx := context.Background()

	d, err := svc.CreateDiscussion(ctx, "alice", "games")
	require.NoError(t, err)
	require.NoError(t, svc.AddParticipant(ctx, d.ID, "bob"))
	require.NoError(t, svc.AddParticipant(ctx, d.ID, "carol"))

	_, err = svc.PostMessage(ctx, d.ID, "alice", "who's in for friday?")
	require.NoError(t, err)
	_, err = svc.PostMessage(ctx, d.ID, "bob", "me!")
	require.NoError(t, err)

	// Sender sees the latest message but no unread bump for their own.
	alice, err := svc.Previews(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "me!", alice[d.ID].LastMessage)
	assert.Equal(t, "bob", alice[d.ID].LastSender)
	assert.Equal(t, 1, alice[d.ID].UnreadCount)

	bob, err := svc.Previews(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 1, bob[d.ID].UnreadCount, "only alice's message is unread for bob")

	carol, err := svc.Previews(ctx, "carol")
	require.NoError(t, err)
	assert.Equal(t, 2, carol[d.ID].UnreadCount)
}

func TestPostMessageRequiresMembership(t *testing.T) {
	svc, s := newService(t)
	seedAccount(t, s, "alice")
	seedAccount(t, s, "mallory")
	ctx := context.Background()

	d, err := svc.CreateDiscussion(ctx, "alice", "games")
	require.NoError(t, err)

	_, err = svc.PostMessage(ctx, d.ID, "mallory", "let me in")
	assert.ErrorIs(t, err, discussion.ErrNotParticipant)

	got, err := svc.Discussion(ctx, d.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Messages)
}

func TestPostEmptyMessage(t *testing.T) {
	svc, s := newService(t)
	seedAccount(t, s, "alice")
	ctx := context.Background()

	d, err := svc.CreateDiscussion(ctx, "alice", "games")
	require.NoError(t, err)

	_, err = svc.PostMessage(ctx, d.ID, "alice", "")
	assert.ErrorIs(t, err, discussion.ErrEmptyMessage)
}

func TestOpenDiscussionResetsUnread(t *testing.T) {
	svc, s := newService(t)
	seedAccount(t, s, "alice")
	seedAccount(t, s, "bob")
	ctx := context.Background()

	d, err := svc.CreateDiscussion(ctx, "alice", "games")
	require.NoError(t, err)
	require.NoError(t, svc.AddParticipant(ctx, d.ID, "bob"))
	_, err = svc.PostMessage(ctx, d.ID, "alice", "hello")
	require.NoError(t, err)

	require.NoError(t, svc.OpenDiscussion(ctx, "bob", d.ID))
	bob, err := svc.Previews(ctx, "bob")
	require.NoError(t, err)
	assert.Zero(t, bob[d.ID].UnreadCount)
	assert.Equal(t, "hello", bob[d.ID].LastMessage, "last message survives the reset")

	// Opening again with nothing unread is a no-op.
	require.NoError(t, svc.OpenDiscussion(ctx, "bob", d.ID))
}

func TestCreateSessionRequiresMembership(t *testing.T) {
	svc, s := newService(t)
	seedAccount(t, s, "alice")
	seedAccount(t, s, "mallory")
	ctx := context.Background()

	d, err := svc.CreateDiscussion(ctx, "alice", "games")
	require.NoError(t, err)

	_, err = svc.CreateSession(ctx, "mallory", d.ID, "catan night", "cafe", time.Now().Add(24*time.Hour))
	assert.ErrorIs(t, err, discussion.ErrNotParticipant)
}

func TestSessionLifecycle(t *testing.T) {
	svc, s := newService(t)
	seedAccount(t, s, "alice")
	seedAccount(t, s, "bob")
	ctx := context.Background()

	d, err := svc.CreateDiscussion(ctx, "alice", "games")
	require.NoError(t, err)

	starts := time.Now().Add(48 * time.Hour).UTC().Truncate(time.Second)
	sess, err := svc.CreateSession(ctx, "alice", d.ID, "catan night", "dice cafe", starts)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, sess.Participants)

	require.NoError(t, svc.AddSessionParticipant(ctx, sess.ID, "bob"))
	require.NoError(t, svc.AddSessionParticipant(ctx, sess.ID, "bob"))

	got, err := svc.Session(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, d.ID, got.DiscussionID)
	assert.Equal(t, "dice cafe", got.Location)
	assert.True(t, got.StartsAt.Equal(starts))
	assert.Equal(t, []string{"alice", "bob"}, got.Participants)
}
