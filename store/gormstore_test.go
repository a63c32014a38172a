package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/meeplemeet/server/store"
	"github.com/meeplemeet/server/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetMissingDocument(t *testing.T) {
	s := testutil.SetupTestStore(t)
	_, err := s.Get(context.Background(), "shops", "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSetCreatesAndGetReturns(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "shops", "s1", map[string]any{"name": "Dice Cafe", "phone": "1"}))

	doc, err := s.Get(ctx, "shops", "s1")
	require.NoError(t, err)
	assert.Equal(t, "Dice Cafe", doc["name"])
	assert.Equal(t, "1", doc["phone"])
}

func TestSetMergesPartialWrite(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "shops", "s1", map[string]any{"name": "A", "phone": "1", "email": "e"}))
	require.NoError(t, s.Set(ctx, "shops", "s1", map[string]any{"name": "B"}))

	doc, err := s.Get(ctx, "shops", "s1")
	require.NoError(t, err)
	assert.Equal(t, "B", doc["name"])
	assert.Equal(t, "1", doc["phone"], "unnamed fields keep their stored value")
	assert.Equal(t, "e", doc["email"])
}

func TestDeleteThenGet(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "shops", "s1", map[string]any{"name": "A"}))
	require.NoError(t, s.Delete(ctx, "shops", "s1"))

	_, err := s.Get(ctx, "shops", "s1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	// Deleting again is not an error.
	require.NoError(t, s.Delete(ctx, "shops", "s1"))
}

func TestTransactionAppliesBothWrites(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()

	err := s.RunTransaction(ctx, func(tx store.Tx) error {
		if err := tx.Set("accounts", "a", map[string]any{"name": "A"}); err != nil {
			return err
		}
		return tx.Set("accounts", "b", map[string]any{"name": "B"})
	})
	require.NoError(t, err)

	docA, err := s.Get(ctx, "accounts", "a")
	require.NoError(t, err)
	docB, err := s.Get(ctx, "accounts", "b")
	require.NoError(t, err)
	assert.Equal(t, "A", docA["name"])
	assert.Equal(t, "B", docB["name"])
}

func TestTransactionRollsBackOnError(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.RunTransaction(ctx, func(tx store.Tx) error {
		if err := tx.Set("accounts", "a", map[string]any{"name": "A"}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.Get(ctx, "accounts", "a")
	assert.ErrorIs(t, err, store.ErrNotFound, "half-applied write must not survive")
}

func TestTransactionReadsOwnWrites(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()

	err := s.RunTransaction(ctx, func(tx store.Tx) error {
		if err := tx.Set("accounts", "a", map[string]any{"n": 1.0}); err != nil {
			return err
		}
		doc, err := tx.Get("accounts", "a")
		if err != nil {
			return err
		}
		assert.Equal(t, 1.0, doc["n"])
		return nil
	})
	require.NoError(t, err)
}

func TestSubscribeDeliversSnapshotAndChanges(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, s.Set(ctx, "shops", "s1", map[string]any{"name": "A"}))

	ch, unsub, err := s.Subscribe(ctx, "shops", "s1")
	require.NoError(t, err)
	defer unsub()

	select {
	case snap := <-ch:
		assert.Equal(t, "A", snap["name"], "initial snapshot first")
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for initial snapshot")
	}

	require.NoError(t, s.Set(ctx, "shops", "s1", map[string]any{"name": "B"}))

	select {
	case snap := <-ch:
		assert.Equal(t, "B", snap["name"])
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for change")
	}
}

func TestNumbersNormalizeLikeJSON(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "shops", "s1", map[string]any{"seats": 12}))
	doc, err := s.Get(ctx, "shops", "s1")
	require.NoError(t, err)
	assert.Equal(t, float64(12), doc["seats"])
}
