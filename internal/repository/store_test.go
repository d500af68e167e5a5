package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/cardtable/blackjack-server/internal/cards"
	"github.com/cardtable/blackjack-server/internal/config"
	"github.com/cardtable/blackjack-server/internal/round"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestRound(code string) *round.Round {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &round.Round{
		ID:        uuid.NewString(),
		OwnerID:   "owner",
		MemberIDs: []string{"owner"},
		Deck:      cards.Standard().IDs(),
		JoinCode:  code,
		Hands:     map[string]*round.Hand{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// runStoreContract exercises the behaviour every round.Store must share.
func runStoreContract(t *testing.T, store round.Store) {
	ctx := context.Background()
	code := uuid.NewString()[:6]

	t.Run("create and get", func(t *testing.T) {
		r := newTestRound(code)
		require.NoError(t, store.Create(ctx, r))
		assert.Equal(t, int64(1), r.Version)

		got, err := store.Get(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, r.ID, got.ID)
		assert.Equal(t, r.Deck, got.Deck)
		assert.Equal(t, int64(1), got.Version)

		byCode, err := store.GetByJoinCode(ctx, code)
		require.NoError(t, err)
		assert.Equal(t, r.ID, byCode.ID)
	})

	t.Run("missing round", func(t *testing.T) {
		_, err := store.Get(ctx, uuid.NewString())
		assert.ErrorIs(t, err, round.ErrRoundNotFound)

		_, err = store.GetByJoinCode(ctx, "NOPE00")
		assert.ErrorIs(t, err, round.ErrRoundNotFound)
	})

	t.Run("version compare and swap", func(t *testing.T) {
		r := newTestRound(uuid.NewString()[:6])
		require.NoError(t, store.Create(ctx, r))

		first, err := store.Get(ctx, r.ID)
		require.NoError(t, err)
		stale, err := store.Get(ctx, r.ID)
		require.NoError(t, err)

		first.MemberIDs = append(first.MemberIDs, "alice")
		first.Hands["alice"] = round.NewHand("alice")
		require.NoError(t, store.Save(ctx, first))
		assert.Equal(t, int64(2), first.Version)

		stale.MemberIDs = append(stale.MemberIDs, "bob")
		assert.ErrorIs(t, store.Save(ctx, stale), round.ErrVersionConflict)

		got, err := store.Get(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"owner", "alice"}, got.MemberIDs)
		require.Contains(t, got.Hands, "alice")
	})

	t.Run("join code reserved while open", func(t *testing.T) {
		shared := uuid.NewString()[:6]
		open := newTestRound(shared)
		require.NoError(t, store.Create(ctx, open))
		assert.ErrorIs(t, store.Create(ctx, newTestRound(shared)), round.ErrJoinCodeTaken)

		open.Finished = true
		require.NoError(t, store.Save(ctx, open))

		reused := newTestRound(shared)
		reused.CreatedAt = open.CreatedAt.Add(time.Second)
		require.NoError(t, store.Create(ctx, reused))
		got, err := store.GetByJoinCode(ctx, shared)
		require.NoError(t, err)
		assert.Equal(t, reused.ID, got.ID)
	})

	t.Run("reopened round cannot take a held join code", func(t *testing.T) {
		shared := uuid.NewString()[:6]
		first := newTestRound(shared)
		require.NoError(t, store.Create(ctx, first))
		first.Finished = true
		require.NoError(t, store.Save(ctx, first))

		second := newTestRound(shared)
		second.CreatedAt = first.CreatedAt.Add(time.Second)
		require.NoError(t, store.Create(ctx, second))

		first.Finished = false
		assert.ErrorIs(t, store.Save(ctx, first), round.ErrJoinCodeTaken)

		fresh := uuid.NewString()[:6]
		first.JoinCode = fresh
		require.NoError(t, store.Save(ctx, first))

		got, err := store.GetByJoinCode(ctx, fresh)
		require.NoError(t, err)
		assert.Equal(t, first.ID, got.ID)
		got, err = store.GetByJoinCode(ctx, shared)
		require.NoError(t, err)
		assert.Equal(t, second.ID, got.ID)
	})

	t.Run("save unknown round", func(t *testing.T) {
		r := newTestRound(uuid.NewString()[:6])
		r.Version = 1
		assert.ErrorIs(t, store.Save(ctx, r), round.ErrRoundNotFound)
	})

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, store.Ping(ctx))
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, NewMemoryStore())
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	r := newTestRound("ABC123")
	require.NoError(t, store.Create(ctx, r))

	got, err := store.Get(ctx, r.ID)
	require.NoError(t, err)
	got.Deck = got.Deck[:10]
	got.MemberIDs[0] = "mallory"

	again, err := store.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Len(t, again.Deck, cards.DeckSize)
	assert.Equal(t, "owner", again.MemberIDs[0])
	assert.Equal(t, 1, store.Len())
}

func TestMemoryStoreHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := NewMemoryStore()
	assert.ErrorIs(t, store.Create(ctx, newTestRound("ZZZ999")), context.Canceled)
	_, err := store.Get(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("BLACKJACK_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("BLACKJACK_TEST_REDIS_ADDR not set")
	}
	client := NewRedisClient(WithAddress(addr))
	defer client.Close()
	require.NoError(t, client.Ping(context.Background()).Err())

	runStoreContract(t, NewRedisStore(client, "blackjack-test-"+uuid.NewString()[:8]))
}

func TestPostgresStore(t *testing.T) {
	url := os.Getenv("BLACKJACK_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("BLACKJACK_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	store, err := NewPostgresStore(ctx, config.DatabaseConfig{URL: url, MaxConns: 4}, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.Migrate(ctx))

	runStoreContract(t, store)

	n, err := store.SeedCards(ctx, cards.Standard())
	require.NoError(t, err)
	assert.Equal(t, cards.DeckSize, n)
	count, err := store.CountCards(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(cards.DeckSize), count)
}

func TestOpenMemoryDriver(t *testing.T) {
	cfg := config.Default()
	cfg.Database.Driver = DriverMemory

	backend, err := Open(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer backend.Close()
	assert.IsType(t, &MemoryStore{}, backend.Store)

	cfg.Database.Driver = "cassandra"
	_, err = Open(context.Background(), cfg, zaptest.NewLogger(t))
	assert.Error(t, err)
}
