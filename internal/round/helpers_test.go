package round_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cardtable/blackjack-server/internal/cards"
	"github.com/cardtable/blackjack-server/internal/repository"
	"github.com/cardtable/blackjack-server/internal/round"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const owner = "owner"

type recorder struct {
	mu     sync.Mutex
	rooms  []string
	events []round.Event
}

func (r *recorder) Publish(_ context.Context, room string, ev round.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rooms = append(r.rooms, room)
	r.events = append(r.events, ev)
}

func (r *recorder) types() []round.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	return lo.Map(r.events, func(ev round.Event, _ int) round.EventType { return ev.Type })
}

func (r *recorder) last() round.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

type fixedShuffler []cards.ID

func (f fixedShuffler) Shuffle() []cards.ID { return append([]cards.ID(nil), f...) }

// stacked returns a full deck whose first pops yield top in order.
func stacked(top ...cards.ID) fixedShuffler {
	deck := lo.Filter(cards.Standard().IDs(), func(id cards.ID, _ int) bool {
		return !lo.Contains(top, id)
	})
	for i := len(top) - 1; i >= 0; i-- {
		deck = append(deck, top[i])
	}
	return fixedShuffler(deck)
}

func displayName(_ context.Context, id string) string {
	return "name-" + id
}

type table struct {
	svc     *round.Service
	store   *repository.MemoryStore
	events  *recorder
	id      string
	code    string
	players []string
}

func newService(t *testing.T, store round.Store, rec *recorder, top ...cards.ID) *round.Service {
	t.Helper()
	return round.NewService(store, rec, zaptest.NewLogger(t),
		round.WithShuffler(stacked(top...)),
		round.WithDirectory(round.DirectoryFunc(displayName)),
		round.WithStoreTimeout(time.Second),
	)
}

// newTable creates a round owned by "owner" and joins players p1..pN.
func newTable(t *testing.T, players int, top ...cards.ID) *table {
	t.Helper()
	ctx := context.Background()
	store := repository.NewMemoryStore()
	rec := &recorder{}
	svc := newService(t, store, rec, top...)

	r, err := svc.Create(ctx, owner)
	require.NoError(t, err)

	tb := &table{svc: svc, store: store, events: rec, id: r.ID, code: r.JoinCode}
	for i := 1; i <= players; i++ {
		id := fmt.Sprintf("p%d", i)
		_, err := svc.Join(ctx, r.JoinCode, id)
		require.NoError(t, err)
		tb.players = append(tb.players, id)
	}
	return tb
}

func (tb *table) readyAll(t *testing.T) {
	t.Helper()
	for _, id := range tb.players {
		_, err := tb.svc.Ready(context.Background(), tb.id, id)
		require.NoError(t, err)
	}
}

func (tb *table) start(t *testing.T) *round.Round {
	t.Helper()
	tb.readyAll(t)
	r, err := tb.svc.Start(context.Background(), tb.id, owner)
	require.NoError(t, err)
	return r
}

func (tb *table) load(t *testing.T) *round.Round {
	t.Helper()
	r, err := tb.store.Get(context.Background(), tb.id)
	require.NoError(t, err)
	return r
}

// craft stores an active round with the given hands and returns a service over it.
func craft(t *testing.T, hands map[string][]cards.ID, turn int, top ...cards.ID) (*round.Service, *repository.MemoryStore, *recorder, string) {
	t.Helper()
	catalog := cards.Standard()
	store := repository.NewMemoryStore()
	rec := &recorder{}

	members := []string{owner}
	held := map[cards.ID]bool{}
	r := &round.Round{
		ID:       "crafted",
		OwnerID:  owner,
		Active:   true,
		JoinCode: "CRAFT1",
		Hands:    map[string]*round.Hand{},
	}
	for i := 1; i <= len(hands); i++ {
		id := fmt.Sprintf("p%d", i)
		members = append(members, id)
		h := round.NewHand(id)
		h.Ready = true
		h.Cards = hands[id]
		h.Total = catalog.Total(h.Cards)
		if h.Total > round.BlackjackTotal {
			h.Bust()
		}
		for _, c := range h.Cards {
			held[c] = true
		}
		r.Hands[id] = h
	}
	r.MemberIDs = members
	r.TurnIndex = turn
	r.Deck = lo.Filter([]cards.ID(stacked(top...)), func(id cards.ID, _ int) bool { return !held[id] })
	require.NoError(t, store.Create(context.Background(), r))

	return newService(t, store, rec), store, rec, r.ID
}

func requireKind(t *testing.T, err error, kind round.Kind) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, round.KindOf(err), "unexpected error: %v", err)
}
