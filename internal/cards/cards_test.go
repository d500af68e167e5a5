package cards

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedShuffler []ID

func (f fixedShuffler) Shuffle() []ID { return append([]ID(nil), f...) }

func TestCatalogHasOneCardPerRankAndSuit(t *testing.T) {
	catalog := Standard()
	require.Equal(t, DeckSize, catalog.Len())

	seen := make(map[string]bool)
	for _, card := range catalog.All() {
		key := card.Rank + string(card.Suit)
		assert.False(t, seen[key], "duplicate card %s", key)
		seen[key] = true
	}
	assert.Len(t, seen, DeckSize)
}

func TestRankValuesFollowHouseRule(t *testing.T) {
	cases := map[string]int{
		"A": 1, "2": 2, "7": 7, "10": 10, "J": 11, "Q": 12, "K": 13, "X": 0,
	}
	for rank, want := range cases {
		assert.Equal(t, want, RankValue(rank), "rank %s", rank)
	}

	card, ok := Standard().Lookup("KS")
	require.True(t, ok)
	assert.Equal(t, 13, card.Value)
	assert.Equal(t, SuitSpades, card.Suit)
	assert.Equal(t, "K♠", card.String())
}

func TestCatalogTotalAndResolve(t *testing.T) {
	catalog := Standard()
	assert.Equal(t, 14, catalog.Total([]ID{"AH", "KD"}))

	resolved, err := catalog.Resolve([]ID{"10C", "QH"})
	require.NoError(t, err)
	assert.Equal(t, "10", resolved[0].Rank)
	assert.Equal(t, 12, resolved[1].Value)

	_, err = catalog.Resolve([]ID{"ZZ"})
	assert.Error(t, err)
}

func TestShuffleProducesCompletePermutation(t *testing.T) {
	catalog := Standard()
	s := NewSeededShuffler(catalog, 1, 2)

	for i := 0; i < 50; i++ {
		deck, err := NewDeck(catalog, s)
		require.NoError(t, err)
		assert.Len(t, deck, DeckSize)
		assert.ElementsMatch(t, catalog.IDs(), deck)
	}
}

func TestSeededShufflerIsDeterministic(t *testing.T) {
	catalog := Standard()
	a := NewSeededShuffler(catalog, 42, 7).Shuffle()
	b := NewSeededShuffler(catalog, 42, 7).Shuffle()
	assert.Equal(t, a, b)
	assert.NotEqual(t, catalog.IDs(), a)
}

func TestNewDeckRejectsIncompleteDeck(t *testing.T) {
	catalog := Standard()

	short := fixedShuffler(catalog.IDs()[:51])
	_, err := NewDeck(catalog, short)
	assert.ErrorIs(t, err, ErrIncompleteDeck)

	dup := catalog.IDs()
	dup[0] = dup[1]
	_, err = NewDeck(catalog, fixedShuffler(dup))
	assert.ErrorIs(t, err, ErrIncompleteDeck)
}
