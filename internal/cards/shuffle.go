package cards

import (
	"errors"
	"math/rand/v2"
	"sync"
	"time"
)

// ErrIncompleteDeck is returned when a shuffled deck is not a full permutation of the catalog.
var ErrIncompleteDeck = errors.New("deck must contain exactly 52 cards")

// Shuffler produces a permutation of the catalog's card ids.
type Shuffler interface {
	Shuffle() []ID
}

// RandomShuffler performs a Fisher–Yates shuffle over the full catalog.
type RandomShuffler struct {
	catalog *Catalog

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomShuffler creates a shuffler seeded from the clock.
func NewRandomShuffler(catalog *Catalog) *RandomShuffler {
	seed := uint64(time.Now().UnixNano())
	return NewSeededShuffler(catalog, seed, seed>>1|1)
}

// NewSeededShuffler creates a deterministic shuffler, mainly for tests.
func NewSeededShuffler(catalog *Catalog, seed1, seed2 uint64) *RandomShuffler {
	return &RandomShuffler{
		catalog: catalog,
		rng:     rand.New(rand.NewPCG(seed1, seed2)),
	}
}

// Shuffle returns a uniformly random permutation of the catalog ids.
func (s *RandomShuffler) Shuffle() []ID {
	ids := s.catalog.IDs()

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(ids) - 1; i > 0; i-- {
		j := s.rng.IntN(i + 1)
		ids[i], ids[j] = ids[j], ids[i]
	}
	return ids
}

// NewDeck shuffles a fresh deck and verifies it holds every catalog card exactly once.
func NewDeck(catalog *Catalog, s Shuffler) ([]ID, error) {
	deck := s.Shuffle()
	if err := Validate(catalog, deck); err != nil {
		return nil, err
	}
	return deck, nil
}

// Validate checks that deck is a permutation of the catalog.
func Validate(catalog *Catalog, deck []ID) error {
	if len(deck) != DeckSize || catalog.Len() != DeckSize {
		return ErrIncompleteDeck
	}
	seen := make(map[ID]struct{}, len(deck))
	for _, id := range deck {
		if _, ok := catalog.Lookup(id); !ok {
			return ErrIncompleteDeck
		}
		if _, dup := seen[id]; dup {
			return ErrIncompleteDeck
		}
		seen[id] = struct{}{}
	}
	return nil
}
