package cards

import (
	"fmt"
	"strconv"
)

// Suit is one of the four French suits.
type Suit string

const (
	SuitHearts   Suit = "Hearts"
	SuitDiamonds Suit = "Diamonds"
	SuitClubs    Suit = "Clubs"
	SuitSpades   Suit = "Spades"
)

// Suits lists the suits in catalog order.
var Suits = []Suit{SuitHearts, SuitDiamonds, SuitClubs, SuitSpades}

var suitLetters = map[Suit]string{
	SuitHearts:   "H",
	SuitDiamonds: "D",
	SuitClubs:    "C",
	SuitSpades:   "S",
}

var suitSymbols = map[Suit]string{
	SuitHearts:   "♥",
	SuitDiamonds: "♦",
	SuitClubs:    "♣",
	SuitSpades:   "♠",
}

// Symbol returns the suit glyph.
func (s Suit) Symbol() string {
	return suitSymbols[s]
}

// Ranks lists the ranks in catalog order.
var Ranks = []string{"A", "2", "3", "4", "5", "6", "7", "8", "9", "10", "J", "Q", "K"}

// DeckSize is the number of cards in a full catalog.
const DeckSize = 52

// ID identifies a card by rank and suit letter, e.g. "10H" or "QS".
type ID string

// Card is an immutable catalog entry.
type Card struct {
	ID    ID     `json:"id"`
	Rank  string `json:"rank"`
	Suit  Suit   `json:"suit"`
	Value int    `json:"value"`
}

func (c Card) String() string {
	return c.Rank + c.Suit.Symbol()
}

// RankValue maps a rank to its house value: A=1, 2..10 face value, J=11, Q=12, K=13.
// Unknown ranks are worth 0.
func RankValue(rank string) int {
	switch rank {
	case "A":
		return 1
	case "J":
		return 11
	case "Q":
		return 12
	case "K":
		return 13
	}
	v, err := strconv.Atoi(rank)
	if err != nil {
		return 0
	}
	return v
}

// Catalog is the read-only set of 52 cards.
type Catalog struct {
	ordered []Card
	byID    map[ID]Card
}

var standard = buildCatalog()

func buildCatalog() *Catalog {
	c := &Catalog{
		ordered: make([]Card, 0, DeckSize),
		byID:    make(map[ID]Card, DeckSize),
	}
	for _, suit := range Suits {
		for _, rank := range Ranks {
			card := Card{
				ID:    ID(rank + suitLetters[suit]),
				Rank:  rank,
				Suit:  suit,
				Value: RankValue(rank),
			}
			c.ordered = append(c.ordered, card)
			c.byID[card.ID] = card
		}
	}
	return c
}

// Standard returns the process-wide catalog.
func Standard() *Catalog {
	return standard
}

// Len returns the number of cards in the catalog.
func (c *Catalog) Len() int {
	return len(c.ordered)
}

// All returns a copy of the cards in catalog order.
func (c *Catalog) All() []Card {
	out := make([]Card, len(c.ordered))
	copy(out, c.ordered)
	return out
}

// IDs returns the card ids in catalog order.
func (c *Catalog) IDs() []ID {
	ids := make([]ID, len(c.ordered))
	for i, card := range c.ordered {
		ids[i] = card.ID
	}
	return ids
}

// Lookup resolves a card id.
func (c *Catalog) Lookup(id ID) (Card, bool) {
	card, ok := c.byID[id]
	return card, ok
}

// Resolve maps ids to cards, failing on the first unknown id.
func (c *Catalog) Resolve(ids []ID) ([]Card, error) {
	out := make([]Card, 0, len(ids))
	for _, id := range ids {
		card, ok := c.byID[id]
		if !ok {
			return nil, fmt.Errorf("card %q not found", id)
		}
		out = append(out, card)
	}
	return out, nil
}

// Total sums the house values of the given cards. Unknown ids count as 0.
func (c *Catalog) Total(ids []ID) int {
	total := 0
	for _, id := range ids {
		total += c.byID[id].Value
	}
	return total
}
