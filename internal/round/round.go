package round

import (
	"time"

	"github.com/cardtable/blackjack-server/internal/cards"
	"github.com/samber/lo"
)

const (
	// MaxMembers caps membership, owner included.
	MaxMembers = 7
	// MinPlayingMembers is the smallest table that can be started.
	MinPlayingMembers = 4
	// MaxPlayingMembers is the largest table that can be started.
	MaxPlayingMembers = 7
	// BlackjackTotal is the winning total.
	BlackjackTotal = 21
	// BustedTotal marks a hand that is out of contention.
	BustedTotal = -1
	// InitialCards is the number of cards dealt to each playing member on start.
	InitialCards = 2
)

// Phase is the lifecycle state derived from the Active and Finished flags.
type Phase int

const (
	PhasePreGame Phase = iota
	PhaseActive
	PhaseFinished
)

func (p Phase) String() string {
	switch p {
	case PhasePreGame:
		return "PRE_GAME"
	case PhaseActive:
		return "ACTIVE"
	case PhaseFinished:
		return "FINISHED"
	default:
		return "UNKNOWN"
	}
}

// Hand is a playing member's cards and derived state within one round.
type Hand struct {
	PlayerID string     `json:"player_id"`
	Cards    []cards.ID `json:"cards"`
	Total    int        `json:"total"`
	Ready    bool       `json:"ready"`
	Stood    bool       `json:"stood"`
	Busted   bool       `json:"busted"`
}

// NewHand returns a zero-state hand.
func NewHand(playerID string) *Hand {
	return &Hand{PlayerID: playerID, Cards: []cards.ID{}}
}

// Eligible reports whether the hand can still take a turn.
func (h *Hand) Eligible() bool {
	return !h.Stood && h.Total != BustedTotal
}

// Count returns the number of cards held.
func (h *Hand) Count() int {
	return len(h.Cards)
}

// Bust marks the hand as out of contention.
func (h *Hand) Bust() {
	h.Total = BustedTotal
	h.Stood = true
	h.Busted = true
}

func (h *Hand) clone() *Hand {
	cp := *h
	cp.Cards = append([]cards.ID{}, h.Cards...)
	return &cp
}

// Round is the authoritative record of one game table. The round and its hands are
// persisted together as a single document.
type Round struct {
	ID        string           `json:"id"`
	OwnerID   string           `json:"owner_id"`
	MemberIDs []string         `json:"member_ids"`
	Deck      []cards.ID       `json:"deck"`
	Active    bool             `json:"active"`
	Finished  bool             `json:"finished"`
	TurnIndex int              `json:"turn_index"`
	WinnerID  *string          `json:"winner_id"`
	JoinCode  string           `json:"join_code"`
	Hands     map[string]*Hand `json:"hands"`
	Version   int64            `json:"version"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Phase returns the lifecycle state.
func (r *Round) Phase() Phase {
	switch {
	case r.Finished:
		return PhaseFinished
	case r.Active:
		return PhaseActive
	default:
		return PhasePreGame
	}
}

// PlayingMembers returns the members in join order, owner excluded.
func (r *Round) PlayingMembers() []string {
	return lo.Filter(r.MemberIDs, func(id string, _ int) bool {
		return id != r.OwnerID
	})
}

// PlayingIndex returns the turn index of userID, or -1 when the user does not play.
func (r *Round) PlayingIndex(userID string) int {
	return lo.IndexOf(r.PlayingMembers(), userID)
}

// IsMember reports whether userID joined the round (owner included).
func (r *Round) IsMember(userID string) bool {
	return lo.Contains(r.MemberIDs, userID)
}

// IsOwner reports whether userID created the round.
func (r *Round) IsOwner(userID string) bool {
	return r.OwnerID == userID
}

// IsTurnOf reports whether the turn pointer designates userID.
func (r *Round) IsTurnOf(userID string) bool {
	idx := r.PlayingIndex(userID)
	return idx >= 0 && idx == r.TurnIndex
}

// CurrentPlayerID returns the member whose turn it is, or "" when the round is not in play.
func (r *Round) CurrentPlayerID() string {
	if !r.Active || r.Finished {
		return ""
	}
	playing := r.PlayingMembers()
	if r.TurnIndex < 0 || r.TurnIndex >= len(playing) {
		return ""
	}
	return playing[r.TurnIndex]
}

// PlayingHands returns the hands of playing members in join order, skipping missing ones.
func (r *Round) PlayingHands() []*Hand {
	hands := make([]*Hand, 0, len(r.MemberIDs))
	for _, id := range r.PlayingMembers() {
		if h, ok := r.Hands[id]; ok {
			hands = append(hands, h)
		}
	}
	return hands
}

// CardsInPlay counts undealt cards plus every card held by a hand.
func (r *Round) CardsInPlay() int {
	n := len(r.Deck)
	for _, h := range r.Hands {
		n += len(h.Cards)
	}
	return n
}

// Winner returns the winner id or "".
func (r *Round) Winner() string {
	if r.WinnerID == nil {
		return ""
	}
	return *r.WinnerID
}

func (r *Round) pop() (cards.ID, bool) {
	if len(r.Deck) == 0 {
		return "", false
	}
	last := len(r.Deck) - 1
	id := r.Deck[last]
	r.Deck = r.Deck[:last]
	return id, true
}

// Clone returns a deep copy suitable for mutation.
func (r *Round) Clone() *Round {
	cp := *r
	cp.MemberIDs = append([]string{}, r.MemberIDs...)
	cp.Deck = append([]cards.ID{}, r.Deck...)
	if r.WinnerID != nil {
		w := *r.WinnerID
		cp.WinnerID = &w
	}
	cp.Hands = make(map[string]*Hand, len(r.Hands))
	for id, h := range r.Hands {
		cp.Hands[id] = h.clone()
	}
	return &cp
}
