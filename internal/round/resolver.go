package round

import (
	"github.com/cardtable/blackjack-server/internal/cards"
	"github.com/samber/lo"
)

// Outcome describes where the round landed after a deal, an advance or a resolution.
type Outcome struct {
	Finished bool
	WinnerID *string
	// Winners lists every member sharing the winning result. It has more than one entry
	// only on a tie, in which case WinnerID is nil.
	Winners   []string
	TurnIndex int
}

// HandTotal is a revealed total of one playing member.
type HandTotal struct {
	PlayerID string `json:"playerId"`
	Total    int    `json:"total"`
}

// Deal gives InitialCards cards to each playing member in member order, busts hands over
// the limit and settles natural blackjacks. The caller must have checked the deck holds
// enough cards.
func Deal(r *Round, catalog *cards.Catalog) Outcome {
	var naturals []string
	for _, id := range r.PlayingMembers() {
		h, ok := r.Hands[id]
		if !ok {
			h = NewHand(id)
			r.Hands[id] = h
		}
		for i := 0; i < InitialCards; i++ {
			card, ok := r.pop()
			if !ok {
				break
			}
			h.Cards = append(h.Cards, card)
		}
		h.Total = catalog.Total(h.Cards)
		switch {
		case h.Total > BlackjackTotal:
			h.Bust()
		case h.Total == BlackjackTotal && h.Count() == InitialCards:
			naturals = append(naturals, id)
		}
	}

	if len(naturals) > 0 {
		// several naturals end the round without a winner
		return finish(r, naturals)
	}

	r.Active = true
	r.Finished = false
	r.WinnerID = nil
	idx, ok := nextEligible(r, 0)
	if !ok {
		return Resolve(r)
	}
	r.TurnIndex = idx
	return Outcome{TurnIndex: idx}
}

// AdvanceOrResolve moves the turn to the next eligible hand after the current one,
// wrapping around. When no hand is eligible the round is resolved.
func AdvanceOrResolve(r *Round) Outcome {
	idx, ok := nextEligible(r, r.TurnIndex+1)
	if !ok {
		return Resolve(r)
	}
	r.TurnIndex = idx
	return Outcome{TurnIndex: idx}
}

// Resolve finishes the round in favour of the strictly highest valid total. A tie for the
// maximum, or no valid total at all, leaves the round without a winner.
func Resolve(r *Round) Outcome {
	best := 0
	var leaders []string
	for _, h := range r.PlayingHands() {
		if h.Total <= 0 || h.Total > BlackjackTotal {
			continue
		}
		switch {
		case h.Total > best:
			best = h.Total
			leaders = []string{h.PlayerID}
		case h.Total == best:
			leaders = append(leaders, h.PlayerID)
		}
	}
	return finish(r, leaders)
}

// Declare finishes the round with a single winner.
func Declare(r *Round, winnerID string) Outcome {
	return finish(r, []string{winnerID})
}

// Totals returns the current totals of every playing hand in member order.
func Totals(r *Round) []HandTotal {
	return lo.Map(r.PlayingHands(), func(h *Hand, _ int) HandTotal {
		return HandTotal{PlayerID: h.PlayerID, Total: h.Total}
	})
}

func finish(r *Round, winners []string) Outcome {
	r.Active = false
	r.Finished = true
	r.WinnerID = nil
	if len(winners) == 1 {
		w := winners[0]
		r.WinnerID = &w
	}
	out := Outcome{
		Finished:  true,
		Winners:   append([]string{}, winners...),
		TurnIndex: r.TurnIndex,
	}
	if r.WinnerID != nil {
		w := *r.WinnerID
		out.WinnerID = &w
	}
	return out
}

// nextEligible scans the playing members circularly starting at start, inclusive, and
// returns the first index whose hand has neither stood nor busted.
func nextEligible(r *Round, start int) (int, bool) {
	playing := r.PlayingMembers()
	n := len(playing)
	if n == 0 {
		return 0, false
	}
	start = ((start % n) + n) % n
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		if h, ok := r.Hands[playing[idx]]; ok && h.Eligible() {
			return idx, true
		}
	}
	return 0, false
}
