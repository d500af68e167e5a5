package round

import (
	"context"

	"github.com/cardtable/blackjack-server/internal/cards"
)

// Member is a user projection for clients.
type Member struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RoundView is the client projection of a round. Deck is only filled for the owner.
type RoundView struct {
	ID        string       `json:"id"`
	Owner     Member       `json:"owner"`
	Members   []Member     `json:"members"`
	Deck      []cards.Card `json:"deck,omitempty"`
	DeckCount int          `json:"deckCount"`
	Active    bool         `json:"active"`
	Finished  bool         `json:"finished"`
	Phase     string       `json:"phase"`
	TurnIndex int          `json:"turnIndex"`
	Winner    *Member      `json:"winner"`
	JoinCode  string       `json:"joinCode"`
	Version   int64        `json:"version"`
}

// HandView is the client projection of a hand.
type HandView struct {
	Player Member       `json:"player"`
	Cards  []cards.Card `json:"cards"`
	Count  int          `json:"count"`
	Total  int          `json:"totalValue"`
	Ready  bool         `json:"isReady"`
	Stood  bool         `json:"isStand"`
	Busted bool         `json:"isBusted"`
}

// View is what a member sees when fetching a round.
type View struct {
	Round      RoundView  `json:"game"`
	Hands      []HandView `json:"playerDecks"`
	IsOwner    bool       `json:"isOwner"`
	IsYourTurn bool       `json:"isYourTurn"`
}

// ViewOf projects r for callerID.
func (s *Service) ViewOf(ctx context.Context, r *Round, callerID string) (*View, error) {
	return s.project(ctx, r, callerID)
}

func (s *Service) member(ctx context.Context, id string) Member {
	return Member{ID: id, Name: s.name(ctx, id)}
}

func (s *Service) project(ctx context.Context, r *Round, callerID string) (*View, error) {
	rv := RoundView{
		ID:        r.ID,
		Owner:     s.member(ctx, r.OwnerID),
		Members:   make([]Member, 0, len(r.MemberIDs)),
		DeckCount: len(r.Deck),
		Active:    r.Active,
		Finished:  r.Finished,
		Phase:     r.Phase().String(),
		TurnIndex: r.TurnIndex,
		JoinCode:  r.JoinCode,
		Version:   r.Version,
	}
	for _, id := range r.MemberIDs {
		rv.Members = append(rv.Members, s.member(ctx, id))
	}
	if r.WinnerID != nil {
		w := s.member(ctx, *r.WinnerID)
		rv.Winner = &w
	}
	if r.IsOwner(callerID) {
		deck, err := s.catalog.Resolve(r.Deck)
		if err != nil {
			return nil, internal("failed to resolve deck", err)
		}
		rv.Deck = deck
	}

	view := &View{
		Round:      rv,
		Hands:      make([]HandView, 0, len(r.Hands)),
		IsOwner:    r.IsOwner(callerID),
		IsYourTurn: r.CurrentPlayerID() != "" && r.CurrentPlayerID() == callerID,
	}
	for _, h := range r.PlayingHands() {
		hv, err := s.handView(ctx, h)
		if err != nil {
			return nil, err
		}
		view.Hands = append(view.Hands, hv)
	}
	return view, nil
}

func (s *Service) handView(ctx context.Context, h *Hand) (HandView, error) {
	resolved, err := s.catalog.Resolve(h.Cards)
	if err != nil {
		return HandView{}, internal("failed to resolve hand", err)
	}
	return HandView{
		Player: s.member(ctx, h.PlayerID),
		Cards:  resolved,
		Count:  h.Count(),
		Total:  h.Total,
		Ready:  h.Ready,
		Stood:  h.Stood,
		Busted: h.Busted,
	}, nil
}
