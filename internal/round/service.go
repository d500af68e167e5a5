package round

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cardtable/blackjack-server/internal/cards"
	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

const (
	// JoinCodeAlphabet is the character set of join codes.
	JoinCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	// JoinCodeLength is the number of characters in a join code.
	JoinCodeLength = 6

	defaultStoreTimeout = 5 * time.Second
	maxJoinCodeAttempts = 8
	minRestartMembers   = 2
)

// Service implements the round lifecycle. Every mutation of one round runs under that
// round's lock and is saved with a version check before any event is published.
type Service struct {
	store       Store
	broadcaster Broadcaster
	directory   Directory
	journal     EventLog
	catalog     *cards.Catalog
	shuffler    cards.Shuffler
	newCode     func() (string, error)
	newID       func() string
	now         func() time.Time
	timeout     time.Duration
	locks       *keyedMutex
	logger      *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithDirectory sets the display name resolver.
func WithDirectory(d Directory) Option {
	return func(s *Service) {
		if d != nil {
			s.directory = d
		}
	}
}

// WithEventLog exposes a journal through History.
func WithEventLog(l EventLog) Option {
	return func(s *Service) {
		s.journal = l
	}
}

// WithShuffler overrides the deck shuffler.
func WithShuffler(sh cards.Shuffler) Option {
	return func(s *Service) {
		if sh != nil {
			s.shuffler = sh
		}
	}
}

// WithStoreTimeout bounds every store call.
func WithStoreTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithJoinCodeGenerator overrides join code generation.
func WithJoinCodeGenerator(gen func() (string, error)) Option {
	return func(s *Service) {
		if gen != nil {
			s.newCode = gen
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates a round service.
func NewService(store Store, broadcaster Broadcaster, logger *zap.Logger, opts ...Option) *Service {
	if broadcaster == nil {
		broadcaster = NopBroadcaster{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	catalog := cards.Standard()
	s := &Service{
		store:       store,
		broadcaster: broadcaster,
		directory:   idDirectory{},
		catalog:     catalog,
		shuffler:    cards.NewRandomShuffler(catalog),
		newCode:     GenerateJoinCode,
		newID:       uuid.NewString,
		now:         time.Now,
		timeout:     defaultStoreTimeout,
		locks:       newKeyedMutex(),
		logger:      logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GenerateJoinCode returns a random join code.
func GenerateJoinCode() (string, error) {
	return gonanoid.Generate(JoinCodeAlphabet, JoinCodeLength)
}

// Catalog returns the card catalog used by the service.
func (s *Service) Catalog() *cards.Catalog {
	return s.catalog
}

// Ping checks the store.
func (s *Service) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.store.Ping(ctx)
}

// Create allocates a pre-game round owned by ownerID with a freshly shuffled deck.
func (s *Service) Create(ctx context.Context, ownerID string) (*Round, error) {
	deck, err := cards.NewDeck(s.catalog, s.shuffler)
	if err != nil {
		return nil, invalid(err.Error())
	}

	now := s.now()
	for attempt := 0; attempt < maxJoinCodeAttempts; attempt++ {
		code, err := s.newCode()
		if err != nil {
			return nil, internal("failed to generate join code", err)
		}
		r := &Round{
			ID:        s.newID(),
			OwnerID:   ownerID,
			MemberIDs: []string{ownerID},
			Deck:      append([]cards.ID{}, deck...),
			JoinCode:  code,
			Hands:     make(map[string]*Hand),
			CreatedAt: now,
			UpdatedAt: now,
		}

		storeCtx, cancel := context.WithTimeout(ctx, s.timeout)
		err = s.store.Create(storeCtx, r)
		cancel()
		if errors.Is(err, ErrJoinCodeTaken) {
			s.logger.Debug("join code collision", zap.String("join_code", code))
			continue
		}
		if err != nil {
			return nil, internal("failed to create game", err)
		}

		s.logger.Info("round created",
			zap.String("round_id", r.ID),
			zap.String("owner_id", ownerID),
			zap.String("join_code", code))
		return r, nil
	}
	return nil, internal("failed to create game", fmt.Errorf("no free join code after %d attempts", maxJoinCodeAttempts))
}

// Join adds userID to the pre-game round registered under code.
func (s *Service) Join(ctx context.Context, code, userID string) (*Round, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	found, err := s.getByJoinCode(ctx, code)
	if err != nil {
		return nil, err
	}

	return s.update(ctx, found.ID, func(r *Round) ([]Event, error) {
		switch {
		case r.IsMember(userID):
			return nil, invalid("you are already in this game")
		case len(r.MemberIDs) >= MaxMembers:
			return nil, invalid("game is full")
		case r.Active:
			return nil, invalid("game is already active")
		case r.Finished:
			return nil, invalid("game has already finished")
		}

		r.MemberIDs = append(r.MemberIDs, userID)
		r.Hands[userID] = NewHand(userID)

		s.logger.Info("player joined round",
			zap.String("round_id", r.ID),
			zap.String("user_id", userID),
			zap.Int("members", len(r.MemberIDs)))
		return []Event{s.event(r, EventStateChanged, map[string]any{
			"playerId":   userID,
			"playerName": s.name(ctx, userID),
		})}, nil
	})
}

// Ready marks the caller's hand as ready before the round starts.
func (s *Service) Ready(ctx context.Context, roundID, userID string) (*Hand, error) {
	var ready *Hand
	_, err := s.update(ctx, roundID, func(r *Round) ([]Event, error) {
		h, ok := r.Hands[userID]
		if !ok {
			return nil, notFound("player hand not found")
		}
		switch {
		case r.Finished:
			return nil, invalid("game has already finished")
		case r.Active:
			return nil, invalid("game is already active")
		case h.Ready:
			return nil, invalid("player is already ready")
		}

		h.Ready = true
		ready = h.clone()
		return []Event{s.event(r, EventStateChanged, map[string]any{
			"playerId": userID,
			"ready":    true,
		})}, nil
	})
	if err != nil {
		return nil, err
	}
	return ready, nil
}

// Start deals the opening hands. Only the owner may start a round.
func (s *Service) Start(ctx context.Context, roundID, callerID string) (*Round, error) {
	return s.update(ctx, roundID, func(r *Round) ([]Event, error) {
		if !r.IsOwner(callerID) {
			return nil, forbidden("only the game owner can start the game")
		}
		if r.Active {
			return nil, invalid("game is already active")
		}
		if r.Finished {
			return nil, invalid("game has already finished")
		}

		playing := r.PlayingMembers()
		if len(playing) < MinPlayingMembers {
			return nil, invalid(fmt.Sprintf("at least %d players are required to start the game", MinPlayingMembers))
		}
		if len(playing) > MaxPlayingMembers {
			return nil, invalid(fmt.Sprintf("at most %d players are allowed per game", MaxPlayingMembers))
		}
		for _, id := range playing {
			h, ok := r.Hands[id]
			if !ok || !h.Ready {
				return nil, invalid("all players must be ready to start the game")
			}
		}
		if len(r.Deck) < len(playing)*InitialCards {
			return nil, invalid("not enough cards in the deck to start the game")
		}

		out := Deal(r, s.catalog)
		s.logger.Info("round started",
			zap.String("round_id", r.ID),
			zap.Int("players", len(playing)),
			zap.Bool("finished_on_deal", out.Finished))

		if out.Finished {
			return []Event{s.finishedEvent(ctx, r, EventGameFinished, out, nil)}, nil
		}
		return []Event{s.event(r, EventGameStarted, map[string]any{
			"turnIndex":       r.TurnIndex,
			"currentPlayerId": r.CurrentPlayerID(),
		})}, nil
	})
}

// DrawResult is returned by Draw.
type DrawResult struct {
	Card     cards.Card `json:"card"`
	Total    int        `json:"totalValue"`
	Count    int        `json:"count"`
	Stood    bool       `json:"isStand"`
	Busted   bool       `json:"isBusted"`
	IsWinner bool       `json:"isWinner"`
	Finished bool       `json:"finished"`
	WinnerID *string    `json:"winner"`
}

// Draw pops the top card of the deck into the caller's hand.
func (s *Service) Draw(ctx context.Context, roundID, callerID string) (*DrawResult, error) {
	var res *DrawResult
	_, err := s.update(ctx, roundID, func(r *Round) ([]Event, error) {
		h, ok := r.Hands[callerID]
		if !ok {
			return nil, notFound("player hand not found")
		}
		switch {
		case !r.Active:
			return nil, invalid("game is not active")
		case r.WinnerID != nil:
			return nil, invalid("game is already finished")
		case h.Busted || h.Total == BustedTotal:
			return nil, invalid("you have already busted")
		case h.Stood:
			return nil, invalid("you have already stood")
		case !r.IsTurnOf(callerID):
			return nil, invalid("it is not your turn")
		}

		id, ok := r.pop()
		if !ok {
			return nil, invalid("no more cards in the deck")
		}
		card, ok := s.catalog.Lookup(id)
		if !ok {
			return nil, notFound("card not found")
		}
		h.Cards = append(h.Cards, id)
		h.Total += card.Value
		name := s.name(ctx, callerID)

		if h.Total == BlackjackTotal && h.Count() == InitialCards {
			out := Declare(r, callerID)
			res = &DrawResult{Card: card, Total: h.Total, Count: h.Count(), IsWinner: true, Finished: true, WinnerID: out.WinnerID}
			s.logger.Info("natural blackjack on draw",
				zap.String("round_id", r.ID),
				zap.String("user_id", callerID))
			return []Event{s.finishedEvent(ctx, r, EventGameFinished, out, nil)}, nil
		}

		if h.Total > BlackjackTotal {
			h.Bust()
			out := AdvanceOrResolve(r)
			res = &DrawResult{
				Card: card, Total: BustedTotal, Count: h.Count(),
				Stood: true, Busted: true, Finished: out.Finished, WinnerID: out.WinnerID,
			}
			var current any
			if !out.Finished {
				current = r.CurrentPlayerID()
			}
			events := []Event{s.event(r, EventPlayerBusted, map[string]any{
				"playerId":        callerID,
				"playerName":      name,
				"message":         fmt.Sprintf("%s went over 21 and is out", name),
				"turnIndex":       r.TurnIndex,
				"currentPlayerId": current,
			})}
			s.logger.Info("player busted",
				zap.String("round_id", r.ID),
				zap.String("user_id", callerID),
				zap.Bool("round_finished", out.Finished))
			if out.Finished {
				events = append(events, s.finishedEvent(ctx, r, EventGameFinished, out, nil))
			}
			return events, nil
		}

		res = &DrawResult{Card: card, Total: h.Total, Count: h.Count(), Stood: h.Stood}
		return []Event{s.event(r, EventCardDrawn, map[string]any{
			"playerId":   callerID,
			"card":       card,
			"totalValue": h.Total,
			"count":      h.Count(),
			"isStand":    h.Stood,
		})}, nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// EndTurnResult is returned by EndTurn.
type EndTurnResult struct {
	AlreadyEnded    bool     `json:"alreadyEnded"`
	Stood           bool     `json:"isStand"`
	IsYourTurn      bool     `json:"isYourTurn"`
	TurnIndex       int      `json:"turnIndex"`
	CurrentPlayerID string   `json:"currentPlayerId,omitempty"`
	Finished        bool     `json:"finished"`
	WinnerID        *string  `json:"winner"`
	WinnerName      string   `json:"winnerName,omitempty"`
	Winners         []string `json:"winners,omitempty"`
}

// EndTurn stands the caller's hand and passes the turn. Ending an already ended turn
// succeeds without changing anything.
func (s *Service) EndTurn(ctx context.Context, roundID, callerID string) (*EndTurnResult, error) {
	var res *EndTurnResult
	_, err := s.update(ctx, roundID, func(r *Round) ([]Event, error) {
		if !r.Active {
			return nil, invalid("game is not active")
		}
		h, ok := r.Hands[callerID]
		if !ok {
			return nil, notFound("player hand not found")
		}
		if h.Stood || h.Total == BustedTotal {
			res = &EndTurnResult{
				AlreadyEnded:    true,
				Stood:           true,
				TurnIndex:       r.TurnIndex,
				CurrentPlayerID: r.CurrentPlayerID(),
				WinnerID:        r.WinnerID,
			}
			return nil, nil
		}
		if !r.IsTurnOf(callerID) {
			return nil, invalid("it is not your turn")
		}

		h.Stood = true
		out := AdvanceOrResolve(r)
		res = &EndTurnResult{
			Stood:     true,
			TurnIndex: r.TurnIndex,
			Finished:  out.Finished,
			WinnerID:  out.WinnerID,
			Winners:   out.Winners,
		}
		if out.Finished {
			if out.WinnerID != nil {
				res.WinnerName = s.name(ctx, *out.WinnerID)
			}
			s.logger.Info("round resolved after stand",
				zap.String("round_id", r.ID),
				zap.String("winner_id", r.Winner()))
			return []Event{s.finishedEvent(ctx, r, EventGameFinished, out, nil)}, nil
		}

		res.CurrentPlayerID = r.CurrentPlayerID()
		res.IsYourTurn = res.CurrentPlayerID == callerID
		return []Event{s.event(r, EventTurnChanged, map[string]any{
			"playerId":        callerID,
			"turnIndex":       r.TurnIndex,
			"currentPlayerId": res.CurrentPlayerID,
		})}, nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// CheckNaturalBlackjack lets a player claim a two-card 21 before anyone has drawn.
func (s *Service) CheckNaturalBlackjack(ctx context.Context, roundID, callerID string) (*Round, error) {
	return s.update(ctx, roundID, func(r *Round) ([]Event, error) {
		if !r.Active {
			return nil, invalid("game is not active")
		}
		if r.TurnIndex != 0 {
			return nil, invalid("blackjack can only be checked before any card is drawn")
		}
		for _, h := range r.PlayingHands() {
			if h.Count() != InitialCards {
				return nil, invalid("blackjack can only be checked before any card is drawn")
			}
		}
		h, ok := r.Hands[callerID]
		if !ok {
			return nil, notFound("player hand not found")
		}
		if h.Total != BlackjackTotal {
			return nil, invalid("you do not have a blackjack")
		}

		out := Declare(r, callerID)
		s.logger.Info("natural blackjack claimed",
			zap.String("round_id", r.ID),
			zap.String("user_id", callerID))
		return []Event{s.finishedEvent(ctx, r, EventGameFinished, out, nil)}, nil
	})
}

// RevealResult is returned by RequestReveal and AutoReveal.
type RevealResult struct {
	AllFinished bool        `json:"allFinished"`
	WinnerID    *string     `json:"winner"`
	WinnerName  string      `json:"winnerName,omitempty"`
	Winners     []string    `json:"winners,omitempty"`
	Totals      []HandTotal `json:"totals"`
	Round       *Round      `json:"-"`
}

// RequestReveal resolves the round immediately. The caller must hold exactly 21.
func (s *Service) RequestReveal(ctx context.Context, roundID, callerID string) (*RevealResult, error) {
	var res *RevealResult
	r, err := s.update(ctx, roundID, func(r *Round) ([]Event, error) {
		if !r.Active {
			return nil, invalid("game is not active")
		}
		h, ok := r.Hands[callerID]
		if !ok {
			return nil, notFound("player hand not found")
		}
		if h.Total != BlackjackTotal {
			return nil, invalid("you can only request a reveal with exactly 21")
		}

		out := Resolve(r)
		res = s.revealResult(ctx, r, out)
		return []Event{
			s.finishedEvent(ctx, r, EventGameRevealed, out, map[string]any{
				"requestedBy": callerID,
				"totals":      res.Totals,
			}),
			s.finishedEvent(ctx, r, EventGameFinished, out, nil),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	res.Round = r
	return res, nil
}

// AutoReveal resolves the round once every playing hand is done. Only the owner may call it.
func (s *Service) AutoReveal(ctx context.Context, roundID, callerID string) (*RevealResult, error) {
	var res *RevealResult
	r, err := s.update(ctx, roundID, func(r *Round) ([]Event, error) {
		if !r.IsOwner(callerID) {
			return nil, forbidden("only the game owner can trigger the automatic reveal")
		}
		if !r.Active {
			return nil, invalid("game is not active")
		}
		for _, h := range r.PlayingHands() {
			if !h.Stood && !h.Busted && h.Total < BlackjackTotal {
				res = &RevealResult{AllFinished: false, Totals: Totals(r)}
				return nil, nil
			}
		}

		out := Resolve(r)
		res = s.revealResult(ctx, r, out)
		res.AllFinished = true
		return []Event{
			s.finishedEvent(ctx, r, EventAutoReveal, out, map[string]any{
				"totals": res.Totals,
			}),
			s.finishedEvent(ctx, r, EventGameFinished, out, nil),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	res.Round = r
	return res, nil
}

// Restart reshuffles the deck and resets every playing hand, returning the round to pre-game.
// A finished round keeps its join code unless another open round took it meanwhile, in which
// case a fresh code is issued.
func (s *Service) Restart(ctx context.Context, roundID, callerID string) (*Round, error) {
	var lastErr error
	for attempt := 0; attempt < maxJoinCodeAttempts; attempt++ {
		reissue := attempt > 0
		r, err := s.restart(ctx, roundID, callerID, reissue)
		if !errors.Is(err, ErrJoinCodeTaken) {
			return r, err
		}
		s.logger.Debug("join code taken while restarting",
			zap.String("round_id", roundID))
		lastErr = err
	}
	return nil, lastErr
}

func (s *Service) restart(ctx context.Context, roundID, callerID string, reissue bool) (*Round, error) {
	return s.update(ctx, roundID, func(r *Round) ([]Event, error) {
		if !r.IsMember(callerID) {
			return nil, forbidden("you are not part of this game")
		}
		if r.Active && !r.Finished {
			return nil, invalid("game is not finished yet")
		}
		if !r.IsMember(r.OwnerID) {
			return nil, invalid("the game owner has left")
		}
		if len(r.MemberIDs) < minRestartMembers {
			return nil, invalid("not enough players to restart the game")
		}
		deck, err := cards.NewDeck(s.catalog, s.shuffler)
		if err != nil {
			return nil, invalid(err.Error())
		}
		if reissue && r.Finished {
			code, err := s.newCode()
			if err != nil {
				return nil, internal("failed to generate join code", err)
			}
			r.JoinCode = code
		}

		r.Deck = deck
		r.Active = false
		r.Finished = false
		r.WinnerID = nil
		r.TurnIndex = 0
		r.Hands = make(map[string]*Hand, len(r.MemberIDs))
		for _, id := range r.PlayingMembers() {
			r.Hands[id] = NewHand(id)
		}

		s.logger.Info("round restarted",
			zap.String("round_id", r.ID),
			zap.String("user_id", callerID),
			zap.String("join_code", r.JoinCode))
		return []Event{s.event(r, EventGameReset, map[string]any{
			"message":  "game reset, waiting for players to be ready",
			"joinCode": r.JoinCode,
		})}, nil
	})
}

// Leave removes the caller and ends the round for everyone.
func (s *Service) Leave(ctx context.Context, roundID, callerID string) (bool, error) {
	_, err := s.update(ctx, roundID, func(r *Round) ([]Event, error) {
		if !r.IsMember(callerID) {
			return nil, invalid("you are not in this game")
		}

		r.MemberIDs = lo.Without(r.MemberIDs, callerID)
		r.Active = false
		r.Finished = true
		r.Hands = make(map[string]*Hand)

		out := Outcome{Finished: true, WinnerID: r.WinnerID, TurnIndex: r.TurnIndex}
		if r.WinnerID != nil {
			out.Winners = []string{*r.WinnerID}
		}
		s.logger.Info("player left, round terminated",
			zap.String("round_id", r.ID),
			zap.String("user_id", callerID))
		return []Event{s.finishedEvent(ctx, r, EventGameFinished, out, map[string]any{
			"leftBy": callerID,
		})}, nil
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// Get returns the member-facing view of a round.
func (s *Service) Get(ctx context.Context, roundID, callerID string) (*View, error) {
	r, err := s.load(ctx, roundID)
	if err != nil {
		return nil, err
	}
	if !r.IsMember(callerID) {
		return nil, forbidden("you are not part of this game")
	}
	return s.project(ctx, r, callerID)
}

// MyHand returns the caller's hand with resolved cards.
func (s *Service) MyHand(ctx context.Context, roundID, callerID string) (*HandView, error) {
	r, err := s.load(ctx, roundID)
	if err != nil {
		return nil, err
	}
	h, ok := r.Hands[callerID]
	if !ok {
		return nil, notFound("player hand not found")
	}
	hv, err := s.handView(ctx, h)
	if err != nil {
		return nil, err
	}
	return &hv, nil
}

// DeckView lists the undealt cards, top of the deck last.
type DeckView struct {
	Cards []cards.Card `json:"cards"`
	Count int          `json:"count"`
}

// ViewDeck returns the remaining deck. Only the owner may see it.
func (s *Service) ViewDeck(ctx context.Context, roundID, callerID string) (*DeckView, error) {
	r, err := s.load(ctx, roundID)
	if err != nil {
		return nil, err
	}
	if !r.IsOwner(callerID) {
		return nil, forbidden("only the game owner can view the deck")
	}
	resolved, err := s.catalog.Resolve(r.Deck)
	if err != nil {
		return nil, internal("failed to resolve deck", err)
	}
	return &DeckView{Cards: resolved, Count: len(resolved)}, nil
}

// History returns the journaled events of a round in publication order.
func (s *Service) History(ctx context.Context, roundID, callerID string) ([]Event, error) {
	r, err := s.load(ctx, roundID)
	if err != nil {
		return nil, err
	}
	if !r.IsMember(callerID) {
		return nil, forbidden("you are not part of this game")
	}
	if s.journal == nil {
		return []Event{}, nil
	}
	return s.journal.Events(roundID), nil
}

// update loads the round under its lock, applies fn to a copy and persists the copy when fn
// returns events. Events are published only after a successful save.
func (s *Service) update(ctx context.Context, roundID string, fn func(r *Round) ([]Event, error)) (*Round, error) {
	unlock := s.locks.Lock(roundID)
	defer unlock()

	current, err := s.load(ctx, roundID)
	if err != nil {
		return nil, err
	}

	next := current.Clone()
	events, err := fn(next)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return current, nil
	}

	next.UpdatedAt = s.now()
	storeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	err = s.store.Save(storeCtx, next)
	cancel()
	if err != nil {
		s.logger.Warn("failed to save round",
			zap.String("round_id", roundID),
			zap.Error(err))
		return nil, classifyStoreErr("failed to save game", err)
	}

	room := RoomKey(roundID)
	for _, ev := range events {
		s.broadcaster.Publish(ctx, room, ev)
	}
	return next, nil
}

func (s *Service) load(ctx context.Context, roundID string) (*Round, error) {
	storeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	r, err := s.store.Get(storeCtx, roundID)
	if err != nil {
		return nil, classifyStoreErr("failed to load game", err)
	}
	return r, nil
}

func (s *Service) getByJoinCode(ctx context.Context, code string) (*Round, error) {
	storeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	r, err := s.store.GetByJoinCode(storeCtx, code)
	if err != nil {
		return nil, classifyStoreErr("failed to load game", err)
	}
	return r, nil
}

func (s *Service) name(ctx context.Context, userID string) string {
	return s.directory.DisplayName(ctx, userID)
}

func (s *Service) event(r *Round, typ EventType, payload map[string]any) Event {
	if payload == nil {
		payload = map[string]any{}
	}
	return Event{RoundID: r.ID, Type: typ, Payload: payload, OccurredAt: s.now()}
}

func (s *Service) finishedEvent(ctx context.Context, r *Round, typ EventType, out Outcome, extra map[string]any) Event {
	var winner, winnerName any
	if out.WinnerID != nil {
		winner = *out.WinnerID
		winnerName = s.name(ctx, *out.WinnerID)
	}
	winners := append([]string{}, out.Winners...)
	names := make([]string, len(winners))
	for i, id := range winners {
		names[i] = s.name(ctx, id)
	}

	payload := map[string]any{
		"winner":      winner,
		"winnerName":  winnerName,
		"winners":     winners,
		"winnerNames": names,
		"noWinner":    out.WinnerID == nil,
	}
	for k, v := range extra {
		payload[k] = v
	}
	return s.event(r, typ, payload)
}

func (s *Service) revealResult(ctx context.Context, r *Round, out Outcome) *RevealResult {
	res := &RevealResult{
		WinnerID: out.WinnerID,
		Winners:  out.Winners,
		Totals:   Totals(r),
	}
	if out.WinnerID != nil {
		res.WinnerName = s.name(ctx, *out.WinnerID)
	}
	return res
}
