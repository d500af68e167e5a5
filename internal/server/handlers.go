package server

import (
	"encoding/json"
	"net/http"

	"github.com/cardtable/blackjack-server/internal/auth"
	"github.com/cardtable/blackjack-server/internal/round"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type credentials struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

type session struct {
	Token string        `json:"token"`
	User  auth.Identity `json:"user"`
}

func (s *HTTPServer) decodeCredentials(w http.ResponseWriter, r *http.Request) (credentials, bool) {
	var req credentials
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		s.respond(w, http.StatusBadRequest, "invalid request body", nil)
		return credentials{}, false
	}
	return req, true
}

func (s *HTTPServer) issue(w http.ResponseWriter, r *http.Request, status int, message string, id auth.Identity) {
	token, err := s.tokens.Issue(id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, status, message, session{Token: token, User: id})
}

func (s *HTTPServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeCredentials(w, r)
	if !ok {
		return
	}
	id, err := s.accounts.Register(req.Name, req.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.logger.Info("account registered",
		zap.String("user_id", id.UserID),
		zap.String("name", id.Name))
	s.issue(w, r, http.StatusCreated, "account created", id)
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeCredentials(w, r)
	if !ok {
		return
	}
	id, err := s.accounts.Login(req.Name, req.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.issue(w, r, http.StatusOK, "logged in", id)
}

func (s *HTTPServer) handleMe(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	s.ok(w, "current user", id)
}

// caller returns the round id path variable and the authenticated user id.
func caller(r *http.Request) (string, string) {
	id, _ := IdentityFrom(r.Context())
	return mux.Vars(r)["id"], id.UserID
}

func (s *HTTPServer) view(w http.ResponseWriter, r *http.Request, status int, message string, rd *round.Round, userID string) {
	v, err := s.svc.ViewOf(r.Context(), rd, userID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, status, message, v)
}

func (s *HTTPServer) handleCreate(w http.ResponseWriter, r *http.Request) {
	_, userID := caller(r)
	rd, err := s.svc.Create(r.Context(), userID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.view(w, r, http.StatusCreated, "game created", rd, userID)
}

func (s *HTTPServer) handleJoin(w http.ResponseWriter, r *http.Request) {
	_, userID := caller(r)
	rd, err := s.svc.Join(r.Context(), mux.Vars(r)["code"], userID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.view(w, r, http.StatusOK, "joined game", rd, userID)
}

func (s *HTTPServer) handleGet(w http.ResponseWriter, r *http.Request) {
	roundID, userID := caller(r)
	v, err := s.svc.Get(r.Context(), roundID, userID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, "game", v)
}

func (s *HTTPServer) handleDeck(w http.ResponseWriter, r *http.Request) {
	roundID, userID := caller(r)
	deck, err := s.svc.ViewDeck(r.Context(), roundID, userID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, "deck", deck)
}

func (s *HTTPServer) handleHand(w http.ResponseWriter, r *http.Request) {
	roundID, userID := caller(r)
	hand, err := s.svc.MyHand(r.Context(), roundID, userID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, "hand", hand)
}

func (s *HTTPServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	roundID, userID := caller(r)
	events, err := s.svc.History(r.Context(), roundID, userID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if events == nil {
		events = []round.Event{}
	}
	s.ok(w, "history", events)
}

func (s *HTTPServer) handleStart(w http.ResponseWriter, r *http.Request) {
	roundID, userID := caller(r)
	rd, err := s.svc.Start(r.Context(), roundID, userID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.view(w, r, http.StatusOK, "game started", rd, userID)
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	roundID, userID := caller(r)
	hand, err := s.svc.Ready(r.Context(), roundID, userID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, "player is ready", hand)
}

func (s *HTTPServer) handleDraw(w http.ResponseWriter, r *http.Request) {
	roundID, userID := caller(r)
	res, err := s.svc.Draw(r.Context(), roundID, userID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	message := "card drawn"
	switch {
	case res.IsWinner:
		message = "blackjack, you win"
	case res.Busted:
		message = "busted"
	}
	s.ok(w, message, res)
}

func (s *HTTPServer) handleStand(w http.ResponseWriter, r *http.Request) {
	roundID, userID := caller(r)
	res, err := s.svc.EndTurn(r.Context(), roundID, userID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	message := "turn ended"
	if res.AlreadyEnded {
		message = "turn already ended"
	}
	s.ok(w, message, res)
}

func (s *HTTPServer) handleBlackjack(w http.ResponseWriter, r *http.Request) {
	roundID, userID := caller(r)
	rd, err := s.svc.CheckNaturalBlackjack(r.Context(), roundID, userID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.view(w, r, http.StatusOK, "blackjack, you win", rd, userID)
}

func (s *HTTPServer) handleReveal(w http.ResponseWriter, r *http.Request) {
	roundID, userID := caller(r)
	res, err := s.svc.RequestReveal(r.Context(), roundID, userID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, "game revealed", res)
}

func (s *HTTPServer) handleAutoReveal(w http.ResponseWriter, r *http.Request) {
	roundID, userID := caller(r)
	res, err := s.svc.AutoReveal(r.Context(), roundID, userID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	message := "game revealed"
	if !res.AllFinished {
		message = "players are still playing"
	}
	s.ok(w, message, res)
}

func (s *HTTPServer) handleRestart(w http.ResponseWriter, r *http.Request) {
	roundID, userID := caller(r)
	rd, err := s.svc.Restart(r.Context(), roundID, userID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.view(w, r, http.StatusOK, "game restarted", rd, userID)
}

func (s *HTTPServer) handleLeave(w http.ResponseWriter, r *http.Request) {
	roundID, userID := caller(r)
	left, err := s.svc.Leave(r.Context(), roundID, userID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, "left game", map[string]bool{"left": left})
}
