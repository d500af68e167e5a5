package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cardtable/blackjack-server/internal/auth"
	"github.com/cardtable/blackjack-server/internal/round"
	"go.uber.org/zap"
)

type envelope struct {
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (s *HTTPServer) respond(w http.ResponseWriter, status int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(envelope{Message: message, Data: data}); err != nil {
		s.logger.Debug("failed to write response", zap.Error(err))
	}
}

func (s *HTTPServer) ok(w http.ResponseWriter, message string, data any) {
	s.respond(w, http.StatusOK, message, data)
}

// fail maps err to a status code. Internal causes are logged and hidden from clients.
func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, message := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	s.respond(w, status, message, nil)
}

func statusOf(err error) (int, string) {
	var verr *auth.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, verr.Message
	case errors.Is(err, auth.ErrNameTaken):
		return http.StatusConflict, err.Error()
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized, auth.ErrInvalidCredentials.Error()
	}

	var rerr *round.Error
	if !errors.As(err, &rerr) {
		return http.StatusInternalServerError, "internal server error"
	}
	switch rerr.Kind {
	case round.KindNotFound:
		return http.StatusNotFound, rerr.Message
	case round.KindForbidden:
		return http.StatusForbidden, rerr.Message
	case round.KindInvalidState:
		return http.StatusBadRequest, rerr.Message
	case round.KindConflict:
		return http.StatusConflict, rerr.Message
	default:
		return http.StatusInternalServerError, rerr.Message
	}
}
