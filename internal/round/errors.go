package round

import (
	"errors"
	"fmt"
)

// Kind classifies a Round API failure for clients.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindForbidden
	KindInvalidState
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NOT_FOUND"
	case KindForbidden:
		return "FORBIDDEN"
	case KindInvalidState:
		return "INVALID_STATE"
	case KindConflict:
		return "CONFLICT"
	default:
		return "INTERNAL"
	}
}

// Error is a typed, human-readable failure returned by the Round API.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Storage sentinels. Store implementations return these so the service can classify them.
var (
	ErrRoundNotFound   = errors.New("round not found")
	ErrVersionConflict = errors.New("round version conflict")
	ErrJoinCodeTaken   = errors.New("join code already in use")
)

func notFound(msg string) error {
	return &Error{Kind: KindNotFound, Message: msg}
}

func forbidden(msg string) error {
	return &Error{Kind: KindForbidden, Message: msg}
}

func invalid(msg string) error {
	return &Error{Kind: KindInvalidState, Message: msg}
}

func internal(msg string, err error) error {
	return &Error{Kind: KindInternal, Message: msg, Err: err}
}

// KindOf classifies any error returned by the service.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	switch {
	case errors.Is(err, ErrRoundNotFound):
		return KindNotFound
	case errors.Is(err, ErrVersionConflict), errors.Is(err, ErrJoinCodeTaken):
		return KindConflict
	}
	return KindInternal
}

// classifyStoreErr converts storage failures into API errors.
func classifyStoreErr(op string, err error) error {
	switch {
	case errors.Is(err, ErrRoundNotFound):
		return &Error{Kind: KindNotFound, Message: "game not found", Err: err}
	case errors.Is(err, ErrVersionConflict):
		return &Error{Kind: KindConflict, Message: "game was modified concurrently, retry", Err: err}
	case errors.Is(err, ErrJoinCodeTaken):
		return &Error{Kind: KindConflict, Message: "join code already in use", Err: err}
	default:
		return internal(op, err)
	}
}
