package chat

import "errors"

// Kind classifies a failed chat request.
type Kind int

const (
	KindNone Kind = iota
	KindBadRequest
	KindNotFound
	KindPersistence
	KindGeneration
	// KindInternal is a broken request flow rather than a failing dependency.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindNotFound:
		return "not_found"
	case KindPersistence:
		return "persistence"
	case KindGeneration:
		return "generation"
	case KindInternal:
		return "internal"
	default:
		return "ok"
	}
}

var (
	ErrMissingBotID = errors.New("botId is required")
	ErrBotNotFound  = errors.New("Bot not found")
)

// Error is a chat failure tagged with its Kind.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind carried by err, KindNone for nil and KindPersistence
// for untagged errors.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindPersistence
}
