package bridge

import "errors"

var (
	ErrReviewIDRequired   = errors.New("review id is required")
	ErrRoomIDRequired     = errors.New("room id is required")
	ErrAppIDRequired      = errors.New("app id is required")
	ErrEventIDRequired    = errors.New("event id is required")
	ErrIdentityKeyInvalid = errors.New("identity key is not bridge-owned")

	// ErrDuplicateMapping signals transport-level re-delivery: the same chat
	// event was recorded twice. Callers must handle it, not swallow it.
	ErrDuplicateMapping = errors.New("message mapping already exists for event")

	// ErrInvalidOperation covers malformed input and lifecycle violations
	// such as appending to a thread that does not exist.
	ErrInvalidOperation = errors.New("invalid operation")

	ErrThreadExists      = errors.New("thread already exists for review")
	ErrInvalidKind       = errors.New("invalid message kind")
	ErrInvalidRoomType   = errors.New("invalid room type")
	ErrInvalidTransition = errors.New("invalid thread status transition")
)
