package relay

import "errors"

var (
	ErrBanned          = errors.New("banned")
	ErrRoomLocked      = errors.New("room locked")
	ErrRoomNotFound    = errors.New("room not found")
	ErrRoomRequired    = errors.New("room required")
	ErrUnknownToken    = errors.New("unknown token")
	ErrTargetRequired  = errors.New("ip or token required")
	ErrInvalidDuration = errors.New("duration out of range")
	ErrEmptyMessage    = errors.New("no message provided")
	ErrMessageTooLong  = errors.New("message too long")
)
