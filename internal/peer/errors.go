package peer

import "errors"

var (
	ErrSelfRequired     = errors.New("peer: self address required")
	ErrRootRequired     = errors.New("peer: root address required")
	ErrConnsRequired    = errors.New("peer: connection registry required")
	ErrUnknownCommand   = errors.New("peer: unknown command")
	ErrEmptyMessage     = errors.New("peer: message text required")
	ErrCommandQueueFull = errors.New("peer: command queue full")
	ErrQuit             = errors.New("peer: quit requested")
	ErrNotRoot          = errors.New("peer: topology is only kept by the root")
)
