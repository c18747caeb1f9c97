package topology

import "errors"

var (
	ErrAlreadyAttached = errors.New("topology: address already live in tree")
	ErrParentMissing   = errors.New("topology: parent absent or dead")
	ErrParentFull      = errors.New("topology: parent has no free child slot")
	ErrDepthExceeded   = errors.New("topology: attachment would exceed max depth")
	ErrNoCapacity      = errors.New("topology: no live node has a free child slot")
	ErrUnknownNode     = errors.New("topology: unknown node")
	ErrNodeDead        = errors.New("topology: node is dead")
	ErrPruneRoot       = errors.New("topology: root cannot be pruned")
)
