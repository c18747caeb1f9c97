package topology

import (
	"fmt"
	"time"

	"github.com/danmuck/treenet/internal/protocol"
)

const (
	// MaxChildren is the fan-out bound of every node.
	MaxChildren = 2
	// DefaultMaxDepth bounds the tree height assumed by the heartbeat budget.
	DefaultMaxDepth = 8

	noParent = -1
)

type node struct {
	addr     protocol.Address
	parent   int
	children []int
	depth    int
	alive    bool
	lastSeen time.Time
}

// Graph is an arena-backed tree rooted at the root peer.
type Graph struct {
	nodes    []node
	index    map[protocol.Address]int
	maxDepth int
}

// NodeInfo is a read-only view of one arena slot.
type NodeInfo struct {
	Address  protocol.Address   `json:"address"`
	Parent   protocol.Address   `json:"parent"`
	Children []protocol.Address `json:"children"`
	Depth    int                `json:"depth"`
	Alive    bool               `json:"alive"`
	LastSeen time.Time          `json:"last_seen"`
}

// New creates a tree containing only the live root.
func New(root protocol.Address, maxDepth int, now time.Time) *Graph {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	g := &Graph{
		index:    make(map[protocol.Address]int),
		maxDepth: maxDepth,
	}
	g.nodes = append(g.nodes, node{addr: root, parent: noParent, alive: true, lastSeen: now})
	g.index[root] = 0
	return g
}

func (g *Graph) Root() protocol.Address { return g.nodes[0].addr }

func (g *Graph) MaxDepth() int { return g.maxDepth }

// Len is the number of arena slots, dead ones included.
func (g *Graph) Len() int { return len(g.nodes) }

// Contains reports whether addr has ever been attached.
func (g *Graph) Contains(addr protocol.Address) bool {
	_, ok := g.index[addr]
	return ok
}

// Alive reports whether addr's current node is live.
func (g *Graph) Alive(addr protocol.Address) bool {
	i, ok := g.index[addr]
	return ok && g.nodes[i].alive
}

func (g *Graph) Depth(addr protocol.Address) (int, error) {
	i, ok := g.index[addr]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownNode, addr)
	}
	return g.nodes[i].depth, nil
}

// Parent returns the parent address of addr's current node.
func (g *Graph) Parent(addr protocol.Address) (protocol.Address, bool) {
	i, ok := g.index[addr]
	if !ok || g.nodes[i].parent == noParent {
		return protocol.Address{}, false
	}
	return g.nodes[g.nodes[i].parent].addr, true
}

// FindAttachmentPoint runs a breadth-first search from the root and returns
// the first live node with a free child slot. Children are visited in
// insertion order and dead subtrees are never entered.
func (g *Graph) FindAttachmentPoint(requester protocol.Address) (protocol.Address, error) {
	if g.Alive(requester) {
		return protocol.Address{}, fmt.Errorf("%w: %s", ErrAlreadyAttached, requester)
	}
	queue := []int{0}
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		n := &g.nodes[i]
		if !n.alive {
			continue
		}
		if len(n.children) < MaxChildren {
			if n.depth+1 > g.maxDepth {
				return protocol.Address{}, fmt.Errorf("%w: candidate %s at depth %d", ErrDepthExceeded, n.addr, n.depth)
			}
			return n.addr, nil
		}
		queue = append(queue, n.children...)
	}
	return protocol.Address{}, ErrNoCapacity
}

// Attach places addr in parent's next free slot as a live node.
func (g *Graph) Attach(addr, parent protocol.Address, now time.Time) error {
	if g.Alive(addr) {
		return fmt.Errorf("%w: %s", ErrAlreadyAttached, addr)
	}
	pi, ok := g.index[parent]
	if !ok || !g.nodes[pi].alive {
		return fmt.Errorf("%w: %s", ErrParentMissing, parent)
	}
	if len(g.nodes[pi].children) >= MaxChildren {
		return fmt.Errorf("%w: %s", ErrParentFull, parent)
	}
	depth := g.nodes[pi].depth + 1
	if depth > g.maxDepth {
		return fmt.Errorf("%w: %s under %s", ErrDepthExceeded, addr, parent)
	}

	i := len(g.nodes)
	g.nodes = append(g.nodes, node{
		addr:     addr,
		parent:   pi,
		depth:    depth,
		alive:    true,
		lastSeen: now,
	})
	g.nodes[pi].children = append(g.nodes[pi].children, i)
	g.index[addr] = i
	return nil
}

// MarkAlive confirms addr's current node is live. Dead nodes are never revived.
func (g *Graph) MarkAlive(addr protocol.Address) error {
	i, ok := g.index[addr]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, addr)
	}
	if !g.nodes[i].alive {
		return fmt.Errorf("%w: %s", ErrNodeDead, addr)
	}
	return nil
}

func (g *Graph) RecordHeartbeat(addr protocol.Address, now time.Time) error {
	i, ok := g.index[addr]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, addr)
	}
	if !g.nodes[i].alive {
		return fmt.Errorf("%w: %s", ErrNodeDead, addr)
	}
	g.nodes[i].lastSeen = now
	return nil
}

// LastSeen returns the last recorded heartbeat of addr's current node.
func (g *Graph) LastSeen(addr protocol.Address) (time.Time, bool) {
	i, ok := g.index[addr]
	if !ok {
		return time.Time{}, false
	}
	return g.nodes[i].lastSeen, true
}

// PruneUnreachable marks addr and its whole subtree dead and returns the
// addresses that were live before the call.
func (g *Graph) PruneUnreachable(addr protocol.Address) ([]protocol.Address, error) {
	i, ok := g.index[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNode, addr)
	}
	if i == 0 {
		return nil, ErrPruneRoot
	}
	var pruned []protocol.Address
	stack := []int{i}
	for len(stack) > 0 {
		j := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if g.nodes[j].alive {
			g.nodes[j].alive = false
			pruned = append(pruned, g.nodes[j].addr)
		}
		stack = append(stack, g.nodes[j].children...)
	}
	return pruned, nil
}

// Expired lists live non-root nodes whose last heartbeat is older than maxWait.
func (g *Graph) Expired(now time.Time, maxWait time.Duration) []protocol.Address {
	var out []protocol.Address
	for i := 1; i < len(g.nodes); i++ {
		n := &g.nodes[i]
		if n.alive && now.Sub(n.lastSeen) > maxWait {
			out = append(out, n.addr)
		}
	}
	return out
}

// Counts returns the number of live and dead slots.
func (g *Graph) Counts() (alive, dead int) {
	for i := range g.nodes {
		if g.nodes[i].alive {
			alive++
		} else {
			dead++
		}
	}
	return alive, dead
}

// Snapshot copies every arena slot in insertion order.
func (g *Graph) Snapshot() []NodeInfo {
	out := make([]NodeInfo, 0, len(g.nodes))
	for i := range g.nodes {
		n := &g.nodes[i]
		info := NodeInfo{
			Address:  n.addr,
			Depth:    n.depth,
			Alive:    n.alive,
			LastSeen: n.lastSeen,
			Children: make([]protocol.Address, 0, len(n.children)),
		}
		if n.parent != noParent {
			info.Parent = g.nodes[n.parent].addr
		}
		for _, c := range n.children {
			info.Children = append(info.Children, g.nodes[c].addr)
		}
		out = append(out, info)
	}
	return out
}
