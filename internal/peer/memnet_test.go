package peer

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/danmuck/treenet/internal/protocol"
	"github.com/stretchr/testify/require"
)

var errLinkDown = errors.New("memnet: link down")

// wireRecord is one frame delivered by the in-memory network.
type wireRecord struct {
	From protocol.Address
	To   protocol.Address
	Body protocol.Body
}

// memNet is an in-memory stand-in for the TCP registry: flushes deliver
// frames straight into the receiver's inbound queue.
type memNet struct {
	mu    sync.Mutex
	nodes map[protocol.Address]*memConns
	down  map[protocol.Address]bool
	wire  []wireRecord
}

func newMemNet() *memNet {
	return &memNet{
		nodes: make(map[protocol.Address]*memConns),
		down:  make(map[protocol.Address]bool),
	}
}

func (n *memNet) attach(self protocol.Address) *memConns {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := &memConns{net: n, self: self, peers: make(map[protocol.Address]*memEntry)}
	n.nodes[self] = c
	return c
}

func (n *memNet) setDown(addr protocol.Address, down bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.down[addr] = down
}

func (n *memNet) records() []wireRecord {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]wireRecord(nil), n.wire...)
}

func (n *memNet) resetRecords() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.wire = nil
}

// inject places a raw frame in to's inbound queue as if it came off the wire.
func (n *memNet) inject(to protocol.Address, raw []byte) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nodes[to].inbound = append(n.nodes[to].inbound, raw)
}

type memEntry struct {
	control bool
	pending [][]byte
}

type memConns struct {
	net     *memNet
	self    protocol.Address
	peers   map[protocol.Address]*memEntry
	inbound [][]byte
}

func (c *memConns) AddPeer(addr protocol.Address, control bool) error {
	c.net.mu.Lock()
	defer c.net.mu.Unlock()
	if e, ok := c.peers[addr]; ok {
		if !control {
			e.control = false
		}
		return nil
	}
	c.peers[addr] = &memEntry{control: control}
	return nil
}

func (c *memConns) RemovePeer(addr protocol.Address) {
	c.net.mu.Lock()
	defer c.net.mu.Unlock()
	delete(c.peers, addr)
}

func (c *memConns) Enqueue(addr protocol.Address, raw []byte) error {
	c.net.mu.Lock()
	defer c.net.mu.Unlock()
	e, ok := c.peers[addr]
	if !ok {
		return fmt.Errorf("memnet: unknown peer %s", addr)
	}
	e.pending = append(e.pending, raw)
	return nil
}

func (c *memConns) Flush(addr protocol.Address) error {
	c.net.mu.Lock()
	defer c.net.mu.Unlock()
	return c.flushLocked(addr)
}

func (c *memConns) flushLocked(addr protocol.Address) error {
	e, ok := c.peers[addr]
	if !ok {
		return fmt.Errorf("memnet: unknown peer %s", addr)
	}
	if len(e.pending) == 0 {
		return nil
	}
	target, ok := c.net.nodes[addr]
	if !ok || c.net.down[addr] {
		delete(c.peers, addr)
		return fmt.Errorf("%w: %s", errLinkDown, addr)
	}
	for _, raw := range e.pending {
		target.inbound = append(target.inbound, raw)
		pkt, err := protocol.Decode(raw)
		if err != nil {
			continue
		}
		body, err := protocol.ParseBody(pkt)
		if err != nil {
			continue
		}
		c.net.wire = append(c.net.wire, wireRecord{From: pkt.Source, To: addr, Body: body})
	}
	e.pending = nil
	return nil
}

func (c *memConns) FlushAll() map[protocol.Address]error {
	c.net.mu.Lock()
	defer c.net.mu.Unlock()
	var failed map[protocol.Address]error
	for addr := range c.peers {
		if err := c.flushLocked(addr); err != nil {
			if failed == nil {
				failed = make(map[protocol.Address]error)
			}
			failed[addr] = err
		}
	}
	return failed
}

func (c *memConns) DrainInbound() [][]byte {
	c.net.mu.Lock()
	defer c.net.mu.Unlock()
	out := c.inbound
	c.inbound = nil
	return out
}

func (c *memConns) isControl(addr protocol.Address) (bool, bool) {
	c.net.mu.Lock()
	defer c.net.mu.Unlock()
	e, ok := c.peers[addr]
	if !ok {
		return false, false
	}
	return e.control, true
}

// cluster drives a set of peers over one memNet with a manual clock.
type cluster struct {
	t     *testing.T
	net   *memNet
	now   time.Time
	root  *Peer
	peers map[protocol.Address]*Peer
	conns map[protocol.Address]*memConns
	order []protocol.Address
}

func addrN(n int) protocol.Address {
	return protocol.MustParseHostPort(fmt.Sprintf("127.0.0.1:%d", 7000+n))
}

var rootAddr = addrN(0)

func newCluster(t *testing.T) *cluster {
	t.Helper()
	c := &cluster{
		t:     t,
		net:   newMemNet(),
		now:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		peers: make(map[protocol.Address]*Peer),
		conns: make(map[protocol.Address]*memConns),
	}
	c.root = c.add(rootAddr)
	return c
}

func (c *cluster) add(self protocol.Address) *Peer {
	c.t.Helper()
	conns := c.net.attach(self)
	mock := clock.NewMock()
	mock.Set(c.now)
	p, err := New(Config{Self: self, Root: rootAddr}, conns, WithClock(mock))
	require.NoError(c.t, err)
	c.peers[self] = p
	c.conns[self] = conns
	c.order = append(c.order, self)
	return p
}

// settle runs engine ticks on every live peer until nothing moves.
func (c *cluster) settle() {
	c.t.Helper()
	for round := 0; round < 32; round++ {
		before := len(c.net.records())
		for _, addr := range c.order {
			if c.isDown(addr) {
				continue
			}
			c.peers[addr].Tick(c.now)
		}
		if round > 0 && len(c.net.records()) == before && c.quiet() {
			return
		}
	}
	c.t.Fatalf("cluster did not settle")
}

func (c *cluster) quiet() bool {
	c.net.mu.Lock()
	defer c.net.mu.Unlock()
	for addr, conns := range c.net.nodes {
		if c.net.down[addr] {
			continue
		}
		if len(conns.inbound) > 0 {
			return false
		}
		for _, e := range conns.peers {
			if len(e.pending) > 0 {
				return false
			}
		}
	}
	return true
}

func (c *cluster) isDown(addr protocol.Address) bool {
	c.net.mu.Lock()
	defer c.net.mu.Unlock()
	return c.net.down[addr]
}

func (c *cluster) submit(addr protocol.Address, name, text string) {
	c.t.Helper()
	cmd, err := NewCommand(name, text)
	require.NoError(c.t, err)
	require.NoError(c.t, c.peers[addr].Submit(cmd))
}

// join registers and places a new peer, the way a user would from the console.
func (c *cluster) join(n int) *Peer {
	c.t.Helper()
	addr := addrN(n)
	p := c.add(addr)
	c.submit(addr, "register", "")
	c.settle()
	c.submit(addr, "advertise", "")
	c.settle()
	require.False(c.t, p.Status().Parent.IsZero(), "peer %s not placed", addr)
	return p
}

func (c *cluster) reunion(addr protocol.Address) {
	c.peers[addr].ReunionTick(c.now)
}

func (c *cluster) messagesFrom(from protocol.Address) []wireRecord {
	var out []wireRecord
	for _, r := range c.net.records() {
		if _, ok := r.Body.(protocol.Message); ok && r.From == from {
			out = append(out, r)
		}
	}
	return out
}

func (c *cluster) reunionFrames() []wireRecord {
	var out []wireRecord
	for _, r := range c.net.records() {
		if _, ok := r.Body.(protocol.Reunion); ok {
			out = append(out, r)
		}
	}
	return out
}
