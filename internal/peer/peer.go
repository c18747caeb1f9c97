package peer

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/danmuck/treenet/internal/observability"
	"github.com/danmuck/treenet/internal/protocol"
	"github.com/danmuck/treenet/internal/topology"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Connections is the connection registry contract the engine needs:
// ordered delivery of encoded frames to an address, with read results as
// discrete frames and per-peer delivery failures reported by flush.
type Connections interface {
	AddPeer(addr protocol.Address, control bool) error
	RemovePeer(addr protocol.Address)
	Enqueue(addr protocol.Address, raw []byte) error
	Flush(addr protocol.Address) error
	FlushAll() map[protocol.Address]error
	DrainInbound() [][]byte
}

// Delivery is one MESSAGE accepted from a neighbor.
type Delivery struct {
	From protocol.Address `json:"from"`
	Text string           `json:"text"`
	At   time.Time        `json:"at"`
}

// MessageHandler receives delivered messages outside the peer lock.
type MessageHandler func(Delivery)

type Option func(*Peer)

func WithMessageHandler(fn MessageHandler) Option {
	return func(p *Peer) { p.onMessage = fn }
}

// WithClock replaces the wall clock driving the Run loops.
func WithClock(c clock.Clock) Option {
	return func(p *Peer) { p.clock = c }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(p *Peer) { p.log = logger }
}

func WithRunID(id string) Option {
	return func(p *Peer) { p.runID = id }
}

// state is the mutable PeerState. Every field is guarded by Peer.mu.
type state struct {
	parent           protocol.Address
	children         map[protocol.Address]struct{}
	registeredPeers  map[protocol.Address]struct{}
	heartbeatPending bool
	lastHeartbeatAt  time.Time
	reunionActive    bool
	registered       bool
}

// Peer runs the protocol engine for one overlay member.
type Peer struct {
	cfg    Config
	conns  Connections
	log    zerolog.Logger
	runID  string
	node   string
	isRoot bool
	clock  clock.Clock

	mu         sync.Mutex
	st         state
	graph      *topology.Graph
	inbox      []Delivery
	delivered  uint64
	deliveries []Delivery

	cmdMu    sync.Mutex
	commands []Command

	quit     chan struct{}
	quitOnce sync.Once

	onMessage MessageHandler
}

func New(cfg Config, conns Connections, opts ...Option) (*Peer, error) {
	if cfg.Self.IsZero() {
		return nil, ErrSelfRequired
	}
	if cfg.Root.IsZero() {
		return nil, ErrRootRequired
	}
	if conns == nil {
		return nil, ErrConnsRequired
	}
	cfg = cfg.WithDefaults()
	p := &Peer{
		cfg:    cfg,
		conns:  conns,
		node:   cfg.Self.String(),
		isRoot: cfg.IsRoot(),
		clock:  clock.New(),
		runID:  uuid.NewString(),
		st: state{
			children:        make(map[protocol.Address]struct{}),
			registeredPeers: make(map[protocol.Address]struct{}),
		},
		quit: make(chan struct{}),
	}
	p.log = observability.Component("peer", p.node)
	for _, opt := range opts {
		opt(p)
	}
	if p.isRoot {
		p.graph = topology.New(cfg.Self, cfg.MaxDepth, p.clock.Now())
	}
	p.log.Info().
		Bool("root", p.isRoot).
		Str("root_addr", cfg.Root.String()).
		Dur("max_wait", cfg.MaxWait).
		Str("run", p.runID).
		Msg("peer created")
	return p, nil
}

func (p *Peer) Config() Config { return p.cfg }

func (p *Peer) IsRoot() bool { return p.isRoot }

func (p *Peer) RunID() string { return p.runID }

// Done is closed once a quit command has been executed.
func (p *Peer) Done() <-chan struct{} { return p.quit }

// Run drives the engine and reunion loops until ctx ends or quit runs.
func (p *Peer) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.every(ctx, p.cfg.EngineTick, p.Tick)
	})
	g.Go(func() error {
		return p.every(ctx, p.cfg.DaemonTick, p.ReunionTick)
	})
	g.Go(func() error {
		select {
		case <-ctx.Done():
			return nil
		case <-p.quit:
			return ErrQuit
		}
	})
	err := g.Wait()
	if errors.Is(err, ErrQuit) {
		p.log.Info().Msg("quit")
		return nil
	}
	return err
}

func (p *Peer) every(ctx context.Context, interval time.Duration, fn func(time.Time)) error {
	ticker := p.clock.Ticker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			fn(p.clock.Now())
		}
	}
}

// Status is a point-in-time snapshot of PeerState.
type Status struct {
	RunID               string             `json:"run_id"`
	Role                string             `json:"role"`
	Self                protocol.Address   `json:"self"`
	Root                protocol.Address   `json:"root"`
	Parent              protocol.Address   `json:"parent"`
	Children            []protocol.Address `json:"children"`
	RegisteredPeers     []protocol.Address `json:"registered_peers,omitempty"`
	Registered          bool               `json:"registered"`
	HeartbeatPending    bool               `json:"heartbeat_pending"`
	LastHeartbeatSentAt time.Time          `json:"last_heartbeat_sent_at"`
	ReunionActive       bool               `json:"reunion_active"`
	Delivered           uint64             `json:"delivered"`
	Inbox               []Delivery         `json:"inbox"`
}

func (p *Peer) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := Status{
		RunID:               p.runID,
		Role:                "peer",
		Self:                p.cfg.Self,
		Root:                p.cfg.Root,
		Parent:              p.st.parent,
		Children:            sortedAddrs(p.st.children),
		Registered:          p.st.registered,
		HeartbeatPending:    p.st.heartbeatPending,
		LastHeartbeatSentAt: p.st.lastHeartbeatAt,
		ReunionActive:       p.st.reunionActive,
		Delivered:           p.delivered,
		Inbox:               append([]Delivery(nil), p.inbox...),
	}
	if p.isRoot {
		s.Role = "root"
		s.RegisteredPeers = sortedAddrs(p.st.registeredPeers)
	}
	return s
}

// Topology snapshots the root's tree.
func (p *Peer) Topology() ([]topology.NodeInfo, error) {
	if !p.isRoot {
		return nil, ErrNotRoot
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.graph.Snapshot(), nil
}

func (p *Peer) deliverLocked(from protocol.Address, text string, now time.Time) {
	d := Delivery{From: from, Text: text, At: now}
	p.delivered++
	p.inbox = append(p.inbox, d)
	if over := len(p.inbox) - p.cfg.InboxSize; over > 0 {
		p.inbox = append(p.inbox[:0], p.inbox[over:]...)
	}
	p.deliveries = append(p.deliveries, d)
}

// notify hands pending deliveries to the message handler. Caller must not
// hold p.mu.
func (p *Peer) notify() {
	p.mu.Lock()
	pending := p.deliveries
	p.deliveries = nil
	p.mu.Unlock()
	if p.onMessage == nil {
		return
	}
	for _, d := range pending {
		p.onMessage(d)
	}
}

func (p *Peer) updateGaugesLocked() {
	observability.SetNeighborGauge(p.node, "children", len(p.st.children))
	if p.isRoot {
		observability.SetNeighborGauge(p.node, "registered", len(p.st.registeredPeers))
		alive, dead := p.graph.Counts()
		observability.SetNeighborGauge(p.node, "tree_alive", alive)
		observability.SetNeighborGauge(p.node, "tree_dead", dead)
	}
}

func sortedAddrs(set map[protocol.Address]struct{}) []protocol.Address {
	out := make([]protocol.Address, 0, len(set))
	for a := range set {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].String() < out[j].String()
	})
	return out
}
