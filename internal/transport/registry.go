package transport

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/danmuck/treenet/internal/observability"
	"github.com/danmuck/treenet/internal/protocol"
	"github.com/danmuck/treenet/internal/protocol/frame"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"
)

var (
	ErrUnknownPeer = errors.New("transport: unknown peer")
	ErrClosed      = errors.New("transport: registry closed")
	ErrDialFailed  = errors.New("transport: dial failed")
	ErrDelivery    = errors.New("transport: delivery failed")
)

// PeerInfo is a snapshot of one outbound entry.
type PeerInfo struct {
	Address   protocol.Address `json:"address"`
	Control   bool             `json:"control"`
	Connected bool             `json:"connected"`
	Pending   int              `json:"pending"`
}

type entry struct {
	addr    protocol.Address
	control bool
	cancel  context.CancelFunc

	// guarded by Registry.mu
	conn    net.Conn
	dialErr error
	pending [][]byte

	// serializes flushes so frames leave in enqueue order
	writeMu sync.Mutex
}

// Registry maps neighbor addresses to outbound connections and buffers, and
// collects frames arriving on inbound connections.
type Registry struct {
	cfg Config
	log zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	peers  map[protocol.Address]*entry
	rng    *rand.Rand
	ln     net.Listener
	closed bool

	inMu    sync.Mutex
	inbound [][]byte
	inConns map[net.Conn]struct{}
}

func New(cfg Config) *Registry {
	cfg = cfg.WithDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		cfg:     cfg,
		log:     observability.Component("transport", cfg.Node),
		ctx:     ctx,
		cancel:  cancel,
		peers:   make(map[protocol.Address]*entry),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		inConns: make(map[net.Conn]struct{}),
	}
}

// AddPeer registers an outbound entry for addr and starts dialing it.
// A control entry added again as a tree link is upgraded in place.
func (r *Registry) AddPeer(addr protocol.Address, control bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if e, ok := r.peers[addr]; ok {
		if e.control && !control {
			e.control = false
			r.log.Debug().Str("peer", addr.String()).Msg("control channel upgraded to tree link")
		}
		return nil
	}
	ctx, cancel := context.WithCancel(r.ctx)
	e := &entry{addr: addr, control: control, cancel: cancel}
	r.peers[addr] = e
	r.wg.Add(1)
	go r.dial(ctx, e)
	return nil
}

// RemovePeer closes addr's connection and discards its buffer. Removing an
// absent peer is a no-op.
func (r *Registry) RemovePeer(addr protocol.Address) {
	r.mu.Lock()
	e, ok := r.peers[addr]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.peers, addr)
	conn := e.conn
	e.conn = nil
	e.pending = nil
	r.mu.Unlock()

	e.cancel()
	if conn != nil {
		_ = closeQuietly(conn)
	}
	r.log.Debug().Str("peer", addr.String()).Msg("peer removed")
}

// Enqueue buffers one encoded frame for addr.
func (r *Registry) Enqueue(addr protocol.Address, raw []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.peers[addr]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPeer, addr)
	}
	buf := make([]byte, len(raw))
	copy(buf, raw)
	e.pending = append(e.pending, buf)
	return nil
}

// Flush writes addr's buffered frames. Frames stay buffered while the dial
// is still in progress. A failed dial or write removes the entry and is
// returned.
func (r *Registry) Flush(addr protocol.Address) error {
	r.mu.Lock()
	e, ok := r.peers[addr]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPeer, addr)
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	r.mu.Lock()
	if r.peers[addr] != e {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownPeer, addr)
	}
	if e.dialErr != nil {
		err := e.dialErr
		delete(r.peers, addr)
		r.mu.Unlock()
		e.cancel()
		observability.RecordDeliveryFailure(r.cfg.Node)
		return err
	}
	if e.conn == nil || len(e.pending) == 0 {
		r.mu.Unlock()
		return nil
	}
	conn := e.conn
	frames := e.pending
	e.pending = nil
	r.mu.Unlock()

	if err := r.write(conn, frames); err != nil {
		r.mu.Lock()
		if r.peers[addr] == e {
			delete(r.peers, addr)
		}
		r.mu.Unlock()
		e.cancel()
		_ = closeQuietly(conn)
		observability.RecordDeliveryFailure(r.cfg.Node)
		return fmt.Errorf("%w: %s: %v", ErrDelivery, addr, err)
	}
	return nil
}

// FlushAll flushes every entry and reports the ones that failed.
func (r *Registry) FlushAll() map[protocol.Address]error {
	r.mu.Lock()
	addrs := make([]protocol.Address, 0, len(r.peers))
	for addr := range r.peers {
		addrs = append(addrs, addr)
	}
	r.mu.Unlock()

	var failed map[protocol.Address]error
	for _, addr := range addrs {
		err := r.Flush(addr)
		if err == nil || errors.Is(err, ErrUnknownPeer) {
			continue
		}
		if failed == nil {
			failed = make(map[protocol.Address]error)
		}
		failed[addr] = err
	}
	return failed
}

// IsControl reports whether addr is a registration-only channel.
func (r *Registry) IsControl(addr protocol.Address) (control, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.peers[addr]
	if !ok {
		return false, false
	}
	return e.control, true
}

// Peers lists outbound entries ordered by address.
func (r *Registry) Peers() []PeerInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]PeerInfo, 0, len(r.peers))
	for addr, e := range r.peers {
		out = append(out, PeerInfo{
			Address:   addr,
			Control:   e.control,
			Connected: e.conn != nil,
			Pending:   len(e.pending),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Address.String() < out[j].Address.String()
	})
	return out
}

// Close stops the listener, every dial and every connection.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	var conns []net.Conn
	for _, e := range r.peers {
		if e.conn != nil {
			conns = append(conns, e.conn)
		}
	}
	r.peers = make(map[protocol.Address]*entry)
	ln := r.ln
	r.mu.Unlock()

	r.cancel()
	var err error
	if ln != nil {
		err = multierr.Append(err, closeQuietly(ln))
	}
	for _, c := range conns {
		err = multierr.Append(err, closeQuietly(c))
	}
	r.inMu.Lock()
	for c := range r.inConns {
		err = multierr.Append(err, closeQuietly(c))
	}
	r.inMu.Unlock()

	r.wg.Wait()
	return err
}

func (r *Registry) dial(ctx context.Context, e *entry) {
	defer r.wg.Done()
	dialer := net.Dialer{Timeout: r.cfg.DialTimeout}
	var lastErr error
	attempt := 0
	for attempt < r.cfg.MaxConnectAttempts {
		attempt++
		conn, err := dialer.DialContext(ctx, "tcp", e.addr.HostPort())
		observability.RecordDialAttempt(r.cfg.Node, err == nil)
		if err == nil {
			r.mu.Lock()
			if r.peers[e.addr] != e {
				r.mu.Unlock()
				_ = conn.Close()
				return
			}
			e.conn = conn
			r.mu.Unlock()
			r.log.Debug().Str("peer", e.addr.String()).Int("attempt", attempt).Msg("connected")
			return
		}
		lastErr = err
		if ctx.Err() != nil {
			return
		}
		r.log.Debug().Str("peer", e.addr.String()).Int("attempt", attempt).Err(err).Msg("dial failed")
		if attempt >= r.cfg.MaxConnectAttempts {
			break
		}
		if err := sleepContext(ctx, r.backoffDelay(attempt)); err != nil {
			return
		}
	}

	r.mu.Lock()
	if r.peers[e.addr] == e {
		e.dialErr = fmt.Errorf("%w: %s after %d attempts: %v", ErrDialFailed, e.addr, attempt, lastErr)
	}
	r.mu.Unlock()
	r.log.Warn().Str("peer", e.addr.String()).Int("attempts", attempt).Err(lastErr).Msg("giving up on peer")
}

func (r *Registry) backoffDelay(attempt int) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg.Backoff.redialDelay(attempt, r.cfg.FlushInterval, r.rng)
}

func (r *Registry) write(conn net.Conn, frames [][]byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(r.cfg.WriteTimeout)); err != nil {
		return err
	}
	for _, raw := range frames {
		if err := frame.WriteRaw(conn, raw, r.cfg.Limits); err != nil {
			return err
		}
	}
	return nil
}

type closer interface {
	Close() error
}

func closeQuietly(c closer) error {
	if err := c.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}
