package transport

import (
	"bufio"
	"errors"
	"io"
	"net"

	"github.com/danmuck/treenet/internal/observability"
	"github.com/danmuck/treenet/internal/protocol/frame"
)

// Listen binds cfg.ListenAddr and starts accepting neighbor connections.
func (r *Registry) Listen() error {
	ln, err := net.Listen("tcp", r.cfg.ListenAddr)
	if err != nil {
		return err
	}
	return r.Serve(ln)
}

// Serve accepts connections on an existing listener in the background.
// The registry owns ln from here on.
func (r *Registry) Serve(ln net.Listener) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		_ = ln.Close()
		return ErrClosed
	}
	r.ln = ln
	r.wg.Add(1)
	r.mu.Unlock()

	r.log.Info().Str("addr", ln.Addr().String()).Msg("listening")
	go r.acceptLoop(ln)
	return nil
}

// Addr is the bound listener address, or nil before Listen.
func (r *Registry) Addr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ln == nil {
		return nil
	}
	return r.ln.Addr()
}

// DrainInbound returns and clears the frames received since the last drain.
func (r *Registry) DrainInbound() [][]byte {
	r.inMu.Lock()
	defer r.inMu.Unlock()
	out := r.inbound
	r.inbound = nil
	return out
}

func (r *Registry) acceptLoop(ln net.Listener) {
	defer r.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if r.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			r.log.Warn().Err(err).Msg("accept failed")
			return
		}
		if !r.trackConn(conn) {
			_ = conn.Close()
			continue
		}
		r.log.Debug().Str("remote", conn.RemoteAddr().String()).Msg("inbound connection")
		go r.readLoop(conn)
	}
}

func (r *Registry) readLoop(conn net.Conn) {
	defer r.wg.Done()
	defer r.untrackConn(conn)
	reader := bufio.NewReader(conn)
	for {
		raw, err := frame.ReadRaw(reader, r.cfg.Limits)
		if err != nil {
			if !errors.Is(err, io.EOF) && r.ctx.Err() == nil {
				r.log.Debug().Str("remote", conn.RemoteAddr().String()).Err(err).Msg("inbound read closed")
			}
			return
		}
		r.pushInbound(raw)
	}
}

func (r *Registry) pushInbound(raw []byte) {
	r.inMu.Lock()
	defer r.inMu.Unlock()
	if len(r.inbound) >= r.cfg.InboundCapacity {
		observability.RecordPacketDropped(r.cfg.Node, "inbound_full")
		r.log.Warn().Int("capacity", r.cfg.InboundCapacity).Msg("inbound queue full, frame dropped")
		return
	}
	r.inbound = append(r.inbound, raw)
}

// trackConn registers an inbound connection and reserves its reader slot in
// the wait group; it reports false once the registry is closing.
func (r *Registry) trackConn(conn net.Conn) bool {
	r.inMu.Lock()
	defer r.inMu.Unlock()
	if r.ctx.Err() != nil {
		return false
	}
	r.inConns[conn] = struct{}{}
	r.wg.Add(1)
	return true
}

func (r *Registry) untrackConn(conn net.Conn) {
	r.inMu.Lock()
	delete(r.inConns, conn)
	r.inMu.Unlock()
	_ = conn.Close()
}
