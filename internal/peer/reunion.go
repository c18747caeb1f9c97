package peer

import (
	"strings"
	"time"

	"github.com/danmuck/treenet/internal/observability"
	"github.com/danmuck/treenet/internal/protocol"
)

// ReunionTick runs one heartbeat cycle. The root expires silent branches;
// a non-root peer sends a HELLO or, after MaxWait without an answer, leaves
// the tree and asks the root for a new position.
func (p *Peer) ReunionTick(now time.Time) {
	if p.isRoot {
		p.mu.Lock()
		p.expireLocked(now)
		p.updateGaugesLocked()
		p.mu.Unlock()
		return
	}

	p.mu.Lock()
	failed := p.heartbeatLocked(now)
	p.mu.Unlock()

	if failed {
		if err := p.conns.Flush(p.cfg.Root); err != nil {
			p.log.Warn().Err(err).Msg("flush re-advertise to root failed")
		}
	}
}

func (p *Peer) expireLocked(now time.Time) {
	for _, addr := range p.graph.Expired(now, p.cfg.MaxWait) {
		pruned, err := p.graph.PruneUnreachable(addr)
		if err != nil {
			p.log.Error().Err(err).Str("peer", addr.String()).Msg("prune failed")
			continue
		}
		if len(pruned) == 0 {
			continue
		}
		last, _ := p.graph.LastSeen(addr)
		observability.RecordHeartbeat(p.node, "expired")
		p.log.Warn().
			Str("peer", addr.String()).
			Dur("silent", now.Sub(last)).
			Str("pruned", joinPath(pruned)).
			Msg("branch expired")
		p.forgetPrunedLocked(pruned)
	}
}

// heartbeatLocked reports whether the heartbeat failed and a re-advertise
// is waiting to be flushed to the root.
func (p *Peer) heartbeatLocked(now time.Time) bool {
	if !p.st.reunionActive || p.st.parent.IsZero() {
		return false
	}
	if !p.st.heartbeatPending {
		hello := protocol.Reunion{Kind: protocol.ReunionHello, Path: []protocol.Address{p.cfg.Self}}
		p.sendLocked(p.st.parent, hello)
		p.st.lastHeartbeatAt = now
		p.st.heartbeatPending = true
		observability.RecordHeartbeat(p.node, "sent")
		return false
	}
	if now.Sub(p.st.lastHeartbeatAt) <= p.cfg.MaxWait {
		return false
	}
	p.failHeartbeatLocked(now)
	return true
}

// failHeartbeatLocked tears down every tree link and re-advertises to the
// root over the registration channel.
func (p *Peer) failHeartbeatLocked(now time.Time) {
	observability.RecordHeartbeat(p.node, "failure")
	p.log.Warn().
		Str("parent", p.st.parent.String()).
		Dur("waited", now.Sub(p.st.lastHeartbeatAt)).
		Int("children", len(p.st.children)).
		Msg("heartbeat failed, re-advertising")

	for child := range p.st.children {
		p.conns.RemovePeer(child)
	}
	p.st.children = make(map[protocol.Address]struct{})
	p.conns.RemovePeer(p.st.parent)
	p.st.parent = protocol.Address{}
	p.st.heartbeatPending = false
	p.st.reunionActive = false

	p.openControlLocked()
	p.sendLocked(p.cfg.Root, protocol.AdvertiseRequest{})
}

func (p *Peer) onHelloLocked(pkt protocol.Packet, hello protocol.Reunion, now time.Time) {
	src := pkt.Source
	if _, ok := p.st.children[src]; !ok {
		p.drop(pkt, reasonNotChild, nil)
		return
	}
	if len(hello.Path) == 0 || hello.Path[len(hello.Path)-1] != src {
		p.drop(pkt, reasonPath, nil)
		return
	}

	if !p.isRoot {
		if p.st.parent.IsZero() {
			p.drop(pkt, reasonNoParent, nil)
			return
		}
		up, err := hello.Append(p.cfg.Self)
		if err != nil {
			p.drop(pkt, reasonPath, err)
			return
		}
		p.sendLocked(p.st.parent, up)
		observability.RecordHeartbeat(p.node, "forwarded")
		return
	}

	origin, _ := hello.Origin()
	if !p.graph.Alive(origin) {
		p.drop(pkt, reasonOriginDead, nil)
		return
	}
	for _, addr := range hello.Path {
		if p.graph.Alive(addr) {
			_ = p.graph.RecordHeartbeat(addr, now)
		}
	}
	back := hello.Reversed()
	p.sendLocked(src, back)
	observability.RecordHeartbeat(p.node, "answered")
	p.log.Debug().Str("origin", origin.String()).Str("path", joinPath(hello.Path)).Msg("hello answered")
}

func (p *Peer) onHelloBackLocked(pkt protocol.Packet, back protocol.Reunion) {
	if p.isRoot {
		p.drop(pkt, reasonNonRootOnly, nil)
		return
	}
	if p.st.parent.IsZero() || pkt.Source != p.st.parent {
		p.drop(pkt, reasonNotParent, nil)
		return
	}
	head, ok := back.Head()
	if !ok || head != p.cfg.Self {
		p.drop(pkt, reasonPath, nil)
		return
	}

	if len(back.Path) == 1 {
		if p.st.heartbeatPending {
			p.st.heartbeatPending = false
			observability.RecordHeartbeat(p.node, "success")
			p.log.Debug().Str("parent", p.st.parent.String()).Msg("heartbeat answered")
		}
		return
	}

	down, err := back.StripHead()
	if err != nil {
		p.drop(pkt, reasonPath, err)
		return
	}
	next, _ := down.Head()
	if _, ok := p.st.children[next]; !ok {
		p.drop(pkt, reasonNotChild, nil)
		return
	}
	p.sendLocked(next, down)
}

func joinPath(path []protocol.Address) string {
	parts := make([]string, len(path))
	for i, a := range path {
		parts[i] = a.String()
	}
	return strings.Join(parts, ",")
}
