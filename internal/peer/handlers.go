package peer

import (
	"time"

	"github.com/danmuck/treenet/internal/observability"
	"github.com/danmuck/treenet/internal/protocol"
	"github.com/danmuck/treenet/internal/topology"
)

func (p *Peer) onRegisterRequestLocked(pkt protocol.Packet, req protocol.RegisterRequest) {
	src := pkt.Source
	if !p.isRoot {
		p.drop(pkt, reasonRootOnly, nil)
		return
	}
	if req.Address != src {
		p.drop(pkt, reasonAddrMismatch, nil)
		return
	}
	if _, ok := p.st.registeredPeers[src]; ok {
		p.log.Debug().Str("src", src.String()).Msg("duplicate registration ignored")
		return
	}
	p.st.registeredPeers[src] = struct{}{}
	if err := p.conns.AddPeer(src, true); err != nil {
		p.log.Warn().Err(err).Str("src", src.String()).Msg("open registration channel failed")
	}
	p.sendLocked(src, protocol.RegisterResponse{})
	p.log.Info().Str("src", src.String()).Int("registered", len(p.st.registeredPeers)).Msg("peer registered")
}

func (p *Peer) onRegisterResponseLocked(pkt protocol.Packet) {
	if p.isRoot {
		p.drop(pkt, reasonNonRootOnly, nil)
		return
	}
	if pkt.Source != p.cfg.Root {
		p.drop(pkt, reasonNotRoot, nil)
		return
	}
	p.st.registered = true
	p.log.Info().Msg("registration acknowledged by root")
}

func (p *Peer) onAdvertiseRequestLocked(pkt protocol.Packet, now time.Time) {
	src := pkt.Source
	if !p.isRoot {
		p.drop(pkt, reasonRootOnly, nil)
		return
	}
	if _, ok := p.st.registeredPeers[src]; !ok {
		p.drop(pkt, reasonUnregistered, nil)
		return
	}
	if p.graph.Alive(src) {
		// re-advertising after a heartbeat failure; its old branch is gone
		pruned, err := p.graph.PruneUnreachable(src)
		if err != nil {
			p.log.Error().Err(err).Str("src", src.String()).Msg("prune before re-placement failed")
			return
		}
		p.forgetPrunedLocked(pruned)
		p.log.Info().Str("src", src.String()).Int("pruned", len(pruned)).Msg("re-advertise pruned old position")
	}

	at, err := p.graph.FindAttachmentPoint(src)
	if err != nil {
		ev := p.log.Error()
		if isAny(err, topology.ErrDepthExceeded, topology.ErrNoCapacity) {
			ev = p.log.Warn()
		}
		ev.Err(err).Str("src", src.String()).Msg("no attachment point")
		observability.RecordPacketDropped(p.node, reasonPlacement)
		return
	}
	if err := p.graph.Attach(src, at, now); err != nil {
		p.log.Error().Err(err).Str("src", src.String()).Str("neighbor", at.String()).Msg("attach failed")
		return
	}
	if err := p.graph.MarkAlive(src); err != nil {
		p.log.Error().Err(err).Str("src", src.String()).Msg("mark alive failed")
	}
	if err := p.graph.RecordHeartbeat(src, now); err != nil {
		p.log.Error().Err(err).Str("src", src.String()).Msg("initial heartbeat failed")
	}

	// the registration channel may have been dropped with a pruned branch
	if err := p.conns.AddPeer(src, true); err != nil {
		p.log.Warn().Err(err).Str("src", src.String()).Msg("reopen registration channel failed")
	}
	p.sendLocked(src, protocol.AdvertiseResponse{Neighbor: at})
	depth, _ := p.graph.Depth(src)
	p.log.Info().Str("src", src.String()).Str("neighbor", at.String()).Int("depth", depth).Msg("peer placed")
}

func (p *Peer) onAdvertiseResponseLocked(pkt protocol.Packet, res protocol.AdvertiseResponse) {
	if p.isRoot {
		p.drop(pkt, reasonNonRootOnly, nil)
		return
	}
	if pkt.Source != p.cfg.Root {
		p.drop(pkt, reasonNotRoot, nil)
		return
	}
	neighbor := res.Neighbor
	if neighbor == p.cfg.Self {
		p.drop(pkt, reasonSelf, nil)
		return
	}
	if _, ok := p.st.children[neighbor]; ok {
		// the neighbor was our child; it cannot also be our parent
		delete(p.st.children, neighbor)
	}

	old := p.st.parent
	switch {
	case old.IsZero() || old == neighbor:
	case old == p.cfg.Root:
		// the root link drops back to registration-only
		p.conns.RemovePeer(old)
		p.openControlLocked()
	default:
		p.conns.RemovePeer(old)
	}
	p.st.parent = neighbor
	p.openTreeLinkLocked(neighbor)
	p.sendLocked(neighbor, protocol.Join{})
	p.st.heartbeatPending = false
	p.st.reunionActive = true
	p.log.Info().Str("parent", neighbor.String()).Str("previous", old.String()).Msg("joined tree")
}

func (p *Peer) onJoinLocked(pkt protocol.Packet) {
	src := pkt.Source
	if src == p.cfg.Self {
		p.drop(pkt, reasonSelf, nil)
		return
	}
	if src == p.st.parent {
		p.drop(pkt, reasonNotChild, nil)
		return
	}
	if _, ok := p.st.children[src]; ok {
		p.log.Debug().Str("src", src.String()).Msg("duplicate join")
	}
	p.st.children[src] = struct{}{}
	p.openTreeLinkLocked(src)
	p.log.Info().Str("child", src.String()).Int("children", len(p.st.children)).Msg("child joined")
}

func (p *Peer) onMessageLocked(pkt protocol.Packet, msg protocol.Message, now time.Time) {
	src := pkt.Source
	if !p.isNeighborLocked(src) {
		p.drop(pkt, reasonNotNeighbor, nil)
		return
	}
	p.deliverLocked(src, msg.Text, now)
	p.log.Info().Str("src", src.String()).Str("text", msg.Text).Msg("message")
	p.forwardLocked(msg.Text, src)
}

// forgetPrunedLocked drops pruned addresses that were direct children.
func (p *Peer) forgetPrunedLocked(pruned []protocol.Address) {
	for _, addr := range pruned {
		if _, ok := p.st.children[addr]; ok {
			delete(p.st.children, addr)
			p.conns.RemovePeer(addr)
		}
	}
}

func (p *Peer) isNeighborLocked(addr protocol.Address) bool {
	if !p.st.parent.IsZero() && addr == p.st.parent {
		return true
	}
	_, ok := p.st.children[addr]
	return ok
}
