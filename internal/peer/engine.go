package peer

import (
	"errors"
	"time"

	"github.com/danmuck/treenet/internal/observability"
	"github.com/danmuck/treenet/internal/protocol"
)

// drop reasons, also used as metric labels
const (
	reasonDecode        = "decode"
	reasonVersion       = "bad_version"
	reasonUnknownType   = "unknown_type"
	reasonLength        = "length_mismatch"
	reasonMalformedBody = "malformed_body"
	reasonRootOnly      = "root_only"
	reasonNonRootOnly   = "non_root_only"
	reasonNotRoot       = "not_from_root"
	reasonAddrMismatch  = "address_mismatch"
	reasonUnregistered  = "unregistered"
	reasonPlacement     = "no_placement"
	reasonSelf          = "self"
	reasonNotNeighbor   = "not_neighbor"
	reasonNotChild      = "not_child"
	reasonNotParent     = "not_parent"
	reasonNoParent      = "no_parent"
	reasonPath          = "path_mismatch"
	reasonOriginDead    = "origin_not_live"
)

// Tick runs one engine cycle: queued commands, then every inbound frame,
// then a flush of all outbound buffers.
func (p *Peer) Tick(now time.Time) {
	cmds := p.takeCommands()
	frames := p.conns.DrainInbound()

	p.mu.Lock()
	for _, cmd := range cmds {
		p.execLocked(cmd)
	}
	for _, raw := range frames {
		p.handleFrameLocked(raw, now)
	}
	p.updateGaugesLocked()
	p.mu.Unlock()

	p.flushAll()
	p.notify()
}

func (p *Peer) flushAll() {
	failed := p.conns.FlushAll()
	if len(failed) == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for addr, err := range failed {
		p.applyDeliveryFailureLocked(addr, err)
	}
}

// applyDeliveryFailureLocked forgets a neighbor whose entry the registry
// dropped. A lost parent is left to the heartbeat timeout.
func (p *Peer) applyDeliveryFailureLocked(addr protocol.Address, err error) {
	ev := p.log.Warn().Str("peer", addr.String()).Err(err)
	if _, ok := p.st.children[addr]; ok {
		delete(p.st.children, addr)
		ev.Msg("child unreachable, dropped")
		return
	}
	if addr == p.st.parent {
		ev.Msg("parent unreachable, awaiting heartbeat timeout")
		return
	}
	ev.Msg("delivery failed")
}

func (p *Peer) handleFrameLocked(raw []byte, now time.Time) {
	pkt, err := protocol.Decode(raw)
	if err != nil {
		p.dropRaw(reasonDecode, err)
		return
	}
	if pkt.Version != protocol.Version {
		p.drop(pkt, reasonVersion, nil)
		return
	}
	if !pkt.Type.Known() {
		p.drop(pkt, reasonUnknownType, nil)
		return
	}
	if int(pkt.Length) != len(pkt.Body) {
		p.drop(pkt, reasonLength, nil)
		return
	}
	body, err := protocol.ParseBody(pkt)
	if err != nil {
		p.drop(pkt, reasonMalformedBody, err)
		return
	}
	observability.RecordPacketReceived(p.node, pkt.Type.String())

	src := pkt.Source
	switch b := body.(type) {
	case protocol.RegisterRequest:
		p.onRegisterRequestLocked(pkt, b)
	case protocol.RegisterResponse:
		p.onRegisterResponseLocked(pkt)
	case protocol.AdvertiseRequest:
		p.onAdvertiseRequestLocked(pkt, now)
	case protocol.AdvertiseResponse:
		p.onAdvertiseResponseLocked(pkt, b)
	case protocol.Join:
		p.onJoinLocked(pkt)
	case protocol.Message:
		p.onMessageLocked(pkt, b, now)
	case protocol.Reunion:
		if b.Kind == protocol.ReunionHello {
			p.onHelloLocked(pkt, b, now)
		} else {
			p.onHelloBackLocked(pkt, b)
		}
	default:
		p.log.Error().Str("src", src.String()).Str("type", pkt.Type.String()).Msg("no handler for body")
	}
}

// sendLocked encodes body from this peer and buffers it for to.
func (p *Peer) sendLocked(to protocol.Address, body protocol.Body) bool {
	raw, err := protocol.EncodeBody(p.cfg.Self, body)
	if err != nil {
		p.log.Error().Err(err).Str("to", to.String()).Str("type", body.PacketType().String()).Msg("encode failed")
		return false
	}
	if err := p.conns.Enqueue(to, raw); err != nil {
		p.log.Warn().Err(err).Str("to", to.String()).Str("type", body.PacketType().String()).Msg("enqueue failed")
		return false
	}
	observability.RecordPacketSent(p.node, body.PacketType().String())
	return true
}

// openControlLocked makes sure a channel to the root exists.
func (p *Peer) openControlLocked() {
	if err := p.conns.AddPeer(p.cfg.Root, true); err != nil {
		p.log.Warn().Err(err).Msg("open root channel failed")
	}
}

func (p *Peer) openTreeLinkLocked(addr protocol.Address) {
	if err := p.conns.AddPeer(addr, false); err != nil {
		p.log.Warn().Err(err).Str("peer", addr.String()).Msg("open tree link failed")
	}
}

func (p *Peer) drop(pkt protocol.Packet, reason string, err error) {
	observability.RecordPacketDropped(p.node, reason)
	ev := p.log.Warn()
	if isProtocolNoise(reason) {
		ev = p.log.Debug()
	}
	ev.Str("src", pkt.Source.String()).
		Str("type", pkt.Type.String()).
		Str("reason", reason).
		Err(err).
		Msg("packet dropped")
}

func (p *Peer) dropRaw(reason string, err error) {
	observability.RecordPacketDropped(p.node, reason)
	p.log.Warn().Str("reason", reason).Err(err).Msg("packet dropped")
}

// isProtocolNoise marks drops that are expected traffic for this role.
func isProtocolNoise(reason string) bool {
	return reason == reasonRootOnly || reason == reasonNonRootOnly
}

func isAny(err error, targets ...error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}
