package peer

import "github.com/danmuck/treenet/internal/protocol"

// sendBroadcastLocked floods a user message to every tree neighbor. The
// registration-only channel to the root is never used for MESSAGE.
func (p *Peer) sendBroadcastLocked(text string) {
	sent := p.forwardLocked(text, protocol.Address{})
	if sent == 0 {
		p.log.Warn().Msg("broadcast has no tree neighbors")
		return
	}
	p.log.Info().Int("neighbors", sent).Str("text", text).Msg("broadcast")
}

// forwardLocked sends text to every child except from, and to the parent
// unless the parent is from. Forwarded copies carry this peer as source.
func (p *Peer) forwardLocked(text string, from protocol.Address) int {
	msg := protocol.Message{Text: text}
	sent := 0
	for _, child := range sortedAddrs(p.st.children) {
		if child == from {
			continue
		}
		if p.sendLocked(child, msg) {
			sent++
		}
	}
	if !p.st.parent.IsZero() && p.st.parent != from {
		if p.sendLocked(p.st.parent, msg) {
			sent++
		}
	}
	return sent
}
