// Package transport is the TCP connection registry a peer uses to reach its
// neighbors.
//
// Ownership boundary:
// - one outbound entry per neighbor address, dialed asynchronously with backoff
// - per-entry outbound frame buffers flushed by the engine loop
// - a listener whose read-only inbound connections feed a drainable frame queue
//
// Every connection carries frames from its dialer to its acceptor only; a
// peer that answers dials its own connection back.
package transport
