// Package peer owns the per-peer protocol engine and reunion heartbeat.
//
// Ownership boundary:
// - PeerState (parent, children, registration table, heartbeat flags)
// - packet validation and dispatch for every packet type
// - the root's topology graph and its expiry sweep
// - the non-root heartbeat send/await/fail cycle
// - the user command queue consumed once per engine tick
//
// One mutex guards all state. Network flushes happen outside it; delivery
// failures are applied after re-acquiring it.
package peer
