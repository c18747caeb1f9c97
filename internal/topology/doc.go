// Package topology is the root's view of the overlay: a bounded-degree
// binary tree of peer addresses with liveness tracking.
//
// Ownership boundary:
//   - Graph owns every node in one arena; parent and child links are arena
//     indices, never pointers.
//   - Search (FindAttachmentPoint) is read-only; attachment is a separate
//     explicit call.
//   - Pruned nodes keep their slot for the lifetime of the Graph. An address
//     that re-attaches gets a fresh node and the old one stays dead.
//   - Graph is not safe for concurrent use; the owning peer serializes access.
package topology
