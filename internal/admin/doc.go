// Package admin exposes a peer over HTTP: health, Prometheus metrics, a
// state snapshot, the root's tree, and command submission.
package admin
