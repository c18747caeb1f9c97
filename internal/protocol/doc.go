// Package protocol owns the overlay wire contract and parsing primitives.
//
// Ownership boundary:
// - canonical peer addresses
// - fixed packet header encode/decode
// - typed packet bodies (register, advertise, join, message, reunion)
//
// The codec is fail-open: version, type, and declared length are carried
// through Decode unchanged and validated by the peer engine at dispatch.
//
// Stream framing over TCP lives in the frame subpackage.
package protocol
