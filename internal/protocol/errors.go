package protocol

import "errors"

var (
	ErrEncoding        = errors.New("protocol: encoding error")
	ErrDecoding        = errors.New("protocol: decoding error")
	ErrInvalidAddress  = errors.New("protocol: invalid address")
	ErrMalformedBody   = errors.New("protocol: malformed body")
	ErrEntryCount      = errors.New("protocol: reunion entry count mismatch")
	ErrPathTooLong     = errors.New("protocol: reunion path too long")
	ErrEmptyPath       = errors.New("protocol: reunion path empty")
	ErrUnsupportedType = errors.New("protocol: unsupported packet type")
)
