package replacer

import "errors"

// ErrOutOfRange is returned when a frame id is >= the replacer's configured
// size. This is a programmer error at the call site, not an expected
// operational outcome.
var ErrOutOfRange = errors.New("replacer: frame id out of range")

// ErrInvalidState is returned by Remove when the target frame exists but is
// not marked evictable.
var ErrInvalidState = errors.New("replacer: frame is not evictable")
