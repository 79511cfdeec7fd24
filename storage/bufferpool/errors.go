package bufferpool

import "errors"

// ErrClosed is returned by NewPage and FetchPage (and the guard
// constructors built on them) when called after Shutdown.
var ErrClosed = errors.New("bufferpool: manager is shut down")
