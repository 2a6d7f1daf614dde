package codec

import "errors"

// ErrCorrupt is the sentinel wrapped by every frame/field validation
// failure in this package; use errors.Is(err, codec.ErrCorrupt) to test
// for any corruption condition regardless of which check tripped.
var ErrCorrupt = errors.New("corrupt record")
