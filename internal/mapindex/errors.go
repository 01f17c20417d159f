package mapindex

import "errors"

// ErrCorrupt is returned when persisted index data cannot be decoded.
var ErrCorrupt = errors.New("mapindex: corrupt index data")
