package profile

import "errors"

// ErrUnknownLevel is returned when a level identifier is not one of the
// four enumerated values.
var ErrUnknownLevel = errors.New("unknown compression level")
