package journal

import "errors"

// ErrValidation marks malformed or incomplete input events. The batch that
// produced it is skipped; nothing is written.
var ErrValidation = errors.New("validation error")

// ErrNoMatch is returned when a batch cannot be tied to any open position.
var ErrNoMatch = errors.New("no matching open position")
