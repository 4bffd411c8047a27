package pipeline

import "errors"

// ErrUnavailable is returned when a stop or status operation is issued while
// no pipeline is running.
var ErrUnavailable = errors.New("pipeline is not running")
