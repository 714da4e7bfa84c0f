package pipeline

import "errors"

// ErrPresent is returned when a device fails to present a frame.
var ErrPresent = errors.New("pipeline: present failed")
