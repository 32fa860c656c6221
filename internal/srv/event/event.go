package event

import "errors"

// ErrTouchIgnored is returned to a virtual touch swallowed by the debounce.
var ErrTouchIgnored = errors.New("touch ignored by debounce")

// Api
type ApiEvent struct {
	Result chan error
	Data   interface{}
}

type ApiEventTouchData struct{}
