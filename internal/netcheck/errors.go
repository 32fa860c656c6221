package netcheck

import "errors"

var ErrNoReply = errors.New("no echo reply")
