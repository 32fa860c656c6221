package srv

import (
	"sync"
	"time"

	"github.com/jypelle/bildkadro/apimodel"
)

// StatusBoard is the loop state published for the control API. It is the only piece of
// loop state read from another goroutine.
type StatusBoard struct {
	lock   sync.RWMutex
	status apimodel.Status
}

func NewStatusBoard(base apimodel.Status) *StatusBoard {
	return &StatusBoard{status: base}
}

func (b *StatusBoard) Get() apimodel.Status {
	b.lock.RLock()
	defer b.lock.RUnlock()
	return b.status
}

func (b *StatusBoard) Update(fn func(status *apimodel.Status)) {
	b.lock.Lock()
	defer b.lock.Unlock()
	fn(&b.status)
}

func timeRef(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
