package recovery

import "time"

// Backoff doubles the restart delay up to Max. It is reset once a loop ran long enough.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
	attempt int
}

func NewBackoff(initial, max time.Duration) *Backoff {
	if initial <= 0 {
		initial = time.Second
	}
	if max < initial {
		max = initial
	}
	return &Backoff{Initial: initial, Max: max}
}

// Next returns the delay before the next attempt.
func (b *Backoff) Next() time.Duration {
	d := b.Initial
	for i := 0; i < b.attempt; i++ {
		d *= 2
		if d >= b.Max {
			d = b.Max
			break
		}
	}
	b.attempt++
	return d
}

func (b *Backoff) Reset() {
	b.attempt = 0
}
