// Package recovery decides whether a refresh failure is retried or escalated to a restart.
package recovery

import (
	"context"
	"errors"
	"fmt"

	"github.com/jypelle/bildkadro/internal/remote"
	"github.com/sirupsen/logrus"
)

var (
	// ErrRestartRequired asks the supervisor to rebuild the loop (or reboot the device).
	ErrRestartRequired = errors.New("restart required")
	// ErrFatalContent is raised when the consecutive content failure threshold is reached.
	ErrFatalContent = errors.New("too many consecutive content failures")
)

type FailureKind int64

const (
	NO_FAILURE FailureKind = iota
	TRANSPORT_FAILURE
	CONTENT_FAILURE
	STORAGE_FAILURE
	UNKNOWN_FAILURE
)

func (k FailureKind) String() string {
	switch k {
	case NO_FAILURE:
		return "none"
	case TRANSPORT_FAILURE:
		return "transport"
	case CONTENT_FAILURE:
		return "content"
	case STORAGE_FAILURE:
		return "storage"
	}
	return "unknown"
}

// Classify maps an error returned by the sync client to a failure kind.
func Classify(err error) FailureKind {
	if err == nil {
		return NO_FAILURE
	}

	var transportErr *remote.TransportError
	var contentErr *remote.ContentError
	var storageErr *remote.StorageError
	switch {
	case errors.As(err, &transportErr):
		return TRANSPORT_FAILURE
	case errors.Is(err, context.DeadlineExceeded):
		return TRANSPORT_FAILURE
	case errors.Is(err, remote.ErrEmptyManifest), errors.As(err, &contentErr):
		return CONTENT_FAILURE
	case errors.As(err, &storageErr):
		return STORAGE_FAILURE
	}
	return UNKNOWN_FAILURE
}

// Policy counts consecutive unusable refreshes.
type Policy struct {
	threshold int
	failures  int
}

// NewPolicy returns a policy escalating after threshold consecutive failures.
// A threshold lower than 1 is treated as 1.
func NewPolicy(threshold int) *Policy {
	if threshold < 1 {
		threshold = 1
	}
	return &Policy{threshold: threshold}
}

func (p *Policy) Threshold() int {
	return p.threshold
}

func (p *Policy) Failures() int {
	return p.failures
}

// Observe records the outcome of one refresh. It returns nil when the loop may continue
// and retry later, or an error wrapping ErrRestartRequired or ErrFatalContent.
func (p *Policy) Observe(err error) error {
	kind := Classify(err)
	switch kind {
	case NO_FAILURE:
		if p.failures > 0 {
			logrus.Infof("Refresh recovered after %d failure(s)", p.failures)
		}
		p.failures = 0
		return nil
	case TRANSPORT_FAILURE:
		return fmt.Errorf("%w: %w", ErrRestartRequired, err)
	}

	p.failures++
	logrus.Warnf("Refresh failed (%s, %d/%d): %v", kind, p.failures, p.threshold, err)
	if p.failures >= p.threshold {
		return fmt.Errorf("%w (%d): %w", ErrFatalContent, p.failures, err)
	}
	return nil
}

// Reset clears the counter.
func (p *Policy) Reset() {
	p.failures = 0
}
