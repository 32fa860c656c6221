package remote

import (
	"errors"
	"fmt"
)

var ErrEmptyManifest = errors.New("manifest references no usable image")

// TransportError reports a network level failure: unreachable host, reset socket, timeout.
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ContentError reports a response that reached us but cannot be used.
type ContentError struct {
	URL string
	Err error
}

func (e *ContentError) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("invalid content: %v", e.Err)
	}
	return fmt.Sprintf("invalid content from %s: %v", e.URL, e.Err)
}

func (e *ContentError) Unwrap() error {
	return e.Err
}

// StorageError reports a local write or delete failure.
type StorageError struct {
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure on %s: %v", e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
