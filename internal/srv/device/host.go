package device

import (
	"sync"

	"periph.io/x/host/v3"
)

var (
	hostOnce sync.Once
	hostErr  error
)

// InitHost loads the periph host drivers once.
func InitHost() error {
	hostOnce.Do(func() {
		_, hostErr = host.Init()
	})
	return hostErr
}
