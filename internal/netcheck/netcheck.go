// Package netcheck waits for the manifest host to become reachable again.
package netcheck

import (
	"context"
	"time"

	"github.com/go-ping/ping"
	"github.com/sirupsen/logrus"
)

// Prober returns nil when host answered.
type Prober func(host string, timeout time.Duration) error

// Ping sends one ICMP echo. Raw ICMP needs root, which the device service has.
func Ping(host string, timeout time.Duration) error {
	pinger, err := ping.NewPinger(host)
	if err != nil {
		return err
	}
	pinger.SetPrivileged(true)
	pinger.Count = 1
	pinger.Timeout = timeout

	if err := pinger.Run(); err != nil {
		return err
	}
	if pinger.Statistics().PacketsRecv == 0 {
		return ErrNoReply
	}
	return nil
}

// WaitOnline probes host every interval until it answers or ctx is done.
func WaitOnline(ctx context.Context, host string, interval time.Duration, probe Prober) error {
	if probe == nil {
		probe = Ping
	}
	for attempt := 1; ; attempt++ {
		err := probe(host, interval)
		if err == nil {
			logrus.Infof("%s reachable after %d probe(s)", host, attempt)
			return nil
		}
		logrus.Debugf("%s unreachable: %v", host, err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}
