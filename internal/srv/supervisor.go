package srv

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/jypelle/bildkadro/apimodel"
	"github.com/jypelle/bildkadro/internal/clock"
	"github.com/jypelle/bildkadro/internal/netcheck"
	"github.com/jypelle/bildkadro/internal/recovery"
	"github.com/jypelle/bildkadro/internal/srv/device"
	"github.com/sirupsen/logrus"
)

// ErrRebooting is returned once the reboot command has been issued.
var ErrRebooting = errors.New("device reboot requested")

// stableRunDuration is how long a loop must run before the restart backoff is reset.
const stableRunDuration = 10 * time.Minute

type LoopFactory func() (*Loop, error)

// Supervisor rebuilds the control loop whenever it stops on a failure, or reboots the
// device when a reboot command is configured.
type Supervisor struct {
	NewLoop       LoopFactory
	Clock         clock.Clock
	Backoff       *recovery.Backoff
	RebootCommand []string
	PingHost      string
	Notifier      Notifier
	Status        *StatusBoard
	// OnRestart is called before waiting, typically to show a status screen.
	OnRestart func(err error)

	WaitOnline func(ctx context.Context, host string) error
	RunCommand func(ctx context.Context, command []string) error
}

func runCommand(ctx context.Context, command []string) error {
	return exec.CommandContext(ctx, command[0], command[1:]...).Run()
}

func waitOnline(ctx context.Context, host string) error {
	return netcheck.WaitOnline(ctx, host, 10*time.Second, netcheck.Ping)
}

// Run supervises loops until ctx is done. It only returns an error when no loop can be
// built or when the device is rebooting.
func (s *Supervisor) Run(ctx context.Context) error {
	if s.Clock == nil {
		s.Clock = clock.Real{}
	}
	if s.Backoff == nil {
		s.Backoff = recovery.NewBackoff(10*time.Second, 5*time.Minute)
	}
	if s.Notifier == nil {
		s.Notifier = device.NoLed{}
	}
	if s.WaitOnline == nil {
		s.WaitOnline = waitOnline
	}
	if s.RunCommand == nil {
		s.RunCommand = runCommand
	}

	for {
		loop, err := s.NewLoop()
		if err != nil {
			return fmt.Errorf("unable to build control loop: %w", err)
		}

		started := s.Clock.Now()
		err = loop.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if s.Clock.Now().Sub(started) >= stableRunDuration {
			s.Backoff.Reset()
		}

		logrus.Errorf("Control loop stopped: %v", err)
		s.Notifier.Notify(device.RESTART_NOTIFICATION)
		if s.Status != nil {
			s.Status.Update(func(status *apimodel.Status) {
				status.Restarts++
				status.LastError = err.Error()
			})
		}
		if s.OnRestart != nil {
			s.OnRestart(err)
		}

		if len(s.RebootCommand) > 0 {
			logrus.Warnf("Rebooting device: %v", s.RebootCommand)
			if cmdErr := s.RunCommand(ctx, s.RebootCommand); cmdErr != nil {
				logrus.Errorf("Unable to reboot: %v", cmdErr)
			} else {
				return ErrRebooting
			}
		}

		if errors.Is(err, recovery.ErrRestartRequired) && s.PingHost != "" {
			logrus.Infof("Waiting for %s to be reachable", s.PingHost)
			if err := s.WaitOnline(ctx, s.PingHost); err != nil {
				return nil
			}
		}

		delay := s.Backoff.Next()
		logrus.Infof("Restarting control loop in %v", delay)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}
