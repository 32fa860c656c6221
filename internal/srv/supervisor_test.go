package srv

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jypelle/bildkadro/apimodel"
	"github.com/jypelle/bildkadro/internal/power"
	"github.com/jypelle/bildkadro/internal/recovery"
	"github.com/jypelle/bildkadro/internal/srv/device"
)

func TestSupervisor_RebuildsLoopAfterTransportFailure(t *testing.T) {
	server, ts := newManifestServer(t)
	server.set(fmt.Sprintf(`{"display_time": 1, "images": ["%s/img/a.bmp"]}`, ts.URL))
	_, dead := newManifestServer(t)
	deadURL := dead.URL
	dead.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	builds := 0
	var pinged []string
	notifier := &fakeNotifier{}
	status := NewStatusBoard(apimodel.Status{})
	supervisor := &Supervisor{
		NewLoop: func() (*Loop, error) {
			builds++
			url := deadURL
			if builds > 1 {
				url = ts.URL
			}
			r := newRemoteRig(t, url, power.SCREEN_ON, 3)
			r.loop.Status = status
			if builds > 1 {
				// Stop once the rebuilt loop fetched the manifest
				go func() {
					for server.fetchCount() == 0 {
						time.Sleep(time.Millisecond)
					}
					cancel()
				}()
			}
			return r.loop, nil
		},
		Backoff:  recovery.NewBackoff(time.Millisecond, time.Millisecond),
		PingHost: "frame.example.org",
		Notifier: notifier,
		Status:   status,
		WaitOnline: func(ctx context.Context, host string) error {
			pinged = append(pinged, host)
			return nil
		},
	}

	if err := supervisor.Run(ctx); err != nil {
		t.Fatal(err)
	}
	if builds != 2 {
		t.Fatalf("builds = %d, want 2", builds)
	}
	if len(pinged) != 1 || pinged[0] != "frame.example.org" {
		t.Fatalf("pinged = %v", pinged)
	}
	if notifier.count(device.RESTART_NOTIFICATION) != 1 {
		t.Fatalf("restart notifications = %d", notifier.count(device.RESTART_NOTIFICATION))
	}
	if status.Get().Restarts != 1 {
		t.Fatalf("restarts = %d", status.Get().Restarts)
	}
}

func TestSupervisor_RebootCommand(t *testing.T) {
	_, dead := newManifestServer(t)
	deadURL := dead.URL
	dead.Close()

	var ran [][]string
	supervisor := &Supervisor{
		NewLoop: func() (*Loop, error) {
			return newRemoteRig(t, deadURL, power.SCREEN_ON, 3).loop, nil
		},
		RebootCommand: []string{"sudo", "reboot"},
		RunCommand: func(ctx context.Context, command []string) error {
			ran = append(ran, command)
			return nil
		},
	}

	err := supervisor.Run(context.Background())
	if !errors.Is(err, ErrRebooting) {
		t.Fatalf("got %v, want ErrRebooting", err)
	}
	if len(ran) != 1 || ran[0][1] != "reboot" {
		t.Fatalf("ran = %v", ran)
	}
}

func TestSupervisor_BuildFailure(t *testing.T) {
	supervisor := &Supervisor{
		NewLoop: func() (*Loop, error) {
			return nil, errors.New("no catalog")
		},
	}
	if err := supervisor.Run(context.Background()); err == nil {
		t.Fatal("expected an error")
	}
}
