package srv

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/jypelle/bildkadro/apimodel"
	"github.com/jypelle/bildkadro/internal/catalog"
	"github.com/jypelle/bildkadro/internal/clock"
	"github.com/jypelle/bildkadro/internal/power"
	"github.com/jypelle/bildkadro/internal/presenter"
	"github.com/jypelle/bildkadro/internal/recovery"
	"github.com/jypelle/bildkadro/internal/remote"
	"github.com/jypelle/bildkadro/internal/srv/device"
	"github.com/jypelle/bildkadro/internal/srv/event"
	"github.com/sirupsen/logrus"
)

// showRetryDelay is the pause after an image failed to load before the next pick.
const showRetryDelay = 5 * time.Second

type Syncer interface {
	Fetch(ctx context.Context) (*remote.Manifest, error)
	Sync(ctx context.Context, m *remote.Manifest) (*remote.SyncResult, error)
}

type LoopConfig struct {
	Remote          bool
	PollInterval    time.Duration
	DisplayTime     time.Duration
	DisplayTimeUnit time.Duration
	RefreshInterval time.Duration
	RetryInterval   time.Duration
}

// LoopDeps are the collaborators of a Loop. Topics is used in local mode, Snapshot,
// Syncer, Policy and Blank in remote mode.
type LoopDeps struct {
	Clock          clock.Clock
	Power          *power.Machine
	Presenter      *presenter.Controller
	Touch          TouchSensor
	ApiEvents      <-chan event.ApiEvent
	Notifier       Notifier
	Status         *StatusBoard
	OnScreenChange func(state power.State)

	Topics  *catalog.TopicCatalog
	Watcher *catalog.Watcher

	Snapshot *catalog.SnapshotCatalog
	Syncer   Syncer
	Policy   *recovery.Policy
	Blank    image.Image
}

// ProcessState holds the deadlines of the loop. Zero deadlines are due immediately.
type ProcessState struct {
	NextRotation    time.Time
	NextRefresh     time.Time
	DisplayDuration time.Duration
	NoImages        bool
	LastError       string
}

// Loop is the single threaded control loop: every iteration polls touch once, then
// rotates the image and refreshes the remote image set when their deadlines are due.
type Loop struct {
	LoopDeps
	cfg    LoopConfig
	picker catalog.Picker
	state  ProcessState
}

func NewLoop(cfg LoopConfig, deps LoopDeps) (*Loop, error) {
	l := &Loop{LoopDeps: deps, cfg: cfg}
	if cfg.PollInterval <= 0 {
		return nil, errors.New("poll interval must be positive")
	}
	if cfg.Remote {
		if deps.Snapshot == nil || deps.Syncer == nil || deps.Policy == nil {
			return nil, errors.New("remote mode requires a snapshot, a syncer and a policy")
		}
		l.picker = deps.Snapshot
	} else {
		if deps.Topics == nil {
			return nil, errors.New("local mode requires a topic catalog")
		}
		l.picker = deps.Topics
	}
	if l.Clock == nil {
		l.Clock = clock.Real{}
	}
	if l.Touch == nil {
		l.Touch = device.NoTouch{}
	}
	if l.Notifier == nil {
		l.Notifier = device.NoLed{}
	}
	if l.Status == nil {
		l.Status = NewStatusBoard(apimodel.Status{})
	}
	l.state.DisplayDuration = cfg.DisplayTime
	return l, nil
}

func (l *Loop) State() ProcessState {
	return l.state
}

// Run initialises the loop and iterates until ctx is done or a failure requires a restart.
// The composed image is released on every exit path.
func (l *Loop) Run(ctx context.Context) error {
	defer l.Presenter.Release()

	if err := l.Init(ctx); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := l.Step(ctx); err != nil {
			return err
		}
		l.Clock.Sleep(l.cfg.PollInterval)
	}
}

// Init lists the local images and, in remote mode, refreshes them before the first rotation.
func (l *Loop) Init(ctx context.Context) error {
	if l.cfg.Remote {
		if err := l.Snapshot.Load(); err != nil {
			logrus.Warnf("Unable to list local images: %v", err)
		}
		if l.Snapshot.Len() > 0 {
			logrus.Infof("There are %d images to show", l.Snapshot.Len())
			for _, name := range l.Snapshot.Snapshot() {
				logrus.Infof("  %s", name)
			}
		} else {
			logrus.Infof("There are no images on device to show")
		}
	} else {
		for _, topic := range l.Topics.Topics() {
			logrus.Infof("Topic %s: %d images", topic, len(l.Topics.Entries(topic)))
		}
	}

	if !l.Power.IsOn() {
		l.turnOff()
	}

	if l.cfg.Remote {
		if err := l.refresh(ctx); err != nil {
			return err
		}
	}
	l.publish()
	return nil
}

// Step runs one loop iteration without sleeping.
func (l *Loop) Step(ctx context.Context) error {
	if err := l.pollTouch(ctx); err != nil {
		return err
	}

	if l.Watcher != nil && l.Watcher.Changed() {
		if err := l.Topics.Rescan(); err != nil {
			logrus.Warnf("Unable to rescan topics: %v", err)
		}
	}

	if l.Power.IsOn() && !l.Clock.Now().Before(l.state.NextRotation) {
		l.rotate()
	}

	if l.cfg.Remote && !l.Clock.Now().Before(l.state.NextRefresh) {
		if err := l.refresh(ctx); err != nil {
			return err
		}
	}

	l.publish()
	return nil
}

func (l *Loop) pollTouch(ctx context.Context) error {
	touched := l.Touch.Touched()

	var results []chan error
	for drained := false; !drained; {
		select {
		case ev := <-l.ApiEvents:
			if _, ok := ev.Data.(event.ApiEventTouchData); ok {
				touched = true
				results = append(results, ev.Result)
			} else {
				reply(ev.Result, fmt.Errorf("unsupported event %T", ev.Data))
			}
		default:
			drained = true
		}
	}
	if !touched {
		return nil
	}

	state, accepted := l.Power.Touch(l.Clock.Now())
	for _, result := range results {
		if accepted {
			reply(result, nil)
		} else {
			reply(result, event.ErrTouchIgnored)
		}
	}
	if !accepted {
		return nil
	}

	l.Notifier.Notify(device.TOUCH_NOTIFICATION)
	if l.OnScreenChange != nil {
		l.OnScreenChange(state)
	}
	if state == power.SCREEN_ON {
		return l.turnOn(ctx)
	}
	l.turnOff()
	return nil
}

func reply(result chan error, err error) {
	select {
	case result <- err:
	default:
	}
}

// turnOff zeroes the brightness. In remote mode the reserved blank image is composed.
func (l *Loop) turnOff() {
	var blank image.Image
	if l.cfg.Remote {
		blank = l.Blank
	}
	if err := l.Presenter.Off(blank); err != nil {
		logrus.Warnf("Unable to show blank image: %v", err)
	}
}

// turnOn restores the brightness and makes the rotation due. In remote mode the image set
// is refreshed first.
func (l *Loop) turnOn(ctx context.Context) error {
	l.Presenter.On()
	if l.cfg.Remote {
		if err := l.refresh(ctx); err != nil {
			return err
		}
	}
	l.state.NextRotation = l.Clock.Now()
	return nil
}

func (l *Loop) rotate() {
	entry, err := l.picker.PickNext()
	if err != nil {
		if errors.Is(err, catalog.ErrNoImagesAvailable) {
			if !l.state.NoImages {
				logrus.Warnf("No images to show")
				l.state.NoImages = true
				screen := statusImage(l.Presenter.Bounds(), "No images", "waiting for content")
				if err := l.Presenter.ShowTransient("no-images", screen); err != nil {
					logrus.Warnf("Unable to show status screen: %v", err)
				}
			}
			return
		}
		logrus.Errorf("Unable to pick next image: %v", err)
		l.state.NextRotation = l.Clock.Now().Add(showRetryDelay)
		return
	}
	l.state.NoImages = false

	if err := l.Presenter.Show(entry); err != nil {
		logrus.Warnf("Unable to show %s: %v", entry.Path, err)
		l.state.NextRotation = l.Clock.Now().Add(showRetryDelay)
		return
	}
	l.Notifier.Notify(device.SHOWN_NOTIFICATION)
	l.state.NextRotation = l.Clock.Now().Add(l.state.DisplayDuration)
	logrus.Debugf("Next rotation in %v", l.state.DisplayDuration)
}

// refresh fetches the manifest and synchronises the local folder. The next refresh is
// scheduled whatever the outcome; the returned error asks for a restart.
func (l *Loop) refresh(ctx context.Context) error {
	if l.Power.IsOn() {
		logrus.Infof("Refreshing image list")
	} else {
		logrus.Infof("Refreshing image list in background")
	}

	m, err := l.Syncer.Fetch(ctx)
	var result *remote.SyncResult
	if err == nil {
		result, err = l.Syncer.Sync(ctx, m)
	}

	now := l.Clock.Now()
	if err == nil {
		l.state.DisplayDuration = m.DisplayDuration(l.cfg.DisplayTimeUnit)
		l.Snapshot.Replace(result.Local)
		l.state.NextRefresh = now.Add(l.cfg.RefreshInterval)
		l.state.LastError = ""
		logrus.Infof("Image list refreshed: %d images, display time %v", l.Snapshot.Len(), l.state.DisplayDuration)
	} else {
		l.state.NextRefresh = now.Add(l.cfg.RetryInterval)
		l.state.LastError = err.Error()
		logrus.Warnf("Unable to refresh image list, next try in %v: %v", l.cfg.RetryInterval, err)
	}

	return l.Policy.Observe(err)
}

func (l *Loop) publish() {
	current, _ := l.Presenter.Current()
	images := 0
	if l.cfg.Remote {
		images = l.Snapshot.Len()
	} else {
		for _, topic := range l.Topics.Topics() {
			images += len(l.Topics.Entries(topic))
		}
	}
	failures := 0
	if l.Policy != nil {
		failures = l.Policy.Failures()
	}

	l.Status.Update(func(status *apimodel.Status) {
		status.Screen = l.Power.State().String()
		status.Current = current
		status.Images = images
		status.NextRotation = timeRef(l.state.NextRotation)
		status.NextRefresh = timeRef(l.state.NextRefresh)
		status.Failures = failures
		status.LastError = l.state.LastError
	})
}
