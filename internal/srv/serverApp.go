package srv

import (
	"context"
	"fmt"
	"image"
	"math/rand"
	"os"
	"os/exec"
	"time"

	"github.com/jypelle/bildkadro/apimodel"
	"github.com/jypelle/bildkadro/internal/catalog"
	"github.com/jypelle/bildkadro/internal/clock"
	"github.com/jypelle/bildkadro/internal/power"
	"github.com/jypelle/bildkadro/internal/presenter"
	"github.com/jypelle/bildkadro/internal/recovery"
	"github.com/jypelle/bildkadro/internal/remote"
	"github.com/jypelle/bildkadro/internal/srv/config"
	"github.com/jypelle/bildkadro/internal/srv/device"
	"github.com/jypelle/bildkadro/internal/version"
	"github.com/sirupsen/logrus"
)

type ServerApp struct {
	*config.ServerConfig
	hardware  *Hardware
	secrets   *config.Secrets
	apiDevice *device.Api
	status    *StatusBoard
	presenter *presenter.Controller
	loader    *presenter.FileLoader
	watcher   *catalog.Watcher
	rnd       *rand.Rand

	// screen is the last accepted screen state, carried over to rebuilt loops
	screen power.State
}

func NewServerApp(serverConfig *config.ServerConfig, hardware *Hardware, secrets *config.Secrets) *ServerApp {
	logrus.Debugf("Creation of %s server %s ...", version.Name, version.AppVersion.String())

	if hardware.Touch == nil {
		hardware.Touch = device.NoTouch{}
	}
	if hardware.Notifier == nil {
		hardware.Notifier = device.NoLed{}
	}
	if hardware.Backlight == nil {
		hardware.Backlight = device.NoBacklight{}
	}

	app := &ServerApp{
		ServerConfig: serverConfig,
		hardware:     hardware,
		secrets:      secrets,
		rnd:          rand.New(rand.NewSource(time.Now().UnixNano())),
		screen:       serverConfig.InitialScreenState(),
		status: NewStatusBoard(apimodel.Status{
			Version: version.AppVersion.String(),
			Mode:    serverConfig.SourceParam.Mode,
		}),
	}

	app.loader = presenter.NewFileLoader(hardware.Surface.Bounds())
	app.presenter = presenter.NewController(hardware.Surface, hardware.Backlight, app.loader, clock.Real{}, presenter.Config{
		Steps:     serverConfig.FadeParam.Steps,
		StepDelay: serverConfig.FadeParam.StepDelay,
		Floor:     serverConfig.FadeParam.Floor,
	})

	if serverConfig.ApiParam.Enabled {
		app.apiDevice = device.NewApi(serverConfig.ConfigDir, serverConfig.ApiParam, app.status.Get)
	}

	if !serverConfig.IsRemote() && serverConfig.SourceParam.Watch {
		watcher, err := catalog.NewWatcher(serverConfig.GetCompleteTopicsFolder())
		if err != nil {
			logrus.Warnf("Topic changes will not be detected: %v", err)
		} else {
			app.watcher = watcher
		}
	}

	logrus.Debugln("Server created")

	return app
}

// ApiDevice returns the local control API, nil when disabled.
func (s *ServerApp) ApiDevice() *device.Api {
	return s.apiDevice
}

func (s *ServerApp) Status() apimodel.Status {
	return s.status.Get()
}

// Run shows the startup screen then supervises the control loop until ctx is done.
func (s *ServerApp) Run(ctx context.Context) error {
	logrus.Printf("Starting %s server in %s mode ...", version.Name, s.SourceParam.Mode)

	s.showScreen("startup", version.Name, "v"+version.AppVersion.String())

	supervisor := &Supervisor{
		NewLoop:       s.newLoop,
		Backoff:       recovery.NewBackoff(s.RecoveryParam.RestartBackoff, s.RecoveryParam.RestartBackoffMax),
		RebootCommand: s.RecoveryParam.RebootCommand,
		PingHost:      s.RecoveryParam.PingHost,
		Notifier:      s.hardware.Notifier,
		Status:        s.status,
		OnRestart: func(err error) {
			if s.screen == power.SCREEN_ON {
				s.showScreen("restarting", "Restarting", "please wait")
			}
		},
	}
	return supervisor.Run(ctx)
}

func (s *ServerApp) newLoop() (*Loop, error) {
	cfg := LoopConfig{
		Remote:          s.IsRemote(),
		PollInterval:    s.ScreenParam.PollInterval,
		DisplayTime:     s.SourceParam.DisplayTime,
		DisplayTimeUnit: s.RemoteParam.DisplayTimeUnit,
		RefreshInterval: s.RemoteParam.RefreshInterval,
		RetryInterval:   s.RemoteParam.RetryInterval,
	}

	deps := LoopDeps{
		Clock:          clock.Real{},
		Power:          power.NewMachine(s.screen, s.TouchParam.Debounce),
		Presenter:      s.presenter,
		Touch:          s.hardware.Touch,
		Notifier:       s.hardware.Notifier,
		Status:         s.status,
		OnScreenChange: s.onScreenChange,
	}
	if s.apiDevice != nil {
		deps.ApiEvents = s.apiDevice.EventChannel()
	}

	if cfg.Remote {
		if s.secrets == nil || s.secrets.ApiKey == "" {
			return nil, config.ErrMissingSecrets
		}
		dir := s.GetCompleteImagesFolder()
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("unable to create images folder: %w", err)
		}
		blankName := s.SourceParam.BlankImage
		client := remote.NewClient(s.RemoteParam.BaseUrl, s.secrets.ApiKey, s.RemoteParam.Timeout)
		deps.Snapshot = catalog.NewSnapshotCatalog(dir, blankName, s.rnd)
		deps.Syncer = remote.NewSyncer(client, dir, blankName)
		deps.Policy = recovery.NewPolicy(s.RecoveryParam.FailureThreshold)
		deps.Blank = s.blankImage()
	} else {
		topics, err := catalog.NewTopicCatalog(s.GetCompleteTopicsFolder(), s.rnd)
		if err != nil {
			return nil, err
		}
		deps.Topics = topics
		deps.Watcher = s.watcher
	}

	return NewLoop(cfg, deps)
}

func (s *ServerApp) onScreenChange(state power.State) {
	s.screen = state
	s.ServerState.SetScreen(state)
}

// blankImage loads the reserved blank image, or generates a black frame when it is absent.
func (s *ServerApp) blankImage() image.Image {
	filename := s.GetCompleteBlankImageFilename()
	img, err := s.loader.Load(filename)
	if err != nil {
		logrus.Debugf("Using a generated blank image: %v", err)
		return presenter.Black(s.hardware.Surface.Bounds())
	}
	return img
}

func (s *ServerApp) showScreen(name string, lines ...string) {
	screen := statusImage(s.presenter.Bounds(), lines...)
	if err := s.presenter.ShowTransient(name, screen); err != nil {
		logrus.Warnf("Unable to show %s screen: %v", name, err)
	}
}

func (s *ServerApp) Stop(halt bool) {
	logrus.Printf("Stopping %s server ...", version.Name)

	if s.screen == power.SCREEN_ON {
		s.showScreen("end", "See you!")
	}

	if s.watcher != nil {
		if err := s.watcher.Close(); err != nil {
			logrus.Warnf("Unable to close topic watcher: %v", err)
		}
	}

	// Flush state backup
	s.ServerConfig.ServerState.FlushSave()

	s.hardware.Close()

	logrus.Printf("Server stopped")

	if halt {
		logrus.Printf("System halt")
		haltCmd := exec.Command("sudo", "halt")
		if err := haltCmd.Run(); err != nil {
			logrus.Errorf("Unable to halt the system: %v", err)
		}
	}
}
