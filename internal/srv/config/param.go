package config

import (
	_ "embed"
	"errors"
	"fmt"
	"time"
)

//go:embed param_default.yaml
var ParamDefaultFile []byte

const (
	LocalSource  = "local"
	RemoteSource = "remote"
)

type ServerParam struct {
	DisplayParam  DisplayParam  `yaml:"display"`
	TouchParam    TouchParam    `yaml:"touch"`
	LedParam      LedParam      `yaml:"led"`
	FadeParam     FadeParam     `yaml:"fade"`
	ScreenParam   ScreenParam   `yaml:"screen"`
	SourceParam   SourceParam   `yaml:"source"`
	RemoteParam   RemoteParam   `yaml:"remote"`
	RecoveryParam RecoveryParam `yaml:"recovery"`
	ApiParam      ApiParam      `yaml:"api"`
}

type DisplayParam struct {
	Driver         string         `yaml:"driver"`
	Framebuffer    string         `yaml:"framebuffer"`
	Width          int            `yaml:"width"`
	Height         int            `yaml:"height"`
	I2cBus         string         `yaml:"i2c_bus"`
	BacklightParam BacklightParam `yaml:"backlight"`
}

type BacklightParam struct {
	Driver       string `yaml:"driver"`
	SysfsPath    string `yaml:"sysfs_path"`
	PwmPin       string `yaml:"pwm_pin"`
	PwmFrequency int64  `yaml:"pwm_frequency"`
}

type TouchParam struct {
	Driver      string        `yaml:"driver"`
	EvdevDevice string        `yaml:"evdev_device"`
	I2cBus      string        `yaml:"i2c_bus"`
	I2cAddress  uint16        `yaml:"i2c_address"`
	ButtonPin   string        `yaml:"button_pin"`
	Debounce    time.Duration `yaml:"debounce"`
}

type LedParam struct {
	Enabled bool   `yaml:"enabled"`
	Pin     string `yaml:"pin"`
}

type FadeParam struct {
	Steps     int           `yaml:"steps"`
	StepDelay time.Duration `yaml:"step_delay"`
	Floor     float64       `yaml:"floor"`
}

type ScreenParam struct {
	Initial      string        `yaml:"initial"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

type SourceParam struct {
	Mode         string        `yaml:"mode"`
	TopicsFolder string        `yaml:"topics_folder"`
	ImagesFolder string        `yaml:"images_folder"`
	BlankImage   string        `yaml:"blank_image"`
	Watch        bool          `yaml:"watch"`
	DisplayTime  time.Duration `yaml:"display_time"`
}

type RemoteParam struct {
	BaseUrl         string        `yaml:"base_url"`
	DisplayTimeUnit time.Duration `yaml:"display_time_unit"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	RetryInterval   time.Duration `yaml:"retry_interval"`
	Timeout         time.Duration `yaml:"timeout"`
}

type RecoveryParam struct {
	FailureThreshold  int           `yaml:"failure_threshold"`
	RebootCommand     []string      `yaml:"reboot_command"`
	RestartBackoff    time.Duration `yaml:"restart_backoff"`
	RestartBackoffMax time.Duration `yaml:"restart_backoff_max"`
	PingHost          string        `yaml:"ping_host"`
}

type ApiParam struct {
	Enabled bool   `yaml:"enabled"`
	SslPort int64  `yaml:"ssl_port"`
	ApiKey  string `yaml:"api_key"`
}

func (p *ServerParam) IsRemote() bool {
	return p.SourceParam.Mode == RemoteSource
}

// Validate reports the first inconsistent parameter.
func (p *ServerParam) Validate() error {
	switch p.SourceParam.Mode {
	case LocalSource, RemoteSource:
	default:
		return fmt.Errorf("unknown source mode %q", p.SourceParam.Mode)
	}
	switch p.ScreenParam.Initial {
	case "on", "off", "last":
	default:
		return fmt.Errorf("unknown initial screen state %q", p.ScreenParam.Initial)
	}
	if p.ScreenParam.PollInterval <= 0 {
		return errors.New("screen.poll_interval must be positive")
	}
	if p.FadeParam.Steps < 1 {
		return errors.New("fade.steps must be at least 1")
	}
	if p.FadeParam.Floor < 0 || p.FadeParam.Floor >= 1 {
		return errors.New("fade.floor must be in [0, 1)")
	}
	if p.TouchParam.Debounce < 0 {
		return errors.New("touch.debounce must not be negative")
	}
	if p.SourceParam.BlankImage == "" {
		return errors.New("source.blank_image is required")
	}
	if !p.IsRemote() && p.SourceParam.DisplayTime <= 0 {
		return errors.New("source.display_time must be positive in local mode")
	}
	if p.IsRemote() {
		if p.RemoteParam.BaseUrl == "" {
			return errors.New("remote.base_url is required in remote mode")
		}
		if p.RemoteParam.DisplayTimeUnit <= 0 {
			return errors.New("remote.display_time_unit must be positive")
		}
		if p.RemoteParam.RefreshInterval <= 0 || p.RemoteParam.RetryInterval <= 0 {
			return errors.New("remote.refresh_interval and remote.retry_interval must be positive")
		}
		if p.RecoveryParam.FailureThreshold < 1 {
			return errors.New("recovery.failure_threshold must be at least 1")
		}
	}
	return nil
}
