package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

var ErrMissingSecrets = errors.New("missing secrets")

// Secrets holds the per-device credentials, kept apart from param.yaml.
type Secrets struct {
	ApiKey       string `yaml:"api_key"`
	WifiSsid     string `yaml:"wifi_ssid"`
	WifiPassword string `yaml:"wifi_password"`
}

// LoadSecrets reads the secrets file. The API key is mandatory.
func LoadSecrets(filename string) (*Secrets, error) {
	rawSecrets, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s not found", ErrMissingSecrets, filename)
		}
		return nil, fmt.Errorf("unable to read %s: %w", filename, err)
	}

	secrets := &Secrets{}
	if err := yaml.Unmarshal(rawSecrets, secrets); err != nil {
		return nil, fmt.Errorf("unable to interpret %s: %w", filename, err)
	}
	if secrets.ApiKey == "" {
		return nil, fmt.Errorf("%w: api_key is empty in %s", ErrMissingSecrets, filename)
	}
	return secrets, nil
}
