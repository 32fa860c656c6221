package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jypelle/bildkadro/internal/power"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const paramFilename = "param.yaml"
const secretsFilename = "secrets.yaml"
const stateFilename = "state.yaml"

type ServerConfig struct {
	ConfigDir      string
	DebugMode      bool
	SimulationMode bool

	*ServerParam
	*ServerState
}

func NewServerConfig(configDir string, debugMode bool, simulationMode bool) *ServerConfig {
	serverConfig := &ServerConfig{
		ConfigDir:      configDir,
		DebugMode:      debugMode,
		SimulationMode: simulationMode,
	}

	// Check Configuration folder
	_, err := os.Stat(configDir)
	if err != nil {
		if os.IsNotExist(err) {
			logrus.Printf("Creation of config folder: %s", configDir)
			err = os.MkdirAll(configDir, 0770)
			if err != nil {
				logrus.Fatalf("Unable to create config folder: %v\n", err)
			}
		} else {
			logrus.Fatalf("Unable to access config folder: %s", configDir)
		}
	}

	serverConfig.ServerParam, err = LoadServerParam(serverConfig.GetCompleteParamFilename())
	if err != nil {
		logrus.Fatalf("%v", err)
	}
	if simulationMode {
		serverConfig.DisplayParam.Driver = "simulation"
	}

	// Open state file
	serverConfig.ServerState = NewServerState(serverConfig.GetCompleteStateFilename())

	return serverConfig
}

// LoadServerParam reads the param file, creating it from the embedded defaults when absent.
func LoadServerParam(filename string) (*ServerParam, error) {
	serverParam := &ServerParam{}

	rawConfig, err := os.ReadFile(filename)
	if err == nil {
		// Interpret param file on top of the defaults
		if err := yaml.Unmarshal(ParamDefaultFile, serverParam); err != nil {
			return nil, fmt.Errorf("unable to interpret default param file: %w", err)
		}
		if err := yaml.Unmarshal(rawConfig, serverParam); err != nil {
			return nil, fmt.Errorf("unable to interpret param file %s: %w", filename, err)
		}
	} else if os.IsNotExist(err) {
		logrus.Infof("Create default param file")
		if err := yaml.Unmarshal(ParamDefaultFile, serverParam); err != nil {
			return nil, fmt.Errorf("unable to interpret default param file: %w", err)
		}
		if err := os.WriteFile(filename, ParamDefaultFile, 0660); err != nil {
			return nil, fmt.Errorf("unable to save param file: %w", err)
		}
	} else {
		return nil, fmt.Errorf("unable to read param file %s: %w", filename, err)
	}

	if err := serverParam.Validate(); err != nil {
		return nil, fmt.Errorf("invalid param file %s: %w", filename, err)
	}
	return serverParam, nil
}

func (sc *ServerConfig) GetCompleteParamFilename() string {
	return filepath.Join(sc.ConfigDir, paramFilename)
}

func (sc *ServerConfig) GetCompleteSecretsFilename() string {
	return filepath.Join(sc.ConfigDir, secretsFilename)
}

func (sc *ServerConfig) GetCompleteStateFilename() string {
	return filepath.Join(sc.ConfigDir, stateFilename)
}

func (sc *ServerConfig) resolve(folder string) string {
	if filepath.IsAbs(folder) {
		return folder
	}
	return filepath.Join(sc.ConfigDir, folder)
}

func (sc *ServerConfig) GetCompleteTopicsFolder() string {
	return sc.resolve(sc.SourceParam.TopicsFolder)
}

func (sc *ServerConfig) GetCompleteImagesFolder() string {
	return sc.resolve(sc.SourceParam.ImagesFolder)
}

func (sc *ServerConfig) GetCompleteBlankImageFilename() string {
	return filepath.Join(sc.GetCompleteImagesFolder(), sc.SourceParam.BlankImage)
}

func (sc *ServerConfig) LoadSecrets() (*Secrets, error) {
	return LoadSecrets(sc.GetCompleteSecretsFilename())
}

// InitialScreenState resolves screen.initial, reading the persisted state for "last".
func (sc *ServerConfig) InitialScreenState() power.State {
	switch sc.ScreenParam.Initial {
	case "off":
		return power.SCREEN_OFF
	case "last":
		return sc.ServerState.Screen()
	}
	return power.SCREEN_ON
}
