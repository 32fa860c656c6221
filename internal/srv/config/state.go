package config

import (
	"os"
	"sync"
	"time"

	"github.com/jypelle/bildkadro/internal/power"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const stateSaveDelay = 10 * time.Second

type ServerState struct {
	serverStateConfig     ServerStateConfig
	lock                  sync.RWMutex
	backupTimer           *time.Timer
	completeStateFilename string
}

func NewServerState(completeStateFilename string) *ServerState {
	serverState := &ServerState{
		completeStateFilename: completeStateFilename,
	}

	rawConfig, err := os.ReadFile(completeStateFilename)
	if err == nil {
		// Interpret state file
		err = yaml.Unmarshal(rawConfig, &serverState.serverStateConfig)
		if err != nil {
			logrus.Warnf("Unable to interpret state file, starting from defaults: %v", err)
			serverState.serverStateConfig = ServerStateConfig{Screen: "on"}
		}
	} else {
		logrus.Infof("Create default state file")
		serverState.SetScreen(power.SCREEN_ON)
	}

	return serverState
}

// Screen returns the last persisted screen state.
func (ss *ServerState) Screen() power.State {
	ss.lock.RLock()
	defer ss.lock.RUnlock()

	state, ok := power.ParseState(ss.serverStateConfig.Screen)
	if !ok {
		return power.SCREEN_ON
	}
	return state
}

func (ss *ServerState) SetScreen(state power.State) {
	ss.lock.Lock()
	defer ss.lock.Unlock()

	if state == power.SCREEN_ON {
		ss.serverStateConfig.Screen = "on"
	} else {
		ss.serverStateConfig.Screen = "off"
	}
	ss.scheduleSave()
}

func (ss *ServerState) scheduleSave() {
	if ss.backupTimer == nil {
		ss.backupTimer = time.AfterFunc(stateSaveDelay, func() {
			ss.lock.Lock()
			defer ss.lock.Unlock()
			ss.save()
		})
	} else {
		ss.backupTimer.Reset(stateSaveDelay)
	}
}

func (ss *ServerState) save() {
	logrus.Debugf("Save state file: %s", ss.completeStateFilename)
	rawConfig, err := yaml.Marshal(&ss.serverStateConfig)
	if err != nil {
		logrus.Errorf("Unable to serialize state file: %v", err)
		return
	}
	err = os.WriteFile(ss.completeStateFilename, rawConfig, 0660)
	if err != nil {
		logrus.Errorf("Unable to save state file: %v", err)
	}
}

// FlushSave writes a pending state change immediately.
func (ss *ServerState) FlushSave() {
	ss.lock.Lock()
	defer ss.lock.Unlock()
	if ss.backupTimer != nil {
		if ss.backupTimer.Stop() {
			ss.save()
		}
	}
}

type ServerStateConfig struct {
	Screen string `yaml:"screen"`
}
