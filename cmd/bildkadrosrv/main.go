package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jypelle/bildkadro/internal/srv"
	"github.com/jypelle/bildkadro/internal/srv/config"
	"github.com/jypelle/bildkadro/internal/srv/device"
	"github.com/jypelle/bildkadro/internal/srv/window"
	"github.com/jypelle/bildkadro/internal/version"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const configSuffix = "bildkadro"

func main() {

	// Logger
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339Nano})

	mainCommand := filepath.Base(os.Args[0])

	// region Flags and Commands definition

	// Debug Mode
	debugMode := flag.Bool("d", false, "Enable debug mode")

	// Simulation Mode
	simulationMode := flag.Bool("s", false, "Enable simulation mode")

	// User config dir
	defaultConfigDir := "./." + configSuffix
	userConfigDir, err := os.UserConfigDir()
	if err == nil {
		defaultConfigDir = filepath.Join(userConfigDir, configSuffix)
	}
	configDir := flag.String("c", defaultConfigDir, "Location of bildkadro config folder")

	// Usage
	flag.Usage = func() {
		fmt.Printf("\nUsage: %s [OPTIONS] [COMMAND]\n", mainCommand)
		fmt.Printf("\nAn unattended picture frame\n")
		fmt.Printf("\nOptions:\n")
		flag.PrintDefaults()
		fmt.Printf("\nCommands:\n")
		fmt.Printf("  run       Run server\n")
		fmt.Printf("  version   Show the version number\n")
		fmt.Printf("\nRun '%s COMMAND --help' for more information on a command.\n", mainCommand)
	}

	// run command
	runCmd := flag.NewFlagSet("run", flag.ExitOnError)

	runCmd.Usage = func() {
		fmt.Printf("\nUsage: %s run\n", mainCommand)
		fmt.Printf("\nRun the server\n")
	}

	// version command
	versionCmd := flag.NewFlagSet("version", flag.ExitOnError)

	versionCmd.Usage = func() {
		fmt.Printf("\nUsage: %s version\n", mainCommand)
		fmt.Printf("\nShow the version information\n")
	}

	// endregion

	// region Flags and Commands Parsing
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(0)
	}

	switch flag.Arg(0) {
	case "run":
		runCmd.Parse(flag.Args()[1:])
		if runCmd.NArg() > 0 {
			fmt.Printf("\n\"%s %s\" accepts no arguments\n", mainCommand, flag.Arg(0))
			runCmd.Usage()
			os.Exit(1)
		}
	case "version":
		versionCmd.Parse(flag.Args()[1:])
		if versionCmd.NArg() > 0 {
			fmt.Printf("\n\"%s %s\" accepts no arguments\n", mainCommand, flag.Arg(0))
			versionCmd.Usage()
			os.Exit(1)
		}
	default:
		fmt.Printf("\n%s is not a bildkadro command\n", flag.Args()[0])
		flag.Usage()
		os.Exit(1)
	}
	// endregion

	if versionCmd.Parsed() {
		fmt.Printf("Version %s\n", version.AppVersion.String())
		return
	}

	if *debugMode {
		logrus.SetLevel(logrus.DebugLevel)
		logrus.Printf("Debug mode activated")
	}

	// Listen stop signals, SIGUSR1 also halts the system
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()
	haltCh := make(chan os.Signal, 1)
	signal.Notify(haltCh, syscall.SIGUSR1)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	halt := false
	go func() {
		select {
		case <-haltCh:
			logrus.Infof("Received halt signal")
			halt = true
			cancel()
		case <-ctx.Done():
		}
	}()

	serverConfig := config.NewServerConfig(*configDir, *debugMode, *simulationMode)

	secrets, err := serverConfig.LoadSecrets()
	if err != nil {
		if serverConfig.IsRemote() {
			// Nothing can be shown without credentials: wait for the operator
			logrus.Errorf("Unable to load secrets, waiting for a signal: %v", err)
			<-ctx.Done()
			return
		}
		logrus.Debugf("No secrets: %v", err)
	}

	hardware, err := openHardware(serverConfig)
	if err != nil {
		logrus.Fatalf("Unable to open devices: %v", err)
	}

	serverApp := srv.NewServerApp(serverConfig, hardware, secrets)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return serverApp.Run(gctx)
	})
	if api := serverApp.ApiDevice(); api != nil {
		g.Go(func() error {
			// The frame keeps running without its control API
			if err := api.Start(); err != nil {
				logrus.Errorf("Control API stopped: %v", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			api.Stop()
			return nil
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, srv.ErrRebooting) {
		logrus.Errorf("Server failure: %v", err)
	}

	serverApp.Stop(halt)
}

func openHardware(serverConfig *config.ServerConfig) (*srv.Hardware, error) {
	if !serverConfig.SimulationMode {
		return srv.OpenHardware(serverConfig)
	}

	logrus.Printf("Simulation mode: press enter to touch the screen")
	surface := window.Open(serverConfig.DisplayParam.Width, serverConfig.DisplayParam.Height)
	touch := device.NewLineTouch(os.Stdin)
	hardware := &srv.Hardware{
		Surface:   surface,
		Backlight: surface,
		Touch:     touch,
		Notifier:  device.NoLed{},
	}
	hardware.AddCloser(touch)
	return hardware, nil
}
