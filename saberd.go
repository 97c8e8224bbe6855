package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"saberd/config"
	"saberd/logging"
	"saberd/platform"
	"saberd/saber"
	"saberd/telemetry"
)

func main() {
	cfile := flag.String("config", "config.yml", "path to the configuration file")
	realhw := flag.Bool("real-hw", false, "drive the real hardware instead of the terminal simulator")
	flag.Parse()

	if err := run(*cfile, *realhw); err != nil {
		fmt.Fprintf(os.Stderr, "saberd: %v\n", err)
		os.Exit(1)
	}
}

func run(cfile string, realhw bool) error {
	conf, err := config.Load(cfile, realhw)
	if err != nil {
		return err
	}

	// The simulator owns the terminal, so its log output is buffered
	// until the TUI log pane is up.
	logconf := conf.Logging
	if !realhw {
		logconf.BufferStartup = true
	}
	if err := logging.Init(logconf); err != nil {
		return err
	}
	defer logging.Close()

	ossignal := make(chan os.Signal, 1)
	signal.Notify(ossignal, os.Interrupt, syscall.SIGTERM)

	var pf platform.Platform
	if realhw {
		pf, err = platform.NewRaspberryPiPlatform(conf)
	} else {
		pf, err = platform.NewTUIPlatform(conf, ossignal)
	}
	if err != nil {
		return err
	}
	if err := pf.Start(); err != nil {
		return err
	}
	defer pf.Stop()

	var sinks []saber.TransitionSink
	if conf.Telemetry.Enabled {
		pub, err := telemetry.NewPublisher(conf.Telemetry)
		if err != nil {
			slog.Warn("Telemetry disabled", "error", err)
		} else {
			defer pub.Close()
			sinks = append(sinks, pub)
		}
	}

	app, err := saber.New(conf, pf, sinks...)
	if err != nil {
		return err
	}

	watchStop := make(chan struct{})
	defer close(watchStop)
	if err := config.Watch(conf, watchStop, app.ApplyTunables); err != nil {
		slog.Warn("Config watching disabled", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sig := <-ossignal
		slog.Info("Shutting down", "signal", sig)
		cancel()
	}()

	slog.Info("saberd starting", "config", cfile, "realhw", realhw)
	if err := app.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
