package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/opd-ai/transformsync/pkg/config"
	"github.com/opd-ai/transformsync/pkg/engine"
	"github.com/opd-ai/transformsync/pkg/network"
	"github.com/opd-ai/transformsync/pkg/transformsync"
	"github.com/sirupsen/logrus"
)

// Server configuration flags
var (
	port     = flag.Int("port", 7777, "Server port to listen on")
	logLevel = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
)

func main() {
	flag.Parse()

	// Configure logging
	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		logrus.WithError(err).Fatal("Invalid log level")
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.JSONFormatter{})

	logrus.WithFields(logrus.Fields{
		"port":      *port,
		"log_level": *logLevel,
	}).Info("Starting transform-sync dedicated server")

	// Load send-interval/buffer/tick-rate pacing from config.toml (or
	// its built-in defaults if no file is present).
	if err := config.Load(); err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	logrus.WithFields(logrus.Fields{
		"send_interval":          config.C.SendInterval,
		"buffer_time_multiplier": config.C.BufferTimeMultiplier,
		"tick_rate":              config.C.TickRate,
	}).Info("Loaded transform-sync pacing configuration")

	// Initialize game world
	world := engine.NewWorld()

	// Create and start game server
	server, err := network.NewGameServer(*port, world)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to create game server")
	}

	server.SetDriverConfig(transformsync.Config{
		SendInterval:         config.C.SendInterval,
		BufferTimeMultiplier: config.C.BufferTimeMultiplier,
		Channel:              transformsync.ChannelUnreliable,
	})
	server.SetTickRate(config.C.TickRate)

	stopWatch, err := config.Watch(func(old, new config.Config) {
		logrus.WithFields(logrus.Fields{
			"send_interval":          new.SendInterval,
			"buffer_time_multiplier": new.BufferTimeMultiplier,
		}).Info("Configuration reloaded, applying new transform-sync pacing")
		server.SetDriverConfig(transformsync.Config{
			SendInterval:         new.SendInterval,
			BufferTimeMultiplier: new.BufferTimeMultiplier,
			Channel:              transformsync.ChannelUnreliable,
		})
	})
	if err != nil {
		logrus.WithError(err).Warn("Failed to start configuration watcher, continuing without hot-reload")
	} else {
		defer stopWatch()
	}

	if err := server.Start(); err != nil {
		logrus.WithError(err).Fatal("Failed to start game server")
	}

	logrus.Info("Server started successfully, waiting for connections...")

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logrus.Info("Shutdown signal received, stopping server...")

	if err := server.Stop(); err != nil {
		logrus.WithError(err).Error("Error during server shutdown")
	}

	logrus.Info("Server stopped")
}
