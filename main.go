// Package main provides the voice-query capture service: it records a spoken
// query from the microphone, shows its live spectrum in the browser, and hands
// the finished recording to the search dispatcher.
//
// Usage:
//
//	voicecapture [-config path/to/config.json]
//
// If -config is not specified, the service looks for config.json in the same
// directory as the binary.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/oszuidwest/zwfm-voicecapture/internal/capture"
	"github.com/oszuidwest/zwfm-voicecapture/internal/config"
	"github.com/oszuidwest/zwfm-voicecapture/internal/device"
	"github.com/oszuidwest/zwfm-voicecapture/internal/eventlog"
	"github.com/oszuidwest/zwfm-voicecapture/internal/recording"
	"github.com/oszuidwest/zwfm-voicecapture/internal/search"
	"github.com/oszuidwest/zwfm-voicecapture/internal/server"
	"github.com/oszuidwest/zwfm-voicecapture/internal/util"
	"github.com/oszuidwest/zwfm-voicecapture/internal/version"
	"github.com/oszuidwest/zwfm-voicecapture/internal/visual"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: config.json next to binary)")
	showVersion := flag.Bool("version", false, "Print version information and exit")
	flag.Parse()

	if *showVersion {
		slog.Info("version info", "version", Version, "commit", Commit, "build_time", BuildTime)
		return
	}

	if *configPath == "" {
		execPath, err := os.Executable()
		if err != nil {
			slog.Error("failed to get executable path", "error", err)
			os.Exit(1)
		}
		*configPath = filepath.Join(filepath.Dir(execPath), "config.json")
	}

	slog.Info("using config file", "path", *configPath)

	cfg := config.New(*configPath)
	if err := cfg.Load(); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	snap := cfg.Snapshot()

	// Check FFmpeg availability
	ffmpegPath := util.ResolveFFmpegPath(snap.FFmpegPath)
	ffmpegAvailable := ffmpegPath != ""
	newEncoder := func() recording.Encoder { return recording.NewFFmpegEncoder(ffmpegPath) }
	if !ffmpegAvailable {
		slog.Warn("FFmpeg not found - recordings are stored as raw PCM",
			"configured_path", snap.FFmpegPath)
		newEncoder = func() recording.Encoder { return recording.NewPCMEncoder() }
	} else {
		slog.Info("FFmpeg found", "path", ffmpegPath)
	}

	logPath := snap.EventLogPath
	if logPath == "" {
		logPath = eventlog.DefaultLogPath(snap.WebPort)
	}
	logger, err := eventlog.NewLogger(logPath)
	if err != nil {
		slog.Warn("event log disabled", "path", logPath, "error", err)
		logPath = ""
	}

	captureOpts := capture.Options{
		NewEncoder: newEncoder,
		Spectrum:   snap.Spectrum,
	}
	var queryLog search.EventLog
	if logger != nil {
		captureOpts.Events = logger
		queryLog = logger
	}

	gateway := search.NewGateway(search.LogBackend{}, queryLog)
	acquirer := device.NewProcessAcquirer(snap.AudioInput, ffmpegPath)
	scheduler := visual.NewTickerScheduler(snap.FrameRate)
	hub := server.NewHub()

	captureOpts.Acquirer = acquirer
	captureOpts.Scheduler = scheduler
	captureOpts.Dispatcher = gateway
	captureOpts.Listener = hub
	controller := capture.New(captureOpts)

	serverOpts := ServerOptions{
		Config:          cfg,
		Controller:      controller,
		Queries:         gateway,
		Hub:             hub,
		Input:           acquirer,
		EventLogPath:    logPath,
		FFmpegAvailable: ffmpegAvailable,
	}

	var checker *version.Checker
	if snap.UpdateCheckEnabled {
		checker = version.NewChecker(version.Build{Version: Version, Commit: Commit, BuildTime: BuildTime}, version.Options{})
		checker.Start()
		serverOpts.Version = checker
	}

	srv := NewServer(serverOpts)
	httpServer := srv.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, util.ShutdownSignals()...)
	<-sigChan

	slog.Info("shutting down")

	if checker != nil {
		checker.Stop()
	}

	// Shut down HTTP server.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	if err := controller.Close(); err != nil {
		slog.Error("error closing capture controller", "error", err)
	}
	scheduler.Stop()

	if logger != nil {
		if err := logger.Close(); err != nil {
			slog.Error("error closing event log", "error", err)
		}
	}

	slog.Info("shutdown complete")
}
