package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"camstream/internal/camera"
	"camstream/internal/codec"
	"camstream/internal/codec/cvjpeg"
	"camstream/internal/config"
	"camstream/internal/control"
	"camstream/internal/discovery"
	"camstream/internal/httpapi"
	"camstream/internal/logging"
	"camstream/internal/telemetry"
	"camstream/internal/ui"

	"go.uber.org/zap"
)

var (
	configPath = flag.String("config", "", "path to camstream.yaml")
	port       = flag.Int("port", 0, "HTTP port (overrides config)")
	name       = flag.String("name", "", "server name for mDNS and the viewer page")
	logFile    = flag.String("log-file", "", "log file path (overrides config)")
	debug      = flag.Bool("debug", false, "enable debug logging")
	noMDNS     = flag.Bool("no-mdns", false, "disable mDNS advertisement")
	noTUI      = flag.Bool("no-tui", false, "disable the terminal UI")
	backend    = flag.String("backend", "", "camera backend: v4l2, opencv or synthetic")
	device     = flag.String("device", "", "camera device path (v4l2)")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}
	applyFlags(cfg)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid flags: %v", err)
	}

	useTUI := cfg.Server.TUI && !*noTUI
	logger, closeLog, err := logging.New(logging.Options{
		Level:   cfg.Log.Level,
		File:    cfg.Log.File,
		Console: !useTUI,
	})
	if err != nil {
		log.Fatalf("Error creating logger: %v", err)
	}
	defer closeLog()

	dev, err := openDevice(cfg, logger)
	if err != nil {
		logger.Warn("failed to open camera, streams will report hardware faults until restart",
			zap.String("backend", cfg.Camera.Backend), zap.Error(err))
		dev = offlineDevice{cause: err}
	}
	src := camera.NewSource(dev, logger)

	hub := telemetry.NewHub(logger)
	var drive *control.Actuator
	if cfg.Drive.Enabled {
		drive = control.NewActuator(control.LogMotor{Logger: logger.Named("motor")}, nil, logger)
	}

	api := httpapi.New(httpapi.Config{
		Name:          cfg.Server.Name,
		MaxStreams:    cfg.Server.MaxStreams,
		AverageWindow: cfg.Stream.AverageWindow,
	}, httpapi.Deps{
		Camera:   src,
		Codec:    codec.NewConverter(cvjpeg.New(), cfg.Stream.JPEGQuality),
		Actuator: drive,
		Hub:      hub,
		Logger:   logger,
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Channel to listen for errors coming from the listener
	serverErrors := make(chan error, 1)

	go func() {
		logger.Info("starting camera server",
			zap.String("name", cfg.Server.Name),
			zap.String("id", api.ID()),
			zap.String("addr", fmt.Sprintf("http://localhost:%d", cfg.Server.Port)),
			zap.String("backend", cfg.Camera.Backend))
		serverErrors <- httpServer.ListenAndServe()
	}()

	if cfg.Server.MDNS && !*noMDNS {
		mdnsMgr := discovery.NewManager(discovery.Config{
			ServiceName: cfg.Server.Name,
			Port:        cfg.Server.Port,
			Path:        "/stream",
		}, logger)
		if err := mdnsMgr.Advertise(); err != nil {
			logger.Warn("mDNS advertisement failed", zap.Error(err))
		}
		defer mdnsMgr.Stop()
	}

	var tui *ui.TUI
	var tuiQuit <-chan struct{}
	tuiDone := make(chan struct{})
	statusCtx, stopStatus := context.WithCancel(context.Background())
	defer stopStatus()
	if useTUI {
		tui = ui.New()
		tuiQuit = tui.QuitChan()
		go func() {
			defer close(tuiDone)
			if err := tui.Start(tuiStatus(cfg, hub, src)); err != nil {
				logger.Error("TUI error", zap.Error(err))
			}
		}()
		go func() {
			ticker := time.NewTicker(500 * time.Millisecond)
			defer ticker.Stop()
			for {
				select {
				case <-statusCtx.Done():
					return
				case <-ticker.C:
					tui.Update(tuiStatus(cfg, hub, src))
				}
			}
		}()
	}

	// Channel for handling OS signals
	osSignals := make(chan os.Signal, 1)
	signal.Notify(osSignals, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", zap.Error(err))
		}
	case sig := <-osSignals:
		logger.Info("received signal, shutting down", zap.Stringer("signal", sig))
	case <-tuiQuit:
		logger.Info("quit requested from TUI")
	}

	stopStatus()
	if tui != nil {
		tui.Stop()
		// The terminal must be restored before shutdown logs reach it.
		select {
		case <-tuiDone:
		case <-time.After(2 * time.Second):
			logger.Warn("TUI did not exit in time")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Streams never finish on their own; end them before the listener
	// waits for idle connections.
	if err := api.Shutdown(shutdownCtx); err != nil {
		logger.Warn("streams did not drain", zap.Error(err))
	}
	hub.Close()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("error during server shutdown", zap.Error(err))
		httpServer.Close()
	}

	if err := src.Close(); err != nil {
		logger.Warn("camera close failed", zap.Error(err))
	}
	st := src.Stats()
	logger.Info("server shutdown complete",
		zap.Uint64("frames_acquired", st.Acquired),
		zap.Uint64("frames_released", st.Released))
}

func applyFlags(cfg *config.Config) {
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *name != "" {
		cfg.Server.Name = *name
	}
	if cfg.Server.Name == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		cfg.Server.Name = "camstream-" + hostname
	}
	if *logFile != "" {
		cfg.Log.File = *logFile
	}
	if *debug {
		cfg.Log.Level = "debug"
	}
	if *backend != "" {
		cfg.Camera.Backend = *backend
	}
	if *device != "" {
		cfg.Camera.Device = *device
	}
}

func tuiStatus(cfg *config.Config, hub *telemetry.Hub, src *camera.Source) ui.Status {
	st := src.Stats()
	sessions := hub.Sessions()
	rows := make([]ui.StreamRow, 0, len(sessions))
	for _, s := range sessions {
		rows = append(rows, ui.StreamRow{
			ID:       s.ID,
			Remote:   s.Remote,
			FPS:      s.FPS,
			AvgFPS:   s.AverageFPS,
			AvgMS:    s.AverageMS,
			Sent:     s.Sent,
			Dups:     s.Duplicates,
			Faults:   s.HardwareFaults,
			Failures: s.EncodeFailures + s.AllocationFailures,
		})
	}
	return ui.Status{
		Name:     cfg.Server.Name,
		Port:     cfg.Server.Port,
		Backend:  cfg.Camera.Backend,
		Device:   cfg.Camera.Device,
		Streams:  rows,
		Limit:    cfg.Server.MaxStreams,
		Viewers:  hub.Subscribers(),
		Acquired: st.Acquired,
		Released: st.Released,
		Lent:     st.Outstanding,
	}
}
