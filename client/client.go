package main

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"camstream/internal/discovery"
	"camstream/internal/logging"
	"camstream/internal/stream"

	"go.uber.org/zap"
)

//go:embed viewer.html
var viewerHTML string

var viewerTemplate = template.Must(template.New("viewer").Parse(viewerHTML))

var (
	port      = flag.Int("port", 8081, "viewer HTTP port")
	cameraArg = flag.String("camera", "", "camera server host:port (skips mDNS)")
	fps       = flag.Int("fps", stream.DefaultFPS, "frame rate requested from cameras")
	noMDNS    = flag.Bool("no-mdns", false, "disable mDNS browsing")
	debug     = flag.Bool("debug", false, "enable debug logging")
)

type viewer struct {
	cameras *cameraList
	fps     int
	logger  *zap.Logger
}

func (v *viewer) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	data := struct {
		Cameras []cameraEntry
		FPS     int
	}{Cameras: v.cameras.list(time.Now()), FPS: v.fps}
	if err := viewerTemplate.Execute(w, data); err != nil {
		v.logger.Debug("viewer page not delivered", zap.Error(err))
	}
}

func (v *viewer) handleCameras(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v.cameras.list(time.Now()))
}

func main() {
	flag.Parse()

	level := "info"
	if *debug {
		level = "debug"
	}
	logger, closeLog, err := logging.New(logging.Options{Level: level, Console: true})
	if err != nil {
		log.Fatalf("Error creating logger: %v", err)
	}
	defer closeLog()

	v := &viewer{
		cameras: newCameraList(30 * time.Second),
		fps:     stream.RateFromQuery(fmt.Sprint(*fps)),
		logger:  logger,
	}

	if *cameraArg != "" {
		base := *cameraArg
		if !strings.Contains(base, "://") {
			base = "http://" + base
		}
		v.cameras.addStatic(*cameraArg, strings.TrimSuffix(base, "/"))
	}

	if !*noMDNS {
		mgr := discovery.NewManager(discovery.Config{}, logger)
		mgr.Browse()
		defer mgr.Stop()

		go func() {
			for cam := range mgr.Cameras() {
				if v.cameras.seen(cam, time.Now()) {
					logger.Info("discovered camera", zap.String("name", cam.Name), zap.String("url", cam.StreamURL()))
				}
			}
		}()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", v.handleIndex)
	mux.HandleFunc("GET /cameras", v.handleCameras)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Channel to listen for errors coming from the listener.
	serverErrors := make(chan error, 1)

	go func() {
		logger.Info("viewer is starting", zap.String("addr", fmt.Sprintf("http://localhost:%d", *port)))
		serverErrors <- server.ListenAndServe()
	}()

	// Channel to listen for an interrupt or terminate signal from the OS.
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("viewer server failed", zap.Error(err))
		}

	case <-shutdown:
		logger.Info("viewer is shutting down")

		// Give outstanding requests a deadline for completion.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Warn("could not stop viewer gracefully", zap.Error(err))
			if err := server.Close(); err != nil {
				logger.Warn("could not force close viewer", zap.Error(err))
			}
		}
	}
}
