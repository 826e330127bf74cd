// Command mmwave runs the point-cloud capture service: it owns the serial
// session to the sensor, decodes and persists frames, and serves the HTTP
// control and status API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/mmwave.report/internal/api"
	"github.com/banshee-data/mmwave.report/internal/config"
	"github.com/banshee-data/mmwave.report/internal/db"
	"github.com/banshee-data/mmwave.report/internal/mmwave"
	"github.com/banshee-data/mmwave.report/internal/serialio"
	"github.com/banshee-data/mmwave.report/internal/session"
	"github.com/banshee-data/mmwave.report/internal/telemetry"
	"github.com/banshee-data/mmwave.report/internal/version"
)

var (
	configPath  = flag.String("config", "", "Path to JSON service config (defaults apply when empty)")
	listen      = flag.String("listen", "", "Listen address (overrides config)")
	controlPort = flag.String("control", "", "Control serial port (overrides config)")
	dataPort    = flag.String("data", "", "Data serial port (overrides config)")
	dbPath      = flag.String("db", "", "SQLite database path (overrides config)")
	devMode     = flag.Bool("dev", false, "Run against a synthetic replay stream instead of hardware")
	replayFile  = flag.String("replay", "", "Raw frame stream to replay in dev mode (synthesised when empty)")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("mmwave %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *controlPort != "" {
		cfg.ControlPort = *controlPort
	}
	if *dataPort != "" {
		cfg.DataPort = *dataPort
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	store, err := db.NewDB(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer store.Close()
	if err := store.MigrateUp(cfg.MigrationsDir); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	var factory serialio.Factory = serialio.RealFactory{}
	if *devMode {
		stream, err := replayStream(*replayFile)
		if err != nil {
			log.Fatalf("failed to prepare replay stream: %v", err)
		}
		factory = &serialio.MockFactory{Ports: map[string]serialio.Porter{
			"mock-control": serialio.NewTestPort(),
			"mock-data":    serialio.NewReplayPort(stream, 512, 50*time.Millisecond),
		}}
		cfg.ControlPort = "mock-control"
		cfg.DataPort = "mock-data"
	}

	ctrl := session.NewController(cfg.Session(), factory)
	hub := api.NewFrameHub()
	temps := telemetry.NewSimulator(ctrl.Capturing, nil)

	// The consumer runs on the capture dispatcher, decoupled from the
	// polling worker; database writes here cannot stall frame decoding.
	consumer := func(frame mmwave.Frame) {
		hub.Publish(frame)
		if runID, ok := ctrl.RunID(); ok {
			if err := store.RecordFrame(runID.String(), frame); err != nil {
				log.Printf("failed to record frame %d: %v", frame.Header.FrameNumber, err)
			}
		}
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Temperature telemetry task; independent cadence from frame delivery.
	wg.Add(1)
	go func() {
		defer wg.Done()
		temps.Run(ctx)
		log.Print("telemetry routine terminated")
	}()

	// In dev mode bring the session up immediately so the pipeline has
	// data without an operator in the loop.
	if *devMode {
		if err := ctrl.Connect(cfg.ControlPort, cfg.DataPort); err != nil {
			log.Fatalf("dev mode connect failed: %v", err)
		}
		if err := ctrl.StartCapture(consumer); err != nil {
			log.Fatalf("dev mode capture start failed: %v", err)
		}
		if id, ok := ctrl.RunID(); ok {
			if err := store.CreateRun(id.String(), cfg.ControlPort, cfg.DataPort); err != nil {
				log.Printf("failed to record dev run: %v", err)
			}
		}
	}

	// HTTP server goroutine.
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(ctrl, store, temps, hub, consumer).ServeMux()
		store.AttachAdminRoutes(mux)

		server := &http.Server{
			Addr:    cfg.Listen,
			Handler: mux,
		}

		go func() {
			log.Printf("listening on %s", cfg.Listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}
	}()

	wg.Wait()

	if ctrl.State() != session.StateIdle {
		if err := ctrl.Disconnect(); err != nil {
			log.Printf("disconnect on shutdown: %v", err)
		}
	}
	log.Printf("graceful shutdown complete")
}

// replayStream loads the raw dev-mode byte stream from path, or synthesises
// a plausible one when no recording is supplied.
func replayStream(path string) ([]byte, error) {
	if path != "" {
		return os.ReadFile(path)
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	var stream []byte
	for i := 0; i < 200; i++ {
		points := make([]mmwave.Point, 0, 12)
		for j := 0; j < 8+rng.Intn(5); j++ {
			points = append(points, mmwave.Point{
				X:        rng.Float32()*8 - 4,
				Y:        rng.Float32() * 9,
				Z:        rng.Float32()*2 - 1,
				Velocity: rng.Float32()*6 - 3,
			})
		}
		// A zeroed pad record per frame, as the firmware emits.
		points = append(points, mmwave.Point{})
		stream = append(stream, mmwave.EncodeFrame(mmwave.FrameHeader{
			Version:     0x03060000,
			Platform:    0xa1843,
			FrameNumber: uint32(i + 1),
			CPUCycles:   uint32(rng.Intn(1 << 30)),
		}, mmwave.TypePointCloud, points)...)
	}
	return stream, nil
}
