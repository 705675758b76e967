package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"

	"github.com/unklstewy/rotse-mount/internal/db"
	"github.com/unklstewy/rotse-mount/internal/metrics"
	"github.com/unklstewy/rotse-mount/pkg/config"
	"github.com/unklstewy/rotse-mount/pkg/mount"
	"github.com/unklstewy/rotse-mount/pkg/pointing"
)

// mountctl is the interactive console for the ROTSE mount: it resolves
// RA/Dec requests through the configured pointing model and drives the
// mount controller over its serial line.
func main() {
	configPath := flag.String("config", "configs/config.json", "Path to configuration file")
	simulate := flag.Bool("simulate", false, "Drive an in-process simulated mount instead of the serial port")
	logPath := flag.String("log", "mountctl.log", "Log file (the terminal is used by the menu)")
	flag.Parse()

	// An explicit -config must exist; only the default path falls back to
	// built-in defaults.
	load := config.Load
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "config" {
			load = config.LoadFile
		}
	})

	logFile, err := tea.LogToFile(*logPath, "mountctl")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open log file: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()

	if err := run(*configPath, load, *simulate); err != nil {
		log.Printf("mountctl: %v", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, load func(string) (*config.Config, error), simulate bool) error {
	cfg, err := load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if simulate {
		cfg.Mount.Simulate = true
	}
	log.Printf("Configuration loaded from: %s", configPath)
	log.Printf("Site: %s at %.6f, %.6f, %.0fm", cfg.Site.Name, cfg.Site.Latitude, cfg.Site.Longitude, cfg.Site.Elevation)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var database *db.DB
	if cfg.Database.Enabled {
		database, err = db.ReconnectWithRetry(ctx, cfg.Database, 3, time.Second)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer database.Close()
		if err := database.InitSchema(ctx); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}

	model, err := db.PointingModel(ctx, cfg, database)
	if err != nil {
		return fmt.Errorf("failed to build pointing model: %w", err)
	}
	log.Printf("Pointing model: %s", model.Kind())

	collector, err := metrics.NewCollector(nil)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	conn, err := openMount(gctx, g, cfg)
	if err != nil {
		return err
	}

	opts := cfg.ClientOptions()
	opts.OnCommand = func(cmd mount.Command, err error) {
		collector.ObserveCommand(string(cmd.Verb)+cmd.Axis.String(), err)
	}
	client := mount.NewClient(conn, opts)
	g.Go(func() error { return client.Run(gctx) })

	if addr := cfg.Metrics.ListenAddress; addr != "" {
		serveMetrics(gctx, g, addr, collector)
	}

	ctrlOpts := []mount.ControllerOption{
		mount.WithMetrics(collector),
		mount.WithSunAvoidance(cfg.Mount.SunAvoidanceDeg),
	}
	if database != nil {
		ctrlOpts = append(ctrlOpts, mount.WithSlewRecorder(db.NewSlewRepository(database)))
	}
	controller := mount.NewController(client, pointing.NewActive(model), cfg.SiteInfo(), cfg.Mount.TravelLimits, ctrlOpts...)

	reload := func(ctx context.Context) (pointing.Model, error) {
		fresh, err := load(configPath)
		if err != nil {
			return nil, err
		}
		return db.PointingModel(ctx, fresh, database)
	}

	p := tea.NewProgram(newMenu(gctx, controller, cfg.SiteInfo(), reload), tea.WithAltScreen(), tea.WithContext(gctx))
	_, uiErr := p.Run()
	stop()
	if errors.Is(uiErr, tea.ErrProgramKilled) {
		uiErr = nil
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return uiErr
}

// openMount returns the connection to the mount controller, starting the
// simulator in g when the configuration asks for one.
func openMount(ctx context.Context, g *errgroup.Group, cfg *config.Config) (io.ReadWriteCloser, error) {
	if cfg.Mount.Simulate {
		log.Println("Mount: simulated")
		sim, conn := mount.NewSimulator()
		g.Go(func() error { return sim.Run(ctx) })
		return conn, nil
	}

	conn, err := mount.OpenSerial(cfg.SerialConfig())
	if err != nil {
		return nil, err
	}
	log.Printf("Mount: %s at %d baud", cfg.Mount.SerialPort, cfg.Mount.Baud)
	return conn, nil
}

// serveMetrics runs the Prometheus endpoint until ctx is done.
func serveMetrics(ctx context.Context, g *errgroup.Group, addr string, collector *metrics.Collector) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g.Go(func() error {
		log.Printf("Metrics: serving on %s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}
