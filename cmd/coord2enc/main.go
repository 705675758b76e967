package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/unklstewy/rotse-mount/internal/db"
	"github.com/unklstewy/rotse-mount/pkg/config"
	"github.com/unklstewy/rotse-mount/pkg/coordinates"
	"github.com/unklstewy/rotse-mount/pkg/pointing"
)

// coord2enc prints the encoder setpoint the configured pointing model
// assigns to an RA/Dec at a given time. Nothing is sent to the mount.
func main() {
	configPath := flag.String("config", "configs/config.json", "Path to configuration file")
	raFlag := flag.String("ra", "", "Right ascension (hh:mm:ss.s or decimal hours)")
	decFlag := flag.String("dec", "", "Declination (±dd:mm:ss or decimal degrees)")
	atFlag := flag.String("time", "", "Observation time, RFC 3339 (default: now)")
	flag.Parse()

	if *raFlag == "" || *decFlag == "" {
		fmt.Fprintln(os.Stderr, "Usage: coord2enc -ra 00:42:44.3 -dec +41:16:09 [-time 2024-10-21T22:00:00Z]")
		os.Exit(2)
	}

	ra, err := coordinates.ParseRA(*raFlag)
	if err != nil {
		log.Fatalf("Invalid RA: %v", err)
	}
	dec, err := coordinates.ParseDec(*decFlag)
	if err != nil {
		log.Fatalf("Invalid Dec: %v", err)
	}
	at := time.Now().UTC()
	if *atFlag != "" {
		at, err = time.Parse(time.RFC3339, *atFlag)
		if err != nil {
			log.Fatalf("Invalid time: %v", err)
		}
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()
	var database *db.DB
	if cfg.Database.Enabled && cfg.Pointing.Calibration.TableName != "" {
		database, err = db.Connect(cfg.Database)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer database.Close()
	}

	model, err := db.PointingModel(ctx, cfg, database)
	if err != nil {
		log.Fatalf("Failed to build pointing model: %v", err)
	}

	site := cfg.SiteInfo()
	req := coordinates.ObservationRequest{RA: ra, Dec: dec, Time: at}
	sol, err := pointing.Point(req, site, model)
	if err != nil {
		log.Fatalf("Resolution failed: %v", err)
	}

	lst := coordinates.LocalSiderealTime(site.Longitude, at)
	fmt.Printf("Site:     %s (%.6f, %.6f)\n", site.Name, site.Latitude, site.Longitude)
	fmt.Printf("Time:     %s  LST %s\n", at.UTC().Format(time.RFC3339), coordinates.FormatRA(lst*coordinates.DegreesPerHour))
	fmt.Printf("Target:   RA %s  Dec %s\n", coordinates.FormatRA(ra), coordinates.FormatDec(dec))
	fmt.Printf("Local:    %s\n", sol.Position)
	fmt.Printf("Model:    %s\n", model.Kind())
	fmt.Printf("Encoder positions: RA = %d, Dec = %d\n", sol.Encoder.X, sol.Encoder.Y)
}
