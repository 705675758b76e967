package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/unklstewy/rotse-mount/internal/db"
	"github.com/unklstewy/rotse-mount/pkg/config"
	"github.com/unklstewy/rotse-mount/pkg/pointing"
)

// calibrate validates a calibration table and stores it as a new version.
// It also reports on and prunes the calibration store and slew log.
//
// The input is a JSON document:
//
//	{"name": "rotse3c", "samples": [{"ha": -69.997, "dec": -14.565, "encoder": {"x": 1853086, "y": 1299012}}, ...]}
func main() {
	configPath := flag.String("config", "configs/config.json", "Path to configuration file")
	tablePath := flag.String("file", "", "Calibration table JSON file")
	name := flag.String("name", "", "Table name (overrides the name in the file)")
	dryRun := flag.Bool("dry-run", false, "Validate only, do not store")
	list := flag.String("list", "", "List stored versions of the named table and exit")
	stats := flag.Bool("stats", false, "Show database statistics and exit")
	prune := flag.Duration("prune", 0, "Delete slew log entries older than this (e.g. 2160h) and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if *list != "" || *stats || *prune > 0 {
		database := connect(ctx, cfg)
		defer database.Close()
		switch {
		case *list != "":
			listVersions(ctx, database, *list)
		case *stats:
			showStats(ctx, database)
		default:
			n, err := database.PruneSlewLog(ctx, *prune)
			if err != nil {
				log.Fatalf("Failed to prune slew log: %v", err)
			}
			log.Printf("✓ Pruned %d slew log entries older than %v", n, *prune)
		}
		return
	}

	if *tablePath == "" {
		fmt.Fprintln(os.Stderr, "Usage: calibrate -file table.json [-name rotse3c] [-dry-run] | -list name | -stats | -prune age")
		os.Exit(2)
	}

	table, err := readTable(*tablePath)
	if err != nil {
		log.Fatalf("Failed to read calibration table: %v", err)
	}
	if *name != "" {
		table.Name = *name
	}

	model, err := pointing.NewInterpolationModel(table)
	if err != nil {
		log.Fatalf("Calibration table rejected: %v", err)
	}
	log.Printf("✓ %d samples triangulated", len(model.Table().Samples))

	if *dryRun {
		return
	}

	database := connect(ctx, cfg)
	defer database.Close()

	version, err := db.NewCalibrationRepository(database).Save(ctx, table, cfg.Site.Name)
	if err != nil {
		log.Fatalf("Failed to store calibration table: %v", err)
	}
	log.Printf("✓ Stored %q version %d", table.Name, version)
}

func readTable(path string) (pointing.CalibrationTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return pointing.CalibrationTable{}, err
	}
	var table pointing.CalibrationTable
	if err := json.Unmarshal(data, &table); err != nil {
		return pointing.CalibrationTable{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return table, nil
}

func connect(ctx context.Context, cfg *config.Config) *db.DB {
	database, err := db.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := database.InitSchema(ctx); err != nil {
		database.Close()
		log.Fatalf("Failed to initialize schema: %v", err)
	}
	return database
}

func listVersions(ctx context.Context, database *db.DB, name string) {
	versions, err := db.NewCalibrationRepository(database).Versions(ctx, name)
	if err != nil {
		log.Fatalf("Failed to list versions: %v", err)
	}
	if len(versions) == 0 {
		fmt.Printf("No stored versions of %q\n", name)
		return
	}
	for _, v := range versions {
		fmt.Printf("%s v%d  %3d samples  %s  %s\n", v.Name, v.Version, v.Samples, v.SiteName, v.CreatedAt.Format(time.RFC3339))
	}
}

func showStats(ctx context.Context, database *db.DB) {
	if !db.HealthCheck(ctx, database) {
		log.Fatal("Database is not answering")
	}
	stats, err := database.GetStats(ctx)
	if err != nil {
		log.Fatalf("Failed to read statistics: %v", err)
	}
	fmt.Printf("Calibration tables: %d\n", stats.CalibrationTables)
	fmt.Printf("Slews logged:       %d (%d rejected)\n", stats.SlewsLogged, stats.SlewsRejected)
}
