package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/unklstewy/rotse-mount/pkg/config"
	"github.com/unklstewy/rotse-mount/pkg/pointing"
)

// ErrTableNotFound is returned when no version of a calibration table exists.
var ErrTableNotFound = errors.New("calibration table not found")

// queryRetries is the number of resends of a read on a dropped connection.
const queryRetries = 2

// CalibrationVersion describes one stored version of a calibration table.
type CalibrationVersion struct {
	Name      string    `json:"name"`
	Version   int       `json:"version"`
	SiteName  string    `json:"siteName"`
	Samples   int       `json:"samples"`
	CreatedAt time.Time `json:"createdAt"`
}

// CalibrationRepository stores versioned calibration tables.
// Tables are immutable once written; a recalibration adds a new version.
type CalibrationRepository struct {
	db *DB
}

// NewCalibrationRepository creates a new calibration repository.
func NewCalibrationRepository(db *DB) *CalibrationRepository {
	return &CalibrationRepository{db: db}
}

// Save validates table and stores it as the next version of table.Name.
// It returns the version number assigned.
func (r *CalibrationRepository) Save(ctx context.Context, table pointing.CalibrationTable, siteName string) (int, error) {
	if table.Name == "" {
		return 0, fmt.Errorf("%w: table name is required", pointing.ErrInvalidCalibrationTable)
	}
	if err := table.Validate(); err != nil {
		return 0, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Serialize concurrent saves of the same table name.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, table.Name); err != nil {
		return 0, fmt.Errorf("failed to lock calibration table: %w", err)
	}

	var version int
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) + 1 FROM calibration_tables WHERE name = $1`,
		table.Name,
	).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to determine next version: %w", err)
	}

	var tableID int
	err = tx.QueryRowContext(ctx, `
		INSERT INTO calibration_tables (name, version, site_name)
		VALUES ($1, $2, $3)
		RETURNING id
	`, table.Name, version, siteName).Scan(&tableID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert calibration table: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO calibration_samples (table_id, seq, hour_angle, declination, encoder_x, encoder_y)
		VALUES ($1, $2, $3, $4, $5, $6)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare sample insert: %w", err)
	}
	defer stmt.Close()

	for i, s := range table.Samples {
		if _, err := stmt.ExecContext(ctx, tableID, i, s.HourAngle, s.Declination, s.Encoder.X, s.Encoder.Y); err != nil {
			return 0, fmt.Errorf("failed to insert sample %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit calibration table: %w", err)
	}
	return version, nil
}

// Latest returns the highest version of the named table. Dropped
// connections are retried.
func (r *CalibrationRepository) Latest(ctx context.Context, name string) (pointing.CalibrationTable, error) {
	var table pointing.CalibrationTable
	err := WithRetry(ctx, func(ctx context.Context) error {
		var err error
		table, err = r.latest(ctx, name)
		return err
	}, queryRetries)
	return table, err
}

func (r *CalibrationRepository) latest(ctx context.Context, name string) (pointing.CalibrationTable, error) {
	var tableID, version int
	err := r.db.QueryRowContext(ctx, `
		SELECT id, version
		FROM calibration_tables
		WHERE name = $1
		ORDER BY version DESC
		LIMIT 1
	`, name).Scan(&tableID, &version)
	if err == sql.ErrNoRows {
		return pointing.CalibrationTable{}, fmt.Errorf("%w: %q", ErrTableNotFound, name)
	}
	if err != nil {
		return pointing.CalibrationTable{}, fmt.Errorf("failed to find calibration table: %w", err)
	}
	return r.load(ctx, tableID, name, version)
}

// Get returns a specific version of the named table.
func (r *CalibrationRepository) Get(ctx context.Context, name string, version int) (pointing.CalibrationTable, error) {
	var tableID int
	err := r.db.QueryRowContext(ctx,
		`SELECT id FROM calibration_tables WHERE name = $1 AND version = $2`,
		name, version,
	).Scan(&tableID)
	if err == sql.ErrNoRows {
		return pointing.CalibrationTable{}, fmt.Errorf("%w: %q version %d", ErrTableNotFound, name, version)
	}
	if err != nil {
		return pointing.CalibrationTable{}, fmt.Errorf("failed to find calibration table: %w", err)
	}
	return r.load(ctx, tableID, name, version)
}

func (r *CalibrationRepository) load(ctx context.Context, tableID int, name string, version int) (pointing.CalibrationTable, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT hour_angle, declination, encoder_x, encoder_y
		FROM calibration_samples
		WHERE table_id = $1
		ORDER BY seq
	`, tableID)
	if err != nil {
		return pointing.CalibrationTable{}, fmt.Errorf("failed to query calibration samples: %w", err)
	}
	defer rows.Close()

	table := pointing.CalibrationTable{Name: name, Version: version}
	for rows.Next() {
		var s pointing.CalibrationSample
		if err := rows.Scan(&s.HourAngle, &s.Declination, &s.Encoder.X, &s.Encoder.Y); err != nil {
			return pointing.CalibrationTable{}, fmt.Errorf("failed to scan calibration sample: %w", err)
		}
		table.Samples = append(table.Samples, s)
	}
	if err := rows.Err(); err != nil {
		return pointing.CalibrationTable{}, fmt.Errorf("failed to read calibration samples: %w", err)
	}
	return table, nil
}

// Versions lists the stored versions of the named table, newest first.
func (r *CalibrationRepository) Versions(ctx context.Context, name string) ([]CalibrationVersion, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT t.name, t.version, t.site_name, t.created_at, COUNT(s.seq)
		FROM calibration_tables t
		LEFT JOIN calibration_samples s ON s.table_id = t.id
		WHERE t.name = $1
		GROUP BY t.id
		ORDER BY t.version DESC
	`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to query calibration versions: %w", err)
	}
	defer rows.Close()

	var versions []CalibrationVersion
	for rows.Next() {
		var v CalibrationVersion
		if err := rows.Scan(&v.Name, &v.Version, &v.SiteName, &v.CreatedAt, &v.Samples); err != nil {
			return nil, fmt.Errorf("failed to scan calibration version: %w", err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// PointingModel builds the model selected in cfg, loading the latest stored
// calibration table when cfg names one. database may be nil when the
// configuration does not reference the store.
func PointingModel(ctx context.Context, cfg *config.Config, database *DB) (pointing.Model, error) {
	name := cfg.Pointing.Calibration.TableName
	if pointing.Kind(cfg.Pointing.Model) != pointing.KindInterpolation || name == "" {
		return cfg.PointingModel(nil)
	}
	if database == nil {
		return nil, fmt.Errorf("calibration table %q requires a database connection", name)
	}
	table, err := NewCalibrationRepository(database).Latest(ctx, name)
	if err != nil {
		return nil, err
	}
	return cfg.PointingModel(&table)
}
