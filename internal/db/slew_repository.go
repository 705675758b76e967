package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/unklstewy/rotse-mount/pkg/mount"
	"github.com/unklstewy/rotse-mount/pkg/pointing"
)

// SlewRepository appends Goto attempts to the slew log.
// It implements mount.SlewRecorder.
type SlewRepository struct {
	db *DB
}

var _ mount.SlewRecorder = (*SlewRepository)(nil)

// NewSlewRepository creates a new slew log repository.
func NewSlewRepository(db *DB) *SlewRepository {
	return &SlewRepository{db: db}
}

// slewArgs maps a record to the slew_log insert parameters. Rejected
// requests carry no hour angle or encoder values and are stored as NULL.
func slewArgs(rec mount.SlewRecord) []any {
	var ha sql.NullFloat64
	var x, y sql.NullInt64
	if rec.Outcome == mount.Outcome(nil) || rec.Encoder != (pointing.EncoderPair{}) {
		ha = sql.NullFloat64{Float64: rec.HourAngle, Valid: true}
		x = sql.NullInt64{Int64: int64(rec.Encoder.X), Valid: true}
		y = sql.NullInt64{Int64: int64(rec.Encoder.Y), Valid: true}
	}
	return []any{
		rec.RequestedAt.UTC(),
		rec.RA,
		rec.Dec,
		ha,
		string(rec.Model),
		x,
		y,
		rec.Outcome,
		rec.Error,
	}
}

// RecordSlew stores one Goto attempt. A dropped connection is retried once.
func (r *SlewRepository) RecordSlew(ctx context.Context, rec mount.SlewRecord) error {
	args := slewArgs(rec)
	err := WithRetry(ctx, func(ctx context.Context) error {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO slew_log (requested_at, ra, declination, hour_angle, model, encoder_x, encoder_y, outcome, error)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, args...)
		return err
	}, 1)
	if err != nil {
		return fmt.Errorf("failed to record slew: %w", err)
	}
	return nil
}

// Recent returns slew log entries since the given time, newest first.
func (r *SlewRepository) Recent(ctx context.Context, since time.Time, limit int) ([]mount.SlewRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT requested_at, ra, declination, hour_angle, model, encoder_x, encoder_y, outcome, error
		FROM slew_log
		WHERE requested_at >= $1
		ORDER BY requested_at DESC
		LIMIT $2
	`, since.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query slew log: %w", err)
	}
	defer rows.Close()

	var records []mount.SlewRecord
	for rows.Next() {
		var rec mount.SlewRecord
		var model string
		var ha sql.NullFloat64
		var x, y sql.NullInt64
		if err := rows.Scan(&rec.RequestedAt, &rec.RA, &rec.Dec, &ha, &model, &x, &y, &rec.Outcome, &rec.Error); err != nil {
			return nil, fmt.Errorf("failed to scan slew record: %w", err)
		}
		rec.Model = pointing.Kind(model)
		rec.HourAngle = ha.Float64
		rec.Encoder = pointing.EncoderPair{X: int(x.Int64), Y: int(y.Int64)}
		records = append(records, rec)
	}
	return records, rows.Err()
}
