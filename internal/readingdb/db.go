// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package readingdb keeps the reading history and, optionally, the
// calibration table in a sqlite file.
package readingdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/relabs-tech/sky_quality/internal/calibration"
	"github.com/relabs-tech/sky_quality/internal/env"
	"github.com/relabs-tech/sky_quality/internal/sky"
)

type DB struct {
	*sql.DB
}

func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS readings (
			reading_id        INTEGER PRIMARY KEY AUTOINCREMENT,
			taken_unix_nanos  BIGINT NOT NULL,
			ch0               INTEGER NOT NULL,
			ch1               INTEGER NOT NULL,
			mpsas             DOUBLE,
			valid             BOOLEAN NOT NULL,
			lux               DOUBLE,
			gain_index        INTEGER NOT NULL,
			integration_index INTEGER NOT NULL,
			temp_c            DOUBLE,
			pressure_hpa      DOUBLE
		);
		CREATE INDEX IF NOT EXISTS idx_readings_taken ON readings (taken_unix_nanos);
		CREATE TABLE IF NOT EXISTS calibrations (
			name              TEXT PRIMARY KEY,
			table_json        BLOB NOT NULL,
			updated_at        TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &DB{db}, nil
}

func (db *DB) RecordReading(r sky.Reading) error {
	var tempC, pressure sql.NullFloat64
	if r.Ambient != nil {
		tempC = sql.NullFloat64{Float64: r.Ambient.Temperature, Valid: true}
		pressure = sql.NullFloat64{Float64: r.Ambient.PressureHPa, Valid: true}
	}

	_, err := db.Exec(`
		INSERT INTO readings (taken_unix_nanos, ch0, ch1, mpsas, valid, lux, gain_index, integration_index, temp_c, pressure_hpa)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Time.UnixNano(), r.Ch0, r.Ch1, r.MPSAS, r.Valid, r.Lux, r.Setting.Gain, r.Setting.Integration, tempC, pressure,
	)
	if err != nil {
		return fmt.Errorf("failed to record reading: %w", err)
	}
	return nil
}

// RecentReadings returns up to limit readings, newest first.
func (db *DB) RecentReadings(limit int) ([]sky.Reading, error) {
	rows, err := db.Query(`
		SELECT taken_unix_nanos, ch0, ch1, mpsas, valid, lux, gain_index, integration_index, temp_c, pressure_hpa
		FROM readings
		ORDER BY taken_unix_nanos DESC, reading_id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []sky.Reading
	for rows.Next() {
		var (
			r               sky.Reading
			taken           int64
			tempC, pressure sql.NullFloat64
		)
		if err := rows.Scan(&taken, &r.Ch0, &r.Ch1, &r.MPSAS, &r.Valid, &r.Lux, &r.Setting.Gain, &r.Setting.Integration, &tempC, &pressure); err != nil {
			return nil, err
		}
		r.Time = time.Unix(0, taken).UTC()
		if tempC.Valid {
			r.Ambient = &env.Sample{Temperature: tempC.Float64, PressureHPa: pressure.Float64}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CalibrationStore keeps a calibration table as a JSON blob under a name.
// Save retries every RetryInterval while the database is locked or read-only.
type CalibrationStore struct {
	db            *DB
	name          string
	RetryInterval time.Duration

	exec func(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (db *DB) CalibrationStore(name string) *CalibrationStore {
	return &CalibrationStore{db: db, name: name, RetryInterval: calibration.DefaultRetryInterval}
}

func (s *CalibrationStore) Load() (*calibration.Table, error) {
	var data []byte
	err := s.db.QueryRow(`SELECT table_json FROM calibrations WHERE name = ?`, s.name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, calibration.ErrNotCalibrated
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load calibration %q: %w", s.name, err)
	}
	return calibration.Decode(data)
}

func (s *CalibrationStore) Save(ctx context.Context, t *calibration.Table) error {
	data, err := calibration.Encode(t)
	if err != nil {
		return fmt.Errorf("%w: encode: %v", calibration.ErrStorageWrite, err)
	}
	exec := s.exec
	if exec == nil {
		exec = s.db.ExecContext
	}

	for {
		_, err = exec(ctx, `
			INSERT INTO calibrations (name, table_json, updated_at)
			VALUES (?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(name) DO UPDATE SET table_json = excluded.table_json, updated_at = excluded.updated_at`,
			s.name, data,
		)
		if err == nil {
			return nil
		}
		if !transient(err) {
			return fmt.Errorf("%w: %v", calibration.ErrStorageWrite, err)
		}

		log.Printf("storage: calibration not writable (%v), retrying in %s", err, s.RetryInterval)
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", calibration.ErrStorageWrite, ctx.Err())
		case <-time.After(s.RetryInterval):
		}
	}
}

// transient reports sqlite errors that clear once the other writer or the
// host mount lets go of the file.
func transient(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, s := range []string{"SQLITE_BUSY", "database is locked", "SQLITE_READONLY", "readonly database"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
