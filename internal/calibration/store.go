// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package calibration

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

var (
	// ErrNotCalibrated is returned by Store.Load when no table has been saved.
	ErrNotCalibrated = errors.New("no calibration stored")

	// ErrStorageWrite wraps a failure to persist a table.
	ErrStorageWrite = errors.New("calibration storage write failed")
)

// DefaultRetryInterval is how long FileStore waits between checks while the
// target filesystem is not writable.
const DefaultRetryInterval = 5 * time.Second

// Store persists a single calibration table.
type Store interface {
	Load() (*Table, error)
	Save(ctx context.Context, t *Table) error
}

// FileStore keeps the table as a JSON file. Save waits, logging each attempt,
// while the filesystem is read-only or busy, e.g. mounted by a host computer.
type FileStore struct {
	Path          string
	RetryInterval time.Duration

	probe func(dir string) error
}

// NewFileStore returns a store writing to path.
func NewFileStore(path string, retry time.Duration) *FileStore {
	if retry <= 0 {
		retry = DefaultRetryInterval
	}
	return &FileStore{Path: path, RetryInterval: retry, probe: probeWritable}
}

func (s *FileStore) Load() (*Table, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotCalibrated
	}
	if err != nil {
		return nil, fmt.Errorf("read calibration %s: %w", s.Path, err)
	}
	return Decode(data)
}

func (s *FileStore) Save(ctx context.Context, t *Table) error {
	data, err := Encode(t)
	if err != nil {
		return fmt.Errorf("%w: encode: %v", ErrStorageWrite, err)
	}

	dir := filepath.Dir(s.Path)
	if err := s.waitWritable(ctx, dir); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrStorageWrite, dir, err)
	}

	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageWrite, err)
	}
	if err := os.Rename(tmp, s.Path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: %v", ErrStorageWrite, err)
	}
	log.Printf("calibration: saved %d points to %s", t.Points(), s.Path)
	return nil
}

func (s *FileStore) waitWritable(ctx context.Context, dir string) error {
	probe := s.probe
	if probe == nil {
		probe = probeWritable
	}
	for {
		err := probe(dir)
		if err == nil {
			return nil
		}
		if !transient(err) {
			return err
		}
		log.Printf("calibration: %s not writable (%v), retrying in %s", dir, err, s.RetryInterval)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.RetryInterval):
		}
	}
}

// transient reports errors that clear once the host releases the filesystem.
func transient(err error) bool {
	return errors.Is(err, syscall.EROFS) || errors.Is(err, syscall.EBUSY) || errors.Is(err, syscall.EACCES)
}

func probeWritable(dir string) error {
	f, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}
