// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package refmeter reads a Unihedron SQM-LU reference meter over its USB serial port.
package refmeter

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/jacobsa/go-serial/serial"
)

// ErrBadReply is returned for a line that is not a reading reply.
var ErrBadReply = errors.New("unrecognized SQM reply")

// SQM talks to an SQM-LU. Requests are serialized.
type SQM struct {
	mu   sync.Mutex
	port io.ReadWriteCloser
	r    *bufio.Reader
}

// Open opens the SQM-LU on portName (e.g. /dev/ttyUSB0).
func Open(portName string, baud int) (*SQM, error) {
	options := serial.OpenOptions{
		PortName:              portName,
		BaudRate:              uint(baud),
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}

	port, err := serial.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQM serial port %s: %w", portName, err)
	}
	return New(port), nil
}

// New wraps an already open connection.
func New(port io.ReadWriteCloser) *SQM {
	return &SQM{port: port, r: bufio.NewReader(port)}
}

// ReadMPSAS requests one reading and returns the sky brightness.
func (s *SQM) ReadMPSAS() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := io.WriteString(s.port, "rx"); err != nil {
		return 0, fmt.Errorf("sqm: write request: %w", err)
	}
	line, err := s.r.ReadString('\n')
	if err != nil {
		return 0, fmt.Errorf("sqm: read reply: %w", err)
	}
	return ParseReading(line)
}

func (s *SQM) Close() error {
	return s.port.Close()
}

// ParseReading extracts the brightness from a reading reply such as
//
//	r, 19.29m,0000005915Hz,0000000000c,0000000.000s, 027.0C
func ParseReading(line string) (float64, error) {
	fields := strings.Split(strings.TrimSpace(line), ",")
	if len(fields) < 2 || strings.TrimSpace(fields[0]) != "r" {
		return 0, fmt.Errorf("%w: %q", ErrBadReply, line)
	}

	value, ok := strings.CutSuffix(strings.TrimSpace(fields[1]), "m")
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrBadReply, line)
	}
	mpsas, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: brightness %q: %v", ErrBadReply, value, err)
	}
	return mpsas, nil
}
