// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/relabs-tech/sky_quality/internal/calibration"
	"github.com/relabs-tech/sky_quality/internal/config"
	"github.com/relabs-tech/sky_quality/internal/meter"
	"github.com/relabs-tech/sky_quality/internal/refmeter"
	"github.com/relabs-tech/sky_quality/internal/sky"
)

// RunCalibration walks the operator through a calibration on the terminal.
func RunCalibration() error {
	cfg := config.Get()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r, err := openRig(cfg)
	if err != nil {
		return err
	}
	defer r.Close()

	st, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	op := newConsoleOperator(os.Stdin, os.Stdout)
	if cfg.SQMSerialPort != "" {
		sqm, err := refmeter.Open(cfg.SQMSerialPort, cfg.SQMBaudRate)
		if err != nil {
			log.Printf("calibration: reference meter unavailable, enter values by hand: %v", err)
		} else {
			defer sqm.Close()
			op.suggest = sqm.ReadMPSAS
			log.Printf("calibration: reference meter on %s", cfg.SQMSerialPort)
		}
	}

	proc := calibration.NewProcedure(r.sensor, r.ranger, st.calibration)
	res, err := proc.Run(ctx, op)
	if err != nil {
		return fmt.Errorf("calibration: %w", err)
	}
	op.summary(res)
	if res.Saved {
		return nil
	}

	// the table only lives in this process, keep measuring with it
	m := meter.New(r.sensor, r.ranger)
	useResult(m, res)
	fmt.Fprintln(os.Stdout, "Measuring with the unsaved table, Ctrl-C to stop.")
	interval := time.Duration(cfg.MeterSampleInterval) * time.Millisecond
	return measureLoop(ctx, m, interval, func(reading sky.Reading) {
		fmt.Fprintln(os.Stdout, formatReadingLine(reading))
	})
}

// consoleOperator answers procedure prompts from a line-based terminal.
type consoleOperator struct {
	in  *bufio.Reader
	out io.Writer

	// suggest, when set, pre-fills the reference level.
	suggest func() (float64, error)
}

func newConsoleOperator(in io.Reader, out io.Writer) *consoleOperator {
	return &consoleOperator{in: bufio.NewReader(in), out: out}
}

func (o *consoleOperator) readLine() (string, error) {
	line, err := o.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (o *consoleOperator) ConfirmReady(stage int) (bool, error) {
	fmt.Fprintf(o.out, "\n=== Stage %d ===\n", stage+1)
	fmt.Fprintln(o.out, "Point the sensor and the reference meter at the same patch of sky.")
	fmt.Fprint(o.out, "Ready? [y/N]: ")
	line, err := o.readLine()
	if err != nil {
		return false, err
	}
	return yes(line), nil
}

func (o *consoleOperator) ReferenceLevel(stage int) (float64, error) {
	var suggested *float64
	if o.suggest != nil {
		v, err := o.suggest()
		if err != nil {
			log.Printf("calibration: reference meter read failed: %v", err)
		} else {
			suggested = &v
		}
	}

	for {
		if suggested != nil {
			fmt.Fprintf(o.out, "Reference brightness (mpsas) [%.2f]: ", *suggested)
		} else {
			fmt.Fprint(o.out, "Reference brightness (mpsas): ")
		}
		line, err := o.readLine()
		if err != nil {
			return 0, err
		}
		if line == "" && suggested != nil {
			return *suggested, nil
		}
		v, err := strconv.ParseFloat(line, 64)
		if err != nil {
			fmt.Fprintf(o.out, "  %q is not a number\n", line)
			continue
		}
		return v, nil
	}
}

func (o *consoleOperator) Continue(stage int, report calibration.PassReport) (bool, error) {
	fmt.Fprintf(o.out, "\nStage %d at %.2f mpsas: %d of %d settings usable\n",
		stage+1, report.Reference, report.Accepted, len(report.Settings))
	fmt.Fprintln(o.out, "  setting     mean      stddev   saturated")
	for _, s := range report.Settings {
		mark := " "
		if s.Accepted {
			mark = "*"
		}
		fmt.Fprintf(o.out, "%s %-8s %9.1f %9.2f %6d/%d\n",
			mark, s.Setting, s.Mean, s.StdDev, s.Saturated, s.Samples+s.Saturated)
	}
	fmt.Fprint(o.out, "Capture another stage under a different sky? [y/N]: ")
	line, err := o.readLine()
	if err != nil {
		return false, err
	}
	return yes(line), nil
}

func (o *consoleOperator) summary(res *calibration.Result) {
	fmt.Fprintf(o.out, "\nCalibration %s: %d stages, %d points over %d settings\n",
		res.Table.ID, res.Stages, res.Table.Points(), len(res.Table.Settings()))
	if res.Saved {
		fmt.Fprintln(o.out, "Saved. The meter will use it on next start.")
		return
	}
	fmt.Fprintf(o.out, "WARNING: not saved (%v)\n", res.SaveErr)
}

func yes(s string) bool {
	switch strings.ToLower(s) {
	case "y", "yes":
		return true
	}
	return false
}
