// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package calibration

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"github.com/relabs-tech/sky_quality/internal/sky"
)

// CaptureSamples is the number of reads taken per setting in a capture pass.
const CaptureSamples = 32

// DefaultSampleDelay separates consecutive capture reads.
const DefaultSampleDelay = 5 * time.Millisecond

var (
	// ErrUnexpectedResponse is returned when a response does not answer the
	// pending prompt. The procedure state is unchanged.
	ErrUnexpectedResponse = errors.New("response does not match pending prompt")

	// ErrNoReference is returned for a reference level that is not a finite number.
	ErrNoReference = errors.New("reference level must be a finite number")
)

// Reader supplies raw samples.
type Reader interface {
	ReadRawChannels() (sky.RawSample, error)
}

// Ranger is the range control a capture pass sweeps through.
type Ranger interface {
	Current() sky.RangeSetting
	Settings() []sky.RangeSetting
	Apply(s sky.RangeSetting) error
}

// PromptKind identifies what the procedure waits for.
type PromptKind int

const (
	PromptReady PromptKind = iota
	PromptReference
	PromptContinue
	PromptDone
)

func (k PromptKind) String() string {
	switch k {
	case PromptReady:
		return "ready"
	case PromptReference:
		return "reference"
	case PromptContinue:
		return "continue"
	case PromptDone:
		return "done"
	}
	return fmt.Sprintf("PromptKind(%d)", int(k))
}

// Prompt is what the operator is asked next. Report is set with
// PromptContinue, Result with PromptDone.
type Prompt struct {
	Kind   PromptKind
	Stage  int
	Report *PassReport
	Result *Result
}

// Response answers a Prompt. Build one with Confirm, Reference or Continue.
type Response struct {
	kind      PromptKind
	yes       bool
	reference float64
}

// Confirm answers PromptReady.
func Confirm(ready bool) Response { return Response{kind: PromptReady, yes: ready} }

// Reference answers PromptReference with the reference meter value.
func Reference(mpsas float64) Response { return Response{kind: PromptReference, reference: mpsas} }

// Continue answers PromptContinue: true starts another stage, false finishes.
func Continue(more bool) Response { return Response{kind: PromptContinue, yes: more} }

// SettingStats summarizes the capture at one setting.
type SettingStats struct {
	Setting   sky.RangeSetting `json:"setting"`
	Mean      float64          `json:"mean"`
	StdDev    float64          `json:"stddev"`
	Samples   int              `json:"samples"`
	Saturated int              `json:"saturated"`
	Accepted  bool             `json:"accepted"`
}

// PassReport is the outcome of one capture pass.
type PassReport struct {
	Stage     int            `json:"stage"`
	Reference float64        `json:"reference"`
	Settings  []SettingStats `json:"settings"`
	Accepted  int            `json:"accepted"`
}

// Result is the outcome of a finished procedure. Table is always set; Saved is
// false when the store rejected it, in which case the table is usable for the
// current session only.
type Result struct {
	Table   *Table
	Stages  int
	Saved   bool
	SaveErr error
}

// Procedure drives an operator through the calibration stages. Each stage
// captures every range setting against one reference value. It is not safe
// for concurrent use.
type Procedure struct {
	sensor      Reader
	ranger      Ranger
	store       Store
	SampleDelay time.Duration

	sleep func(time.Duration)
	now   func() time.Time

	table  *Table
	state  PromptKind
	stage  int
	report *PassReport
	result *Result
}

// NewProcedure creates a procedure. store may be nil, the result then stays
// unsaved.
func NewProcedure(sensor Reader, ranger Ranger, store Store) *Procedure {
	return &Procedure{
		sensor:      sensor,
		ranger:      ranger,
		store:       store,
		SampleDelay: DefaultSampleDelay,
		sleep:       time.Sleep,
		now:         time.Now,
	}
}

// Start discards any previous progress and returns the first prompt.
func (p *Procedure) Start() Prompt {
	p.table = NewTable(uuid.NewString(), p.now().UTC())
	p.state = PromptReady
	p.stage = 0
	p.report = nil
	p.result = nil
	return p.prompt()
}

// Pending returns the prompt currently waiting for a response.
func (p *Procedure) Pending() Prompt {
	return p.prompt()
}

// Respond advances the procedure with r. Errors from the sensor abort the pass
// and leave the procedure at the reference prompt of the same stage.
func (p *Procedure) Respond(ctx context.Context, r Response) (Prompt, error) {
	if p.table == nil {
		return Prompt{}, errors.New("calibration: procedure not started")
	}
	if r.kind != p.state {
		return p.prompt(), fmt.Errorf("%w: got %s, waiting for %s", ErrUnexpectedResponse, r.kind, p.state)
	}

	switch p.state {
	case PromptReady:
		if r.yes {
			p.state = PromptReference
		}

	case PromptReference:
		if math.IsNaN(r.reference) || math.IsInf(r.reference, 0) {
			return p.prompt(), ErrNoReference
		}
		report, err := p.capture(r.reference)
		if err != nil {
			return p.prompt(), err
		}
		p.report = &report
		p.state = PromptContinue

	case PromptContinue:
		p.report = nil
		if r.yes {
			p.stage++
			p.state = PromptReady
			break
		}
		p.finish(ctx)
		p.state = PromptDone

	case PromptDone:
		return p.prompt(), fmt.Errorf("%w: procedure finished", ErrUnexpectedResponse)
	}
	return p.prompt(), nil
}

func (p *Procedure) prompt() Prompt {
	return Prompt{Kind: p.state, Stage: p.stage, Report: p.report, Result: p.result}
}

func (p *Procedure) finish(ctx context.Context) {
	p.table.Sort()
	res := &Result{Table: p.table, Stages: p.stage + 1}
	if p.store == nil {
		res.SaveErr = errors.New("no calibration store configured")
	} else if err := p.store.Save(ctx, p.table); err != nil {
		log.Printf("calibration: unable to save table: %v", err)
		res.SaveErr = err
	} else {
		res.Saved = true
	}
	p.result = res
}

// capture sweeps every setting, adding one point per setting whose samples are
// all unsaturated and whose mean clears the visible floor. Points are only
// added once the whole sweep succeeded. The setting active before the pass is
// restored afterwards.
func (p *Procedure) capture(reference float64) (PassReport, error) {
	report := PassReport{Stage: p.stage, Reference: reference}
	prev := p.ranger.Current()

	type accepted struct {
		setting sky.RangeSetting
		point   Point
	}
	var points []accepted

	for _, s := range p.ranger.Settings() {
		st, err := p.captureSetting(s)
		if err != nil {
			if restoreErr := p.ranger.Apply(prev); restoreErr != nil {
				err = errors.Join(err, fmt.Errorf("calibration: restore %s: %w", prev, restoreErr))
			}
			return PassReport{}, err
		}
		if st.Saturated == 0 && st.Samples > 0 && st.Mean > sky.VisibleFloor {
			points = append(points, accepted{s, Point{Visible: st.Mean, MPSAS: reference}})
			st.Accepted = true
			report.Accepted++
		}
		report.Settings = append(report.Settings, st)
	}

	if err := p.ranger.Apply(prev); err != nil {
		return PassReport{}, err
	}
	for _, a := range points {
		p.table.Add(a.setting, a.point)
	}
	log.Printf("calibration: stage %d at %.2f mpsas, %d/%d settings accepted",
		p.stage, reference, report.Accepted, len(report.Settings))
	return report, nil
}

func (p *Procedure) captureSetting(s sky.RangeSetting) (SettingStats, error) {
	if err := p.ranger.Apply(s); err != nil {
		return SettingStats{}, err
	}
	// first read after a range change reflects the old setting
	if _, err := p.sensor.ReadRawChannels(); err != nil {
		return SettingStats{}, fmt.Errorf("calibration: flush read at %s: %w", s, err)
	}

	st := SettingStats{Setting: s}
	values := make([]float64, 0, CaptureSamples)
	for i := 0; i < CaptureSamples; i++ {
		if i > 0 && p.SampleDelay > 0 {
			p.sleep(p.SampleDelay)
		}
		sample, err := p.sensor.ReadRawChannels()
		if err != nil {
			return SettingStats{}, fmt.Errorf("calibration: read at %s: %w", s, err)
		}
		if sample.Saturated() {
			st.Saturated++
			continue
		}
		values = append(values, float64(sample.Visible()))
	}

	st.Samples = len(values)
	switch len(values) {
	case 0:
	case 1:
		st.Mean = values[0]
	default:
		st.Mean, st.StdDev = stat.MeanStdDev(values, nil)
	}
	return st, nil
}

// Operator answers the prompts of Run.
type Operator interface {
	ConfirmReady(stage int) (bool, error)
	ReferenceLevel(stage int) (float64, error)
	Continue(stage int, report PassReport) (bool, error)
}

// Run drives the whole procedure through op and returns the final result.
func (p *Procedure) Run(ctx context.Context, op Operator) (*Result, error) {
	prompt := p.Start()
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var resp Response
		switch prompt.Kind {
		case PromptReady:
			ok, err := op.ConfirmReady(prompt.Stage)
			if err != nil {
				return nil, err
			}
			resp = Confirm(ok)
		case PromptReference:
			v, err := op.ReferenceLevel(prompt.Stage)
			if err != nil {
				return nil, err
			}
			resp = Reference(v)
		case PromptContinue:
			more, err := op.Continue(prompt.Stage, *prompt.Report)
			if err != nil {
				return nil, err
			}
			resp = Continue(more)
		case PromptDone:
			return prompt.Result, nil
		}

		next, err := p.Respond(ctx, resp)
		if errors.Is(err, ErrNoReference) {
			log.Printf("calibration: %v", err)
			prompt = next
			continue
		}
		if err != nil {
			return nil, err
		}
		prompt = next
	}
}
