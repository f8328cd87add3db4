package main

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	control "rate-ctrl-core/closed_loop/rate_control"
)

type AxisSummary struct {
	PeakOutput  float64
	RMSError    float64
	WindupTicks uint64
	Saturated   uint64
}

// RunSummary is reported at the end of every run.
type RunSummary struct {
	Mode           string
	Ticks          uint64
	SimulatedS     float64
	Elapsed        time.Duration
	FramesSent     uint64
	FramesReceived uint64
	Axes           [control.NumAxes]AxisSummary
}

func (s RunSummary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "mode=%s ticks=%s simulated=%s elapsed=%s",
		s.Mode, humanize.Comma(int64(s.Ticks)), humanize.SI(s.SimulatedS, "s"), humanize.SI(s.Elapsed.Seconds(), "s"))
	if s.Mode == ModeCAN {
		fmt.Fprintf(&b, " tx=%s rx=%s", humanize.Comma(int64(s.FramesSent)), humanize.Comma(int64(s.FramesReceived)))
	}
	for _, a := range control.Axes {
		ax := s.Axes[a]
		fmt.Fprintf(&b, " | %s peak=%.3f rms_err=%.4f windup=%s sat=%s",
			a, ax.PeakOutput, ax.RMSError, humanize.Comma(int64(ax.WindupTicks)), humanize.Comma(int64(ax.Saturated)))
	}
	return b.String()
}

type runStats struct {
	mode     string
	started  time.Time
	logEvery uint64
	limits   [control.NumAxes]float64

	ticks          uint64
	simulated      float64
	framesSent     uint64
	framesReceived uint64

	peak      [control.NumAxes]float64
	sqErr     [control.NumAxes]float64
	windup    [control.NumAxes]uint64
	saturated [control.NumAxes]uint64
}

func newRunStats(mode string, timing ScenarioTiming, limits [control.NumAxes]float64) *runStats {
	st := &runStats{mode: mode, started: time.Now(), limits: limits}
	if timing.LogHz > 0 {
		n := math.Round(1 / (timing.LogHz * timing.DtS))
		st.logEvery = uint64(math.Max(1, n))
	}
	return st
}

func (st *runStats) observe(d control.Diagnostics, in control.TickInput) {
	st.ticks++
	st.simulated += in.LoopTimeS
	for _, a := range control.Axes {
		ax := d.Axes[a]
		st.peak[a] = math.Max(st.peak[a], math.Abs(ax.Output))
		st.sqErr[a] += ax.Error * ax.Error
		if ax.Windup {
			st.windup[a]++
		}
		// saturation is judged before voltage compensation
		if d.VCompensation > 0 && math.Abs(ax.Output/d.VCompensation) >= st.limits[a]-1e-12 {
			st.saturated[a]++
		}
	}
}

// logDue reports whether the tick just observed falls on the log/trace decimation.
func (st *runStats) logDue() bool {
	return st.logEvery > 0 && (st.ticks-1)%st.logEvery == 0
}

func (st *runStats) summary() RunSummary {
	s := RunSummary{
		Mode:           st.mode,
		Ticks:          st.ticks,
		SimulatedS:     st.simulated,
		Elapsed:        time.Since(st.started),
		FramesSent:     st.framesSent,
		FramesReceived: st.framesReceived,
	}
	for _, a := range control.Axes {
		s.Axes[a].PeakOutput = st.peak[a]
		s.Axes[a].WindupTicks = st.windup[a]
		s.Axes[a].Saturated = st.saturated[a]
		if st.ticks > 0 {
			s.Axes[a].RMSError = math.Sqrt(st.sqErr[a] / float64(st.ticks))
		}
	}
	return s
}
