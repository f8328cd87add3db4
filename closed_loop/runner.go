package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	control "rate-ctrl-core/closed_loop/rate_control"
	"rate-ctrl-core/utils"
)

// feedbackTimeout is how long the CAN loop tolerates missing gyro frames before warning.
const feedbackTimeout = 500 * time.Millisecond

type RunnerConfig struct {
	Mode         string
	Interface    string
	MapPath      string
	ScenarioPath string
	PlotPath     string
}

type Runner struct {
	cfg     RunnerConfig
	log     *utils.Logger
	metrics *utils.ControlMetrics
	scen    Scenario

	gains  *control.GainBank
	ctrl   *control.RateController
	shaper *SetpointShaper
	trace  *Trace

	// CAN mode only
	cmap    *utils.CANMap
	writer  utils.CANWriter
	reader  utils.CANReader
	txFrame *utils.FrameDef
}

func NewRunner(ctx context.Context, cfg RunnerConfig, log *utils.Logger, metrics *utils.ControlMetrics) (*Runner, error) {
	scen, err := LoadScenario(cfg.ScenarioPath)
	if err != nil {
		return nil, fmt.Errorf("load scenario: %w", err)
	}
	if cfg.Mode == "" {
		cfg.Mode = scen.Meta.Mode
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeSim
	}

	r, err := newRunner(cfg, scen, log, metrics)
	if err != nil {
		return nil, err
	}

	switch cfg.Mode {
	case ModeSim:
		return r, nil
	case ModeCAN:
	default:
		return nil, fmt.Errorf("unknown mode %q", cfg.Mode)
	}

	cmap, err := utils.LoadCANMap(cfg.MapPath)
	if err != nil {
		return nil, fmt.Errorf("load can map: %w", err)
	}

	writer, err := utils.NewSocketCANWriter(ctx, cfg.Interface)
	if err != nil {
		return nil, err
	}
	reader, err := utils.NewSocketCANReader(ctx, cfg.Interface)
	if err != nil {
		writer.Close()
		return nil, err
	}
	if err := r.attachBus(cmap, reader, writer); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

// newRunner builds the controller side of a run from an already loaded scenario.
func newRunner(cfg RunnerConfig, scen Scenario, log *utils.Logger, metrics *utils.ControlMetrics) (*Runner, error) {
	gains := control.NewGainBank(scen.Gains.One, scen.Gains.Two)
	gains.SaveBaseline(control.ProfileOne)

	ctrl, err := control.NewRateController(scen.Controller, gains)
	if err != nil {
		return nil, fmt.Errorf("controller: %w", err)
	}

	r := &Runner{
		cfg:     cfg,
		log:     log,
		metrics: metrics,
		scen:    scen,
		gains:   gains,
		ctrl:    ctrl,
		shaper:  NewSetpointShaper(scen.Rates, scen.Level),
		trace:   &Trace{},
	}

	c := scen.Controller
	log.Info("Controller: rule=%s derivative=%s dfilter=%s/%.0fHz antiwindup=%v transient=%v vcomp=%v",
		c.IntegralRule, c.DerivativeMode, c.DTermFilter.Kind, c.DTermFilter.CutoffHz,
		c.AntiWindup, c.TransientWindup.Enabled, c.VoltageComp.Enabled)
	live := gains.Live(control.ProfileOne)
	log.Info("Gains one: kp=%v ki=%v kd=%v", live.Kp, live.Ki, live.Kd)
	return r, nil
}

func (r *Runner) attachBus(cmap *utils.CANMap, reader utils.CANReader, writer utils.CANWriter) error {
	if err := cmap.RequireFrames(utils.FrameGyroRate, utils.FrameRCCommand, utils.FrameBattery, utils.FramePIDOutput); err != nil {
		return fmt.Errorf("can map: %w", err)
	}
	fd, _ := cmap.FrameByName(utils.FramePIDOutput)
	if fd.CycleMS <= 0 {
		return fmt.Errorf("frame %s has invalid cycle_ms %d", fd.Name, fd.CycleMS)
	}
	r.cmap = cmap
	r.reader = reader
	r.writer = writer
	r.txFrame = fd
	return nil
}

func (r *Runner) Close() {
	if r.reader != nil {
		_ = r.reader.Close()
	}
	if r.writer != nil {
		_ = r.writer.Close()
	}
}

// Trace returns the decimated samples recorded so far.
func (r *Runner) Trace() *Trace { return r.trace }

func (r *Runner) Run(ctx context.Context) (RunSummary, error) {
	r.log.Info("Starting run: scenario=%q mode=%s duration=%.2fs dt=%.4fs",
		r.scen.Meta.Name, r.cfg.Mode, r.scen.Timing.DurationS, r.scen.Timing.DtS)

	var (
		sum RunSummary
		err error
	)
	if r.cfg.Mode == ModeCAN {
		sum, err = r.runCAN(ctx)
	} else {
		sum, err = r.runSim(ctx)
	}
	r.log.Info("Run finished: %s", sum)

	if r.cfg.PlotPath != "" && len(r.trace.Samples) > 0 {
		if perr := r.trace.SavePlot(r.cfg.PlotPath, r.scen.Meta.Name); perr != nil {
			r.log.Error("Plot export failed: %v", perr)
		} else {
			r.log.Info("Plot written to %s", r.cfg.PlotPath)
		}
	}
	return sum, err
}

// step runs one controller tick and records its effects.
func (r *Runner) step(t, loop, vbatt float64, cmd Command, gyro, attitude [control.NumAxes]float64, st *runStats) ([control.NumAxes]float64, error) {
	sp := r.shaper.Setpoints(cmd, attitude, loop)

	in := control.TickInput{
		LoopTimeS: loop,
		VBattFilt: vbatt,
		Flags:     cmd.Flags(),
	}
	for _, a := range control.Axes {
		in.Axes[a] = control.AxisInput{
			Error:    sp[a] - gyro[a],
			Gyro:     gyro[a],
			Setpoint: sp[a],
			Stick:    cmd.Stick[a],
		}
	}

	out, err := r.ctrl.Tick(in)
	if err != nil {
		return out, err
	}

	diag := r.ctrl.GetDiagnostics()
	st.observe(diag, in)

	if r.metrics != nil {
		samples := make([]utils.AxisSample, 0, control.NumAxes)
		for _, a := range control.Axes {
			d := diag.Axes[a]
			samples = append(samples, utils.AxisSample{
				Axis:     a.String(),
				Output:   d.Output,
				Integral: d.Integral,
				D:        d.D,
				Windup:   d.Windup,
			})
		}
		r.metrics.ObserveTick(loop, vbatt, diag.VCompensation, samples)
	}

	if st.logDue() {
		r.trace.Record(TraceSample{T: t, Setpoint: sp, Gyro: gyro, Output: out})
		if r.log.Enabled(utils.DEBUG) {
			for _, a := range control.Axes {
				d := diag.Axes[a]
				r.log.Debug("t=%.3f %s: sp=%.3f gyro=%.3f err=%.3f P=%.4f I=%.4f D=%.4f out=%.4f windup=%v",
					t, a, sp[a], gyro[a], d.Error, d.P, d.Integral, d.D, d.Output, d.Windup)
			}
		}
	}
	return out, nil
}

func (r *Runner) runSim(ctx context.Context) (RunSummary, error) {
	timing := r.scen.Timing
	steps := int(math.Round(timing.DurationS / timing.DtS))
	plant := NewRatePlant(r.scen.Plant)
	st := newRunStats(ModeSim, timing, r.scen.Controller.OutputLimit)

	var ticker *time.Ticker
	if timing.RealTimeMode {
		ticker = time.NewTicker(time.Duration(timing.DtS * float64(time.Second)))
		defer ticker.Stop()
	}

	t := 0.0
	sinceRotate := 0.0
	for i := 0; i < steps; i++ {
		if ticker != nil {
			select {
			case <-ctx.Done():
				return st.summary(), ctx.Err()
			case <-ticker.C:
			}
		} else if err := ctx.Err(); err != nil {
			return st.summary(), err
		}

		loop := timing.DtS
		if timing.LoopJitterS > 0 {
			if i%2 == 0 {
				loop += timing.LoopJitterS
			} else {
				loop -= timing.LoopJitterS
			}
		}

		cmd := EvalCommand(&r.scen, t)
		gyro := plant.Rates()
		out, err := r.step(t, loop, BatteryVoltage(&r.scen, t), cmd, gyro, plant.Attitude(), st)
		if err != nil {
			return st.summary(), fmt.Errorf("tick %d: %w", i, err)
		}
		plant.Step(out, loop)

		sinceRotate += loop
		if timing.RotateEvery > 0 && (i+1)%timing.RotateEvery == 0 {
			r.ctrl.RotateIntegral(gyro, sinceRotate)
			sinceRotate = 0
		}
		t += loop
	}

	return st.summary(), nil
}

// canState is the latest decoded view of the bus.
type canState struct {
	gyro     [control.NumAxes]float64
	attitude [control.NumAxes]float64
	cmd      Command
	armed    bool
	vbatt    float64
	lastGyro time.Time
}

type rxUpdate struct {
	name   string
	values map[string]float64
}

func (s *canState) apply(u rxUpdate, now time.Time) {
	v := u.values
	switch u.name {
	case utils.FrameGyroRate:
		s.gyro = [control.NumAxes]float64{v["gyro_roll_rps"], v["gyro_pitch_rps"], v["gyro_yaw_rps"]}
		s.lastGyro = now
	case utils.FrameRCCommand:
		s.cmd = Command{
			Stick:        [control.NumAxes]float64{v["stick_roll"], v["stick_pitch"], v["stick_yaw"]},
			LevelMode:    v["level_mode"] > 0.5,
			RaceMode:     v["race_mode"] > 0.5,
			OnGround:     v["on_ground"] > 0.5,
			InAir:        v["in_air"] > 0.5,
			GainProfile:  int(math.Round(v["gain_profile"])),
			StickProfile: int(math.Round(v["stick_profile"])),
		}
		s.armed = v["arm"] > 0.5
	case utils.FrameBattery:
		s.vbatt = v["vbatt_v"]
	case utils.FrameAttitude:
		s.attitude[control.Roll] = v["roll_rad"]
		s.attitude[control.Pitch] = v["pitch_rad"]
	}
}

func (r *Runner) runCAN(ctx context.Context) (RunSummary, error) {
	if r.cmap == nil {
		return RunSummary{}, errors.New("can mode without a bus")
	}
	fd := r.txFrame
	r.log.Info("Starting TX: frame=%s id=0x%X dlc=%d cycle_ms=%d iface=%s",
		fd.Name, fd.ID, fd.DLC, fd.CycleMS, r.cfg.Interface)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	rxChan := make(chan rxUpdate, 256)
	rxErr := make(chan error, 1)
	go r.receiveLoop(ctx, rxChan, rxErr)

	st := newRunStats(ModeCAN, ScenarioTiming{
		DtS:       float64(fd.CycleMS) / 1000,
		DurationS: r.scen.Timing.DurationS,
		LogHz:     r.scen.Timing.LogHz,
	}, r.scen.Controller.OutputLimit)
	state := canState{vbatt: r.scen.Battery.StartV, lastGyro: time.Now()}

	start := time.Now()
	last := start
	endAfter := time.Duration(r.scen.Timing.DurationS * float64(time.Second))
	ticker := time.NewTicker(time.Duration(fd.CycleMS) * time.Millisecond)
	defer ticker.Stop()

	var lastWarn time.Time
	sinceRotate := 0.0
	for {
		select {
		case <-ctx.Done():
			r.log.Warn("Context canceled; stopping TX")
			return st.summary(), ctx.Err()

		case err := <-rxErr:
			return st.summary(), fmt.Errorf("can receive: %w", err)

		case u := <-rxChan:
			state.apply(u, time.Now())
			st.framesReceived++
			if r.metrics != nil {
				r.metrics.ObserveFrame(u.name)
			}

		case now := <-ticker.C:
			elapsed := now.Sub(start)
			if elapsed > endAfter {
				return st.summary(), nil
			}

			if age := now.Sub(state.lastGyro); age > feedbackTimeout && now.Sub(lastWarn) > time.Second {
				r.log.Warn("No gyro feedback for %.1f ms", age.Seconds()*1000)
				lastWarn = now
			}

			loop := now.Sub(last).Seconds()
			last = now

			cmd := state.cmd
			if !state.armed {
				cmd.OnGround = true
			}

			out, err := r.step(elapsed.Seconds(), loop, state.vbatt, cmd, state.gyro, state.attitude, st)
			if err != nil {
				r.log.Error("Tick failed at t=%.3f: %v", elapsed.Seconds(), err)
				continue
			}

			sinceRotate += loop
			if every := r.scen.Timing.RotateEvery; every > 0 && st.ticks%uint64(every) == 0 {
				r.ctrl.RotateIntegral(state.gyro, sinceRotate)
				sinceRotate = 0
			}

			frame, err := r.cmap.EncodeEinrideFrame(fd.Name, map[string]float64{
				"pid_roll":  out[control.Roll],
				"pid_pitch": out[control.Pitch],
				"pid_yaw":   out[control.Yaw],
				"tick_seq":  float64(st.ticks % 65536),
			})
			if err != nil {
				r.log.Error("Encode failed at t=%.3f: %v", elapsed.Seconds(), err)
				return st.summary(), err
			}
			if err := r.writer.WriteFrame(ctx, frame); err != nil {
				r.log.Critical("Transmit failed at t=%.3f: %v", elapsed.Seconds(), err)
				return st.summary(), err
			}
			st.framesSent++
			r.log.Trace("TX id=0x%X len=%d data=% X", frame.ID, frame.Length, frame.Data[:frame.Length])
		}
	}
}

// receiveLoop continuously reads CAN frames and forwards the ones the map knows.
// A reader error other than a closed bus is terminal and is handed to failed.
func (r *Runner) receiveLoop(ctx context.Context, updates chan<- rxUpdate, failed chan<- error) {
	r.log.Debug("RX loop started")
	defer r.log.Debug("RX loop stopped")

	for {
		frame, err := r.reader.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, utils.ErrBusClosed) {
				return
			}
			r.log.Critical("RX failed: %v", err)
			failed <- err
			return
		}
		r.log.Trace("RX id=0x%X len=%d data=% X", frame.ID, frame.Length, frame.Data[:frame.Length])

		fd, err := r.cmap.FrameByID(frame.ID)
		if err != nil || fd.Direction != "rx" {
			continue
		}
		name, values, err := r.cmap.DecodeEinrideFrame(frame)
		if err != nil {
			r.log.Warn("RX decode 0x%X: %v", frame.ID, err)
			continue
		}

		select {
		case updates <- rxUpdate{name: name, values: values}:
		case <-ctx.Done():
			return
		}
	}
}
