package control

import "fmt"

// AxisInput is the per-axis sample for one tick.
type AxisInput struct {
	Error    float64 // setpoint - gyro
	Gyro     float64
	Setpoint float64
	Stick    float64 // normalized stick deflection, -1..1
}

// TickInput bundles everything one control tick consumes.
type TickInput struct {
	Axes      [NumAxes]AxisInput
	LoopTimeS float64
	VBattFilt float64
	Flags     Flags
}

// axisState is owned by the controller and mutated only by Evaluate and RotateIntegral.
type axisState struct {
	history  errorHistory
	err      float64
	integral float64
	output   float64 // read by the windup classifier on the next tick

	p, d   float64
	windup bool
}

// RateController is the per-tick rate PID for all three axes.
type RateController struct {
	cfg   Config
	gains *GainBank

	rule     IntegralRule
	deriv    DerivativeTerm
	dFilters [NumAxes]LowPass
	windup   *WindupClassifier

	// State
	axes [NumAxes]axisState

	// Per-tick values from Precalc
	live       GainSet
	flags      Flags
	loopTime   float64
	timeFactor float64
	vComp      float64
}

// NewRateController validates cfg and builds the strategies it selects.
func NewRateController(cfg Config, gains *GainBank) (*RateController, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if gains == nil {
		return nil, fmt.Errorf("%w: nil gain bank", ErrInvalidConfig)
	}
	rule, err := NewIntegralRule(cfg.IntegralRule)
	if err != nil {
		return nil, err
	}
	deriv, err := NewDerivativeTerm(cfg)
	if err != nil {
		return nil, err
	}

	return &RateController{
		cfg:        cfg,
		gains:      gains,
		rule:       rule,
		deriv:      deriv,
		dFilters:   newDTermFilters(cfg),
		windup:     NewWindupClassifier(cfg),
		live:       gains.Live(ProfileOne),
		loopTime:   cfg.NominalPeriodS,
		timeFactor: 1.0,
		vComp:      1.0,
	}, nil
}

// Config returns the configuration the controller was built with.
func (c *RateController) Config() Config { return c.cfg }

// Reset clears all axis state, derivative history and filter state.
func (c *RateController) Reset() {
	c.axes = [NumAxes]axisState{}
	c.deriv.Reset()
	for _, f := range c.dFilters {
		if f != nil {
			f.Reset()
		}
	}
	c.windup.Reset()
}

// groundDecay reports whether the integral should bleed off this tick.
func (c *RateController) groundDecay() bool {
	if c.flags.LevelMode && !c.flags.RaceMode {
		return c.flags.OnGround || !c.flags.InAir
	}
	return c.flags.OnGround
}

// Evaluate computes the limited output for one axis and updates that axis' state.
// The axis must be valid; Precalc must have run for the current tick.
func (c *RateController) Evaluate(axis Axis, in AxisInput) float64 {
	s := &c.axes[axis]
	outLimit := c.cfg.OutputLimit[axis]

	if c.groundDecay() {
		s.integral *= c.cfg.GroundDecay
	}

	s.windup = c.windup.Classify(axis, s.output, outLimit, in.Error, in.Setpoint)
	if !s.windup {
		s.integral += c.rule.Step(&s.history, in.Error, c.live.Ki[axis], c.loopTime)
	}
	s.integral = LimitAbs(s.integral, c.cfg.IntegralLimit[axis])

	kp := c.live.Kp[axis]
	var p float64
	if c.cfg.SetpointWeighting {
		b := c.cfg.SetpointWeight[axis]
		p = in.Error*b*kp - (1.0-b)*kp*in.Gyro
	} else {
		p = in.Error * kp
	}

	out := p + s.integral

	var d float64
	if kd := c.live.Kd[axis]; kd > 0 {
		d = c.deriv.Compute(axis, DerivativeInput{
			Gyro:       in.Gyro,
			Setpoint:   in.Setpoint,
			Stick:      in.Stick,
			Kd:         kd,
			TimeFactor: c.timeFactor,
			Profile:    c.flags.StickProfile,
		})
		if f := c.dFilters[axis]; f != nil {
			d = f.Apply(d)
		}
		out += d
	}

	out = LimitAbs(out, outLimit)

	// Compensation is applied after limiting and never re-clamped.
	if c.cfg.VoltageComp.Enabled {
		out *= c.vComp
	}

	s.err = in.Error
	s.p = p
	s.d = d
	s.output = out
	return out
}

// Tick runs Precalc and evaluates roll, pitch and yaw in order.
func (c *RateController) Tick(in TickInput) ([NumAxes]float64, error) {
	var out [NumAxes]float64
	if err := c.Precalc(in.LoopTimeS, in.VBattFilt, in.Flags); err != nil {
		return out, err
	}
	for _, a := range Axes {
		out[a] = c.Evaluate(a, in.Axes[a])
	}
	return out, nil
}

// Integral returns the accumulated integral term for an axis.
func (c *RateController) Integral(axis Axis) float64 { return c.axes[axis].integral }

// Output returns the last output for an axis.
func (c *RateController) Output(axis Axis) float64 { return c.axes[axis].output }

// AxisDiagnostics is the internal state of one axis after its last evaluation.
type AxisDiagnostics struct {
	Error    float64
	P        float64
	Integral float64
	D        float64
	Output   float64
	Windup   bool
}

// Diagnostics contains controller internal state for monitoring
type Diagnostics struct {
	TimeFactor    float64
	VCompensation float64
	Axes          [NumAxes]AxisDiagnostics
}

// GetDiagnostics returns current controller state for logging/debugging
func (c *RateController) GetDiagnostics() Diagnostics {
	d := Diagnostics{
		TimeFactor:    c.timeFactor,
		VCompensation: c.vComp,
	}
	for _, a := range Axes {
		s := c.axes[a]
		d.Axes[a] = AxisDiagnostics{
			Error:    s.err,
			P:        s.p,
			Integral: s.integral,
			D:        s.d,
			Output:   s.output,
			Windup:   s.windup,
		}
	}
	return d
}
