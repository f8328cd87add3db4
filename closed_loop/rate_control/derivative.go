package control

import (
	"fmt"
	"math"
)

// DerivativeInput carries everything a derivative formulation may read for one axis.
type DerivativeInput struct {
	Gyro       float64
	Setpoint   float64
	Stick      float64 // normalized stick deflection, -1..1
	Kd         float64
	TimeFactor float64
	Profile    Profile // stick profile
}

// DerivativeTerm computes the raw (unfiltered) D contribution and advances its history.
// It is only called when kd > 0.
type DerivativeTerm interface {
	Compute(axis Axis, in DerivativeInput) float64
	Reset()
	Name() string
}

// MeasurementDerivative differentiates the gyro only.
type MeasurementDerivative struct {
	lastRate [NumAxes]float64
}

func (m *MeasurementDerivative) Compute(axis Axis, in DerivativeInput) float64 {
	d := -(in.Gyro - m.lastRate[axis]) * in.Kd * in.TimeFactor
	m.lastRate[axis] = in.Gyro
	return d
}

func (m *MeasurementDerivative) Reset()       { m.lastRate = [NumAxes]float64{} }
func (m *MeasurementDerivative) Name() string { return DerivMeasurement }

// TwoTapDerivative takes a half-weighted difference across two ticks.
type TwoTapDerivative struct {
	history [NumAxes][2]float64
}

func (t *TwoTapDerivative) Compute(axis Axis, in DerivativeInput) float64 {
	h := &t.history[axis]
	d := -(0.5*in.Gyro - 0.5*h[1]) * in.Kd * in.TimeFactor
	h[1] = h[0]
	h[0] = in.Gyro
	return d
}

func (t *TwoTapDerivative) Reset()       { t.history = [NumAxes][2]float64{} }
func (t *TwoTapDerivative) Name() string { return DerivTwoTap }

// fourTapCoeffs weight the current sample and history slots 0, 2 and 3.
var fourTapCoeffs = [4]float64{0.125, 0.25, -0.25, -0.125}

// FourTapDerivative is the flat-response differentiator over a four sample history.
type FourTapDerivative struct {
	history [NumAxes][4]float64
}

func (f *FourTapDerivative) Compute(axis Axis, in DerivativeInput) float64 {
	h := &f.history[axis]
	sum := fourTapCoeffs[0]*in.Gyro + fourTapCoeffs[1]*h[0] + fourTapCoeffs[2]*h[2] + fourTapCoeffs[3]*h[3]
	d := -sum * in.Kd * in.TimeFactor
	h[3] = h[2]
	h[2] = h[1]
	h[1] = h[0]
	h[0] = in.Gyro
	return d
}

func (f *FourTapDerivative) Reset()       { f.history = [NumAxes][4]float64{} }
func (f *FourTapDerivative) Name() string { return DerivFourTap }

// StickAcceleratedDerivative adds a weighted setpoint derivative to the measurement
// derivative. The weight depends on stick deflection and the active stick profile.
type StickAcceleratedDerivative struct {
	profiles     [numProfiles]StickProfile
	lastRate     [NumAxes]float64
	lastSetpoint [NumAxes]float64
}

// NewStickAcceleratedDerivative creates the formulation for the two stick profiles.
func NewStickAcceleratedDerivative(profiles [2]StickProfile) *StickAcceleratedDerivative {
	return &StickAcceleratedDerivative{profiles: profiles}
}

// TransitionWeight returns the setpoint weight for a stick deflection.
func TransitionWeight(stick, accelerator, transition float64) float64 {
	if accelerator < 1 {
		return math.Abs(stick)*transition + (1 - transition)
	}
	return math.Abs(stick)*(transition/accelerator) + (1 - transition)
}

func (s *StickAcceleratedDerivative) Compute(axis Axis, in DerivativeInput) float64 {
	sp := s.profiles[in.Profile.index()]
	acc := sp.Accelerator[axis]
	w := TransitionWeight(in.Stick, acc, sp.Transition[axis])

	d := (in.Setpoint-s.lastSetpoint[axis])*in.Kd*acc*w*in.TimeFactor -
		(in.Gyro-s.lastRate[axis])*in.Kd*in.TimeFactor
	s.lastSetpoint[axis] = in.Setpoint
	s.lastRate[axis] = in.Gyro
	return d
}

func (s *StickAcceleratedDerivative) Reset() {
	s.lastRate = [NumAxes]float64{}
	s.lastSetpoint = [NumAxes]float64{}
}

func (s *StickAcceleratedDerivative) Name() string { return DerivStickAccelerated }

// NewDerivativeTerm resolves the configured formulation.
func NewDerivativeTerm(cfg Config) (DerivativeTerm, error) {
	switch cfg.DerivativeMode {
	case DerivMeasurement:
		return &MeasurementDerivative{}, nil
	case DerivTwoTap:
		return &TwoTapDerivative{}, nil
	case DerivFourTap:
		return &FourTapDerivative{}, nil
	case DerivStickAccelerated:
		return NewStickAcceleratedDerivative(cfg.StickProfiles), nil
	default:
		return nil, fmt.Errorf("%w: unknown derivative mode %q", ErrInvalidConfig, cfg.DerivativeMode)
	}
}
