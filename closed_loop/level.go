package main

import (
	"time"

	"go.einride.tech/pid"

	control "rate-ctrl-core/closed_loop/rate_control"
)

// SetpointShaper turns pilot sticks into rate setpoints. In level mode roll and
// pitch go through an outer angle loop; yaw is always a direct rate command.
type SetpointShaper struct {
	rates RateLimits
	level LevelConfig

	roll  pid.Controller
	pitch pid.Controller

	wasLevel bool
}

func NewSetpointShaper(rates RateLimits, level LevelConfig) *SetpointShaper {
	cfg := pid.ControllerConfig{
		ProportionalGain: level.Kp,
		IntegralGain:     level.Ki,
		DerivativeGain:   level.Kd,
	}
	return &SetpointShaper{
		rates: rates,
		level: level,
		roll:  pid.Controller{Config: cfg},
		pitch: pid.Controller{Config: cfg},
	}
}

// Setpoints returns the rate setpoint per axis for this tick.
func (s *SetpointShaper) Setpoints(cmd Command, attitude [control.NumAxes]float64, dt float64) [control.NumAxes]float64 {
	var sp [control.NumAxes]float64
	for _, a := range control.Axes {
		sp[a] = cmd.Stick[a] * s.rates.MaxRateRPS[a]
	}
	if !cmd.LevelMode {
		s.wasLevel = false
		return sp
	}
	if !s.wasLevel {
		// entering level mode starts the angle loops from rest
		s.roll.Reset()
		s.pitch.Reset()
		s.wasLevel = true
	}

	interval := time.Duration(dt * float64(time.Second))
	for _, lp := range []struct {
		axis control.Axis
		ctrl *pid.Controller
	}{{control.Roll, &s.roll}, {control.Pitch, &s.pitch}} {
		lp.ctrl.Update(pid.ControllerInput{
			ReferenceSignal:  cmd.Stick[lp.axis] * s.level.MaxAngleRad,
			ActualSignal:     attitude[lp.axis],
			SamplingInterval: interval,
		})
		sp[lp.axis] = control.LimitAbs(lp.ctrl.State.ControlSignal, s.level.MaxRateRPS)
	}
	return sp
}
