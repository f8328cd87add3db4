package main

import (
	"math"

	control "rate-ctrl-core/closed_loop/rate_control"
)

// RatePlant is a decoupled first-order body-rate model with a constant
// disturbance rate per axis, plus wrapped Euler-rate attitude integration.
type RatePlant struct {
	cfg      PlantConfig
	rate     [control.NumAxes]float64
	attitude [control.NumAxes]float64
}

func NewRatePlant(cfg PlantConfig) *RatePlant {
	return &RatePlant{cfg: cfg}
}

// Step advances the plant by dt under the controller outputs u.
func (p *RatePlant) Step(u [control.NumAxes]float64, dt float64) {
	for _, a := range control.Axes {
		target := p.cfg.Gain[a]*u[a] + p.cfg.DisturbanceRPS[a]
		// exact discretization of tau*dr/dt = target - r
		alpha := 1 - math.Exp(-dt/p.cfg.TauS[a])
		p.rate[a] += alpha * (target - p.rate[a])
		p.attitude[a] = wrapAngle(p.attitude[a] + p.rate[a]*dt)
	}
}

// wrapAngle folds an angle into [-pi, pi).
func wrapAngle(x float64) float64 {
	return math.Mod(math.Mod(x+math.Pi, 2*math.Pi)+2*math.Pi, 2*math.Pi) - math.Pi
}

func (p *RatePlant) Rates() [control.NumAxes]float64    { return p.rate }
func (p *RatePlant) Attitude() [control.NumAxes]float64 { return p.attitude }

func (p *RatePlant) Reset() {
	p.rate = [control.NumAxes]float64{}
	p.attitude = [control.NumAxes]float64{}
}
