package control

import (
	"fmt"
	"math"
)

// Flags are the flight-mode and selector inputs written by the receiver subsystem.
type Flags struct {
	LevelMode bool
	RaceMode  bool
	OnGround  bool
	InAir     bool

	GainProfile  Profile
	StickProfile Profile
}

// TimeFactor returns nominalPeriodS / loopTimeS. A non-positive or NaN loop time is a fault
// in the caller's scheduler and is reported instead of divided through.
func TimeFactor(nominalPeriodS, loopTimeS float64) (float64, error) {
	if !(loopTimeS > 0) || math.IsInf(loopTimeS, 0) {
		return 0, fmt.Errorf("%w: %v s", ErrInvalidLoopTime, loopTimeS)
	}
	return nominalPeriodS / loopTimeS, nil
}

// VoltageCompensation maps battery voltage linearly from [LowV, HighV] onto [Factor, 1],
// clamps to [1, Factor] and applies the level-mode attenuation when set.
// Returns 1 when compensation is disabled.
func VoltageCompensation(vc VoltageCompConfig, vbattFilt float64, levelMode bool) float64 {
	if !vc.Enabled {
		return 1.0
	}
	v := MapRange(vbattFilt, vc.LowV, vc.HighV, vc.Factor, 1.0)
	if v > vc.Factor {
		v = vc.Factor
	}
	if v < 1.0 {
		v = 1.0
	}
	if levelMode && vc.LevelModeAttenuation > 0 {
		v *= vc.LevelModeAttenuation
	}
	return v
}

// Precalc runs once per tick before any axis is evaluated. It derives the timefactor and
// the voltage compensation factor and snapshots the live gains for the tick.
func (c *RateController) Precalc(loopTimeS, vbattFilt float64, flags Flags) error {
	if !flags.GainProfile.Valid() || !flags.StickProfile.Valid() {
		return fmt.Errorf("%w: gain=%d stick=%d", ErrInvalidProfile, flags.GainProfile, flags.StickProfile)
	}
	tf, err := TimeFactor(c.cfg.NominalPeriodS, loopTimeS)
	if err != nil {
		return err
	}
	c.loopTime = loopTimeS
	c.timeFactor = tf
	c.vComp = VoltageCompensation(c.cfg.VoltageComp, vbattFilt, flags.LevelMode)
	c.flags = flags
	c.live = c.gains.Live(flags.GainProfile)
	return nil
}
