package control

import "fmt"

// Integral discretizations accepted by Config.IntegralRule.
const (
	RuleRectangular = "rectangular"
	RuleTrapezoidal = "trapezoidal"
	RuleSimpson     = "simpson"
)

// Derivative formulations accepted by Config.DerivativeMode.
const (
	DerivMeasurement      = "measurement"
	DerivTwoTap           = "two_tap"
	DerivFourTap          = "four_tap"
	DerivStickAccelerated = "stick_accelerated"
)

// Low-pass kinds accepted by FilterConfig.Kind.
const (
	FilterNone   = "none"
	FilterFirst  = "first"
	FilterSecond = "second"
)

// FilterConfig selects the low-pass applied to the raw derivative term
type FilterConfig struct {
	Kind     string  `json:"kind"`
	CutoffHz float64 `json:"cutoff_hz"`
}

// StickProfile holds the stick accelerator and stick transition per axis for one profile
type StickProfile struct {
	Accelerator [NumAxes]float64 `json:"accelerator"`
	Transition  [NumAxes]float64 `json:"transition"`
}

// TransientWindupConfig suppresses integration on roll and pitch while the setpoint
// moves away from its short-term average.
type TransientWindupConfig struct {
	Enabled   bool    `json:"enabled"`
	Threshold float64 `json:"threshold"`
	AverageHz float64 `json:"average_hz"`
	// Decimation is how many evaluations pass between average updates.
	Decimation int `json:"decimation"`
}

// VoltageCompConfig maps filtered battery voltage onto an output multiplier
type VoltageCompConfig struct {
	Enabled bool    `json:"enabled"`
	Factor  float64 `json:"factor"`
	LowV    float64 `json:"low_v"`
	HighV   float64 `json:"high_v"`
	// LevelModeAttenuation scales the factor while level mode is active. Zero disables it.
	LevelModeAttenuation float64 `json:"level_mode_attenuation"`
}

// Config holds the process-wide rate controller parameters
type Config struct {
	OutputLimit   [NumAxes]float64 `json:"output_limit"`
	IntegralLimit [NumAxes]float64 `json:"integral_limit"`

	SetpointWeighting bool             `json:"setpoint_weighting"`
	SetpointWeight    [NumAxes]float64 `json:"setpoint_weight"`

	IntegralRule   string `json:"integral_rule"`
	DerivativeMode string `json:"derivative_mode"`

	DTermFilter         FilterConfig `json:"dterm_filter"`
	FilterSamplePeriodS float64      `json:"filter_sample_period_s"`

	// NominalPeriodS is the loop period the derivative gains were tuned against.
	NominalPeriodS float64 `json:"nominal_period_s"`

	AntiWindup      bool                  `json:"anti_windup"`
	TransientWindup TransientWindupConfig `json:"transient_windup"`

	VoltageComp VoltageCompConfig `json:"voltage_comp"`

	GroundDecay float64 `json:"ground_decay"`

	StickProfiles [2]StickProfile `json:"stick_profiles"`
}

// DefaultConfig returns the stock tune.
func DefaultConfig() Config {
	return Config{
		OutputLimit:       [NumAxes]float64{0.6, 0.6, 0.3},
		IntegralLimit:     [NumAxes]float64{0.6, 0.6, 0.3},
		SetpointWeighting: true,
		SetpointWeight:    [NumAxes]float64{1.0, 1.0, 1.0},
		IntegralRule:      RuleTrapezoidal,
		DerivativeMode:    DerivMeasurement,
		DTermFilter: FilterConfig{
			Kind:     FilterSecond,
			CutoffHz: 100,
		},
		FilterSamplePeriodS: 0.001,
		NominalPeriodS:      0.0032,
		AntiWindup:          true,
		TransientWindup: TransientWindupConfig{
			Enabled:    false,
			Threshold:  0.1,
			AverageHz:  40,
			Decimation: 2,
		},
		VoltageComp: VoltageCompConfig{
			Enabled: false,
			Factor:  1.33,
			LowV:    3.0,
			HighV:   4.0,
		},
		GroundDecay: 0.98,
		StickProfiles: [2]StickProfile{
			{Accelerator: [NumAxes]float64{0, 0, 0}, Transition: [NumAxes]float64{0, 0, 0}},
			{Accelerator: [NumAxes]float64{1, 1, 1}, Transition: [NumAxes]float64{0, 0, 0}},
		},
	}
}

// Validate rejects parameter combinations that would misbehave silently at runtime.
func (c Config) Validate() error {
	for _, a := range Axes {
		if c.OutputLimit[a] <= 0 {
			return invalid("output_limit[%s] must be > 0, got %v", a, c.OutputLimit[a])
		}
		if c.IntegralLimit[a] <= 0 {
			return invalid("integral_limit[%s] must be > 0, got %v", a, c.IntegralLimit[a])
		}
		if c.SetpointWeighting && (c.SetpointWeight[a] < 0 || c.SetpointWeight[a] > 1) {
			return invalid("setpoint_weight[%s] must be within [0, 1], got %v", a, c.SetpointWeight[a])
		}
	}

	switch c.IntegralRule {
	case RuleRectangular, RuleTrapezoidal, RuleSimpson:
	default:
		return invalid("unknown integral_rule %q", c.IntegralRule)
	}

	switch c.DerivativeMode {
	case DerivMeasurement, DerivTwoTap, DerivFourTap, DerivStickAccelerated:
	default:
		return invalid("unknown derivative_mode %q", c.DerivativeMode)
	}

	switch c.DTermFilter.Kind {
	case FilterNone:
		if c.DerivativeMode == DerivStickAccelerated {
			return invalid("derivative_mode %q requires a dterm_filter", c.DerivativeMode)
		}
	case FilterFirst, FilterSecond:
		if c.DTermFilter.CutoffHz <= 0 {
			return invalid("dterm_filter.cutoff_hz must be > 0, got %v", c.DTermFilter.CutoffHz)
		}
		if c.FilterSamplePeriodS <= 0 {
			return invalid("filter_sample_period_s must be > 0, got %v", c.FilterSamplePeriodS)
		}
	default:
		return invalid("unknown dterm_filter.kind %q", c.DTermFilter.Kind)
	}

	if c.NominalPeriodS <= 0 {
		return invalid("nominal_period_s must be > 0, got %v", c.NominalPeriodS)
	}
	if c.GroundDecay < 0 || c.GroundDecay > 1 {
		return invalid("ground_decay must be within [0, 1], got %v", c.GroundDecay)
	}

	if tw := c.TransientWindup; tw.Enabled {
		if tw.Threshold <= 0 {
			return invalid("transient_windup.threshold must be > 0, got %v", tw.Threshold)
		}
		if tw.AverageHz <= 0 {
			return invalid("transient_windup.average_hz must be > 0, got %v", tw.AverageHz)
		}
		if tw.Decimation < 1 {
			return invalid("transient_windup.decimation must be >= 1, got %d", tw.Decimation)
		}
		if c.FilterSamplePeriodS <= 0 {
			return invalid("filter_sample_period_s must be > 0, got %v", c.FilterSamplePeriodS)
		}
	}

	if vc := c.VoltageComp; vc.Enabled {
		if vc.Factor < 1 {
			return invalid("voltage_comp.factor must be >= 1, got %v", vc.Factor)
		}
		if vc.HighV <= vc.LowV {
			return invalid("voltage_comp.high_v (%v) must exceed low_v (%v)", vc.HighV, vc.LowV)
		}
		if vc.LevelModeAttenuation < 0 {
			return invalid("voltage_comp.level_mode_attenuation must be >= 0, got %v", vc.LevelModeAttenuation)
		}
	}

	for p, sp := range c.StickProfiles {
		for _, a := range Axes {
			if sp.Accelerator[a] < 0 || sp.Accelerator[a] > 2.5 {
				return invalid("stick_profiles[%d].accelerator[%s] must be within [0, 2.5], got %v", p, a, sp.Accelerator[a])
			}
			if sp.Transition[a] < -1 || sp.Transition[a] > 1 {
				return invalid("stick_profiles[%d].transition[%s] must be within [-1, 1], got %v", p, a, sp.Transition[a])
			}
		}
	}

	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
