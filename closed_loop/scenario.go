package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	control "rate-ctrl-core/closed_loop/rate_control"
)

const (
	ModeSim = "sim"
	ModeCAN = "can"
)

// Scenario defines a complete test scenario
type Scenario struct {
	Meta       ScenarioMeta      `json:"meta"`
	Timing     ScenarioTiming    `json:"timing"`
	Controller control.Config    `json:"controller"`
	Gains      ScenarioGains     `json:"gains"`
	Rates      RateLimits        `json:"rates"`
	Level      LevelConfig       `json:"level"`
	Plant      PlantConfig       `json:"plant"`
	Battery    BatteryProfile    `json:"battery"`
	Defaults   Command           `json:"defaults"`
	Segments   []ScenarioSegment `json:"segments"`
}

// ScenarioMeta contains scenario metadata
type ScenarioMeta struct {
	Name        string `json:"name"`
	Version     int    `json:"version"`
	Description string `json:"description"`
	Mode        string `json:"mode,omitempty"` // "sim" or "can"; the -mode flag wins when set
}

// ScenarioTiming defines timing parameters
type ScenarioTiming struct {
	DtS          float64 `json:"dt_s"`
	DurationS    float64 `json:"duration_s"`
	LogHz        float64 `json:"log_hz"`
	RealTimeMode bool    `json:"real_time_mode"`
	RotateEvery  int     `json:"rotate_every"`  // ticks between integral rotations, 0 = off
	LoopJitterS  float64 `json:"loop_jitter_s"` // sim only: alternating +/- loop time error
}

type ScenarioGains struct {
	One control.GainSet `json:"one"`
	Two control.GainSet `json:"two"`
}

// RateLimits maps full stick deflection to a rate setpoint.
type RateLimits struct {
	MaxRateRPS [control.NumAxes]float64 `json:"max_rate_rps"`
}

// LevelConfig is the outer angle loop used for roll and pitch in level mode.
type LevelConfig struct {
	Kp          float64 `json:"kp"`
	Ki          float64 `json:"ki"`
	Kd          float64 `json:"kd"`
	MaxAngleRad float64 `json:"max_angle_rad"`
	MaxRateRPS  float64 `json:"max_rate_rps"`
}

// PlantConfig is a first-order rate response per axis.
type PlantConfig struct {
	TauS           [control.NumAxes]float64 `json:"tau_s"`
	Gain           [control.NumAxes]float64 `json:"gain"`
	DisturbanceRPS [control.NumAxes]float64 `json:"disturbance_rps"`
}

// BatteryProfile sags linearly from StartV to EndV over the scenario.
type BatteryProfile struct {
	StartV float64 `json:"start_v"`
	EndV   float64 `json:"end_v"`
}

// Command is what the pilot and flight-mode logic provide at an instant.
type Command struct {
	Stick        [control.NumAxes]float64 `json:"stick"`
	LevelMode    bool                     `json:"level_mode"`
	RaceMode     bool                     `json:"race_mode"`
	OnGround     bool                     `json:"on_ground"`
	InAir        bool                     `json:"in_air"`
	GainProfile  int                      `json:"gain_profile"`
	StickProfile int                      `json:"stick_profile"`
}

// ScenarioSegment defines a time segment with pilot commands
type ScenarioSegment struct {
	T0 float64 `json:"t0"`
	T1 float64 `json:"t1"` // negative runs to the end of the scenario
	Command
	Comment string `json:"comment,omitempty"`
}

func (c Command) Flags() control.Flags {
	return control.Flags{
		LevelMode:    c.LevelMode,
		RaceMode:     c.RaceMode,
		OnGround:     c.OnGround,
		InAir:        c.InAir,
		GainProfile:  control.Profile(c.GainProfile),
		StickProfile: control.Profile(c.StickProfile),
	}
}

func (c Command) validProfiles() bool {
	return control.Profile(c.GainProfile).Valid() && control.Profile(c.StickProfile).Valid()
}

// DefaultScenario holds the values used for every field a scenario file omits.
func DefaultScenario() Scenario {
	return Scenario{
		Meta: ScenarioMeta{Version: 1},
		Timing: ScenarioTiming{
			DtS:         0.001,
			DurationS:   5,
			LogHz:       10,
			RotateEvery: 1,
		},
		Controller: control.DefaultConfig(),
		Gains:      ScenarioGains{One: control.DefaultGains(), Two: control.DefaultGains()},
		Rates:      RateLimits{MaxRateRPS: [control.NumAxes]float64{8.7, 8.7, 8.7}},
		Level: LevelConfig{
			Kp:          6,
			Ki:          0,
			Kd:          0.05,
			MaxAngleRad: 0.75,
			MaxRateRPS:  4,
		},
		Plant: PlantConfig{
			TauS: [control.NumAxes]float64{0.04, 0.04, 0.08},
			Gain: [control.NumAxes]float64{40, 40, 25},
		},
		Battery:  BatteryProfile{StartV: 4.2, EndV: 3.6},
		Defaults: Command{InAir: true},
	}
}

// LoadScenario loads a scenario from JSON file
func LoadScenario(path string) (Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("read file: %w", err)
	}
	defer f.Close()
	return ParseScenario(f)
}

// ParseScenario overlays the JSON document on DefaultScenario and validates the result.
func ParseScenario(r io.Reader) (Scenario, error) {
	scen := DefaultScenario()
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&scen); err != nil {
		return Scenario{}, fmt.Errorf("unmarshal: %w", err)
	}
	if err := scen.Validate(); err != nil {
		return Scenario{}, err
	}
	return scen, nil
}

func (s *Scenario) Validate() error {
	if s.Timing.DurationS <= 0 {
		return fmt.Errorf("invalid duration_s: %f", s.Timing.DurationS)
	}
	if s.Timing.DtS <= 0 || s.Timing.DtS > s.Timing.DurationS {
		return fmt.Errorf("invalid dt_s: %f", s.Timing.DtS)
	}
	if s.Timing.LogHz < 0 {
		return fmt.Errorf("invalid log_hz: %f", s.Timing.LogHz)
	}
	if s.Timing.RotateEvery < 0 {
		return fmt.Errorf("invalid rotate_every: %d", s.Timing.RotateEvery)
	}
	if s.Timing.LoopJitterS < 0 || s.Timing.LoopJitterS >= s.Timing.DtS {
		return fmt.Errorf("loop_jitter_s %f must be in [0, dt_s)", s.Timing.LoopJitterS)
	}
	switch s.Meta.Mode {
	case "", ModeSim, ModeCAN:
	default:
		return fmt.Errorf("unknown mode %q", s.Meta.Mode)
	}
	if err := s.Controller.Validate(); err != nil {
		return fmt.Errorf("controller: %w", err)
	}
	for _, a := range control.Axes {
		if s.Rates.MaxRateRPS[a] <= 0 {
			return fmt.Errorf("rates.max_rate_rps[%s] must be positive", a)
		}
		if s.Plant.TauS[a] <= 0 {
			return fmt.Errorf("plant.tau_s[%s] must be positive", a)
		}
	}
	if s.Level.MaxAngleRad <= 0 || s.Level.MaxRateRPS <= 0 {
		return fmt.Errorf("level: max_angle_rad and max_rate_rps must be positive")
	}
	if s.Battery.StartV <= 0 || s.Battery.EndV <= 0 {
		return fmt.Errorf("battery voltages must be positive")
	}
	if !s.Defaults.validProfiles() {
		return fmt.Errorf("defaults: profiles must be 0 or 1")
	}
	for i, seg := range s.Segments {
		if seg.T1 >= 0 && seg.T1 <= seg.T0 {
			return fmt.Errorf("segment %d: t1 %.3f not after t0 %.3f", i, seg.T1, seg.T0)
		}
		for _, a := range control.Axes {
			if seg.Stick[a] < -1 || seg.Stick[a] > 1 {
				return fmt.Errorf("segment %d: stick[%s] %.3f outside [-1, 1]", i, a, seg.Stick[a])
			}
		}
		if !seg.validProfiles() {
			return fmt.Errorf("segment %d: profiles must be 0 or 1", i)
		}
	}
	return nil
}

// EvalCommand evaluates the scenario at time t. The first segment covering t wins.
func EvalCommand(scen *Scenario, t float64) Command {
	for _, seg := range scen.Segments {
		t1 := seg.T1
		if t1 < 0 {
			t1 = scen.Timing.DurationS
		}
		if t >= seg.T0 && t < t1 {
			return seg.Command
		}
	}
	return scen.Defaults
}

// BatteryVoltage returns the sagged per-cell voltage at time t.
func BatteryVoltage(scen *Scenario, t float64) float64 {
	frac := control.ClampFloat(t/scen.Timing.DurationS, 0, 1)
	return scen.Battery.StartV + (scen.Battery.EndV-scen.Battery.StartV)*frac
}
