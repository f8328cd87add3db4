package main

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"go.viam.com/test"

	control "rate-ctrl-core/closed_loop/rate_control"
)

func TestParseScenarioOverlaysDefaults(t *testing.T) {
	src := `{
		"meta": {"name": "overlay"},
		"timing": {"dt_s": 0.002, "duration_s": 1},
		"controller": {"integral_rule": "rectangular"},
		"gains": {"two": {"kp": [0.3, 0.3, 1.2]}},
		"segments": [{"t0": 0, "t1": 0.5, "stick": [0.1, 0, 0], "in_air": true}]
	}`
	scen, err := ParseScenario(strings.NewReader(src))
	test.That(t, err, test.ShouldBeNil)

	test.That(t, scen.Meta.Name, test.ShouldEqual, "overlay")
	test.That(t, scen.Timing.DtS, test.ShouldEqual, 0.002)
	test.That(t, scen.Timing.LogHz, test.ShouldEqual, 10.0)
	test.That(t, scen.Controller.IntegralRule, test.ShouldEqual, control.RuleRectangular)
	test.That(t, scen.Controller.DerivativeMode, test.ShouldEqual, control.DerivMeasurement)
	test.That(t, scen.Gains.Two.Kp[control.Yaw], test.ShouldEqual, 1.2)
	// a partial gain set keeps the defaults it does not mention
	test.That(t, scen.Gains.Two.Ki[control.Roll], test.ShouldEqual, control.DefaultGains().Ki[control.Roll])
	test.That(t, scen.Rates.MaxRateRPS[control.Pitch], test.ShouldEqual, 8.7)
	test.That(t, scen.Segments[0].Stick[control.Roll], test.ShouldEqual, 0.1)
}

func TestParseScenarioRejects(t *testing.T) {
	cases := map[string]string{
		"unknown field":      `{"timing": {"dt_s": 0.001, "duration_s": 1, "speed": 3}}`,
		"zero duration":      `{"timing": {"dt_s": 0.001, "duration_s": 0}}`,
		"dt above duration":  `{"timing": {"dt_s": 2, "duration_s": 1}}`,
		"jitter too large":   `{"timing": {"dt_s": 0.001, "duration_s": 1, "loop_jitter_s": 0.001}}`,
		"unknown mode":       `{"meta": {"mode": "hil"}}`,
		"bad controller":     `{"controller": {"derivative_mode": "pt2"}}`,
		"zero plant tau":     `{"plant": {"tau_s": [0.04, 0, 0.08]}}`,
		"segment order":      `{"segments": [{"t0": 1, "t1": 0.5}]}`,
		"stick out of range": `{"segments": [{"t0": 0, "t1": 1, "stick": [0, 1.5, 0]}]}`,
		"bad profile":        `{"segments": [{"t0": 0, "t1": 1, "gain_profile": 2}]}`,
		"default profile":    `{"defaults": {"stick_profile": -1}}`,
		"not json":           `timing: 1`,
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseScenario(strings.NewReader(src))
			test.That(t, err, test.ShouldNotBeNil)
		})
	}

	_, err := ParseScenario(strings.NewReader(`{"controller": {"output_limit": [0, 1, 1]}}`))
	test.That(t, errors.Is(err, control.ErrInvalidConfig), test.ShouldBeTrue)
}

func TestShippedScenariosLoad(t *testing.T) {
	paths, err := filepath.Glob("scenarios/*.json")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(paths), test.ShouldBeGreaterThan, 0)
	for _, p := range paths {
		t.Run(filepath.Base(p), func(t *testing.T) {
			scen, err := LoadScenario(p)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, scen.Meta.Name, test.ShouldNotBeEmpty)
		})
	}

	_, err = LoadScenario("scenarios/missing.json")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestEvalCommand(t *testing.T) {
	scen := DefaultScenario()
	scen.Timing.DurationS = 3
	scen.Defaults = Command{OnGround: true}
	scen.Segments = []ScenarioSegment{
		{T0: 0.5, T1: 1.0, Command: Command{Stick: [control.NumAxes]float64{0.2, 0, 0}, InAir: true}},
		{T0: 0.8, T1: 2.0, Command: Command{LevelMode: true}},
		{T0: 2.5, T1: -1, Command: Command{GainProfile: 1, StickProfile: 1}},
	}

	test.That(t, EvalCommand(&scen, 0.1).OnGround, test.ShouldBeTrue)
	test.That(t, EvalCommand(&scen, 0.5).Stick[control.Roll], test.ShouldEqual, 0.2)
	// first match wins on overlap
	test.That(t, EvalCommand(&scen, 0.9).LevelMode, test.ShouldBeFalse)
	test.That(t, EvalCommand(&scen, 1.0).LevelMode, test.ShouldBeTrue)
	test.That(t, EvalCommand(&scen, 2.2).OnGround, test.ShouldBeTrue)

	flags := EvalCommand(&scen, 2.9).Flags()
	test.That(t, flags.GainProfile, test.ShouldEqual, control.ProfileTwo)
	test.That(t, flags.StickProfile, test.ShouldEqual, control.ProfileTwo)
	test.That(t, EvalCommand(&scen, 3.0).GainProfile, test.ShouldEqual, 0)
}

func TestBatteryVoltageSags(t *testing.T) {
	scen := DefaultScenario()
	scen.Timing.DurationS = 10
	scen.Battery = BatteryProfile{StartV: 4.2, EndV: 3.2}

	test.That(t, BatteryVoltage(&scen, 0), test.ShouldEqual, 4.2)
	test.That(t, BatteryVoltage(&scen, 5), test.ShouldAlmostEqual, 3.7, 1e-12)
	test.That(t, BatteryVoltage(&scen, 20), test.ShouldAlmostEqual, 3.2, 1e-12)
}
