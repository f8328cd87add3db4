package control

import "fmt"

// errorHistory holds the trailing rate errors an integral rule needs.
type errorHistory struct {
	last  float64
	last2 float64
}

// IntegralRule is one discretization of the integral term.
type IntegralRule interface {
	// Step returns the increment for this tick and shifts h.
	Step(h *errorHistory, err, ki, dt float64) float64
	Name() string
}

// Rectangular integrates err * ki * dt.
type Rectangular struct{}

func (Rectangular) Step(h *errorHistory, err, ki, dt float64) float64 {
	h.last = err
	return err * ki * dt
}

func (Rectangular) Name() string { return RuleRectangular }

// Trapezoidal integrates the mean of this and the previous error.
type Trapezoidal struct{}

func (Trapezoidal) Step(h *errorHistory, err, ki, dt float64) float64 {
	inc := (err + h.last) * 0.5 * ki * dt
	h.last = err
	return inc
}

func (Trapezoidal) Name() string { return RuleTrapezoidal }

// Simpson integrates over the last three errors assuming uniform sampling.
type Simpson struct{}

func (Simpson) Step(h *errorHistory, err, ki, dt float64) float64 {
	inc := (1.0 / 6.0) * (h.last2 + 4*h.last + err) * ki * dt
	h.last2 = h.last
	h.last = err
	return inc
}

func (Simpson) Name() string { return RuleSimpson }

// NewIntegralRule resolves a rule name.
func NewIntegralRule(name string) (IntegralRule, error) {
	switch name {
	case RuleRectangular:
		return Rectangular{}, nil
	case RuleTrapezoidal:
		return Trapezoidal{}, nil
	case RuleSimpson:
		return Simpson{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown integral rule %q", ErrInvalidConfig, name)
	}
}
