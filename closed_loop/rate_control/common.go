package control

import (
	"errors"

	"golang.org/x/exp/constraints"
)

// Axis identifies one body rate axis. All per-axis arrays use this index.
type Axis int

const (
	Roll Axis = iota
	Pitch
	Yaw

	NumAxes = 3
)

// Axes lists every axis in evaluation order.
var Axes = [NumAxes]Axis{Roll, Pitch, Yaw}

func (a Axis) String() string {
	switch a {
	case Roll:
		return "roll"
	case Pitch:
		return "pitch"
	case Yaw:
		return "yaw"
	default:
		return "unknown"
	}
}

// Valid reports whether a is one of Roll, Pitch, Yaw.
func (a Axis) Valid() bool {
	return a >= Roll && a <= Yaw
}

var (
	// ErrInvalidLoopTime is returned when the measured loop period is zero or negative.
	ErrInvalidLoopTime = errors.New("invalid loop time")

	// ErrInvalidProfile is returned when a gain or stick profile selector is out of range.
	ErrInvalidProfile = errors.New("invalid profile")

	// ErrInvalidConfig wraps every configuration validation failure.
	ErrInvalidConfig = errors.New("invalid controller config")
)

// ClampFloat clamps value between min and max
func ClampFloat[T constraints.Float](value, min, max T) T {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// LimitAbs clamps value to [-limit, +limit].
func LimitAbs[T constraints.Float](value, limit T) T {
	return ClampFloat(value, -limit, limit)
}

// MapRange linearly maps value from [fromMin, fromMax] onto [toMin, toMax] without clamping.
func MapRange[T constraints.Float](value, fromMin, fromMax, toMin, toMax T) T {
	return (value-fromMin)/(fromMax-fromMin)*(toMax-toMin) + toMin
}
