package control

import "math"

// WindupClassifier decides per axis per tick whether integration is suspended.
type WindupClassifier struct {
	antiWindup bool
	transient  TransientWindupConfig

	avgSetpoint [NumAxes]*FirstOrderLowPass
	count       [NumAxes]int
}

// NewWindupClassifier creates a classifier. The transient setpoint average runs at the
// decimated rate, so its coefficient uses decimation * samplePeriodS.
func NewWindupClassifier(cfg Config) *WindupClassifier {
	w := &WindupClassifier{
		antiWindup: cfg.AntiWindup,
		transient:  cfg.TransientWindup,
	}
	if w.transient.Enabled {
		period := cfg.FilterSamplePeriodS * float64(w.transient.Decimation)
		for _, a := range []Axis{Roll, Pitch} {
			w.avgSetpoint[a] = NewFirstOrderLowPass(period, w.transient.AverageHz)
		}
	}
	return w
}

// Classify reports whether integration must be skipped this tick. prevOutput is the
// output this axis produced on the previous tick.
func (w *WindupClassifier) Classify(axis Axis, prevOutput, outputLimit, err, setpoint float64) bool {
	avg, transient := w.trackSetpoint(axis, setpoint)

	windup := false
	if prevOutput == outputLimit && err > 0 {
		windup = true
	}
	if prevOutput == -outputLimit && err < 0 {
		windup = true
	}
	if !w.antiWindup {
		windup = false
	}

	if transient && math.Abs(setpoint-avg) > w.transient.Threshold {
		windup = true
	}
	return windup
}

// trackSetpoint advances the roll/pitch setpoint average on every Decimation-th call.
func (w *WindupClassifier) trackSetpoint(axis Axis, setpoint float64) (float64, bool) {
	f := w.avgSetpoint[axis]
	if f == nil {
		return 0, false
	}
	if w.count[axis]%w.transient.Decimation == 0 {
		f.Apply(setpoint)
	}
	w.count[axis]++
	return f.Value(), true
}

// Reset clears the setpoint averages.
func (w *WindupClassifier) Reset() {
	for _, a := range Axes {
		if w.avgSetpoint[a] != nil {
			w.avgSetpoint[a].Reset()
		}
		w.count[a] = 0
	}
}
