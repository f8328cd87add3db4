package control

// LowPass is a stateful scalar filter.
type LowPass interface {
	Apply(x float64) float64
	Reset()
}

// FilterAlpha returns the single-pole smoothing factor for a cutoff frequency at a fixed
// sample period. The retained share of the previous output is 1 - alpha.
func FilterAlpha(samplePeriodS, cutoffHz float64) float64 {
	filterTime := 1.0 / cutoffHz
	coeff := 1.0 - (6.0*samplePeriodS)/(3.0*samplePeriodS+filterTime)
	return 1.0 - coeff
}

// FirstOrderLowPass computes y += alpha*(x - y).
type FirstOrderLowPass struct {
	alpha float64
	y     float64
}

// NewFirstOrderLowPass creates a first-order filter from a cutoff and sample period.
func NewFirstOrderLowPass(samplePeriodS, cutoffHz float64) *FirstOrderLowPass {
	return &FirstOrderLowPass{alpha: FilterAlpha(samplePeriodS, cutoffHz)}
}

func (f *FirstOrderLowPass) Apply(x float64) float64 {
	f.y += f.alpha * (x - f.y)
	return f.y
}

func (f *FirstOrderLowPass) Reset() { f.y = 0 }

// Value returns the last output.
func (f *FirstOrderLowPass) Value() float64 { return f.y }

// SecondOrderLowPass is two identical first-order poles folded into one recurrence:
// y = x*alpha^2 + 2*(1-alpha)*y1 - (1-alpha)^2*y2.
type SecondOrderLowPass struct {
	alphaSqr       float64
	twoOneMinusA   float64
	oneMinusASqr   float64
	lastOut, last2 float64
}

// NewSecondOrderLowPass creates a critically damped second-order filter.
func NewSecondOrderLowPass(samplePeriodS, cutoffHz float64) *SecondOrderLowPass {
	alpha := FilterAlpha(samplePeriodS, cutoffHz)
	return &SecondOrderLowPass{
		alphaSqr:     alpha * alpha,
		twoOneMinusA: 2 * (1 - alpha),
		oneMinusASqr: (1 - alpha) * (1 - alpha),
	}
}

func (f *SecondOrderLowPass) Apply(x float64) float64 {
	y := x*f.alphaSqr + f.twoOneMinusA*f.lastOut - f.oneMinusASqr*f.last2
	f.last2 = f.lastOut
	f.lastOut = y
	return y
}

func (f *SecondOrderLowPass) Reset() {
	f.lastOut = 0
	f.last2 = 0
}

// newDTermFilters builds one filter per axis, or nil entries when filtering is off.
func newDTermFilters(cfg Config) [NumAxes]LowPass {
	var out [NumAxes]LowPass
	for _, a := range Axes {
		switch cfg.DTermFilter.Kind {
		case FilterFirst:
			out[a] = NewFirstOrderLowPass(cfg.FilterSamplePeriodS, cfg.DTermFilter.CutoffHz)
		case FilterSecond:
			out[a] = NewSecondOrderLowPass(cfg.FilterSamplePeriodS, cfg.DTermFilter.CutoffHz)
		}
	}
	return out
}
