package control

import "sync"

// Profile selects one of the two gain sets (or stick profiles).
type Profile int

const (
	ProfileOne Profile = iota
	ProfileTwo

	numProfiles = 2
)

// Valid reports whether p is ProfileOne or ProfileTwo.
func (p Profile) Valid() bool {
	return p >= ProfileOne && p < numProfiles
}

func (p Profile) index() int {
	if p == ProfileTwo {
		return 1
	}
	return 0
}

// Term names one coefficient of a gain triple.
type Term int

const (
	TermP Term = iota
	TermI
	TermD
)

func (t Term) String() string {
	switch t {
	case TermP:
		return "P"
	case TermI:
		return "I"
	case TermD:
		return "D"
	default:
		return "?"
	}
}

// GainSet holds the (kp, ki, kd) triple for every axis
type GainSet struct {
	Kp [NumAxes]float64 `json:"kp"`
	Ki [NumAxes]float64 `json:"ki"`
	Kd [NumAxes]float64 `json:"kd"`
}

func (g *GainSet) term(t Term) *[NumAxes]float64 {
	switch t {
	case TermI:
		return &g.Ki
	case TermD:
		return &g.Kd
	default:
		return &g.Kp
	}
}

// Get returns one coefficient.
func (g GainSet) Get(axis Axis, t Term) float64 {
	return g.term(t)[axis]
}

// DefaultGains returns the stock rate tune.
func DefaultGains() GainSet {
	return GainSet{
		Kp: [NumAxes]float64{17.0e-2, 17.0e-2, 10e-1},
		Ki: [NumAxes]float64{15e-1, 15e-1, 15e-1},
		Kd: [NumAxes]float64{6.8e-1, 6.8e-1, 5e-1},
	}
}

// GainBank owns both gain profiles and the saved baseline.
//
// Writers (tuning, aux mapping) and the control loop may live on different goroutines;
// the controller takes one copy per tick through Live so a tick never sees a half-written set.
type GainBank struct {
	mu       sync.RWMutex
	profiles [numProfiles]GainSet
	baseline GainSet
}

// NewGainBank creates a bank from the two profiles and saves profile one as the baseline.
func NewGainBank(one, two GainSet) *GainBank {
	b := &GainBank{profiles: [numProfiles]GainSet{one, two}}
	b.baseline = one
	return b
}

// Live returns a copy of the selected profile.
func (b *GainBank) Live(p Profile) GainSet {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.profiles[p.index()]
}

// SetGain overwrites a single coefficient.
func (b *GainBank) SetGain(p Profile, axis Axis, t Term, value float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.profiles[p.index()].term(t)[axis] = value
}

// ScaleGain multiplies a single coefficient by factor and returns the new value.
func (b *GainBank) ScaleGain(p Profile, axis Axis, t Term, factor float64) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	v := &b.profiles[p.index()].term(t)[axis]
	*v *= factor
	return *v
}

// ApplyMultiplier sets a coefficient to its baseline value times m.
func (b *GainBank) ApplyMultiplier(p Profile, axis Axis, t Term, m float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.profiles[p.index()].term(t)[axis] = b.baseline.term(t)[axis] * m
}

// SaveBaseline captures the selected profile as the new baseline.
// Called at startup and whenever tuned gains should become the reference.
func (b *GainBank) SaveBaseline(p Profile) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.baseline = b.profiles[p.index()]
}

// Baseline returns a copy of the saved baseline.
func (b *GainBank) Baseline() GainSet {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.baseline
}
