package utils

import "sort"

// Frame names the rate controller harness exchanges over CAN.
const (
	FrameGyroRate  = "GYRO_RATE"
	FrameRCCommand = "RC_COMMAND"
	FrameBattery   = "BATTERY"
	FrameAttitude  = "ATTITUDE"
	FramePIDOutput = "PID_OUTPUT"
)

type SignalDef struct {
	Name       string
	StartBit   int
	BitLength  int
	Signed     bool
	Factor     float64
	Offset     float64
	Min        float64
	Max        float64
	Default    float64
	Unit       string
	Comment    string
	Endianness string // only "little" supported
}

type FrameDef struct {
	ID        uint32
	Name      string
	DLC       int
	Direction string // "rx" or "tx", seen from the controller
	CycleMS   int
	Signals   []SignalDef
}

// Signal looks up a signal definition by name.
func (fd *FrameDef) Signal(name string) (SignalDef, bool) {
	for _, s := range fd.Signals {
		if s.Name == name {
			return s, true
		}
	}
	return SignalDef{}, false
}

type CANMap struct {
	ByID   map[uint32]*FrameDef
	ByName map[string]*FrameDef
}

func (m *CANMap) FrameNames() []string {
	out := make([]string, 0, len(m.ByName))
	for k := range m.ByName {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
