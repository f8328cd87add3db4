package utils

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

var requiredColumns = []string{
	"direction", "frame_id", "frame_name", "cycle_ms", "dlc",
	"signal_name", "start_bit", "bit_length", "endianness",
	"signed", "factor", "offset", "min", "max", "default", "unit", "comment",
}

func LoadCANMap(csvPath string) (*CANMap, error) {
	f, err := os.Open(csvPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	m, err := ParseCANMap(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", csvPath, err)
	}
	return m, nil
}

// ParseCANMap reads a signal table, one row per signal. Rows sharing a frame_id
// must agree on the frame name, DLC and direction.
func ParseCANMap(src io.Reader) (*CANMap, error) {
	r := csv.NewReader(src)
	r.TrimLeadingSpace = true
	r.Comment = '#'

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(h)] = i
	}
	for _, k := range requiredColumns {
		if _, ok := idx[k]; !ok {
			return nil, fmt.Errorf("can map missing required column: %q", k)
		}
	}

	m := &CANMap{
		ByID:   map[uint32]*FrameDef{},
		ByName: map[string]*FrameDef{},
	}

	line := 1
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		line++

		row := csvRow{rec: rec, idx: idx, line: line}
		frameID := row.hexOrDec("frame_id")
		frameName := row.str("frame_name")
		direction := row.str("direction")
		cycleMS := row.integer("cycle_ms")
		dlc := row.integer("dlc")

		sig := SignalDef{
			Name:       row.str("signal_name"),
			StartBit:   row.integer("start_bit"),
			BitLength:  row.integer("bit_length"),
			Endianness: row.str("endianness"),
			Signed:     row.boolean("signed"),
			Factor:     row.float("factor"),
			Offset:     row.float("offset"),
			Min:        row.float("min"),
			Max:        row.float("max"),
			Default:    row.float("default"),
			Unit:       row.str("unit"),
			Comment:    row.str("comment"),
		}
		if row.err != nil {
			return nil, row.err
		}

		if direction != "rx" && direction != "tx" {
			return nil, fmt.Errorf("line %d: frame %s: direction %q must be rx or tx", line, frameName, direction)
		}
		if sig.Endianness != "" && sig.Endianness != "little" {
			return nil, fmt.Errorf("line %d: frame %s signal %s: unsupported endianness %q (only little supported)",
				line, frameName, sig.Name, sig.Endianness)
		}
		if sig.BitLength <= 0 || sig.BitLength > 64 {
			return nil, fmt.Errorf("line %d: frame %s signal %s: invalid bit_length %d", line, frameName, sig.Name, sig.BitLength)
		}
		if dlc <= 0 || dlc > 8 {
			return nil, fmt.Errorf("line %d: frame %s (0x%X): invalid dlc %d", line, frameName, frameID, dlc)
		}
		if sig.StartBit < 0 || sig.StartBit+sig.BitLength > dlc*8 {
			return nil, fmt.Errorf("line %d: frame %s signal %s: bits %d..%d do not fit in %d bytes",
				line, frameName, sig.Name, sig.StartBit, sig.StartBit+sig.BitLength-1, dlc)
		}
		if sig.Factor == 0 {
			return nil, fmt.Errorf("line %d: frame %s signal %s: factor must be non-zero", line, frameName, sig.Name)
		}

		fd, ok := m.ByID[frameID]
		if !ok {
			if _, dup := m.ByName[frameName]; dup {
				return nil, fmt.Errorf("line %d: frame name %s reused for id 0x%X", line, frameName, frameID)
			}
			fd = &FrameDef{
				ID:        frameID,
				Name:      frameName,
				DLC:       dlc,
				Direction: direction,
				CycleMS:   cycleMS,
				Signals:   []SignalDef{},
			}
			m.ByID[frameID] = fd
			m.ByName[frameName] = fd
		}

		if fd.DLC != dlc {
			return nil, fmt.Errorf("line %d: frame %s (0x%X) has inconsistent DLC (%d vs %d)", line, frameName, frameID, fd.DLC, dlc)
		}
		if fd.Name != frameName || fd.Direction != direction {
			return nil, fmt.Errorf("line %d: frame 0x%X redeclared as %s/%s (was %s/%s)",
				line, frameID, frameName, direction, fd.Name, fd.Direction)
		}
		if _, dup := fd.Signal(sig.Name); dup {
			return nil, fmt.Errorf("line %d: frame %s: duplicate signal %s", line, frameName, sig.Name)
		}

		fd.Signals = append(fd.Signals, sig)
	}

	for _, fd := range m.ByID {
		sort.Slice(fd.Signals, func(i, j int) bool { return fd.Signals[i].StartBit < fd.Signals[j].StartBit })
	}

	return m, nil
}

func (m *CANMap) FrameByName(name string) (*FrameDef, error) {
	fd, ok := m.ByName[name]
	if !ok {
		return nil, fmt.Errorf("unknown frame %q (available: %v)", name, m.FrameNames())
	}
	return fd, nil
}

func (m *CANMap) FrameByID(id uint32) (*FrameDef, error) {
	fd, ok := m.ByID[id]
	if !ok {
		return nil, fmt.Errorf("unknown frame id 0x%X", id)
	}
	return fd, nil
}

// RequireFrames fails unless every named frame is present.
func (m *CANMap) RequireFrames(names ...string) error {
	for _, n := range names {
		if _, err := m.FrameByName(n); err != nil {
			return err
		}
	}
	return nil
}

// csvRow keeps the first conversion error so a row can be parsed field by field.
type csvRow struct {
	rec  []string
	idx  map[string]int
	line int
	err  error
}

func (r *csvRow) str(col string) string {
	i := r.idx[col]
	if i >= len(r.rec) {
		return ""
	}
	return strings.TrimSpace(r.rec[i])
}

func (r *csvRow) fail(col string, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("line %d: invalid %s %q: %w", r.line, col, r.str(col), err)
	}
}

func (r *csvRow) integer(col string) int {
	v, err := strconv.Atoi(r.str(col))
	if err != nil {
		r.fail(col, err)
	}
	return v
}

func (r *csvRow) float(col string) float64 {
	v, err := strconv.ParseFloat(r.str(col), 64)
	if err != nil {
		r.fail(col, err)
	}
	return v
}

func (r *csvRow) boolean(col string) bool {
	switch strings.ToLower(r.str(col)) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no", "":
		return false
	default:
		r.fail(col, errors.New("not a boolean"))
		return false
	}
}

func (r *csvRow) hexOrDec(col string) uint32 {
	u, err := parseHexOrDecUint32(r.str(col))
	if err != nil {
		r.fail(col, err)
	}
	return u
}

func parseHexOrDecUint32(s string) (uint32, error) {
	ss := strings.TrimSpace(s)
	base := 10
	if strings.HasPrefix(ss, "0x") || strings.HasPrefix(ss, "0X") {
		base = 16
		ss = ss[2:]
	}
	u, err := strconv.ParseUint(ss, base, 32)
	if err != nil {
		return 0, err
	}
	return uint32(u), nil
}
