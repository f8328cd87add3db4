package utils

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"go.einride.tech/can"
	"go.viam.com/test"
)

const header = "direction,frame_id,frame_name,cycle_ms,dlc,signal_name,start_bit,bit_length,endianness,signed,factor,offset,min,max,default,unit,comment\n"

const testMap = header +
	"rx,0x120,GYRO_RATE,1,8,gyro_roll_rps,0,16,little,true,0.001,0,-32.767,32.767,0,rad/s,\n" +
	"rx,0x120,GYRO_RATE,1,8,gyro_pitch_rps,16,16,little,true,0.001,0,-32.767,32.767,0,rad/s,\n" +
	"rx,0x130,RC_COMMAND,5,8,level_mode,49,1,little,false,1,0,0,1,0,,\n" +
	"rx,0x130,RC_COMMAND,5,8,stick_roll,0,16,little,true,0.0001,0,-1,1,0,,\n" +
	"rx,0x140,BATTERY,20,2,vbatt_v,0,16,little,false,0.001,0,0,65.535,4.2,V,\n" +
	"tx,0x200,PID_OUTPUT,1,8,pid_roll,0,16,little,true,0.0001,0,-3.2767,3.2767,0,,\n" +
	"tx,0x200,PID_OUTPUT,1,8,tick_seq,48,16,little,false,1,0,0,65535,0,,\n"

func mustParse(t *testing.T, src string) *CANMap {
	t.Helper()
	m, err := ParseCANMap(strings.NewReader(src))
	test.That(t, err, test.ShouldBeNil)
	return m
}

func TestParseCANMap(t *testing.T) {
	m := mustParse(t, testMap)
	test.That(t, len(m.ByID), test.ShouldEqual, 4)
	test.That(t, m.FrameNames()[0], test.ShouldEqual, "BATTERY")

	rc, err := m.FrameByName(FrameRCCommand)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, rc.ID, test.ShouldEqual, uint32(0x130))
	test.That(t, rc.CycleMS, test.ShouldEqual, 5)
	// sorted by start bit
	test.That(t, rc.Signals[0].Name, test.ShouldEqual, "stick_roll")
	test.That(t, rc.Signals[1].Name, test.ShouldEqual, "level_mode")

	test.That(t, m.RequireFrames(FrameGyroRate, FramePIDOutput), test.ShouldBeNil)
	test.That(t, m.RequireFrames(FrameAttitude), test.ShouldNotBeNil)

	_, err = m.FrameByID(0x7FF)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestParseCANMapErrors(t *testing.T) {
	row := func(fields string) string { return header + fields + "\n" }
	cases := map[string]string{
		"missing column":  "direction,frame_id\nrx,1\n",
		"bad frame id":    row("rx,0xZZ,A,1,8,s,0,8,little,false,1,0,0,1,0,,"),
		"bad start bit":   row("rx,0x10,A,1,8,s,x,8,little,false,1,0,0,1,0,,"),
		"bad factor":      row("rx,0x10,A,1,8,s,0,8,little,false,abc,0,0,1,0,,"),
		"bad bool":        row("rx,0x10,A,1,8,s,0,8,little,maybe,1,0,0,1,0,,"),
		"big endian":      row("rx,0x10,A,1,8,s,0,8,big,false,1,0,0,1,0,,"),
		"bad direction":   row("up,0x10,A,1,8,s,0,8,little,false,1,0,0,1,0,,"),
		"dlc too large":   row("rx,0x10,A,1,9,s,0,8,little,false,1,0,0,1,0,,"),
		"signal overflow": row("rx,0x10,A,1,2,s,8,16,little,false,1,0,0,1,0,,"),
		"zero factor":     row("rx,0x10,A,1,8,s,0,8,little,false,0,0,0,1,0,,"),
		"inconsistent dlc": header +
			"rx,0x10,A,1,8,s,0,8,little,false,1,0,0,1,0,,\n" +
			"rx,0x10,A,1,4,t,8,8,little,false,1,0,0,1,0,,\n",
		"duplicate signal": header +
			"rx,0x10,A,1,8,s,0,8,little,false,1,0,0,1,0,,\n" +
			"rx,0x10,A,1,8,s,8,8,little,false,1,0,0,1,0,,\n",
		"name reused": header +
			"rx,0x10,A,1,8,s,0,8,little,false,1,0,0,1,0,,\n" +
			"rx,0x11,A,1,8,t,0,8,little,false,1,0,0,1,0,,\n",
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseCANMap(strings.NewReader(src))
			test.That(t, err, test.ShouldNotBeNil)
		})
	}
}

func TestEncodeDecodeSignals(t *testing.T) {
	m := mustParse(t, testMap)

	data, id, err := m.EncodeFrame(FrameGyroRate, map[string]float64{
		"gyro_roll_rps":  -1.25,
		"gyro_pitch_rps": 3.5,
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, id, test.ShouldEqual, uint32(0x120))
	test.That(t, len(data), test.ShouldEqual, 8)
	// -1250 little endian two's complement
	test.That(t, data[0], test.ShouldEqual, byte(0x1E))
	test.That(t, data[1], test.ShouldEqual, byte(0xFB))

	values, err := m.DecodeFrame(id, data)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, values["gyro_roll_rps"], test.ShouldAlmostEqual, -1.25, 1e-9)
	test.That(t, values["gyro_pitch_rps"], test.ShouldAlmostEqual, 3.5, 1e-9)

	_, err = m.DecodeFrame(id, data[:4])
	test.That(t, err, test.ShouldNotBeNil)
}

func TestEncodeClampsAndDefaults(t *testing.T) {
	m := mustParse(t, testMap)

	f, err := m.EncodeEinrideFrame(FrameRCCommand, map[string]float64{
		"stick_roll": 7,
		"level_mode": 1,
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, f.ID, test.ShouldEqual, uint32(0x130))
	test.That(t, f.Length, test.ShouldEqual, uint8(8))

	name, values, err := m.DecodeEinrideFrame(f)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, name, test.ShouldEqual, FrameRCCommand)
	test.That(t, values["stick_roll"], test.ShouldAlmostEqual, 1.0, 1e-9)
	test.That(t, values["level_mode"], test.ShouldEqual, 1.0)

	// unset signals take their default
	f, err = m.EncodeEinrideFrame(FrameBattery, nil)
	test.That(t, err, test.ShouldBeNil)
	_, values, err = m.DecodeEinrideFrame(f)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, values["vbatt_v"], test.ShouldAlmostEqual, 4.2, 1e-9)

	_, err = m.EncodeEinrideFrame(FramePIDOutput, map[string]float64{"pid_roll": math.NaN()})
	test.That(t, err, test.ShouldNotBeNil)

	_, _, err = m.DecodeEinrideFrame(can.Frame{ID: 0x120, IsRemote: true})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestBitHelpers(t *testing.T) {
	p := setBits(0, 60, 4, 0xF)
	test.That(t, getBits(p, 60, 4), test.ShouldEqual, uint64(0xF))
	test.That(t, setBits(^uint64(0), 0, 64, 0), test.ShouldEqual, uint64(0))

	test.That(t, signExtend(0xFFFF, 16, true), test.ShouldEqual, int64(-1))
	test.That(t, signExtend(0xFFFF, 16, false), test.ShouldEqual, int64(0xFFFF))
	test.That(t, truncateRaw(-2, 8), test.ShouldEqual, uint64(0xFE))

	test.That(t, clampRaw(40000, 16, true), test.ShouldEqual, int64(32767))
	test.That(t, clampRaw(-40000, 16, true), test.ShouldEqual, int64(-32768))
	test.That(t, clampRaw(-3, 8, false), test.ShouldEqual, int64(0))
}

func TestLoopbackBus(t *testing.T) {
	bus := NewLoopbackBus(4)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	want := can.Frame{ID: 0x200, Length: 2, Data: can.Data{1, 2}}
	test.That(t, bus.WriteFrame(ctx, want), test.ShouldBeNil)
	got, err := bus.ReadFrame(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got, test.ShouldResemble, want)

	test.That(t, bus.Close(), test.ShouldBeNil)
	test.That(t, bus.Close(), test.ShouldBeNil)
	_, err = bus.ReadFrame(ctx)
	test.That(t, errors.Is(err, ErrBusClosed), test.ShouldBeTrue)
	test.That(t, errors.Is(bus.WriteFrame(ctx, want), ErrBusClosed), test.ShouldBeTrue)
}

func TestLoopbackReadHonoursContext(t *testing.T) {
	bus := NewLoopbackBus(1)
	defer bus.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := bus.ReadFrame(ctx)
	test.That(t, errors.Is(err, context.DeadlineExceeded), test.ShouldBeTrue)
}

// endlessReceiver yields the same frame forever, or fails at once when err is set.
type endlessReceiver struct {
	frame can.Frame
	err   error
}

func (e *endlessReceiver) Receive() bool       { return e.err == nil }
func (e *endlessReceiver) HasErrorFrame() bool { return false }
func (e *endlessReceiver) Frame() can.Frame    { return e.frame }
func (e *endlessReceiver) Err() error          { return e.err }

func TestSocketCANReaderCloseWithFullBuffer(t *testing.T) {
	r := newSocketCANReader(nil, &endlessReceiver{frame: can.Frame{ID: 0x120, Length: 1}})

	// nobody reads, so the receive goroutine fills the buffer and waits
	time.Sleep(20 * time.Millisecond)
	test.That(t, r.Close(), test.ShouldBeNil)
	select {
	case <-r.done:
	case <-time.After(time.Second):
		t.Fatal("receive goroutine still running after Close")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	// queued frames drain first, then the closed bus is reported
	n := 0
	var err error
	for ; n <= cap(r.frames); n++ {
		if _, err = r.ReadFrame(ctx); err != nil {
			break
		}
	}
	test.That(t, n, test.ShouldBeLessThanOrEqualTo, cap(r.frames))
	test.That(t, errors.Is(err, ErrBusClosed), test.ShouldBeTrue)
}

func TestSocketCANReaderReportsSocketError(t *testing.T) {
	down := errors.New("network is down")
	r := newSocketCANReader(nil, &endlessReceiver{err: down})
	defer r.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := r.ReadFrame(ctx)
	test.That(t, errors.Is(err, down), test.ShouldBeTrue)
	_, err = r.ReadFrame(ctx)
	test.That(t, errors.Is(err, down), test.ShouldBeTrue)
}
