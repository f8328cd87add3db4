package utils

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"go.einride.tech/can"
	"go.einride.tech/can/pkg/socketcan"
)

var ErrBusClosed = errors.New("can bus closed")

type CANWriter interface {
	WriteFrame(ctx context.Context, frame can.Frame) error
	Close() error
}

type CANReader interface {
	ReadFrame(ctx context.Context) (can.Frame, error)
	Close() error
}

type SocketCANWriter struct {
	conn net.Conn
	tx   *socketcan.Transmitter
}

func NewSocketCANWriter(ctx context.Context, iface string) (*SocketCANWriter, error) {
	conn, err := socketcan.DialContext(ctx, "can", iface)
	if err != nil {
		return nil, fmt.Errorf("socketcan dial %s: %w", iface, err)
	}
	return &SocketCANWriter{
		conn: conn,
		tx:   socketcan.NewTransmitter(conn),
	}, nil
}

func (w *SocketCANWriter) WriteFrame(ctx context.Context, frame can.Frame) error {
	return w.tx.TransmitFrame(ctx, frame)
}

func (w *SocketCANWriter) Close() error {
	if w.conn != nil {
		return w.conn.Close()
	}
	return nil
}

// SocketCANReader runs a single receive goroutine; ReadFrame waits on it.
type SocketCANReader struct {
	conn   net.Conn
	frames chan can.Frame
	done   chan struct{}
	closed chan struct{}
	err    error
	once   sync.Once
}

func NewSocketCANReader(ctx context.Context, iface string) (*SocketCANReader, error) {
	conn, err := socketcan.DialContext(ctx, "can", iface)
	if err != nil {
		return nil, fmt.Errorf("socketcan dial %s: %w", iface, err)
	}
	return newSocketCANReader(conn, socketcan.NewReceiver(conn)), nil
}

// frameReceiver is the part of *socketcan.Receiver the reader depends on.
type frameReceiver interface {
	Receive() bool
	HasErrorFrame() bool
	Frame() can.Frame
	Err() error
}

func newSocketCANReader(conn net.Conn, recv frameReceiver) *SocketCANReader {
	r := &SocketCANReader{
		conn:   conn,
		frames: make(chan can.Frame, 64),
		done:   make(chan struct{}),
		closed: make(chan struct{}),
	}
	go r.receive(recv)
	return r
}

func (r *SocketCANReader) receive(recv frameReceiver) {
	defer close(r.done)
	for recv.Receive() {
		if recv.HasErrorFrame() {
			continue
		}
		select {
		case r.frames <- recv.Frame():
		case <-r.closed:
			r.err = ErrBusClosed
			return
		}
	}
	select {
	case <-r.closed:
		r.err = ErrBusClosed
		return
	default:
	}
	r.err = recv.Err()
	if r.err == nil {
		r.err = ErrBusClosed
	}
}

// ReadFrame blocks until a frame arrives, the context ends, or the socket fails.
func (r *SocketCANReader) ReadFrame(ctx context.Context) (can.Frame, error) {
	select {
	case <-ctx.Done():
		return can.Frame{}, ctx.Err()
	case f := <-r.frames:
		return f, nil
	case <-r.done:
		// drain what was queued before the socket went away
		select {
		case f := <-r.frames:
			return f, nil
		default:
		}
		return can.Frame{}, r.err
	}
}

func (r *SocketCANReader) Close() error {
	var err error
	r.once.Do(func() {
		close(r.closed)
		if r.conn != nil {
			err = r.conn.Close()
		}
	})
	return err
}

// LoopbackBus delivers every written frame to its reader side. It stands in
// for a vcan interface in tests.
type LoopbackBus struct {
	frames chan can.Frame
	closed chan struct{}
	once   sync.Once
}

func NewLoopbackBus(depth int) *LoopbackBus {
	return &LoopbackBus{
		frames: make(chan can.Frame, depth),
		closed: make(chan struct{}),
	}
}

func (b *LoopbackBus) WriteFrame(ctx context.Context, frame can.Frame) error {
	select {
	case <-b.closed:
		return ErrBusClosed
	default:
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-b.closed:
		return ErrBusClosed
	case b.frames <- frame:
		return nil
	}
}

func (b *LoopbackBus) ReadFrame(ctx context.Context) (can.Frame, error) {
	select {
	case <-ctx.Done():
		return can.Frame{}, ctx.Err()
	case f := <-b.frames:
		return f, nil
	case <-b.closed:
		return can.Frame{}, ErrBusClosed
	}
}

func (b *LoopbackBus) Close() error {
	b.once.Do(func() { close(b.closed) })
	return nil
}
