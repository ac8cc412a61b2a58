// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Cybenetics Labs

package powenetics

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"testing"
	"time"
)

// fakePort plays the device side of the link. pending holds bytes the
// device has already emitted (calibration acks, ready text) and is what
// ReadyToRead reports; bursts holds streamed frames that become readable
// once pending drains. A Read with nothing available returns (0, nil) like
// a timed-out serial read.
type fakePort struct {
	pending []byte
	bursts  [][]byte
	writes  bytes.Buffer
	drains  int
	closed  bool
	readErr error
}

func (f *fakePort) queue(b []byte) {
	f.bursts = append(f.bursts, b)
}

func (f *fakePort) Read(p []byte) (int, error) {
	if f.readErr != nil {
		return 0, f.readErr
	}
	if len(f.pending) > 0 {
		n := copy(p, f.pending)
		f.pending = f.pending[n:]
		return n, nil
	}
	if len(f.bursts) == 0 {
		return 0, nil // timeout
	}

	n := copy(p, f.bursts[0])
	f.bursts[0] = f.bursts[0][n:]
	if len(f.bursts[0]) == 0 {
		f.bursts = f.bursts[1:]
	}
	return n, nil
}

func (f *fakePort) Write(p []byte) (int, error) {
	return f.writes.Write(p)
}

func (f *fakePort) Drain() error {
	f.drains++
	return nil
}

func (f *fakePort) ReadyToRead() (uint32, error) {
	return uint32(len(f.pending)), nil
}

func (f *fakePort) Close() error {
	f.closed = true
	return nil
}

// buildFrame builds one valid 69-byte measurement frame with every channel
// carrying the same voltage/current pair.
func buildFrame(seq uint16, voltage uint16, current uint32) []byte {
	buf := make([]byte, FrameSize)
	buf[0] = 0xCA
	buf[1] = 0xAC
	binary.BigEndian.PutUint16(buf[2:4], seq)

	for i := 0; i < ChannelCount; i++ {
		offset := 4 + i*5
		binary.BigEndian.PutUint16(buf[offset:offset+2], voltage)
		buf[offset+2] = byte(current >> 16)
		buf[offset+3] = byte(current >> 8)
		buf[offset+4] = byte(current)
	}

	return buf
}

// stopAfter subscribes a callback that requests stop on the nth frame.
func stopAfter(n int) (*int, SubscriberFunc) {
	calls := new(int)
	return calls, func(d *Data) (bool, error) {
		*calls++
		return *calls >= n, nil
	}
}

func TestCalibrate_Accepted(t *testing.T) {
	port := &fakePort{}
	p := New(port)

	ch, err := p.Data().ChannelByID(3)
	if err != nil {
		t.Fatalf("ChannelByID: %v", err)
	}

	if err := p.Calibrate(ch, 0x012345); err != nil {
		t.Fatalf("Calibrate: %v", err)
	}

	want := []byte{0xCA, 3, 0x01, 0x23, 0x45}
	if !bytes.Equal(port.writes.Bytes(), want) {
		t.Errorf("wrote % X, want % X", port.writes.Bytes(), want)
	}
	if port.drains != 1 {
		t.Errorf("drains = %d, want 1", port.drains)
	}
}

func TestCalibrate_NoPowerOnChannel(t *testing.T) {
	port := &fakePort{pending: []byte{0xCA, 0xAC}}
	p := New(port)

	ch, _ := p.Data().ChannelByID(0)
	if err := p.Calibrate(ch, 1000); !errors.Is(err, ErrNoPowerOnChannel) {
		t.Errorf("Calibrate = %v, want ErrNoPowerOnChannel", err)
	}
}

func TestCalibrate_ProtocolErrors(t *testing.T) {
	tests := []struct {
		name     string
		response []byte
	}{
		{"two bytes without the ack marker", []byte{0x01, 0x02}},
		{"one pending byte", []byte{0xCA}},
		{"five pending bytes", []byte{0xCA, 0xAC, 0x00, 0x00, 0x00}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			port := &fakePort{pending: tt.response}
			p := New(port)

			ch, _ := p.Data().ChannelByID(0)
			err := p.Calibrate(ch, 1000)

			var protoErr *ProtocolError
			if !errors.As(err, &protoErr) {
				t.Errorf("Calibrate = %v, want ProtocolError", err)
			}
		})
	}
}

func TestResetCalibration(t *testing.T) {
	port := &fakePort{}
	p := New(port)

	if err := p.ResetCalibration(); err != nil {
		t.Fatalf("ResetCalibration: %v", err)
	}

	want := []byte{0xCA, 0xAC, 0xBD, 0x00}
	if !bytes.Equal(port.writes.Bytes(), want) {
		t.Errorf("wrote % X, want % X", port.writes.Bytes(), want)
	}
}

func TestOperationsFailAfterStart(t *testing.T) {
	tests := []struct {
		name string
		op   func(p *Powenetics) error
	}{
		{"Calibrate", func(p *Powenetics) error {
			ch, _ := p.Data().ChannelByID(0)
			return p.Calibrate(ch, 1000)
		}},
		{"ResetCalibration", func(p *Powenetics) error {
			return p.ResetCalibration()
		}},
		{"StartMeasurement", func(p *Powenetics) error {
			return p.StartMeasurement()
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			port := &fakePort{}
			p := New(port)
			p.started = true

			if err := tt.op(p); !errors.Is(err, ErrMeasurementAlreadyStarted) {
				t.Errorf("got %v, want ErrMeasurementAlreadyStarted", err)
			}
			if port.writes.Len() != 0 {
				t.Errorf("performed I/O after start: wrote % X", port.writes.Bytes())
			}
		})
	}
}

func TestStartMeasurement_NoSubscribers(t *testing.T) {
	port := &fakePort{}
	p := New(port)

	if err := p.StartMeasurement(); !errors.Is(err, ErrNoSubscribers) {
		t.Fatalf("StartMeasurement = %v, want ErrNoSubscribers", err)
	}
	if port.writes.Len() != 0 {
		t.Errorf("performed I/O without subscribers: wrote % X", port.writes.Bytes())
	}
}

func TestStartMeasurement_TwoFramesThenStop(t *testing.T) {
	port := &fakePort{pending: []byte(readyMessage)}
	port.queue(buildFrame(1, 12000, 5000))
	port.queue(buildFrame(2, 11980, 5100))
	p := New(port)

	calls, sub := stopAfter(2)
	p.Subscribe(sub)

	if err := p.StartMeasurement(); err != nil {
		t.Fatalf("StartMeasurement: %v", err)
	}

	if *calls != 2 {
		t.Errorf("subscriber called %d times, want 2", *calls)
	}

	for i, ch := range p.Data().Channels() {
		if ch.Voltage() != 11980 {
			t.Errorf("channel %d: voltage = %d, want 11980", i, ch.Voltage())
		}
		if ch.Current() != 5100 {
			t.Errorf("channel %d: current = %d, want 5100", i, ch.Current())
		}
		if ch.LastUpdate().IsZero() {
			t.Errorf("channel %d: missing baseline timestamp", i)
		}
	}

	// finalize calibration then begin streaming
	want := append([]byte{0xCA, 0xAC, 0xBD, 0x01}, 0xCA, 0xAC, 0xBD, 0x90)
	if !bytes.Equal(port.writes.Bytes(), want) {
		t.Errorf("wrote % X, want % X", port.writes.Bytes(), want)
	}
	if p.Data().LastUpdate().IsZero() {
		t.Error("snapshot timestamp not set")
	}
}

func TestStartMeasurement_EnergyAcrossFrames(t *testing.T) {
	port := &fakePort{}
	port.queue(buildFrame(1, 12000, 5000))
	port.queue(buildFrame(2, 3300, 100))
	port.queue(buildFrame(3, 3300, 100))
	p := New(port)

	// Deterministic clock: each frame lands 10 ms after the previous one.
	base := time.Now()
	ticks := 0
	p.now = func() time.Time {
		ticks++
		return base.Add(time.Duration(ticks) * 10 * time.Millisecond)
	}

	_, sub := stopAfter(3)
	p.Subscribe(sub)

	if err := p.StartMeasurement(); err != nil {
		t.Fatalf("StartMeasurement: %v", err)
	}

	// Frame 1 is baseline only. Frames 2 and 3 each store their values and
	// integrate them over the 10 ms since the previous frame.
	want := uint64(3300 * 100 * 10 * 2)
	for i, ch := range p.Data().Channels() {
		if ch.Energy() != want {
			t.Errorf("channel %d: energy = %d, want %d", i, ch.Energy(), want)
		}
	}
}

func TestStartMeasurement_BadReadyText(t *testing.T) {
	port := &fakePort{pending: []byte("bootloader v1.2")}
	p := New(port)

	_, sub := stopAfter(1)
	p.Subscribe(sub)

	err := p.StartMeasurement()
	var protoErr *ProtocolError
	if !errors.As(err, &protoErr) {
		t.Fatalf("StartMeasurement = %v, want ProtocolError", err)
	}
}

func TestWait_BadFrameMarker(t *testing.T) {
	frame := buildFrame(1, 12000, 5000)
	frame[0] = 0x00

	port := &fakePort{}
	port.queue(frame)
	p := New(port)

	_, sub := stopAfter(1)
	p.Subscribe(sub)

	err := p.StartMeasurement()
	var protoErr *ProtocolError
	if !errors.As(err, &protoErr) {
		t.Fatalf("StartMeasurement = %v, want ProtocolError", err)
	}
}

func TestWait_SequenceMismatchStopsReading(t *testing.T) {
	port := &fakePort{}
	port.queue(buildFrame(2, 12000, 5000)) // first frame must be sequence 1
	port.queue(buildFrame(3, 12000, 5000))
	p := New(port)

	calls, sub := stopAfter(10)
	p.Subscribe(sub)

	err := p.StartMeasurement()
	var protoErr *ProtocolError
	if !errors.As(err, &protoErr) {
		t.Fatalf("StartMeasurement = %v, want ProtocolError", err)
	}

	if *calls != 0 {
		t.Errorf("subscriber called %d times on a broken stream", *calls)
	}
	if len(port.bursts) != 1 {
		t.Errorf("loop kept reading after sequence error: %d bursts left", len(port.bursts))
	}
}

func TestWait_SequenceWrapsAfter65535(t *testing.T) {
	// The counter is 16 bits wide: after frame 65535 the device sends
	// sequence 0, then counts up again.
	stream := make([]byte, 0, (0x10001)*FrameSize)
	for seq := 1; seq <= 0xFFFF; seq++ {
		stream = append(stream, buildFrame(uint16(seq), 12000, 5000)...)
	}
	stream = append(stream, buildFrame(0, 12000, 5000)...)
	stream = append(stream, buildFrame(1, 12000, 5000)...)

	port := &fakePort{}
	port.queue(stream)
	p := New(port)

	total := 0x10001
	calls, sub := stopAfter(total)
	p.Subscribe(sub)

	if err := p.StartMeasurement(); err != nil {
		t.Fatalf("StartMeasurement: %v", err)
	}
	if *calls != total {
		t.Errorf("subscriber called %d times, want %d", *calls, total)
	}
}

func TestWait_SubscriberErrorAbortsLoop(t *testing.T) {
	port := &fakePort{}
	port.queue(buildFrame(1, 12000, 5000))
	p := New(port)

	boom := fmt.Errorf("disk full")
	secondCalled := false

	p.Subscribe(SubscriberFunc(func(d *Data) (bool, error) {
		return false, boom
	}))
	p.Subscribe(SubscriberFunc(func(d *Data) (bool, error) {
		secondCalled = true
		return false, nil
	}))

	err := p.StartMeasurement()
	var subErr *SubscriberError
	if !errors.As(err, &subErr) {
		t.Fatalf("StartMeasurement = %v, want SubscriberError", err)
	}
	if !errors.Is(err, boom) {
		t.Errorf("SubscriberError does not wrap the cause: %v", err)
	}
	if secondCalled {
		t.Error("later subscriber was invoked after an earlier one failed")
	}
}

func TestWait_AllSubscribersSeeFrameBeforeStop(t *testing.T) {
	port := &fakePort{}
	port.queue(buildFrame(1, 12000, 5000))
	p := New(port)

	secondCalls := 0
	p.Subscribe(SubscriberFunc(func(d *Data) (bool, error) {
		return true, nil // vote stop on the first frame
	}))
	p.Subscribe(SubscriberFunc(func(d *Data) (bool, error) {
		secondCalls++
		return false, nil
	}))

	if err := p.StartMeasurement(); err != nil {
		t.Fatalf("StartMeasurement: %v", err)
	}
	if secondCalls != 1 {
		t.Errorf("second subscriber called %d times, want 1", secondCalls)
	}
}

func TestWait_ReadErrorPropagates(t *testing.T) {
	port := &fakePort{readErr: fmt.Errorf("device unplugged")}
	p := New(port)

	_, sub := stopAfter(1)
	p.Subscribe(sub)

	err := p.StartMeasurement()
	if err == nil || !errors.Is(err, port.readErr) {
		t.Fatalf("StartMeasurement = %v, want wrapped read error", err)
	}
}

func TestWait_TimeoutMidFrame(t *testing.T) {
	port := &fakePort{}
	port.queue(buildFrame(1, 12000, 5000)[:30]) // truncated frame, then silence
	p := New(port)

	_, sub := stopAfter(1)
	p.Subscribe(sub)

	if err := p.StartMeasurement(); err == nil {
		t.Fatal("expected error for mid-frame timeout, got nil")
	}
}

func TestClose_ClosesPort(t *testing.T) {
	port := &fakePort{}
	p := New(port)

	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !port.closed {
		t.Error("underlying port not closed")
	}
}
