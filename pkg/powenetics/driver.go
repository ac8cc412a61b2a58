// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Cybenetics Labs

package powenetics

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Powenetics drives one PMD over an exclusively owned transport. The
// driver is single-threaded: calibration, StartMeasurement, and all
// subscriber callbacks run on the caller's goroutine, and StartMeasurement
// does not return until the measurement loop ends. A slow subscriber slows
// frame consumption; the serial buffers absorb the difference at the
// device's data rate.
type Powenetics struct {
	port        Port
	data        Data
	subscribers []Subscriber
	started     bool

	// now is the frame timestamp source, replaceable in tests.
	now func() time.Time
}

// New returns a driver bound to an already opened transport with all
// channels zeroed. The driver takes ownership of the port.
func New(port Port) *Powenetics {
	return &Powenetics{
		port: port,
		data: newData(),
		now:  time.Now,
	}
}

// Subscribe registers a subscriber. Subscribers are notified in
// registration order, once per validated frame.
func (p *Powenetics) Subscribe(s Subscriber) {
	p.subscribers = append(p.subscribers, s)
}

// Data returns the driver's live snapshot. Before the first frame all
// channels read zero.
func (p *Powenetics) Data() *Data {
	return &p.data
}

// Close closes the underlying transport.
func (p *Powenetics) Close() error {
	return p.port.Close()
}

// Calibrate sets the reference current for one channel. The reference is
// transmitted as the low 3 bytes of a big-endian 32-bit value, in
// milliamps. Returns ErrNoPowerOnChannel if the device reports the channel
// as unpowered (recoverable: apply power and retry); any other response is
// a ProtocolError. Only valid before StartMeasurement.
func (p *Powenetics) Calibrate(ch *Channel, reference uint32) error {
	if p.started {
		return ErrMeasurementAlreadyStarted
	}

	cmd := []byte{
		cmdCalibrateChannel,
		ch.id,
		byte(reference >> 16),
		byte(reference >> 8),
		byte(reference),
	}
	if _, err := p.port.Write(cmd); err != nil {
		return err
	}
	if err := p.port.Drain(); err != nil {
		return err
	}

	time.Sleep(commandSettle)

	pending, err := p.port.ReadyToRead()
	if err != nil {
		return err
	}

	switch pending {
	case 0:
		// Calibration accepted silently.
		return nil

	case 2:
		var buf [2]byte
		if err := p.readFull(buf[:]); err != nil {
			return err
		}

		if buf[0] == frameMarker0 && buf[1] == frameMarker1 {
			return ErrNoPowerOnChannel
		}
		return protocolErrorf("expected [0xCA, 0xAC], received [%#02X, %#02X]", buf[0], buf[1])

	default:
		return protocolErrorf("expected 2 bytes, received %d", pending)
	}
}

// ResetCalibration clears all channel calibration references. The device
// sends no response. Only valid before StartMeasurement.
func (p *Powenetics) ResetCalibration() error {
	if p.started {
		return ErrMeasurementAlreadyStarted
	}

	if _, err := p.port.Write(cmdResetCalibration); err != nil {
		return err
	}
	return p.port.Drain()
}

// finalizeCalibration commits the calibration and gives the device time to
// emit its ready text.
func (p *Powenetics) finalizeCalibration() error {
	if p.started {
		return ErrMeasurementAlreadyStarted
	}

	if _, err := p.port.Write(cmdFinalizeCalibration); err != nil {
		return err
	}
	if err := p.port.Drain(); err != nil {
		return err
	}

	time.Sleep(commandSettle)
	return nil
}

// StartMeasurement finalizes calibration, commands the device to stream,
// and runs the measurement loop until a subscriber requests stop or an
// unrecoverable error occurs. Preconditions (not already started, at least
// one subscriber) are checked before any transport I/O.
func (p *Powenetics) StartMeasurement() error {
	if p.started {
		return ErrMeasurementAlreadyStarted
	}
	if len(p.subscribers) == 0 {
		return ErrNoSubscribers
	}

	if err := p.finalizeCalibration(); err != nil {
		return err
	}

	// The device announces readiness as text. It may also stay silent if
	// calibration was never touched.
	pending, err := p.port.ReadyToRead()
	if err != nil {
		return err
	}
	if pending != 0 {
		buf := make([]byte, pending)
		if err := p.readFull(buf); err != nil {
			return err
		}

		if len(buf) < len(readyMessage) || string(buf[:len(readyMessage)]) != readyMessage {
			return protocolErrorf("expected %q, received %v", readyMessage, buf)
		}
	}

	if _, err := p.port.Write(cmdStartMeasurement); err != nil {
		return err
	}
	if err := p.port.Drain(); err != nil {
		return err
	}

	p.started = true
	return p.wait()
}

// wait is the measurement loop: one 69-byte frame per iteration, validated,
// folded into the snapshot, and dispatched to every subscriber.
func (p *Powenetics) wait() error {
	sequence := uint16(1)
	var buf [FrameSize]byte

	for {
		if err := p.readFull(buf[:]); err != nil {
			return err
		}

		p.data.lastUpdate = p.now()

		if buf[0] != frameMarker0 || buf[1] != frameMarker1 {
			return protocolErrorf("expected [0xCA, 0xAC], received [%#02X, %#02X]", buf[0], buf[1])
		}

		received := binary.BigEndian.Uint16(buf[2:4])
		if received != sequence {
			return protocolErrorf("expected sequence %d, received %d", sequence, received)
		}
		sequence++ // wraps after 0xFFFF

		for i := range p.data.channels {
			offset := channelOffset + i*channelStride
			ch := &p.data.channels[i]

			ch.voltage = binary.BigEndian.Uint16(buf[offset : offset+2])
			ch.current = uint32(buf[offset+2])<<16 | uint32(buf[offset+3])<<8 | uint32(buf[offset+4])

			if err := ch.updateEnergy(p.data.lastUpdate); err != nil {
				return err
			}
		}

		stop := false
		for _, sub := range p.subscribers {
			s, err := sub.Update(&p.data)
			if err != nil {
				return &SubscriberError{Err: err}
			}
			stop = stop || s
		}

		if stop {
			return nil
		}
	}
}

// readFull reads exactly len(buf) bytes. The transport's read timeout
// surfaces as a zero-byte read, which is an error here: mid-frame silence
// means the stream is gone and the frame boundary is lost.
func (p *Powenetics) readFull(buf []byte) error {
	total := 0
	for total < len(buf) {
		n, err := p.port.Read(buf[total:])
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("read timed out after %d of %d bytes", total, len(buf))
		}
		total += n
	}
	return nil
}
