// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Cybenetics Labs

package powenetics

import (
	"fmt"
	"io"

	"go.bug.st/serial"
)

// Port is the transport the driver needs: blocking reads with a short
// timeout, writes, an output drain, and a query for how many bytes are
// waiting in the input buffer. Open adapts a real serial port to this
// contract; tests substitute an in-memory implementation.
type Port interface {
	io.ReadWriteCloser

	// Drain blocks until all buffered output has been transmitted.
	Drain() error

	// ReadyToRead returns the number of bytes waiting to be read.
	ReadyToRead() (uint32, error)
}

// rawPort is the subset of go.bug.st/serial.Port the adapter builds on.
// The serial library exposes no input-queue query, so serialPort derives
// one from timed probe reads.
type rawPort interface {
	io.ReadWriteCloser
	Drain() error
}

// serialPort adapts a timed serial port to the Port contract. ReadyToRead
// collects whatever the device has already sent by probing with the port's
// short read timeout; probed bytes are buffered and served by Read before
// the port is touched again, so the query never loses data.
type serialPort struct {
	inner rawPort
	buf   []byte
}

var _ Port = (*serialPort)(nil)

func (s *serialPort) Read(p []byte) (int, error) {
	if len(s.buf) > 0 {
		n := copy(p, s.buf)
		s.buf = s.buf[n:]
		return n, nil
	}
	return s.inner.Read(p)
}

func (s *serialPort) Write(p []byte) (int, error) {
	return s.inner.Write(p)
}

func (s *serialPort) Drain() error {
	return s.inner.Drain()
}

func (s *serialPort) Close() error {
	return s.inner.Close()
}

// ReadyToRead reports how many bytes are waiting. Each probe read returns
// once at least one byte is available or the read timeout expires, so the
// loop ends on the first silent interval. Only used before streaming
// starts; a streaming device would keep the probe loop fed forever.
func (s *serialPort) ReadyToRead() (uint32, error) {
	probe := make([]byte, 64)
	for {
		n, err := s.inner.Read(probe)
		if err != nil {
			return 0, err
		}
		if n == 0 {
			return uint32(len(s.buf)), nil
		}
		s.buf = append(s.buf, probe[:n]...)
	}
}

// Open opens the serial device at path with the fixed Powenetics line
// parameters (921600 8N1, 5 ms read timeout) and returns a driver bound to
// it. The driver takes ownership of the port; Close releases it.
func Open(path string) (*Powenetics, error) {
	mode := &serial.Mode{
		BaudRate: BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", path, err)
	}

	if err := port.SetReadTimeout(readTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", path, err)
	}

	return New(&serialPort{inner: port}), nil
}
