// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Cybenetics Labs

package powenetics

import (
	"errors"
	"fmt"
)

// Precondition and device-condition errors. These are reported before any
// I/O takes place and are recoverable by the caller adjusting its behavior.
var (
	// ErrMeasurementAlreadyStarted is returned by configuration operations
	// once StartMeasurement has been called. The started state is
	// irreversible; construct a new driver to reconfigure.
	ErrMeasurementAlreadyStarted = errors.New("unable to change measurement configuration after measurement has already started")

	// ErrInvalidChannel is returned for a channel id or name outside the
	// fixed 13-entry channel table.
	ErrInvalidChannel = errors.New("invalid channel requested")

	// ErrNoPowerOnChannel is returned by Calibrate when the device reports
	// that the requested channel carries no power. The caller may retry
	// after applying power; the connection remains usable.
	ErrNoPowerOnChannel = errors.New("no power on channel, cannot calibrate")

	// ErrNoSubscribers is returned by StartMeasurement when no subscriber
	// has been registered. No transport writes are performed.
	ErrNoSubscribers = errors.New("no subscribers specified")
)

// ProtocolError reports a violation of the Powenetics wire protocol: a bad
// frame marker, a sequence discontinuity, an unexpected calibration ack, or
// malformed ready text. The byte stream must be assumed desynchronized, so
// the only recovery is to unplug and reconnect the device; the driver never
// retries or resynchronizes.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("powenetics protocol error, unplug and reconnect device. reason: %s", e.Reason)
}

func protocolErrorf(format string, args ...interface{}) error {
	return &ProtocolError{Reason: fmt.Sprintf(format, args...)}
}

// SubscriberError wraps an error returned by a subscriber callback. It is
// distinct from protocol errors: the stream itself was healthy, but a
// consumer failed, which aborts the measurement loop.
type SubscriberError struct {
	Err error
}

func (e *SubscriberError) Error() string {
	return fmt.Sprintf("subscriber error: %v", e.Err)
}

func (e *SubscriberError) Unwrap() error {
	return e.Err
}
