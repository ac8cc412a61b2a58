// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Cybenetics Labs

// Package powenetics provides a Go driver for the Powenetics v2 power
// measurement device (PMD).
//
// The PMD streams fixed-size binary frames over a USB serial link, one frame
// per sampling instant, carrying voltage and current for 13 supply rails.
// The driver validates framing and sequence continuity, integrates power
// into per-channel energy accumulators, and pushes each validated reading to
// registered subscribers.
package powenetics

import "time"

// Serial line parameters. The PMD only speaks 921600 8N1.
const (
	BaudRate = 921600

	readTimeout = 5 * time.Millisecond
)

// USB identity of the Powenetics v2 device (Microchip VID).
const (
	USBVendorID  = 0x04D8
	USBProductID = 0x000A
)

// Measurement frame layout: 2-byte marker, 2-byte big-endian sequence,
// then 13 channels of 5 bytes each (voltage u16 BE, current u24 BE).
const (
	FrameSize = 69

	frameMarker0 = 0xCA
	frameMarker1 = 0xAC

	channelStride = 5
	channelOffset = 4
)

// Command exchanges. Calibration of a single channel is the command byte
// followed by the channel id and a 3-byte big-endian reference current.
const cmdCalibrateChannel = 0xCA

var (
	cmdResetCalibration    = []byte{0xCA, 0xAC, 0xBD, 0x00}
	cmdFinalizeCalibration = []byte{0xCA, 0xAC, 0xBD, 0x01}
	cmdStartMeasurement    = []byte{0xCA, 0xAC, 0xBD, 0x90}
)

// readyMessage is printed by the device once calibration is finalized.
const readyMessage = "PMD is ready!"

// commandSettle is how long the device needs before its response (if any)
// to a calibration command is waiting in the input buffer.
const commandSettle = time.Millisecond

// ChannelCount is the fixed number of measurement channels on the PMD.
const ChannelCount = 13

// ChannelNames lists the measurement channels in wire order. Channel ids
// are indices into this table and are stable for the life of the driver.
var ChannelNames = [ChannelCount]string{
	"ATX 3.3V",
	"ATX 5V Standby",
	"ATX 12V",
	"ATX 5V",
	"EPS 12V #1",
	"ATX12VO 12V Standby",
	"EPS 12V #3",
	"EPS 12V #2",
	"PCIe 12V #3",
	"PCIe 12V #2",
	"PCIe Slot 3.3V",
	"PCIe Slot 12V",
	"PCIe 12V #1",
}
