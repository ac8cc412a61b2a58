// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Cybenetics Labs

package powenetics

import (
	"fmt"
	"time"
)

// Channel holds the latest reading for one measurement rail plus a
// monotonically accumulating energy counter. Channels are owned by the
// driver's Data snapshot and updated in place on every frame.
type Channel struct {
	name    string
	id      uint8
	voltage uint16
	current uint32
	energy  uint64

	// lastUpdate is the receipt time of the most recent sample for this
	// channel. The zero time means no sample has arrived since the last
	// reset, so no interval can be integrated yet.
	lastUpdate time.Time
}

// Name returns the fixed channel label from the channel table.
func (c *Channel) Name() string {
	return c.name
}

// ID returns the channel index in wire order.
func (c *Channel) ID() uint8 {
	return c.id
}

// Voltage returns the latest voltage in millivolts.
func (c *Channel) Voltage() uint16 {
	return c.voltage
}

// Current returns the latest current in milliamps. The wire format carries
// 24 bits, so the top byte is always zero.
func (c *Channel) Current() uint32 {
	return c.current
}

// Power returns the latest instantaneous power in microwatts (mV × mA).
func (c *Channel) Power() uint64 {
	return uint64(c.voltage) * uint64(c.current)
}

// Energy returns the accumulated energy in nanojoules (mV × mA × ms)
// since the last reset.
func (c *Channel) Energy() uint64 {
	return c.energy
}

// LastUpdate returns the receipt time of the most recent sample, or the
// zero time if none has arrived.
func (c *Channel) LastUpdate() time.Time {
	return c.lastUpdate
}

// ResetEnergy zeroes the energy accumulator. The next sample re-establishes
// the current voltage/current but keeps integrating from the existing
// baseline timestamp.
func (c *Channel) ResetEnergy() {
	c.energy = 0
}

// updateEnergy integrates the current reading over the interval since the
// previous sample. The first sample after construction only records the
// baseline timestamp. Accumulator wraparound is accepted; it is beyond
// hardware lifetime at real power levels.
func (c *Channel) updateEnergy(now time.Time) error {
	if !c.lastUpdate.IsZero() {
		elapsed := now.Sub(c.lastUpdate)
		if elapsed < 0 {
			return fmt.Errorf("time source went backwards by %v while integrating channel %d", -elapsed, c.id)
		}

		c.energy += c.Power() * uint64(elapsed.Milliseconds())
	}

	c.lastUpdate = now
	return nil
}
