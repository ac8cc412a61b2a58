// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Cybenetics Labs

package powenetics

import "time"

// Data is the live snapshot of all channels plus the receipt time of the
// most recent frame. The driver owns exactly one Data value and overwrites
// it in place on every frame, so a subscriber that needs history must copy
// the fields it cares about during its callback.
type Data struct {
	channels   [ChannelCount]Channel
	lastUpdate time.Time
}

func newData() Data {
	d := Data{}
	for i := range d.channels {
		d.channels[i] = Channel{
			name: ChannelNames[i],
			id:   uint8(i),
		}
	}
	return d
}

// Channels returns all channels in wire order.
func (d *Data) Channels() []Channel {
	return d.channels[:]
}

// ChannelByID returns the channel with the given index, or ErrInvalidChannel
// if the index is outside the fixed channel table.
func (d *Data) ChannelByID(id int) (*Channel, error) {
	if id < 0 || id >= len(d.channels) {
		return nil, ErrInvalidChannel
	}

	return &d.channels[id], nil
}

// ChannelByName returns the channel with the given fixed label, or
// ErrInvalidChannel if the name is not in the channel table.
func (d *Data) ChannelByName(name string) (*Channel, error) {
	for i, n := range ChannelNames {
		if n == name {
			return &d.channels[i], nil
		}
	}

	return nil, ErrInvalidChannel
}

// LastUpdate returns the receipt time of the most recent frame, or the zero
// time before the first frame arrives.
func (d *Data) LastUpdate() time.Time {
	return d.lastUpdate
}
