// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Cybenetics Labs

// Package recorder provides measurement subscribers that persist readings.
package recorder

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/cybenetics/powenetics-go/pkg/powenetics"
)

// ErrFileNotEmpty is returned when the target CSV file already exists and
// contains data. Appending to a recording with an unknown column layout is
// never safe, so the caller must pick a fresh path.
var ErrFileNotEmpty = errors.New("csv file already exists and is not empty")

// CSV records every measurement frame as one row: the frame timestamp
// followed by voltage, current, and energy for each of the 13 channels.
// It implements powenetics.Subscriber and never votes to stop.
type CSV struct {
	file   *os.File
	writer *csv.Writer
}

// NewCSV creates the file, writes the header row, and returns the
// subscriber. An existing non-empty file is refused with ErrFileNotEmpty.
func NewCSV(path string) (*CSV, error) {
	if info, err := os.Stat(path); err == nil && info.Size() != 0 {
		return nil, ErrFileNotEmpty
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	c := &CSV{
		file:   file,
		writer: csv.NewWriter(file),
	}

	header := make([]string, 0, 1+3*powenetics.ChannelCount)
	header = append(header, "Timestamp")
	for _, name := range powenetics.ChannelNames {
		header = append(header,
			name+" Voltage (mV)",
			name+" Current (mA)",
			name+" Energy (nJ)",
		)
	}

	if err := c.writer.Write(header); err != nil {
		file.Close()
		return nil, err
	}

	return c, nil
}

// Update implements powenetics.Subscriber.
func (c *CSV) Update(d *powenetics.Data) (bool, error) {
	row := make([]string, 0, 1+3*powenetics.ChannelCount)

	seconds := float64(d.LastUpdate().UnixNano()) / 1e9
	row = append(row, fmt.Sprintf("%.5f", seconds))

	for _, ch := range d.Channels() {
		row = append(row,
			strconv.FormatUint(uint64(ch.Voltage()), 10),
			strconv.FormatUint(uint64(ch.Current()), 10),
			strconv.FormatUint(ch.Energy(), 10),
		)
	}

	if err := c.writer.Write(row); err != nil {
		return false, err
	}

	return false, nil
}

// Close flushes buffered rows and closes the file.
func (c *CSV) Close() error {
	c.writer.Flush()
	if err := c.writer.Error(); err != nil {
		c.file.Close()
		return err
	}
	return c.file.Close()
}
