// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Cybenetics Labs

package recorder

import (
	"encoding/binary"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/cybenetics/powenetics-go/pkg/powenetics"
)

// scriptedPort feeds pre-built frames to the driver and swallows writes.
type scriptedPort struct {
	bursts [][]byte
}

func (s *scriptedPort) Read(p []byte) (int, error) {
	if len(s.bursts) == 0 {
		return 0, nil
	}
	n := copy(p, s.bursts[0])
	s.bursts[0] = s.bursts[0][n:]
	if len(s.bursts[0]) == 0 {
		s.bursts = s.bursts[1:]
	}
	return n, nil
}

func (s *scriptedPort) Write(p []byte) (int, error) { return len(p), nil }
func (s *scriptedPort) Drain() error                { return nil }
func (s *scriptedPort) Close() error                { return nil }

// ReadyToRead reports nothing pending: the scripted device stays silent
// through the calibration handshake and only streams frames.
func (s *scriptedPort) ReadyToRead() (uint32, error) {
	return 0, nil
}

func buildFrame(seq uint16, voltage uint16, current uint32) []byte {
	buf := make([]byte, powenetics.FrameSize)
	buf[0] = 0xCA
	buf[1] = 0xAC
	binary.BigEndian.PutUint16(buf[2:4], seq)
	for i := 0; i < powenetics.ChannelCount; i++ {
		offset := 4 + i*5
		binary.BigEndian.PutUint16(buf[offset:offset+2], voltage)
		buf[offset+2] = byte(current >> 16)
		buf[offset+3] = byte(current >> 8)
		buf[offset+4] = byte(current)
	}
	return buf
}

func TestCSV_RecordsFrames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.csv")

	rec, err := NewCSV(path)
	if err != nil {
		t.Fatalf("NewCSV: %v", err)
	}

	port := &scriptedPort{}
	port.bursts = append(port.bursts, buildFrame(1, 12000, 5000), buildFrame(2, 12000, 5000))

	p := powenetics.New(port)
	p.Subscribe(rec)

	frames := 0
	p.Subscribe(powenetics.SubscriberFunc(func(d *powenetics.Data) (bool, error) {
		frames++
		return frames >= 2, nil
	}))

	if err := p.StartMeasurement(); err != nil {
		t.Fatalf("StartMeasurement: %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}

	if len(records) != 3 {
		t.Fatalf("got %d records, want header + 2 rows", len(records))
	}

	wantCols := 1 + 3*powenetics.ChannelCount
	for i, rec := range records {
		if len(rec) != wantCols {
			t.Errorf("record %d: %d columns, want %d", i, len(rec), wantCols)
		}
	}

	if records[0][0] != "Timestamp" {
		t.Errorf("header[0] = %q, want Timestamp", records[0][0])
	}
	if records[0][1] != "ATX 3.3V Voltage (mV)" {
		t.Errorf("header[1] = %q", records[0][1])
	}

	// First data row, first channel: voltage then current.
	if records[1][1] != "12000" || records[1][2] != "5000" {
		t.Errorf("row 1 channel 0 = (%s, %s), want (12000, 5000)", records[1][1], records[1][2])
	}
}

func TestCSV_RefusesNonEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "existing.csv")
	if err := os.WriteFile(path, []byte("old data\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := NewCSV(path); !errors.Is(err, ErrFileNotEmpty) {
		t.Errorf("NewCSV = %v, want ErrFileNotEmpty", err)
	}
}

func TestCSV_AcceptsEmptyExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.csv")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	rec, err := NewCSV(path)
	if err != nil {
		t.Fatalf("NewCSV: %v", err)
	}
	rec.Close()
}
