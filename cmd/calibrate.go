// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Cybenetics Labs

package cmd

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/cybenetics/powenetics-go/pkg/powenetics"
)

var (
	calibrateChannel   string
	calibrateReference uint32
	calibrateReset     bool
)

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Calibrate a measurement channel against a reference current",
	Long: `Set the calibration reference for one channel, or reset all channel
calibrations with --reset.

The channel is selected by numeric id (0-12) or by name, e.g. "ATX 12V".
The reference is the known load current in milliamps that is flowing on the
channel while calibrating. The channel must be powered; an unpowered
channel is reported distinctly so calibration can be retried after power
is applied.

Calibration only works before measurement starts. The commands take effect
on the next 'record', 'watch', or 'serve' run.

Exit codes:
  0 - calibration accepted
  1 - no power on the channel (retry after applying power)
  2 - protocol or connection error (unplug and reconnect the device)`,
	RunE: runCalibrate,
}

func init() {
	rootCmd.AddCommand(calibrateCmd)
	calibrateCmd.Flags().StringVar(&calibrateChannel, "channel", "", "Channel id (0-12) or name")
	calibrateCmd.Flags().Uint32Var(&calibrateReference, "reference", 0, "Reference current in mA")
	calibrateCmd.Flags().BoolVar(&calibrateReset, "reset", false, "Reset all channel calibrations")
}

func runCalibrate(cmd *cobra.Command, args []string) error {
	if !calibrateReset && calibrateChannel == "" {
		return fmt.Errorf("either --channel or --reset must be specified")
	}

	p, err := openDriver()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}

	// doCalibrate owns the driver and closes it before returning, so the
	// port is released even on the paths that end the process here.
	code, err := doCalibrate(p)
	if err != nil {
		return err
	}
	if code != 0 {
		os.Exit(code)
	}
	return nil
}

func doCalibrate(p *powenetics.Powenetics) (int, error) {
	defer p.Close()

	if calibrateReset {
		if err := p.ResetCalibration(); err != nil {
			return 0, err
		}
		fmt.Println("Calibration reset on all channels")
		return 0, nil
	}

	ch, err := lookupChannel(p.Data(), calibrateChannel)
	if err != nil {
		return 0, err
	}

	fmt.Printf("Calibrating %q (channel %d) against %d mA...\n", ch.Name(), ch.ID(), calibrateReference)

	switch err := p.Calibrate(ch, calibrateReference); {
	case err == nil:
		fmt.Println("Calibration accepted")
		return 0, nil
	case errors.Is(err, powenetics.ErrNoPowerOnChannel):
		fmt.Fprintf(os.Stderr, "No power on %q. Apply load to the channel and retry.\n", ch.Name())
		return 1, nil
	default:
		fmt.Fprintf(os.Stderr, "Calibration failed: %v\n", err)
		return 2, nil
	}
}

// lookupChannel resolves a --channel value, which is a name from the
// channel table or a numeric id.
func lookupChannel(d *powenetics.Data, key string) (*powenetics.Channel, error) {
	if ch, err := d.ChannelByName(key); err == nil {
		return ch, nil
	}

	id, err := strconv.Atoi(key)
	if err != nil {
		return nil, fmt.Errorf("unknown channel %q: not a channel name or id", key)
	}

	ch, err := d.ChannelByID(id)
	if err != nil {
		return nil, fmt.Errorf("unknown channel id %d: valid ids are 0-%d", id, powenetics.ChannelCount-1)
	}
	return ch, nil
}
