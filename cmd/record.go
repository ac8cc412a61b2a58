// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Cybenetics Labs

package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/cybenetics/powenetics-go/pkg/powenetics"
	"github.com/cybenetics/powenetics-go/pkg/recorder"
)

var (
	csvPath        string
	recordDuration time.Duration
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Stream measurements and record them to CSV",
	Long: `Start measurement and stream frames until interrupted.

With --csv, every frame is appended to the file as one row: timestamp plus
voltage (mV), current (mA), and accumulated energy (nJ) for each of the 13
channels. An existing non-empty file is refused.

Recording stops on Ctrl+C, or after --duration if given. On an interactive
terminal a live one-line summary (frame count, total power) is shown.`,
	RunE: runRecord,
}

func init() {
	rootCmd.AddCommand(recordCmd)
	recordCmd.Flags().StringVar(&csvPath, "csv", "", "CSV output file")
	recordCmd.Flags().DurationVar(&recordDuration, "duration", 0, "Stop after this long (0 = until Ctrl+C)")
}

func runRecord(cmd *cobra.Command, args []string) error {
	log := newLogger("record")

	p, err := openDriver()
	if err != nil {
		return err
	}
	defer p.Close()

	path := csvPath
	if path == "" {
		path = cfg.CSV
	}
	if path != "" {
		rec, err := recorder.NewCSV(path)
		if err != nil {
			return err
		}
		defer rec.Close()
		p.Subscribe(rec)
		log.Info().Str("csv", path).Msg("recording to CSV")
	}

	var stop atomic.Bool

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Info().Msg("interrupt received, stopping after current frame")
		stop.Store(true)
	}()

	if recordDuration > 0 {
		timer := time.AfterFunc(recordDuration, func() {
			log.Info().Dur("duration", recordDuration).Msg("duration elapsed, stopping")
			stop.Store(true)
		})
		defer timer.Stop()
	}

	interactive := term.IsTerminal(int(os.Stdout.Fd()))
	frames := 0
	p.Subscribe(powenetics.SubscriberFunc(func(d *powenetics.Data) (bool, error) {
		frames++
		if interactive && frames%100 == 0 {
			var total uint64
			for _, ch := range d.Channels() {
				total += ch.Power()
			}
			fmt.Printf("\rFrames: %d  Total: %.2f W   ", frames, float64(total)/1e6)
		}
		return stop.Load(), nil
	}))

	log.Info().Msg("starting measurement")
	err = p.StartMeasurement()
	if interactive {
		fmt.Println()
	}
	if err != nil {
		return err
	}

	log.Info().Int("frames", frames).Msg("measurement stopped")
	return nil
}
