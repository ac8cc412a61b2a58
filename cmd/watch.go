// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Cybenetics Labs

package cmd

import (
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/cybenetics/powenetics-go/pkg/powenetics"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live per-channel view of voltage, current, power, and energy",
	Long: `Start measurement and show a live table of all 13 channels.

Energy accumulates from the moment measurement starts. Press 'q' to quit;
quitting stops the measurement stream.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	path, err := resolvePort()
	if err != nil {
		return err
	}

	p, err := powenetics.Open(path)
	if err != nil {
		return err
	}
	defer p.Close()

	prog := tea.NewProgram(newWatchModel(path))

	var stop atomic.Bool
	p.Subscribe(powenetics.SubscriberFunc(func(d *powenetics.Data) (bool, error) {
		prog.Send(frameMsg{
			rows:     buildRows(d),
			received: d.LastUpdate(),
		})
		return stop.Load(), nil
	}))

	// The measurement loop blocks its goroutine until a subscriber votes
	// stop; the TUI owns the foreground.
	done := make(chan error, 1)
	go func() {
		err := p.StartMeasurement()
		done <- err
		prog.Send(streamStoppedMsg{err: err})
	}()

	final, err := prog.Run()
	stop.Store(true)

	// The stop vote lands on the next frame; wait for the loop to unwind
	// before the deferred Close pulls the port out from under it.
	streamErr := <-done

	if err != nil {
		return err
	}
	if m, ok := final.(watchModel); ok && m.quitting {
		return nil
	}
	return streamErr
}
