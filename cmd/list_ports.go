// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Cybenetics Labs

package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.bug.st/serial/enumerator"

	"github.com/cybenetics/powenetics-go/pkg/powenetics"
)

var listAll bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List serial ports and identify Powenetics devices",
	Long: `Enumerate serial ports and flag those whose USB identity matches the
Powenetics v2 device (VID 04D8, PID 000A).

By default only likely candidates are shown: matching USB devices and
non-USB ports (which may be a PMD behind an adapter). Use --all to list
every port.`,
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().BoolVar(&listAll, "all", false, "Show every serial port, not just likely PMD candidates")
}

func runList(cmd *cobra.Command, args []string) error {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return fmt.Errorf("failed to enumerate serial ports: %w", err)
	}

	fmt.Println("Available serial ports:")

	found := 0
	for _, port := range ports {
		switch {
		case port.IsUSB && isPoweneticsUSB(port.VID, port.PID):
			fmt.Printf("  %s  (Powenetics v2, serial %s)\n", port.Name, port.SerialNumber)
			found++
		case port.IsUSB:
			if listAll {
				fmt.Printf("  %s  (USB %s:%s)\n", port.Name, port.VID, port.PID)
				found++
			}
		default:
			// May or may not be a PMD; there is no identity to check.
			fmt.Printf("  %s\n", port.Name)
			found++
		}
	}

	if found == 0 {
		fmt.Println("No ports available. Make sure that your Powenetics device is plugged in.")
	}

	return nil
}

// isPoweneticsUSB matches the enumerator's hex VID/PID strings against the
// device identity.
func isPoweneticsUSB(vid, pid string) bool {
	v, err := strconv.ParseUint(strings.TrimPrefix(vid, "0x"), 16, 16)
	if err != nil {
		return false
	}
	p, err := strconv.ParseUint(strings.TrimPrefix(pid, "0x"), 16, 16)
	if err != nil {
		return false
	}
	return v == powenetics.USBVendorID && p == powenetics.USBProductID
}
