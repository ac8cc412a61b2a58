// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Cybenetics Labs

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cybenetics/powenetics-go/pkg/powenetics"
)

var (
	portName   string
	configPath string

	cfg Config
)

var rootCmd = &cobra.Command{
	Use:   "powenetics",
	Short: "Powenetics v2 power measurement tool",
	Long: `Powenetics - capture per-rail voltage, current, and energy from a
Powenetics v2 power measurement device (PMD) over USB serial.

The PMD measures 13 supply rails (ATX, EPS, PCIe slot and cables) at the
wire. This tool calibrates the device, streams live readings, records them
to CSV, and can publish them to WebSocket clients.

Run 'powenetics list' to find the device's serial port.

A TOML config file (--config) may provide defaults for the port, CSV path,
and listen address; command-line flags take precedence.`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configPath == "" {
			return nil
		}
		var err error
		cfg, err = LoadConfig(configPath)
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device (e.g. /dev/ttyACM0)")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "TOML config file")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// resolvePort returns the serial port to use, preferring the flag over the
// config file.
func resolvePort() (string, error) {
	if portName != "" {
		return portName, nil
	}
	if cfg.Port != "" {
		return cfg.Port, nil
	}
	return "", fmt.Errorf("no serial port specified: use --port or set 'port' in the config file (try 'powenetics list')")
}

// openDriver resolves the port and opens a driver bound to it.
func openDriver() (*powenetics.Powenetics, error) {
	path, err := resolvePort()
	if err != nil {
		return nil, err
	}
	return powenetics.Open(path)
}
