// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Cybenetics Labs
//
// powenetics - CLI for the Powenetics v2 power measurement device.

package main

import (
	"os"

	"github.com/cybenetics/powenetics-go/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
