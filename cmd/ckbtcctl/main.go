// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"
)

const (
	defaultRPCServer = "http://127.0.0.1:8390"
	defaultTimeout   = 30 * time.Second
)

func main() {
	err := newApp().Run(os.Args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[ckbtcctl] %v\n", err)
		os.Exit(1)
	}
}

// newApp creates the command line application.
func newApp() *cli.App {
	return &cli.App{
		Name:  "ckbtcctl",
		Usage: "control a ckbtcwalletd instance",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "rpcserver",
				Usage:   "base URL of the ckbtcwalletd REST server",
				Value:   defaultRPCServer,
				EnvVars: []string{"CKBTCCTL_RPCSERVER"},
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "timeout of the request",
				Value: defaultTimeout,
			},
		},
		Commands: []*cli.Command{
			feeRateCommand,
			headersCommand,
			balancesCommand,
			getPreferencesCommand,
			setPreferencesCommand,
			getPreferredAssetCommand,
			setPreferredAssetCommand,
			registerAddressCommand,
			deriveAddressCommand,
			historyCommand,
			convertToNativeCommand,
			convertToWrappedCommand,
			addressCommand,
			utxosCommand,
			sendCommand,
			fundPsbtCommand,
		},
	}
}
