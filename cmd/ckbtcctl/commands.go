// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/btcsuite/ckbtcwallet/internal/httpclient"
	"github.com/urfave/cli/v2"
)

var feeRateCommand = &cli.Command{
	Name:  "feerate",
	Usage: "show the working fee rate in msat/vB",
	Action: func(c *cli.Context) error {
		return call(c, http.MethodGet, "/v1/feerate", nil)
	},
}

var headersCommand = &cli.Command{
	Name:      "headers",
	Usage:     "show the block headers from start up to end or the tip",
	ArgsUsage: "start [end]",
	Action: func(c *cli.Context) error {
		if c.NArg() < 1 || c.NArg() > 2 {
			return cli.ShowCommandHelp(c, "headers")
		}

		path := "/v1/headers/" + url.PathEscape(c.Args().Get(0))
		if c.NArg() == 2 {
			path += "?end=" + url.QueryEscape(c.Args().Get(1))
		}

		return call(c, http.MethodGet, path, nil)
	},
}

var balancesCommand = userCommand(
	"balances", "show the user's bitcoin and ckbtc balances",
	http.MethodGet, "/balances",
)

var getPreferencesCommand = userCommand(
	"getpreferences", "show the user's preferences",
	http.MethodGet, "/preferences",
)

var setPreferencesCommand = &cli.Command{
	Name:      "setpreferences",
	Usage:     "store the user's preferences",
	ArgsUsage: "user",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "asset",
			Usage: "preferred asset, bitcoin or ckbtc",
			Value: "bitcoin",
		},
		&cli.BoolFlag{
			Name:  "autoconvert",
			Usage: "convert toward the preferred asset automatically",
		},
		&cli.Int64Flag{
			Name:  "minamount",
			Usage: "smallest balance in satoshis worth auto converting",
		},
	},
	Action: func(c *cli.Context) error {
		user, err := userArg(c, 1)
		if err != nil {
			return err
		}

		return call(c, http.MethodPut, userPath(user, "/preferences"),
			map[string]any{
				"preferred_asset": c.String("asset"),
				"auto_convert":    c.Bool("autoconvert"),
				"min_amount":      c.Int64("minamount"),
			})
	},
}

var getPreferredAssetCommand = userCommand(
	"getpreferredasset", "show the asset the user wants to hold",
	http.MethodGet, "/preferred-asset",
)

var setPreferredAssetCommand = &cli.Command{
	Name:      "setpreferredasset",
	Usage:     "store the asset the user wants to hold",
	ArgsUsage: "user asset",
	Action: func(c *cli.Context) error {
		user, err := userArg(c, 2)
		if err != nil {
			return err
		}

		return call(c, http.MethodPut,
			userPath(user, "/preferred-asset"),
			map[string]any{"asset": c.Args().Get(1)})
	},
}

var registerAddressCommand = &cli.Command{
	Name:      "registeraddress",
	Usage:     "register the user's native address",
	ArgsUsage: "user address",
	Action: func(c *cli.Context) error {
		user, err := userArg(c, 2)
		if err != nil {
			return err
		}

		return call(c, http.MethodPut, userPath(user, "/address"),
			map[string]any{"address": c.Args().Get(1)})
	},
}

var deriveAddressCommand = userCommand(
	"deriveaddress", "derive and register the user's wallet address",
	http.MethodPost, "/address/derive",
)

var historyCommand = userCommand(
	"history", "list the user's conversions, oldest first",
	http.MethodGet, "/history",
)

var convertToNativeCommand = userCommand(
	"converttonative", "redeem the user's ckbtc balance to bitcoin",
	http.MethodPost, "/convert/native",
)

var convertToWrappedCommand = userCommand(
	"converttowrapped", "convert the user's bitcoin balance to ckbtc",
	http.MethodPost, "/convert/wrapped",
)

var addressCommand = policyCommand(
	"address", "show the user's address of a spend policy",
	http.MethodGet, "/address",
)

var utxosCommand = policyCommand(
	"utxos", "list the coins of the user's address of a spend policy",
	http.MethodGet, "/utxos",
)

var sendCommand = spendCommand(
	"send", "send from the user's address of a spend policy", "/send",
)

var fundPsbtCommand = spendCommand(
	"fundpsbt", "build an unsigned send as a base64 PSBT", "/psbt",
)

// userCommand creates a command taking only the user that calls a user
// route without a body.
func userCommand(name, usage, method, route string) *cli.Command {
	return &cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: "user",
		Action: func(c *cli.Context) error {
			user, err := userArg(c, 1)
			if err != nil {
				return err
			}

			return call(c, method, userPath(user, route), nil)
		},
	}
}

// policyCommand creates a command taking the user and a spend policy that
// calls a policy route without a body.
func policyCommand(name, usage, method, route string) *cli.Command {
	return &cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: "user policy",
		Action: func(c *cli.Context) error {
			user, err := userArg(c, 2)
			if err != nil {
				return err
			}

			return call(c, method,
				policyPath(user, c.Args().Get(1), route), nil)
		},
	}
}

// spendCommand creates a command posting a send request to a policy route.
func spendCommand(name, usage, route string) *cli.Command {
	return &cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: "user policy destination amount",
		Flags: []cli.Flag{
			&cli.Uint64Flag{
				Name:  "feerate",
				Usage: "fee rate in msat/vB, estimated if unset",
			},
		},
		Action: func(c *cli.Context) error {
			user, err := userArg(c, 4)
			if err != nil {
				return err
			}

			amount, err := strconv.ParseInt(c.Args().Get(3), 10, 64)
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w",
					c.Args().Get(3), err)
			}

			body := map[string]any{
				"destination": c.Args().Get(2),
				"amount":      amount,
			}
			if c.IsSet("feerate") {
				body["fee_rate"] = c.Uint64("feerate")
			}

			return call(c, http.MethodPost,
				policyPath(user, c.Args().Get(1), route), body)
		},
	}
}

// userArg checks the number of arguments and returns the first one.
func userArg(c *cli.Context, n int) (string, error) {
	if c.NArg() != n {
		return "", fmt.Errorf("%s takes %d arguments: %s",
			c.Command.Name, n, c.Command.ArgsUsage)
	}

	return c.Args().First(), nil
}

func userPath(user, route string) string {
	return "/v1/users/" + url.PathEscape(user) + route
}

func policyPath(user, policy, route string) string {
	return userPath(user, "/policies/"+url.PathEscape(policy)+route)
}

// call sends a request to the server and prints the indented JSON
// response.
func call(c *cli.Context, method, path string, body any) error {
	client, err := httpclient.New(
		c.String("rpcserver"),
		&http.Client{Timeout: c.Duration("timeout")},
	)
	if err != nil {
		return err
	}

	var (
		reqBody     io.Reader
		contentType string
	)
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(payload)
		contentType = "application/json"
	}

	resp, err := client.Do(c.Context, method, path, contentType, reqBody)
	if err != nil {
		return err
	}

	return printJSON(c.App.Writer, resp)
}

// printJSON writes an indented rendition of a JSON document.
func printJSON(w io.Writer, doc []byte) error {
	var out bytes.Buffer
	err := json.Indent(&out, doc, "", "    ")
	if err != nil {
		return fmt.Errorf("malformed response: %w", err)
	}
	out.WriteByte('\n')

	_, err = out.WriteTo(w)

	return err
}
