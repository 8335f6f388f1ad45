// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package minter implements a client for the minter service that issues
// deposit addresses for, and redeems, the wrapped asset.
package minter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/ckbtcwallet/internal/httpclient"
)

var (
	// ErrRedeemRejected is returned when the minter refuses a redemption.
	ErrRedeemRejected = errors.New("redemption rejected")

	// ErrEmptyAddress is returned when the minter answers with an empty
	// deposit address.
	ErrEmptyAddress = errors.New("empty deposit address")
)

// RedeemResult is the outcome of an accepted redemption.
type RedeemResult struct {
	// BlockIndex is the ledger index of the burn that backs the
	// redemption.
	BlockIndex uint64
}

// Minter is the capability offered by the minter service.
type Minter interface {
	// DepositAddress returns the native-chain address that mints wrapped
	// tokens to the user once funds arrive.
	DepositAddress(ctx context.Context, user string) (string, error)

	// Redeem burns amount wrapped tokens of the user and pays the native
	// equivalent to address.
	Redeem(ctx context.Context, user, address string,
		amount btcutil.Amount) (*RedeemResult, error)

	// WrappedBalance returns the user's wrapped token balance.
	WrappedBalance(ctx context.Context, user string) (btcutil.Amount, error)
}

// depositAddressRequest is the JSON body of a get_btc_address request.
type depositAddressRequest struct {
	Owner string `json:"owner"`
}

// depositAddressResponse is the JSON body of a get_btc_address response.
type depositAddressResponse struct {
	Address string `json:"address"`
}

// retrieveRequest is the JSON body of a retrieve_btc request.
type retrieveRequest struct {
	Owner   string `json:"owner"`
	Address string `json:"address"`
	Amount  uint64 `json:"amount"`
}

// retrieveResponse is the JSON body of a retrieve_btc response. Exactly one
// of the fields is set.
type retrieveResponse struct {
	Ok *struct {
		BlockIndex uint64 `json:"block_index"`
	} `json:"ok,omitempty"`

	Err *string `json:"err,omitempty"`
}

// balanceResponse is the JSON body of a balance_of response.
type balanceResponse struct {
	Balance uint64 `json:"balance"`
}

// Client is a Minter backed by the minter's REST API.
type Client struct {
	rest *httpclient.Client
}

// A compile-time assertion to ensure Client implements Minter.
var _ Minter = (*Client)(nil)

// NewClient creates a new minter client. If httpClient is nil a default
// client is used.
func NewClient(baseURL string, httpClient *http.Client) (*Client, error) {
	rest, err := httpclient.New(baseURL, httpClient)
	if err != nil {
		return nil, fmt.Errorf("minter client: %w", err)
	}

	return &Client{rest: rest}, nil
}

// DepositAddress returns the user's deposit address.
func (c *Client) DepositAddress(ctx context.Context,
	user string) (string, error) {

	var resp depositAddressResponse
	err := c.rest.PostJSON(
		ctx, "/get_btc_address", depositAddressRequest{Owner: user},
		&resp,
	)
	if err != nil {
		return "", fmt.Errorf("deposit address of %s: %w", user, err)
	}

	if resp.Address == "" {
		return "", fmt.Errorf("deposit address of %s: %w", user,
			ErrEmptyAddress)
	}

	return resp.Address, nil
}

// Redeem asks the minter to pay amount to address out of the user's wrapped
// balance.
func (c *Client) Redeem(ctx context.Context, user, address string,
	amount btcutil.Amount) (*RedeemResult, error) {

	req := retrieveRequest{
		Owner:   user,
		Address: address,
		Amount:  uint64(amount),
	}

	var resp retrieveResponse
	err := c.rest.PostJSON(ctx, "/retrieve_btc", req, &resp)
	if err != nil {
		return nil, fmt.Errorf("retrieve_btc for %s: %w", user, err)
	}

	switch {
	case resp.Err != nil:
		return nil, fmt.Errorf("%w: %s", ErrRedeemRejected, *resp.Err)

	case resp.Ok == nil:
		return nil, fmt.Errorf("%w: empty response", ErrRedeemRejected)
	}

	log.Infof("Redeemed %v for %s to %s at block index %d", amount, user,
		address, resp.Ok.BlockIndex)

	return &RedeemResult{BlockIndex: resp.Ok.BlockIndex}, nil
}

// WrappedBalance returns the user's wrapped balance.
func (c *Client) WrappedBalance(ctx context.Context,
	user string) (btcutil.Amount, error) {

	var resp balanceResponse
	err := c.rest.GetJSON(ctx, "/balance_of/"+url.PathEscape(user), &resp)
	if err != nil {
		return 0, fmt.Errorf("balance of %s: %w", user, err)
	}

	return btcutil.Amount(resp.Balance), nil
}
