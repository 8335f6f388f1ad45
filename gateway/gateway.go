// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package gateway implements a client for the bitcoin gateway: the external
// service that answers balance, UTXO, fee and header queries and relays
// transactions. The client speaks the esplora REST dialect.
package gateway

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/ckbtcwallet/internal/httpclient"
	"github.com/btcsuite/ckbtcwallet/pkg/btcunit"
	"github.com/lightningnetwork/lnd/fn/v2"
)

const (
	// MaxHeaderRange is the maximum number of headers returned by a single
	// BlockHeaders call.
	MaxHeaderRange = 2016
)

var (
	// ErrInvalidRange is returned when a header range is empty, inverted
	// or too large.
	ErrInvalidRange = errors.New("invalid header range")

	// ErrMalformedResponse is returned when the gateway answers with data
	// that can't be interpreted.
	ErrMalformedResponse = errors.New("malformed gateway response")
)

// UTXO is an unspent output reported by the gateway.
type UTXO struct {
	// OutPoint identifies the output.
	OutPoint wire.OutPoint

	// Value is the output value.
	Value btcutil.Amount

	// Height is the confirmation height, zero while unconfirmed.
	Height uint32
}

// Confirmations returns the number of confirmations of the output given the
// current tip height.
func (u UTXO) Confirmations(tipHeight uint32) uint32 {
	if u.Height == 0 || u.Height > tipHeight {
		return 0
	}

	return tipHeight - u.Height + 1
}

// addressStats mirrors the chain and mempool statistics of an esplora
// address response.
type addressStats struct {
	FundedTxoSum int64 `json:"funded_txo_sum"`
	SpentTxoSum  int64 `json:"spent_txo_sum"`
}

// addressResponse is the esplora /address/{addr} response.
type addressResponse struct {
	Address      string       `json:"address"`
	ChainStats   addressStats `json:"chain_stats"`
	MempoolStats addressStats `json:"mempool_stats"`
}

// utxoStatus is the confirmation status of an esplora UTXO.
type utxoStatus struct {
	Confirmed   bool   `json:"confirmed"`
	BlockHeight uint32 `json:"block_height"`
}

// utxoResponse is a single entry of the esplora /address/{addr}/utxo
// response.
type utxoResponse struct {
	TxID   string     `json:"txid"`
	Vout   uint32     `json:"vout"`
	Value  int64      `json:"value"`
	Status utxoStatus `json:"status"`
}

// Client is a bitcoin gateway client.
type Client struct {
	rest *httpclient.Client
}

// NewClient creates a gateway client for the given esplora base URL. If
// httpClient is nil a default client is used.
func NewClient(baseURL string, httpClient *http.Client) (*Client, error) {
	rest, err := httpclient.New(baseURL, httpClient)
	if err != nil {
		return nil, fmt.Errorf("gateway client: %w", err)
	}

	return &Client{rest: rest}, nil
}

// Balance returns the balance of the address, counting both confirmed and
// mempool outputs.
func (c *Client) Balance(ctx context.Context,
	addr btcutil.Address) (btcutil.Amount, error) {

	var resp addressResponse
	err := c.rest.GetJSON(ctx, "/address/"+addr.EncodeAddress(), &resp)
	if err != nil {
		return 0, fmt.Errorf("balance of %v: %w", addr, err)
	}

	balance := resp.ChainStats.FundedTxoSum - resp.ChainStats.SpentTxoSum +
		resp.MempoolStats.FundedTxoSum - resp.MempoolStats.SpentTxoSum
	if balance < 0 {
		return 0, fmt.Errorf("%w: negative balance %d for %v",
			ErrMalformedResponse, balance, addr)
	}

	log.Tracef("Balance of %v: %v", addr, btcutil.Amount(balance))

	return btcutil.Amount(balance), nil
}

// UTXOs returns the unspent outputs of the address having at least minConf
// confirmations. A zero minConf includes unconfirmed outputs.
func (c *Client) UTXOs(ctx context.Context, addr btcutil.Address,
	minConf uint32) ([]UTXO, error) {

	var resp []utxoResponse
	err := c.rest.GetJSON(
		ctx, "/address/"+addr.EncodeAddress()+"/utxo", &resp,
	)
	if err != nil {
		return nil, fmt.Errorf("utxos of %v: %w", addr, err)
	}

	// The tip is only needed to count confirmations.
	var tip uint32
	if minConf > 0 {
		tip, err = c.TipHeight(ctx)
		if err != nil {
			return nil, err
		}
	}

	utxos := make([]UTXO, 0, len(resp))
	for _, r := range resp {
		hash, err := chainhash.NewHashFromStr(r.TxID)
		if err != nil {
			return nil, fmt.Errorf("%w: txid %q: %v",
				ErrMalformedResponse, r.TxID, err)
		}

		if r.Value < 0 {
			return nil, fmt.Errorf("%w: negative value for %v:%d",
				ErrMalformedResponse, hash, r.Vout)
		}

		utxo := UTXO{
			OutPoint: wire.OutPoint{Hash: *hash, Index: r.Vout},
			Value:    btcutil.Amount(r.Value),
		}
		if r.Status.Confirmed {
			utxo.Height = r.Status.BlockHeight
		}

		if utxo.Confirmations(tip) < minConf {
			continue
		}

		utxos = append(utxos, utxo)
	}

	log.Debugf("Fetched %d utxos for %v (min_conf=%d)", len(utxos), addr,
		minConf)

	return utxos, nil
}

// FeePercentiles returns the fee rate sample of the gateway, ordered from
// the lowest to the highest rate.
func (c *Client) FeePercentiles(
	ctx context.Context) ([]btcunit.MilliSatPerByte, error) {

	var resp map[string]float64
	err := c.rest.GetJSON(ctx, "/fee-estimates", &resp)
	if err != nil {
		return nil, fmt.Errorf("fee estimates: %w", err)
	}

	rates := make([]btcunit.MilliSatPerByte, 0, len(resp))
	for _, satPerVByte := range resp {
		rate := btcunit.NewMilliSatPerByteFromSatPerVByte(satPerVByte)
		if rate == 0 {
			continue
		}

		rates = append(rates, rate)
	}
	slices.Sort(rates)

	return rates, nil
}

// TipHeight returns the height of the best block known to the gateway.
func (c *Client) TipHeight(ctx context.Context) (uint32, error) {
	text, err := c.rest.GetText(ctx, "/blocks/tip/height")
	if err != nil {
		return 0, fmt.Errorf("tip height: %w", err)
	}

	height, err := strconv.ParseUint(text, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: tip height %q", ErrMalformedResponse,
			text)
	}

	return uint32(height), nil
}

// BlockHeaders returns the headers from start up to and including end. When
// end is not set the gateway's current tip is used.
func (c *Client) BlockHeaders(ctx context.Context, start uint32,
	end fn.Option[uint32]) ([]wire.BlockHeader, error) {

	last := end.UnwrapOr(0)
	if end.IsNone() {
		tip, err := c.TipHeight(ctx)
		if err != nil {
			return nil, err
		}

		last = tip
	}

	if last < start || last-start >= MaxHeaderRange {
		return nil, fmt.Errorf("%w: [%d, %d]", ErrInvalidRange, start,
			last)
	}

	headers := make([]wire.BlockHeader, 0, last-start+1)
	for height := start; height <= last; height++ {
		header, err := c.blockHeader(ctx, height)
		if err != nil {
			return nil, err
		}

		headers = append(headers, *header)
	}

	return headers, nil
}

// blockHeader fetches the header at the given height.
func (c *Client) blockHeader(ctx context.Context,
	height uint32) (*wire.BlockHeader, error) {

	hashText, err := c.rest.GetText(
		ctx, "/block-height/"+strconv.FormatUint(uint64(height), 10),
	)
	if err != nil {
		return nil, fmt.Errorf("block hash at %d: %w", height, err)
	}

	hash, err := chainhash.NewHashFromStr(hashText)
	if err != nil {
		return nil, fmt.Errorf("%w: block hash %q", ErrMalformedResponse,
			hashText)
	}

	headerHex, err := c.rest.GetText(ctx, "/block/"+hash.String()+"/header")
	if err != nil {
		return nil, fmt.Errorf("block header %v: %w", hash, err)
	}

	raw, err := hex.DecodeString(headerHex)
	if err != nil {
		return nil, fmt.Errorf("%w: header hex: %v", ErrMalformedResponse,
			err)
	}

	var header wire.BlockHeader
	err = header.Deserialize(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrMalformedResponse, err)
	}

	if header.BlockHash() != *hash {
		return nil, fmt.Errorf("%w: header at %d hashes to %v, want %v",
			ErrMalformedResponse, height, header.BlockHash(), hash)
	}

	return &header, nil
}

// Broadcast relays the serialized transaction and returns the txid reported
// by the gateway.
func (c *Client) Broadcast(ctx context.Context,
	rawTx []byte) (*chainhash.Hash, error) {

	text, err := c.rest.PostText(ctx, "/tx", hex.EncodeToString(rawTx))
	if err != nil {
		return nil, fmt.Errorf("broadcast: %w", err)
	}

	txid, err := chainhash.NewHashFromStr(text)
	if err != nil {
		return nil, fmt.Errorf("%w: txid %q", ErrMalformedResponse, text)
	}

	log.Infof("Broadcast transaction %v", txid)

	return txid, nil
}
