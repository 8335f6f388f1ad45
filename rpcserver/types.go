// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package rpcserver

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/ckbtcwallet/ledger"
	"github.com/btcsuite/ckbtcwallet/wallet"
)

// Amounts are in satoshis, fee rates in millisatoshis per vbyte.

type feeRateResponse struct {
	MilliSatPerByte uint64 `json:"msat_per_byte"`
}

type headersResponse struct {
	Headers []string `json:"headers"`
}

type balancesResponse struct {
	Bitcoin int64 `json:"btc"`
	CkBTC   int64 `json:"ckbtc"`
}

type preferencesJSON struct {
	PreferredAsset string `json:"preferred_asset"`
	AutoConvert    bool   `json:"auto_convert"`
	MinAmount      int64  `json:"min_amount"`
}

type assetJSON struct {
	Asset string `json:"asset"`
}

type addressJSON struct {
	Address string `json:"address"`
	Policy  string `json:"policy,omitempty"`
}

type recordJSON struct {
	ID         string `json:"id"`
	User       string `json:"user"`
	Timestamp  int64  `json:"timestamp"`
	From       string `json:"from"`
	To         string `json:"to"`
	Amount     int64  `json:"amount"`
	Status     string `json:"status"`
	FailReason string `json:"fail_reason,omitempty"`
	Reference  string `json:"reference,omitempty"`
}

type utxoJSON struct {
	TxID  string `json:"txid"`
	Vout  uint32 `json:"vout"`
	Value int64  `json:"value"`
}

type sendRequestJSON struct {
	Destination string `json:"destination"`
	Amount      int64  `json:"amount"`

	// FeeRate overrides the estimated fee rate when set.
	FeeRate *uint64 `json:"fee_rate,omitempty"`
}

type sendResponse struct {
	TxID        string `json:"txid"`
	Amount      int64  `json:"amount"`
	Fee         int64  `json:"fee"`
	ChangeIndex int    `json:"change_index"`
}

type psbtResponse struct {
	Psbt string `json:"psbt"`
}

func newRecordJSON(rec *ledger.Record) *recordJSON {
	return &recordJSON{
		ID:         rec.ID.String(),
		User:       rec.User,
		Timestamp:  rec.Timestamp.Unix(),
		From:       rec.From.String(),
		To:         rec.To.String(),
		Amount:     int64(rec.Amount),
		Status:     rec.Status.String(),
		FailReason: rec.FailReason,
		Reference:  rec.Reference,
	}
}

func newPreferencesJSON(prefs ledger.Preferences) *preferencesJSON {
	return &preferencesJSON{
		PreferredAsset: prefs.PreferredAsset.String(),
		AutoConvert:    prefs.AutoConvert,
		MinAmount:      int64(prefs.MinAmount),
	}
}

func (p *preferencesJSON) parse() (ledger.Preferences, error) {
	asset, err := ledger.ParseAsset(p.PreferredAsset)
	if err != nil {
		return ledger.Preferences{}, err
	}

	return ledger.Preferences{
		PreferredAsset: asset,
		AutoConvert:    p.AutoConvert,
		MinAmount:      btcutil.Amount(p.MinAmount),
	}, nil
}

func newUTXOJSON(coin *wallet.Coin) utxoJSON {
	return utxoJSON{
		TxID:  coin.Hash.String(),
		Vout:  coin.Index,
		Value: coin.Value,
	}
}
