// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package wallet implements the custodial payment engine: coin selection,
// fee estimation, transaction building, signing through a threshold signing
// service and broadcast through a bitcoin gateway. The wallet holds no
// private keys.
package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wallet/txauthor"
	"github.com/btcsuite/btcwallet/wallet/txrules"
	"github.com/btcsuite/ckbtcwallet/gateway"
	"github.com/btcsuite/ckbtcwallet/pkg/btcunit"
	"github.com/btcsuite/ckbtcwallet/signer"
	"github.com/davecgh/go-spew/spew"
	"github.com/lightningnetwork/lnd/fn/v2"
)

var (
	// ErrWalletParams is returned when the wallet config is incomplete.
	ErrWalletParams = errors.New("invalid wallet params")
)

const (
	// simpleSendOutputs is the output count of a send: the recipient and
	// the change.
	simpleSendOutputs = 2

	// sweepOutputs is the output count of a sweep.
	sweepOutputs = 1
)

// Gateway is the bitcoin gateway capability used by the wallet.
type Gateway interface {
	FeeRateSource

	// Balance returns the confirmed and mempool balance of addr.
	Balance(ctx context.Context, addr btcutil.Address) (btcutil.Amount,
		error)

	// UTXOs returns the unspent outputs of addr with at least minConf
	// confirmations.
	UTXOs(ctx context.Context, addr btcutil.Address,
		minConf uint32) ([]gateway.UTXO, error)

	// BlockHeaders returns the headers from start up to end, or up to the
	// tip if end is unset.
	BlockHeaders(ctx context.Context, start uint32,
		end fn.Option[uint32]) ([]wire.BlockHeader, error)

	// Broadcast relays a serialized transaction.
	Broadcast(ctx context.Context, rawTx []byte) (*chainhash.Hash, error)
}

// A compile-time assertion to ensure the gateway client implements the
// Gateway interface.
var _ Gateway = (*gateway.Client)(nil)

// Config holds the collaborators and settings of a Wallet.
type Config struct {
	// ChainParams is the network the wallet operates on.
	ChainParams *chaincfg.Params

	// Gateway is the bitcoin gateway.
	Gateway Gateway

	// Signer is the threshold signing service.
	Signer signer.ThresholdSigner

	// FeeEstimator provides the working fee rate. If nil an estimator
	// with default settings on top of Gateway is used.
	FeeEstimator *FeeEstimator

	// Journal, if set, keeps the inputs of recent broadcasts out of coin
	// selection.
	Journal *SpendJournal

	// CoinSelector selects the inputs of sends. Defaults to
	// LargestFirstCoinSelector.
	CoinSelector CoinSelector

	// MinConfs is the confirmation count coins need to be spent.
	MinConfs uint32
}

// Wallet is the payment engine.
type Wallet struct {
	cfg Config

	selector CoinSelector
	fees     *FeeEstimator
	builder  *TxBuilder
	deriver  *AddressDeriver
	engine   *SignatureEngine
}

// New creates a wallet from the given config.
func New(cfg Config) (*Wallet, error) {
	switch {
	case cfg.ChainParams == nil:
		return nil, fmt.Errorf("%w: missing chain params",
			ErrWalletParams)

	case cfg.Gateway == nil:
		return nil, fmt.Errorf("%w: missing gateway", ErrWalletParams)

	case cfg.Signer == nil:
		return nil, fmt.Errorf("%w: missing signer", ErrWalletParams)
	}

	fees := cfg.FeeEstimator
	if fees == nil {
		fees = NewFeeEstimator(FeeEstimatorConfig{Source: cfg.Gateway})
	}

	selector := cfg.CoinSelector
	if selector == nil {
		selector = &LargestFirstCoinSelector{}
	}

	deriver := NewAddressDeriver(cfg.Signer, cfg.ChainParams)

	return &Wallet{
		cfg:      cfg,
		selector: selector,
		fees:     fees,
		builder: NewTxBuilder(
			cfg.ChainParams, fees.MinRelayRate().ToSatPerKVByte(),
		),
		deriver: deriver,
		engine:  NewSignatureEngine(deriver),
	}, nil
}

// ChainParams returns the network of the wallet.
func (w *Wallet) ChainParams() *chaincfg.Params {
	return w.cfg.ChainParams
}

// DecodeAddress decodes an address of the wallet's network.
func (w *Wallet) DecodeAddress(addr string) (btcutil.Address, error) {
	return w.builder.DecodeAddress(addr)
}

// Address returns the address of the policy's key at the base path.
func (w *Wallet) Address(ctx context.Context, policy SpendPolicy,
	path signer.DerivationPath) (btcutil.Address, error) {

	return w.deriver.Derive(ctx, policy, path)
}

// Balance returns the balance of an address as reported by the gateway.
func (w *Wallet) Balance(ctx context.Context,
	addr string) (btcutil.Amount, error) {

	decoded, err := w.DecodeAddress(addr)
	if err != nil {
		return 0, err
	}

	balance, err := w.cfg.Gateway.Balance(ctx, decoded)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrGateway, err)
	}

	return balance, nil
}

// FeeRate returns the working fee rate.
func (w *Wallet) FeeRate(ctx context.Context) (btcunit.MilliSatPerByte,
	error) {

	return w.fees.FeeRate(ctx)
}

// BlockHeaders returns block headers from the gateway.
func (w *Wallet) BlockHeaders(ctx context.Context, start uint32,
	end fn.Option[uint32]) ([]wire.BlockHeader, error) {

	headers, err := w.cfg.Gateway.BlockHeaders(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGateway, err)
	}

	return headers, nil
}

// UTXOs returns the spendable coins of the policy's key at the base path.
func (w *Wallet) UTXOs(ctx context.Context, policy SpendPolicy,
	path signer.DerivationPath) ([]Coin, error) {

	key, err := w.deriver.spendKey(ctx, policy, path)
	if err != nil {
		return nil, err
	}

	return w.spendableCoins(ctx, key)
}

// SendRequest describes a payment.
type SendRequest struct {
	// Policy is the spend policy of the paying key.
	Policy SpendPolicy

	// Path is the base derivation path of the paying key.
	Path signer.DerivationPath

	// Destination is the recipient address.
	Destination string

	// Amount is the value paid to the recipient.
	Amount btcutil.Amount

	// FeeRate overrides the working fee rate if set. It's still floored
	// at the minimum relay rate.
	FeeRate fn.Option[btcunit.MilliSatPerByte]
}

// SweepRequest describes a transfer of every coin of a key.
type SweepRequest struct {
	// Policy is the spend policy of the paying key.
	Policy SpendPolicy

	// Path is the base derivation path of the paying key.
	Path signer.DerivationPath

	// Destination receives the whole balance minus the fee.
	Destination string
}

// SendResult describes a broadcast transaction.
type SendResult struct {
	// TxID is the hash of the transaction.
	TxID chainhash.Hash

	// Tx is the signed transaction.
	Tx *wire.MsgTx

	// Amount is the value paid to the recipient.
	Amount btcutil.Amount

	// Fee is the fee paid, including any change left to it.
	Fee btcutil.Amount

	// ChangeIndex is the index of the change output or -1.
	ChangeIndex int
}

// Send pays the request's amount to its destination: coins of the paying
// key are selected largest first, the transaction is built, signed input by
// input through the signing service, and broadcast. Nothing is broadcast if
// any step before it fails.
func (w *Wallet) Send(ctx context.Context,
	req *SendRequest) (result *SendResult, err error) {

	defer func() {
		observeSend(req.Policy, resultAmount(result), err)
	}()

	// Reject bad destinations before any network call.
	_, err = w.DecodeAddress(req.Destination)
	if err != nil {
		return nil, err
	}

	authored, key, err := w.authorSend(ctx, req)
	if err != nil {
		return nil, err
	}

	err = w.engine.SignTransaction(ctx, req.Policy, req.Path, authored)
	if err != nil {
		return nil, err
	}

	return w.publish(ctx, authored, key.address, req.Amount)
}

// Sweep sends every spendable coin of the request's key to its
// destination, paying the fee from the swept value. It fails with
// ErrInsufficientFunds when there's nothing worth sweeping.
func (w *Wallet) Sweep(ctx context.Context,
	req *SweepRequest) (result *SendResult, err error) {

	defer func() {
		observeSend(req.Policy, resultAmount(result), err)
	}()

	_, err = w.DecodeAddress(req.Destination)
	if err != nil {
		return nil, err
	}

	key, err := w.deriver.spendKey(ctx, req.Policy, req.Path)
	if err != nil {
		return nil, err
	}

	coins, err := w.spendableCoins(ctx, key)
	if err != nil {
		return nil, err
	}

	rate, err := w.fees.FeeRate(ctx)
	if err != nil {
		return nil, err
	}

	total := totalValue(coins)
	fee := req.Policy.SizeModel().EstimateFee(
		len(coins), sweepOutputs, rate,
	)
	if total <= fee {
		return nil, fmt.Errorf("%w: balance %v doesn't cover fee %v",
			ErrInsufficientFunds, total, fee)
	}

	authored, err := w.builder.BuildTransaction(&BuildParams{
		Coins:         coins,
		Destination:   req.Destination,
		ChangeAddress: key.address.EncodeAddress(),
		Amount:        total - fee,
		Fee:           fee,
	})
	if errors.Is(err, txrules.ErrOutputIsDust) {
		return nil, fmt.Errorf("%w: %w", ErrInsufficientFunds, err)
	}
	if err != nil {
		return nil, err
	}

	err = w.engine.SignTransaction(ctx, req.Policy, req.Path, authored)
	if err != nil {
		return nil, err
	}

	return w.publish(ctx, authored, key.address, total-fee)
}

// authorSend selects coins and builds the unsigned transaction of a send.
func (w *Wallet) authorSend(ctx context.Context,
	req *SendRequest) (*txauthor.AuthoredTx, *spendKey, error) {

	key, err := w.deriver.spendKey(ctx, req.Policy, req.Path)
	if err != nil {
		return nil, nil, err
	}

	coins, err := w.spendableCoins(ctx, key)
	if err != nil {
		return nil, nil, err
	}

	rate, err := w.sendFeeRate(ctx, req.FeeRate)
	if err != nil {
		return nil, nil, err
	}

	selected, fee, err := w.planSend(
		coins, req.Amount, rate, req.Policy.SizeModel(),
	)
	if err != nil {
		return nil, nil, err
	}

	authored, err := w.builder.BuildTransaction(&BuildParams{
		Coins:         selected,
		Destination:   req.Destination,
		ChangeAddress: key.address.EncodeAddress(),
		Amount:        req.Amount,
		Fee:           fee,
	})
	if err != nil {
		return nil, nil, err
	}

	log.Debugf("Authored send of %v to %s with %d inputs at %v",
		req.Amount, req.Destination, len(selected), rate)

	return authored, key, nil
}

// sendFeeRate returns the override rate, floored at the min relay rate, or
// the working rate.
func (w *Wallet) sendFeeRate(ctx context.Context,
	override fn.Option[btcunit.MilliSatPerByte]) (btcunit.MilliSatPerByte,
	error) {

	if override.IsNone() {
		return w.fees.FeeRate(ctx)
	}

	rate := override.UnwrapOr(0)
	if rate < w.fees.MinRelayRate() {
		rate = w.fees.MinRelayRate()
	}

	return rate, nil
}

// planSend selects the coins paying amount and the fee of a two output
// transaction spending them. The fee depends on the number of inputs, so
// selection is repeated until the fee stops growing.
func (w *Wallet) planSend(coins []Coin, amount btcutil.Amount,
	rate btcunit.MilliSatPerByte, model TxSizeModel) ([]Coin,
	btcutil.Amount, error) {

	fee := model.EstimateFee(1, simpleSendOutputs, rate)
	for {
		selected, err := w.selector.SelectCoins(coins, amount+fee)
		if err != nil {
			return nil, 0, err
		}

		needed := model.EstimateFee(
			len(selected), simpleSendOutputs, rate,
		)
		if needed <= fee {
			return selected, fee, nil
		}

		fee = needed
	}
}

// spendableCoins lists the key's coins known to the gateway, leaving out
// those spent by our own broadcasts the gateway hasn't caught up with.
func (w *Wallet) spendableCoins(ctx context.Context,
	key *spendKey) ([]Coin, error) {

	utxos, err := w.cfg.Gateway.UTXOs(ctx, key.address, w.cfg.MinConfs)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGateway, err)
	}

	pending := fn.NewSet[wire.OutPoint]()
	if w.cfg.Journal != nil {
		unspent := fn.NewSet[wire.OutPoint]()
		for _, utxo := range utxos {
			unspent.Add(utxo.OutPoint)
		}

		pending, err = w.cfg.Journal.Reconcile(key.address, unspent)
		if err != nil {
			return nil, err
		}
	}

	coins := make([]Coin, 0, len(utxos))
	for _, utxo := range utxos {
		if pending.Contains(utxo.OutPoint) {
			log.Debugf("Skipping %v spent by a pending broadcast",
				utxo.OutPoint)

			continue
		}

		coins = append(coins, Coin{
			TxOut: wire.TxOut{
				Value:    int64(utxo.Value),
				PkScript: key.pkScript,
			},
			OutPoint: utxo.OutPoint,
		})
	}

	log.Tracef("Spendable coins of %v: %v", key.address,
		newLogClosure(func() string {
			return spew.Sdump(coins)
		}))

	return coins, nil
}

// resultAmount returns the amount of a send result, or zero.
func resultAmount(result *SendResult) float64 {
	if result == nil {
		return 0
	}

	return float64(result.Amount)
}
