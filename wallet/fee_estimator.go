// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"context"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcwallet/wallet/txsizes"
	"github.com/btcsuite/ckbtcwallet/pkg/btcunit"
	"github.com/jellydator/ttlcache/v3"
)

const (
	// DefaultFallbackFeeRate is used when the gateway reports no fee
	// percentiles.
	DefaultFallbackFeeRate btcunit.MilliSatPerByte = 2000

	// DefaultMinRelayFeeRate is the floor of the working fee rate. It
	// matches the default relay fee of bitcoind, 1 sat/vb.
	DefaultMinRelayFeeRate btcunit.MilliSatPerByte = 1000

	// DefaultMaxFeeRate is the largest working fee rate considered sane,
	// 1000 sat/vb.
	DefaultMaxFeeRate btcunit.MilliSatPerByte = 1_000_000

	// DefaultFeeRateTTL is how long a working fee rate is reused before
	// the gateway is asked again.
	DefaultFeeRateTTL = time.Minute

	// outputValueSize is the serialized size of an output's value.
	outputValueSize = 8

	// scriptLenSize is the size of the compact size prefix of scripts
	// shorter than 253 bytes.
	scriptLenSize = 1

	// medianCacheKey is the cache key of the working fee rate.
	medianCacheKey = "median"
)

// TxSizeModel is a linear estimate of the virtual size of a transaction
// spending inputs of a single policy.
type TxSizeModel struct {
	// InputSize is the size of one signed input.
	InputSize btcunit.VByte

	// OutputSize is the size of one output paying to the policy's
	// script type.
	OutputSize btcunit.VByte

	// Overhead is the size of the version, lock time, counts and, for
	// segwit spends, the marker and flag.
	Overhead btcunit.VByte
}

var (
	// LegacyKeyHashSizeModel sizes p2pkh spends: a 148 byte input with a
	// 107 byte signature script and a 34 byte output.
	LegacyKeyHashSizeModel = TxSizeModel{
		InputSize:  148,
		OutputSize: outputValueSize + scriptLenSize +
			txsizes.P2PKHPkScriptSize,
		Overhead: 10,
	}

	// TaprootKeyPathSizeModel sizes p2tr key path spends. The witness of
	// each input is a single 64 byte signature.
	TaprootKeyPathSizeModel = TxSizeModel{
		InputSize:  58,
		OutputSize: outputValueSize + scriptLenSize +
			txsizes.P2TRPkScriptSize,
		Overhead: 11,
	}

	// TaprootScriptPathSizeModel sizes p2tr script path spends. The
	// witness of each input carries the signature, the leaf script and
	// the control block.
	TaprootScriptPathSizeModel = TxSizeModel{
		InputSize:  76,
		OutputSize: outputValueSize + scriptLenSize +
			txsizes.P2TRPkScriptSize,
		Overhead: 11,
	}
)

// EstimateSize returns the estimated size of a transaction with the given
// number of inputs and outputs.
func (m TxSizeModel) EstimateSize(inputs, outputs int) btcunit.VByte {
	return btcunit.VByte(inputs)*m.InputSize +
		btcunit.VByte(outputs)*m.OutputSize + m.Overhead
}

// EstimateFee returns the fee of a transaction with the given number of
// inputs and outputs at the given rate, truncated to whole satoshis.
func (m TxSizeModel) EstimateFee(inputs, outputs int,
	rate btcunit.MilliSatPerByte) btcutil.Amount {

	return rate.FeeForVByte(m.EstimateSize(inputs, outputs))
}

// MedianFeeRate returns the median of the fee rate sample, the upper one
// for an even count, or the fallback for an empty sample.
func MedianFeeRate(samples []btcunit.MilliSatPerByte,
	fallback btcunit.MilliSatPerByte) btcunit.MilliSatPerByte {

	return btcunit.Median(samples, fallback)
}

// FeeRateSource reports the current fee rate percentiles.
type FeeRateSource interface {
	// FeePercentiles returns the fee rate sample of the network.
	FeePercentiles(ctx context.Context) ([]btcunit.MilliSatPerByte, error)
}

// FeeEstimatorConfig holds the settings of a FeeEstimator.
type FeeEstimatorConfig struct {
	// Source provides the fee rate sample.
	Source FeeRateSource

	// FallbackRate is used when the sample is empty. Defaults to
	// DefaultFallbackFeeRate.
	FallbackRate btcunit.MilliSatPerByte

	// MinRelayRate is the floor of the working rate. Defaults to
	// DefaultMinRelayFeeRate.
	MinRelayRate btcunit.MilliSatPerByte

	// MaxRate is the largest working rate accepted. Defaults to
	// DefaultMaxFeeRate.
	MaxRate btcunit.MilliSatPerByte

	// TTL is how long the working rate is cached. Defaults to
	// DefaultFeeRateTTL.
	TTL time.Duration
}

// FeeEstimator derives the working fee rate from the gateway's fee rate
// sample.
type FeeEstimator struct {
	cfg FeeEstimatorConfig

	cache *ttlcache.Cache[string, btcunit.MilliSatPerByte]
}

// NewFeeEstimator creates a fee estimator, applying defaults to unset
// config fields.
func NewFeeEstimator(cfg FeeEstimatorConfig) *FeeEstimator {
	if cfg.FallbackRate == 0 {
		cfg.FallbackRate = DefaultFallbackFeeRate
	}
	if cfg.MinRelayRate == 0 {
		cfg.MinRelayRate = DefaultMinRelayFeeRate
	}
	if cfg.MaxRate == 0 {
		cfg.MaxRate = DefaultMaxFeeRate
	}
	if cfg.TTL == 0 {
		cfg.TTL = DefaultFeeRateTTL
	}

	return &FeeEstimator{
		cfg: cfg,
		cache: ttlcache.New[string, btcunit.MilliSatPerByte](
			ttlcache.WithTTL[string, btcunit.MilliSatPerByte](
				cfg.TTL,
			),
			ttlcache.WithDisableTouchOnHit[string,
				btcunit.MilliSatPerByte](),
		),
	}
}

// FeeRate returns the working fee rate: the median of the gateway's sample,
// or the fallback rate, floored at the minimum relay rate.
func (e *FeeEstimator) FeeRate(
	ctx context.Context) (btcunit.MilliSatPerByte, error) {

	if item := e.cache.Get(medianCacheKey); item != nil {
		return item.Value(), nil
	}

	samples, err := e.cfg.Source.FeePercentiles(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrGateway, err)
	}

	rate := MedianFeeRate(samples, e.cfg.FallbackRate)
	if rate < e.cfg.MinRelayRate {
		log.Debugf("Raising fee rate %v to the min relay rate %v", rate,
			e.cfg.MinRelayRate)

		rate = e.cfg.MinRelayRate
	}

	if rate > e.cfg.MaxRate {
		return 0, fmt.Errorf("%w: %v exceeds the max rate %v",
			ErrFeeRateTooLarge, rate, e.cfg.MaxRate)
	}

	log.Debugf("Working fee rate %v from %d samples", rate, len(samples))

	e.cache.Set(medianCacheKey, rate, ttlcache.DefaultTTL)

	return rate, nil
}

// MinRelayRate returns the floor of the working fee rate.
func (e *FeeEstimator) MinRelayRate() btcunit.MilliSatPerByte {
	return e.cfg.MinRelayRate
}

// Invalidate drops the cached working rate.
func (e *FeeEstimator) Invalidate() {
	e.cache.DeleteAll()
}
