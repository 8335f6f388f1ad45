// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package conversion

import (
	"sync"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/ckbtcwallet/ledger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	prometheusConversions      *prometheus.CounterVec
	prometheusConvertedAmount  *prometheus.CounterVec
	prometheusConversionsInUse prometheus.Gauge

	// only init the metrics once
	prometheusMetricsInitOnce sync.Once
)

func initPrometheusMetrics() {
	prometheusMetricsInitOnce.Do(_initPrometheusMetrics)
}

func _initPrometheusMetrics() {
	prometheusConversions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ckbtcwallet",
			Subsystem: "conversion",
			Name:      "attempts_total",
			Help:      "Number of conversions by direction and outcome",
		},
		[]string{
			"to",      // asset converted to
			"outcome", // complete, failed or rejected
		},
	)
	prometheusConvertedAmount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ckbtcwallet",
			Subsystem: "conversion",
			Name:      "converted_satoshis_total",
			Help:      "Satoshis moved by completed conversions",
		},
		[]string{"to"},
	)
	prometheusConversionsInUse = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ckbtcwallet",
			Subsystem: "conversion",
			Name:      "in_flight",
			Help:      "Number of conversions currently running",
		},
	)
}

// observeConversion records the outcome of a conversion.
func observeConversion(to ledger.Asset, outcome string,
	amount btcutil.Amount) {

	initPrometheusMetrics()

	prometheusConversions.WithLabelValues(to.String(), outcome).Inc()
	if outcome == ledger.StatusComplete.String() {
		prometheusConvertedAmount.WithLabelValues(to.String()).
			Add(float64(amount))
	}
}

// trackInFlight adjusts the in-flight gauge.
func trackInFlight(delta float64) {
	initPrometheusMetrics()

	prometheusConversionsInUse.Add(delta)
}
