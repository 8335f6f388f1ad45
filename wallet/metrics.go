// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	prometheusSends          *prometheus.CounterVec
	prometheusSentAmount     *prometheus.CounterVec
	prometheusSigningSeconds *prometheus.HistogramVec

	// only init the metrics once
	prometheusMetricsInitOnce sync.Once
)

func initPrometheusMetrics() {
	prometheusMetricsInitOnce.Do(_initPrometheusMetrics)
}

func _initPrometheusMetrics() {
	prometheusSends = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ckbtcwallet",
			Name:      "sends_total",
			Help:      "Number of sends by spend policy and outcome",
		},
		[]string{
			"policy",  // spend policy of the inputs
			"outcome", // ok or error
		},
	)
	prometheusSentAmount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ckbtcwallet",
			Name:      "sent_satoshis_total",
			Help:      "Satoshis paid to recipients by spend policy",
		},
		[]string{"policy"},
	)
	prometheusSigningSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ckbtcwallet",
			Name:      "signing_seconds",
			Help:      "Latency of signing service calls",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"policy"},
	)
}

// observeSigning records the latency of a single signing call.
func observeSigning(policy SpendPolicy, elapsed time.Duration) {
	initPrometheusMetrics()

	prometheusSigningSeconds.WithLabelValues(policy.String()).
		Observe(elapsed.Seconds())
}

// observeSend records the outcome of a send.
func observeSend(policy SpendPolicy, sent float64, err error) {
	initPrometheusMetrics()

	if err != nil {
		prometheusSends.WithLabelValues(policy.String(), "error").Inc()
		return
	}

	prometheusSends.WithLabelValues(policy.String(), "ok").Inc()
	prometheusSentAmount.WithLabelValues(policy.String()).Add(sent)
}
