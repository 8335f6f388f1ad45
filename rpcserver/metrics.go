// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package rpcserver

import (
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricsOnce sync.Once

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
)

func initMetrics() {
	metricsOnce.Do(func() {
		requestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ckbtcwallet",
				Subsystem: "rest",
				Name:      "requests_total",
				Help:      "Number of REST requests served",
			},
			[]string{"route", "code"},
		)

		requestDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "ckbtcwallet",
				Subsystem: "rest",
				Name:      "request_duration_seconds",
				Help:      "Duration of REST requests",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		)
	})
}

// observeRequests counts every request by route and status.
func observeRequests(next echo.HandlerFunc) echo.HandlerFunc {
	initMetrics()

	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)

		status := c.Response().Status
		if err != nil {
			status = statusCode(err)
		}

		route := c.Path()
		requestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
		requestDuration.WithLabelValues(route).Observe(
			time.Since(start).Seconds(),
		)

		return err
	}
}
