// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package conversion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lightningnetwork/lnd/ticker"
)

const (
	// DefaultAutoConvertInterval is the default time between two auto
	// conversion passes.
	DefaultAutoConvertInterval = 10 * time.Minute
)

// AutoConverterConfig holds the settings of an AutoConverter.
type AutoConverterConfig struct {
	// Orchestrator runs the conversions.
	Orchestrator *Orchestrator

	// Ticker paces the passes.
	Ticker ticker.Ticker
}

// AutoConverter periodically runs CheckAndConvert for every user that
// enabled auto conversion.
type AutoConverter struct {
	cfg AutoConverterConfig

	state serviceState

	// cancel ends the lifetime of the running pass loop, which closes
	// done on exit.
	cancel context.CancelFunc
	done   chan struct{}
}

// NewAutoConverter creates a stopped auto converter.
func NewAutoConverter(cfg AutoConverterConfig) *AutoConverter {
	return &AutoConverter{cfg: cfg}
}

// Start launches the pass loop.
func (a *AutoConverter) Start() error {
	err := a.state.toStarting()
	if err != nil {
		return err
	}

	lifetimeCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.cfg.Ticker.Resume()

	a.done = make(chan struct{})
	go a.loop(lifetimeCtx, a.done)

	a.state.toStarted()

	log.Info("Auto converter started")

	return nil
}

// Stop signals the pass loop to exit and waits for it, or for stopCtx to be
// done. A conversion already running isn't interrupted and still finalizes
// its record. The converter is stopped when Stop returns, even if stopCtx
// expired while a pass was still finishing.
func (a *AutoConverter) Stop(stopCtx context.Context) error {
	err := a.state.toStopping()
	if err != nil {
		log.Warnf("Auto converter already stopped: %v", err)
		return nil
	}

	// Pause rather than Stop so the ticker can be resumed on restart.
	a.cancel()
	a.cfg.Ticker.Pause()

	defer a.state.toStopped()

	select {
	case <-a.done:
	case <-stopCtx.Done():
		log.Warnf("Auto converter pass still running after stop")

		return fmt.Errorf("stop request cancelled: %w", stopCtx.Err())
	}

	log.Info("Auto converter stopped")

	return nil
}

// loop runs a pass on every tick until stopped.
func (a *AutoConverter) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-a.cfg.Ticker.Ticks():
			a.runPass(ctx)

		case <-ctx.Done():
			return
		}
	}
}

// runPass checks every opted-in user once. Failures are logged and don't
// stop the pass.
func (a *AutoConverter) runPass(ctx context.Context) {
	o := a.cfg.Orchestrator

	users, err := o.cfg.Store.AutoConvertUsers(ctx)
	if err != nil {
		log.Errorf("Unable to list auto convert users: %v", err)
		return
	}

	log.Debugf("Auto convert pass over %d users", len(users))

	for _, user := range users {
		if ctx.Err() != nil {
			return
		}

		rec, err := o.CheckAndConvert(ctx, user)
		switch {
		case errors.Is(err, ErrConversionInFlight),
			errors.Is(err, ErrNoBalance):

			log.Debugf("Skipping auto convert of %s: %v", user, err)

		case err != nil:
			log.Warnf("Auto convert of %s failed: %v", user, err)

		case rec != nil:
			log.Infof("Auto converted %v %v of %s", rec.Amount,
				rec.From, user)
		}
	}
}
