// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package rpcserver exposes the payment engine and the conversion
// orchestrator over a JSON REST API.
package rpcserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/ckbtcwallet/ledger"
	"github.com/btcsuite/ckbtcwallet/pkg/btcunit"
	"github.com/btcsuite/ckbtcwallet/signer"
	"github.com/btcsuite/ckbtcwallet/wallet"
	"github.com/btcsuite/ckbtcwallet/wallet/conversion"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/lightningnetwork/lnd/fn/v2"
)

var (
	// ErrMissingConfig is returned when a required collaborator isn't
	// set.
	ErrMissingConfig = errors.New("missing server config")
)

// Wallet is the part of the payment engine served over the API.
type Wallet interface {
	Address(ctx context.Context, policy wallet.SpendPolicy,
		path signer.DerivationPath) (btcutil.Address, error)

	FeeRate(ctx context.Context) (btcunit.MilliSatPerByte, error)

	UTXOs(ctx context.Context, policy wallet.SpendPolicy,
		path signer.DerivationPath) ([]wallet.Coin, error)

	Send(ctx context.Context,
		req *wallet.SendRequest) (*wallet.SendResult, error)

	FundPsbt(ctx context.Context,
		req *wallet.SendRequest) (*psbt.Packet, error)

	BlockHeaders(ctx context.Context, start uint32,
		end fn.Option[uint32]) ([]wire.BlockHeader, error)
}

// Conversions is the part of the orchestrator served over the API.
type Conversions interface {
	UserPath(user string) signer.DerivationPath

	GetBalances(ctx context.Context,
		user string) (*conversion.Balances, error)

	Preferences(ctx context.Context,
		user string) (ledger.Preferences, error)

	SetPreferences(ctx context.Context, user string,
		prefs ledger.Preferences) error

	GetPreferredAsset(ctx context.Context,
		user string) (ledger.Asset, error)

	SetPreferredAsset(ctx context.Context, user string,
		asset ledger.Asset) error

	RegisterAddress(ctx context.Context, user, addr string) error

	RegisterDerivedAddress(ctx context.Context,
		user string) (btcutil.Address, error)

	GetConversionHistory(ctx context.Context,
		user string) ([]ledger.Record, error)

	ConvertToNative(ctx context.Context,
		user string) (*ledger.Record, error)

	ConvertToWrapped(ctx context.Context,
		user string) (*ledger.Record, error)
}

// A compile-time assertion to ensure the concrete types serve the API.
var (
	_ Wallet      = (*wallet.Wallet)(nil)
	_ Conversions = (*conversion.Orchestrator)(nil)
)

// Config holds the collaborators of a Server.
type Config struct {
	// Wallet is the payment engine.
	Wallet Wallet

	// Conversions runs the users' conversions.
	Conversions Conversions

	// Metrics, if set, is served on /metrics.
	Metrics http.Handler
}

// Server is the REST API server.
type Server struct {
	cfg Config
	e   *echo.Echo
}

// New creates a server and registers its routes.
func New(cfg Config) (*Server, error) {
	if cfg.Wallet == nil || cfg.Conversions == nil {
		return nil, ErrMissingConfig
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handleError

	e.Use(middleware.Recover())
	e.Use(observeRequests)

	s := &Server{cfg: cfg, e: e}

	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})

	if cfg.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(cfg.Metrics))
	}

	v1 := e.Group("/v1")
	v1.GET("/feerate", s.getFeeRate)
	v1.GET("/headers/:start", s.getBlockHeaders)

	users := v1.Group("/users/:user")
	users.GET("/balances", s.getBalances)
	users.GET("/preferences", s.getPreferences)
	users.PUT("/preferences", s.putPreferences)
	users.GET("/preferred-asset", s.getPreferredAsset)
	users.PUT("/preferred-asset", s.putPreferredAsset)
	users.PUT("/address", s.putAddress)
	users.POST("/address/derive", s.deriveAddress)
	users.GET("/history", s.getHistory)
	users.POST("/convert/native", s.convertToNative)
	users.POST("/convert/wrapped", s.convertToWrapped)

	users.GET("/policies/:policy/address", s.getAddress)
	users.GET("/policies/:policy/utxos", s.getUTXOs)
	users.POST("/policies/:policy/send", s.send)
	users.POST("/policies/:policy/psbt", s.fundPsbt)

	return s, nil
}

// ServeHTTP serves a single request.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.e.ServeHTTP(w, r)
}

// Start serves the API on addr until Stop is called.
func (s *Server) Start(addr string) error {
	log.Infof("REST server listening on %s", addr)

	err := s.e.Start(addr)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve %s: %w", addr, err)
	}

	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	log.Info("REST server shutting down")

	return s.e.Shutdown(ctx)
}
