// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/btcsuite/btcwallet/walletdb"
	_ "github.com/btcsuite/btcwallet/walletdb/bdb"
	"github.com/btcsuite/ckbtcwallet/gateway"
	"github.com/btcsuite/ckbtcwallet/ledger"
	"github.com/btcsuite/ckbtcwallet/ledger/kvdb"
	"github.com/btcsuite/ckbtcwallet/ledger/sqldb"
	"github.com/btcsuite/ckbtcwallet/minter"
	"github.com/btcsuite/ckbtcwallet/rpcserver"
	"github.com/btcsuite/ckbtcwallet/signer"
	"github.com/btcsuite/ckbtcwallet/wallet"
	"github.com/btcsuite/ckbtcwallet/wallet/conversion"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	appMajor = 0
	appMinor = 1
	appPatch = 0

	// shutdownTimeout bounds the graceful shutdown of the services.
	shutdownTimeout = 30 * time.Second
)

// version returns the application version as a semver string.
func version() string {
	return fmt.Sprintf("%d.%d.%d", appMajor, appMinor, appPatch)
}

func main() {
	err := ckbtcwalletdMain()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// ckbtcwalletdMain is the real main function for ckbtcwalletd. It is
// necessary to work around the fact that deferred functions do not run when
// os.Exit() is called.
func ckbtcwalletdMain() error {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		return err
	}

	if cfg.MaxLogFiles > 0 {
		err = initLogRotator(
			filepath.Join(cfg.LogDir, defaultLogFilename),
			int64(cfg.MaxLogSize)*1024, cfg.MaxLogFiles,
		)
		if err != nil {
			return err
		}
		defer logRotator.Close()
	}

	err = parseAndSetDebugLevels(cfg.DebugLevel)
	if err != nil {
		return err
	}

	log.Infof("Version %s on %s", version(), cfg.chainParams.Name)

	ctx, stop := signal.NotifyContext(
		context.Background(), os.Interrupt, syscall.SIGTERM,
	)
	defer stop()

	err = os.MkdirAll(cfg.AppDataDir, 0700)
	if err != nil {
		return fmt.Errorf("create app data dir: %w", err)
	}

	store, err := openLedger(cfg)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("Closing ledger")
		if err := store.Close(); err != nil {
			log.Errorf("Unable to close ledger: %v", err)
		}
	}()

	journalDB, err := walletdb.Create(
		"bdb", filepath.Join(cfg.AppDataDir, journalDBFilename), true,
		cfg.DBTimeout,
	)
	if err != nil {
		return fmt.Errorf("open journal database: %w", err)
	}
	defer journalDB.Close()

	journal, err := wallet.NewSpendJournal(journalDB, cfg.chainParams)
	if err != nil {
		return err
	}

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	gw, err := gateway.NewClient(cfg.GatewayURL, httpClient)
	if err != nil {
		return err
	}

	thresholdSigner, err := signer.NewClient(cfg.SignerURL, httpClient)
	if err != nil {
		return err
	}

	minterClient, err := minter.NewClient(cfg.MinterURL, httpClient)
	if err != nil {
		return err
	}

	w, err := wallet.New(wallet.Config{
		ChainParams: cfg.chainParams,
		Gateway:     gw,
		Signer:      thresholdSigner,
		FeeEstimator: wallet.NewFeeEstimator(wallet.FeeEstimatorConfig{
			Source:       gw,
			FallbackRate: feeRate(cfg.FallbackFeeRate),
			MinRelayRate: feeRate(cfg.MinRelayFeeRate),
			MaxRate:      feeRate(cfg.MaxFeeRate),
		}),
		Journal:  journal,
		MinConfs: cfg.MinConfs,
	})
	if err != nil {
		return err
	}

	orchestrator, err := conversion.NewOrchestrator(conversion.Config{
		Wallet:   w,
		Minter:   minterClient,
		Store:    store,
		Policy:   cfg.policy,
		BasePath: signer.DerivationPath{[]byte(cfg.BasePath)},
	})
	if err != nil {
		return err
	}

	server, err := rpcserver.New(rpcserver.Config{
		Wallet:      w,
		Conversions: orchestrator,
		Metrics:     promhttp.Handler(),
	})
	if err != nil {
		return err
	}

	var autoConverter *conversion.AutoConverter
	if !cfg.NoAutoConvert {
		autoConverter = conversion.NewAutoConverter(
			conversion.AutoConverterConfig{
				Orchestrator: orchestrator,
				Ticker:       ticker.New(cfg.AutoConvertInterval),
			},
		)

		err = autoConverter.Start()
		if err != nil {
			return err
		}
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Start(cfg.RESTListen)
	}()

	select {
	case <-ctx.Done():
		log.Info("Received shutdown signal")

	case err = <-serveErr:
		if err != nil {
			log.Errorf("REST server failed: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(), shutdownTimeout,
	)
	defer cancel()

	if autoConverter != nil {
		stopErr := autoConverter.Stop(shutdownCtx)
		if stopErr != nil {
			log.Errorf("Unable to stop auto converter: %v", stopErr)
		}
	}

	stopErr := server.Stop(shutdownCtx)
	if stopErr != nil {
		log.Errorf("Unable to stop REST server: %v", stopErr)
	}

	log.Info("Shutdown complete")

	return err
}

// openLedger opens the ledger store of the configured backend.
func openLedger(cfg *config) (ledger.Store, error) {
	switch cfg.DBBackend {
	case "sqlite":
		store, err := sqldb.OpenSQLite(
			filepath.Join(cfg.AppDataDir, ledgerSQLFilename),
		)
		if err != nil {
			return nil, err
		}

		return store, nil

	case "postgres":
		store, err := sqldb.OpenPostgres(cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}

		return store, nil

	default:
		store, err := kvdb.OpenStore(
			filepath.Join(cfg.AppDataDir, ledgerDBFilename), true,
			cfg.DBTimeout,
		)
		if err != nil {
			return nil, err
		}

		return store, nil
	}
}
