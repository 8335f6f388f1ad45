// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/ckbtcwallet/pkg/btcunit"
	"github.com/btcsuite/ckbtcwallet/wallet"
	"github.com/btcsuite/ckbtcwallet/wallet/conversion"
	flags "github.com/jessevdk/go-flags"
)

const (
	defaultConfigFilename = "ckbtcwalletd.conf"
	defaultLogLevel       = "info"
	defaultLogDirname     = "logs"
	defaultLogFilename    = "ckbtcwalletd.log"
	defaultNetwork        = "mainnet"
	defaultDBBackend      = "bdb"
	defaultPolicy         = "p2tr_key_tweaked"
	defaultBasePath       = "ckbtc"
	defaultRESTListen     = "127.0.0.1:8390"
	defaultMinConfs       = 1
	defaultHTTPTimeout    = 30 * time.Second
	defaultDBTimeout      = 60 * time.Second
	defaultMaxLogFiles    = 3
	defaultMaxLogFileSize = 10

	ledgerDBFilename  = "ledger.db"
	ledgerSQLFilename = "ledger.sqlite"
	journalDBFilename = "journal.db"
)

var (
	defaultAppDataDir = btcutil.AppDataDir("ckbtcwalletd", false)
	defaultConfigFile = filepath.Join(defaultAppDataDir, defaultConfigFilename)
	defaultLogDir     = filepath.Join(defaultAppDataDir, defaultLogDirname)
)

// config defines the configuration options for ckbtcwalletd.
//
// See loadConfig for details on the configuration load process.
type config struct {
	// General application behavior
	ConfigFile  *explicitString `short:"C" long:"configfile" description:"Path to configuration file"`
	ShowVersion bool            `short:"V" long:"version" description:"Display version information and exit"`
	AppDataDir  string          `short:"A" long:"appdata" description:"Application data directory for the ledger and journal databases"`
	Network     string          `long:"network" description:"Bitcoin network" choice:"mainnet" choice:"testnet3" choice:"regtest" choice:"signet"`
	DebugLevel  string          `short:"d" long:"debuglevel" description:"Logging level {trace, debug, info, warn, error, critical} or SUBSYS=level,..."`
	LogDir      string          `long:"logdir" description:"Directory to log output"`
	MaxLogFiles int             `long:"maxlogfiles" description:"Maximum logfiles to keep (0 for no rotation)"`
	MaxLogSize  int             `long:"maxlogfilesize" description:"Maximum logfile size in MB"`

	// Storage
	DBBackend   string        `long:"dbbackend" description:"Ledger database backend" choice:"bdb" choice:"sqlite" choice:"postgres"`
	PostgresDSN string        `long:"postgres.dsn" description:"Postgres connection string, required by the postgres backend"`
	DBTimeout   time.Duration `long:"dbtimeout" description:"Timeout of bdb database operations"`

	// Payment engine
	Policy          string  `long:"policy" description:"Spend policy of the users' addresses {p2pkh, p2tr_script, p2tr_key, p2tr_key_tweaked}"`
	BasePath        string  `long:"basepath" description:"Derivation path segment the user paths are appended to"`
	MinConfs        uint32  `long:"minconfs" description:"Confirmations a coin needs before it is spent"`
	MinRelayFeeRate float64 `long:"minrelayfeerate" description:"Floor of the working fee rate in sat/vB"`
	FallbackFeeRate float64 `long:"fallbackfeerate" description:"Fee rate in sat/vB used when the gateway reports none"`
	MaxFeeRate      float64 `long:"maxfeerate" description:"Largest fee rate in sat/vB accepted"`

	// External services
	GatewayURL  string        `long:"gatewayurl" description:"Base URL of the bitcoin gateway"`
	SignerURL   string        `long:"signerurl" description:"Base URL of the threshold signing service"`
	MinterURL   string        `long:"minterurl" description:"Base URL of the ckBTC minter"`
	HTTPTimeout time.Duration `long:"httptimeout" description:"Timeout of requests to external services"`

	// Services
	RESTListen          string        `long:"restlisten" description:"Listen address of the REST server"`
	NoAutoConvert       bool          `long:"noautoconvert" description:"Disable the periodic auto conversion pass"`
	AutoConvertInterval time.Duration `long:"autoconvertinterval" description:"Time between two auto conversion passes"`

	chainParams *chaincfg.Params
	policy      wallet.SpendPolicy
}

// explicitString is a string flag value that records whether it was
// set on the command line.
type explicitString struct {
	Value         string
	explicitlySet bool
}

// MarshalFlag implements the flags.Marshaler interface.
func (e *explicitString) MarshalFlag() (string, error) {
	return e.Value, nil
}

// UnmarshalFlag implements the flags.Unmarshaler interface.
func (e *explicitString) UnmarshalFlag(value string) error {
	e.Value = value
	e.explicitlySet = true

	return nil
}

// ExplicitlySet returns whether the flag was set.
func (e *explicitString) ExplicitlySet() bool {
	return e.explicitlySet
}

// defaultConfig returns the config holding every default value.
func defaultConfig() config {
	return config{
		ConfigFile:          &explicitString{Value: defaultConfigFile},
		AppDataDir:          defaultAppDataDir,
		Network:             defaultNetwork,
		DebugLevel:          defaultLogLevel,
		LogDir:              defaultLogDir,
		MaxLogFiles:         defaultMaxLogFiles,
		MaxLogSize:          defaultMaxLogFileSize,
		DBBackend:           defaultDBBackend,
		DBTimeout:           defaultDBTimeout,
		Policy:              defaultPolicy,
		BasePath:            defaultBasePath,
		MinConfs:            defaultMinConfs,
		HTTPTimeout:         defaultHTTPTimeout,
		RESTListen:          defaultRESTListen,
		AutoConvertInterval: conversion.DefaultAutoConvertInterval,
	}
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		homeDir := filepath.Dir(defaultAppDataDir)
		path = strings.Replace(path, "~", homeDir, 1)
	}

	return filepath.Clean(os.ExpandEnv(path))
}

// loadConfig initializes and parses the config using a config file and
// command line options.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified options
//  4. Parse CLI options and overwrite/add any specified options
//
// The above results in ckbtcwalletd functioning properly without any config
// settings while still allowing the user to override settings with config
// files and command line options. Command line options always take
// precedence.
func loadConfig(args []string) (*config, error) {
	// Pre-parse the command line options to see if an alternative config
	// file or the version flag was specified.
	preCfg := defaultConfig()
	preParser := flags.NewParser(&preCfg, flags.Default)
	_, err := preParser.ParseArgs(args)
	if err != nil {
		var e *flags.Error
		if errors.As(err, &e) && e.Type == flags.ErrHelp {
			os.Exit(0)
		}

		return nil, err
	}

	if preCfg.ShowVersion {
		fmt.Println("ckbtcwalletd version", version())
		os.Exit(0)
	}

	// Load additional config from file.
	cfg := defaultConfig()
	parser := flags.NewParser(&cfg, flags.Default)
	configFile := cleanAndExpandPath(preCfg.ConfigFile.Value)
	err = flags.NewIniParser(parser).ParseFile(configFile)
	if err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) ||
			preCfg.ConfigFile.ExplicitlySet() {

			return nil, fmt.Errorf("error parsing config file: %w",
				err)
		}
	}

	// Parse command line options again to ensure they take precedence.
	_, err = parser.ParseArgs(args)
	if err != nil {
		return nil, err
	}

	err = cfg.validate()
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

// validate checks the parsed options and derives the settings that depend
// on them.
func (c *config) validate() error {
	switch c.Network {
	case "mainnet":
		c.chainParams = &chaincfg.MainNetParams

	case "testnet3":
		c.chainParams = &chaincfg.TestNet3Params

	case "regtest":
		c.chainParams = &chaincfg.RegressionNetParams

	case "signet":
		c.chainParams = &chaincfg.SigNetParams

	default:
		return fmt.Errorf("unknown network %q", c.Network)
	}

	policy, err := wallet.ParseSpendPolicy(c.Policy)
	if err != nil {
		return err
	}
	c.policy = policy

	switch c.DBBackend {
	case "bdb", "sqlite":

	case "postgres":
		if c.PostgresDSN == "" {
			return errors.New("the postgres backend requires " +
				"--postgres.dsn")
		}

	default:
		return fmt.Errorf("unknown database backend %q", c.DBBackend)
	}

	for name, url := range map[string]string{
		"gatewayurl": c.GatewayURL,
		"signerurl":  c.SignerURL,
		"minterurl":  c.MinterURL,
	} {
		if url == "" {
			return fmt.Errorf("--%s is required", name)
		}
	}

	for name, rate := range map[string]float64{
		"minrelayfeerate": c.MinRelayFeeRate,
		"fallbackfeerate": c.FallbackFeeRate,
		"maxfeerate":      c.MaxFeeRate,
	} {
		if rate < 0 {
			return fmt.Errorf("--%s must not be negative", name)
		}
	}

	if c.MaxFeeRate > 0 && c.MaxFeeRate < c.MinRelayFeeRate {
		return fmt.Errorf("--maxfeerate %v is below --minrelayfeerate "+
			"%v", c.MaxFeeRate, c.MinRelayFeeRate)
	}

	if !c.NoAutoConvert && c.AutoConvertInterval <= 0 {
		return errors.New("--autoconvertinterval must be positive")
	}

	if c.BasePath == "" {
		return errors.New("--basepath must not be empty")
	}

	c.AppDataDir = cleanAndExpandPath(c.AppDataDir)
	c.LogDir = cleanAndExpandPath(c.LogDir)

	// Network data lives in a per-network subdirectory.
	c.AppDataDir = filepath.Join(c.AppDataDir, c.chainParams.Name)
	c.LogDir = filepath.Join(c.LogDir, c.chainParams.Name)

	return nil
}

// feeRate converts an optional sat/vB option to a fee rate, zero meaning
// the wallet default.
func feeRate(satPerVByte float64) btcunit.MilliSatPerByte {
	if satPerVByte == 0 {
		return 0
	}

	return btcunit.NewMilliSatPerByteFromSatPerVByte(satPerVByte)
}
