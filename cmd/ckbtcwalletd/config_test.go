package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/ckbtcwallet/pkg/btcunit"
	"github.com/btcsuite/ckbtcwallet/wallet"
	"github.com/stretchr/testify/require"
)

// validConfig returns a config that passes validation.
func validConfig(t *testing.T) config {
	t.Helper()

	cfg := defaultConfig()
	cfg.AppDataDir = t.TempDir()
	cfg.LogDir = filepath.Join(cfg.AppDataDir, "logs")
	cfg.GatewayURL = "http://gateway"
	cfg.SignerURL = "http://signer"
	cfg.MinterURL = "http://minter"

	return cfg
}

// TestConfigValidate checks the option checks and derived settings.
func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(cfg *config)
		wantErr string
	}{{
		name:   "defaults",
		mutate: func(*config) {},
	}, {
		name:    "unknown network",
		mutate:  func(cfg *config) { cfg.Network = "simnet" },
		wantErr: "unknown network",
	}, {
		name:    "unknown policy",
		mutate:  func(cfg *config) { cfg.Policy = "p2wpkh" },
		wantErr: wallet.ErrUnknownPolicy.Error(),
	}, {
		name:    "postgres without dsn",
		mutate:  func(cfg *config) { cfg.DBBackend = "postgres" },
		wantErr: "--postgres.dsn",
	}, {
		name:    "missing minter url",
		mutate:  func(cfg *config) { cfg.MinterURL = "" },
		wantErr: "--minterurl is required",
	}, {
		name:    "negative fee rate",
		mutate:  func(cfg *config) { cfg.FallbackFeeRate = -1 },
		wantErr: "--fallbackfeerate must not be negative",
	}, {
		name: "max below min relay",
		mutate: func(cfg *config) {
			cfg.MinRelayFeeRate = 5
			cfg.MaxFeeRate = 2
		},
		wantErr: "is below --minrelayfeerate",
	}, {
		name: "zero auto convert interval",
		mutate: func(cfg *config) {
			cfg.AutoConvertInterval = 0
		},
		wantErr: "--autoconvertinterval must be positive",
	}, {
		name: "auto convert disabled",
		mutate: func(cfg *config) {
			cfg.NoAutoConvert = true
			cfg.AutoConvertInterval = 0
		},
	}, {
		name:    "empty base path",
		mutate:  func(cfg *config) { cfg.BasePath = "" },
		wantErr: "--basepath",
	}}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			// Arrange: Start from a valid config.
			cfg := validConfig(t)
			tc.mutate(&cfg)

			// Act: Validate.
			err := cfg.validate()

			// Assert: The error matches.
			if tc.wantErr != "" {
				require.ErrorContains(t, err, tc.wantErr)
				return
			}

			require.NoError(t, err)
			require.Equal(t, &chaincfg.MainNetParams, cfg.chainParams)
			require.Equal(t, wallet.TaprootKeyPath{Tweaked: true},
				cfg.policy)
			require.Equal(t, "mainnet", filepath.Base(cfg.AppDataDir))
		})
	}
}

// TestConfigNetworks checks the network option.
func TestConfigNetworks(t *testing.T) {
	t.Parallel()

	for network, params := range map[string]*chaincfg.Params{
		"mainnet":  &chaincfg.MainNetParams,
		"testnet3": &chaincfg.TestNet3Params,
		"regtest":  &chaincfg.RegressionNetParams,
		"signet":   &chaincfg.SigNetParams,
	} {
		cfg := validConfig(t)
		cfg.Network = network

		require.NoError(t, cfg.validate())
		require.Equal(t, params, cfg.chainParams)
		require.Equal(t, params.Name, filepath.Base(cfg.LogDir))
	}
}

// TestLoadConfigFile checks that command line options take precedence over
// the config file.
func TestLoadConfigFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	configFile := filepath.Join(dir, "ckbtcwalletd.conf")
	err := os.WriteFile(configFile, []byte(
		"network=regtest\n"+
			"policy=p2pkh\n"+
			"gatewayurl=http://gateway\n"+
			"signerurl=http://signer\n"+
			"minterurl=http://minter\n"+
			"autoconvertinterval=1m\n",
	), 0600)
	require.NoError(t, err)

	cfg, err := loadConfig([]string{
		"-C", configFile, "--appdata", dir, "--logdir", dir,
		"--policy", "p2tr_script", "--dbbackend", "sqlite",
	})
	require.NoError(t, err)

	require.Equal(t, &chaincfg.RegressionNetParams, cfg.chainParams)
	require.Equal(t, wallet.TaprootScriptPath{}, cfg.policy)
	require.Equal(t, "sqlite", cfg.DBBackend)
	require.Equal(t, time.Minute, cfg.AutoConvertInterval)
	require.Equal(t, "http://minter", cfg.MinterURL)
}

// TestLoadConfigMissingFile checks that an explicitly given config file
// must exist.
func TestLoadConfigMissingFile(t *testing.T) {
	t.Parallel()

	_, err := loadConfig([]string{
		"-C", filepath.Join(t.TempDir(), "missing.conf"),
	})
	require.ErrorContains(t, err, "error parsing config file")
}

// TestFeeRate checks the conversion of fee rate options.
func TestFeeRate(t *testing.T) {
	t.Parallel()

	require.Zero(t, feeRate(0))
	require.Equal(t, btcunit.MilliSatPerByte(2500), feeRate(2.5))
}
