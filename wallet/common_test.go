package wallet

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/walletdb"
	_ "github.com/btcsuite/btcwallet/walletdb/bdb"
	"github.com/btcsuite/ckbtcwallet/gateway"
	"github.com/btcsuite/ckbtcwallet/pkg/btcunit"
	"github.com/btcsuite/ckbtcwallet/signer"
	"github.com/btcsuite/ckbtcwallet/signer/signertest"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	errMock      = errors.New("mock error")
	errSignMock  = errors.New("sign error")
	errBroadcast = errors.New("broadcast fail")
)

var (
	// chainParams are the chain parameters used throughout the wallet
	// tests.
	chainParams = chaincfg.RegressionNetParams

	// testSeed seeds the deterministic signer of the tests.
	testSeed = []byte("ckbtcwallet test seed")

	// testPath is the base derivation path of the tests.
	testPath = signer.DerivationPath{[]byte("user-1")}

	// allPolicies lists every spend policy.
	allPolicies = []SpendPolicy{
		LegacyKeyHash{},
		TaprootScriptPath{},
		TaprootKeyPath{},
		TaprootKeyPath{Tweaked: true},
	}
)

// mockGateway is a testify mock of the Gateway interface.
type mockGateway struct {
	mock.Mock
}

// A compile-time assertion to ensure mockGateway implements Gateway.
var _ Gateway = (*mockGateway)(nil)

func (m *mockGateway) FeePercentiles(
	ctx context.Context) ([]btcunit.MilliSatPerByte, error) {

	args := m.Called(ctx)
	rates, _ := args.Get(0).([]btcunit.MilliSatPerByte)

	return rates, args.Error(1)
}

func (m *mockGateway) Balance(ctx context.Context,
	addr btcutil.Address) (btcutil.Amount, error) {

	args := m.Called(ctx, addr)

	return args.Get(0).(btcutil.Amount), args.Error(1)
}

func (m *mockGateway) UTXOs(ctx context.Context, addr btcutil.Address,
	minConf uint32) ([]gateway.UTXO, error) {

	args := m.Called(ctx, addr, minConf)
	utxos, _ := args.Get(0).([]gateway.UTXO)

	return utxos, args.Error(1)
}

func (m *mockGateway) BlockHeaders(ctx context.Context, start uint32,
	end fn.Option[uint32]) ([]wire.BlockHeader, error) {

	args := m.Called(ctx, start, end)
	headers, _ := args.Get(0).([]wire.BlockHeader)

	return headers, args.Error(1)
}

func (m *mockGateway) Broadcast(ctx context.Context,
	rawTx []byte) (*chainhash.Hash, error) {

	args := m.Called(ctx, rawTx)
	if txidFn, ok := args.Get(0).(func([]byte) *chainhash.Hash); ok {
		return txidFn(rawTx), args.Error(1)
	}
	txid, _ := args.Get(0).(*chainhash.Hash)

	return txid, args.Error(1)
}

// txidOf returns the txid of a serialized transaction, failing the test if
// it can't be decoded.
func txidOf(t *testing.T) func([]byte) *chainhash.Hash {
	return func(rawTx []byte) *chainhash.Hash {
		tx := decodeTx(t, rawTx)
		txid := tx.TxHash()

		return &txid
	}
}

// decodeTx deserializes a transaction.
func decodeTx(t *testing.T, rawTx []byte) *wire.MsgTx {
	tx := wire.NewMsgTx(TxVersion)
	require.NoError(t, tx.Deserialize(bytes.NewReader(rawTx)))

	return tx
}

// setupTestDB creates a temporary database for testing.
func setupTestDB(t *testing.T) walletdb.DB {
	t.Helper()

	f, err := os.CreateTemp(t.TempDir(), "wallet-test-*.db")
	require.NoError(t, err)

	dbPath := f.Name()
	require.NoError(t, f.Close())
	require.NoError(t, os.Remove(dbPath))

	db, err := walletdb.Create("bdb", dbPath, true, time.Second*10, false)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = db.Close()
	})

	return db
}

// testDeriver returns an address deriver backed by a fresh deterministic
// signer.
func testDeriver(t *testing.T) (*AddressDeriver, *signertest.Signer) {
	t.Helper()

	s := signertest.New(testSeed)

	return NewAddressDeriver(s, &chainParams), s
}

// testSpendKey derives the spend key of policy at testPath.
func testSpendKey(t *testing.T, d *AddressDeriver,
	policy SpendPolicy) *spendKey {

	t.Helper()

	key, err := d.spendKey(t.Context(), policy, testPath)
	require.NoError(t, err)

	return key
}

// testOutPoint returns an outpoint with a hash derived from seed.
func testOutPoint(seed byte, index uint32) wire.OutPoint {
	var hash chainhash.Hash
	hash[0] = seed
	hash[31] = seed

	return wire.OutPoint{Hash: hash, Index: index}
}

// testCoins returns coins of the given values locked to pkScript.
func testCoins(pkScript []byte, values ...btcutil.Amount) []Coin {
	coins := make([]Coin, 0, len(values))
	for i, value := range values {
		coins = append(coins, Coin{
			TxOut: wire.TxOut{
				Value:    int64(value),
				PkScript: pkScript,
			},
			OutPoint: testOutPoint(byte(i+1), uint32(i)),
		})
	}

	return coins
}

// testUTXOs returns confirmed gateway UTXOs of the given values.
func testUTXOs(values ...btcutil.Amount) []gateway.UTXO {
	utxos := make([]gateway.UTXO, 0, len(values))
	for i, value := range values {
		utxos = append(utxos, gateway.UTXO{
			OutPoint: testOutPoint(byte(i+1), uint32(i)),
			Value:    value,
			Height:   100,
		})
	}

	return utxos
}

// testDestination returns a regtest address not controlled by the test
// signer.
func testDestination(t *testing.T) btcutil.Address {
	t.Helper()

	addr, err := btcutil.NewAddressPubKeyHash(
		make([]byte, 20), &chainParams,
	)
	require.NoError(t, err)

	return addr
}
