package conversion

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/ckbtcwallet/gateway"
	"github.com/btcsuite/ckbtcwallet/ledger"
	"github.com/btcsuite/ckbtcwallet/ledger/kvdb"
	"github.com/btcsuite/ckbtcwallet/ledger/sqldb"
	"github.com/btcsuite/ckbtcwallet/minter"
	"github.com/btcsuite/ckbtcwallet/pkg/btcunit"
	"github.com/btcsuite/ckbtcwallet/signer"
	"github.com/btcsuite/ckbtcwallet/signer/signertest"
	"github.com/btcsuite/ckbtcwallet/wallet"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"
)

var (
	errRedeem = errors.New("redeem fail")
	errStore  = errors.New("store fail")
	errNotYet = errors.New("not yet")
)

var (
	// chainParams are the chain parameters of the conversion tests.
	chainParams = chaincfg.RegressionNetParams

	// testBasePath is the base derivation path of the tests.
	testBasePath = signer.DerivationPath{[]byte("ckbtc")}
)

// fakeMinter is an in-memory minter.
type fakeMinter struct {
	mu sync.Mutex

	wrapped  map[string]btcutil.Amount
	deposits map[string]string
	payouts  map[string]btcutil.Amount
	index    uint64

	redeemErr  error
	depositErr error

	// redeemHook, if set, runs at the start of every Redeem call without
	// holding the mutex.
	redeemHook func()
}

var _ minter.Minter = (*fakeMinter)(nil)

func newFakeMinter() *fakeMinter {
	return &fakeMinter{
		wrapped:  make(map[string]btcutil.Amount),
		deposits: make(map[string]string),
		payouts:  make(map[string]btcutil.Amount),
	}
}

func (f *fakeMinter) DepositAddress(_ context.Context,
	user string) (string, error) {

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.depositErr != nil {
		return "", f.depositErr
	}

	return f.deposits[user], nil
}

func (f *fakeMinter) Redeem(ctx context.Context, user, address string,
	amount btcutil.Amount) (*minter.RedeemResult, error) {

	if f.redeemHook != nil {
		f.redeemHook()
	}

	// Like the HTTP client, refuse to send on a canceled context.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.redeemErr != nil {
		return nil, f.redeemErr
	}

	if f.wrapped[user] < amount {
		return nil, minter.ErrRedeemRejected
	}

	f.wrapped[user] -= amount
	f.payouts[address] += amount
	f.index++

	return &minter.RedeemResult{BlockIndex: f.index}, nil
}

func (f *fakeMinter) WrappedBalance(_ context.Context,
	user string) (btcutil.Amount, error) {

	f.mu.Lock()
	defer f.mu.Unlock()

	return f.wrapped[user], nil
}

func (f *fakeMinter) setWrapped(user string, amount btcutil.Amount) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.wrapped[user] = amount
}

func (f *fakeMinter) wrappedOf(user string) btcutil.Amount {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.wrapped[user]
}

func (f *fakeMinter) payoutTo(addr string) btcutil.Amount {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.payouts[addr]
}

// fakeGateway is an in-memory bitcoin gateway tracking UTXOs by address.
type fakeGateway struct {
	mu sync.Mutex

	utxos      map[string][]gateway.UTXO
	broadcasts []*wire.MsgTx
	seq        byte

	// broadcastHook, if set, runs at the start of every Broadcast call
	// without holding the mutex.
	broadcastHook func()
}

var _ wallet.Gateway = (*fakeGateway)(nil)

func newFakeGateway() *fakeGateway {
	return &fakeGateway{utxos: make(map[string][]gateway.UTXO)}
}

// fund adds a confirmed coin of value to addr.
func (g *fakeGateway) fund(addr btcutil.Address, value btcutil.Amount) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.seq++

	var hash chainhash.Hash
	hash[0] = g.seq

	key := addr.EncodeAddress()
	g.utxos[key] = append(g.utxos[key], gateway.UTXO{
		OutPoint: wire.OutPoint{Hash: hash},
		Value:    value,
		Height:   1,
	})
}

func (g *fakeGateway) FeePercentiles(
	context.Context) ([]btcunit.MilliSatPerByte, error) {

	return []btcunit.MilliSatPerByte{2000}, nil
}

func (g *fakeGateway) Balance(_ context.Context,
	addr btcutil.Address) (btcutil.Amount, error) {

	g.mu.Lock()
	defer g.mu.Unlock()

	var total btcutil.Amount
	for _, utxo := range g.utxos[addr.EncodeAddress()] {
		total += utxo.Value
	}

	return total, nil
}

func (g *fakeGateway) UTXOs(_ context.Context, addr btcutil.Address,
	_ uint32) ([]gateway.UTXO, error) {

	g.mu.Lock()
	defer g.mu.Unlock()

	return append([]gateway.UTXO(nil), g.utxos[addr.EncodeAddress()]...),
		nil
}

func (g *fakeGateway) BlockHeaders(context.Context, uint32,
	fn.Option[uint32]) ([]wire.BlockHeader, error) {

	return nil, nil
}

// Broadcast spends the transaction's inputs and credits its outputs.
func (g *fakeGateway) Broadcast(ctx context.Context,
	rawTx []byte) (*chainhash.Hash, error) {

	if g.broadcastHook != nil {
		g.broadcastHook()
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tx := wire.NewMsgTx(wallet.TxVersion)
	err := tx.Deserialize(bytes.NewReader(rawTx))
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	spent := fn.NewSet[wire.OutPoint]()
	for _, txIn := range tx.TxIn {
		spent.Add(txIn.PreviousOutPoint)
	}

	for addr, utxos := range g.utxos {
		kept := utxos[:0]
		for _, utxo := range utxos {
			if !spent.Contains(utxo.OutPoint) {
				kept = append(kept, utxo)
			}
		}
		g.utxos[addr] = kept
	}

	txid := tx.TxHash()
	for i, txOut := range tx.TxOut {
		_, addrs, _, err := txscript.ExtractPkScriptAddrs(
			txOut.PkScript, &chainParams,
		)
		if err != nil || len(addrs) != 1 {
			continue
		}

		key := addrs[0].EncodeAddress()
		g.utxos[key] = append(g.utxos[key], gateway.UTXO{
			OutPoint: wire.OutPoint{Hash: txid, Index: uint32(i)},
			Value:    btcutil.Amount(txOut.Value),
		})
	}
	g.broadcasts = append(g.broadcasts, tx)

	return &txid, nil
}

func (g *fakeGateway) broadcastCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	return len(g.broadcasts)
}

// storeFactory opens an empty ledger store.
type storeFactory struct {
	name string
	open func(t *testing.T) ledger.Store
}

// storeBackends lists the ledger backends the orchestrator is tested on.
var storeBackends = []storeFactory{{
	name: "kvdb",
	open: func(t *testing.T) ledger.Store {
		store, err := kvdb.OpenStore(
			filepath.Join(t.TempDir(), "ledger.db"), true,
			10*time.Second,
		)
		require.NoError(t, err)

		return store
	},
}, {
	name: "sqlite",
	open: func(t *testing.T) ledger.Store {
		store, err := sqldb.OpenSQLite(
			filepath.Join(t.TempDir(), "ledger.sqlite"),
		)
		require.NoError(t, err)

		return store
	},
}}

// harness bundles an orchestrator with its fakes.
type harness struct {
	o       *Orchestrator
	minter  *fakeMinter
	gateway *fakeGateway
	signer  *signertest.Signer
	store   ledger.Store
	wallet  *wallet.Wallet
}

// newHarness creates an orchestrator on a fresh store of the backend.
func newHarness(t *testing.T, backend storeFactory) *harness {
	t.Helper()

	store := backend.open(t)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})

	gw := newFakeGateway()
	s := signertest.New([]byte("conversion test seed"))
	w, err := wallet.New(wallet.Config{
		ChainParams: &chainParams,
		Gateway:     gw,
		Signer:      s,
	})
	require.NoError(t, err)

	m := newFakeMinter()
	o, err := NewOrchestrator(Config{
		Wallet:   w,
		Minter:   m,
		Store:    store,
		Policy:   wallet.TaprootKeyPath{Tweaked: true},
		BasePath: testBasePath,
	})
	require.NoError(t, err)

	return &harness{
		o:       o,
		minter:  m,
		gateway: gw,
		signer:  s,
		store:   store,
		wallet:  w,
	}
}

// testAddress returns a regtest address with a hash derived from seed.
func testAddress(t *testing.T, seed byte) btcutil.Address {
	t.Helper()

	hash := make([]byte, 20)
	hash[0] = seed

	addr, err := btcutil.NewAddressPubKeyHash(hash, &chainParams)
	require.NoError(t, err)

	return addr
}

// forEachBackend runs f as a parallel subtest on every ledger backend.
func forEachBackend(t *testing.T, f func(t *testing.T, h *harness)) {
	for _, backend := range storeBackends {
		t.Run(backend.name, func(t *testing.T) {
			t.Parallel()

			f(t, newHarness(t, backend))
		})
	}
}
