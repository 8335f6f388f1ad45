package rpcserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/ckbtcwallet/ledger"
	"github.com/btcsuite/ckbtcwallet/pkg/btcunit"
	"github.com/btcsuite/ckbtcwallet/signer"
	"github.com/btcsuite/ckbtcwallet/wallet"
	"github.com/btcsuite/ckbtcwallet/wallet/conversion"
	"github.com/google/uuid"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var errMock = errors.New("mock error")

// mockWallet is a mock implementation of the Wallet interface.
type mockWallet struct {
	mock.Mock
}

func (m *mockWallet) Address(ctx context.Context, policy wallet.SpendPolicy,
	path signer.DerivationPath) (btcutil.Address, error) {

	args := m.Called(ctx, policy, path)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(btcutil.Address), args.Error(1)
}

func (m *mockWallet) FeeRate(
	ctx context.Context) (btcunit.MilliSatPerByte, error) {

	args := m.Called(ctx)

	return args.Get(0).(btcunit.MilliSatPerByte), args.Error(1)
}

func (m *mockWallet) UTXOs(ctx context.Context, policy wallet.SpendPolicy,
	path signer.DerivationPath) ([]wallet.Coin, error) {

	args := m.Called(ctx, policy, path)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]wallet.Coin), args.Error(1)
}

func (m *mockWallet) Send(ctx context.Context,
	req *wallet.SendRequest) (*wallet.SendResult, error) {

	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*wallet.SendResult), args.Error(1)
}

func (m *mockWallet) FundPsbt(ctx context.Context,
	req *wallet.SendRequest) (*psbt.Packet, error) {

	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*psbt.Packet), args.Error(1)
}

func (m *mockWallet) BlockHeaders(ctx context.Context, start uint32,
	end fn.Option[uint32]) ([]wire.BlockHeader, error) {

	args := m.Called(ctx, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]wire.BlockHeader), args.Error(1)
}

// mockConversions is a mock implementation of the Conversions interface.
type mockConversions struct {
	mock.Mock
}

func (m *mockConversions) UserPath(user string) signer.DerivationPath {
	return signer.DerivationPath{[]byte(user)}
}

func (m *mockConversions) GetBalances(ctx context.Context,
	user string) (*conversion.Balances, error) {

	args := m.Called(ctx, user)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*conversion.Balances), args.Error(1)
}

func (m *mockConversions) Preferences(ctx context.Context,
	user string) (ledger.Preferences, error) {

	args := m.Called(ctx, user)

	return args.Get(0).(ledger.Preferences), args.Error(1)
}

func (m *mockConversions) SetPreferences(ctx context.Context, user string,
	prefs ledger.Preferences) error {

	return m.Called(ctx, user, prefs).Error(0)
}

func (m *mockConversions) GetPreferredAsset(ctx context.Context,
	user string) (ledger.Asset, error) {

	args := m.Called(ctx, user)

	return args.Get(0).(ledger.Asset), args.Error(1)
}

func (m *mockConversions) SetPreferredAsset(ctx context.Context,
	user string, asset ledger.Asset) error {

	return m.Called(ctx, user, asset).Error(0)
}

func (m *mockConversions) RegisterAddress(ctx context.Context, user,
	addr string) error {

	return m.Called(ctx, user, addr).Error(0)
}

func (m *mockConversions) RegisterDerivedAddress(ctx context.Context,
	user string) (btcutil.Address, error) {

	args := m.Called(ctx, user)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(btcutil.Address), args.Error(1)
}

func (m *mockConversions) GetConversionHistory(ctx context.Context,
	user string) ([]ledger.Record, error) {

	args := m.Called(ctx, user)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]ledger.Record), args.Error(1)
}

func (m *mockConversions) ConvertToNative(ctx context.Context,
	user string) (*ledger.Record, error) {

	args := m.Called(ctx, user)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*ledger.Record), args.Error(1)
}

func (m *mockConversions) ConvertToWrapped(ctx context.Context,
	user string) (*ledger.Record, error) {

	args := m.Called(ctx, user)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*ledger.Record), args.Error(1)
}

// newTestServer creates a server backed by fresh mocks.
func newTestServer(t *testing.T) (*Server, *mockWallet, *mockConversions) {
	t.Helper()

	w := &mockWallet{}
	conv := &mockConversions{}
	t.Cleanup(func() {
		w.AssertExpectations(t)
		conv.AssertExpectations(t)
	})

	s, err := New(Config{Wallet: w, Conversions: conv})
	require.NoError(t, err)

	return s, w, conv
}

// do serves a request and returns the recorder.
func do(t *testing.T, s *Server, method, target,
	body string) *httptest.ResponseRecorder {

	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(
			method, target, strings.NewReader(body),
		)
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	return rec
}

// decode unmarshals the response body into v.
func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()

	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func testAddress(t *testing.T) btcutil.Address {
	t.Helper()

	addr, err := btcutil.NewAddressPubKeyHash(
		make([]byte, 20), &chaincfg.RegressionNetParams,
	)
	require.NoError(t, err)

	return addr
}

func testRecord(status ledger.Status) *ledger.Record {
	return &ledger.Record{
		ID:        uuid.New(),
		User:      "alice",
		Timestamp: time.Unix(1_700_000_000, 0),
		From:      ledger.AssetCkBTC,
		To:        ledger.AssetBitcoin,
		Amount:    1000,
		Status:    status,
	}
}

// TestNewServerConfig checks that both collaborators are required.
func TestNewServerConfig(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Wallet: &mockWallet{}})
	require.ErrorIs(t, err, ErrMissingConfig)

	_, err = New(Config{Conversions: &mockConversions{}})
	require.ErrorIs(t, err, ErrMissingConfig)
}

// TestHealth checks the health route.
func TestHealth(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "OK", rec.Body.String())

	rec = do(t, s, http.MethodGet, "/nope", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	// Metrics are only served when a handler is configured.
	rec = do(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	withMetrics, err := New(Config{
		Wallet:      &mockWallet{},
		Conversions: &mockConversions{},
		Metrics: http.HandlerFunc(func(w http.ResponseWriter,
			_ *http.Request) {

			_, _ = w.Write([]byte("metrics"))
		}),
	})
	require.NoError(t, err)

	rec = do(t, withMetrics, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "metrics", rec.Body.String())
}

// TestGetBalances checks the balances route.
func TestGetBalances(t *testing.T) {
	t.Parallel()

	s, _, conv := newTestServer(t)
	conv.On("GetBalances", mock.Anything, "alice").Return(
		&conversion.Balances{Native: 1500, Wrapped: 300}, nil,
	)

	rec := do(t, s, http.MethodGet, "/v1/users/alice/balances", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp balancesResponse
	decode(t, rec, &resp)
	require.Equal(t, balancesResponse{Bitcoin: 1500, CkBTC: 300}, resp)
}

// TestPreferences checks reading and writing preferences.
func TestPreferences(t *testing.T) {
	t.Parallel()

	s, _, conv := newTestServer(t)
	want := ledger.Preferences{
		PreferredAsset: ledger.AssetCkBTC,
		AutoConvert:    true,
		MinAmount:      5000,
	}
	conv.On("SetPreferences", mock.Anything, "bob", want).Return(nil)
	conv.On("Preferences", mock.Anything, "bob").Return(want, nil)

	rec := do(t, s, http.MethodPut, "/v1/users/bob/preferences",
		`{"preferred_asset":"ckbtc","auto_convert":true,`+
			`"min_amount":5000}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodGet, "/v1/users/bob/preferences", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp preferencesJSON
	decode(t, rec, &resp)
	require.Equal(t, preferencesJSON{
		PreferredAsset: "ckbtc",
		AutoConvert:    true,
		MinAmount:      5000,
	}, resp)

	// An unknown asset never reaches the orchestrator.
	rec = do(t, s, http.MethodPut, "/v1/users/bob/preferences",
		`{"preferred_asset":"doge"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

// TestPreferredAsset checks the preferred asset routes.
func TestPreferredAsset(t *testing.T) {
	t.Parallel()

	s, _, conv := newTestServer(t)
	conv.On("SetPreferredAsset", mock.Anything, "carol",
		ledger.AssetBitcoin).Return(nil)
	conv.On("GetPreferredAsset", mock.Anything, "carol").Return(
		ledger.AssetBitcoin, nil,
	)

	rec := do(t, s, http.MethodPut, "/v1/users/carol/preferred-asset",
		`{"asset":"btc"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodGet, "/v1/users/carol/preferred-asset", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp assetJSON
	decode(t, rec, &resp)
	require.Equal(t, "bitcoin", resp.Asset)
}

// TestRegisterAddress checks the address registry routes.
func TestRegisterAddress(t *testing.T) {
	t.Parallel()

	s, _, conv := newTestServer(t)
	addr := testAddress(t)
	conv.On("RegisterAddress", mock.Anything, "dave",
		addr.String()).Return(nil)
	conv.On("RegisterAddress", mock.Anything, "dave", "garbage").Return(
		wallet.ErrInvalidAddress,
	)
	conv.On("RegisterDerivedAddress", mock.Anything, "dave").Return(
		addr, nil,
	)

	rec := do(t, s, http.MethodPut, "/v1/users/dave/address",
		`{"address":"`+addr.String()+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodPut, "/v1/users/dave/address",
		`{"address":"garbage"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/v1/users/dave/address/derive", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp addressJSON
	decode(t, rec, &resp)
	require.Equal(t, addr.String(), resp.Address)
}

// TestConvert checks the conversion routes and their error statuses.
func TestConvert(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		route      string
		method     string
		rec        *ledger.Record
		err        error
		wantStatus int
		wantRecord bool
	}{{
		name:       "native complete",
		route:      "native",
		method:     "ConvertToNative",
		rec:        testRecord(ledger.StatusComplete),
		wantStatus: http.StatusOK,
		wantRecord: true,
	}, {
		name:       "native no balance",
		route:      "native",
		method:     "ConvertToNative",
		err:        conversion.ErrNoBalance,
		wantStatus: http.StatusUnprocessableEntity,
	}, {
		name:       "native no address",
		route:      "native",
		method:     "ConvertToNative",
		err:        conversion.ErrAddressNotFound,
		wantStatus: http.StatusNotFound,
	}, {
		name:       "native minter failure",
		route:      "native",
		method:     "ConvertToNative",
		rec:        testRecord(ledger.StatusFailed),
		err:        conversion.ErrMinter,
		wantStatus: http.StatusBadGateway,
		wantRecord: true,
	}, {
		name:       "wrapped in flight",
		route:      "wrapped",
		method:     "ConvertToWrapped",
		err:        conversion.ErrConversionInFlight,
		wantStatus: http.StatusConflict,
	}, {
		name:       "wrapped foreign address",
		route:      "wrapped",
		method:     "ConvertToWrapped",
		err:        conversion.ErrForeignAddress,
		wantStatus: http.StatusForbidden,
	}, {
		name:       "wrapped signing failure",
		route:      "wrapped",
		method:     "ConvertToWrapped",
		rec:        testRecord(ledger.StatusFailed),
		err:        wallet.ErrSigningService,
		wantStatus: http.StatusBadGateway,
		wantRecord: true,
	}}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			// Arrange: Return the outcome from the orchestrator.
			s, _, conv := newTestServer(t)
			var rec any
			if tc.rec != nil {
				rec = tc.rec
			}
			conv.On(tc.method, mock.Anything, "alice").Return(
				rec, tc.err,
			)

			// Act: Convert.
			resp := do(t, s, http.MethodPost,
				"/v1/users/alice/convert/"+tc.route, "")

			// Assert: The status and record match.
			require.Equal(t, tc.wantStatus, resp.Code)

			var got recordJSON
			if tc.err == nil {
				decode(t, resp, &got)
			} else {
				var errResp errorResponse
				decode(t, resp, &errResp)
				require.Equal(t, tc.wantStatus, errResp.Status)
				require.Contains(t, errResp.Error, tc.err.Error())

				if !tc.wantRecord {
					require.Nil(t, errResp.Record)
					return
				}
				require.NotNil(t, errResp.Record)
				got = *errResp.Record
			}

			require.Equal(t, tc.rec.ID.String(), got.ID)
			require.Equal(t, tc.rec.Status.String(), got.Status)
			require.Equal(t, int64(1000), got.Amount)
		})
	}
}

// TestGetHistory checks the history route.
func TestGetHistory(t *testing.T) {
	t.Parallel()

	s, _, conv := newTestServer(t)
	first := testRecord(ledger.StatusFailed)
	first.FailReason = "minter error"
	second := testRecord(ledger.StatusComplete)
	second.Reference = "7"
	conv.On("GetConversionHistory", mock.Anything, "alice").Return(
		[]ledger.Record{*first, *second}, nil,
	)

	rec := do(t, s, http.MethodGet, "/v1/users/alice/history", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp []recordJSON
	decode(t, rec, &resp)
	require.Len(t, resp, 2)
	require.Equal(t, "failed", resp[0].Status)
	require.Equal(t, "minter error", resp[0].FailReason)
	require.Equal(t, "complete", resp[1].Status)
	require.Equal(t, "7", resp[1].Reference)
	require.Equal(t, "ckbtc", resp[1].From)
	require.Equal(t, "bitcoin", resp[1].To)
}

// TestGetAddress checks that the policy in the route is parsed and the
// user's path is used.
func TestGetAddress(t *testing.T) {
	t.Parallel()

	s, w, _ := newTestServer(t)
	addr := testAddress(t)
	w.On("Address", mock.Anything, wallet.TaprootKeyPath{Tweaked: true},
		signer.DerivationPath{[]byte("erin")}).Return(addr, nil)

	rec := do(t, s, http.MethodGet,
		"/v1/users/erin/policies/p2tr_key_tweaked/address", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp addressJSON
	decode(t, rec, &resp)
	require.Equal(t, addressJSON{
		Address: addr.String(),
		Policy:  wallet.TaprootKeyPath{Tweaked: true}.String(),
	}, resp)

	rec = do(t, s, http.MethodGet,
		"/v1/users/erin/policies/p2wpkh/address", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

// TestGetUTXOs checks the UTXO listing.
func TestGetUTXOs(t *testing.T) {
	t.Parallel()

	s, w, _ := newTestServer(t)
	coin := wallet.Coin{
		TxOut:    wire.TxOut{Value: 2500},
		OutPoint: wire.OutPoint{Hash: chainhash.Hash{1}, Index: 3},
	}
	w.On("UTXOs", mock.Anything, wallet.LegacyKeyHash{},
		signer.DerivationPath{[]byte("erin")}).Return(
		[]wallet.Coin{coin}, nil,
	)

	rec := do(t, s, http.MethodGet,
		"/v1/users/erin/policies/p2pkh/utxos", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp []utxoJSON
	decode(t, rec, &resp)
	require.Equal(t, []utxoJSON{{
		TxID:  coin.Hash.String(),
		Vout:  3,
		Value: 2500,
	}}, resp)
}

// TestSend checks the send route and its error statuses.
func TestSend(t *testing.T) {
	t.Parallel()

	txid := chainhash.Hash{9}
	rate := uint64(5000)

	tests := []struct {
		name       string
		body       string
		result     *wallet.SendResult
		err        error
		wantStatus int
		wantRate   fn.Option[btcunit.MilliSatPerByte]
		noCall     bool
	}{{
		name: "sent with estimated fee rate",
		body: `{"destination":"dest","amount":1000}`,
		result: &wallet.SendResult{
			TxID:        txid,
			Amount:      1000,
			Fee:         226,
			ChangeIndex: 1,
		},
		wantStatus: http.StatusOK,
		wantRate:   fn.None[btcunit.MilliSatPerByte](),
	}, {
		name: "sent with fee rate override",
		body: `{"destination":"dest","amount":1000,"fee_rate":5000}`,
		result: &wallet.SendResult{
			TxID:        txid,
			Amount:      1000,
			Fee:         1130,
			ChangeIndex: -1,
		},
		wantStatus: http.StatusOK,
		wantRate:   fn.Some(btcunit.MilliSatPerByte(rate)),
	}, {
		name:       "insufficient funds",
		body:       `{"destination":"dest","amount":1000}`,
		err:        wallet.ErrInsufficientFunds,
		wantStatus: http.StatusUnprocessableEntity,
		wantRate:   fn.None[btcunit.MilliSatPerByte](),
	}, {
		name:       "gateway failure",
		body:       `{"destination":"dest","amount":1000}`,
		err:        wallet.ErrGateway,
		wantStatus: http.StatusBadGateway,
		wantRate:   fn.None[btcunit.MilliSatPerByte](),
	}, {
		name:       "zero amount",
		body:       `{"destination":"dest","amount":0}`,
		wantStatus: http.StatusBadRequest,
		noCall:     true,
	}, {
		name:       "malformed body",
		body:       `{"destination":`,
		wantStatus: http.StatusBadRequest,
		noCall:     true,
	}}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			// Arrange: Expect the parsed request.
			s, w, _ := newTestServer(t)
			if !tc.noCall {
				var result any
				if tc.result != nil {
					result = tc.result
				}
				w.On("Send", mock.Anything, &wallet.SendRequest{
					Policy: wallet.LegacyKeyHash{},
					Path: signer.DerivationPath{
						[]byte("frank"),
					},
					Destination: "dest",
					Amount:      1000,
					FeeRate:     tc.wantRate,
				}).Return(result, tc.err)
			}

			// Act: Send.
			rec := do(t, s, http.MethodPost,
				"/v1/users/frank/policies/p2pkh/send", tc.body)

			// Assert: The status and the result match.
			require.Equal(t, tc.wantStatus, rec.Code)
			if tc.result == nil {
				return
			}

			var resp sendResponse
			decode(t, rec, &resp)
			require.Equal(t, sendResponse{
				TxID:        txid.String(),
				Amount:      1000,
				Fee:         int64(tc.result.Fee),
				ChangeIndex: tc.result.ChangeIndex,
			}, resp)
		})
	}
}

// TestFundPsbt checks that the funded packet is returned in base64.
func TestFundPsbt(t *testing.T) {
	t.Parallel()

	s, w, _ := newTestServer(t)

	tx := wire.NewMsgTx(2)
	tx.AddTxIn(wire.NewTxIn(&wire.OutPoint{Hash: chainhash.Hash{2}},
		nil, nil))
	tx.AddTxOut(wire.NewTxOut(1000, []byte{0x51}))
	packet, err := psbt.NewFromUnsignedTx(tx)
	require.NoError(t, err)

	w.On("FundPsbt", mock.Anything, mock.Anything).Return(packet, nil)

	rec := do(t, s, http.MethodPost,
		"/v1/users/gina/policies/p2tr_script/psbt",
		`{"destination":"dest","amount":1000}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp psbtResponse
	decode(t, rec, &resp)

	got, err := psbt.NewFromRawBytes(strings.NewReader(resp.Psbt), true)
	require.NoError(t, err)
	require.Equal(t, tx.TxHash(), got.UnsignedTx.TxHash())
}

// TestFeeRateAndHeaders checks the chain passthrough routes.
func TestFeeRateAndHeaders(t *testing.T) {
	t.Parallel()

	s, w, _ := newTestServer(t)
	w.On("FeeRate", mock.Anything).Return(
		btcunit.MilliSatPerByte(2500), nil,
	)

	header := wire.BlockHeader{Version: 4, Bits: 0x207fffff, Nonce: 7}
	w.On("BlockHeaders", mock.Anything, uint32(10),
		fn.Some(uint32(11))).Return([]wire.BlockHeader{header}, nil)
	w.On("BlockHeaders", mock.Anything, uint32(12),
		fn.None[uint32]()).Return(nil, wallet.ErrGateway)

	rec := do(t, s, http.MethodGet, "/v1/feerate", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var rate feeRateResponse
	decode(t, rec, &rate)
	require.Equal(t, uint64(2500), rate.MilliSatPerByte)

	rec = do(t, s, http.MethodGet, "/v1/headers/10?end=11", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var headers headersResponse
	decode(t, rec, &headers)
	require.Len(t, headers.Headers, 1)
	require.Len(t, headers.Headers[0], wire.MaxBlockHeaderPayload*2)

	rec = do(t, s, http.MethodGet, "/v1/headers/12", "")
	require.Equal(t, http.StatusBadGateway, rec.Code)

	rec = do(t, s, http.MethodGet, "/v1/headers/12?end=11", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodGet, "/v1/headers/tip", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

// TestStatusCode checks the error to status mapping of wrapped errors.
func TestStatusCode(t *testing.T) {
	t.Parallel()

	require.Equal(t, http.StatusInternalServerError, statusCode(errMock))
	require.Equal(t, http.StatusNotFound, statusCode(ledger.NewError(
		ledger.ErrNoRecord, "no record", nil,
	)))
	require.Equal(t, http.StatusBadGateway, statusCode(errors.Join(
		errMock, conversion.ErrMinter,
	)))
}
