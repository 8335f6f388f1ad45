package minter

import (
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/require"
)

const testMinterURL = "http://minter.test"

// newMockedClient returns a minter client using an httpmock transport.
func newMockedClient(t *testing.T) (*Client, *httpmock.MockTransport) {
	t.Helper()

	transport := httpmock.NewMockTransport()
	c, err := NewClient(testMinterURL, &http.Client{Transport: transport})
	require.NoError(t, err)

	return c, transport
}

// TestDepositAddress checks the deposit address request.
func TestDepositAddress(t *testing.T) {
	t.Parallel()

	c, transport := newMockedClient(t)
	transport.RegisterResponder(
		http.MethodPost, testMinterURL+"/get_btc_address",
		func(req *http.Request) (*http.Response, error) {
			var body depositAddressRequest
			raw, err := io.ReadAll(req.Body)
			require.NoError(t, err)
			require.NoError(t, json.Unmarshal(raw, &body))
			require.Equal(t, "alice", body.Owner)

			return httpmock.NewStringResponse(
				200, `{"address": "bcrt1qdeposit"}`,
			), nil
		},
	)

	addr, err := c.DepositAddress(t.Context(), "alice")
	require.NoError(t, err)
	require.Equal(t, "bcrt1qdeposit", addr)
}

// TestDepositAddressEmpty checks that an empty address is an error.
func TestDepositAddressEmpty(t *testing.T) {
	t.Parallel()

	c, transport := newMockedClient(t)
	transport.RegisterResponder(
		http.MethodPost, testMinterURL+"/get_btc_address",
		httpmock.NewStringResponder(200, `{"address": ""}`),
	)

	_, err := c.DepositAddress(t.Context(), "alice")
	require.ErrorIs(t, err, ErrEmptyAddress)
}

// TestRedeem checks the accepted and rejected redemption outcomes.
func TestRedeem(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		reply   string
		wantErr error
		want    uint64
	}{
		{
			name:  "accepted",
			reply: `{"ok": {"block_index": 77}}`,
			want:  77,
		},
		{
			name:    "rejected",
			reply:   `{"err": "AmountTooLow"}`,
			wantErr: ErrRedeemRejected,
		},
		{
			name:    "empty",
			reply:   `{}`,
			wantErr: ErrRedeemRejected,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			c, transport := newMockedClient(t)
			transport.RegisterResponder(
				http.MethodPost, testMinterURL+"/retrieve_btc",
				httpmock.NewStringResponder(200, tc.reply),
			)

			res, err := c.Redeem(
				t.Context(), "alice", "bcrt1qdest", 1000,
			)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}

			require.NoError(t, err)
			require.Equal(t, tc.want, res.BlockIndex)
		})
	}
}

// TestWrappedBalance checks the balance query.
func TestWrappedBalance(t *testing.T) {
	t.Parallel()

	c, transport := newMockedClient(t)
	transport.RegisterResponder(
		http.MethodGet, testMinterURL+"/balance_of/alice",
		httpmock.NewStringResponder(200, `{"balance": 1000}`),
	)

	balance, err := c.WrappedBalance(t.Context(), "alice")
	require.NoError(t, err)
	require.Equal(t, btcutil.Amount(1000), balance)
}
