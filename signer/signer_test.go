package signer

import (
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/require"
)

const testSignerURL = "http://signer.test"

// TestParseDerivationPath checks parsing of textual derivation paths.
func TestParseDerivationPath(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		input   string
		want    DerivationPath
		wantErr bool
	}{
		{
			name:  "empty",
			input: "m",
			want:  DerivationPath{},
		},
		{
			name:  "raw segments",
			input: "m/wallet/alice",
			want: DerivationPath{
				[]byte("wallet"), []byte("alice"),
			},
		},
		{
			name:  "hex segment",
			input: "0x00ff/bob",
			want:  DerivationPath{{0x00, 0xff}, []byte("bob")},
		},
		{
			name:    "bad hex",
			input:   "m/0xzz",
			wantErr: true,
		},
		{
			name:    "empty segment",
			input:   "m/a//b",
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			path, err := ParseDerivationPath(tc.input)
			if tc.wantErr {
				require.ErrorIs(t, err, ErrInvalidPath)
				return
			}

			require.NoError(t, err)
			require.Equal(t, tc.want, path)
		})
	}
}

// TestDerivationPathAppend checks that Append never aliases the receiver.
func TestDerivationPathAppend(t *testing.T) {
	t.Parallel()

	base := make(DerivationPath, 1, 4)
	base[0] = []byte("base")

	a := base.Append([]byte("a"))
	b := base.Append([]byte("b"))

	require.Len(t, base, 1)
	require.Equal(t, "a", string(a[1]))
	require.Equal(t, "b", string(b[1]))
	require.Equal(t, "m/62617365/61", a.String())
}

// TestSignRequestValidate checks the request sanity checks.
func TestSignRequestValidate(t *testing.T) {
	t.Parallel()

	req := SignRequest{Scheme: SchemeECDSA}
	require.ErrorIs(t, req.Validate(), ErrEmptyDigest)

	req.Digest = make([]byte, 32)
	require.NoError(t, req.Validate())

	req.Tweak = &TaprootTweak{}
	require.ErrorIs(t, req.Validate(), ErrUnknownScheme)

	req.Scheme = SchemeSchnorr
	require.NoError(t, req.Validate())

	req.Scheme = Scheme(9)
	require.ErrorIs(t, req.Validate(), ErrUnknownScheme)
}

// newMockedClient returns a Client using an httpmock transport.
func newMockedClient(t *testing.T) (*Client, *httpmock.MockTransport) {
	t.Helper()

	transport := httpmock.NewMockTransport()
	c, err := NewClient(
		testSignerURL, &http.Client{Transport: transport},
	)
	require.NoError(t, err)

	return c, transport
}

// TestClientPublicKey checks the public key request encoding and response
// decoding.
func TestClientPublicKey(t *testing.T) {
	t.Parallel()

	// Arrange: Reply with a fixed key after checking the request.
	c, transport := newMockedClient(t)
	transport.RegisterResponder(
		http.MethodPost, testSignerURL+publicKeyPath,
		func(req *http.Request) (*http.Response, error) {
			var body publicKeyRequest
			raw, err := io.ReadAll(req.Body)
			require.NoError(t, err)
			require.NoError(t, json.Unmarshal(raw, &body))

			require.Equal(t, []string{"616c696365"},
				body.DerivationPath)
			require.Equal(t, "schnorr", body.Scheme)

			return httpmock.NewJsonResponse(200, publicKeyResponse{
				PublicKey: "02aa",
			})
		},
	)

	// Act: Request the key.
	key, err := c.PublicKey(
		t.Context(), DerivationPath{[]byte("alice")}, SchemeSchnorr,
	)

	// Assert: The hex key is decoded.
	require.NoError(t, err)
	require.Equal(t, []byte{0x02, 0xaa}, key)
}

// TestClientSign checks the sign request encoding including the taproot
// tweak.
func TestClientSign(t *testing.T) {
	t.Parallel()

	digest := make([]byte, 32)
	digest[0] = 0x01

	c, transport := newMockedClient(t)
	transport.RegisterResponder(
		http.MethodPost, testSignerURL+signPath,
		func(req *http.Request) (*http.Response, error) {
			var body signRequest
			raw, err := io.ReadAll(req.Body)
			require.NoError(t, err)
			require.NoError(t, json.Unmarshal(raw, &body))

			require.Equal(t, hex.EncodeToString(digest),
				body.MessageHash)
			require.NotNil(t, body.MerkleRoot)
			require.Empty(t, *body.MerkleRoot)

			return httpmock.NewJsonResponse(200, signResponse{
				Signature: "beef",
			})
		},
	)

	sig, err := c.Sign(t.Context(), SignRequest{
		Path:   DerivationPath{[]byte("alice")},
		Digest: digest,
		Scheme: SchemeSchnorr,
		Tweak:  &TaprootTweak{},
	})
	require.NoError(t, err)
	require.Equal(t, []byte{0xbe, 0xef}, sig)
}

// TestClientSignServiceError checks that a failing service is reported and
// that invalid requests never reach the wire.
func TestClientSignServiceError(t *testing.T) {
	t.Parallel()

	c, transport := newMockedClient(t)
	transport.RegisterResponder(
		http.MethodPost, testSignerURL+signPath,
		httpmock.NewStringResponder(503, "unavailable"),
	)

	_, err := c.Sign(t.Context(), SignRequest{})
	require.ErrorIs(t, err, ErrEmptyDigest)
	require.Zero(t, transport.GetTotalCallCount())

	_, err = c.Sign(t.Context(), SignRequest{
		Digest: make([]byte, 32),
		Scheme: SchemeECDSA,
	})
	require.ErrorContains(t, err, "503")
}
