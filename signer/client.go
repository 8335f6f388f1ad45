// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package signer

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"

	"github.com/btcsuite/ckbtcwallet/internal/httpclient"
)

const (
	publicKeyPath = "/public_key"
	signPath      = "/sign"
)

// publicKeyRequest is the JSON body of a public key request.
type publicKeyRequest struct {
	DerivationPath []string `json:"derivation_path"`
	Scheme         string   `json:"scheme"`
}

// publicKeyResponse is the JSON body of a public key response.
type publicKeyResponse struct {
	PublicKey string `json:"public_key"`
}

// signRequest is the JSON body of a sign request.
type signRequest struct {
	DerivationPath []string `json:"derivation_path"`
	Scheme         string   `json:"scheme"`
	MessageHash    string   `json:"message_hash"`

	// MerkleRoot is only set for taproot tweaked signatures. An empty
	// string selects the BIP-86 tweak.
	MerkleRoot *string `json:"merkle_root,omitempty"`
}

// signResponse is the JSON body of a sign response.
type signResponse struct {
	Signature string `json:"signature"`
}

// Client is a ThresholdSigner backed by the signing service's REST API.
type Client struct {
	rest *httpclient.Client
}

// A compile-time assertion to ensure Client implements ThresholdSigner.
var _ ThresholdSigner = (*Client)(nil)

// NewClient creates a new signing service client. If httpClient is nil a
// default client is used.
func NewClient(baseURL string, httpClient *http.Client) (*Client, error) {
	rest, err := httpclient.New(baseURL, httpClient)
	if err != nil {
		return nil, fmt.Errorf("signer client: %w", err)
	}

	return &Client{rest: rest}, nil
}

// PublicKey returns the public key derived at the given path.
func (c *Client) PublicKey(ctx context.Context, path DerivationPath,
	scheme Scheme) ([]byte, error) {

	req := publicKeyRequest{
		DerivationPath: path.Hex(),
		Scheme:         scheme.String(),
	}

	var resp publicKeyResponse
	err := c.rest.PostJSON(ctx, publicKeyPath, req, &resp)
	if err != nil {
		return nil, fmt.Errorf("public key %v: %w", path, err)
	}

	key, err := hex.DecodeString(resp.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("public key %v: decode: %w", path, err)
	}

	log.Tracef("Fetched %v public key at path %v", scheme, path)

	return key, nil
}

// Sign requests a signature over the request digest.
func (c *Client) Sign(ctx context.Context, req SignRequest) ([]byte, error) {
	err := req.Validate()
	if err != nil {
		return nil, err
	}

	body := signRequest{
		DerivationPath: req.Path.Hex(),
		Scheme:         req.Scheme.String(),
		MessageHash:    hex.EncodeToString(req.Digest),
	}
	if req.Tweak != nil {
		root := hex.EncodeToString(req.Tweak.MerkleRoot)
		body.MerkleRoot = &root
	}

	var resp signResponse
	err = c.rest.PostJSON(ctx, signPath, body, &resp)
	if err != nil {
		return nil, fmt.Errorf("sign at %v: %w", req.Path, err)
	}

	sig, err := hex.DecodeString(resp.Signature)
	if err != nil {
		return nil, fmt.Errorf("sign at %v: decode: %w", req.Path, err)
	}

	log.Tracef("Received %d byte %v signature for path %v", len(sig),
		req.Scheme, req.Path)

	return sig, nil
}
