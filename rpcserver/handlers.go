// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package rpcserver

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/ckbtcwallet/ledger"
	"github.com/btcsuite/ckbtcwallet/pkg/btcunit"
	"github.com/btcsuite/ckbtcwallet/wallet"
	"github.com/labstack/echo/v4"
	"github.com/lightningnetwork/lnd/fn/v2"
)

func (s *Server) getFeeRate(c echo.Context) error {
	rate, err := s.cfg.Wallet.FeeRate(c.Request().Context())
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, &feeRateResponse{
		MilliSatPerByte: uint64(rate),
	})
}

func (s *Server) getBlockHeaders(c echo.Context) error {
	start, err := parseHeight(c.Param("start"))
	if err != nil {
		return err
	}

	end := fn.None[uint32]()
	if raw := c.QueryParam("end"); raw != "" {
		height, err := parseHeight(raw)
		if err != nil {
			return err
		}
		if height < start {
			return fmt.Errorf("%w: end %d before start %d",
				errBadRequest, height, start)
		}
		end = fn.Some(height)
	}

	headers, err := s.cfg.Wallet.BlockHeaders(
		c.Request().Context(), start, end,
	)
	if err != nil {
		return err
	}

	resp := &headersResponse{Headers: make([]string, 0, len(headers))}
	for i := range headers {
		var buf bytes.Buffer
		err := headers[i].Serialize(&buf)
		if err != nil {
			return err
		}
		resp.Headers = append(resp.Headers, hex.EncodeToString(buf.Bytes()))
	}

	return c.JSON(http.StatusOK, resp)
}

func (s *Server) getBalances(c echo.Context) error {
	balances, err := s.cfg.Conversions.GetBalances(
		c.Request().Context(), c.Param("user"),
	)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, &balancesResponse{
		Bitcoin: int64(balances.Native),
		CkBTC:   int64(balances.Wrapped),
	})
}

func (s *Server) getPreferences(c echo.Context) error {
	prefs, err := s.cfg.Conversions.Preferences(
		c.Request().Context(), c.Param("user"),
	)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, newPreferencesJSON(prefs))
}

func (s *Server) putPreferences(c echo.Context) error {
	var body preferencesJSON
	err := bindBody(c, &body)
	if err != nil {
		return err
	}

	prefs, err := body.parse()
	if err != nil {
		return err
	}

	err = s.cfg.Conversions.SetPreferences(
		c.Request().Context(), c.Param("user"), prefs,
	)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, newPreferencesJSON(prefs))
}

func (s *Server) getPreferredAsset(c echo.Context) error {
	asset, err := s.cfg.Conversions.GetPreferredAsset(
		c.Request().Context(), c.Param("user"),
	)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, &assetJSON{Asset: asset.String()})
}

func (s *Server) putPreferredAsset(c echo.Context) error {
	var body assetJSON
	err := bindBody(c, &body)
	if err != nil {
		return err
	}

	asset, err := ledger.ParseAsset(body.Asset)
	if err != nil {
		return err
	}

	err = s.cfg.Conversions.SetPreferredAsset(
		c.Request().Context(), c.Param("user"), asset,
	)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, &assetJSON{Asset: asset.String()})
}

func (s *Server) putAddress(c echo.Context) error {
	var body addressJSON
	err := bindBody(c, &body)
	if err != nil {
		return err
	}

	err = s.cfg.Conversions.RegisterAddress(
		c.Request().Context(), c.Param("user"), body.Address,
	)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, &addressJSON{Address: body.Address})
}

func (s *Server) deriveAddress(c echo.Context) error {
	addr, err := s.cfg.Conversions.RegisterDerivedAddress(
		c.Request().Context(), c.Param("user"),
	)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, &addressJSON{Address: addr.String()})
}

func (s *Server) getHistory(c echo.Context) error {
	records, err := s.cfg.Conversions.GetConversionHistory(
		c.Request().Context(), c.Param("user"),
	)
	if err != nil {
		return err
	}

	resp := make([]*recordJSON, 0, len(records))
	for i := range records {
		resp = append(resp, newRecordJSON(&records[i]))
	}

	return c.JSON(http.StatusOK, resp)
}

func (s *Server) convertToNative(c echo.Context) error {
	rec, err := s.cfg.Conversions.ConvertToNative(
		c.Request().Context(), c.Param("user"),
	)

	return sendConversion(c, rec, err)
}

func (s *Server) convertToWrapped(c echo.Context) error {
	rec, err := s.cfg.Conversions.ConvertToWrapped(
		c.Request().Context(), c.Param("user"),
	)

	return sendConversion(c, rec, err)
}

// sendConversion writes the outcome of a conversion. A failed conversion
// carries its record in the error response.
func sendConversion(c echo.Context, rec *ledger.Record, err error) error {
	if err != nil {
		return sendError(c, err, rec)
	}

	return c.JSON(http.StatusOK, newRecordJSON(rec))
}

func (s *Server) getAddress(c echo.Context) error {
	policy, err := wallet.ParseSpendPolicy(c.Param("policy"))
	if err != nil {
		return err
	}

	user := c.Param("user")
	addr, err := s.cfg.Wallet.Address(
		c.Request().Context(), policy, s.cfg.Conversions.UserPath(user),
	)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, &addressJSON{
		Address: addr.String(),
		Policy:  policy.String(),
	})
}

func (s *Server) getUTXOs(c echo.Context) error {
	policy, err := wallet.ParseSpendPolicy(c.Param("policy"))
	if err != nil {
		return err
	}

	user := c.Param("user")
	coins, err := s.cfg.Wallet.UTXOs(
		c.Request().Context(), policy, s.cfg.Conversions.UserPath(user),
	)
	if err != nil {
		return err
	}

	resp := make([]utxoJSON, 0, len(coins))
	for i := range coins {
		resp = append(resp, newUTXOJSON(&coins[i]))
	}

	return c.JSON(http.StatusOK, resp)
}

func (s *Server) send(c echo.Context) error {
	req, err := s.sendRequest(c)
	if err != nil {
		return err
	}

	result, err := s.cfg.Wallet.Send(c.Request().Context(), req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, &sendResponse{
		TxID:        result.TxID.String(),
		Amount:      int64(result.Amount),
		Fee:         int64(result.Fee),
		ChangeIndex: result.ChangeIndex,
	})
}

func (s *Server) fundPsbt(c echo.Context) error {
	req, err := s.sendRequest(c)
	if err != nil {
		return err
	}

	packet, err := s.cfg.Wallet.FundPsbt(c.Request().Context(), req)
	if err != nil {
		return err
	}

	encoded, err := packet.B64Encode()
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, &psbtResponse{Psbt: encoded})
}

// sendRequest parses the policy, the user and the body of a send.
func (s *Server) sendRequest(c echo.Context) (*wallet.SendRequest, error) {
	policy, err := wallet.ParseSpendPolicy(c.Param("policy"))
	if err != nil {
		return nil, err
	}

	var body sendRequestJSON
	err = bindBody(c, &body)
	if err != nil {
		return nil, err
	}

	if body.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive",
			errBadRequest)
	}

	feeRate := fn.None[btcunit.MilliSatPerByte]()
	if body.FeeRate != nil {
		feeRate = fn.Some(btcunit.MilliSatPerByte(*body.FeeRate))
	}

	return &wallet.SendRequest{
		Policy:      policy,
		Path:        s.cfg.Conversions.UserPath(c.Param("user")),
		Destination: body.Destination,
		Amount:      btcutil.Amount(body.Amount),
		FeeRate:     feeRate,
	}, nil
}

// bindBody decodes the JSON body of the request into v.
func bindBody(c echo.Context, v any) error {
	err := (&echo.DefaultBinder{}).BindBody(c, v)
	if err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}

	return nil
}

// parseHeight parses a block height.
func parseHeight(raw string) (uint32, error) {
	height, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: height %q", errBadRequest, raw)
	}

	return uint32(height), nil
}
