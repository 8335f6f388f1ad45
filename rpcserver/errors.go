// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package rpcserver

import (
	"errors"
	"net/http"

	"github.com/btcsuite/btcwallet/wallet/txrules"
	"github.com/btcsuite/ckbtcwallet/ledger"
	"github.com/btcsuite/ckbtcwallet/wallet"
	"github.com/btcsuite/ckbtcwallet/wallet/conversion"
	"github.com/labstack/echo/v4"
)

var (
	// errBadRequest is returned for malformed request parameters or
	// bodies.
	errBadRequest = errors.New("bad request")
)

// errorResponse is the body of every failed request.
type errorResponse struct {
	Status int    `json:"status"`
	Error  string `json:"error"`

	// Record is the failed conversion record, if one was appended.
	Record *recordJSON `json:"record,omitempty"`
}

// statusCode maps an error to the HTTP status of its response.
func statusCode(err error) int {
	var httpErr *echo.HTTPError
	switch {
	case errors.As(err, &httpErr):
		return httpErr.Code

	case errors.Is(err, errBadRequest),
		errors.Is(err, wallet.ErrInvalidAddress),
		errors.Is(err, wallet.ErrUnknownPolicy),
		errors.Is(err, wallet.ErrNoTxOutputs),
		errors.Is(err, wallet.ErrFeeRateTooLarge),
		ledger.IsError(err, ledger.ErrInvalidRecord):

		return http.StatusBadRequest

	case errors.Is(err, conversion.ErrForeignAddress):
		return http.StatusForbidden

	case errors.Is(err, conversion.ErrAddressNotFound),
		ledger.IsError(err, ledger.ErrNoRecord):

		return http.StatusNotFound

	case errors.Is(err, conversion.ErrConversionInFlight):
		return http.StatusConflict

	case errors.Is(err, wallet.ErrInsufficientFunds),
		errors.Is(err, conversion.ErrNoBalance),
		errors.Is(err, txrules.ErrOutputIsDust):

		return http.StatusUnprocessableEntity

	case errors.Is(err, wallet.ErrGateway),
		errors.Is(err, wallet.ErrSigningService),
		errors.Is(err, wallet.ErrInvalidPublicKey),
		errors.Is(err, conversion.ErrMinter):

		return http.StatusBadGateway

	default:
		return http.StatusInternalServerError
	}
}

// sendError writes the error response of err.
func sendError(c echo.Context, err error, rec *ledger.Record) error {
	status := statusCode(err)

	msg := err.Error()
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		if m, ok := httpErr.Message.(string); ok {
			msg = m
		}
	}

	if status >= http.StatusInternalServerError {
		log.Errorf("%s %s: %v", c.Request().Method, c.Path(), err)
	} else {
		log.Debugf("%s %s: %v", c.Request().Method, c.Path(), err)
	}

	resp := &errorResponse{Status: status, Error: msg}
	if rec != nil {
		resp.Record = newRecordJSON(rec)
	}

	return c.JSON(status, resp)
}

// handleError is the server's error handler for errors returned by
// handlers and middleware.
func handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	writeErr := sendError(c, err, nil)
	if writeErr != nil {
		log.Warnf("Unable to write error response: %v", writeErr)
	}
}
