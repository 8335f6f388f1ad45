// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package kvdb

import (
	"bytes"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/ckbtcwallet/ledger"
	"github.com/google/uuid"
	"github.com/lightningnetwork/lnd/tlv"
)

// TLV types of an encoded record.
const (
	recordIDType         tlv.Type = 0
	recordUserType       tlv.Type = 1
	recordTimestampType  tlv.Type = 2
	recordFromType       tlv.Type = 3
	recordToType         tlv.Type = 4
	recordAmountType     tlv.Type = 5
	recordStatusType     tlv.Type = 6
	recordFailReasonType tlv.Type = 7
	recordReferenceType  tlv.Type = 8
)

// TLV types of encoded preferences.
const (
	prefsAssetType     tlv.Type = 0
	prefsAutoType      tlv.Type = 1
	prefsMinAmountType tlv.Type = 2
)

// encodeRecord serializes a record as a TLV stream.
func encodeRecord(rec *ledger.Record) ([]byte, error) {
	var (
		id         = rec.ID[:]
		user       = []byte(rec.User)
		timestamp  = uint64(rec.Timestamp.UnixMicro())
		from       = uint8(rec.From)
		to         = uint8(rec.To)
		amount     = uint64(rec.Amount)
		status     = uint8(rec.Status)
		failReason = []byte(rec.FailReason)
		reference  = []byte(rec.Reference)
	)

	stream, err := tlv.NewStream(
		tlv.MakePrimitiveRecord(recordIDType, &id),
		tlv.MakePrimitiveRecord(recordUserType, &user),
		tlv.MakePrimitiveRecord(recordTimestampType, &timestamp),
		tlv.MakePrimitiveRecord(recordFromType, &from),
		tlv.MakePrimitiveRecord(recordToType, &to),
		tlv.MakePrimitiveRecord(recordAmountType, &amount),
		tlv.MakePrimitiveRecord(recordStatusType, &status),
		tlv.MakePrimitiveRecord(recordFailReasonType, &failReason),
		tlv.MakePrimitiveRecord(recordReferenceType, &reference),
	)
	if err != nil {
		return nil, err
	}

	var b bytes.Buffer
	err = stream.Encode(&b)
	if err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// decodeRecord parses a record serialized by encodeRecord.
func decodeRecord(value []byte) (*ledger.Record, error) {
	var (
		id, user, failReason, reference []byte
		timestamp, amount               uint64
		from, to, status                uint8
	)

	stream, err := tlv.NewStream(
		tlv.MakePrimitiveRecord(recordIDType, &id),
		tlv.MakePrimitiveRecord(recordUserType, &user),
		tlv.MakePrimitiveRecord(recordTimestampType, &timestamp),
		tlv.MakePrimitiveRecord(recordFromType, &from),
		tlv.MakePrimitiveRecord(recordToType, &to),
		tlv.MakePrimitiveRecord(recordAmountType, &amount),
		tlv.MakePrimitiveRecord(recordStatusType, &status),
		tlv.MakePrimitiveRecord(recordFailReasonType, &failReason),
		tlv.MakePrimitiveRecord(recordReferenceType, &reference),
	)
	if err != nil {
		return nil, err
	}

	err = stream.Decode(bytes.NewReader(value))
	if err != nil {
		return nil, ledger.NewError(ledger.ErrDatabase,
			"decode record", err)
	}

	recID, err := uuid.FromBytes(id)
	if err != nil {
		return nil, ledger.NewError(ledger.ErrDatabase,
			fmt.Sprintf("decode record id %x", id), err)
	}

	return &ledger.Record{
		ID:         recID,
		User:       string(user),
		Timestamp:  time.UnixMicro(int64(timestamp)).UTC(),
		From:       ledger.Asset(from),
		To:         ledger.Asset(to),
		Amount:     btcutil.Amount(amount),
		Status:     ledger.Status(status),
		FailReason: string(failReason),
		Reference:  string(reference),
	}, nil
}

// encodePreferences serializes preferences as a TLV stream.
func encodePreferences(prefs *ledger.Preferences) ([]byte, error) {
	var (
		asset     = uint8(prefs.PreferredAsset)
		auto      uint8
		minAmount = uint64(prefs.MinAmount)
	)
	if prefs.AutoConvert {
		auto = 1
	}

	stream, err := tlv.NewStream(
		tlv.MakePrimitiveRecord(prefsAssetType, &asset),
		tlv.MakePrimitiveRecord(prefsAutoType, &auto),
		tlv.MakePrimitiveRecord(prefsMinAmountType, &minAmount),
	)
	if err != nil {
		return nil, err
	}

	var b bytes.Buffer
	err = stream.Encode(&b)
	if err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// decodePreferences parses preferences serialized by encodePreferences.
func decodePreferences(value []byte) (*ledger.Preferences, error) {
	var (
		asset, auto uint8
		minAmount   uint64
	)

	stream, err := tlv.NewStream(
		tlv.MakePrimitiveRecord(prefsAssetType, &asset),
		tlv.MakePrimitiveRecord(prefsAutoType, &auto),
		tlv.MakePrimitiveRecord(prefsMinAmountType, &minAmount),
	)
	if err != nil {
		return nil, err
	}

	err = stream.Decode(bytes.NewReader(value))
	if err != nil {
		return nil, ledger.NewError(ledger.ErrDatabase,
			"decode preferences", err)
	}

	return &ledger.Preferences{
		PreferredAsset: ledger.Asset(asset),
		AutoConvert:    auto == 1,
		MinAmount:      btcutil.Amount(minAmount),
	}, nil
}
