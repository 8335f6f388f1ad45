// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package conversion

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/ckbtcwallet/ledger"
	"github.com/looplab/fsm"
)

// The states of a conversion attempt.
const (
	stateNew      = "new"
	statePending  = "pending"
	stateComplete = "complete"
	stateFailed   = "failed"
)

// The events moving a conversion attempt.
const (
	eventStart    = "start"
	eventComplete = "complete"
	eventFail     = "fail"
)

// newAttemptFSM creates the state machine of a single conversion attempt:
// new -> pending -> complete | failed.
func newAttemptFSM() *fsm.FSM {
	return fsm.NewFSM(
		stateNew,
		fsm.Events{
			{
				Name: eventStart,
				Src:  []string{stateNew},
				Dst:  statePending,
			},
			{
				Name: eventComplete,
				Src:  []string{statePending},
				Dst:  stateComplete,
			},
			{
				Name: eventFail,
				Src:  []string{statePending},
				Dst:  stateFailed,
			},
		},
		fsm.Callbacks{},
	)
}

// attempt is a single conversion of a user's full balance. Its record is
// appended on start and its status updated once on finish.
type attempt struct {
	store  ledger.HistoryStore
	fsm    *fsm.FSM
	record ledger.Record
}

// newAttempt prepares the attempt of converting amount from one asset to
// the other.
func newAttempt(store ledger.HistoryStore, user string, from ledger.Asset,
	amount btcutil.Amount, now time.Time) *attempt {

	return &attempt{
		store:  store,
		fsm:    newAttemptFSM(),
		record: ledger.NewPendingRecord(user, from, from.Other(), amount, now),
	}
}

// transition moves the machine, failing if event isn't allowed in the
// current state.
func (a *attempt) transition(ctx context.Context, event string) error {
	if !a.fsm.Can(event) {
		return fmt.Errorf("%w: %s in state %s", ErrInvalidTransition,
			event, a.fsm.Current())
	}

	return a.fsm.Event(ctx, event)
}

// start appends the pending record.
func (a *attempt) start(ctx context.Context) error {
	if !a.fsm.Can(eventStart) {
		return fmt.Errorf("%w: start in state %s", ErrInvalidTransition,
			a.fsm.Current())
	}

	err := a.store.AppendRecord(ctx, a.record)
	if err != nil {
		return err
	}

	log.Debugf("Started conversion %v of %v %v for %s", a.record.ID,
		a.record.Amount, a.record.From, a.record.User)

	return a.transition(ctx, eventStart)
}

// finish moves the record to complete, or to failed if transferErr is set,
// and returns the updated record.
func (a *attempt) finish(ctx context.Context, reference string,
	transferErr error) (*ledger.Record, error) {

	event := eventComplete
	update := ledger.StatusUpdate{
		ID:        a.record.ID,
		Status:    ledger.StatusComplete,
		Reference: reference,
	}
	if transferErr != nil {
		event = eventFail
		update.Status = ledger.StatusFailed
		update.FailReason = transferErr.Error()
	}

	if !a.fsm.Can(event) {
		return nil, fmt.Errorf("%w: %s in state %s",
			ErrInvalidTransition, event, a.fsm.Current())
	}

	rec, err := a.store.UpdateLastStatus(ctx, a.record.User, update)
	if err != nil {
		return nil, errors.Join(transferErr, err)
	}

	err = a.transition(ctx, event)
	if err != nil {
		return nil, err
	}

	a.record = *rec

	return rec, transferErr
}

// state returns the current state of the attempt.
func (a *attempt) state() string {
	return a.fsm.Current()
}

// blockIndexReference formats a minter block index as a record reference.
func blockIndexReference(index uint64) string {
	return strconv.FormatUint(index, 10)
}
