package application

import (
	"errors"
	"testing"

	"availsdk/internal/domain"
)

func TestClassifyFailureStatuses(t *testing.T) {
	cases := []struct {
		kind   domain.TxStatusKind
		state  ResultState
		reason string
	}{
		{domain.StatusDropped, StateDropped, "transaction dropped"},
		{domain.StatusInvalid, StateInvalid, "transaction invalid"},
		{domain.StatusUsurped, StateUsurped, "transaction usurped"},
		{domain.StatusFinalityTimeout, StateFinalityTimeout, "transaction finality timeout"},
	}
	for _, wait := range []domain.WaitFor{domain.WaitForInclusion, domain.WaitForFinalization} {
		for _, tc := range cases {
			next, outcome := Classify(StatePending, domain.TxStatus{Kind: tc.kind}, wait)
			if next != tc.state {
				t.Errorf("%s/%s: expected state %s, got %s", wait, tc.kind, tc.state, next)
			}
			if !outcome.Done || !outcome.Failed || outcome.Reason != tc.reason {
				t.Errorf("%s/%s: unexpected outcome %+v", wait, tc.kind, outcome)
			}
		}
	}

	next, outcome := Classify(StatePending, domain.TxStatus{Kind: domain.StatusError, Err: errors.New("socket closed")}, domain.WaitForInclusion)
	if next != StateError || outcome.Reason != "transaction error: socket closed" {
		t.Errorf("unexpected error classification %s %+v", next, outcome)
	}
}

func TestClassifyInclusionResolvesOnInBlock(t *testing.T) {
	next, outcome := Classify(StatePending, domain.TxStatus{Kind: domain.StatusInBlock}, domain.WaitForInclusion)
	if next != StateInBlock || !outcome.Done || outcome.Failed {
		t.Fatalf("expected in-block resolution, got %s %+v", next, outcome)
	}

	next, outcome = Classify(StatePending, domain.TxStatus{Kind: domain.StatusFinalized}, domain.WaitForInclusion)
	if next != StateFinalized || !outcome.Done {
		t.Fatalf("expected finalized resolution, got %s %+v", next, outcome)
	}
}

func TestClassifyFinalizationNeverResolvesInBlock(t *testing.T) {
	stream := []domain.TxStatusKind{
		domain.StatusFuture,
		domain.StatusReady,
		domain.StatusBroadcast,
		domain.StatusInBlock,
		domain.StatusRetracted,
		domain.StatusInBlock,
		domain.StatusFinalized,
	}
	state := StatePending
	for i, kind := range stream {
		var outcome Outcome
		state, outcome = Classify(state, domain.TxStatus{Kind: kind}, domain.WaitForFinalization)
		last := i == len(stream)-1
		if outcome.Done != last {
			t.Fatalf("step %d (%s): unexpected done=%v", i, kind, outcome.Done)
		}
	}
	if state != StateFinalized {
		t.Fatalf("expected finalized, got %s", state)
	}
}

func TestClassifyRetractedReturnsToPending(t *testing.T) {
	next, outcome := Classify(StateInBlock, domain.TxStatus{Kind: domain.StatusRetracted}, domain.WaitForFinalization)
	if next != StatePending || outcome.Done {
		t.Fatalf("expected pending, got %s %+v", next, outcome)
	}
}

func TestClassifyTerminalStatesAreSticky(t *testing.T) {
	next, outcome := Classify(StateDropped, domain.TxStatus{Kind: domain.StatusFinalized}, domain.WaitForInclusion)
	if next != StateDropped || !outcome.Done || !outcome.Failed {
		t.Fatalf("expected dropped to stay terminal, got %s %+v", next, outcome)
	}
}
