package mint

import (
	"errors"
	"testing"
	"time"

	issuancedom "candymint/internal/domain/issuance"
)

var startedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newPending(t *testing.T) Attempt {
	t.Helper()
	a, err := NewAttempt("a-1", "wallet", issuancedom.State{}, startedAt)
	if err != nil {
		t.Fatalf("NewAttempt: %v", err)
	}
	return a
}

func TestNewAttemptValidation(t *testing.T) {
	if _, err := NewAttempt("", "wallet", issuancedom.State{}, startedAt); !errors.Is(err, ErrInvalidAttemptID) {
		t.Fatalf("empty id err = %v", err)
	}
	if _, err := NewAttempt("a-1", " ", issuancedom.State{}, startedAt); !errors.Is(err, ErrInvalidWalletID) {
		t.Fatalf("empty wallet err = %v", err)
	}
	if _, err := NewAttempt("a-1", "wallet", issuancedom.State{}, time.Time{}); !errors.Is(err, ErrInvalidStartedAt) {
		t.Fatalf("zero startedAt err = %v", err)
	}

	a := newPending(t)
	if a.Status != StatusPending {
		t.Fatalf("status = %s, want pending", a.Status)
	}
}

func TestAttemptLifecycle(t *testing.T) {
	a := newPending(t)

	if err := a.MarkSubmitted("  "); !errors.Is(err, ErrEmptyTransactionID) {
		t.Fatalf("empty tx id err = %v", err)
	}
	if err := a.MarkSubmitted("sig"); err != nil {
		t.Fatalf("MarkSubmitted: %v", err)
	}
	if err := a.MarkSubmitted("sig2"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("double submit err = %v", err)
	}

	done := startedAt.Add(3 * time.Second)
	if err := a.Finish(StatusConfirmed, NewOutcome(OutcomeSuccess), done); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if a.Outcome == nil || a.Outcome.Kind != OutcomeSuccess || a.FinishedAt == nil || !a.FinishedAt.Equal(done) {
		t.Fatalf("finish not recorded: %+v", a)
	}
	if err := a.Finish(StatusFailed, NewOutcome(OutcomeGenericFailure), done); !errors.Is(err, ErrAttemptAlreadyClosed) {
		t.Fatalf("second finish err = %v", err)
	}
}

func TestAttemptFinishRules(t *testing.T) {
	a := newPending(t)
	if err := a.Finish(StatusSubmitted, NewOutcome(OutcomeSuccess), startedAt); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("non-terminal finish err = %v", err)
	}
	if err := a.Finish(StatusConfirmed, NewOutcome(OutcomeSuccess), startedAt); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("confirmed without submit err = %v", err)
	}
	if err := a.Finish(StatusFailed, NewOutcome(OutcomeSoldOut), startedAt); err != nil {
		t.Fatalf("pending -> failed: %v", err)
	}
	if !a.Status.Terminal() {
		t.Fatalf("status %s should be terminal", a.Status)
	}
}

func TestOutcomeTemplatesAreDistinct(t *testing.T) {
	kinds := []OutcomeKind{
		OutcomeSuccess,
		OutcomeSoldOut,
		OutcomeSaleNotStarted,
		OutcomeInsufficientFunds,
		OutcomeTimeout,
		OutcomeGenericFailure,
	}
	seen := map[string]OutcomeKind{}
	for _, k := range kinds {
		msg := NewOutcome(k).Message
		if prev, ok := seen[msg]; ok {
			t.Fatalf("%s and %s share message %q", prev, k, msg)
		}
		seen[msg] = k
	}
	for _, m := range []string{MessageUserRejected, MessageIdentityDenied, MessageSaleEnded} {
		if _, ok := seen[m]; ok {
			t.Fatalf("derived message %q collides with a template", m)
		}
	}
}

func TestChainErrorString(t *testing.T) {
	ce := &ChainError{InstructionIndex: 4, Code: 311, HasCode: true}
	if got := ce.Error(); got != "mint: errored on chain: instruction 4: custom program error: 0x137" {
		t.Fatalf("Error() = %q", got)
	}
	wrapped := errors.Join(errors.New("outer"), ce)
	if got, ok := AsChainError(wrapped); !ok || got != ce {
		t.Fatalf("AsChainError did not unwrap")
	}
}
