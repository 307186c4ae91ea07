// internal/domain/mint/entity.go
package mint

import (
	"errors"
	"strings"
	"time"

	issuancedom "candymint/internal/domain/issuance"
)

// ------------------------------------------------------
// Entity: Attempt（ユーザー操作 1 回分のミント試行）
// ------------------------------------------------------
//
// MintUsecase が生存期間中ずっと排他的に所有し、結果をユーザーへ返したら破棄する。
// ウォレット 1 つにつき同時に in-flight な Attempt は高々 1 つ。
//
// - id            : string (uuid)
// - walletId      : string (base58 公開鍵)
// - state         : 試行開始時点の IssuanceState スナップショット
// - transactionId : 送信後のみ
// - status        : Pending -> Submitted -> {Confirmed, Failed, TimedOut}
type Attempt struct {
	ID            string            `json:"id"`
	WalletID      string            `json:"walletId"`
	State         issuancedom.State `json:"state"`
	TransactionID string            `json:"transactionId,omitempty"`
	Status        Status            `json:"status"`
	Outcome       *Outcome          `json:"outcome,omitempty"`
	StartedAt     time.Time         `json:"startedAt"`
	FinishedAt    *time.Time        `json:"finishedAt,omitempty"`
}

// Status は Attempt のライフサイクル状態です。
type Status string

const (
	StatusPending   Status = "pending"
	StatusSubmitted Status = "submitted"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
	StatusTimedOut  Status = "timed_out"
)

// Terminal は終端状態かを返します。
func (s Status) Terminal() bool {
	switch s {
	case StatusConfirmed, StatusFailed, StatusTimedOut:
		return true
	default:
		return false
	}
}

// ------------------------------------------------------
// Errors
// ------------------------------------------------------

var (
	ErrInvalidWalletID      = errors.New("mint: invalid walletId")
	ErrInvalidAttemptID     = errors.New("mint: invalid attempt id")
	ErrInvalidStartedAt     = errors.New("mint: invalid startedAt")
	ErrInvalidTransition    = errors.New("mint: invalid status transition")
	ErrEmptyTransactionID   = errors.New("mint: empty transaction id")
	ErrAttemptAlreadyClosed = errors.New("mint: attempt already finished")
)

// ------------------------------------------------------
// Constructors
// ------------------------------------------------------

// NewAttempt は Pending 状態の Attempt を生成します。
func NewAttempt(id, walletID string, state issuancedom.State, startedAt time.Time) (Attempt, error) {
	aid := strings.TrimSpace(id)
	if aid == "" {
		return Attempt{}, ErrInvalidAttemptID
	}
	wid := strings.TrimSpace(walletID)
	if wid == "" {
		return Attempt{}, ErrInvalidWalletID
	}
	if startedAt.IsZero() {
		return Attempt{}, ErrInvalidStartedAt
	}

	return Attempt{
		ID:        aid,
		WalletID:  wid,
		State:     state,
		Status:    StatusPending,
		StartedAt: startedAt.UTC(),
	}, nil
}

// ------------------------------------------------------
// Behavior
// ------------------------------------------------------

// MarkSubmitted は送信受理（pending pool 投入）を記録します。
// 空の transactionId は "pending" ではなく即時失敗として扱うため受け付けない。
func (a *Attempt) MarkSubmitted(txID string) error {
	txID = strings.TrimSpace(txID)
	if txID == "" {
		return ErrEmptyTransactionID
	}
	if a.Status != StatusPending {
		return ErrInvalidTransition
	}
	a.TransactionID = txID
	a.Status = StatusSubmitted
	return nil
}

// Finish は終端状態と分類結果を記録します。
// Pending からの直接終了（送信前の失敗・ローカル拒否）も許容する。
func (a *Attempt) Finish(status Status, outcome Outcome, at time.Time) error {
	if a.Status.Terminal() {
		return ErrAttemptAlreadyClosed
	}
	if !status.Terminal() {
		return ErrInvalidTransition
	}
	if status == StatusConfirmed && a.Status != StatusSubmitted {
		// 送信していないものが Confirmed になることはない
		return ErrInvalidTransition
	}

	atUTC := at.UTC()
	a.Status = status
	a.Outcome = &outcome
	a.FinishedAt = &atUTC
	return nil
}
