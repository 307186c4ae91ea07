// internal/domain/mint/errors.go
package mint

import (
	"errors"
	"fmt"

	"candymint/internal/domain/common"
)

// ------------------------------------------------------
// Error taxonomy（サブステップの失敗はすべてここに寄せる）
// ------------------------------------------------------

var (
	// ErrRemoteUnavailable: 通信失敗。結果は「不明」であり失敗ではない。
	ErrRemoteUnavailable = common.ErrRemoteUnavailable

	// ErrUserRejected: ウォレットで署名が拒否された。終端・リトライしない。
	ErrUserRejected = errors.New("mint: user rejected signing")

	// ErrIdentityDenied: Identity Gate の手続きが失敗した。この試行については終端。
	ErrIdentityDenied = errors.New("mint: identity denied")

	// ErrAlreadyInFlight: 同一ウォレットで試行中。キューイングせず即時拒否する。
	ErrAlreadyInFlight = errors.New("mint: attempt already in flight")

	// ErrWalletNotFound: walletId に対応する署名者が登録されていない。
	ErrWalletNotFound = errors.New("mint: wallet not found")
)

// ChainError はトランザクションがブロックに取り込まれた上で失敗したことを表します。
// Code はプログラムのカスタムエラーコード（Custom(n) の n）。
type ChainError struct {
	InstructionIndex int
	Code             uint32
	HasCode          bool
	Raw              string
}

func (e *ChainError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.HasCode {
		return fmt.Sprintf("mint: errored on chain: instruction %d: custom program error: 0x%x", e.InstructionIndex, e.Code)
	}
	return fmt.Sprintf("mint: errored on chain: %s", e.Raw)
}

// SubmitError は RPC ノードが送信を拒否した（preflight シミュレーション失敗など）ことを表します。
// Message はノードが返したメッセージそのもの。Program はシミュレーション結果に
// 構造化されたエラーが含まれていた場合のみ non-nil。
type SubmitError struct {
	Message string
	Logs    []string
	Program *ChainError
}

func (e *SubmitError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return "mint: send transaction rejected: " + e.Message
}

// AsChainError は err から ChainError を取り出します。
func AsChainError(err error) (*ChainError, bool) {
	var ce *ChainError
	if errors.As(err, &ce) && ce != nil {
		return ce, true
	}
	return nil, false
}
