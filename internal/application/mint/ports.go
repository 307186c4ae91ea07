// internal/application/mint/ports.go
package mint

import (
	"context"

	identitydom "candymint/internal/domain/identity"
	issuancedom "candymint/internal/domain/issuance"
	mintdom "candymint/internal/domain/mint"
)

// ============================================================
// Wallet 境界
// ============================================================

// Wallet は署名者（ユーザーのウォレット）の最小インターフェースです。
// SignMessage はユーザー操作を待つ可能性があり、拒否された場合は
// mintdom.ErrUserRejected を返すこと。
type Wallet interface {
	PublicKey() string
	SignMessage(ctx context.Context, message []byte) ([]byte, error)
}

// WalletProvider は walletId から署名者を解決します。
type WalletProvider interface {
	Wallet(ctx context.Context, walletID string) (Wallet, error)
}

// ============================================================
// トランザクション構築・送信ポート
// ============================================================

// UnsignedTransaction は署名前トランザクションの不透明なハンドルです。
// 実体は infra 側（solana.UnsignedTx）で、Submitter だけが中身を解釈する。
type UnsignedTransaction interface {
	// MintAddress は今回新規作成する NFT mint アカウントのアドレスです。
	MintAddress() string
}

// BuildRequest は MintTxBuilder への入力です。
// Credential は Issuance が Identity Gate を要求する場合のみ non-nil。
type BuildRequest struct {
	State      issuancedom.State
	Wallet     string
	Credential *identitydom.Credential
}

// MintTxBuilder は 1 枚ミントするための署名前トランザクションを用意します。
// ネットワークから取得が必要な入力（blockhash / rent）の取得も含むが、
// 組み立て自体は決定的な純粋関数に委譲すること。
type MintTxBuilder interface {
	Build(ctx context.Context, req BuildRequest) (UnsignedTransaction, error)
}

// TransactionSubmitter は署名してブロードキャストし、transactionId（署名）を返します。
// pending pool に受理された時点で返る（確定ではない）。
type TransactionSubmitter interface {
	Submit(ctx context.Context, tx UnsignedTransaction, wallet Wallet) (string, error)
}

// ============================================================
// 確定監視ポート
// ============================================================

// TxState はネットワークが報告するトランザクションの状態です。
type TxState string

const (
	TxNotFound           TxState = "not_found"
	TxPending            TxState = "pending"
	TxConfirmed          TxState = "confirmed"
	TxConfirmedWithError TxState = "confirmed_with_error"
)

// TxStatus は getSignatureStatuses / signatureSubscribe の結果を正規化したものです。
type TxStatus struct {
	State TxState
	Slot  uint64
	Err   *mintdom.ChainError
}

// StatusSource はトランザクション状態を 1 回問い合わせます。
// 通信失敗は mintdom.ErrRemoteUnavailable を wrap して返すこと。
type StatusSource interface {
	TransactionStatus(ctx context.Context, signature string) (TxStatus, error)
}

// SignatureNotifier はプッシュ型の確定通知（websocket signatureSubscribe）です。任意。
// 返すチャネルは確定通知を高々 1 回流して close される。cancel で購読を解除する。
type SignatureNotifier interface {
	Subscribe(ctx context.Context, signature string) (<-chan TxStatus, func(), error)
}

// ============================================================
// Issuance 状態ポート
// ============================================================

// StateProvider は IssuanceState の取得（必ずリモートから再読込）を提供します。
type StateProvider interface {
	Refresh(ctx context.Context) (issuancedom.State, error)
}
