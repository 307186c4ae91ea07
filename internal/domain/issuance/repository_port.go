// internal/domain/issuance/repository_port.go
package issuance

import "context"

// ------------------------------------------------------
// Reader Port for IssuanceState
// ------------------------------------------------------
//
// Hexagonal Architecture における「出力ポート」。
// チェーン上のアカウント取得・デコードは infra/solana 側で実装し、
// ドメイン層／アプリケーション層からはこのインターフェースのみを参照します。

// Reader は Candy Machine の現在状態を読み取るポートです。
type Reader interface {
	// Read:
	// - issuanceID（Candy Machine アカウントの base58 アドレス）の状態を取得します。
	// - 通信失敗時は ErrRemoteUnavailable を wrap して返すこと。
	// - 副作用はネットワーク呼び出しのみ。
	Read(ctx context.Context, issuanceID string) (State, error)
}
