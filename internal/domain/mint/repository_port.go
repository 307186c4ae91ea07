// internal/domain/mint/repository_port.go
package mint

import (
	"context"
	"time"
)

// ------------------------------------------------------
// In-flight Guard Port
// ------------------------------------------------------
//
// 「ウォレット 1 つにつき試行は 1 つだけ」を UI の無効化ではなく
// 明示的な compare-and-set で保証するためのポートです。
// プロセス内実装（application/mint）と Redis 実装（infra/redis）がある。

// InFlightGuard はウォレット単位の試行中フラグを管理します。
type InFlightGuard interface {
	// TryAcquire:
	// - walletID に試行中フラグが立っていなければ立てて release 関数を返します。
	// - 既に立っていれば ErrAlreadyInFlight を返します（待たない）。
	// - ttl はプロセス異常終了時にフラグが残り続けないための上限で、
	//   実装によっては無視されます。
	// - release は何度呼んでも安全であること。
	TryAcquire(ctx context.Context, walletID string, ttl time.Duration) (release func(), err error)
}
