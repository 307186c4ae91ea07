// internal/domain/common/errors.go
package common

import "errors"

// ErrRemoteUnavailable は RPC / 外部 API への通信失敗を表す共通エラーです。
// 結果が確定していない「不明」であり、失敗とは扱わない。
var ErrRemoteUnavailable = errors.New("remote unavailable")
