// internal/domain/identity/entity.go
package identity

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ------------------------------------------------------
// Entity: Credential（Identity Gate が発行する短命な資格情報）
// ------------------------------------------------------
//
// (walletId, network) に束縛される。試行 1 回分だけ MintUsecase が保持し、
// 試行をまたいでキャッシュしない（Issuance 側の要求が変わり得るため）。
type Credential struct {
	WalletID     string     `json:"walletId"`
	Network      string     `json:"network"`
	TokenAddress string     `json:"tokenAddress"`
	IssuedAt     time.Time  `json:"issuedAt"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
}

var (
	ErrDenied         = errors.New("identity: denied")
	ErrInvalidWallet  = errors.New("identity: invalid walletId")
	ErrInvalidNetwork = errors.New("identity: invalid network")
)

// Matches は資格情報が指定の (walletId, network) に束縛されているかを返します。
func (c Credential) Matches(walletID, network string) bool {
	return c.WalletID == strings.TrimSpace(walletID) && c.Network == strings.TrimSpace(network)
}

// Fresh は now 時点で（skew を見込んで）まだ有効かを返します。
// ExpiresAt 未設定は失効しない gateway token を意味する。
func (c Credential) Fresh(now time.Time, skew time.Duration) bool {
	if c.TokenAddress == "" {
		return false
	}
	if c.ExpiresAt == nil {
		return true
	}
	return now.Add(skew).Before(*c.ExpiresAt)
}

// Gate は Identity Gate の境界ポートです。
// ユーザー操作（外部での本人確認）を待つ可能性があるため、ctx 以外で時間を制限しない。
type Gate interface {
	Obtain(ctx context.Context, walletID, network string) (Credential, error)
}
