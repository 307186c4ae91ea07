// internal/domain/issuance/entity.go
package issuance

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"candymint/internal/domain/common"
)

// ------------------------------------------------------
// Entity: IssuanceState（Candy Machine アカウントの読み取り専用スナップショット）
// ------------------------------------------------------
//
// チェーン上の権威ある状態をキャッシュした射影で、ローカルでは決して変更しない。
// 古くなっている可能性がある前提で扱うこと。
//
// - totalSupply   : 発行上限（EndSettings Amount があればその値で上限をかける）
// - remaining     : 残数（0 <= remaining <= totalSupply）
// - price         : 1 ミントあたりの価格（SOL 建て、PriceMint があればその SPL 単位）
// - saleStart     : go-live 日時（ゼロ値 = 未設定 = 販売開始していない）
// - saleEnd       : EndSettings Date による終了日時（任意）
// - gatekeeper    : Identity Gate 必須時のみ non-nil
type State struct {
	Address        string `json:"address"`
	ProgramAddress string `json:"programAddress"`
	Authority      string `json:"authority"`
	Treasury       string `json:"treasury"`

	// SPL トークン払いの場合のみ（SOL 払いなら空）
	PriceMint string `json:"priceMint,omitempty"`

	TotalSupply   uint64          `json:"totalSupply"`
	ItemsRedeemed uint64          `json:"itemsRedeemed"`
	Remaining     uint64          `json:"remaining"`
	Price         decimal.Decimal `json:"price"`

	SaleStart time.Time  `json:"saleStart"`
	SaleEnd   *time.Time `json:"saleEnd,omitempty"`

	Gatekeeper *Gatekeeper `json:"gatekeeper,omitempty"`

	FetchedAt time.Time `json:"fetchedAt"`
}

// Gatekeeper は Identity Gate（Civic gateway token）の要求内容です。
type Gatekeeper struct {
	Network     string `json:"network"`
	ExpireOnUse bool   `json:"expireOnUse"`
}

// ------------------------------------------------------
// Errors
// ------------------------------------------------------

var (
	ErrRemoteUnavailable = common.ErrRemoteUnavailable
	ErrInvalidAccount    = errors.New("issuance: invalid candy machine account")
	ErrNotFound          = errors.New("issuance: account not found")
	ErrInvalidSupply     = errors.New("issuance: remaining exceeds total supply")
)

// ------------------------------------------------------
// Behavior
// ------------------------------------------------------

// IsActive は UI がミントを提示するかどうかの唯一の判定です。
//
//	now >= saleStart AND remaining > 0 AND (saleEnd 未設定 OR now < saleEnd)
//
// saleStart がゼロ値（go-live 未設定）の場合は開始前として扱う。
func (s State) IsActive(now time.Time) bool {
	if !s.Started(now) {
		return false
	}
	if s.SoldOut() {
		return false
	}
	if s.Ended(now) {
		return false
	}
	return true
}

// Started は販売期間が開始済みかを返します。
func (s State) Started(now time.Time) bool {
	if s.SaleStart.IsZero() {
		return false
	}
	return !now.Before(s.SaleStart)
}

// Ended は EndSettings Date により販売期間が終了しているかを返します。
func (s State) Ended(now time.Time) bool {
	return s.SaleEnd != nil && !now.Before(*s.SaleEnd)
}

// SoldOut は残数がゼロかを返します。
func (s State) SoldOut() bool {
	return s.Remaining == 0
}

// RequiresIdentity は Identity Gate の資格情報が必要な構成かを返します。
// オーケストレーション側はこの判定だけに依存し、具体的な Gate 実装には依存しない。
func (s State) RequiresIdentity() bool {
	return s.Gatekeeper != nil && s.Gatekeeper.Network != ""
}

// Validate はエンティティの一貫性チェックを公開します。
func (s State) Validate() error {
	if s.Remaining > s.TotalSupply {
		return ErrInvalidSupply
	}
	return nil
}
