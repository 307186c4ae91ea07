// internal/infra/solana/candy_machine.go
package solana

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/blocto/solana-go-sdk/common"
	"github.com/near/borsh-go"
	"github.com/shopspring/decimal"

	issuancedom "candymint/internal/domain/issuance"
)

// Candy Machine v2 program (mainnet / devnet 共通)
const DefaultCandyMachineProgramID = "cndy3Z4yapfJBmL3ShUp5exZKqR3z33thTzeNMm2gRZ"

// 1 SOL = 1e9 lamports
var lamportsPerSOL = decimal.New(1, 9)

// Anchor アカウントの先頭 8 バイト（sha256("account:CandyMachine")[:8]）
var candyMachineDiscriminator = anchorDiscriminator("account", "CandyMachine")

func anchorDiscriminator(namespace, name string) [8]byte {
	sum := sha256.Sum256([]byte(namespace + ":" + name))
	var d [8]byte
	copy(d[:], sum[:8])
	return d
}

// ------------------------------------------------------------
// On-chain layout (Borsh)
// ------------------------------------------------------------

// EndSettingType: 0 = Date, 1 = Amount
const (
	EndSettingDate   uint8 = 0
	EndSettingAmount uint8 = 1
)

type cmCreator struct {
	Address  common.PublicKey
	Verified bool
	Share    uint8
}

type cmEndSettings struct {
	EndSettingType uint8
	Number         uint64
}

type cmHiddenSettings struct {
	Name string
	URI  string
	Hash [32]byte
}

type cmWhitelistMintSettings struct {
	Mode          uint8
	Mint          common.PublicKey
	Presale       bool
	DiscountPrice *uint64
}

type cmGatekeeperConfig struct {
	GatekeeperNetwork common.PublicKey
	ExpireOnUse       bool
}

type candyMachineData struct {
	UUID                  string
	Price                 uint64
	Symbol                string
	SellerFeeBasisPoints  uint16
	MaxSupply             uint64
	IsMutable             bool
	RetainAuthority       bool
	GoLiveDate            *int64
	EndSettings           *cmEndSettings
	Creators              []cmCreator
	HiddenSettings        *cmHiddenSettings
	WhitelistMintSettings *cmWhitelistMintSettings
	ItemsAvailable        uint64
	Gatekeeper            *cmGatekeeperConfig
}

// CandyMachineAccount は discriminator を除いた Candy Machine v2 アカウント本体です。
// 後続の config lines はデコードしない。
type CandyMachineAccount struct {
	Authority     common.PublicKey
	Wallet        common.PublicKey
	TokenMint     *common.PublicKey
	ItemsRedeemed uint64
	Data          candyMachineData
}

var (
	ErrCandyMachineDiscriminator = errors.New("candy machine: account discriminator mismatch")
	ErrCandyMachineTooShort      = errors.New("candy machine: account data too short")
)

// DecodeCandyMachine は getAccountInfo の data をデコードします。
func DecodeCandyMachine(data []byte) (CandyMachineAccount, error) {
	if len(data) < len(candyMachineDiscriminator) {
		return CandyMachineAccount{}, ErrCandyMachineTooShort
	}
	if !bytes.Equal(data[:8], candyMachineDiscriminator[:]) {
		return CandyMachineAccount{}, ErrCandyMachineDiscriminator
	}

	var acc CandyMachineAccount
	if err := borsh.Deserialize(&acc, data[8:]); err != nil {
		return CandyMachineAccount{}, fmt.Errorf("candy machine: borsh deserialize: %w", err)
	}
	return acc, nil
}

// EncodeCandyMachine は DecodeCandyMachine の逆変換です（ローカル検証・テスト用）。
func EncodeCandyMachine(acc CandyMachineAccount) ([]byte, error) {
	body, err := borsh.Serialize(acc)
	if err != nil {
		return nil, fmt.Errorf("candy machine: borsh serialize: %w", err)
	}
	out := make([]byte, 0, 8+len(body))
	out = append(out, candyMachineDiscriminator[:]...)
	out = append(out, body...)
	return out, nil
}

// ToState は Candy Machine アカウントを IssuanceState に射影します。
//
//   - totalSupply = itemsAvailable（EndSettings Amount があれば min を取る）
//   - remaining   = totalSupply - itemsRedeemed（負にはしない）
//   - saleStart   = goLiveDate（未設定ならゼロ値 = 開始前）
//   - saleEnd     = EndSettings Date
func (a CandyMachineAccount) ToState(address, programID string, fetchedAt time.Time) issuancedom.State {
	total := a.Data.ItemsAvailable
	var saleEnd *time.Time

	if es := a.Data.EndSettings; es != nil {
		switch es.EndSettingType {
		case EndSettingAmount:
			if es.Number < total {
				total = es.Number
			}
		case EndSettingDate:
			t := time.Unix(int64(es.Number), 0).UTC()
			saleEnd = &t
		}
	}

	var remaining uint64
	if a.ItemsRedeemed < total {
		remaining = total - a.ItemsRedeemed
	}

	st := issuancedom.State{
		Address:        address,
		ProgramAddress: programID,
		Authority:      a.Authority.ToBase58(),
		Treasury:       a.Wallet.ToBase58(),
		TotalSupply:    total,
		ItemsRedeemed:  a.ItemsRedeemed,
		Remaining:      remaining,
		SaleEnd:        saleEnd,
		FetchedAt:      fetchedAt.UTC(),
	}

	if a.TokenMint != nil {
		st.PriceMint = a.TokenMint.ToBase58()
		// SPL 払いの場合は最小単位のまま（decimals は mint 側にあるため）
		st.Price = decimal.NewFromInt(int64(a.Data.Price))
	} else {
		st.Price = decimal.NewFromInt(int64(a.Data.Price)).Div(lamportsPerSOL)
	}

	if a.Data.GoLiveDate != nil {
		st.SaleStart = time.Unix(*a.Data.GoLiveDate, 0).UTC()
	}

	if gk := a.Data.Gatekeeper; gk != nil {
		st.Gatekeeper = &issuancedom.Gatekeeper{
			Network:     gk.GatekeeperNetwork.ToBase58(),
			ExpireOnUse: gk.ExpireOnUse,
		}
	}

	return st
}

// ------------------------------------------------------------
// issuancedom.Reader 実装
// ------------------------------------------------------------

// AccountStateSource は getAccountInfo だけを切り出した境界です。
type AccountStateSource interface {
	GetAccountState(ctx context.Context, address string) ([]byte, bool, error)
}

var _ AccountStateSource = (*RPCClient)(nil)

// CandyMachineReader は Candy Machine アカウントを読んで IssuanceState を返します。
type CandyMachineReader struct {
	Accounts  AccountStateSource
	ProgramID string
	Now       func() time.Time
}

var _ issuancedom.Reader = (*CandyMachineReader)(nil)

func NewCandyMachineReader(accounts AccountStateSource, programID string) *CandyMachineReader {
	pid := strings.TrimSpace(programID)
	if pid == "" {
		pid = DefaultCandyMachineProgramID
	}
	return &CandyMachineReader{
		Accounts:  accounts,
		ProgramID: pid,
		Now:       time.Now,
	}
}

func (r *CandyMachineReader) Read(ctx context.Context, issuanceID string) (issuancedom.State, error) {
	if r == nil || r.Accounts == nil {
		return issuancedom.State{}, errors.New("candy machine reader: not configured")
	}
	addr := strings.TrimSpace(issuanceID)
	if addr == "" {
		return issuancedom.State{}, fmt.Errorf("%w: empty address", issuancedom.ErrInvalidAccount)
	}

	data, ok, err := r.Accounts.GetAccountState(ctx, addr)
	if err != nil {
		return issuancedom.State{}, err
	}
	if !ok {
		return issuancedom.State{}, fmt.Errorf("%w: %s", issuancedom.ErrNotFound, maskShort(addr))
	}

	acc, err := DecodeCandyMachine(data)
	if err != nil {
		return issuancedom.State{}, fmt.Errorf("%w: %v", issuancedom.ErrInvalidAccount, err)
	}

	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	st := acc.ToState(addr, r.ProgramID, now())
	if err := st.Validate(); err != nil {
		return issuancedom.State{}, err
	}
	return st, nil
}
