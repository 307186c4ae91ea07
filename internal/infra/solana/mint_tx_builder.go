// internal/infra/solana/mint_tx_builder.go
package solana

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/blocto/solana-go-sdk/common"
	"github.com/blocto/solana-go-sdk/program/associated_token_account"
	"github.com/blocto/solana-go-sdk/program/metaplex/token_metadata"
	"github.com/blocto/solana-go-sdk/program/system"
	"github.com/blocto/solana-go-sdk/program/token"
	"github.com/blocto/solana-go-sdk/types"

	mintapp "candymint/internal/application/mint"
	issuancedom "candymint/internal/domain/issuance"
)

// well-known program / sysvar ids
var (
	tokenMetadataProgramID = common.PublicKeyFromString("metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s")
	systemProgramID        = common.PublicKeyFromString("11111111111111111111111111111111")
	tokenProgramID         = common.PublicKeyFromString("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	rentSysvarID           = common.PublicKeyFromString("SysvarRent111111111111111111111111111111111")
	clockSysvarID          = common.PublicKeyFromString("SysvarC1ock11111111111111111111111111111111")
	slotHashesSysvarID     = common.PublicKeyFromString("SysvarS1otHashes111111111111111111111111111")
	instructionsSysvarID   = common.PublicKeyFromString("Sysvar1nstructions1111111111111111111111111")
)

// Civic gateway program
const GatewayProgramID = "gatem74V238djXdzWnJf94Wo1DcnuGkfijbf3AuBhfs"

var mintNFTDiscriminator = anchorDiscriminator("global", "mint_nft")

var (
	ErrBuildInvalidInput       = errors.New("mint_tx_builder: invalid input")
	ErrBuildCredentialRequired = errors.New("mint_tx_builder: gateway credential required")
)

// ============================================================
// 純粋な組み立て
// ============================================================

// BuildInput はトランザクション組み立てに必要なすべての入力です。
// ネットワークアクセスを伴う値（blockhash / rent）と新規 mint の鍵もここで受け取る。
type BuildInput struct {
	CandyMachine   common.PublicKey
	ProgramID      common.PublicKey
	Treasury       common.PublicKey
	Payer          common.PublicKey
	Mint           common.PublicKey
	PriceMint      *common.PublicKey
	MintRent       uint64
	Blockhash      string
	GatewayToken   *common.PublicKey
	GatewayNetwork *common.PublicKey
	ExpireOnUse    bool
}

// BuiltMint は組み立て結果です。Message の必須署名者は Payer と Mint。
type BuiltMint struct {
	Message      types.Message
	Mint         common.PublicKey
	TokenAccount common.PublicKey
	CreatorPDA   common.PublicKey
	CreatorBump  uint8
}

// BuildMintTransaction は同じ入力に対して常に同じ Message を返します。
//
//  1. system.CreateAccount（新規 mint）
//  2. token.InitializeMint（decimals = 0、authority = payer）
//  3. payer の ATA 作成
//  4. token.MintTo（1 枚）
//  5. candy_machine::mint_nft
func BuildMintTransaction(in BuildInput) (BuiltMint, error) {
	if strings.TrimSpace(in.Blockhash) == "" {
		return BuiltMint{}, fmt.Errorf("%w: blockhash is empty", ErrBuildInvalidInput)
	}
	zero := common.PublicKey{}
	if in.CandyMachine == zero || in.ProgramID == zero || in.Payer == zero || in.Mint == zero || in.Treasury == zero {
		return BuiltMint{}, fmt.Errorf("%w: required address is empty", ErrBuildInvalidInput)
	}
	if in.GatewayNetwork != nil && in.GatewayToken == nil {
		return BuiltMint{}, ErrBuildCredentialRequired
	}

	ata, _, err := common.FindAssociatedTokenAddress(in.Payer, in.Mint)
	if err != nil {
		return BuiltMint{}, fmt.Errorf("mint_tx_builder: FindAssociatedTokenAddress: %w", err)
	}
	metadata, err := token_metadata.GetTokenMetaPubkey(in.Mint)
	if err != nil {
		return BuiltMint{}, fmt.Errorf("mint_tx_builder: GetTokenMetaPubkey: %w", err)
	}
	masterEdition, err := token_metadata.GetMasterEdition(in.Mint)
	if err != nil {
		return BuiltMint{}, fmt.Errorf("mint_tx_builder: GetMasterEdition: %w", err)
	}
	creator, bump, err := CandyMachineCreator(in.CandyMachine, in.ProgramID)
	if err != nil {
		return BuiltMint{}, err
	}

	remaining, err := mintRemainingAccounts(in)
	if err != nil {
		return BuiltMint{}, err
	}

	instructions := []types.Instruction{
		system.CreateAccount(system.CreateAccountParam{
			From:     in.Payer,
			New:      in.Mint,
			Owner:    tokenProgramID,
			Lamports: in.MintRent,
			Space:    token.MintAccountSize,
		}),
		token.InitializeMint(token.InitializeMintParam{
			Decimals:   0,
			Mint:       in.Mint,
			MintAuth:   in.Payer,
			FreezeAuth: &in.Payer,
		}),
		associated_token_account.CreateAssociatedTokenAccount(
			associated_token_account.CreateAssociatedTokenAccountParam{
				Funder:                 in.Payer,
				Owner:                  in.Payer,
				Mint:                   in.Mint,
				AssociatedTokenAccount: ata,
			},
		),
		token.MintTo(token.MintToParam{
			Mint:   in.Mint,
			To:     ata,
			Auth:   in.Payer,
			Amount: 1,
		}),
		mintNFTInstruction(in, creator, bump, metadata, masterEdition, remaining),
	}

	msg := types.NewMessage(types.NewMessageParam{
		FeePayer:        in.Payer,
		RecentBlockhash: in.Blockhash,
		Instructions:    instructions,
	})

	return BuiltMint{
		Message:      msg,
		Mint:         in.Mint,
		TokenAccount: ata,
		CreatorPDA:   creator,
		CreatorBump:  bump,
	}, nil
}

// CandyMachineCreator は ["candy_machine", candyMachine] の PDA です。
func CandyMachineCreator(candyMachine, programID common.PublicKey) (common.PublicKey, uint8, error) {
	pda, bump, err := common.FindProgramAddress(
		[][]byte{[]byte("candy_machine"), candyMachine.Bytes()},
		programID,
	)
	if err != nil {
		return common.PublicKey{}, 0, fmt.Errorf("mint_tx_builder: candy machine creator PDA: %w", err)
	}
	return pda, bump, nil
}

// GatewayExpireAccount は [network, "expire"] の PDA（gateway program 配下）です。
func GatewayExpireAccount(network common.PublicKey) (common.PublicKey, error) {
	pda, _, err := common.FindProgramAddress(
		[][]byte{network.Bytes(), []byte("expire")},
		common.PublicKeyFromString(GatewayProgramID),
	)
	if err != nil {
		return common.PublicKey{}, fmt.Errorf("mint_tx_builder: gateway expire PDA: %w", err)
	}
	return pda, nil
}

// Accounts（mint_nft）:
//
//	0. [writable] candy_machine
//	1. [] candy_machine_creator
//	2. [writable,signer] payer
//	3. [writable] wallet (treasury)
//	4. [writable] metadata
//	5. [writable] mint
//	6. [signer] mint_authority
//	7. [signer] update_authority
//	8. [writable] master_edition
//	9. [] token_metadata_program
//	10. [] token_program
//	11. [] system_program
//	12. [] rent
//	13. [] clock
//	14. [] recent_blockhashes (SlotHashes)
//	15. [] instruction_sysvar_account
//	.. remaining accounts
func mintNFTInstruction(
	in BuildInput,
	creator common.PublicKey,
	bump uint8,
	metadata, masterEdition common.PublicKey,
	remaining []types.AccountMeta,
) types.Instruction {
	accounts := []types.AccountMeta{
		{PubKey: in.CandyMachine, IsSigner: false, IsWritable: true},
		{PubKey: creator, IsSigner: false, IsWritable: false},
		{PubKey: in.Payer, IsSigner: true, IsWritable: true},
		{PubKey: in.Treasury, IsSigner: false, IsWritable: true},
		{PubKey: metadata, IsSigner: false, IsWritable: true},
		{PubKey: in.Mint, IsSigner: false, IsWritable: true},
		{PubKey: in.Payer, IsSigner: true, IsWritable: false},
		{PubKey: in.Payer, IsSigner: true, IsWritable: false},
		{PubKey: masterEdition, IsSigner: false, IsWritable: true},
		{PubKey: tokenMetadataProgramID, IsSigner: false, IsWritable: false},
		{PubKey: tokenProgramID, IsSigner: false, IsWritable: false},
		{PubKey: systemProgramID, IsSigner: false, IsWritable: false},
		{PubKey: rentSysvarID, IsSigner: false, IsWritable: false},
		{PubKey: clockSysvarID, IsSigner: false, IsWritable: false},
		{PubKey: slotHashesSysvarID, IsSigner: false, IsWritable: false},
		{PubKey: instructionsSysvarID, IsSigner: false, IsWritable: false},
	}
	accounts = append(accounts, remaining...)

	data := make([]byte, 0, len(mintNFTDiscriminator)+1)
	data = append(data, mintNFTDiscriminator[:]...)
	data = append(data, bump)

	return types.Instruction{
		ProgramID: in.ProgramID,
		Accounts:  accounts,
		Data:      data,
	}
}

// remaining accounts の順序は program 側の読み出し順に合わせる:
// gateway token (+ expire 用の 2 アカウント) → SPL 支払い
func mintRemainingAccounts(in BuildInput) ([]types.AccountMeta, error) {
	var out []types.AccountMeta

	if in.GatewayNetwork != nil {
		out = append(out, types.AccountMeta{PubKey: *in.GatewayToken, IsSigner: false, IsWritable: true})
		if in.ExpireOnUse {
			expire, err := GatewayExpireAccount(*in.GatewayNetwork)
			if err != nil {
				return nil, err
			}
			out = append(out,
				types.AccountMeta{PubKey: common.PublicKeyFromString(GatewayProgramID), IsSigner: false, IsWritable: false},
				types.AccountMeta{PubKey: expire, IsSigner: false, IsWritable: false},
			)
		}
	}

	if in.PriceMint != nil {
		payAccount, _, err := common.FindAssociatedTokenAddress(in.Payer, *in.PriceMint)
		if err != nil {
			return nil, fmt.Errorf("mint_tx_builder: price token account: %w", err)
		}
		// transfer authority は payer 自身（別 authority への approve はしない）
		out = append(out,
			types.AccountMeta{PubKey: payAccount, IsSigner: false, IsWritable: true},
			types.AccountMeta{PubKey: in.Payer, IsSigner: true, IsWritable: false},
		)
	}

	return out, nil
}

// ============================================================
// MintTxBuilder（ネットワーク入力の取得 + 純粋な組み立て）
// ============================================================

// BuildInputSource は組み立て前に必要なネットワーク値の取得元です。
type BuildInputSource interface {
	LatestBlockhash(ctx context.Context) (string, error)
	MinimumBalanceForRentExemption(ctx context.Context, size uint64) (uint64, error)
}

var _ BuildInputSource = (*RPCClient)(nil)

// UnsignedTx は MintTxFactory が返す署名前トランザクションです。
// Mint は今回だけ使う使い捨ての鍵で、Submitter が署名に使う。
type UnsignedTx struct {
	Built   BuiltMint
	MintKey types.Account
	Payer   common.PublicKey
}

var _ mintapp.UnsignedTransaction = (*UnsignedTx)(nil)

func (u *UnsignedTx) MintAddress() string {
	if u == nil {
		return ""
	}
	return u.MintKey.PublicKey.ToBase58()
}

// MintTxFactory implements mintapp.MintTxBuilder.
type MintTxFactory struct {
	Inputs BuildInputSource
	// NewMintAccount は新規 mint 鍵の生成（テストで差し替え可能）
	NewMintAccount func() types.Account
}

var _ mintapp.MintTxBuilder = (*MintTxFactory)(nil)

func NewMintTxFactory(inputs BuildInputSource) *MintTxFactory {
	return &MintTxFactory{
		Inputs:         inputs,
		NewMintAccount: types.NewAccount,
	}
}

func (f *MintTxFactory) Build(ctx context.Context, req mintapp.BuildRequest) (mintapp.UnsignedTransaction, error) {
	if f == nil || f.Inputs == nil {
		return nil, errors.New("mint_tx_builder: not configured")
	}

	in, err := buildInputFromState(req.State, req.Wallet)
	if err != nil {
		return nil, err
	}

	if req.State.RequiresIdentity() {
		if req.Credential == nil || strings.TrimSpace(req.Credential.TokenAddress) == "" {
			return nil, ErrBuildCredentialRequired
		}
		network := common.PublicKeyFromString(req.State.Gatekeeper.Network)
		gt := common.PublicKeyFromString(req.Credential.TokenAddress)
		in.GatewayNetwork = &network
		in.GatewayToken = &gt
		in.ExpireOnUse = req.State.Gatekeeper.ExpireOnUse
	}

	rent, err := f.Inputs.MinimumBalanceForRentExemption(ctx, token.MintAccountSize)
	if err != nil {
		return nil, err
	}
	blockhash, err := f.Inputs.LatestBlockhash(ctx)
	if err != nil {
		return nil, err
	}

	newMint := types.NewAccount
	if f.NewMintAccount != nil {
		newMint = f.NewMintAccount
	}
	mintKey := newMint()

	in.Mint = mintKey.PublicKey
	in.MintRent = rent
	in.Blockhash = blockhash

	built, err := BuildMintTransaction(in)
	if err != nil {
		return nil, err
	}

	return &UnsignedTx{
		Built:   built,
		MintKey: mintKey,
		Payer:   in.Payer,
	}, nil
}

func buildInputFromState(st issuancedom.State, wallet string) (BuildInput, error) {
	if strings.TrimSpace(wallet) == "" {
		return BuildInput{}, fmt.Errorf("%w: wallet is empty", ErrBuildInvalidInput)
	}
	if strings.TrimSpace(st.Address) == "" || strings.TrimSpace(st.Treasury) == "" {
		return BuildInput{}, fmt.Errorf("%w: issuance state is incomplete", ErrBuildInvalidInput)
	}

	programID := strings.TrimSpace(st.ProgramAddress)
	if programID == "" {
		programID = DefaultCandyMachineProgramID
	}

	in := BuildInput{
		CandyMachine: common.PublicKeyFromString(st.Address),
		ProgramID:    common.PublicKeyFromString(programID),
		Treasury:     common.PublicKeyFromString(st.Treasury),
		Payer:        common.PublicKeyFromString(strings.TrimSpace(wallet)),
	}
	if pm := strings.TrimSpace(st.PriceMint); pm != "" {
		k := common.PublicKeyFromString(pm)
		in.PriceMint = &k
	}
	return in, nil
}
