// internal/infra/solana/submitter.go
package solana

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/blocto/solana-go-sdk/common"
	"github.com/blocto/solana-go-sdk/types"
	"github.com/mr-tron/base58"
	"go.uber.org/zap"

	mintapp "candymint/internal/application/mint"
	mintdom "candymint/internal/domain/mint"
)

// DefaultBroadcastTimeout は sendTransaction 1 回の上限です。
const DefaultBroadcastTimeout = 10 * time.Second

var (
	ErrSubmitUnsupportedTx  = errors.New("submitter: unsupported transaction handle")
	ErrSubmitWalletMismatch = errors.New("submitter: wallet does not match fee payer")
	ErrSubmitInvalidTxID    = errors.New("submitter: invalid transaction id")
)

// TransactionSender は署名済み tx のブロードキャスト境界です。
type TransactionSender interface {
	SendTransaction(ctx context.Context, tx types.Transaction) (string, error)
}

var _ TransactionSender = (*RPCClient)(nil)

// Submitter implements mintapp.TransactionSubmitter.
//
// 署名順序: 使い捨て mint 鍵 → ユーザーのウォレット（ユーザー操作を待つ）→ 送信。
// ウォレットが拒否した場合は送信せず mintdom.ErrUserRejected を返す。
type Submitter struct {
	Sender           TransactionSender
	BroadcastTimeout time.Duration
	Logger           *zap.Logger
}

var _ mintapp.TransactionSubmitter = (*Submitter)(nil)

func NewSubmitter(sender TransactionSender, broadcastTimeout time.Duration, logger *zap.Logger) *Submitter {
	if broadcastTimeout <= 0 {
		broadcastTimeout = DefaultBroadcastTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Submitter{
		Sender:           sender,
		BroadcastTimeout: broadcastTimeout,
		Logger:           logger,
	}
}

func (s *Submitter) Submit(ctx context.Context, tx mintapp.UnsignedTransaction, wallet mintapp.Wallet) (string, error) {
	if s == nil || s.Sender == nil {
		return "", errors.New("submitter: not configured")
	}
	u, ok := tx.(*UnsignedTx)
	if !ok || u == nil {
		return "", fmt.Errorf("%w: %T", ErrSubmitUnsupportedTx, tx)
	}
	if wallet == nil {
		return "", mintdom.ErrWalletNotFound
	}
	if strings.TrimSpace(wallet.PublicKey()) != u.Payer.ToBase58() {
		return "", ErrSubmitWalletMismatch
	}

	signed, err := signTransaction(ctx, u, wallet)
	if err != nil {
		return "", err
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.BroadcastTimeout)
	defer cancel()

	sig, err := s.Sender.SendTransaction(sendCtx, signed)
	if err != nil {
		s.Logger.Warn("[mint] sendTransaction failed",
			zap.String("wallet", maskShort(u.Payer.ToBase58())),
			zap.String("mint", maskShort(u.MintAddress())),
			zap.Error(err),
		)
		return "", err
	}

	txID, err := validateTransactionID(sig)
	if err != nil {
		return "", err
	}

	s.Logger.Info("[mint] transaction submitted",
		zap.String("wallet", maskShort(u.Payer.ToBase58())),
		zap.String("mint", maskShort(u.MintAddress())),
		zap.String("tokenAccount", maskShort(u.Built.TokenAccount.ToBase58())),
		zap.String("tx", maskShort(txID)),
	)
	return txID, nil
}

// signTransaction は必須署名者の位置に署名を埋めた Transaction を返します。
func signTransaction(ctx context.Context, u *UnsignedTx, wallet mintapp.Wallet) (types.Transaction, error) {
	msg := u.Built.Message
	data, err := msg.Serialize()
	if err != nil {
		return types.Transaction{}, fmt.Errorf("submitter: serialize message: %w", err)
	}

	n := int(msg.Header.NumRequireSignatures)
	sigs := make([]types.Signature, n)
	for i := range sigs {
		sigs[i] = make([]byte, 64)
	}

	place := func(pub common.PublicKey, sig []byte) error {
		for i := 0; i < n && i < len(msg.Accounts); i++ {
			if msg.Accounts[i] == pub {
				sigs[i] = sig
				return nil
			}
		}
		return fmt.Errorf("submitter: %s is not a required signer", maskShort(pub.ToBase58()))
	}

	if err := place(u.MintKey.PublicKey, u.MintKey.Sign(data)); err != nil {
		return types.Transaction{}, err
	}

	walletSig, err := wallet.SignMessage(ctx, data)
	if err != nil {
		if errors.Is(err, mintdom.ErrUserRejected) {
			return types.Transaction{}, err
		}
		return types.Transaction{}, fmt.Errorf("submitter: wallet sign: %w", err)
	}
	if len(walletSig) != 64 {
		return types.Transaction{}, fmt.Errorf("submitter: wallet returned %d-byte signature", len(walletSig))
	}
	if err := place(u.Payer, walletSig); err != nil {
		return types.Transaction{}, err
	}

	return types.Transaction{Signatures: sigs, Message: msg}, nil
}

// validateTransactionID は署名が base58 の 64 バイトであることを確認します。
// 空・不正な形式はどちらもネットワークが受理を報告しなかったものとして ErrEmptyTransactionID。
// ノードは応答しているので結果は不明（Timeout）であり、失敗とは扱わない。
func validateTransactionID(sig string) (string, error) {
	s := strings.TrimSpace(sig)
	if s == "" {
		return "", mintdom.ErrEmptyTransactionID
	}
	b, err := base58.Decode(s)
	if err != nil {
		return "", fmt.Errorf("%w: %w: %v", mintdom.ErrEmptyTransactionID, ErrSubmitInvalidTxID, err)
	}
	if len(b) != 64 {
		return "", fmt.Errorf("%w: %w: want 64 bytes, got %d", mintdom.ErrEmptyTransactionID, ErrSubmitInvalidTxID, len(b))
	}
	return s, nil
}

// maskShort はアドレス・署名をログ用に短縮します。
func maskShort(s string) string {
	t := strings.TrimSpace(s)
	if t == "" {
		return ""
	}
	if len(t) <= 10 {
		return t
	}
	return t[:4] + "***" + t[len(t)-4:]
}
