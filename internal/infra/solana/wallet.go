// internal/infra/solana/wallet.go
package solana

import (
	"bufio"
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/blocto/solana-go-sdk/types"
	"github.com/mr-tron/base58"

	mintapp "candymint/internal/application/mint"
	mintdom "candymint/internal/domain/mint"
)

var (
	ErrWalletKeyEmpty   = errors.New("wallet: key material is empty")
	ErrWalletKeyInvalid = errors.New("wallet: invalid key material")
)

// ============================================================
// KeypairWallet（ローカル鍵でそのまま署名する）
// ============================================================

type KeypairWallet struct {
	Account types.Account
}

var _ mintapp.Wallet = (*KeypairWallet)(nil)

func NewKeypairWallet(acc types.Account) *KeypairWallet {
	return &KeypairWallet{Account: acc}
}

func (w *KeypairWallet) PublicKey() string {
	return w.Account.PublicKey.ToBase58()
}

func (w *KeypairWallet) SignMessage(ctx context.Context, message []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return w.Account.Sign(message), nil
}

// LoadKeypairFile は solana-keygen 形式（JSON 配列 [u8;64]）の keypair ファイルを読みます。
func LoadKeypairFile(path string) (types.Account, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return types.Account{}, ErrWalletKeyEmpty
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return types.Account{}, fmt.Errorf("wallet: read keypair file: %w", err)
	}
	return AccountFromKeypairJSON(data)
}

// AccountFromKeypairJSON は keypair JSON（[int,...]）から Account を復元します。
func AccountFromKeypairJSON(data []byte) (types.Account, error) {
	keyBytes, err := decodeKeypairJSON(data)
	if err != nil {
		return types.Account{}, err
	}
	acc, err := types.AccountFromBytes(keyBytes)
	if err != nil {
		return types.Account{}, fmt.Errorf("wallet: AccountFromBytes: %w", err)
	}
	return acc, nil
}

// AccountFromBase58 は Phantom などがエクスポートする base58 の 64 バイト秘密鍵から復元します。
func AccountFromBase58(s string) (types.Account, error) {
	t := strings.TrimSpace(s)
	if t == "" {
		return types.Account{}, ErrWalletKeyEmpty
	}
	b, err := base58.Decode(t)
	if err != nil {
		return types.Account{}, fmt.Errorf("%w: base58: %v", ErrWalletKeyInvalid, err)
	}
	if len(b) != ed25519.PrivateKeySize {
		return types.Account{}, fmt.Errorf("%w: want %d bytes, got %d", ErrWalletKeyInvalid, ed25519.PrivateKeySize, len(b))
	}
	acc, err := types.AccountFromBytes(b)
	if err != nil {
		return types.Account{}, fmt.Errorf("wallet: AccountFromBytes: %w", err)
	}
	return acc, nil
}

// AccountFromKeyMaterial は JSON 配列と base58 のどちらでも受け付けます。
func AccountFromKeyMaterial(data []byte) (types.Account, error) {
	s := strings.TrimSpace(string(data))
	if s == "" {
		return types.Account{}, ErrWalletKeyEmpty
	}
	if strings.HasPrefix(s, "[") {
		return AccountFromKeypairJSON([]byte(s))
	}
	return AccountFromBase58(s)
}

// decodeKeypairJSON は [int,int,...] を 64 バイトに変換します。
func decodeKeypairJSON(data []byte) ([]byte, error) {
	var ints []int
	if err := json.Unmarshal(data, &ints); err != nil {
		return nil, fmt.Errorf("%w: unmarshal keypair json: %v", ErrWalletKeyInvalid, err)
	}
	if len(ints) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: unexpected secret key length: got %d, want %d", ErrWalletKeyInvalid, len(ints), ed25519.PrivateKeySize)
	}

	b := make([]byte, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("%w: byte out of range at %d: %d", ErrWalletKeyInvalid, i, v)
		}
		b[i] = byte(v)
	}
	return b, nil
}

// ============================================================
// PromptWallet（署名前にユーザーへ承認を求める）
// ============================================================

// PromptWallet は CLI 用のウォレットです。署名のたびに承認を求め、
// "y" / "yes" 以外の入力なら mintdom.ErrUserRejected を返す。
type PromptWallet struct {
	Inner mintapp.Wallet
	In    io.Reader
	Out   io.Writer

	mu     sync.Mutex
	reader *bufio.Reader
}

var _ mintapp.Wallet = (*PromptWallet)(nil)

func NewPromptWallet(inner mintapp.Wallet, in io.Reader, out io.Writer) *PromptWallet {
	return &PromptWallet{Inner: inner, In: in, Out: out}
}

func (w *PromptWallet) PublicKey() string {
	return w.Inner.PublicKey()
}

func (w *PromptWallet) SignMessage(ctx context.Context, message []byte) ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.reader == nil {
		w.reader = bufio.NewReader(w.In)
	}

	fmt.Fprintf(w.Out, "Approve mint transaction for %s? [y/N]: ", maskShort(w.Inner.PublicKey()))

	type answer struct {
		line string
		err  error
	}
	ch := make(chan answer, 1)
	go func() {
		line, err := w.reader.ReadString('\n')
		ch <- answer{line: line, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case a := <-ch:
		if a.err != nil && a.line == "" {
			return nil, fmt.Errorf("%w: %v", mintdom.ErrUserRejected, a.err)
		}
		switch strings.ToLower(strings.TrimSpace(a.line)) {
		case "y", "yes":
			return w.Inner.SignMessage(ctx, message)
		default:
			return nil, mintdom.ErrUserRejected
		}
	}
}

// ============================================================
// WalletRegistry（walletId = 公開鍵 base58 → Wallet）
// ============================================================

type WalletRegistry struct {
	mu      sync.RWMutex
	wallets map[string]mintapp.Wallet
}

var _ mintapp.WalletProvider = (*WalletRegistry)(nil)

func NewWalletRegistry(wallets ...mintapp.Wallet) *WalletRegistry {
	r := &WalletRegistry{wallets: make(map[string]mintapp.Wallet, len(wallets))}
	for _, w := range wallets {
		r.Register(w)
	}
	return r
}

func (r *WalletRegistry) Register(w mintapp.Wallet) {
	if w == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.wallets[w.PublicKey()] = w
}

func (r *WalletRegistry) Wallet(_ context.Context, walletID string) (mintapp.Wallet, error) {
	id := strings.TrimSpace(walletID)
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.wallets[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", mintdom.ErrWalletNotFound, maskShort(id))
	}
	return w, nil
}

// IDs は登録済みの walletId 一覧です。
func (r *WalletRegistry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.wallets))
	for id := range r.wallets {
		out = append(out, id)
	}
	return out
}
