package solana

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/blocto/solana-go-sdk/types"
	"github.com/mr-tron/base58"

	mintdom "candymint/internal/domain/mint"
)

func keypairJSON(t *testing.T, acc types.Account) []byte {
	t.Helper()
	ints := make([]int, len(acc.PrivateKey))
	for i, b := range acc.PrivateKey {
		ints[i] = int(b)
	}
	data, err := json.Marshal(ints)
	if err != nil {
		t.Fatalf("marshal keypair: %v", err)
	}
	return data
}

func TestAccountFromKeyMaterial(t *testing.T) {
	acc := types.NewAccount()

	fromJSON, err := AccountFromKeyMaterial(keypairJSON(t, acc))
	if err != nil {
		t.Fatalf("json key: %v", err)
	}
	if fromJSON.PublicKey != acc.PublicKey {
		t.Fatalf("json key restored a different account")
	}

	fromB58, err := AccountFromKeyMaterial([]byte("  " + base58.Encode(acc.PrivateKey) + "\n"))
	if err != nil {
		t.Fatalf("base58 key: %v", err)
	}
	if fromB58.PublicKey != acc.PublicKey {
		t.Fatalf("base58 key restored a different account")
	}
}

func TestAccountFromKeyMaterialInvalid(t *testing.T) {
	cases := []struct {
		in   string
		want error
	}{
		{"", ErrWalletKeyEmpty},
		{"[1,2,3]", ErrWalletKeyInvalid},
		{"[" + strings.Repeat("300,", 63) + "300]", ErrWalletKeyInvalid},
		{"0OIl", ErrWalletKeyInvalid},
		{base58.Encode([]byte{1, 2, 3}), ErrWalletKeyInvalid},
	}
	for _, tc := range cases {
		if _, err := AccountFromKeyMaterial([]byte(tc.in)); !errors.Is(err, tc.want) {
			t.Fatalf("AccountFromKeyMaterial(%q) err = %v, want %v", tc.in, err, tc.want)
		}
	}
}

func TestLoadKeypairFile(t *testing.T) {
	acc := types.NewAccount()
	path := filepath.Join(t.TempDir(), "id.json")
	if err := os.WriteFile(path, keypairJSON(t, acc), 0o600); err != nil {
		t.Fatalf("write keypair: %v", err)
	}

	got, err := LoadKeypairFile(path)
	if err != nil {
		t.Fatalf("LoadKeypairFile: %v", err)
	}
	if got.PublicKey != acc.PublicKey {
		t.Fatalf("loaded a different account")
	}

	if _, err := LoadKeypairFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatalf("missing file should fail")
	}
	if _, err := LoadKeypairFile(" "); !errors.Is(err, ErrWalletKeyEmpty) {
		t.Fatalf("empty path err = %v", err)
	}
}

func TestKeypairWalletSigns(t *testing.T) {
	acc := types.NewAccount()
	w := NewKeypairWallet(acc)

	sig, err := w.SignMessage(context.Background(), []byte("hello"))
	if err != nil {
		t.Fatalf("SignMessage: %v", err)
	}
	if !ed25519.Verify(ed25519.PublicKey(acc.PublicKey.Bytes()), []byte("hello"), sig) {
		t.Fatalf("signature does not verify")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := w.SignMessage(ctx, []byte("hello")); !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled ctx err = %v", err)
	}
}

func TestPromptWallet(t *testing.T) {
	acc := types.NewAccount()

	for _, answer := range []string{"y\n", "YES\n"} {
		w := NewPromptWallet(NewKeypairWallet(acc), strings.NewReader(answer), io.Discard)
		if _, err := w.SignMessage(context.Background(), []byte("m")); err != nil {
			t.Fatalf("answer %q: %v", answer, err)
		}
	}

	for _, answer := range []string{"n\n", "\n", "maybe\n", ""} {
		w := NewPromptWallet(NewKeypairWallet(acc), strings.NewReader(answer), io.Discard)
		if _, err := w.SignMessage(context.Background(), []byte("m")); !errors.Is(err, mintdom.ErrUserRejected) {
			t.Fatalf("answer %q err = %v, want ErrUserRejected", answer, err)
		}
	}
}

func TestPromptWalletHonoursContext(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	var out bytes.Buffer
	w := NewPromptWallet(NewKeypairWallet(types.NewAccount()), pr, &out)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := w.SignMessage(ctx, []byte("m")); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

func TestWalletRegistry(t *testing.T) {
	a := NewKeypairWallet(types.NewAccount())
	b := NewKeypairWallet(types.NewAccount())
	r := NewWalletRegistry(a, b, nil)

	got, err := r.Wallet(context.Background(), " "+a.PublicKey()+" ")
	if err != nil {
		t.Fatalf("Wallet: %v", err)
	}
	if got.PublicKey() != a.PublicKey() {
		t.Fatalf("registry returned the wrong wallet")
	}
	if len(r.IDs()) != 2 {
		t.Fatalf("ids = %v", r.IDs())
	}
	if _, err := r.Wallet(context.Background(), "unknown"); !errors.Is(err, mintdom.ErrWalletNotFound) {
		t.Fatalf("unknown wallet err = %v", err)
	}
}
