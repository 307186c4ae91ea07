package di

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/blocto/solana-go-sdk/types"
	"github.com/mr-tron/base58"

	mintapp "candymint/internal/application/mint"
	identitydom "candymint/internal/domain/identity"
	"candymint/internal/infra/config"
)

func baseConfig() *config.Config {
	return &config.Config{
		RPCURL:             "http://127.0.0.1:8899",
		CandyMachineID:     types.NewAccount().PublicKey.ToBase58(),
		ProgramID:          "cndy3Z4yapfJBmL3ShUp5exZKqR3z33thTzeNMm2gRZ",
		Commitment:         "confirmed",
		ConfirmTimeout:     time.Second,
		PollInterval:       100 * time.Millisecond,
		BroadcastWait:      time.Second,
		CORSAllowedOrigins: []string{"*"},
	}
}

func writeKeypair(t *testing.T, acc types.Account) string {
	t.Helper()
	ints := make([]int, len(acc.PrivateKey))
	for i, b := range acc.PrivateKey {
		ints[i] = int(b)
	}
	data, err := json.Marshal(ints)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	path := filepath.Join(t.TempDir(), "id.json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestNewContainerWiresWallets(t *testing.T) {
	fileAcc := types.NewAccount()
	envAcc := types.NewAccount()

	cfg := baseConfig()
	cfg.WalletKeypairPath = writeKeypair(t, fileAcc) + ", "
	cfg.WalletPrivateKey = base58.Encode(envAcc.PrivateKey)

	wrapped := 0
	c, err := NewContainer(context.Background(), cfg, nil, Options{
		WrapWallet: func(w mintapp.Wallet) mintapp.Wallet {
			wrapped++
			return w
		},
	})
	if err != nil {
		t.Fatalf("NewContainer: %v", err)
	}
	defer c.Close()

	if wrapped != 2 || len(c.Wallets.IDs()) != 2 {
		t.Fatalf("wallets = %v, wrapped = %d", c.Wallets.IDs(), wrapped)
	}
	for _, acc := range []types.Account{fileAcc, envAcc} {
		if _, err := c.Wallets.Wallet(context.Background(), acc.PublicKey.ToBase58()); err != nil {
			t.Fatalf("wallet %s not registered: %v", acc.PublicKey.ToBase58(), err)
		}
	}

	if c.Events == nil || c.Registry == nil || c.Mint == nil || c.Issuance == nil {
		t.Fatalf("container not fully wired: %+v", c)
	}
	deps := c.RouterDeps()
	if deps.Events == nil || deps.Minter == nil || deps.Issuance == nil || deps.Gatherer == nil {
		t.Fatalf("router deps incomplete: %+v", deps)
	}
	if c.Mint.ConfirmTimeout() != time.Second {
		t.Fatalf("confirm timeout = %s", c.Mint.ConfirmTimeout())
	}
}

func TestNewContainerWithoutEvents(t *testing.T) {
	c, err := NewContainer(context.Background(), baseConfig(), nil, Options{DisableEvents: true})
	if err != nil {
		t.Fatalf("NewContainer: %v", err)
	}
	defer c.Close()

	if c.Events != nil || c.RouterDeps().Events != nil {
		t.Fatalf("events hub should be disabled")
	}
}

func TestNewContainerRejectsBadConfig(t *testing.T) {
	if _, err := NewContainer(context.Background(), nil, nil, Options{}); err == nil {
		t.Fatalf("nil config should fail")
	}

	cfg := baseConfig()
	cfg.CandyMachineID = ""
	if _, err := NewContainer(context.Background(), cfg, nil, Options{}); !errors.Is(err, config.ErrInvalidConfig) {
		t.Fatalf("err = %v, want ErrInvalidConfig", err)
	}

	cfg = baseConfig()
	cfg.WalletPrivateKey = "not-a-key"
	if _, err := NewContainer(context.Background(), cfg, nil, Options{}); err == nil {
		t.Fatalf("invalid wallet key should fail")
	}
}

type stubGate struct{ calls int }

func (g *stubGate) Obtain(_ context.Context, walletID, network string) (identitydom.Credential, error) {
	g.calls++
	return identitydom.Credential{WalletID: walletID, Network: network, TokenAddress: "tok"}, nil
}

func TestNetworkPinnedGate(t *testing.T) {
	inner := &stubGate{}
	g := networkPinnedGate{inner: inner, network: "pinned"}

	if _, err := g.Obtain(context.Background(), "w", "other"); !errors.Is(err, identitydom.ErrDenied) {
		t.Fatalf("err = %v, want ErrDenied", err)
	}
	if inner.calls != 0 {
		t.Fatalf("inner gate consulted for a foreign network")
	}
	if _, err := g.Obtain(context.Background(), "w", " pinned "); err != nil {
		t.Fatalf("Obtain: %v", err)
	}
	if inner.calls != 1 {
		t.Fatalf("inner calls = %d, want 1", inner.calls)
	}
}
