// internal/platform/di/container.go
package di

import (
	"context"
	"fmt"
	"strings"

	"github.com/blocto/solana-go-sdk/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	httpin "candymint/internal/adapters/in/http"
	"candymint/internal/adapters/in/http/events"
	issuanceapp "candymint/internal/application/issuance"
	mintapp "candymint/internal/application/mint"
	identitydom "candymint/internal/domain/identity"
	mintdom "candymint/internal/domain/mint"
	"candymint/internal/infra/config"
	"candymint/internal/infra/gateway"
	"candymint/internal/infra/metrics"
	redisinfra "candymint/internal/infra/redis"
	"candymint/internal/infra/solana"
)

// Container は main.go から使う依存オブジェクトの束。
type Container struct {
	Config *config.Config
	Logger *zap.Logger

	RPC      *solana.RPCClient
	Issuance *issuanceapp.Service
	Mint     *mintapp.MintUsecase
	Wallets  *solana.WalletRegistry
	Events   *events.Hub
	Registry *prometheus.Registry

	cleanupFn []func()
}

// Options はエントリポイントごとの差分です。
type Options struct {
	// WrapWallet は登録前に各ウォレットを包む（CLI の確認プロンプトなど）
	WrapWallet func(mintapp.Wallet) mintapp.Wallet
	// DisableEvents は websocket ハブを作らない（CLI）
	DisableEvents bool
	// ExtraObservers は LogObserver / metrics / ハブに加えて登録する
	ExtraObservers []mintapp.Observer
}

// Close は終了時に呼んで安全にリソースを閉じる。
func (c *Container) Close() {
	for i := len(c.cleanupFn) - 1; i >= 0; i-- {
		c.cleanupFn[i]()
	}
}

// RouterDeps は HTTP ルーターへ渡す依存を返します。
func (c *Container) RouterDeps() httpin.RouterDeps {
	deps := httpin.RouterDeps{
		Minter:         c.Mint,
		Issuance:       c.Issuance,
		Gatherer:       c.Registry,
		AllowedOrigins: c.Config.CORSAllowedOrigins,
		Logger:         c.Logger,
	}
	if c.Events != nil {
		deps.Events = c.Events
	}
	return deps
}

// NewContainer は DI コンテナを初期化して返す。
//   - RPC / websocket / gatekeeper / redis などの外部クライアントを組み立てる
//   - 署名ウォレットを読み込む
//   - Usecase をつなぐ
func NewContainer(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts Options) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("di: config is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Container{Config: cfg, Logger: logger}

	// ------------------------------------------------------------
	// 1. Solana RPC / Candy Machine
	// ------------------------------------------------------------
	commitment := solana.ParseCommitment(cfg.Commitment)
	c.RPC = solana.NewRPCClient(cfg.RPCURL, commitment, 0)

	reader := solana.NewCandyMachineReader(c.RPC, cfg.ProgramID)
	c.Issuance = issuanceapp.NewService(reader, cfg.CandyMachineID, logger)

	// ------------------------------------------------------------
	// 2. Wallets
	// ------------------------------------------------------------
	accounts, err := loadWalletAccounts(ctx, cfg)
	if err != nil {
		return nil, err
	}
	c.Wallets = solana.NewWalletRegistry()
	for _, acc := range accounts {
		var w mintapp.Wallet = solana.NewKeypairWallet(acc)
		if opts.WrapWallet != nil {
			w = opts.WrapWallet(w)
		}
		c.Wallets.Register(w)
		logger.Info("[boot] wallet registered", zap.String("wallet", w.PublicKey()))
	}

	// ------------------------------------------------------------
	// 3. Confirmation watcher（websocket 通知は任意）
	// ------------------------------------------------------------
	var notifier mintapp.SignatureNotifier
	if cfg.WSURL != "" {
		notifier = solana.NewSignatureSubscriber(cfg.WSURL, commitment, logger)
	}
	watcher := mintapp.NewConfirmationWatcher(c.RPC, notifier, cfg.PollInterval, logger)

	// ------------------------------------------------------------
	// 4. In-flight guard（REDIS_URL があれば分散ガード）
	// ------------------------------------------------------------
	var guard mintdom.InFlightGuard = mintapp.NewMemoryGuard()
	if cfg.RedisURL != "" {
		rdb, err := redisinfra.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("di: redis ping: %w", err)
		}
		c.cleanupFn = append(c.cleanupFn, func() { _ = rdb.Close() })
		guard = redisinfra.NewInFlightGuard(rdb, logger)
		logger.Info("[boot] using redis in-flight guard")
	}

	// ------------------------------------------------------------
	// 5. Identity Gate（Civic）
	// ------------------------------------------------------------
	var gate identitydom.Gate
	civic := gateway.NewCivic(c.RPC, cfg.GatekeeperURL, logger)
	if cfg.GatekeeperNetwork != "" {
		gate = networkPinnedGate{inner: civic, network: cfg.GatekeeperNetwork}
	} else {
		gate = civic
	}

	// ------------------------------------------------------------
	// 6. Observers
	// ------------------------------------------------------------
	c.Registry = prometheus.NewRegistry()
	c.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	observers := mintapp.Observers{
		mintapp.LogObserver{Logger: logger},
		metrics.NewMintMetrics(c.Registry),
	}
	if !opts.DisableEvents {
		c.Events = events.NewHub(cfg.CORSAllowedOrigins, logger)
		c.cleanupFn = append(c.cleanupFn, c.Events.Close)
		observers = append(observers, c.Events)
	}
	observers = append(observers, opts.ExtraObservers...)

	// ------------------------------------------------------------
	// 7. Usecase
	// ------------------------------------------------------------
	c.Mint = mintapp.NewMintUsecase(
		mintapp.Config{ConfirmTimeout: cfg.ConfirmTimeout},
		mintapp.Deps{
			States:    c.Issuance,
			Wallets:   c.Wallets,
			Builder:   solana.NewMintTxFactory(c.RPC),
			Submitter: solana.NewSubmitter(c.RPC, cfg.BroadcastWait, logger),
			Watcher:   watcher,
			Guard:     guard,
			Gate:      gate,
			Observer:  observers,
			Logger:    logger,
		},
	)

	return c, nil
}

func loadWalletAccounts(ctx context.Context, cfg *config.Config) ([]types.Account, error) {
	var out []types.Account

	if cfg.WalletKeypairPath != "" {
		for _, p := range strings.Split(cfg.WalletKeypairPath, ",") {
			if strings.TrimSpace(p) == "" {
				continue
			}
			acc, err := solana.LoadKeypairFile(p)
			if err != nil {
				return nil, fmt.Errorf("di: WALLET_KEYPAIR_PATH: %w", err)
			}
			out = append(out, acc)
		}
	}
	if cfg.WalletPrivateKey != "" {
		acc, err := solana.AccountFromKeyMaterial([]byte(cfg.WalletPrivateKey))
		if err != nil {
			return nil, fmt.Errorf("di: WALLET_PRIVATE_KEY: %w", err)
		}
		out = append(out, acc)
	}
	if cfg.WalletKeySecret != "" {
		acc, err := solana.LoadWalletFromSecret(ctx, cfg.WalletKeySecret, cfg.GCPCreds)
		if err != nil {
			return nil, fmt.Errorf("di: WALLET_KEY_SECRET: %w", err)
		}
		out = append(out, acc)
	}
	return out, nil
}

// networkPinnedGate は設定で固定した gatekeeper network 以外への発行を拒否します。
type networkPinnedGate struct {
	inner   identitydom.Gate
	network string
}

func (g networkPinnedGate) Obtain(ctx context.Context, walletID, network string) (identitydom.Credential, error) {
	if strings.TrimSpace(network) != g.network {
		return identitydom.Credential{}, fmt.Errorf("%w: candy machine network %q does not match GATEKEEPER_NETWORK", identitydom.ErrDenied, network)
	}
	return g.inner.Obtain(ctx, walletID, network)
}
