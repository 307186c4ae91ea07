// cmd/mint/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	mintapp "candymint/internal/application/mint"
	"candymint/internal/infra/config"
	"candymint/internal/infra/logging"
	"candymint/internal/infra/solana"
	"candymint/internal/platform/di"
)

// ターミナルから 1 回だけミントを試みる。
//
//	go run ./cmd/mint -wallet <pubkey> [-timeout 45s] [-yes] [-status]
func main() {
	walletID := flag.String("wallet", "", "wallet public key (default: the only configured wallet)")
	timeout := flag.Duration("timeout", 0, "confirmation deadline (default: CONFIRM_TIMEOUT)")
	yes := flag.Bool("yes", false, "sign without asking for confirmation")
	statusOnly := flag.Bool("status", false, "print the candy machine state and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[mint] config load failed: %v", err)
	}
	if os.Getenv("LOG_FORMAT") == "" {
		cfg.LogFormat = "console"
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("[mint] logger init failed: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := di.Options{DisableEvents: true}
	if !*yes {
		opts.WrapWallet = func(w mintapp.Wallet) mintapp.Wallet {
			return solana.NewPromptWallet(w, os.Stdin, os.Stdout)
		}
	}

	cont, err := di.NewContainer(ctx, cfg, logger, opts)
	if err != nil {
		logger.Fatal("[mint] di init failed", zap.Error(err))
	}
	defer cont.Close()

	st, err := cont.Issuance.Refresh(ctx)
	if err != nil {
		logger.Fatal("[mint] candy machine read failed", zap.Error(err))
	}
	now := time.Now()
	fmt.Printf("Candy machine %s\n", st.Address)
	fmt.Printf("  remaining : %d / %d\n", st.Remaining, st.TotalSupply)
	fmt.Printf("  price     : %s\n", st.Price.String())
	fmt.Printf("  live      : %t (start %s)\n", st.IsActive(now), st.SaleStart.Format(time.RFC3339))
	if st.RequiresIdentity() {
		fmt.Printf("  gatekeeper: %s\n", st.Gatekeeper.Network)
	}
	if *statusOnly {
		return
	}
	if !cfg.HasWalletSource() {
		logger.Fatal("[mint] no wallet source: set WALLET_KEYPAIR_PATH, WALLET_PRIVATE_KEY or WALLET_KEY_SECRET")
	}

	wid := *walletID
	if wid == "" {
		ids := cont.Wallets.IDs()
		if len(ids) != 1 {
			logger.Fatal("[mint] -wallet is required when zero or several wallets are configured", zap.Int("wallets", len(ids)))
		}
		wid = ids[0]
	}

	d := *timeout
	if d <= 0 {
		d = cont.Mint.ConfirmTimeout()
	}

	outcome, err := cont.Mint.AttemptMintWithTimeout(ctx, wid, d)
	if err != nil {
		logger.Fatal("[mint] attempt not started", zap.Error(err))
	}

	fmt.Println(outcome.Message)
	if !outcome.Succeeded() {
		os.Exit(2)
	}
}
