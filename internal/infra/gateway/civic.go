// internal/infra/gateway/civic.go
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/blocto/solana-go-sdk/common"
	"github.com/near/borsh-go"
	"go.uber.org/zap"

	identitydom "candymint/internal/domain/identity"
	mintdom "candymint/internal/domain/mint"
)

// Civic gateway program
const ProgramID = "gatem74V238djXdzWnJf94Wo1DcnuGkfijbf3AuBhfs"

const DefaultPollInterval = 2 * time.Second

// GatewayTokenState（on-chain enum）
const (
	TokenStateActive  uint8 = 0
	TokenStateFrozen  uint8 = 1
	TokenStateRevoked uint8 = 2
)

var (
	ErrTokenInactive = errors.New("gateway: token is not active")
	ErrTokenMismatch = errors.New("gateway: token does not belong to wallet/network")
	ErrIssueRejected = errors.New("gateway: gatekeeper rejected issuance request")
)

// AccountReader は gateway token アカウントの生データ取得元です。
type AccountReader interface {
	GetAccountState(ctx context.Context, address string) ([]byte, bool, error)
}

// ------------------------------------------------------------
// On-chain layout (Borsh)
// ------------------------------------------------------------

type gatewayToken struct {
	Features          uint8
	Parent            *common.PublicKey
	OwnerWallet       common.PublicKey
	OwnerIdentity     *common.PublicKey
	GatekeeperNetwork common.PublicKey
	IssuingGatekeeper common.PublicKey
	State             uint8
	ExpireTime        *int64
}

func decodeGatewayToken(data []byte) (gatewayToken, error) {
	var t gatewayToken
	if err := borsh.Deserialize(&t, data); err != nil {
		return gatewayToken{}, fmt.Errorf("gateway: borsh deserialize: %w", err)
	}
	return t, nil
}

// TokenAddress は [wallet, "gateway", seed(8 bytes), network] の PDA です。
func TokenAddress(wallet, network common.PublicKey) (common.PublicKey, error) {
	seed := make([]byte, 8)
	pda, _, err := common.FindProgramAddress(
		[][]byte{wallet.Bytes(), []byte("gateway"), seed, network.Bytes()},
		common.PublicKeyFromString(ProgramID),
	)
	if err != nil {
		return common.PublicKey{}, fmt.Errorf("gateway: token PDA: %w", err)
	}
	return pda, nil
}

// ------------------------------------------------------------
// Civic gate
// ------------------------------------------------------------

// Civic implements identitydom.Gate.
//
//  1. gateway token PDA を読み、有効ならそのまま Credential を返す
//  2. 無ければ gatekeeper API に発行を依頼（POST {BaseURL}/{network} {"address": wallet}）
//  3. トークンが on-chain で有効になるまでポーリング（ctx が唯一の上限）
type Civic struct {
	Accounts     AccountReader
	HTTP         *http.Client
	BaseURL      string
	PollInterval time.Duration
	Logger       *zap.Logger
	Now          func() time.Time
}

var _ identitydom.Gate = (*Civic)(nil)

func NewCivic(accounts AccountReader, baseURL string, logger *zap.Logger) *Civic {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Civic{
		Accounts:     accounts,
		HTTP:         &http.Client{Timeout: 15 * time.Second},
		BaseURL:      strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		PollInterval: DefaultPollInterval,
		Logger:       logger,
		Now:          time.Now,
	}
}

func (g *Civic) Obtain(ctx context.Context, walletID, network string) (identitydom.Credential, error) {
	w := strings.TrimSpace(walletID)
	n := strings.TrimSpace(network)
	if w == "" {
		return identitydom.Credential{}, identitydom.ErrInvalidWallet
	}
	if n == "" {
		return identitydom.Credential{}, identitydom.ErrInvalidNetwork
	}
	if g == nil || g.Accounts == nil {
		return identitydom.Credential{}, fmt.Errorf("%w: gateway not configured", identitydom.ErrDenied)
	}

	walletKey := common.PublicKeyFromString(w)
	networkKey := common.PublicKeyFromString(n)
	addr, err := TokenAddress(walletKey, networkKey)
	if err != nil {
		return identitydom.Credential{}, err
	}

	cred, err := g.check(ctx, w, n, addr)
	if err == nil {
		return cred, nil
	}
	if !errors.Is(err, errTokenMissing) {
		return identitydom.Credential{}, err
	}

	// 未発行 → gatekeeper に依頼
	if g.BaseURL == "" {
		return identitydom.Credential{}, fmt.Errorf("%w: no gateway token and no gatekeeper url", identitydom.ErrDenied)
	}
	if err := g.requestIssue(ctx, w, n); err != nil {
		return identitydom.Credential{}, err
	}

	g.Logger.Info("[identity] gateway token requested, waiting for issuance",
		zap.String("wallet", maskShort(w)),
		zap.String("network", maskShort(n)),
	)
	return g.waitIssued(ctx, w, n, addr)
}

var errTokenMissing = errors.New("gateway: token not found")

// check は gateway token を 1 回読みます。
func (g *Civic) check(ctx context.Context, wallet, network string, addr common.PublicKey) (identitydom.Credential, error) {
	data, ok, err := g.Accounts.GetAccountState(ctx, addr.ToBase58())
	if err != nil {
		return identitydom.Credential{}, err
	}
	if !ok {
		return identitydom.Credential{}, errTokenMissing
	}

	tok, err := decodeGatewayToken(data)
	if err != nil {
		return identitydom.Credential{}, fmt.Errorf("%w: %v", identitydom.ErrDenied, err)
	}
	if tok.OwnerWallet.ToBase58() != wallet || tok.GatekeeperNetwork.ToBase58() != network {
		return identitydom.Credential{}, ErrTokenMismatch
	}
	if tok.State != TokenStateActive {
		return identitydom.Credential{}, fmt.Errorf("%w: state=%d", ErrTokenInactive, tok.State)
	}

	now := time.Now
	if g.Now != nil {
		now = g.Now
	}
	cred := identitydom.Credential{
		WalletID:     wallet,
		Network:      network,
		TokenAddress: addr.ToBase58(),
		IssuedAt:     now().UTC(),
	}
	if tok.ExpireTime != nil {
		exp := time.Unix(*tok.ExpireTime, 0).UTC()
		cred.ExpiresAt = &exp
		if !cred.Fresh(now(), 0) {
			return identitydom.Credential{}, fmt.Errorf("%w: expired", ErrTokenInactive)
		}
	}
	return cred, nil
}

type issueRequest struct {
	Address string `json:"address"`
}

func (g *Civic) requestIssue(ctx context.Context, wallet, network string) error {
	body, err := json.Marshal(issueRequest{Address: wallet})
	if err != nil {
		return fmt.Errorf("gateway: marshal request: %w", err)
	}

	url := g.BaseURL + "/" + network
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("gateway: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := g.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: gatekeeper request: %v", mintdom.ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: gatekeeper status=%d", mintdom.ErrRemoteUnavailable, resp.StatusCode)
	}
	// 409 = 既に発行済み
	if resp.StatusCode != http.StatusConflict && (resp.StatusCode < 200 || resp.StatusCode >= 300) {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status=%d body=%s", ErrIssueRejected, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

func (g *Civic) waitIssued(ctx context.Context, wallet, network string, addr common.PublicKey) (identitydom.Credential, error) {
	interval := g.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		cred, err := g.check(ctx, wallet, network, addr)
		switch {
		case err == nil:
			return cred, nil
		case errors.Is(err, errTokenMissing), errors.Is(err, mintdom.ErrRemoteUnavailable):
			// 発行待ち / 一時的な失敗はポーリング継続
		default:
			return identitydom.Credential{}, err
		}

		select {
		case <-ctx.Done():
			return identitydom.Credential{}, fmt.Errorf("%w: %v", identitydom.ErrDenied, ctx.Err())
		case <-ticker.C:
		}
	}
}

func maskShort(s string) string {
	t := strings.TrimSpace(s)
	if len(t) <= 10 {
		return t
	}
	return t[:4] + "***" + t[len(t)-4:]
}
