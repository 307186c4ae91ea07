// internal/infra/solana/rpc_client.go
package solana

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/blocto/solana-go-sdk/client"
	"github.com/blocto/solana-go-sdk/rpc"
	"github.com/blocto/solana-go-sdk/types"

	mintapp "candymint/internal/application/mint"
	mintdom "candymint/internal/domain/mint"
)

// Solana Devnet RPC endpoint (default)
const DevnetEndpoint = rpc.DevnetRPCEndpoint

// JSON-RPC のエラーコード: preflight シミュレーション失敗
const rpcCodeSendTransactionPreflightFailure = -32002

// Commitment は確定とみなすレベルです。
type Commitment string

const (
	CommitmentProcessed Commitment = "processed"
	CommitmentConfirmed Commitment = "confirmed"
	CommitmentFinalized Commitment = "finalized"
)

// ParseCommitment は設定値を Commitment に変換します（不明値は confirmed）。
func ParseCommitment(s string) Commitment {
	switch Commitment(strings.ToLower(strings.TrimSpace(s))) {
	case CommitmentProcessed:
		return CommitmentProcessed
	case CommitmentFinalized:
		return CommitmentFinalized
	default:
		return CommitmentConfirmed
	}
}

func (c Commitment) rank() int {
	switch c {
	case CommitmentProcessed:
		return 0
	case CommitmentConfirmed:
		return 1
	case CommitmentFinalized:
		return 2
	default:
		return -1
	}
}

// satisfiedBy は観測された confirmationStatus が要求レベル以上かを返します。
func (c Commitment) satisfiedBy(observed string) bool {
	o := Commitment(strings.ToLower(strings.TrimSpace(observed)))
	if o.rank() < 0 {
		return false
	}
	return o.rank() >= c.rank()
}

// RPCClient は Solana RPC 境界です。
//
//   - getAccountInfo / getLatestBlockhash / getMinimumBalanceForRentExemption は blocto client
//   - sendTransaction / getSignatureStatuses は JSON-RPC を直接叩く
//     （preflight の err / logs と status の err をそのまま受け取るため）
//
// どの呼び出しも通信失敗は mintdom.ErrRemoteUnavailable を wrap して返す。
type RPCClient struct {
	Endpoint   string
	SDK        *client.Client
	HTTP       *http.Client
	Commitment Commitment
}

var _ mintapp.StatusSource = (*RPCClient)(nil)

// NewRPCClient creates a Solana RPC client.
// endpoint が空なら DevnetEndpoint。
func NewRPCClient(endpoint string, commitment Commitment, timeout time.Duration) *RPCClient {
	ep := strings.TrimSpace(endpoint)
	if ep == "" {
		ep = DevnetEndpoint
	}
	if timeout <= 0 {
		timeout = 12 * time.Second
	}
	if commitment == "" {
		commitment = CommitmentConfirmed
	}
	return &RPCClient{
		Endpoint:   ep,
		SDK:        client.NewClient(ep),
		HTTP:       &http.Client{Timeout: timeout},
		Commitment: commitment,
	}
}

// ------------------------------------------------------------
// Account / build inputs
// ------------------------------------------------------------

// GetAccountState はアカウントの生データを返します。存在しなければ (nil, false, nil)。
func (c *RPCClient) GetAccountState(ctx context.Context, address string) ([]byte, bool, error) {
	if c == nil || c.SDK == nil {
		return nil, false, fmt.Errorf("solana rpc: client not configured")
	}
	addr := strings.TrimSpace(address)
	if addr == "" {
		return nil, false, fmt.Errorf("solana rpc: address is empty")
	}

	info, err := c.SDK.GetAccountInfoWithConfig(ctx, addr, client.GetAccountInfoConfig{
		Commitment: rpc.Commitment(c.Commitment),
	})
	if err != nil {
		return nil, false, fmt.Errorf("%w: getAccountInfo: %v", mintdom.ErrRemoteUnavailable, err)
	}
	// value=null のとき blocto は空の AccountInfo を返す
	if info.Lamports == 0 && len(info.Data) == 0 {
		return nil, false, nil
	}
	return info.Data, true, nil
}

// LatestBlockhash returns recent blockhash (base58).
func (c *RPCClient) LatestBlockhash(ctx context.Context) (string, error) {
	res, err := c.SDK.GetLatestBlockhash(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: getLatestBlockhash: %v", mintdom.ErrRemoteUnavailable, err)
	}
	return res.Blockhash, nil
}

// MinimumBalanceForRentExemption returns lamports for rent exemption with the given data size.
func (c *RPCClient) MinimumBalanceForRentExemption(ctx context.Context, size uint64) (uint64, error) {
	v, err := c.SDK.GetMinimumBalanceForRentExemption(ctx, size)
	if err != nil {
		return 0, fmt.Errorf("%w: getMinimumBalanceForRentExemption: %v", mintdom.ErrRemoteUnavailable, err)
	}
	return v, nil
}

// ------------------------------------------------------------
// sendTransaction
// ------------------------------------------------------------

// SendTransaction は署名済み tx を base64 で送信し、署名（transactionId）を返します。
// preflight 失敗は *mintdom.SubmitError、それ以外のノード側エラー・通信失敗は ErrRemoteUnavailable。
func (c *RPCClient) SendTransaction(ctx context.Context, tx types.Transaction) (string, error) {
	raw, err := tx.Serialize()
	if err != nil {
		return "", fmt.Errorf("solana rpc: serialize transaction: %w", err)
	}

	params := []any{
		base64.StdEncoding.EncodeToString(raw),
		map[string]any{
			"encoding":            "base64",
			"preflightCommitment": string(c.Commitment),
			// 自動再送はしない（二重送信の余地を残さない）
			"maxRetries": 0,
		},
	}

	var sig string
	if err := c.call(ctx, "sendTransaction", params, &sig); err != nil {
		return "", err
	}
	return sig, nil
}

// ------------------------------------------------------------
// getSignatureStatuses
// ------------------------------------------------------------

type signatureStatusValue struct {
	Slot               uint64          `json:"slot"`
	Confirmations      *uint64         `json:"confirmations"`
	Err                json.RawMessage `json:"err"`
	ConfirmationStatus string          `json:"confirmationStatus"`
}

type getSignatureStatusesResult struct {
	Context struct {
		Slot uint64 `json:"slot"`
	} `json:"context"`
	Value []*signatureStatusValue `json:"value"`
}

// TransactionStatus は mintapp.StatusSource の実装です。
// 要求 commitment に達していないものは Pending、err があれば ConfirmedWithError。
func (c *RPCClient) TransactionStatus(ctx context.Context, signature string) (mintapp.TxStatus, error) {
	sig := strings.TrimSpace(signature)
	if sig == "" {
		return mintapp.TxStatus{}, mintdom.ErrEmptyTransactionID
	}

	params := []any{
		[]string{sig},
		map[string]any{"searchTransactionHistory": true},
	}

	var out getSignatureStatusesResult
	if err := c.call(ctx, "getSignatureStatuses", params, &out); err != nil {
		return mintapp.TxStatus{}, err
	}
	if len(out.Value) == 0 || out.Value[0] == nil {
		return mintapp.TxStatus{State: mintapp.TxNotFound}, nil
	}

	v := out.Value[0]
	return statusFrom(c.Commitment, v.ConfirmationStatus, v.Slot, v.Err), nil
}

func statusFrom(required Commitment, observed string, slot uint64, rawErr json.RawMessage) mintapp.TxStatus {
	if !required.satisfiedBy(observed) {
		return mintapp.TxStatus{State: mintapp.TxPending, Slot: slot}
	}
	if ce := parseTransactionError(rawErr); ce != nil {
		return mintapp.TxStatus{State: mintapp.TxConfirmedWithError, Slot: slot, Err: ce}
	}
	return mintapp.TxStatus{State: mintapp.TxConfirmed, Slot: slot}
}

// ------------------------------------------------------------
// JSON-RPC transport
// ------------------------------------------------------------

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// preflight 失敗時の error.data
type simulationFailure struct {
	Err  json.RawMessage `json:"err"`
	Logs []string        `json:"logs"`
}

func (c *RPCClient) call(ctx context.Context, method string, params any, out any) error {
	if c == nil || c.Endpoint == "" || c.HTTP == nil {
		return fmt.Errorf("solana rpc: client not configured")
	}

	reqBody, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("solana rpc: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("solana rpc: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: http do: %v", mintdom.ErrRemoteUnavailable, method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s: http status=%d", mintdom.ErrRemoteUnavailable, method, resp.StatusCode)
	}

	var rr rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return fmt.Errorf("%w: %s: decode response: %v", mintdom.ErrRemoteUnavailable, method, err)
	}
	if rr.Error != nil {
		return rpcFailure(method, rr.Error)
	}

	if out != nil {
		if err := json.Unmarshal(rr.Result, out); err != nil {
			return fmt.Errorf("%w: %s: unmarshal result: %v", mintdom.ErrRemoteUnavailable, method, err)
		}
	}
	return nil
}

func rpcFailure(method string, e *rpcError) error {
	if method == "sendTransaction" && e.Code == rpcCodeSendTransactionPreflightFailure {
		se := &mintdom.SubmitError{Message: e.Message}
		var sim simulationFailure
		if len(e.Data) > 0 && json.Unmarshal(e.Data, &sim) == nil {
			se.Logs = sim.Logs
			se.Program = parseTransactionError(sim.Err)
		}
		return se
	}
	// ノードが不健全・レート制限など。受理されたかどうかは分からない。
	return fmt.Errorf("%w: %s: error code=%d message=%s", mintdom.ErrRemoteUnavailable, method, e.Code, e.Message)
}

// IsRemoteUnavailable は err が通信失敗由来かを返します。
func IsRemoteUnavailable(err error) bool {
	return errors.Is(err, mintdom.ErrRemoteUnavailable)
}
