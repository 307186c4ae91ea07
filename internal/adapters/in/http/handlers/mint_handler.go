// internal/adapters/in/http/handlers/mint_handler.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	identitydom "candymint/internal/domain/identity"
	issuancedom "candymint/internal/domain/issuance"
	mintdom "candymint/internal/domain/mint"
)

// 1 リクエストで指定できる確定待ち期限の上限
const maxTimeout = 5 * time.Minute

// Minter は MintHandler が必要とする MintUsecase の部分集合です。
type Minter interface {
	ConfirmTimeout() time.Duration
	AttemptMintWithTimeout(ctx context.Context, walletID string, timeout time.Duration) (mintdom.Outcome, error)
	PrefetchCredential(ctx context.Context, walletID string) (identitydom.Credential, error)
}

// MintHandler は /v1/mints と /v1/identity/prefetch を担当します。
type MintHandler struct {
	uc Minter
}

func NewMintHandler(uc Minter) *MintHandler {
	return &MintHandler{uc: uc}
}

type mintRequest struct {
	WalletID string `json:"walletId"`
	// 任意: 確定待ち期限（ミリ秒）。未指定なら既定値。
	TimeoutMs int64 `json:"timeoutMs,omitempty"`
}

type mintResponse struct {
	Outcome mintdom.Outcome `json:"outcome"`
	Success bool            `json:"success"`
}

// POST /v1/mints
//
// 試行が終わるまで（確定・失敗・タイムアウト）ブロックする。
// 途中経過は GET /v1/events の websocket で受け取る。
func (h *MintHandler) Mint(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.uc == nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "mint usecase not configured"})
		return
	}

	var req mintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	walletID := strings.TrimSpace(req.WalletID)
	if walletID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "walletId is required"})
		return
	}

	timeout := h.uc.ConfirmTimeout()
	if req.TimeoutMs < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "timeoutMs must not be negative"})
		return
	}
	if req.TimeoutMs > 0 {
		timeout = time.Duration(req.TimeoutMs) * time.Millisecond
		if timeout > maxTimeout {
			timeout = maxTimeout
		}
	}

	// ★ 試行は Identity 取得・署名待ちを含めて server の WriteTimeout より長くなりうる。
	// Outcome を必ず返すため、このルートだけ書き込み期限を外す（recorder などでは未対応のまま）
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cannot extend write deadline"})
		return
	}

	outcome, err := h.uc.AttemptMintWithTimeout(r.Context(), walletID, timeout)
	if err != nil {
		writeErr(w, err)
		return
	}

	writeJSON(w, http.StatusOK, mintResponse{Outcome: outcome, Success: outcome.Succeeded()})
}

type prefetchRequest struct {
	WalletID string `json:"walletId"`
}

type prefetchResponse struct {
	Required   bool                    `json:"required"`
	Credential *identitydom.Credential `json:"credential,omitempty"`
}

// POST /v1/identity/prefetch
//
// ミントボタンを押す前に Identity Gate の手続きを済ませておく。
func (h *MintHandler) Prefetch(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.uc == nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "mint usecase not configured"})
		return
	}

	var req prefetchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	cred, err := h.uc.PrefetchCredential(r.Context(), req.WalletID)
	if err != nil {
		writeErr(w, err)
		return
	}

	// 資格情報が不要な構成ではゼロ値が返る
	if cred.TokenAddress == "" {
		writeJSON(w, http.StatusOK, prefetchResponse{Required: false})
		return
	}
	writeJSON(w, http.StatusOK, prefetchResponse{Required: true, Credential: &cred})
}

// ============================================================
// Shared helpers
// ============================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// エラーハンドリング
func writeErr(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, mintdom.ErrInvalidWalletID),
		errors.Is(err, identitydom.ErrInvalidWallet),
		errors.Is(err, identitydom.ErrInvalidNetwork):
		code = http.StatusBadRequest
	case errors.Is(err, mintdom.ErrAlreadyInFlight):
		code = http.StatusConflict
	case errors.Is(err, mintdom.ErrWalletNotFound),
		errors.Is(err, issuancedom.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, mintdom.ErrIdentityDenied),
		errors.Is(err, identitydom.ErrDenied):
		code = http.StatusForbidden
	case errors.Is(err, mintdom.ErrRemoteUnavailable):
		code = http.StatusBadGateway
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
