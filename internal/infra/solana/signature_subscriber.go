// internal/infra/solana/signature_subscriber.go
package solana

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	mintapp "candymint/internal/application/mint"
	mintdom "candymint/internal/domain/mint"
)

// SignatureSubscriber は websocket の signatureSubscribe でプッシュ通知を受けます。
// 通知はポーリングの補助で、届かなくても Watcher 側のポーリングで確定を判断する。
type SignatureSubscriber struct {
	WSURL            string
	Commitment       Commitment
	HandshakeTimeout time.Duration
	Logger           *zap.Logger
}

var _ mintapp.SignatureNotifier = (*SignatureSubscriber)(nil)

func NewSignatureSubscriber(wsURL string, commitment Commitment, logger *zap.Logger) *SignatureSubscriber {
	if logger == nil {
		logger = zap.NewNop()
	}
	if commitment == "" {
		commitment = CommitmentConfirmed
	}
	return &SignatureSubscriber{
		WSURL:            strings.TrimSpace(wsURL),
		Commitment:       commitment,
		HandshakeTimeout: 5 * time.Second,
		Logger:           logger,
	}
}

type wsRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

// signatureNotification の応答。購読確認（result: <subscription id>）も同じ型で受ける。
type signatureNotification struct {
	JSONRPC string    `json:"jsonrpc"`
	Method  string    `json:"method"`
	Error   *rpcError `json:"error,omitempty"`
	Params  struct {
		Result struct {
			Context struct {
				Slot uint64 `json:"slot"`
			} `json:"context"`
			Value struct {
				Err json.RawMessage `json:"err"`
			} `json:"value"`
		} `json:"result"`
		Subscription int `json:"subscription"`
	} `json:"params"`
}

// Subscribe は接続・購読要求を同期的に行い、通知の受信は goroutine で待ちます。
// チャネルは確定通知を高々 1 回流して close される。
func (s *SignatureSubscriber) Subscribe(ctx context.Context, signature string) (<-chan mintapp.TxStatus, func(), error) {
	if s == nil || s.WSURL == "" {
		return nil, nil, errors.New("signature subscriber: ws url not configured")
	}
	sig := strings.TrimSpace(signature)
	if sig == "" {
		return nil, nil, mintdom.ErrEmptyTransactionID
	}

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = s.HandshakeTimeout

	conn, _, err := dialer.DialContext(ctx, s.WSURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: signature subscriber dial: %v", mintdom.ErrRemoteUnavailable, err)
	}

	req := wsRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "signatureSubscribe",
		Params:  []any{sig, map[string]any{"commitment": string(s.Commitment)}},
	}
	if err := conn.WriteJSON(req); err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("%w: signature subscriber write: %v", mintdom.ErrRemoteUnavailable, err)
	}

	out := make(chan mintapp.TxStatus, 1)

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			_ = conn.WriteMessage(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			)
			_ = conn.Close()
		})
	}

	// ctx 終了で接続を閉じ、ReadMessage のブロックを解く
	stop := context.AfterFunc(ctx, cancel)

	go func() {
		defer close(out)
		defer stop()
		defer cancel()

		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil {
					s.Logger.Debug("[mint] signature subscription closed",
						zap.String("tx", maskShort(sig)),
						zap.Error(err),
					)
				}
				return
			}

			var n signatureNotification
			if err := json.Unmarshal(message, &n); err != nil {
				s.Logger.Debug("[mint] signature subscription: unmarshal", zap.Error(err))
				continue
			}
			if n.Error != nil {
				s.Logger.Warn("[mint] signatureSubscribe rejected",
					zap.String("tx", maskShort(sig)),
					zap.Int("code", n.Error.Code),
					zap.String("message", n.Error.Message),
				)
				return
			}
			if n.Method != "signatureNotification" {
				continue
			}

			st := mintapp.TxStatus{State: mintapp.TxConfirmed, Slot: n.Params.Result.Context.Slot}
			if ce := parseTransactionError(n.Params.Result.Value.Err); ce != nil {
				st.State = mintapp.TxConfirmedWithError
				st.Err = ce
			}
			out <- st
			return
		}
	}()

	return out, cancel, nil
}
