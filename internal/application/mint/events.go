// internal/application/mint/events.go
package mint

import (
	"context"
	"time"

	"go.uber.org/zap"

	mintdom "candymint/internal/domain/mint"
)

// ============================================================
// UI 向けイベント面（状態遷移 + 最終 Outcome）
// ============================================================

// Event は Attempt の状態遷移 1 回分です。
// Outcome は終端状態のイベントにのみ載る。
type Event struct {
	AttemptID     string           `json:"attemptId"`
	WalletID      string           `json:"walletId"`
	TransactionID string           `json:"transactionId,omitempty"`
	Status        mintdom.Status   `json:"status"`
	Outcome       *mintdom.Outcome `json:"outcome,omitempty"`
	At            time.Time        `json:"at"`
}

// Observer は Event の受け手です。OnEvent は試行の進行をブロックしないこと。
type Observer interface {
	OnEvent(ctx context.Context, ev Event)
}

// Observers は複数の Observer へ順に配送します。
type Observers []Observer

func (obs Observers) OnEvent(ctx context.Context, ev Event) {
	for _, o := range obs {
		if o == nil {
			continue
		}
		o.OnEvent(ctx, ev)
	}
}

// LogObserver は遷移を zap に記録します。
type LogObserver struct {
	Logger *zap.Logger
}

func (o LogObserver) OnEvent(_ context.Context, ev Event) {
	if o.Logger == nil {
		return
	}
	fields := []zap.Field{
		zap.String("attemptId", ev.AttemptID),
		zap.String("wallet", maskShort(ev.WalletID)),
		zap.String("status", string(ev.Status)),
	}
	if ev.TransactionID != "" {
		fields = append(fields, zap.String("tx", maskShort(ev.TransactionID)))
	}
	if ev.Outcome != nil {
		fields = append(fields,
			zap.String("outcome", string(ev.Outcome.Kind)),
			zap.String("message", ev.Outcome.Message),
		)
	}
	o.Logger.Info("[mint] attempt status", fields...)
}

func eventFromAttempt(a mintdom.Attempt, at time.Time) Event {
	return Event{
		AttemptID:     a.ID,
		WalletID:      a.WalletID,
		TransactionID: a.TransactionID,
		Status:        a.Status,
		Outcome:       a.Outcome,
		At:            at.UTC(),
	}
}
