// internal/application/mint/watcher.go
package mint

import (
	"context"
	"time"

	"go.uber.org/zap"

	mintdom "candymint/internal/domain/mint"
)

// ============================================================
// ConfirmationWatcher
// ============================================================
//
// 状態遷移: Watching -> {Confirmed, ErroredOnChain, TimedOut}
//
// ネットワークからの観測はベストエフォート（ノードがまだ持っていない・落とした・遅れている）
// なので、期限付きポーリングだけを契約とする。
//   - エラーが無いだけでは Confirmed にしない
//   - 期限前に結果が無いだけでは失敗にしない
//   - TimedOut は「真の結果が不明」を表す独立した終端状態

// WatchState は監視の状態です。
type WatchState string

const (
	WatchWatching       WatchState = "watching"
	WatchConfirmed      WatchState = "confirmed"
	WatchErroredOnChain WatchState = "errored_on_chain"
	WatchTimedOut       WatchState = "timed_out"
)

// WatchResult は監視の終端結果です。
type WatchResult struct {
	State   WatchState
	Slot    uint64
	Err     *mintdom.ChainError
	Polls   int
	Elapsed time.Duration
}

// DefaultPollInterval は getSignatureStatuses を叩く間隔です。
const DefaultPollInterval = 2 * time.Second

// ConfirmationWatcher は送信済みトランザクションの行方を期限付きで監視します。
type ConfirmationWatcher struct {
	source   StatusSource
	notifier SignatureNotifier // 任意（nil ならポーリングのみ）
	interval time.Duration
	logger   *zap.Logger

	// 期限タイマー（テストで差し替える）
	newTimer func(time.Duration) (<-chan time.Time, func())
}

func realTimer(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTimer(d)
	return t.C, func() { t.Stop() }
}

// NewConfirmationWatcher は ConfirmationWatcher を初期化します。
// interval <= 0 の場合は DefaultPollInterval。
func NewConfirmationWatcher(
	source StatusSource,
	notifier SignatureNotifier,
	interval time.Duration,
	logger *zap.Logger,
) *ConfirmationWatcher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConfirmationWatcher{
		source:   source,
		notifier: notifier,
		interval: interval,
		logger:   logger,
		newTimer: realTimer,
	}
}

// Watch は signature が確定するか deadline が経過するまでブロックします。
// 呼び出し側の ctx がキャンセルされた場合も真の結果は不明なので TimedOut を返す。
// 戻る時点で ticker / timer / 購読はすべて解放済み。
func (w *ConfirmationWatcher) Watch(ctx context.Context, signature string, deadline time.Duration) WatchResult {
	started := time.Now()

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// 期限で watchCtx を閉じる。実行中の poll / 購読もこれで打ち切られる
	newTimer := w.newTimer
	if newTimer == nil {
		newTimer = realTimer
	}
	expired, stopTimer := newTimer(deadline)
	defer stopTimer()
	go func() {
		select {
		case <-expired:
			cancel()
		case <-watchCtx.Done():
		}
	}()

	var notify <-chan TxStatus
	if w.notifier != nil {
		ch, unsubscribe, err := w.notifier.Subscribe(watchCtx, signature)
		if err != nil {
			// 購読できなくてもポーリングで続行する
			w.logger.Warn("[watcher] signature subscribe failed; polling only",
				zap.String("signature", maskShort(signature)),
				zap.Error(err),
			)
		} else {
			notify = ch
			defer unsubscribe()
		}
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	polls := 0
	finish := func(st TxStatus) WatchResult {
		res := statusToResult(st)
		res.Polls = polls
		res.Elapsed = time.Since(started)
		return res
	}

	poll := func() (WatchResult, bool) {
		polls++
		st, err := w.source.TransactionStatus(watchCtx, signature)
		if err != nil {
			if watchCtx.Err() == nil {
				w.logger.Warn("[watcher] status poll failed",
					zap.String("signature", maskShort(signature)),
					zap.Int("poll", polls),
					zap.Error(err),
				)
			}
			return WatchResult{}, false
		}
		if !definitive(st) {
			return WatchResult{}, false
		}
		return finish(st), true
	}

	if res, done := poll(); done {
		return res
	}

	for {
		select {
		case <-watchCtx.Done():
			w.logger.Info("[watcher] deadline reached without definitive status",
				zap.String("signature", maskShort(signature)),
				zap.Duration("deadline", deadline),
				zap.Int("polls", polls),
			)
			return WatchResult{
				State:   WatchTimedOut,
				Polls:   polls,
				Elapsed: time.Since(started),
			}

		case st, ok := <-notify:
			if !ok {
				notify = nil
				continue
			}
			if definitive(st) {
				return finish(st)
			}

		case <-ticker.C:
			if res, done := poll(); done {
				return res
			}
		}
	}
}

func definitive(st TxStatus) bool {
	return st.State == TxConfirmed || st.State == TxConfirmedWithError
}

func statusToResult(st TxStatus) WatchResult {
	switch st.State {
	case TxConfirmed:
		return WatchResult{State: WatchConfirmed, Slot: st.Slot}
	case TxConfirmedWithError:
		ce := st.Err
		if ce == nil {
			ce = &mintdom.ChainError{Raw: "unknown on-chain error"}
		}
		return WatchResult{State: WatchErroredOnChain, Slot: st.Slot, Err: ce}
	default:
		return WatchResult{State: WatchWatching, Slot: st.Slot}
	}
}
