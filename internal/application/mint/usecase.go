// internal/application/mint/usecase.go
package mint

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	identitydom "candymint/internal/domain/identity"
	issuancedom "candymint/internal/domain/issuance"
	mintdom "candymint/internal/domain/mint"
)

// ============================================================
// MintUsecase（MintOrchestrator）
// ============================================================
//
// 外部から見える唯一の操作「1 枚ミントを試みる」を組み立てる。
//
//	guard -> state (fresh) -> isActive -> identity? -> build -> submit -> watch -> classify
//
// 自動リトライは一切しない（有限で競合するリソースに対する二重支払いを避けるため）。
// リトライは常にユーザーによる新しい AttemptMint 呼び出し。

const (
	DefaultConfirmTimeout = 30 * time.Second
	DefaultGuardTTL       = 10 * time.Minute

	// Identity 資格情報の失効マージン
	credentialSkew = 5 * time.Second
)

// Config は MintUsecase の設定です。
type Config struct {
	ConfirmTimeout time.Duration
	GuardTTL       time.Duration
}

// Deps は MintUsecase の依存です。Gate / Observer は任意。
type Deps struct {
	States    StateProvider
	Wallets   WalletProvider
	Builder   MintTxBuilder
	Submitter TransactionSubmitter
	Watcher   *ConfirmationWatcher
	Guard     mintdom.InFlightGuard
	Gate      identitydom.Gate
	Observer  Observer
	Logger    *zap.Logger

	// テスト用に差し替え可能
	Now   func() time.Time
	NewID func() string
}

type MintUsecase struct {
	cfg Config

	states    StateProvider
	wallets   WalletProvider
	builder   MintTxBuilder
	submitter TransactionSubmitter
	watcher   *ConfirmationWatcher
	guard     mintdom.InFlightGuard
	gate      identitydom.Gate
	observer  Observer
	logger    *zap.Logger

	now   func() time.Time
	newID func() string

	// PrefetchCredential で先取りした資格情報（次の 1 試行でだけ消費する）
	prefetchMu sync.Mutex
	prefetched map[string]identitydom.Credential
}

func NewMintUsecase(cfg Config, deps Deps) *MintUsecase {
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = DefaultConfirmTimeout
	}
	if cfg.GuardTTL <= 0 {
		cfg.GuardTTL = DefaultGuardTTL
	}

	uc := &MintUsecase{
		cfg:        cfg,
		states:     deps.States,
		wallets:    deps.Wallets,
		builder:    deps.Builder,
		submitter:  deps.Submitter,
		watcher:    deps.Watcher,
		guard:      deps.Guard,
		gate:       deps.Gate,
		observer:   deps.Observer,
		logger:     deps.Logger,
		now:        deps.Now,
		newID:      deps.NewID,
		prefetched: make(map[string]identitydom.Credential),
	}
	if uc.guard == nil {
		uc.guard = NewMemoryGuard()
	}
	if uc.observer == nil {
		uc.observer = Observers(nil)
	}
	if uc.logger == nil {
		uc.logger = zap.NewNop()
	}
	if uc.now == nil {
		uc.now = time.Now
	}
	if uc.newID == nil {
		uc.newID = func() string { return uuid.NewString() }
	}
	return uc
}

// ConfirmTimeout は既定の確定待ち期限です。
func (u *MintUsecase) ConfirmTimeout() time.Duration {
	return u.cfg.ConfirmTimeout
}

// AttemptMint は既定の期限で 1 枚ミントを試みます。
func (u *MintUsecase) AttemptMint(ctx context.Context, walletID string) (mintdom.Outcome, error) {
	return u.AttemptMintWithTimeout(ctx, walletID, u.cfg.ConfirmTimeout)
}

// AttemptMintWithTimeout は確定待ち期限を呼び出し側で指定して 1 枚ミントを試みます。
//
// 戻り値 error は「試行を開始しなかった」場合のみ:
//   - mintdom.ErrInvalidWalletID
//   - mintdom.ErrWalletNotFound（署名できるウォレットが登録されていない）
//   - mintdom.ErrAlreadyInFlight（ネットワークアクセスなしで同期的に拒否）
//
// それ以外のサブステップの失敗はすべて Outcome に分類して返す。
func (u *MintUsecase) AttemptMintWithTimeout(
	ctx context.Context,
	walletID string,
	timeout time.Duration,
) (outcome mintdom.Outcome, err error) {
	wid := strings.TrimSpace(walletID)
	if wid == "" {
		return mintdom.Outcome{}, mintdom.ErrInvalidWalletID
	}
	if timeout <= 0 {
		timeout = u.cfg.ConfirmTimeout
	}

	release, gerr := u.guard.TryAcquire(ctx, wid, u.cfg.GuardTTL)
	if gerr != nil {
		if errors.Is(gerr, mintdom.ErrAlreadyInFlight) || errors.Is(gerr, mintdom.ErrInvalidWalletID) {
			return mintdom.Outcome{}, gerr
		}
		// 排他を保証できない状態では送信しない
		u.logger.Error("[mint] in-flight guard unavailable", zap.String("wallet", maskShort(wid)), zap.Error(gerr))
		return mintdom.NewOutcome(mintdom.OutcomeGenericFailure), nil
	}
	// どの経路（panic を含む）でも必ず解放する
	defer release()

	var attempt *mintdom.Attempt
	defer func() {
		if rec := recover(); rec != nil {
			u.logger.Error("[mint] PANIC during attempt", zap.Any("panic", rec), zap.String("wallet", maskShort(wid)))
			outcome = mintdom.NewOutcome(mintdom.OutcomeGenericFailure)
			err = nil
			if attempt != nil && !attempt.Status.Terminal() {
				u.finish(ctx, attempt, Result{Err: fmt.Errorf("panic: %v", rec)}, outcome)
			}
		}
	}()

	wallet, werr := u.wallets.Wallet(ctx, wid)
	if werr != nil {
		if errors.Is(werr, mintdom.ErrWalletNotFound) {
			return mintdom.Outcome{}, werr
		}
		u.logger.Warn("[mint] wallet lookup failed", zap.String("wallet", maskShort(wid)), zap.Error(werr))
		return Classify(Result{Stage: StageRead, Err: werr}), nil
	}

	return u.run(ctx, wallet, wid, timeout, &attempt), nil
}

func (u *MintUsecase) run(ctx context.Context, wallet Wallet, walletID string, timeout time.Duration, out **mintdom.Attempt) mintdom.Outcome {
	// 1) IssuanceState はキャッシュではなく毎回読み直す
	state, err := u.states.Refresh(ctx)
	if err != nil {
		u.logger.Warn("[mint] issuance state read failed", zap.Error(err))
		return Classify(Result{Stage: StageRead, Err: err})
	}

	a, err := mintdom.NewAttempt(u.newID(), walletID, state, u.now())
	if err != nil {
		return Classify(Result{Stage: StageRead, Err: err})
	}
	attempt := &a
	*out = attempt
	u.emit(ctx, attempt)

	// 2) isActive=false ならネットワーク往復を無駄にせずローカルで拒否
	now := u.now()
	if !state.IsActive(now) {
		o := localRejection(state, now)
		u.finish(ctx, attempt, Result{Stage: StageRead}, o)
		return o
	}

	// 3) Identity Gate（構成が要求する場合のみ）
	var cred *identitydom.Credential
	if state.RequiresIdentity() {
		c, err := u.credentialFor(ctx, walletID, state.Gatekeeper.Network)
		if err != nil {
			return u.fail(ctx, attempt, Result{Stage: StageIdentity, Err: err})
		}
		cred = &c
	}

	// 4) build
	tx, err := u.builder.Build(ctx, BuildRequest{
		State:      state,
		Wallet:     wallet.PublicKey(),
		Credential: cred,
	})
	if err != nil {
		return u.fail(ctx, attempt, Result{Stage: StageBuild, Err: err})
	}

	// 5) submit（署名 + ブロードキャスト）
	txID, err := u.submitter.Submit(ctx, tx, wallet)
	if err != nil {
		return u.fail(ctx, attempt, Result{Stage: StageSubmit, Err: err})
	}
	if err := attempt.MarkSubmitted(txID); err != nil {
		return u.fail(ctx, attempt, Result{Stage: StageSubmit, Err: err})
	}
	u.logger.Info("[mint] submitted",
		zap.String("attemptId", attempt.ID),
		zap.String("tx", maskShort(txID)),
		zap.String("mint", maskShort(tx.MintAddress())),
	)
	u.emit(ctx, attempt)

	// 6) watch -> classify
	watch := u.watcher.Watch(ctx, txID, timeout)
	r := Result{Stage: StageWatch, TransactionID: txID, Watch: &watch}
	o := Classify(r)
	u.finish(ctx, attempt, r, o)
	return o
}

func (u *MintUsecase) fail(ctx context.Context, a *mintdom.Attempt, r Result) mintdom.Outcome {
	o := Classify(r)
	u.logger.Warn("[mint] attempt failed",
		zap.String("attemptId", a.ID),
		zap.String("stage", string(r.Stage)),
		zap.String("outcome", string(o.Kind)),
		zap.Error(r.Err),
	)
	u.finish(ctx, a, r, o)
	return o
}

func (u *MintUsecase) finish(ctx context.Context, a *mintdom.Attempt, r Result, o mintdom.Outcome) {
	if err := a.Finish(StatusFor(o), o, u.now()); err != nil {
		u.logger.Warn("[mint] attempt finish rejected", zap.String("attemptId", a.ID), zap.Error(err))
		return
	}
	u.emit(ctx, a)

	// 売り切れを観測したら表示側のスナップショットも更新する
	if o.Kind == mintdom.OutcomeSoldOut && r.Stage != StageRead {
		if _, err := u.states.Refresh(ctx); err != nil {
			u.logger.Warn("[mint] state refresh after sold out failed", zap.Error(err))
		}
	}
}

func (u *MintUsecase) emit(ctx context.Context, a *mintdom.Attempt) {
	u.observer.OnEvent(ctx, eventFromAttempt(*a, u.now()))
}

// localRejection は isActive=false の理由を Outcome にします。
func localRejection(st issuancedom.State, now time.Time) mintdom.Outcome {
	switch {
	case st.SoldOut():
		return mintdom.NewOutcome(mintdom.OutcomeSoldOut)
	case !st.Started(now):
		return mintdom.NewOutcome(mintdom.OutcomeSaleNotStarted)
	case st.Ended(now):
		return mintdom.NewOutcome(mintdom.OutcomeGenericFailure).WithMessage(mintdom.MessageSaleEnded)
	default:
		return mintdom.NewOutcome(mintdom.OutcomeGenericFailure)
	}
}

// ============================================================
// Identity Gate
// ============================================================

// PrefetchCredential はミントボタンが押される前に資格情報を取得しておきます。
// ユーザー操作を待つ可能性があるため ctx 以外で時間を制限しない。
// 取得した資格情報は次の 1 試行でだけ使われ、古ければ試行時に取り直す。
func (u *MintUsecase) PrefetchCredential(ctx context.Context, walletID string) (identitydom.Credential, error) {
	wid := strings.TrimSpace(walletID)
	if wid == "" {
		return identitydom.Credential{}, mintdom.ErrInvalidWalletID
	}

	state, err := u.states.Refresh(ctx)
	if err != nil {
		return identitydom.Credential{}, err
	}
	if !state.RequiresIdentity() {
		return identitydom.Credential{}, nil
	}

	c, err := u.obtain(ctx, wid, state.Gatekeeper.Network)
	if err != nil {
		return identitydom.Credential{}, err
	}

	u.prefetchMu.Lock()
	u.prefetched[wid] = c
	u.prefetchMu.Unlock()
	return c, nil
}

func (u *MintUsecase) credentialFor(ctx context.Context, walletID, network string) (identitydom.Credential, error) {
	u.prefetchMu.Lock()
	c, ok := u.prefetched[walletID]
	delete(u.prefetched, walletID)
	u.prefetchMu.Unlock()

	if ok && c.Matches(walletID, network) && c.Fresh(u.now(), credentialSkew) {
		return c, nil
	}
	return u.obtain(ctx, walletID, network)
}

func (u *MintUsecase) obtain(ctx context.Context, walletID, network string) (identitydom.Credential, error) {
	if u.gate == nil {
		return identitydom.Credential{}, fmt.Errorf("%w: identity gate not configured", mintdom.ErrIdentityDenied)
	}
	c, err := u.gate.Obtain(ctx, walletID, network)
	if err != nil {
		if errors.Is(err, mintdom.ErrRemoteUnavailable) {
			return identitydom.Credential{}, err
		}
		return identitydom.Credential{}, fmt.Errorf("%w: %v", mintdom.ErrIdentityDenied, err)
	}
	return c, nil
}
