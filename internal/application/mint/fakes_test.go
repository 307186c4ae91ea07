package mint

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	identitydom "candymint/internal/domain/identity"
	issuancedom "candymint/internal/domain/issuance"
	mintdom "candymint/internal/domain/mint"
)

// ------------------------------------------------------------
// Port fakes
// ------------------------------------------------------------

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func activeState() issuancedom.State {
	return issuancedom.State{
		Address:        "CandyMachine1111111111111111111111111111111",
		ProgramAddress: "cndy3Z4yapfJBmL3ShUp5exZKqR3z33thTzeNMm2gRZ",
		Treasury:       "Treasury111111111111111111111111111111111111",
		TotalSupply:    10,
		ItemsRedeemed:  4,
		Remaining:      6,
		Price:          decimal.RequireFromString("0.5"),
		SaleStart:      testNow.Add(-time.Hour),
	}
}

type fakeStates struct {
	mu       sync.Mutex
	states   []issuancedom.State // 呼び出しごとに先頭から返す（最後の要素は繰り返し）
	err      error
	refreshs int
}

func (f *fakeStates) Refresh(_ context.Context) (issuancedom.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshs++
	if f.err != nil {
		return issuancedom.State{}, f.err
	}
	st := f.states[0]
	if len(f.states) > 1 {
		f.states = f.states[1:]
	}
	return st, nil
}

func (f *fakeStates) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshs
}

type fakeWallet struct {
	pub    string
	reject bool
}

func (w fakeWallet) PublicKey() string { return w.pub }

func (w fakeWallet) SignMessage(_ context.Context, _ []byte) ([]byte, error) {
	if w.reject {
		return nil, mintdom.ErrUserRejected
	}
	return make([]byte, 64), nil
}

type fakeWallets map[string]Wallet

func (f fakeWallets) Wallet(_ context.Context, id string) (Wallet, error) {
	w, ok := f[id]
	if !ok {
		return nil, mintdom.ErrWalletNotFound
	}
	return w, nil
}

type fakeTx struct{ mint string }

func (t fakeTx) MintAddress() string { return t.mint }

type fakeBuilder struct {
	calls atomic.Int32
	last  BuildRequest
	err   error
}

func (b *fakeBuilder) Build(_ context.Context, req BuildRequest) (UnsignedTransaction, error) {
	b.calls.Add(1)
	b.last = req
	if b.err != nil {
		return nil, b.err
	}
	return fakeTx{mint: "Mint1111111111111111111111111111111111111111"}, nil
}

type fakeSubmitter struct {
	calls   atomic.Int32
	sent    atomic.Int32
	txID    string
	err     error
	block   chan struct{} // non-nil なら close されるまで待つ
	entered chan struct{}
}

func (s *fakeSubmitter) Submit(ctx context.Context, _ UnsignedTransaction, w Wallet) (string, error) {
	s.calls.Add(1)
	if s.entered != nil {
		close(s.entered)
	}
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if _, err := w.SignMessage(ctx, []byte("msg")); err != nil {
		return "", err
	}
	if s.err != nil {
		return "", s.err
	}
	s.sent.Add(1)
	return s.txID, nil
}

// fakeStatus はポーリングごとに statuses を順に返します（最後の要素は繰り返し）。
type fakeStatus struct {
	mu       sync.Mutex
	statuses []TxStatus
	errs     []error
	polls    int
}

func (f *fakeStatus) TransactionStatus(_ context.Context, _ string) (TxStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.polls
	f.polls++
	if i < len(f.errs) && f.errs[i] != nil {
		return TxStatus{}, f.errs[i]
	}
	if len(f.statuses) == 0 {
		return TxStatus{State: TxNotFound}, nil
	}
	if i >= len(f.statuses) {
		i = len(f.statuses) - 1
	}
	return f.statuses[i], nil
}

func (f *fakeStatus) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls
}

type fakeNotifier struct {
	ch        chan TxStatus
	err       error
	cancelled atomic.Bool
}

func (n *fakeNotifier) Subscribe(_ context.Context, _ string) (<-chan TxStatus, func(), error) {
	if n.err != nil {
		return nil, nil, n.err
	}
	return n.ch, func() { n.cancelled.Store(true) }, nil
}

type fakeGate struct {
	calls atomic.Int32
	cred  identitydom.Credential
	err   error
}

func (g *fakeGate) Obtain(_ context.Context, walletID, network string) (identitydom.Credential, error) {
	g.calls.Add(1)
	if g.err != nil {
		return identitydom.Credential{}, g.err
	}
	c := g.cred
	c.WalletID = walletID
	c.Network = network
	return c, nil
}

type recordingObserver struct {
	mu     sync.Mutex
	events []Event
}

func (o *recordingObserver) OnEvent(_ context.Context, ev Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, ev)
}

func (o *recordingObserver) statuses() []mintdom.Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]mintdom.Status, 0, len(o.events))
	for _, ev := range o.events {
		out = append(out, ev.Status)
	}
	return out
}
