// internal/application/mint/guard.go
package mint

import (
	"context"
	"strings"
	"sync"
	"time"

	mintdom "candymint/internal/domain/mint"
)

// MemoryGuard はプロセス内の InFlightGuard 実装です（mutex + map の compare-and-set）。
// 複数レプリカで動かす場合は infra/redis の実装を使う。
type MemoryGuard struct {
	mu       sync.Mutex
	inFlight map[string]struct{}
}

var _ mintdom.InFlightGuard = (*MemoryGuard)(nil)

func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{inFlight: make(map[string]struct{})}
}

// TryAcquire は ttl を無視する（プロセスが落ちればフラグも消えるため）。
func (g *MemoryGuard) TryAcquire(_ context.Context, walletID string, _ time.Duration) (func(), error) {
	key := strings.TrimSpace(walletID)
	if key == "" {
		return nil, mintdom.ErrInvalidWalletID
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, busy := g.inFlight[key]; busy {
		return nil, mintdom.ErrAlreadyInFlight
	}
	g.inFlight[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.inFlight, key)
			g.mu.Unlock()
		})
	}, nil
}

// InFlight は walletID が試行中かを返します。
func (g *MemoryGuard) InFlight(walletID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, busy := g.inFlight[strings.TrimSpace(walletID)]
	return busy
}
