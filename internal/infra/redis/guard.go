// internal/infra/redis/guard.go
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	mintdom "candymint/internal/domain/mint"
)

const defaultKeyPrefix = "candymint:inflight:"

// トークンが一致する場合のみ削除する（TTL 失効後に他の試行が取った鍵を消さない）
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Connect initializes a Redis client from URL or host:port input.
func Connect(_ context.Context, redisURL string) (*goredis.Client, error) {
	u := strings.TrimSpace(redisURL)
	if u == "" {
		return nil, errors.New("redis: url is empty")
	}
	if strings.HasPrefix(u, "redis://") || strings.HasPrefix(u, "rediss://") {
		opt, err := goredis.ParseURL(u)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return goredis.NewClient(opt), nil
	}
	return goredis.NewClient(&goredis.Options{Addr: u}), nil
}

// InFlightGuard は複数レプリカ間で walletId ごとの試行を 1 つに制限します。
//
//	SET candymint:inflight:<wallet> <token> NX PX <ttl>
//
// ttl はプロセスが解放前に落ちた場合の自動失効用。
type InFlightGuard struct {
	client    goredis.Cmdable
	keyPrefix string
	logger    *zap.Logger
}

var _ mintdom.InFlightGuard = (*InFlightGuard)(nil)

func NewInFlightGuard(client goredis.Cmdable, logger *zap.Logger) *InFlightGuard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InFlightGuard{
		client:    client,
		keyPrefix: defaultKeyPrefix,
		logger:    logger,
	}
}

func (g *InFlightGuard) key(walletID string) string {
	return g.keyPrefix + walletID
}

func (g *InFlightGuard) TryAcquire(ctx context.Context, walletID string, ttl time.Duration) (func(), error) {
	wid := strings.TrimSpace(walletID)
	if wid == "" {
		return nil, mintdom.ErrInvalidWalletID
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}

	token := uuid.NewString()
	ok, err := g.client.SetNX(ctx, g.key(wid), token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis guard: setnx: %w", err)
	}
	if !ok {
		return nil, mintdom.ErrAlreadyInFlight
	}

	var once sync.Once
	release := func() {
		once.Do(func() { g.release(wid, token) })
	}
	return release, nil
}

func (g *InFlightGuard) release(wid, token string) {
	// 呼び出し元 ctx がキャンセル済みでも解放できるよう独立した ctx を使う
	rctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := releaseScript.Run(rctx, g.client, []string{g.key(wid)}, token).Err(); err != nil {
		g.logger.Warn("[guard] redis release failed", zap.String("key", g.key(wid)), zap.Error(err))
	}
}
