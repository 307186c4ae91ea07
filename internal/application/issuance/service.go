// internal/application/issuance/service.go
package issuance

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	issuancedom "candymint/internal/domain/issuance"
)

var ErrNotConfigured = errors.New("issuance service: not configured")

// Service は 1 台の Candy Machine の IssuanceState を読み取り、
// 最新スナップショットを atomic に差し替えて保持します。
// 試行中のミントとは状態を共有しない（読み取り専用の共有データ）。
type Service struct {
	reader   issuancedom.Reader
	issuance string
	logger   *zap.Logger
	snapshot atomic.Pointer[issuancedom.State]
}

func NewService(reader issuancedom.Reader, issuanceID string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		reader:   reader,
		issuance: strings.TrimSpace(issuanceID),
		logger:   logger,
	}
}

// IssuanceID は監視対象の Candy Machine アドレスです。
func (s *Service) IssuanceID() string {
	return s.issuance
}

// Refresh は必ずリモートから読み直し、成功した場合のみキャッシュを差し替えます。
func (s *Service) Refresh(ctx context.Context) (issuancedom.State, error) {
	if s == nil || s.reader == nil || s.issuance == "" {
		return issuancedom.State{}, ErrNotConfigured
	}

	st, err := s.reader.Read(ctx, s.issuance)
	if err != nil {
		return issuancedom.State{}, err
	}

	s.snapshot.Store(&st)
	return st, nil
}

// Get はキャッシュ済みの状態を返し、未取得なら読み込みます。
func (s *Service) Get(ctx context.Context) (issuancedom.State, error) {
	if st, ok := s.Current(); ok {
		return st, nil
	}
	return s.Refresh(ctx)
}

// Current はキャッシュ済みのスナップショットを返します（ネットワークアクセスなし）。
func (s *Service) Current() (issuancedom.State, bool) {
	p := s.snapshot.Load()
	if p == nil {
		return issuancedom.State{}, false
	}
	return *p, true
}

// Run は interval ごとに Refresh する常駐ループです。ctx キャンセルで終了します。
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	s.logger.Info("[issuance] starting state refresher",
		zap.String("candyMachine", s.issuance),
		zap.Duration("interval", interval),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			st, err := s.Refresh(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.logger.Warn("[issuance] refresh failed", zap.Error(err))
				continue
			}
			s.logger.Debug("[issuance] refreshed",
				zap.Uint64("remaining", st.Remaining),
				zap.Uint64("totalSupply", st.TotalSupply),
			)

		case <-ctx.Done():
			s.logger.Info("[issuance] context cancelled, stopping state refresher")
			return
		}
	}
}
