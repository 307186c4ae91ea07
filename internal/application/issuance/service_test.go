package issuance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	issuancedom "candymint/internal/domain/issuance"
)

type fakeReader struct {
	mu    sync.Mutex
	calls int
	ids   []string
	st    issuancedom.State
	err   error
}

func (r *fakeReader) Read(_ context.Context, id string) (issuancedom.State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.ids = append(r.ids, id)
	if r.err != nil {
		return issuancedom.State{}, r.err
	}
	st := r.st
	st.ItemsRedeemed = uint64(r.calls)
	return st, nil
}

func (r *fakeReader) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func TestRefreshAlwaysReadsRemote(t *testing.T) {
	r := &fakeReader{st: issuancedom.State{TotalSupply: 10, Remaining: 5}}
	s := NewService(r, " CandyMachine ", nil)

	for i := 1; i <= 3; i++ {
		st, err := s.Refresh(context.Background())
		if err != nil {
			t.Fatalf("Refresh: %v", err)
		}
		if st.ItemsRedeemed != uint64(i) {
			t.Fatalf("refresh %d returned cached state", i)
		}
	}
	if r.ids[0] != "CandyMachine" || s.IssuanceID() != "CandyMachine" {
		t.Fatalf("issuance id not trimmed: read %q, service %q", r.ids[0], s.IssuanceID())
	}
}

func TestGetUsesSnapshot(t *testing.T) {
	r := &fakeReader{st: issuancedom.State{TotalSupply: 10, Remaining: 5}}
	s := NewService(r, "CandyMachine", nil)

	if _, ok := s.Current(); ok {
		t.Fatalf("snapshot should be empty before first read")
	}
	if _, err := s.Get(context.Background()); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if _, err := s.Get(context.Background()); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if r.count() != 1 {
		t.Fatalf("reads = %d, want 1", r.count())
	}
}

func TestRefreshFailureKeepsSnapshot(t *testing.T) {
	r := &fakeReader{st: issuancedom.State{TotalSupply: 10, Remaining: 5}}
	s := NewService(r, "CandyMachine", nil)

	if _, err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	r.err = issuancedom.ErrRemoteUnavailable
	if _, err := s.Refresh(context.Background()); !errors.Is(err, issuancedom.ErrRemoteUnavailable) {
		t.Fatalf("err = %v, want ErrRemoteUnavailable", err)
	}
	st, ok := s.Current()
	if !ok || st.ItemsRedeemed != 1 {
		t.Fatalf("snapshot lost after failed refresh: %+v", st)
	}
}

func TestRefreshNotConfigured(t *testing.T) {
	if _, err := NewService(nil, "x", nil).Refresh(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("err = %v, want ErrNotConfigured", err)
	}
	if _, err := NewService(&fakeReader{}, "  ", nil).Refresh(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("err = %v, want ErrNotConfigured", err)
	}
}

func TestRunRefreshesUntilCancelled(t *testing.T) {
	r := &fakeReader{st: issuancedom.State{TotalSupply: 10, Remaining: 5}}
	s := NewService(r, "CandyMachine", nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for r.count() < 2 {
		select {
		case <-deadline:
			t.Fatalf("refresher did not tick")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	<-done
}
