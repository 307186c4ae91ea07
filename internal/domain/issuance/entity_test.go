package issuance

import (
	"testing"
	"time"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestIsActive(t *testing.T) {
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	cases := []struct {
		name  string
		state State
		want  bool
	}{
		{"live", State{TotalSupply: 10, Remaining: 3, SaleStart: past}, true},
		{"starts exactly now", State{TotalSupply: 10, Remaining: 3, SaleStart: now}, true},
		{"not started", State{TotalSupply: 10, Remaining: 3, SaleStart: future}, false},
		{"go live unset", State{TotalSupply: 10, Remaining: 3}, false},
		{"sold out", State{TotalSupply: 10, Remaining: 0, SaleStart: past}, false},
		{"ended", State{TotalSupply: 10, Remaining: 3, SaleStart: past, SaleEnd: &past}, false},
		{"ends exactly now", State{TotalSupply: 10, Remaining: 3, SaleStart: past, SaleEnd: &now}, false},
		{"ends later", State{TotalSupply: 10, Remaining: 3, SaleStart: past, SaleEnd: &future}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.state.IsActive(now); got != tc.want {
				t.Fatalf("IsActive = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestIsActiveImpliesStartedAndRemaining(t *testing.T) {
	for remaining := uint64(0); remaining < 3; remaining++ {
		for offset := -2; offset <= 2; offset++ {
			st := State{TotalSupply: 3, Remaining: remaining, SaleStart: now.Add(time.Duration(offset) * time.Minute)}
			if st.IsActive(now) && (st.Remaining == 0 || now.Before(st.SaleStart)) {
				t.Fatalf("IsActive true for %+v", st)
			}
		}
	}
}

func TestRequiresIdentity(t *testing.T) {
	if (State{}).RequiresIdentity() {
		t.Fatalf("no gatekeeper should not require identity")
	}
	if (State{Gatekeeper: &Gatekeeper{}}).RequiresIdentity() {
		t.Fatalf("empty network should not require identity")
	}
	if !(State{Gatekeeper: &Gatekeeper{Network: "net"}}).RequiresIdentity() {
		t.Fatalf("gatekeeper network should require identity")
	}
}

func TestValidate(t *testing.T) {
	if err := (State{TotalSupply: 1, Remaining: 2}).Validate(); err != ErrInvalidSupply {
		t.Fatalf("Validate err = %v, want ErrInvalidSupply", err)
	}
	if err := (State{TotalSupply: 2, Remaining: 2}).Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}
