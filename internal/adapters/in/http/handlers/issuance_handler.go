// internal/adapters/in/http/handlers/issuance_handler.go
package handlers

import (
	"context"
	"net/http"
	"time"

	issuancedom "candymint/internal/domain/issuance"
)

// IssuanceStates は IssuanceHandler が必要とする issuance.Service の部分集合です。
type IssuanceStates interface {
	Get(ctx context.Context) (issuancedom.State, error)
	Refresh(ctx context.Context) (issuancedom.State, error)
}

// IssuanceHandler は /v1/issuance を担当します。
type IssuanceHandler struct {
	states IssuanceStates
	now    func() time.Time
}

func NewIssuanceHandler(states IssuanceStates) *IssuanceHandler {
	return &IssuanceHandler{states: states, now: time.Now}
}

type issuanceResponse struct {
	State    issuancedom.State `json:"state"`
	IsActive bool              `json:"isActive"`
	SoldOut  bool              `json:"soldOut"`
}

// GET /v1/issuance
func (h *IssuanceHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.states == nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "issuance service not configured"})
		return
	}
	st, err := h.states.Get(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	h.write(w, st)
}

// POST /v1/issuance/refresh
func (h *IssuanceHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.states == nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "issuance service not configured"})
		return
	}
	st, err := h.states.Refresh(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	h.write(w, st)
}

func (h *IssuanceHandler) write(w http.ResponseWriter, st issuancedom.State) {
	writeJSON(w, http.StatusOK, issuanceResponse{
		State:    st,
		IsActive: st.IsActive(h.now()),
		SoldOut:  st.SoldOut(),
	})
}
