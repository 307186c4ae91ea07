package solana

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/blocto/solana-go-sdk/types"

	mintapp "candymint/internal/application/mint"
	mintdom "candymint/internal/domain/mint"
)

type rpcStub struct {
	mu   sync.Mutex
	reqs []rpcRequest
}

func (s *rpcStub) requests() []rpcRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]rpcRequest(nil), s.reqs...)
}

// jsonRPCServer は method ごとに固定の JSON を返す RPC ノードのスタブです。
func jsonRPCServer(t *testing.T, responses map[string]string) (*httptest.Server, *rpcStub) {
	t.Helper()
	stub := &rpcStub{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		stub.mu.Lock()
		stub.reqs = append(stub.reqs, req)
		stub.mu.Unlock()
		body, ok := responses[req.Method]
		if !ok {
			http.Error(w, "unexpected method "+req.Method, http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, stub
}

func TestParseCommitment(t *testing.T) {
	cases := map[string]Commitment{
		"processed":  CommitmentProcessed,
		" FINALIZED": CommitmentFinalized,
		"confirmed":  CommitmentConfirmed,
		"":           CommitmentConfirmed,
		"bogus":      CommitmentConfirmed,
	}
	for in, want := range cases {
		if got := ParseCommitment(in); got != want {
			t.Fatalf("ParseCommitment(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestStatusFromCommitment(t *testing.T) {
	cases := []struct {
		required Commitment
		observed string
		rawErr   string
		want     mintapp.TxState
	}{
		{CommitmentConfirmed, "processed", "null", mintapp.TxPending},
		{CommitmentConfirmed, "confirmed", "null", mintapp.TxConfirmed},
		{CommitmentConfirmed, "finalized", "null", mintapp.TxConfirmed},
		{CommitmentFinalized, "confirmed", "null", mintapp.TxPending},
		{CommitmentConfirmed, "", "null", mintapp.TxPending},
		{CommitmentConfirmed, "confirmed", `{"InstructionError":[4,{"Custom":311}]}`, mintapp.TxConfirmedWithError},
		{CommitmentFinalized, "confirmed", `{"InstructionError":[4,{"Custom":311}]}`, mintapp.TxPending},
	}
	for _, tc := range cases {
		got := statusFrom(tc.required, tc.observed, 10, json.RawMessage(tc.rawErr))
		if got.State != tc.want {
			t.Fatalf("statusFrom(%s, %q, %s) = %s, want %s", tc.required, tc.observed, tc.rawErr, got.State, tc.want)
		}
	}
}

func TestTransactionStatus(t *testing.T) {
	srv, seen := jsonRPCServer(t, map[string]string{
		"getSignatureStatuses": `{"jsonrpc":"2.0","id":1,"result":{"context":{"slot":99},"value":[
			{"slot":98,"confirmations":null,"err":{"InstructionError":[4,{"Custom":312}]},"confirmationStatus":"confirmed"}
		]}}`,
	})
	c := NewRPCClient(srv.URL, CommitmentConfirmed, time.Second)

	st, err := c.TransactionStatus(context.Background(), "sig")
	if err != nil {
		t.Fatalf("TransactionStatus: %v", err)
	}
	if st.State != mintapp.TxConfirmedWithError || st.Slot != 98 {
		t.Fatalf("status = %+v", st)
	}
	if st.Err == nil || st.Err.Code != 312 || st.Err.InstructionIndex != 4 {
		t.Fatalf("chain error = %+v", st.Err)
	}

	req := seen.requests()[0]
	params, _ := json.Marshal(req.Params)
	if string(params) != `[["sig"],{"searchTransactionHistory":true}]` {
		t.Fatalf("params = %s", params)
	}
}

func TestTransactionStatusNotFound(t *testing.T) {
	srv, _ := jsonRPCServer(t, map[string]string{
		"getSignatureStatuses": `{"jsonrpc":"2.0","id":1,"result":{"context":{"slot":99},"value":[null]}}`,
	})
	c := NewRPCClient(srv.URL, CommitmentConfirmed, time.Second)

	st, err := c.TransactionStatus(context.Background(), "sig")
	if err != nil {
		t.Fatalf("TransactionStatus: %v", err)
	}
	if st.State != mintapp.TxNotFound {
		t.Fatalf("state = %s, want not_found", st.State)
	}

	if _, err := c.TransactionStatus(context.Background(), " "); !errors.Is(err, mintdom.ErrEmptyTransactionID) {
		t.Fatalf("empty signature err = %v", err)
	}
}

func TestRPCFailuresAreRemoteUnavailable(t *testing.T) {
	srv, _ := jsonRPCServer(t, map[string]string{
		"getSignatureStatuses": `{"jsonrpc":"2.0","id":1,"error":{"code":-32005,"message":"Node is behind"}}`,
	})
	c := NewRPCClient(srv.URL, CommitmentConfirmed, time.Second)
	if _, err := c.TransactionStatus(context.Background(), "sig"); !IsRemoteUnavailable(err) {
		t.Fatalf("rpc error = %v, want remote unavailable", err)
	}

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer down.Close()
	c = NewRPCClient(down.URL, CommitmentConfirmed, time.Second)
	if _, err := c.TransactionStatus(context.Background(), "sig"); !IsRemoteUnavailable(err) {
		t.Fatalf("http 502 = %v, want remote unavailable", err)
	}
}

func signedSample(t *testing.T) types.Transaction {
	t.Helper()
	payer := types.NewAccount()
	u := unsignedFor(t, payer)
	tx, err := signTransaction(context.Background(), u, NewKeypairWallet(payer))
	if err != nil {
		t.Fatalf("signTransaction: %v", err)
	}
	return tx
}

func TestSendTransaction(t *testing.T) {
	srv, seen := jsonRPCServer(t, map[string]string{
		"sendTransaction": `{"jsonrpc":"2.0","id":1,"result":"` + validSignature() + `"}`,
	})
	c := NewRPCClient(srv.URL, CommitmentConfirmed, time.Second)

	sig, err := c.SendTransaction(context.Background(), signedSample(t))
	if err != nil {
		t.Fatalf("SendTransaction: %v", err)
	}
	if sig != validSignature() {
		t.Fatalf("sig = %s", sig)
	}

	params, _ := json.Marshal(seen.requests()[0].Params)
	var decoded []json.RawMessage
	if err := json.Unmarshal(params, &decoded); err != nil || len(decoded) != 2 {
		t.Fatalf("params = %s", params)
	}
	var opts map[string]any
	if err := json.Unmarshal(decoded[1], &opts); err != nil {
		t.Fatalf("options: %v", err)
	}
	if opts["encoding"] != "base64" || opts["maxRetries"] != float64(0) {
		t.Fatalf("options = %v", opts)
	}
}

func TestSendTransactionPreflightFailure(t *testing.T) {
	srv, _ := jsonRPCServer(t, map[string]string{
		"sendTransaction": `{"jsonrpc":"2.0","id":1,"error":{
			"code":-32002,
			"message":"Transaction simulation failed: Error processing Instruction 4: custom program error: 0x137",
			"data":{"err":{"InstructionError":[4,{"Custom":311}]},"logs":["Program log: CandyMachineEmpty"]}
		}}`,
	})
	c := NewRPCClient(srv.URL, CommitmentConfirmed, time.Second)

	_, err := c.SendTransaction(context.Background(), signedSample(t))
	var se *mintdom.SubmitError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want SubmitError", err)
	}
	if se.Program == nil || se.Program.Code != 311 || len(se.Logs) != 1 {
		t.Fatalf("submit error = %+v", se)
	}
	if IsRemoteUnavailable(err) {
		t.Fatalf("preflight failure must not be remote unavailable")
	}
}
