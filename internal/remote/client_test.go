package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Klingon-tech/codewallet/internal/log"
	"github.com/Klingon-tech/codewallet/pkg/types"
)

func init() {
	log.Discard()
}

// testServer serves handler and returns a client pointed at it for both the
// backend API and the ledger node.
func testServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", srv.URL)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestPrepare(t *testing.T) {
	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/transactions/prepare" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		var req PrepareRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Function != "0x1::m::f" || req.Network != types.Testnet || len(req.FunctionArguments) != 2 {
			t.Errorf("request = %+v", req)
		}
		writeJSON(w, http.StatusOK, Prepared{Hash: "0xabc", RawTxnHex: "0xdef"})
	})

	got, err := c.Prepare(context.Background(), PrepareRequest{
		Sender:            "0x1",
		Function:          "0x1::m::f",
		FunctionArguments: []any{"a", "1"},
		Network:           types.Testnet,
	})
	if err != nil {
		t.Fatalf("Prepare() error: %v", err)
	}
	if got.Hash != "0xabc" || got.RawTxnHex != "0xdef" {
		t.Errorf("Prepare() = %+v", got)
	}
}

func TestSubmit_Rejected(t *testing.T) {
	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, Submitted{Success: false, VMStatus: "EINSUFFICIENT_BALANCE"})
	})
	got, err := c.Submit(context.Background(), SubmitRequest{RawTxnHex: "00"})
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	if got.Success || got.VMStatus != "EINSUFFICIENT_BALANCE" {
		t.Errorf("Submit() = %+v", got)
	}
}

func TestViewTransfer_Decodes(t *testing.T) {
	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"type":"fa","sender":"0x01","assetMetadata":"0xa","amount":"1500000",
			"createdAt":1700000000,"expiration":"1700086400","isClaimable":true}`))
	})
	got, err := c.ViewTransfer(context.Background(), ViewRequest{Code: "ABC", Network: types.Mainnet})
	if err != nil {
		t.Fatalf("ViewTransfer() error: %v", err)
	}
	if got.Amount != "1500000" || !got.IsClaimable || got.Type != "fa" {
		t.Errorf("ViewTransfer() = %+v", got)
	}
	if got.CreatedAt.Time() != time.Unix(1700000000, 0).UTC() {
		t.Errorf("CreatedAt = %v", got.CreatedAt.Time())
	}
	if got.Expiration != 1700086400 {
		t.Errorf("Expiration = %d", got.Expiration)
	}
}

func TestViewTransfer_NumericAmount(t *testing.T) {
	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"type":"move","sender":"0x1","amount":250,"createdAt":null,"expiration":0,"isClaimable":false}`))
	})
	got, err := c.ViewTransfer(context.Background(), ViewRequest{Code: "X"})
	if err != nil {
		t.Fatalf("ViewTransfer() error: %v", err)
	}
	if got.Amount != "250" || !got.CreatedAt.Time().IsZero() {
		t.Errorf("ViewTransfer() = %+v", got)
	}
}

func TestErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		notFound bool
	}{
		{"error body not found", http.StatusOK, `{"error":"Transfer not found"}`, true},
		{"error body mixed case", http.StatusBadRequest, `{"error":"code NOT FOUND on chain"}`, true},
		{"error body other", http.StatusInternalServerError, `{"error":"indexer unavailable"}`, false},
		{"bare 404", http.StatusNotFound, `nope`, true},
		{"bare 502", http.StatusBadGateway, ``, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})
			_, err := c.ViewTransfer(context.Background(), ViewRequest{Code: "c"})
			if !errors.Is(err, ErrRemote) {
				t.Errorf("error = %v, want ErrRemote", err)
			}
			if got := errors.Is(err, ErrNotFound); got != tt.notFound {
				t.Errorf("errors.Is(ErrNotFound) = %v, want %v (err %v)", got, tt.notFound, err)
			}
		})
	}
}

func TestHTTPErrorType(t *testing.T) {
	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	})
	_, err := c.Prepare(context.Background(), PrepareRequest{})
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusBadGateway {
		t.Errorf("error = %v, want *HTTPError 502", err)
	}
}

func TestMalformedResponse(t *testing.T) {
	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"type":`))
	})
	_, err := c.ViewTransfer(context.Background(), ViewRequest{Code: "c"})
	if !errors.Is(err, ErrRemote) || errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrRemote only", err)
	}
}

func TestContextDeadline(t *testing.T) {
	release := make(chan struct{})
	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Prepare(ctx, PrepareRequest{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want context.DeadlineExceeded", err)
	}
	if !errors.Is(err, ErrRemote) {
		t.Errorf("error = %v, want ErrRemote", err)
	}
}

func TestTransactionByHash(t *testing.T) {
	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/transactions/by_hash/0xfeed" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		w.Write([]byte(`{"hash":"0xfeed","success":true,"events":[
			{"type":"0x1::code_transfer::TransferCreated","data":{"sender":"0x1","encoded_code":"4142"}}]}`))
	})
	tx, err := c.TransactionByHash(context.Background(), "0xfeed")
	if err != nil {
		t.Fatalf("TransactionByHash() error: %v", err)
	}
	if len(tx.Events) != 1 || tx.Events[0].Type != "0x1::code_transfer::TransferCreated" {
		t.Errorf("events = %+v", tx.Events)
	}
}

func TestLookupTimeout_OnlyBoundsReads(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(150 * time.Millisecond)
		switch r.URL.Path {
		case "/transactions/prepare":
			writeJSON(w, http.StatusOK, Prepared{Hash: "0x01", RawTxnHex: "0x02"})
		case "/transactions/submit":
			writeJSON(w, http.StatusOK, Submitted{Success: true, TransactionHash: "0xabc"})
		default:
			writeJSON(w, http.StatusOK, map[string]any{})
		}
	}))
	t.Cleanup(srv.Close)
	c := NewWithTimeout(srv.URL, srv.URL, 50*time.Millisecond)
	ctx := context.Background()

	if _, err := c.Prepare(ctx, PrepareRequest{}); err != nil {
		t.Errorf("Prepare() error = %v, want none: prepare is bounded by its caller", err)
	}
	if _, err := c.Submit(ctx, SubmitRequest{}); err != nil {
		t.Errorf("Submit() error = %v, want none: submit has no client deadline", err)
	}
	if _, err := c.ViewTransfer(ctx, ViewRequest{Code: "x"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("ViewTransfer() error = %v, want context.DeadlineExceeded", err)
	}
	if _, err := c.TransactionByHash(ctx, "0xabc"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("TransactionByHash() error = %v, want context.DeadlineExceeded", err)
	}
}
