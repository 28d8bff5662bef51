package workers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSubmitTransaction(t *testing.T) {
	var gotToken string
	var gotBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/transactions" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		gotToken = r.Header.Get("X-Service-Token")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]string{"tx_hash": "0xabc123"})
	}))
	defer server.Close()

	client := NewHTTPLedgerClient(server.URL, "secret-token")
	hash, err := client.SubmitTransaction(context.Background(), "0xwallet", 500, "USDC")
	if err != nil {
		t.Fatalf("SubmitTransaction failed: %v", err)
	}
	if hash != "0xabc123" {
		t.Errorf("expected tx hash 0xabc123, got %s", hash)
	}
	if gotToken != "secret-token" {
		t.Errorf("expected service token header, got %q", gotToken)
	}
	if gotBody["recipient"] != "0xwallet" || gotBody["amount"] != 500.0 || gotBody["token"] != "USDC" {
		t.Errorf("unexpected submission body: %v", gotBody)
	}
}

func TestSubmitTransactionRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid recipient address", http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewHTTPLedgerClient(server.URL, "t")
	_, err := client.SubmitTransaction(context.Background(), "bad-wallet", 100, "USDC")
	if !errors.Is(err, ErrLedgerRejected) {
		t.Fatalf("expected ErrLedgerRejected, got %v", err)
	}
}

func TestSubmitTransactionServerErrorIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "temporarily unavailable", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewHTTPLedgerClient(server.URL, "t")
	_, err := client.SubmitTransaction(context.Background(), "0xwallet", 100, "USDC")
	if err == nil {
		t.Fatal("expected an error")
	}
	if errors.Is(err, ErrLedgerRejected) {
		t.Fatal("5xx must not be treated as a permanent rejection")
	}
}

func TestGetReceipt(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/transactions/0xabc/receipt" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(LedgerReceipt{Status: ReceiptStatusConfirmed, Confirmations: 12})
	}))
	defer server.Close()

	client := NewHTTPLedgerClient(server.URL, "t")
	receipt, err := client.GetReceipt(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("GetReceipt failed: %v", err)
	}
	if receipt.Status != ReceiptStatusConfirmed || receipt.Confirmations != 12 {
		t.Errorf("unexpected receipt: %+v", receipt)
	}
}

func TestGetReceiptNotFoundMeansPending(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewHTTPLedgerClient(server.URL, "t")
	receipt, err := client.GetReceipt(context.Background(), "0xunmined")
	if err != nil {
		t.Fatalf("GetReceipt failed: %v", err)
	}
	if receipt.Status != ReceiptStatusPending {
		t.Errorf("expected pending receipt for 404, got %s", receipt.Status)
	}
}
