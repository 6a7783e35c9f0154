package mercadopago

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func testConfig(baseURL string) *Config {
	return &Config{
		AccessToken: "APP_USR-test-token",
		APIBaseURL:  baseURL,
	}
}

func TestGetPaymentApproved(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/v1/payments/12345" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer APP_USR-test-token" {
			t.Fatalf("authorization header mismatch: %s", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":            12345,
			"status":        "approved",
			"status_detail": "accredited",
		})
	}))
	defer server.Close()

	result, err := GetPayment(context.Background(), testConfig(server.URL), "12345")
	if err != nil {
		t.Fatalf("get payment failed: %v", err)
	}
	if result.Status != PaymentStatusApproved {
		t.Fatalf("status want approved got %s", result.Status)
	}
	if result.ID != "12345" {
		t.Fatalf("id want 12345 got %s", result.ID)
	}
}

func TestGetPaymentRefunded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":     "9876",
			"status": "refunded",
		})
	}))
	defer server.Close()

	result, err := GetPayment(context.Background(), testConfig(server.URL), "9876")
	if err != nil {
		t.Fatalf("get payment failed: %v", err)
	}
	if result.Status != PaymentStatusRefunded {
		t.Fatalf("status want refunded got %s", result.Status)
	}
}

func TestGetPaymentPermissionDenied(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"message": "invalid access token",
		})
	}))
	defer server.Close()

	_, err := GetPayment(context.Background(), testConfig(server.URL), "12345")
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("want ErrPermissionDenied got %v", err)
	}
}

func TestGetPaymentUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := GetPayment(context.Background(), testConfig(server.URL), "12345")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("want ErrUnavailable got %v", err)
	}
}

func TestSendMoneySuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/account/send-money" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("X-Idempotency-Key"); got != "af-sale-7-0" {
			t.Fatalf("idempotency key mismatch: %s", got)
		}
		var payload map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode payload failed: %v", err)
		}
		if payload["amount"].(float64) != 12.5 {
			t.Fatalf("amount want 12.5 got %v", payload["amount"])
		}
		receiver := payload["receiver"].(map[string]interface{})
		if receiver["id"] != "payee_001" {
			t.Fatalf("receiver want payee_001 got %v", receiver["id"])
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":     "mov_555",
			"status": "approved",
		})
	}))
	defer server.Close()

	result, err := SendMoney(context.Background(), testConfig(server.URL), TransferInput{
		PayeeID:        "payee_001",
		AmountMinor:    1250,
		Currency:       "BRL",
		IdempotencyKey: "af-sale-7-0",
	})
	if err != nil {
		t.Fatalf("send money failed: %v", err)
	}
	if result.TransferID != "mov_555" {
		t.Fatalf("transfer id want mov_555 got %s", result.TransferID)
	}
}

func TestSendMoneyValidationFoldsCauses(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"message": "invalid receiver",
			"cause": []map[string]interface{}{
				{"code": 4037, "description": "receiver blocked"},
			},
		})
	}))
	defer server.Close()

	_, err := SendMoney(context.Background(), testConfig(server.URL), TransferInput{
		PayeeID:        "payee_bad",
		AmountMinor:    100,
		Currency:       "BRL",
		IdempotencyKey: "af-sale-8-0",
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("want ErrValidation got %v", err)
	}
	if !strings.Contains(err.Error(), "4037") {
		t.Fatalf("error should fold cause code, got %v", err)
	}
}

func TestSendMoneyRejectsMissingIdempotencyKey(t *testing.T) {
	_, err := SendMoney(context.Background(), testConfig("http://127.0.0.1:1"), TransferInput{
		PayeeID:     "payee_001",
		AmountMinor: 100,
		Currency:    "BRL",
	})
	if !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("want ErrConfigInvalid got %v", err)
	}
}
