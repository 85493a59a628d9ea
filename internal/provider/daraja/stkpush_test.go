package daraja

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"

	"github.com/PeterNgeno/sangpoint-payments/internal/domain"

	"go.uber.org/zap"
)

func newTestSTKClient(t *testing.T, handler http.HandlerFunc) *STKClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := NewSTKClient(testDarajaConfig(), zap.NewNop())
	client.SetBaseURL(srv.URL)
	return client
}

func testPush() PushRequest {
	return PushRequest{
		Amount:      500,
		PhoneNumber: "+254712345678",
		Description: "Payment for quiz section (30 seconds timer)",
		CallbackURL: "https://example.com/payments/callback/tok-1",
	}
}

var timestampPattern = regexp.MustCompile(`^\d{14}$`)

func TestSubmitSignsRequest(t *testing.T) {
	var got STKPushRequest
	var gotAuth string

	client := newTestSTKClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"MerchantRequestID": "mr-1",
			"CheckoutRequestID": "ws_1",
			"ResponseCode": "0",
			"ResponseDescription": "Success. Request accepted for processing",
			"CustomerMessage": "Success. Request accepted for processing"
		}`))
	})

	ref, err := client.Submit(context.Background(), testPush(), BearerCredential{Token: "tok-abc"})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if ref != "ws_1" {
		t.Errorf("provider reference = %q, want %q", ref, "ws_1")
	}

	if gotAuth != "Bearer tok-abc" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "Bearer tok-abc")
	}
	if !timestampPattern.MatchString(got.Timestamp) {
		t.Errorf("Timestamp = %q, want 14 digits", got.Timestamp)
	}

	wantPassword := base64.StdEncoding.EncodeToString([]byte("174379" + "passkey" + got.Timestamp))
	if got.Password != wantPassword {
		t.Errorf("Password = %q, want base64(shortcode+passkey+timestamp)", got.Password)
	}

	if got.PartyA != "254712345678" || got.PhoneNumber != "254712345678" {
		t.Errorf("subscriber number = %q/%q, want 254712345678 without plus", got.PartyA, got.PhoneNumber)
	}
	if got.Amount != 500 {
		t.Errorf("Amount = %d, want 500", got.Amount)
	}
	if got.TransactionType != "CustomerPayBillOnline" {
		t.Errorf("TransactionType = %q", got.TransactionType)
	}
	if got.AccountReference != "SANGPOINT" {
		t.Errorf("AccountReference = %q, want SANGPOINT", got.AccountReference)
	}
	if got.CallBackURL != "https://example.com/payments/callback/tok-1" {
		t.Errorf("CallBackURL = %q", got.CallBackURL)
	}
}

func TestSubmitFreshSignaturePerCall(t *testing.T) {
	var passwords []string
	client := newTestSTKClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req STKPushRequest
		json.NewDecoder(r.Body).Decode(&req)
		passwords = append(passwords, req.Password)
		w.Write([]byte(`{"CheckoutRequestID":"ws_x","ResponseCode":"0"}`))
	})

	for i := 0; i < 2; i++ {
		if _, err := client.Submit(context.Background(), testPush(), BearerCredential{Token: "t"}); err != nil {
			t.Fatalf("Submit() call %d error = %v", i, err)
		}
	}

	if len(passwords) != 2 || passwords[0] == "" || passwords[1] == "" {
		t.Fatalf("expected a password on both calls, got %v", passwords)
	}
}

func TestSubmitClassifiesFailures(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantRetryable bool
	}{
		{
			name:          "bad request is permanent",
			status:        http.StatusBadRequest,
			body:          `{"ResponseCode":"400.002.02","ResponseDescription":"Bad Request - Invalid PhoneNumber"}`,
			wantRetryable: false,
		},
		{
			name:          "server error is retryable",
			status:        http.StatusInternalServerError,
			body:          `{}`,
			wantRetryable: true,
		},
		{
			name:          "gateway timeout is retryable",
			status:        http.StatusGatewayTimeout,
			body:          `{}`,
			wantRetryable: true,
		},
		{
			name:          "nonzero response code is permanent",
			status:        http.StatusOK,
			body:          `{"CheckoutRequestID":"ws_2","ResponseCode":"1","ResponseDescription":"Insufficient funds"}`,
			wantRetryable: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestSTKClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			_, err := client.Submit(context.Background(), testPush(), BearerCredential{Token: "t"})

			var subErr *domain.SubmissionFailure
			if !errors.As(err, &subErr) {
				t.Fatalf("Submit() error = %v, want SubmissionFailure", err)
			}
			if subErr.Retryable != tt.wantRetryable {
				t.Errorf("Retryable = %v, want %v", subErr.Retryable, tt.wantRetryable)
			}
		})
	}
}

func TestSubmitNetworkErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	client := NewSTKClient(testDarajaConfig(), zap.NewNop())
	client.SetBaseURL(srv.URL)

	_, err := client.Submit(context.Background(), testPush(), BearerCredential{Token: "t"})

	var subErr *domain.SubmissionFailure
	if !errors.As(err, &subErr) {
		t.Fatalf("Submit() error = %v, want SubmissionFailure", err)
	}
	if !subErr.Retryable {
		t.Error("network failure must be retryable")
	}
}
