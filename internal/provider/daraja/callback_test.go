package daraja

import (
	"errors"
	"testing"

	"github.com/PeterNgeno/sangpoint-payments/internal/domain"
)

const successCallback = `{
	"Body": {
		"stkCallback": {
			"MerchantRequestID": "29115-34620561-1",
			"CheckoutRequestID": "ws_1",
			"ResultCode": 0,
			"ResultDesc": "The service request is processed successfully.",
			"CallbackMetadata": {
				"Item": [
					{"Name": "Amount", "Value": 500.00},
					{"Name": "MpesaReceiptNumber", "Value": "NLJ7RT61SV"},
					{"Name": "TransactionDate", "Value": 20191219102115},
					{"Name": "PhoneNumber", "Value": 254712345678}
				]
			}
		}
	}
}`

const cancelledCallback = `{
	"Body": {
		"stkCallback": {
			"MerchantRequestID": "29115-34620561-1",
			"CheckoutRequestID": "ws_1",
			"ResultCode": 1032,
			"ResultDesc": "Request cancelled by user."
		}
	}
}`

func TestParseSTKCallbackSuccess(t *testing.T) {
	result, err := ParseSTKCallback([]byte(successCallback))
	if err != nil {
		t.Fatalf("ParseSTKCallback() error = %v", err)
	}

	if result.CheckoutRequestID != "ws_1" {
		t.Errorf("CheckoutRequestID = %q, want ws_1", result.CheckoutRequestID)
	}
	if !result.Success || result.ResultCode != 0 {
		t.Errorf("Success = %v, ResultCode = %d, want success", result.Success, result.ResultCode)
	}
	if result.ReceiptNumber != "NLJ7RT61SV" {
		t.Errorf("ReceiptNumber = %q", result.ReceiptNumber)
	}
	if result.Amount != 500 {
		t.Errorf("Amount = %v, want 500", result.Amount)
	}
	if result.PhoneNumber != "254712345678" {
		t.Errorf("PhoneNumber = %q", result.PhoneNumber)
	}
}

func TestParseSTKCallbackFailure(t *testing.T) {
	result, err := ParseSTKCallback([]byte(cancelledCallback))
	if err != nil {
		t.Fatalf("ParseSTKCallback() error = %v", err)
	}

	if result.Success {
		t.Error("Success = true, want false for nonzero ResultCode")
	}
	if result.ResultCode != 1032 {
		t.Errorf("ResultCode = %d, want 1032", result.ResultCode)
	}
	if result.ResultDescription != "Request cancelled by user." {
		t.Errorf("ResultDescription = %q", result.ResultDescription)
	}
}

func TestParseSTKCallbackMalformed(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not json", `{{{`},
		{"empty object", `{}`},
		{"missing checkout request id", `{"Body":{"stkCallback":{"ResultCode":0}}}`},
		{"missing result code", `{"Body":{"stkCallback":{"CheckoutRequestID":"ws_1"}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSTKCallback([]byte(tt.payload))

			var malformed *domain.MalformedCallback
			if !errors.As(err, &malformed) {
				t.Fatalf("ParseSTKCallback() error = %v, want MalformedCallback", err)
			}
		})
	}
}
