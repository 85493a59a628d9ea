package daraja

import (
	"encoding/json"
	"strconv"

	"github.com/PeterNgeno/sangpoint-payments/internal/domain"
)

// stkCallbackEnvelope is the Daraja result-notification wire format.
// ResultCode is a pointer so a missing field can be told apart from a
// genuine zero (zero means success).
type stkCallbackEnvelope struct {
	Body struct {
		StkCallback struct {
			MerchantRequestID string `json:"MerchantRequestID"`
			CheckoutRequestID string `json:"CheckoutRequestID"`
			ResultCode        *int   `json:"ResultCode"`
			ResultDesc        string `json:"ResultDesc"`
			CallbackMetadata  struct {
				Item []struct {
					Name  string      `json:"Name"`
					Value interface{} `json:"Value"`
				} `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

// CallbackResult is the parsed form of one result notification.
type CallbackResult struct {
	MerchantRequestID string
	CheckoutRequestID string
	ResultCode        int
	ResultDescription string
	Success           bool
	ReceiptNumber     string
	Amount            float64
	PhoneNumber       string
}

// ParseSTKCallback parses a Daraja STK result notification. A payload
// missing the correlation reference or the result code yields
// domain.MalformedCallback.
func ParseSTKCallback(payload []byte) (*CallbackResult, error) {
	var envelope stkCallbackEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, &domain.MalformedCallback{Reason: "payload is not valid JSON"}
	}

	cb := envelope.Body.StkCallback
	if cb.CheckoutRequestID == "" {
		return nil, &domain.MalformedCallback{Reason: "missing CheckoutRequestID"}
	}
	if cb.ResultCode == nil {
		return nil, &domain.MalformedCallback{Reason: "missing ResultCode"}
	}

	result := &CallbackResult{
		MerchantRequestID: cb.MerchantRequestID,
		CheckoutRequestID: cb.CheckoutRequestID,
		ResultCode:        *cb.ResultCode,
		ResultDescription: cb.ResultDesc,
		Success:           *cb.ResultCode == 0,
	}

	for _, item := range cb.CallbackMetadata.Item {
		switch item.Name {
		case "Amount":
			if v, ok := item.Value.(float64); ok {
				result.Amount = v
			}
		case "MpesaReceiptNumber":
			if v, ok := item.Value.(string); ok {
				result.ReceiptNumber = v
			}
		case "PhoneNumber":
			// Daraja sends the subscriber number as a JSON number.
			switch v := item.Value.(type) {
			case string:
				result.PhoneNumber = v
			case float64:
				result.PhoneNumber = strconv.FormatInt(int64(v), 10)
			}
		}
	}

	return result, nil
}
