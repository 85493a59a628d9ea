package daraja

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PeterNgeno/sangpoint-payments/config"
	"github.com/PeterNgeno/sangpoint-payments/internal/domain"

	"go.uber.org/zap"
)

// PushRequest carries the inputs for one STK push submission.
type PushRequest struct {
	Amount      float64
	PhoneNumber string
	Description string
	CallbackURL string
}

// STKPushRequest is the Daraja wire format for Lipa Na M-Pesa Online.
type STKPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int    `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type STKPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

// STKClient submits push payments to the Daraja STK endpoint. It keeps no
// state beyond its configuration; the password and timestamp are derived
// fresh on every call because both are time-bound.
type STKClient struct {
	cfg        config.DarajaConfig
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewSTKClient(cfg config.DarajaConfig, logger *zap.Logger) *STKClient {
	return &STKClient{
		cfg:        cfg,
		baseURL:    BaseURL(cfg.Environment),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// SetBaseURL overrides the provider endpoint. Used by tests.
func (c *STKClient) SetBaseURL(url string) { c.baseURL = url }

// Submit sends one STK push and returns the provider's CheckoutRequestID.
// Failures are classified into domain.SubmissionFailure: network errors and
// 5xx responses are retryable, rejections are not.
func (c *STKClient) Submit(ctx context.Context, push PushRequest, cred BearerCredential) (string, error) {
	timestamp := time.Now().Format("20060102150405")
	password := base64.StdEncoding.EncodeToString([]byte(
		c.cfg.ShortCode + c.cfg.Passkey + timestamp,
	))

	desc := push.Description
	if desc == "" {
		desc = "Payment for " + c.cfg.AccountRef
	}

	// Daraja wants the subscriber number without the plus.
	msisdn := strings.TrimPrefix(push.PhoneNumber, "+")

	request := STKPushRequest{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          password,
		Timestamp:         timestamp,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            int(push.Amount),
		PartyA:            msisdn,
		PartyB:            c.cfg.ShortCode,
		PhoneNumber:       msisdn,
		CallBackURL:       push.CallbackURL,
		AccountReference:  c.cfg.AccountRef,
		TransactionDesc:   desc,
	}

	body, err := json.Marshal(request)
	if err != nil {
		return "", &domain.SubmissionFailure{Retryable: false, Err: err}
	}

	url := c.baseURL + "/mpesa/stkpush/v1/processrequest"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", &domain.SubmissionFailure{Retryable: false, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cred.Token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Timeouts and connection failures may have been transient.
		return "", &domain.SubmissionFailure{Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	var response STKPushResponse
	if decodeErr := json.NewDecoder(resp.Body).Decode(&response); decodeErr != nil && resp.StatusCode == http.StatusOK {
		return "", &domain.SubmissionFailure{Retryable: false, Err: fmt.Errorf("decoding push response: %w", decodeErr)}
	}

	switch {
	case resp.StatusCode >= 500:
		return "", &domain.SubmissionFailure{
			Retryable: true,
			Err:       fmt.Errorf("push endpoint returned %d", resp.StatusCode),
		}
	case resp.StatusCode != http.StatusOK:
		return "", &domain.SubmissionFailure{
			Retryable: false,
			Code:      response.ResponseCode,
			Err:       fmt.Errorf("push endpoint returned %d: %s", resp.StatusCode, response.ResponseDescription),
		}
	case response.ResponseCode != "0":
		return "", &domain.SubmissionFailure{
			Retryable: false,
			Code:      response.ResponseCode,
			Err:       fmt.Errorf("push rejected: %s", response.ResponseDescription),
		}
	}

	c.logger.Info("stk push accepted",
		zap.String("checkout_request_id", response.CheckoutRequestID),
		zap.String("customer_message", response.CustomerMessage))

	return response.CheckoutRequestID, nil
}
