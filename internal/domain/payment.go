package domain

import (
	"regexp"
	"strings"
	"time"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusSucceeded PaymentStatus = "succeeded"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// Terminal reports whether a status permits no further transition.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentStatusSucceeded || s == PaymentStatusFailed
}

// PaymentRecord is the durable record of one payment attempt. Status moves
// from pending to exactly one terminal state; records are never deleted.
type PaymentRecord struct {
	ID                string        `json:"id"`
	UserID            string        `json:"user_id"`
	Amount            float64       `json:"amount"`
	PhoneNumber       string        `json:"phone_number"`
	Purpose           string        `json:"purpose,omitempty"`
	Status            PaymentStatus `json:"status"`
	ProviderReference *string       `json:"provider_reference,omitempty"`
	IdempotencyKey    string        `json:"-"`
	CallbackToken     string        `json:"-"`
	ResultDescription *string       `json:"result_description,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// InitiateRequest is the caller-supplied payment request. Immutable once
// accepted.
type InitiateRequest struct {
	Amount      float64 `json:"amount"`
	PhoneNumber string  `json:"phoneNumber"`
	UserID      string  `json:"userId"`
	Purpose     string  `json:"purposeMetadata"`
}

// PhoneRule validates payer numbers against the deployment's country code:
// a plus, the dialing prefix, then exactly nine digits.
type PhoneRule struct {
	re *regexp.Regexp
}

func NewPhoneRule(countryCode string) PhoneRule {
	return PhoneRule{re: regexp.MustCompile(`^\+` + regexp.QuoteMeta(countryCode) + `\d{9}$`)}
}

func (p PhoneRule) Match(number string) bool {
	return p.re.MatchString(number)
}

// Validate checks the request before any external call is made.
func (r *InitiateRequest) Validate(phone PhoneRule) error {
	if r.Amount <= 0 {
		return &ValidationError{Field: "amount", Reason: "must be greater than zero"}
	}
	if strings.TrimSpace(r.UserID) == "" {
		return &ValidationError{Field: "userId", Reason: "is required"}
	}
	if !phone.Match(r.PhoneNumber) {
		return &ValidationError{Field: "phoneNumber", Reason: "must be the country dialing prefix followed by 9 digits"}
	}
	return nil
}
