package usecase

import (
	"context"
	"errors"

	"github.com/PeterNgeno/sangpoint-payments/config"
	"github.com/PeterNgeno/sangpoint-payments/internal/domain"
	"github.com/PeterNgeno/sangpoint-payments/internal/provider/daraja"
	"github.com/PeterNgeno/sangpoint-payments/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TokenSource yields a bearer credential for the payment provider.
type TokenSource interface {
	Token(ctx context.Context) (daraja.BearerCredential, error)
}

// PushSubmitter submits one push payment and returns the provider's
// correlation reference.
type PushSubmitter interface {
	Submit(ctx context.Context, push daraja.PushRequest, cred daraja.BearerCredential) (string, error)
}

// IdempotencyReserver claims idempotency keys for in-flight requests.
type IdempotencyReserver interface {
	Reserve(ctx context.Context, key string) bool
	Release(ctx context.Context, key string)
}

// PaymentUsecase drives the initiate leg: validate, dedupe, authenticate,
// submit, persist. The synchronous return does not wait for the provider's
// asynchronous result.
type PaymentUsecase struct {
	store     repository.PaymentStore
	idem      IdempotencyReserver
	tokens    TokenSource
	submitter PushSubmitter
	phone     domain.PhoneRule
	cfg       config.PaymentsConfig
	logger    *zap.Logger
}

func NewPaymentUsecase(
	store repository.PaymentStore,
	idem IdempotencyReserver,
	tokens TokenSource,
	submitter PushSubmitter,
	cfg config.PaymentsConfig,
	logger *zap.Logger,
) *PaymentUsecase {
	return &PaymentUsecase{
		store:     store,
		idem:      idem,
		tokens:    tokens,
		submitter: submitter,
		phone:     domain.NewPhoneRule(cfg.CountryCode),
		cfg:       cfg,
		logger:    logger,
	}
}

// Initiate accepts a payment request and returns the created record. The
// idempotency key may come from the caller; when absent one is generated
// so every submission is deduplicated.
func (uc *PaymentUsecase) Initiate(ctx context.Context, req *domain.InitiateRequest, idempotencyKey string) (*domain.PaymentRecord, error) {
	if err := req.Validate(uc.phone); err != nil {
		uc.logger.Info("initiate rejected",
			zap.String("user_id", req.UserID),
			zap.Error(err))
		return nil, err
	}

	if idempotencyKey == "" {
		idempotencyKey = uuid.NewString()
	}

	// A key we have already answered for is answered the same way again.
	if existing, err := uc.store.GetByIdempotencyKey(ctx, idempotencyKey); err == nil {
		uc.logger.Info("duplicate initiate, returning existing record",
			zap.String("payment_id", existing.ID),
			zap.String("idempotency_key", idempotencyKey))
		return existing, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	if !uc.idem.Reserve(ctx, idempotencyKey) {
		// Another request holding this key is still between submit and
		// persist; the caller should retry shortly.
		uc.logger.Warn("idempotency key already reserved",
			zap.String("idempotency_key", idempotencyKey))
		return nil, domain.ErrDuplicateRequest
	}

	uc.logger.Info("initiating payment",
		zap.String("user_id", req.UserID),
		zap.Float64("amount", req.Amount),
		zap.String("phone_number", req.PhoneNumber))

	cred, err := uc.tokens.Token(ctx)
	if err != nil {
		uc.idem.Release(ctx, idempotencyKey)
		uc.logger.Error("credential acquisition failed",
			zap.String("user_id", req.UserID),
			zap.Error(err))
		return nil, err
	}

	callbackToken := uuid.NewString()
	push := daraja.PushRequest{
		Amount:      req.Amount,
		PhoneNumber: req.PhoneNumber,
		Description: req.Purpose,
		CallbackURL: uc.cfg.CallbackBaseURL + "/payments/callback/" + callbackToken,
	}

	providerRef, err := uc.submitter.Submit(ctx, push, cred)
	if err != nil {
		var subErr *domain.SubmissionFailure
		if errors.As(err, &subErr) && !subErr.Retryable {
			// Permanent rejection: keep a failed record for audit.
			return uc.recordRejection(ctx, req, idempotencyKey, callbackToken, subErr)
		}
		uc.idem.Release(ctx, idempotencyKey)
		uc.logger.Error("payment submission failed",
			zap.String("user_id", req.UserID),
			zap.Error(err))
		return nil, err
	}

	record := &domain.PaymentRecord{
		ID:                uuid.NewString(),
		UserID:            req.UserID,
		Amount:            req.Amount,
		PhoneNumber:       req.PhoneNumber,
		Purpose:           req.Purpose,
		Status:            domain.PaymentStatusPending,
		ProviderReference: &providerRef,
		IdempotencyKey:    idempotencyKey,
		CallbackToken:     callbackToken,
	}

	if err := uc.store.Create(ctx, record); err != nil {
		// The push is already dispatched; the reservation is left to
		// expire so the same key cannot double-submit inside its TTL.
		uc.logger.Error("failed to persist payment record after submission",
			zap.String("provider_reference", providerRef),
			zap.String("user_id", req.UserID),
			zap.Error(err))
		return nil, err
	}

	uc.logger.Info("payment record created",
		zap.String("payment_id", record.ID),
		zap.String("provider_reference", providerRef))

	return record, nil
}

// recordRejection persists a failed record for a permanent submission
// failure and propagates the failure to the caller.
func (uc *PaymentUsecase) recordRejection(ctx context.Context, req *domain.InitiateRequest, idempotencyKey, callbackToken string, subErr *domain.SubmissionFailure) (*domain.PaymentRecord, error) {
	desc := subErr.Error()
	record := &domain.PaymentRecord{
		ID:                uuid.NewString(),
		UserID:            req.UserID,
		Amount:            req.Amount,
		PhoneNumber:       req.PhoneNumber,
		Purpose:           req.Purpose,
		Status:            domain.PaymentStatusFailed,
		IdempotencyKey:    idempotencyKey,
		CallbackToken:     callbackToken,
		ResultDescription: &desc,
	}

	if err := uc.store.Create(ctx, record); err != nil {
		uc.logger.Error("failed to persist rejected payment",
			zap.String("user_id", req.UserID),
			zap.Error(err))
	} else {
		uc.logger.Warn("payment rejected by provider",
			zap.String("payment_id", record.ID),
			zap.String("response_code", subErr.Code))
	}

	return nil, subErr
}

// Get returns one payment record by id.
func (uc *PaymentUsecase) Get(ctx context.Context, id string) (*domain.PaymentRecord, error) {
	return uc.store.GetByID(ctx, id)
}
