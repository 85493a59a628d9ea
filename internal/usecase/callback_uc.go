package usecase

import (
	"context"
	"errors"

	"github.com/PeterNgeno/sangpoint-payments/config"
	"github.com/PeterNgeno/sangpoint-payments/internal/domain"
	"github.com/PeterNgeno/sangpoint-payments/internal/provider/daraja"
	"github.com/PeterNgeno/sangpoint-payments/internal/repository"

	"go.uber.org/zap"
)

// CallbackUsecase reconciles pending payment records against the
// provider's asynchronous result notifications. Delivery is at-least-once,
// so every path that is not a first terminal transition acknowledges
// without touching state.
type CallbackUsecase struct {
	store  repository.PaymentStore
	cfg    config.PaymentsConfig
	logger *zap.Logger
}

func NewCallbackUsecase(store repository.PaymentStore, cfg config.PaymentsConfig, logger *zap.Logger) *CallbackUsecase {
	return &CallbackUsecase{store: store, cfg: cfg, logger: logger}
}

// Process handles one result notification. callbackToken is the
// per-payment capability segment from the callback URL; payloads that do
// not match the record's token are dropped. The returned error is for
// logging only: the HTTP layer acknowledges the provider regardless.
func (uc *CallbackUsecase) Process(ctx context.Context, callbackToken string, payload []byte) error {
	result, err := daraja.ParseSTKCallback(payload)
	if err != nil {
		uc.logger.Warn("discarding unparseable callback",
			zap.Int("payload_size", len(payload)),
			zap.Error(err))
		return err
	}

	uc.logger.Info("callback received",
		zap.String("checkout_request_id", result.CheckoutRequestID),
		zap.Int("result_code", result.ResultCode),
		zap.Bool("success", result.Success))

	record, err := uc.store.GetByProviderRef(ctx, result.CheckoutRequestID)
	if errors.Is(err, domain.ErrNotFound) {
		// Unknown reference: either a redelivery for a purged test
		// record or noise. Acknowledge and move on.
		uc.logger.Info("callback matched no record",
			zap.String("checkout_request_id", result.CheckoutRequestID))
		return nil
	}
	if err != nil {
		uc.logger.Error("record lookup failed during callback",
			zap.String("checkout_request_id", result.CheckoutRequestID),
			zap.Error(err))
		return err
	}

	if uc.cfg.RequireCallbackToken && callbackToken != record.CallbackToken {
		uc.logger.Warn("callback token mismatch, dropping notification",
			zap.String("payment_id", record.ID),
			zap.String("checkout_request_id", result.CheckoutRequestID))
		return nil
	}

	if record.Status.Terminal() {
		uc.logger.Info("callback for already terminal record, ignoring",
			zap.String("payment_id", record.ID),
			zap.String("status", string(record.Status)))
		return nil
	}

	status := domain.PaymentStatusFailed
	if result.Success {
		status = domain.PaymentStatusSucceeded
	}

	changed, err := uc.store.Finalize(ctx, record.ID, status, result.ResultDescription)
	if err != nil {
		uc.logger.Error("failed to finalize payment",
			zap.String("payment_id", record.ID),
			zap.Error(err))
		return err
	}
	if !changed {
		// Lost the race against a duplicate delivery; the winner already
		// applied the transition.
		uc.logger.Info("payment already finalized by concurrent callback",
			zap.String("payment_id", record.ID))
		return nil
	}

	uc.logger.Info("payment finalized",
		zap.String("payment_id", record.ID),
		zap.String("status", string(status)),
		zap.String("receipt", result.ReceiptNumber),
		zap.String("result_description", result.ResultDescription))

	return nil
}
