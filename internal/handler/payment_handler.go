package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/PeterNgeno/sangpoint-payments/internal/domain"
	"github.com/PeterNgeno/sangpoint-payments/internal/usecase"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type PaymentHandler struct {
	paymentUC *usecase.PaymentUsecase
	logger    *zap.Logger
}

func NewPaymentHandler(paymentUC *usecase.PaymentUsecase, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{paymentUC: paymentUC, logger: logger}
}

// Initiate handles POST /payments/initiate.
func (h *PaymentHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	var req domain.InitiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	idempotencyKey := r.Header.Get("Idempotency-Key")

	record, err := h.paymentUC.Initiate(r.Context(), &req, idempotencyKey)
	if err != nil {
		h.writeInitiateError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"paymentId": record.ID,
		"status":    record.Status,
	})
}

// Get handles GET /payments/{payment_id}.
func (h *PaymentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "payment_id")

	record, err := h.paymentUC.Get(r.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "payment not found")
		return
	}
	if err != nil {
		h.logger.Error("payment lookup failed",
			zap.String("payment_id", id),
			zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "could not load payment")
		return
	}

	h.writeJSON(w, http.StatusOK, record)
}

// writeInitiateError translates the domain taxonomy into HTTP statuses.
// Raw provider error text never reaches the caller.
func (h *PaymentHandler) writeInitiateError(w http.ResponseWriter, err error) {
	var (
		validationErr *domain.ValidationError
		authErr       *domain.AuthFailure
		subErr        *domain.SubmissionFailure
		storeErr      *domain.StoreFailure
	)

	switch {
	case errors.As(err, &validationErr):
		h.writeError(w, http.StatusBadRequest, validationErr.Error())
	case errors.Is(err, domain.ErrDuplicateRequest):
		h.writeError(w, http.StatusConflict, "a request with this idempotency key is already in progress")
	case errors.As(err, &authErr):
		h.writeError(w, http.StatusBadGateway, "payment initiation failed, please try again later")
	case errors.As(err, &subErr):
		if subErr.Retryable {
			h.writeError(w, http.StatusBadGateway, "payment provider unavailable, please retry")
		} else {
			h.writeError(w, http.StatusBadGateway, "payment request was rejected by the provider")
		}
	case errors.As(err, &storeErr):
		h.writeError(w, http.StatusInternalServerError, "payment could not be recorded, please try again")
	default:
		h.writeError(w, http.StatusInternalServerError, "payment failed, please try again")
	}
}

func (h *PaymentHandler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (h *PaymentHandler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}
