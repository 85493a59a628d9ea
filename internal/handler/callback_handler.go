package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/PeterNgeno/sangpoint-payments/internal/usecase"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// maxCallbackBytes bounds the provider notification payload.
const maxCallbackBytes = int64(64 << 10)

type CallbackHandler struct {
	callbackUC *usecase.CallbackUsecase
	logger     *zap.Logger
}

func NewCallbackHandler(callbackUC *usecase.CallbackUsecase, logger *zap.Logger) *CallbackHandler {
	return &CallbackHandler{callbackUC: callbackUC, logger: logger}
}

// HandleSTKCallback handles POST /payments/callback/{callback_token}. It
// always acknowledges with 200 so the provider stops redelivering;
// processing failures are logged, never surfaced.
func (h *CallbackHandler) HandleSTKCallback(w http.ResponseWriter, r *http.Request) {
	callbackToken := chi.URLParam(r, "callback_token")

	r.Body = http.MaxBytesReader(w, r.Body, maxCallbackBytes)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.Warn("failed to read callback payload",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err))
		h.ack(w)
		return
	}

	if err := h.callbackUC.Process(r.Context(), callbackToken, payload); err != nil {
		h.logger.Error("callback processing failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err))
	}

	h.ack(w)
}

// ack sends the acknowledgement body Daraja expects.
func (h *CallbackHandler) ack(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	response := map[string]interface{}{
		"ResultCode": "0",
		"ResultDesc": "Success",
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("failed to encode callback ack", zap.Error(err))
	}
}
