package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/dukerupert/themeshop/internal/reconcile"
)

// Stripe payloads are well under this; larger bodies are rejected unread.
const maxWebhookBytes = 64 << 10

type WebhookHandler struct {
	reconciler *reconcile.Reconciler
	logger     *slog.Logger
}

func NewWebhookHandler(reconciler *reconcile.Reconciler, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{reconciler: reconciler, logger: logger}
}

// Stripe acknowledges every verified event with 200 so the provider does not
// redeliver events that were logically handled. Only signature failures get
// a 400.
func (h *WebhookHandler) Stripe(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}

	outcome, err := h.reconciler.HandleEvent(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	if errors.Is(err, reconcile.ErrInvalidSignature) {
		writeError(w, http.StatusBadRequest, "invalid signature")
		return
	}
	if err != nil {
		h.logger.Error("handle webhook", "error", err)
	}

	writeJSON(w, http.StatusOK, map[string]any{"received": true, "outcome": outcome})
}
