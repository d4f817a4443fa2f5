package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/themeshop/internal/auth"
	"github.com/dukerupert/themeshop/internal/catalog"
	"github.com/dukerupert/themeshop/internal/checkout"
	"github.com/dukerupert/themeshop/internal/model"
)

type CheckoutHandler struct {
	service *checkout.Service
	catalog *catalog.Catalog
	logger  *slog.Logger
}

func NewCheckoutHandler(service *checkout.Service, cat *catalog.Catalog, logger *slog.Logger) *CheckoutHandler {
	return &CheckoutHandler{service: service, catalog: cat, logger: logger}
}

// writeCheckoutError maps checkout failures to status codes. Provider
// details stay in the log.
func (h *CheckoutHandler) writeCheckoutError(w http.ResponseWriter, err error) {
	var itemErr *checkout.ItemError
	switch {
	case errors.As(err, &itemErr):
		writeError(w, http.StatusBadRequest, itemErr.Reason)
	case errors.Is(err, checkout.ErrEmptyCart):
		writeError(w, http.StatusBadRequest, "cart is empty")
	case errors.Is(err, checkout.ErrAlreadyPremium):
		writeError(w, http.StatusBadRequest, "you already have a premium license")
	case errors.Is(err, checkout.ErrNotPaid):
		writeError(w, http.StatusPaymentRequired, "payment has not completed")
	case errors.Is(err, checkout.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, checkout.ErrPaymentsUnavailable), errors.Is(err, checkout.ErrRatesUnavailable):
		writeError(w, http.StatusServiceUnavailable, "this service is not available right now")
	case errors.Is(err, checkout.ErrPaymentProvider):
		writeError(w, http.StatusBadGateway, "payment provider error, please try again")
	default:
		h.logger.Error("checkout", "error", err)
		writeError(w, http.StatusInternalServerError, "checkout failed")
	}
}

func (h *CheckoutHandler) Products(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"products": h.catalog.Products()})
}

func (h *CheckoutHandler) Premium(w http.ResponseWriter, r *http.Request) {
	user := auth.User(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "you must be logged in to purchase")
		return
	}

	sess, err := h.service.PremiumCheckout(r.Context(), user)
	if err != nil {
		h.writeCheckoutError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": sess.URL})
}

type storeCheckoutRequest struct {
	Email      string              `json:"email"`
	Items      []checkout.CartItem `json:"items"`
	CancelPath string              `json:"cancelPath"`
}

func (h *CheckoutHandler) Store(w http.ResponseWriter, r *http.Request) {
	var req storeCheckoutRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	// Only same-site relative paths are used for the cancel redirect.
	if !strings.HasPrefix(req.CancelPath, "/") || strings.HasPrefix(req.CancelPath, "//") {
		req.CancelPath = ""
	}

	sess, order, err := h.service.StoreCheckout(r.Context(), checkout.StoreRequest{
		User:       auth.User(r.Context()),
		Email:      req.Email,
		Items:      req.Items,
		CancelPath: req.CancelPath,
	})
	if err != nil {
		h.writeCheckoutError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": sess.URL, "orderId": order.ID})
}

type confirmationResponse struct {
	OrderNumber     string            `json:"orderNumber"`
	Status          model.OrderStatus `json:"status"`
	Email           string            `json:"email"`
	Subtotal        int64             `json:"subtotal"`
	Shipping        int64             `json:"shipping"`
	Total           int64             `json:"total"`
	ShippingAddress *model.Address    `json:"shippingAddress"`
	Items           []model.LineItem  `json:"items"`
}

func (h *CheckoutHandler) Confirmation(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	o, err := h.service.Confirmation(r.Context(), sessionID)
	if err != nil {
		h.writeCheckoutError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, confirmationResponse{
		OrderNumber:     o.ID,
		Status:          o.Status,
		Email:           o.Email,
		Subtotal:        o.Subtotal,
		Shipping:        o.Shipping,
		Total:           o.Total,
		ShippingAddress: o.ShippingAddress,
		Items:           o.Items,
	})
}

func (h *CheckoutHandler) ShippingRates(w http.ResponseWriter, r *http.Request) {
	var q checkout.RateQuery
	if !decodeJSON(w, r, &q) {
		return
	}

	rates, err := h.service.ShippingRates(r.Context(), q)
	if err != nil {
		h.writeCheckoutError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rates": rates})
}
