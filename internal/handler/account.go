package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/themeshop/internal/auth"
	"github.com/dukerupert/themeshop/internal/model"
	"github.com/dukerupert/themeshop/internal/store"
)

type AccountHandler struct {
	licenses *store.LicenseStore
	orders   *store.OrderStore
	logger   *slog.Logger
}

func NewAccountHandler(licenses *store.LicenseStore, orders *store.OrderStore, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{licenses: licenses, orders: orders, logger: logger}
}

type accountResponse struct {
	User      *model.User    `json:"user"`
	IsPremium bool           `json:"isPremium"`
	License   *model.License `json:"license"`
	Orders    []model.Order  `json:"orders"`
}

// Get returns the signed-in user with their latest license and orders,
// newest first.
func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	user := auth.User(r.Context())

	license, err := h.licenses.LatestForUser(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("latest license", "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load account")
		return
	}
	orders, err := h.orders.ListByUser(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("list orders", "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load account")
		return
	}
	if orders == nil {
		orders = []model.Order{}
	}

	writeJSON(w, http.StatusOK, accountResponse{
		User:      user,
		IsPremium: user.IsPremium,
		License:   license,
		Orders:    orders,
	})
}
