package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/themeshop/internal/store"
)

type LicenseHandler struct {
	licenses *store.LicenseStore
	logger   *slog.Logger
}

func NewLicenseHandler(licenses *store.LicenseStore, logger *slog.Logger) *LicenseHandler {
	return &LicenseHandler{licenses: licenses, logger: logger}
}

type licenseValidation struct {
	Valid       bool       `json:"valid"`
	PurchasedAt *time.Time `json:"purchasedAt,omitempty"`
	Reason      string     `json:"reason,omitempty"`
}

// Validate reports whether a license key exists. Keys are matched
// case-insensitively after trimming.
func (h *LicenseHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Key string `json:"key"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	key := strings.ToUpper(strings.TrimSpace(req.Key))
	if key == "" {
		writeError(w, http.StatusBadRequest, "key is required")
		return
	}

	lic, err := h.licenses.GetByKey(r.Context(), key)
	if err != nil {
		h.logger.Error("look up license", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to validate license")
		return
	}
	if lic == nil {
		writeJSON(w, http.StatusOK, licenseValidation{Valid: false, Reason: "not_found"})
		return
	}
	writeJSON(w, http.StatusOK, licenseValidation{Valid: true, PurchasedAt: &lic.PurchasedAt})
}
