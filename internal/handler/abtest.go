package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/themeshop/internal/auth"
	"github.com/dukerupert/themeshop/internal/model"
	"github.com/dukerupert/themeshop/internal/store"
	"github.com/dukerupert/themeshop/internal/voting"
)

type ABTestHandler struct {
	ledger *voting.Ledger
	tests  *store.ABTestStore
	logger *slog.Logger
}

func NewABTestHandler(ledger *voting.Ledger, tests *store.ABTestStore, logger *slog.Logger) *ABTestHandler {
	return &ABTestHandler{ledger: ledger, tests: tests, logger: logger}
}

type variantRequest struct {
	Name    string  `json:"name"`
	Palette string  `json:"palette"`
	Font    *string `json:"font"`
}

type abTestRequest struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	VariantA    variantRequest `json:"variantA"`
	VariantB    variantRequest `json:"variantB"`
	IsPublic    *bool          `json:"isPublic"`
	EndsAt      *time.Time     `json:"endsAt"`
}

func (h *ABTestHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	tests, err := h.tests.ListByUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("list ab tests", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list tests")
		return
	}
	if tests == nil {
		tests = []model.ABTest{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tests": tests})
}

func (h *ABTestHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req abTestRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	t := &model.ABTest{
		UserID:      auth.UserID(r.Context()),
		Name:        req.Name,
		Description: req.Description,
		VariantA:    model.Variant{Name: req.VariantA.Name, Palette: req.VariantA.Palette, Font: req.VariantA.Font},
		VariantB:    model.Variant{Name: req.VariantB.Name, Palette: req.VariantB.Palette, Font: req.VariantB.Font},
		IsPublic:    true,
		EndsAt:      req.EndsAt,
	}
	if req.IsPublic != nil {
		t.IsPublic = *req.IsPublic
	}

	created, err := h.ledger.CreateTest(r.Context(), t)
	var verr *voting.ValidationError
	if errors.As(err, &verr) {
		writeError(w, http.StatusBadRequest, verr.Error())
		return
	}
	if err != nil {
		h.logger.Error("create ab test", "user_id", t.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create test")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"test": created})
}

// Delete removes one of the caller's tests. Tests owned by someone else
// are reported as not found.
func (h *ABTestHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	userID := auth.UserID(r.Context())

	deleted, err := h.tests.Delete(r.Context(), id, userID)
	if err != nil {
		h.logger.Error("delete ab test", "test_id", id, "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete test")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "test not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
