package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/themeshop/internal/auth"
	"github.com/dukerupert/themeshop/internal/model"
	"github.com/dukerupert/themeshop/internal/store"
)

const maxFavoriteName = 100

// favoriteRoute names the JSON keys and messages for one favorite kind.
type favoriteRoute struct {
	kind   model.FavoriteKind
	plural string
	single string
	label  string
}

var (
	paletteRoute = favoriteRoute{kind: model.FavoritePalette, plural: "palettes", single: "palette", label: "palette"}
	fontRoute    = favoriteRoute{kind: model.FavoriteFontPairing, plural: "fonts", single: "font", label: "font pairing"}
)

type FavoriteHandler struct {
	favorites *store.FavoriteStore
	logger    *slog.Logger
}

func NewFavoriteHandler(favorites *store.FavoriteStore, logger *slog.Logger) *FavoriteHandler {
	return &FavoriteHandler{favorites: favorites, logger: logger}
}

type favoriteRequest struct {
	Name  string  `json:"name"`
	Notes *string `json:"notes"`
}

func (h *FavoriteHandler) ListPalettes(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, paletteRoute)
}

func (h *FavoriteHandler) SavePalette(w http.ResponseWriter, r *http.Request) {
	h.save(w, r, paletteRoute)
}

func (h *FavoriteHandler) DeletePalette(w http.ResponseWriter, r *http.Request) {
	h.delete(w, r, paletteRoute)
}

func (h *FavoriteHandler) ListFonts(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, fontRoute)
}

func (h *FavoriteHandler) SaveFont(w http.ResponseWriter, r *http.Request) {
	h.save(w, r, fontRoute)
}

func (h *FavoriteHandler) DeleteFont(w http.ResponseWriter, r *http.Request) {
	h.delete(w, r, fontRoute)
}

func (h *FavoriteHandler) list(w http.ResponseWriter, r *http.Request, rt favoriteRoute) {
	userID := auth.UserID(r.Context())
	favs, err := h.favorites.List(r.Context(), userID, rt.kind)
	if err != nil {
		h.logger.Error("list favorites", "kind", rt.kind, "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list "+rt.plural)
		return
	}
	if favs == nil {
		favs = []model.Favorite{}
	}
	writeJSON(w, http.StatusOK, map[string]any{rt.plural: favs})
}

func (h *FavoriteHandler) save(w http.ResponseWriter, r *http.Request, rt favoriteRoute) {
	var req favoriteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, http.StatusBadRequest, rt.label+" name is required")
		return
	}
	if len(name) > maxFavoriteName {
		writeError(w, http.StatusBadRequest, rt.label+" name is too long")
		return
	}

	userID := auth.UserID(r.Context())
	f, err := h.favorites.Save(r.Context(), userID, rt.kind, name, req.Notes)
	if errors.Is(err, store.ErrConflict) {
		writeError(w, http.StatusConflict, rt.label+" already saved")
		return
	}
	if err != nil {
		h.logger.Error("save favorite", "kind", rt.kind, "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save "+rt.label)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{rt.single: f})
}

func (h *FavoriteHandler) delete(w http.ResponseWriter, r *http.Request, rt favoriteRoute) {
	name := r.PathValue("name")
	userID := auth.UserID(r.Context())

	deleted, err := h.favorites.Delete(r.Context(), userID, rt.kind, name)
	if err != nil {
		h.logger.Error("delete favorite", "kind", rt.kind, "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete "+rt.label)
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, rt.label+" not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
