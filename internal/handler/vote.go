package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/dukerupert/themeshop/internal/voting"
	"github.com/dukerupert/themeshop/internal/websocket"
)

const (
	visitorCookieName = "ab_visitor"
	visitorCookieAge  = 365 * 24 * 60 * 60
)

type VoteHandler struct {
	ledger        *voting.Ledger
	upgrader      *websocket.Upgrader
	secureCookies bool
	logger        *slog.Logger
}

func NewVoteHandler(ledger *voting.Ledger, upgrader *websocket.Upgrader, secureCookies bool, logger *slog.Logger) *VoteHandler {
	return &VoteHandler{ledger: ledger, upgrader: upgrader, secureCookies: secureCookies, logger: logger}
}

// visitorID returns the visitor cookie value, issuing a new one when the
// browser has none.
func (h *VoteHandler) visitorID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(visitorCookieName); err == nil {
		if _, err := uuid.Parse(c.Value); err == nil {
			return c.Value
		}
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     visitorCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   visitorCookieAge,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

func (h *VoteHandler) Get(w http.ResponseWriter, r *http.Request) {
	test, err := h.ledger.Tally(r.Context(), r.PathValue("shareCode"))
	if errors.Is(err, voting.ErrTestNotFound) {
		writeError(w, http.StatusNotFound, "test not found")
		return
	}
	if err != nil {
		h.logger.Error("get tally", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load test")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":     test.Name,
		"variantA": test.VariantA,
		"variantB": test.VariantB,
		"isPublic": test.IsPublic,
		"endsAt":   test.EndsAt,
		"votesA":   test.VotesA,
		"votesB":   test.VotesB,
	})
}

func (h *VoteHandler) Vote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Variant string `json:"variant"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	shareCode := r.PathValue("shareCode")
	tally, err := h.ledger.Vote(r.Context(), shareCode, h.visitorID(w, r), req.Variant)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"votesA":  tally.VotesA,
			"votesB":  tally.VotesB,
		})
	case errors.Is(err, voting.ErrInvalidVariant):
		writeError(w, http.StatusBadRequest, `invalid variant, must be "a" or "b"`)
	case errors.Is(err, voting.ErrTestNotFound):
		writeError(w, http.StatusNotFound, "test not found")
	case errors.Is(err, voting.ErrTestPrivate):
		writeError(w, http.StatusForbidden, "this test is not accepting votes")
	case errors.Is(err, voting.ErrTestEnded):
		writeError(w, http.StatusBadRequest, "this test has ended")
	case errors.Is(err, voting.ErrAlreadyVoted):
		writeError(w, http.StatusConflict, "you have already voted on this test")
	default:
		h.logger.Error("record vote", "share_code", shareCode, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to record vote")
	}
}

// Live streams tally updates for a test over a websocket, starting with the
// current counters.
func (h *VoteHandler) Live(w http.ResponseWriter, r *http.Request) {
	shareCode := r.PathValue("shareCode")
	test, err := h.ledger.Tally(r.Context(), shareCode)
	if errors.Is(err, voting.ErrTestNotFound) {
		writeError(w, http.StatusNotFound, "test not found")
		return
	}
	if err != nil {
		h.logger.Error("get tally", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load test")
		return
	}
	h.upgrader.Serve(w, r, shareCode, websocket.NewTallyMessage(shareCode, test.VotesA, test.VotesB))
}
