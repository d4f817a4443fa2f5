package server

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/dukerupert/themeshop/internal/auth"
	"github.com/dukerupert/themeshop/internal/database"
	"github.com/dukerupert/themeshop/internal/middleware"
	"github.com/dukerupert/themeshop/internal/model"
	"github.com/dukerupert/themeshop/internal/store"
)

func setupServer(t *testing.T) (*Server, *sql.DB) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(Deps{DB: db, BaseURL: "http://shop.test", Logger: slog.Default()}), db
}

func do(t *testing.T, h http.Handler, method, target string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "192.0.2.10:5000"
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func cookieNamed(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestHealth(t *testing.T) {
	srv, db := setupServer(t)
	router := srv.Router()

	rec := do(t, router, "GET", "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected a request id header")
	}
	var body map[string]any
	json.NewDecoder(rec.Body).Decode(&body)
	if body["status"] != "ok" {
		t.Errorf("status = %v, want ok", body["status"])
	}

	db.Close()
	rec = do(t, router, "GET", "/health", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("closed db: status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestRouteGating(t *testing.T) {
	srv, db := setupServer(t)
	router := srv.Router()

	for _, route := range []struct{ method, target string }{
		{"GET", "/api/account"},
		{"POST", "/api/premium/checkout"},
		{"GET", "/api/ab-tests"},
		{"POST", "/api/ab-tests"},
		{"DELETE", "/api/ab-tests/abc"},
		{"GET", "/api/favorites/palettes"},
		{"POST", "/api/favorites/palettes"},
		{"DELETE", "/api/favorites/palettes/Sunset"},
		{"GET", "/api/favorites/fonts"},
		{"POST", "/api/favorites/fonts"},
		{"DELETE", "/api/favorites/fonts/Inter"},
		{"POST", "/logout"},
	} {
		rec := do(t, router, route.method, route.target, nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s anonymous: status = %d, want %d", route.method, route.target, rec.Code, http.StatusUnauthorized)
		}
	}

	ctx := context.Background()
	u, err := store.NewUserStore(db).Create(ctx, "free@example.com", "password123", "")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	sess, err := store.NewSessionStore(db).Create(ctx, u.ID)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	cookie := &http.Cookie{Name: auth.SessionCookieName, Value: sess.Token}

	rec := do(t, router, "GET", "/api/ab-tests", nil, cookie)
	if rec.Code != http.StatusForbidden {
		t.Errorf("free user: status = %d, want %d", rec.Code, http.StatusForbidden)
	}
	for _, target := range []string{"/api/favorites/palettes", "/api/favorites/fonts"} {
		rec = do(t, router, "POST", target, map[string]string{"name": "Sunset"}, cookie)
		if rec.Code != http.StatusForbidden {
			t.Errorf("free user POST %s: status = %d, want %d", target, rec.Code, http.StatusForbidden)
		}
	}
	rec = do(t, router, "GET", "/api/account", nil, cookie)
	if rec.Code != http.StatusOK {
		t.Errorf("account: status = %d, want %d", rec.Code, http.StatusOK)
	}

	rec = do(t, router, "POST", "/api/premium/checkout", nil, cookie)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("premium checkout without payments: status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestFavoritesFlow(t *testing.T) {
	srv, db := setupServer(t)
	router := srv.Router()
	ctx := context.Background()

	users := store.NewUserStore(db)
	u, err := users.Create(ctx, "pro@example.com", "password123", "")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := users.SetPremium(ctx, u.ID, true); err != nil {
		t.Fatalf("set premium: %v", err)
	}
	sess, err := store.NewSessionStore(db).Create(ctx, u.ID)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	cookie := &http.Cookie{Name: auth.SessionCookieName, Value: sess.Token}

	rec := do(t, router, "POST", "/api/favorites/palettes", map[string]string{"name": "Sunset"}, cookie)
	if rec.Code != http.StatusCreated {
		t.Fatalf("save: status = %d, want %d: %s", rec.Code, http.StatusCreated, rec.Body.String())
	}
	rec = do(t, router, "POST", "/api/favorites/palettes", map[string]string{"name": "Sunset"}, cookie)
	if rec.Code != http.StatusConflict || !strings.Contains(rec.Body.String(), "already saved") {
		t.Errorf("duplicate: status = %d body = %s", rec.Code, rec.Body.String())
	}
	rec = do(t, router, "POST", "/api/favorites/fonts", map[string]string{"name": "Sunset"}, cookie)
	if rec.Code != http.StatusCreated {
		t.Errorf("font with a palette's name: status = %d, want %d", rec.Code, http.StatusCreated)
	}

	rec = do(t, router, "GET", "/api/favorites/palettes", nil, cookie)
	var list struct {
		Palettes []model.Favorite `json:"palettes"`
	}
	json.NewDecoder(rec.Body).Decode(&list)
	if len(list.Palettes) != 1 || list.Palettes[0].Name != "Sunset" {
		t.Errorf("palettes = %+v", list.Palettes)
	}

	rec = do(t, router, "DELETE", "/api/favorites/palettes/Sunset", nil, cookie)
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete: status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	rec = do(t, router, "DELETE", "/api/favorites/palettes/Sunset", nil, cookie)
	if rec.Code != http.StatusNotFound {
		t.Errorf("second delete: status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestShutdownWithNoBackgroundWork(t *testing.T) {
	srv, _ := setupServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func TestLoginRateLimited(t *testing.T) {
	srv, _ := setupServer(t)
	router := srv.Router()

	creds := map[string]string{"email": "nobody@example.com", "password": "wrong-password"}
	for i := 0; i < middleware.LoginRule.Limit; i++ {
		rec := do(t, router, "POST", "/login", creds)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: status = %d, want %d", i+1, rec.Code, http.StatusUnauthorized)
		}
	}
	rec := do(t, router, "POST", "/login", creds)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusTooManyRequests)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}

func TestWebhookRequiresSignature(t *testing.T) {
	srv, _ := setupServer(t)

	rec := do(t, srv.Router(), "POST", "/webhooks/stripe", map[string]string{"id": "evt_1"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestSignupToVoteFlow(t *testing.T) {
	srv, db := setupServer(t)
	router := srv.Router()

	rec := do(t, router, "POST", "/signup", map[string]string{
		"email":    "designer@example.com",
		"password": "correct-horse",
		"name":     "Designer",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup: status = %d, want %d: %s", rec.Code, http.StatusCreated, rec.Body.String())
	}
	session := cookieNamed(rec, auth.SessionCookieName)
	if session == nil {
		t.Fatal("expected a session cookie from signup")
	}

	rec = do(t, router, "GET", "/api/account", nil, session)
	var account struct {
		User struct {
			ID    string `json:"id"`
			Email string `json:"email"`
		} `json:"user"`
		IsPremium bool `json:"isPremium"`
	}
	json.NewDecoder(rec.Body).Decode(&account)
	if account.User.Email != "designer@example.com" || account.IsPremium {
		t.Fatalf("account = %+v", account)
	}

	// Premium is granted out of band by a license purchase.
	if err := store.NewUserStore(db).SetPremium(context.Background(), account.User.ID, true); err != nil {
		t.Fatalf("set premium: %v", err)
	}

	rec = do(t, router, "POST", "/api/ab-tests", map[string]any{
		"name":     "Landing page",
		"variantA": map[string]string{"name": "Dusk", "palette": "dusk"},
		"variantB": map[string]string{"name": "Dawn", "palette": "dawn"},
	}, session)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create test: status = %d, want %d: %s", rec.Code, http.StatusCreated, rec.Body.String())
	}
	var created struct {
		Test struct {
			ShareCode string `json:"share_code"`
		} `json:"test"`
	}
	json.NewDecoder(rec.Body).Decode(&created)
	code := created.Test.ShareCode

	rec = do(t, router, "POST", "/vote-targets/"+code, map[string]string{"variant": "b"})
	if rec.Code != http.StatusOK {
		t.Fatalf("vote: status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	visitor := cookieNamed(rec, "ab_visitor")
	rec = do(t, router, "POST", "/vote-targets/"+code, map[string]string{"variant": "b"}, visitor)
	if rec.Code != http.StatusConflict {
		t.Errorf("repeat vote: status = %d, want %d", rec.Code, http.StatusConflict)
	}

	rec = do(t, router, "GET", "/vote-targets/"+code, nil)
	var tally struct {
		VotesA int64 `json:"votesA"`
		VotesB int64 `json:"votesB"`
	}
	json.NewDecoder(rec.Body).Decode(&tally)
	if tally.VotesA != 0 || tally.VotesB != 1 {
		t.Errorf("tally = %+v, want 0/1", tally)
	}

	rec = do(t, router, "POST", "/logout", nil, session)
	if rec.Code != http.StatusNoContent {
		t.Errorf("logout: status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	rec = do(t, router, "GET", "/api/account", nil, session)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("account after logout: status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestLiveTally(t *testing.T) {
	srv, db := setupServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	u, err := store.NewUserStore(db).Create(ctx, "owner@example.com", "password123", "")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := store.NewABTestStore(db).Create(ctx, testFixture(u.ID)); err != nil {
		t.Fatalf("create test: %v", err)
	}

	resp, err := http.Get(ts.URL + "/vote-targets/missing1/live")
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing test: status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/vote-targets/live0001/live", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	var msg struct {
		Type   string `json:"type"`
		VotesA int64  `json:"votesA"`
		VotesB int64  `json:"votesB"`
	}
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read initial: %v", err)
	}
	json.Unmarshal(data, &msg)
	if msg.Type != "vote_tally" || msg.VotesA != 0 {
		t.Errorf("initial = %+v", msg)
	}

	deadline := time.Now().Add(2 * time.Second)
	for srv.Hub().TopicCount("live0001") == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	vote, err := http.Post(ts.URL+"/vote-targets/live0001", "application/json", strings.NewReader(`{"variant":"a"}`))
	if err != nil {
		t.Fatalf("vote: %v", err)
	}
	vote.Body.Close()
	if vote.StatusCode != http.StatusOK {
		t.Fatalf("vote: status = %d, want %d", vote.StatusCode, http.StatusOK)
	}

	_, data, err = conn.Read(ctx)
	if err != nil {
		t.Fatalf("read update: %v", err)
	}
	json.Unmarshal(data, &msg)
	if msg.VotesA != 1 || msg.VotesB != 0 {
		t.Errorf("update = %+v, want 1/0", msg)
	}
}

func testFixture(userID string) *model.ABTest {
	return &model.ABTest{
		UserID:    userID,
		Name:      "Live test",
		VariantA:  model.Variant{Name: "Dusk", Palette: "dusk"},
		VariantB:  model.Variant{Name: "Dawn", Palette: "dawn"},
		IsPublic:  true,
		ShareCode: "live0001",
	}
}
