package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dukerupert/themeshop/internal/auth"
	"github.com/dukerupert/themeshop/internal/database"
	"github.com/dukerupert/themeshop/internal/model"
	"github.com/dukerupert/themeshop/internal/store"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createUser(t *testing.T, db *sql.DB, email string, premium bool) *model.User {
	t.Helper()
	ctx := context.Background()
	users := store.NewUserStore(db)
	u, err := users.Create(ctx, email, "password123", "Test User")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if premium {
		if err := users.SetPremium(ctx, u.ID, true); err != nil {
			t.Fatalf("set premium: %v", err)
		}
		u.IsPremium = true
	}
	return u
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func asUser(req *http.Request, u *model.User) *http.Request {
	ctx := auth.WithAuth(req.Context(), auth.AuthContext{User: u})
	return req.WithContext(ctx)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
}

func TestDecodeJSONErrors(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var v map[string]any
		if decodeJSON(w, r, &v) {
			w.WriteHeader(http.StatusOK)
		}
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty body: status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/", bytes.NewBufferString("{not json")))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad json: status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	big := bytes.Repeat([]byte("a"), maxBodyBytes+10)
	body := append([]byte(`{"a":"`), append(big, []byte(`"}`)...)...)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/", bytes.NewReader(body)))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("large body: status = %d, want %d", rec.Code, http.StatusRequestEntityTooLarge)
	}
}

func TestSignup(t *testing.T) {
	db := setupDB(t)
	h := NewAuthHandler(store.NewUserStore(db), store.NewSessionStore(db), false, slog.Default())

	rec := httptest.NewRecorder()
	h.Signup(rec, jsonRequest(t, "POST", "/signup", map[string]string{
		"email": "new@example.com", "password": "longenough", "name": "New",
	}))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusCreated, rec.Body.String())
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != auth.SessionCookieName || cookies[0].Value == "" {
		t.Fatalf("expected session cookie, got %v", cookies)
	}

	var resp struct {
		User model.User `json:"user"`
	}
	decodeBody(t, rec, &resp)
	if resp.User.Email != "new@example.com" {
		t.Errorf("email = %q", resp.User.Email)
	}
}

func TestSignupDuplicateEmail(t *testing.T) {
	db := setupDB(t)
	createUser(t, db, "taken@example.com", false)
	h := NewAuthHandler(store.NewUserStore(db), store.NewSessionStore(db), false, slog.Default())

	rec := httptest.NewRecorder()
	h.Signup(rec, jsonRequest(t, "POST", "/signup", map[string]string{
		"email": "Taken@Example.com", "password": "longenough",
	}))
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusConflict)
	}
}

func TestSignupValidation(t *testing.T) {
	db := setupDB(t)
	h := NewAuthHandler(store.NewUserStore(db), store.NewSessionStore(db), false, slog.Default())

	for _, body := range []map[string]string{
		{"email": "not-an-email", "password": "longenough"},
		{"email": "Someone <a@example.com>", "password": "longenough"},
		{"email": "a@example.com", "password": "short"},
	} {
		rec := httptest.NewRecorder()
		h.Signup(rec, jsonRequest(t, "POST", "/signup", body))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%v: status = %d, want %d", body, rec.Code, http.StatusBadRequest)
		}
	}
}

func TestLogin(t *testing.T) {
	db := setupDB(t)
	createUser(t, db, "buyer@example.com", false)
	h := NewAuthHandler(store.NewUserStore(db), store.NewSessionStore(db), true, slog.Default())

	rec := httptest.NewRecorder()
	h.Login(rec, jsonRequest(t, "POST", "/login", map[string]string{
		"email": "buyer@example.com", "password": "password123",
	}))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || !cookies[0].Secure {
		t.Fatalf("expected secure session cookie, got %v", cookies)
	}

	rec = httptest.NewRecorder()
	h.Login(rec, jsonRequest(t, "POST", "/login", map[string]string{
		"email": "buyer@example.com", "password": "wrong-password",
	}))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong password: status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}

	rec = httptest.NewRecorder()
	h.Login(rec, jsonRequest(t, "POST", "/login", map[string]string{"email": "buyer@example.com"}))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing password: status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestLogout(t *testing.T) {
	db := setupDB(t)
	u := createUser(t, db, "buyer@example.com", false)
	sessions := store.NewSessionStore(db)
	sess, err := sessions.Create(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	h := NewAuthHandler(store.NewUserStore(db), sessions, false, slog.Default())

	req := httptest.NewRequest("POST", "/logout", nil)
	req.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: sess.Token})
	rec := httptest.NewRecorder()
	h.Logout(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	got, err := sessions.GetByToken(context.Background(), sess.Token)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got != nil {
		t.Error("session should be invalidated")
	}
}

func TestAccount(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	u := createUser(t, db, "buyer@example.com", true)

	licenses := store.NewLicenseStore(db)
	if _, err := licenses.Create(ctx, &model.License{UserID: u.ID, Key: "TF-AAAA-BBBB-CCCC-DDDD", AmountPaid: 4999, Currency: "usd"}); err != nil {
		t.Fatalf("create license: %v", err)
	}
	orders := store.NewOrderStore(db)
	if _, err := orders.Create(ctx, &model.Order{
		Email:  u.Email,
		UserID: &u.ID,
		Items:  []model.LineItem{{ProductID: "palette-mug", VariantID: "palette-mug-11oz", Name: "Palette Mug", Quantity: 1, UnitPrice: 1500}},
	}); err != nil {
		t.Fatalf("create order: %v", err)
	}

	h := NewAccountHandler(licenses, orders, slog.Default())
	rec := httptest.NewRecorder()
	h.Get(rec, asUser(httptest.NewRequest("GET", "/api/account", nil), u))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var resp accountResponse
	decodeBody(t, rec, &resp)
	if !resp.IsPremium {
		t.Error("expected premium account")
	}
	if resp.License == nil || resp.License.Key != "TF-AAAA-BBBB-CCCC-DDDD" {
		t.Errorf("license = %+v", resp.License)
	}
	if len(resp.Orders) != 1 || resp.Orders[0].Total != 1500 {
		t.Errorf("orders = %+v", resp.Orders)
	}
}

func TestAccountEmpty(t *testing.T) {
	db := setupDB(t)
	u := createUser(t, db, "new@example.com", false)
	h := NewAccountHandler(store.NewLicenseStore(db), store.NewOrderStore(db), slog.Default())

	rec := httptest.NewRecorder()
	h.Get(rec, asUser(httptest.NewRequest("GET", "/api/account", nil), u))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var resp map[string]any
	decodeBody(t, rec, &resp)
	if resp["license"] != nil {
		t.Errorf("license = %v, want null", resp["license"])
	}
	if orders, ok := resp["orders"].([]any); !ok || len(orders) != 0 {
		t.Errorf("orders = %v, want empty list", resp["orders"])
	}
}

func TestLicenseValidate(t *testing.T) {
	db := setupDB(t)
	u := createUser(t, db, "buyer@example.com", true)
	licenses := store.NewLicenseStore(db)
	if _, err := licenses.Create(context.Background(), &model.License{UserID: u.ID, Key: "TF-WXYZ-2345-ABCD-EFGH", AmountPaid: 4999, Currency: "usd"}); err != nil {
		t.Fatalf("create license: %v", err)
	}
	h := NewLicenseHandler(licenses, slog.Default())

	rec := httptest.NewRecorder()
	h.Validate(rec, jsonRequest(t, "POST", "/api/license/validate", map[string]string{"key": " tf-wxyz-2345-abcd-efgh "}))
	var ok licenseValidation
	decodeBody(t, rec, &ok)
	if !ok.Valid || ok.PurchasedAt == nil {
		t.Errorf("valid key: got %+v", ok)
	}

	rec = httptest.NewRecorder()
	h.Validate(rec, jsonRequest(t, "POST", "/api/license/validate", map[string]string{"key": "TF-NOPE-NOPE-NOPE-NOPE"}))
	var missing licenseValidation
	decodeBody(t, rec, &missing)
	if missing.Valid || missing.Reason != "not_found" {
		t.Errorf("unknown key: got %+v", missing)
	}

	rec = httptest.NewRecorder()
	h.Validate(rec, jsonRequest(t, "POST", "/api/license/validate", map[string]string{"key": ""}))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty key: status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}
