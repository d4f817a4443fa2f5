// Package auth carries the signed-in user through request contexts and
// owns the session cookie.
package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/dukerupert/themeshop/internal/model"
)

const SessionCookieName = "themeshop_session"

type contextKey struct{}

type AuthContext struct {
	User    *model.User
	Session *model.Session
}

func WithAuth(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

func FromContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(contextKey{}).(AuthContext)
	if !ok || ac.User == nil {
		return AuthContext{}, false
	}
	return ac, true
}

// User returns the signed-in user, or nil for anonymous requests.
func User(ctx context.Context) *model.User {
	ac, ok := FromContext(ctx)
	if !ok {
		return nil
	}
	return ac.User
}

func UserID(ctx context.Context) string {
	if u := User(ctx); u != nil {
		return u.ID
	}
	return ""
}

func IsPremium(ctx context.Context) bool {
	u := User(ctx)
	return u != nil && u.IsPremium
}

// SetSessionCookie writes the session token as an http-only cookie that
// expires with the session.
func SetSessionCookie(w http.ResponseWriter, sess *model.Session, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		MaxAge:   int(time.Until(sess.ExpiresAt).Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
