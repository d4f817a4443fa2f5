package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dukerupert/themeshop/internal/backup"
	"github.com/dukerupert/themeshop/internal/catalog"
	"github.com/dukerupert/themeshop/internal/checkout"
	"github.com/dukerupert/themeshop/internal/email"
	"github.com/dukerupert/themeshop/internal/fulfillment"
	"github.com/dukerupert/themeshop/internal/handler"
	"github.com/dukerupert/themeshop/internal/licensing"
	"github.com/dukerupert/themeshop/internal/middleware"
	"github.com/dukerupert/themeshop/internal/printful"
	"github.com/dukerupert/themeshop/internal/reconcile"
	"github.com/dukerupert/themeshop/internal/store"
	"github.com/dukerupert/themeshop/internal/voting"
	ws "github.com/dukerupert/themeshop/internal/websocket"
)

// Deps are the external collaborators of the HTTP server. Payments,
// Partner, Mailer and Backup may be nil when the integration is not
// configured.
type Deps struct {
	DB            *sql.DB
	BaseURL       string
	WebhookSecret string
	Catalog       *catalog.Catalog
	Payments      checkout.Payments
	Partner       *printful.Client
	Mailer        *email.Client
	Backup        *backup.Manager
	Logger        *slog.Logger
}

type Server struct {
	db            *sql.DB
	hub           *ws.Hub
	authH         *handler.AuthHandler
	accountH      *handler.AccountHandler
	checkoutH     *handler.CheckoutHandler
	webhookH      *handler.WebhookHandler
	reconciler    *reconcile.Reconciler
	licenseH      *handler.LicenseHandler
	abTestH       *handler.ABTestHandler
	favoriteH     *handler.FavoriteHandler
	voteH         *handler.VoteHandler
	sessionStore  *store.SessionStore
	eventStore    *store.WebhookEventStore
	rateLimiter   *middleware.RateLimiter
	backupManager *backup.Manager
	logger        *slog.Logger
}

func New(d Deps) *Server {
	logger := d.Logger
	if d.Catalog == nil {
		d.Catalog = catalog.Default()
	}
	hub := ws.NewHub(logger)

	userStore := store.NewUserStore(d.DB)
	sessionStore := store.NewSessionStore(d.DB)
	licenseStore := store.NewLicenseStore(d.DB)
	orderStore := store.NewOrderStore(d.DB)
	abTestStore := store.NewABTestStore(d.DB)
	eventStore := store.NewWebhookEventStore(d.DB)

	// Interfaces stay nil unless the integration is configured.
	var (
		partner     fulfillment.Partner
		rates       checkout.RateQuoter
		mailer      licensing.Mailer
		orderMailer reconcile.OrderNotifier
	)
	if d.Partner != nil && d.Partner.Configured() {
		partner = d.Partner
		rates = d.Partner
	}
	if d.Mailer != nil && d.Mailer.Configured() {
		mailer = d.Mailer
		orderMailer = d.Mailer
	}

	dispatcher := fulfillment.NewDispatcher(partner, orderStore, logger)
	reconciler := reconcile.New(reconcile.Deps{
		WebhookSecret: d.WebhookSecret,
		Events:        eventStore,
		Orders:        orderStore,
		Issuer:        licensing.NewIssuer(d.DB, mailer, logger),
		Dispatcher:    dispatcher,
		Notifier:      orderMailer,
		Logger:        logger,
	})
	checkoutSvc := checkout.NewService(checkout.Deps{
		Catalog:  d.Catalog,
		Orders:   orderStore,
		Users:    userStore,
		Payments: d.Payments,
		Rates:    rates,
		Logger:   logger,
	})
	ledger := voting.NewLedger(d.DB, hub, logger)

	secure := strings.HasPrefix(d.BaseURL, "https://")
	var origins []string
	if u, err := url.Parse(d.BaseURL); err == nil && u.Host != "" {
		origins = []string{u.Host}
	}

	return &Server{
		db:            d.DB,
		hub:           hub,
		authH:         handler.NewAuthHandler(userStore, sessionStore, secure, logger.With("component", "auth")),
		accountH:      handler.NewAccountHandler(licenseStore, orderStore, logger.With("component", "account")),
		checkoutH:     handler.NewCheckoutHandler(checkoutSvc, d.Catalog, logger.With("component", "checkout_handler")),
		webhookH:      handler.NewWebhookHandler(reconciler, logger.With("component", "webhook")),
		reconciler:    reconciler,
		licenseH:      handler.NewLicenseHandler(licenseStore, logger.With("component", "license")),
		abTestH:       handler.NewABTestHandler(ledger, abTestStore, logger.With("component", "ab_test")),
		favoriteH:     handler.NewFavoriteHandler(store.NewFavoriteStore(d.DB), logger.With("component", "favorites")),
		voteH:         handler.NewVoteHandler(ledger, ws.NewUpgrader(hub, origins), secure, logger.With("component", "vote")),
		sessionStore:  sessionStore,
		eventStore:    eventStore,
		rateLimiter:   middleware.NewRateLimiter(),
		backupManager: d.Backup,
		logger:        logger,
	}
}

// Hub returns the live tally hub.
func (s *Server) Hub() *ws.Hub {
	return s.hub
}

// Shutdown waits for post-payment fulfillment and mail started by webhook
// deliveries to finish. Call it after the HTTP server has stopped accepting
// requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.reconciler.Wait(ctx)
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// StartMaintenance sweeps expired sessions and old processed-event records
// every interval until ctx is cancelled.
func (s *Server) StartMaintenance(ctx context.Context, interval time.Duration) {
	s.rateLimiter.StartCleanup(ctx, interval)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweep(ctx)
			}
		}
	}()
}

const webhookEventRetention = 90 * 24 * time.Hour

func (s *Server) sweep(ctx context.Context) {
	if n, err := s.sessionStore.DeleteExpired(ctx); err != nil {
		s.logger.Error("delete expired sessions", "error", err)
	} else if n > 0 {
		s.logger.Info("expired sessions removed", "count", n)
	}
	if n, err := s.eventStore.DeleteOlderThan(ctx, time.Now().Add(-webhookEventRetention)); err != nil {
		s.logger.Error("delete old webhook events", "error", err)
	} else if n > 0 {
		s.logger.Info("old webhook events removed", "count", n)
	}
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()
	limit := func(rule middleware.Rule, h http.HandlerFunc) http.Handler {
		return middleware.RateLimit(s.rateLimiter, rule)(h)
	}
	user := func(h http.HandlerFunc) http.Handler {
		return middleware.RequireUser(h)
	}
	premium := func(h http.HandlerFunc) http.Handler {
		return middleware.RequireUser(middleware.RequirePremium(h))
	}

	mux.HandleFunc("GET /health", s.healthHandler)

	// Accounts
	mux.Handle("POST /signup", limit(middleware.SignupRule, s.authH.Signup))
	mux.Handle("POST /login", limit(middleware.LoginRule, s.authH.Login))
	mux.Handle("POST /logout", user(s.authH.Logout))
	mux.Handle("GET /api/account", user(s.accountH.Get))

	// Checkout
	mux.HandleFunc("GET /api/store/products", s.checkoutH.Products)
	mux.Handle("POST /api/premium/checkout", user(s.checkoutH.Premium))
	mux.HandleFunc("POST /api/store/checkout", s.checkoutH.Store)
	mux.HandleFunc("GET /api/store/orders/confirmation", s.checkoutH.Confirmation)
	mux.HandleFunc("POST /api/store/shipping-rates", s.checkoutH.ShippingRates)
	mux.HandleFunc("POST /webhooks/stripe", s.webhookH.Stripe)

	// Licenses
	mux.Handle("POST /api/license/validate", limit(middleware.LicenseRule, s.licenseH.Validate))

	// A/B tests
	mux.Handle("GET /api/ab-tests", premium(s.abTestH.List))
	mux.Handle("POST /api/ab-tests", premium(s.abTestH.Create))
	mux.Handle("DELETE /api/ab-tests/{id}", premium(s.abTestH.Delete))

	// Favorites
	mux.Handle("GET /api/favorites/palettes", premium(s.favoriteH.ListPalettes))
	mux.Handle("POST /api/favorites/palettes", premium(s.favoriteH.SavePalette))
	mux.Handle("DELETE /api/favorites/palettes/{name}", premium(s.favoriteH.DeletePalette))
	mux.Handle("GET /api/favorites/fonts", premium(s.favoriteH.ListFonts))
	mux.Handle("POST /api/favorites/fonts", premium(s.favoriteH.SaveFont))
	mux.Handle("DELETE /api/favorites/fonts/{name}", premium(s.favoriteH.DeleteFont))

	// Voting
	mux.HandleFunc("GET /vote-targets/{shareCode}", s.voteH.Get)
	mux.Handle("POST /vote-targets/{shareCode}", limit(middleware.VoteRule, s.voteH.Vote))
	mux.HandleFunc("GET /vote-targets/{shareCode}/live", s.voteH.Live)

	sessions := middleware.LoadSession(s.sessionStore, s.logger.With("component", "session"))
	return middleware.RequestLogger(s.logger.With("component", "http"))(sessions(mux))
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{"status": "ok"}
	code := http.StatusOK

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		s.logger.Error("health check database ping", "error", err)
		status["status"] = "unavailable"
		code = http.StatusServiceUnavailable
	}
	if s.backupManager != nil {
		status["backup"] = s.backupManager.Status()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(status)
}
