// Package reconcile applies verified payment provider webhook events to
// local orders and licenses.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/themeshop/internal/catalog"
	"github.com/dukerupert/themeshop/internal/email"
	"github.com/dukerupert/themeshop/internal/fulfillment"
	"github.com/dukerupert/themeshop/internal/licensing"
	"github.com/dukerupert/themeshop/internal/model"
	"github.com/dukerupert/themeshop/internal/store"
	shopstripe "github.com/dukerupert/themeshop/internal/stripe"
)

const mailTimeout = 15 * time.Second

// ErrInvalidSignature means the payload could not be authenticated.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// Outcome describes what handling an event did. Every outcome other than a
// signature failure is acknowledged to the provider.
type Outcome string

const (
	OutcomeIgnored          Outcome = "ignored"
	OutcomeDuplicate        Outcome = "duplicate"
	OutcomeNotPaid          Outcome = "not_paid"
	OutcomePaymentFailed    Outcome = "payment_failed"
	OutcomeMalformed        Outcome = "malformed"
	OutcomeOrderPaid        Outcome = "order_paid"
	OutcomeOrderAlreadyPaid Outcome = "order_already_paid"
	OutcomeOrderNotFound    Outcome = "order_not_found"
	OutcomeLicenseIssued    Outcome = "license_issued"
	OutcomeLicenseExists    Outcome = "license_exists"
	OutcomeUserNotFound     Outcome = "user_not_found"
	// OutcomeFailed is an internal error. The event is not recorded, but
	// the handler still answers 200 so the provider will not redeliver it
	// on its own. Only a manual resend from the provider dashboard retries
	// it.
	OutcomeFailed Outcome = "failed"
)

type LicenseIssuer interface {
	Issue(ctx context.Context, p licensing.Purchase) (*licensing.Result, error)
}

type OrderDispatcher interface {
	Dispatch(ctx context.Context, o *model.Order) fulfillment.Result
}

type OrderNotifier interface {
	SendOrderConfirmation(ctx context.Context, toEmail string, o email.OrderSummary) error
}

type Reconciler struct {
	secret     string
	events     *store.WebhookEventStore
	orders     *store.OrderStore
	issuer     LicenseIssuer
	dispatcher OrderDispatcher
	notifier   OrderNotifier
	logger     *slog.Logger

	// tasks tracks post-payment fulfillment and mail that run after the
	// webhook has been acknowledged.
	tasks sync.WaitGroup
}

type Deps struct {
	WebhookSecret string
	Events        *store.WebhookEventStore
	Orders        *store.OrderStore
	Issuer        LicenseIssuer
	Dispatcher    OrderDispatcher
	Notifier      OrderNotifier
	Logger        *slog.Logger
}

func New(d Deps) *Reconciler {
	return &Reconciler{
		secret:     d.WebhookSecret,
		events:     d.Events,
		orders:     d.Orders,
		issuer:     d.Issuer,
		dispatcher: d.Dispatcher,
		notifier:   d.Notifier,
		logger:     d.Logger.With("component", "reconcile"),
	}
}

// Wait blocks until every background task started by Apply has finished
// or ctx is done.
func (r *Reconciler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.tasks.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HandleEvent verifies payload against sigHeader and applies the event.
// The only error it returns is ErrInvalidSignature.
func (r *Reconciler) HandleEvent(ctx context.Context, payload []byte, sigHeader string) (Outcome, error) {
	if r.secret == "" || sigHeader == "" {
		return "", ErrInvalidSignature
	}
	raw, err := shopstripe.VerifyEvent(payload, sigHeader, r.secret)
	if err != nil {
		r.logger.Warn("webhook signature verification failed", "error", err)
		return "", ErrInvalidSignature
	}

	ev, err := Decode(raw)
	if err != nil {
		r.logger.Error("decode webhook event", "event_id", raw.ID, "type", raw.Type, "error", err)
		return OutcomeMalformed, nil
	}
	return r.Apply(ctx, ev), nil
}

// Apply runs the branch for ev unless the event was already processed.
func (r *Reconciler) Apply(ctx context.Context, ev Event) Outcome {
	log := r.logger.With("event_id", ev.eventID(), "type", ev.eventType())

	if ev.eventID() != "" {
		seen, err := r.events.Seen(ctx, ev.eventID())
		if err != nil {
			log.Error("check processed events", "error", err)
			return OutcomeFailed
		}
		if seen {
			log.Info("event already processed")
			return OutcomeDuplicate
		}
	}

	var outcome Outcome
	switch e := ev.(type) {
	case *CheckoutCompleted:
		outcome = r.checkoutCompleted(ctx, log, e)
	case *PaymentFailed:
		log.Warn("payment failed", "payment_intent_id", e.PaymentIntentID, "reason", e.Message)
		outcome = OutcomePaymentFailed
	default:
		log.Debug("ignoring event")
		outcome = OutcomeIgnored
	}

	if outcome == OutcomeFailed || ev.eventID() == "" {
		return outcome
	}
	if _, err := r.events.Record(ctx, ev.eventID(), ev.eventType()); err != nil {
		log.Error("record processed event", "error", err)
	}
	return outcome
}

func (r *Reconciler) checkoutCompleted(ctx context.Context, log *slog.Logger, e *CheckoutCompleted) Outcome {
	log = log.With("session_id", e.SessionID)
	if !e.Paid() {
		log.Info("checkout completed without payment", "payment_status", e.PaymentStatus)
		return OutcomeNotPaid
	}

	if e.Metadata["type"] == shopstripe.PurchaseTypeStoreOrder {
		return r.storeOrder(ctx, log, e)
	}
	return r.premiumPurchase(ctx, log, e)
}

func (r *Reconciler) storeOrder(ctx context.Context, log *slog.Logger, e *CheckoutCompleted) Outcome {
	orderID := e.Metadata["orderId"]
	if orderID == "" {
		log.Error("store order event missing order id")
		return OutcomeMalformed
	}
	log = log.With("order_id", orderID)

	o, err := r.orders.GetByID(ctx, orderID)
	if err != nil {
		log.Error("load order", "error", err)
		return OutcomeFailed
	}
	if o == nil {
		log.Error("order for paid checkout not found")
		return OutcomeOrderNotFound
	}

	paid, err := r.orders.MarkPaid(ctx, orderID, store.Payment{
		Email:           e.CustomerEmail,
		Address:         e.Address,
		Shipping:        e.ShippingCost,
		PaymentIntentID: e.PaymentIntentID,
	})
	if err != nil {
		log.Error("mark order paid", "error", err)
		return OutcomeFailed
	}
	if !paid {
		log.Info("order already past pending", "status", o.Status)
		return OutcomeOrderAlreadyPaid
	}

	o, err = r.orders.GetByID(ctx, orderID)
	if err != nil || o == nil {
		log.Error("reload paid order", "error", err)
		return OutcomeOrderPaid
	}
	log.Info("order paid", "total", o.Total, "shipping", o.Shipping)

	bg := context.WithoutCancel(ctx)
	r.tasks.Go(func() {
		if r.dispatcher != nil {
			res := r.dispatcher.Dispatch(bg, o)
			log.Info("fulfillment attempted", "result", res.Status, "partner_order_id", res.PartnerOrderID)
		}
		r.confirmOrder(bg, log, o)
	})
	return OutcomeOrderPaid
}

func (r *Reconciler) confirmOrder(ctx context.Context, log *slog.Logger, o *model.Order) {
	if r.notifier == nil || o.Email == "" {
		return
	}
	summary := email.OrderSummary{OrderID: o.ID, Total: catalog.FormatPrice(o.Total)}
	for _, it := range o.Items {
		line := fmt.Sprintf("%d x %s", it.Quantity, it.Name)
		if it.Size != "" || it.Color != "" {
			line += fmt.Sprintf(" (%s %s)", it.Size, it.Color)
		}
		summary.Lines = append(summary.Lines, line)
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), mailTimeout)
	defer cancel()
	if err := r.notifier.SendOrderConfirmation(ctx, o.Email, summary); err != nil {
		log.Error("send order confirmation", "error", err)
	}
}

func (r *Reconciler) premiumPurchase(ctx context.Context, log *slog.Logger, e *CheckoutCompleted) Outcome {
	userID := e.Metadata["userId"]
	if userID == "" {
		log.Error("premium purchase event missing user id")
		return OutcomeMalformed
	}
	log = log.With("user_id", userID)

	res, err := r.issuer.Issue(ctx, licensing.Purchase{
		UserID:          userID,
		SessionID:       e.SessionID,
		PaymentIntentID: e.PaymentIntentID,
		Amount:          e.AmountTotal,
		Currency:        e.Currency,
	})
	if errors.Is(err, licensing.ErrUserNotFound) {
		log.Error("premium purchase for unknown user")
		return OutcomeUserNotFound
	}
	if err != nil {
		log.Error("issue license", "error", err)
		return OutcomeFailed
	}
	if !res.Created {
		return OutcomeLicenseExists
	}
	return OutcomeLicenseIssued
}
