// Package fulfillment hands paid store orders to the print-on-demand partner.
package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/themeshop/internal/model"
	"github.com/dukerupert/themeshop/internal/printful"
	"github.com/dukerupert/themeshop/internal/store"
)

const partnerTimeout = 30 * time.Second

// Partner is the subset of the partner API the dispatcher drives.
type Partner interface {
	Configured() bool
	CreateOrder(ctx context.Context, req printful.OrderRequest) (*printful.Order, error)
	ConfirmOrder(ctx context.Context, id string) (*printful.Order, error)
	GetOrderByExternalID(ctx context.Context, externalID string) (*printful.Order, error)
}

type Status string

const (
	// Skipped means preconditions were not met and nothing was sent.
	Skipped   Status = "skipped"
	Submitted Status = "submitted"
	// Failed leaves the order paid for manual follow-up.
	Failed Status = "failed"
)

type Result struct {
	Status         Status
	PartnerOrderID string
	Reason         string
	Err            error
}

type Dispatcher struct {
	partner Partner
	orders  *store.OrderStore
	logger  *slog.Logger
}

func NewDispatcher(partner Partner, orders *store.OrderStore, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		partner: partner,
		orders:  orders,
		logger:  logger.With("component", "fulfillment"),
	}
}

// Dispatch creates and confirms a partner order for o, then moves o to
// processing. Errors are logged and reported in the result, never returned.
func (d *Dispatcher) Dispatch(ctx context.Context, o *model.Order) Result {
	if res, ok := d.precheck(o); !ok {
		return res
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), partnerTimeout)
	defer cancel()

	created, err := d.partner.CreateOrder(ctx, buildRequest(o))
	if err != nil {
		return d.fail(o, "create partner order", err)
	}
	return d.confirm(ctx, o, created.ID.String())
}

// Resume finishes fulfillment for an order left in paid. A partner order
// already created for it is confirmed rather than duplicated.
func (d *Dispatcher) Resume(ctx context.Context, o *model.Order) Result {
	if res, ok := d.precheck(o); !ok {
		return res
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), partnerTimeout)
	defer cancel()

	existing, err := d.partner.GetOrderByExternalID(ctx, o.ID)
	if err != nil {
		var apiErr *printful.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return d.Dispatch(ctx, o)
		}
		return d.fail(o, "look up partner order", err)
	}

	id := existing.ID.String()
	if existing.Status != printful.StatusDraft {
		return d.record(ctx, o, id)
	}
	return d.confirm(ctx, o, id)
}

func (d *Dispatcher) precheck(o *model.Order) (Result, bool) {
	if d.partner == nil || !d.partner.Configured() {
		d.logger.Warn("fulfillment partner not configured, skipping", "order_id", o.ID)
		return Result{Status: Skipped, Reason: "partner not configured"}, false
	}
	if o.ShippingAddress == nil {
		d.logger.Warn("order has no shipping address, skipping fulfillment", "order_id", o.ID)
		return Result{Status: Skipped, Reason: "no shipping address"}, false
	}
	if o.Status != model.OrderPaid {
		d.logger.Info("order not awaiting fulfillment", "order_id", o.ID, "status", o.Status)
		return Result{Status: Skipped, Reason: "order status " + string(o.Status)}, false
	}
	return Result{}, true
}

func (d *Dispatcher) confirm(ctx context.Context, o *model.Order, partnerID string) Result {
	if _, err := d.partner.ConfirmOrder(ctx, partnerID); err != nil {
		return d.fail(o, "confirm partner order "+partnerID, err)
	}
	return d.record(ctx, o, partnerID)
}

func (d *Dispatcher) record(ctx context.Context, o *model.Order, partnerID string) Result {
	ok, err := d.orders.MarkProcessing(ctx, o.ID, partnerID)
	if err != nil {
		return d.fail(o, "record partner order "+partnerID, err)
	}
	if !ok {
		d.logger.Warn("order changed state before fulfillment was recorded", "order_id", o.ID, "partner_order_id", partnerID)
	}
	d.logger.Info("order submitted for fulfillment", "order_id", o.ID, "partner_order_id", partnerID)
	return Result{Status: Submitted, PartnerOrderID: partnerID}
}

func (d *Dispatcher) fail(o *model.Order, op string, err error) Result {
	err = fmt.Errorf("%s: %w", op, err)
	d.logger.Error("fulfillment failed, order left paid", "order_id", o.ID, "error", err)
	return Result{Status: Failed, Err: err}
}

// Sync pulls the partner's view of a processing order and applies shipment
// tracking. It returns the order as stored after the update.
func (d *Dispatcher) Sync(ctx context.Context, orderID string) (*model.Order, error) {
	o, err := d.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, store.ErrNotFound
	}
	if o.Status != model.OrderProcessing {
		return o, nil
	}
	if d.partner == nil || !d.partner.Configured() {
		return nil, fmt.Errorf("sync order %s: partner not configured", orderID)
	}

	ctx, cancel := context.WithTimeout(ctx, partnerTimeout)
	defer cancel()

	po, err := d.partner.GetOrderByExternalID(ctx, o.ID)
	if err != nil {
		return nil, fmt.Errorf("sync order %s: %w", orderID, err)
	}
	if len(po.Shipments) == 0 {
		d.logger.Info("partner order not shipped yet", "order_id", o.ID, "partner_status", po.Status)
		return o, nil
	}

	s := po.Shipments[len(po.Shipments)-1]
	ok, err := d.orders.MarkShipped(ctx, o.ID, model.Tracking{
		Carrier: s.Carrier,
		Number:  s.TrackingNumber,
		URL:     s.TrackingURL,
	})
	if err != nil {
		return nil, fmt.Errorf("sync order %s: %w", orderID, err)
	}
	if ok {
		d.logger.Info("order shipped", "order_id", o.ID, "carrier", s.Carrier, "tracking_number", s.TrackingNumber)
	}
	return d.orders.GetByID(ctx, o.ID)
}

func buildRequest(o *model.Order) printful.OrderRequest {
	a := o.ShippingAddress
	items := make([]printful.Item, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, printful.Item{SyncVariantID: it.PartnerVariantID, Quantity: it.Quantity})
	}
	return printful.OrderRequest{
		ExternalID: o.ID,
		Recipient: printful.Recipient{
			Name:        a.Name,
			Address1:    a.Line1,
			Address2:    a.Line2,
			City:        a.City,
			StateCode:   a.State,
			CountryCode: a.Country,
			Zip:         a.PostalCode,
			Email:       o.Email,
			Phone:       a.Phone,
		},
		Items: items,
		RetailCosts: &printful.RetailCosts{
			Subtotal: printful.FormatAmount(o.Subtotal),
			Shipping: printful.FormatAmount(o.Shipping),
			Total:    printful.FormatAmount(o.Total),
		},
	}
}
