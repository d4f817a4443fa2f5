package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dukerupert/themeshop/internal/catalog"
	"github.com/dukerupert/themeshop/internal/fulfillment"
	"github.com/dukerupert/themeshop/internal/model"
	"github.com/dukerupert/themeshop/internal/printful"
	"github.com/dukerupert/themeshop/internal/store"
)

func ordersCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orders",
		Short: "Inspect and advance store orders",
	}
	cmd.AddCommand(ordersListCmd(a))
	cmd.AddCommand(ordersFulfillCmd(a))
	cmd.AddCommand(ordersSyncCmd(a))
	cmd.AddCommand(ordersDeliverCmd(a))
	cmd.AddCommand(ordersCancelCmd(a))
	return cmd
}

func (a *app) dispatcher() *fulfillment.Dispatcher {
	var partner fulfillment.Partner
	if pf := printful.NewClient(a.cfg.Printful.APIKey, a.cfg.Printful.StoreID); pf.Configured() {
		partner = pf
	}
	return fulfillment.NewDispatcher(partner, store.NewOrderStore(a.db), a.logger)
}

func (a *app) order(cmd *cobra.Command, id string) (*model.Order, error) {
	o, err := store.NewOrderStore(a.db).GetByID(cmd.Context(), id)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, fmt.Errorf("order %s: %w", id, store.ErrNotFound)
	}
	return o, nil
}

func ordersListCmd(a *app) *cobra.Command {
	var status string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent orders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			orders := store.NewOrderStore(a.db)
			var (
				list []model.Order
				err  error
			)
			if status != "" {
				list, err = orders.ListByStatus(cmd.Context(), model.OrderStatus(status), limit)
			} else {
				list, err = orders.List(cmd.Context(), limit)
			}
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTATUS\tEMAIL\tTOTAL\tPARTNER\tCREATED")
			for _, o := range list {
				partner := "-"
				if o.PartnerOrderID != nil {
					partner = *o.PartnerOrderID
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					o.ID, o.Status, o.Email, catalog.FormatPrice(o.Total), partner, o.CreatedAt.Format("2006-01-02 15:04"))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "only orders in this status")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "maximum orders to list")
	return cmd
}

func ordersFulfillCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "fulfill <order-id>",
		Short: "Submit a paid order to the fulfillment partner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := a.order(cmd, args[0])
			if err != nil {
				return err
			}
			res := a.dispatcher().Resume(cmd.Context(), o)
			switch res.Status {
			case fulfillment.Submitted:
				fmt.Fprintf(cmd.OutOrStdout(), "order %s submitted as partner order %s\n", o.ID, res.PartnerOrderID)
				return nil
			case fulfillment.Skipped:
				return fmt.Errorf("order %s skipped: %s", o.ID, res.Reason)
			default:
				return res.Err
			}
		},
	}
}

func ordersSyncCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sync <order-id>",
		Short: "Pull shipment tracking from the fulfillment partner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := a.dispatcher().Sync(cmd.Context(), args[0])
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("order %s: %w", args[0], err)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "order %s is %s\n", o.ID, o.Status)
			if o.Tracking != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "tracking: %s %s %s\n", o.Tracking.Carrier, o.Tracking.Number, o.Tracking.URL)
			}
			return nil
		},
	}
}

func ordersDeliverCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "deliver <order-id>",
		Short: "Mark a shipped order delivered",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, err := store.NewOrderStore(a.db).MarkDelivered(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("order %s is not shipped", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "order %s delivered\n", args[0])
			return nil
		},
	}
}

func ordersCancelCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <order-id>",
		Short: "Cancel a pending or paid order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, err := store.NewOrderStore(a.db).Cancel(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("order %s can no longer be cancelled", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "order %s cancelled\n", args[0])
			return nil
		},
	}
}
