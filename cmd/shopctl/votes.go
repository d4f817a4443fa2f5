package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dukerupert/themeshop/internal/store"
)

func votesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "votes",
		Short: "Audit A/B test vote counters",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "verify",
		Short: "Compare stored counters with recorded votes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mismatches, err := store.NewABTestStore(a.db).CounterMismatches(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(mismatches) == 0 {
				fmt.Fprintln(out, "all counters match recorded votes")
				return nil
			}
			for _, m := range mismatches {
				fmt.Fprintf(out, "%s (%s): stored a=%d b=%d, counted a=%d b=%d\n",
					m.ShareCode, m.TestID, m.Stored.VotesA, m.Stored.VotesB, m.Counted.VotesA, m.Counted.VotesB)
			}
			return fmt.Errorf("%d tests have counters that disagree with their votes", len(mismatches))
		},
	})
	return cmd
}
