package main

import (
	"fmt"
	"io"

	"auction-sync/internal/lifecycle"
	"auction-sync/internal/models"
	"auction-sync/internal/names"
	"auction-sync/internal/pins"
	"auction-sync/internal/validator"

	"github.com/benbjohnson/clock"
	"github.com/spf13/cobra"
)

func newItemsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "items [title]",
		Short: "List auctions, optionally filtered by title",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			title := ""
			if len(args) == 1 {
				title = args[0]
			}
			items, err := a.client.ListItems(cmd.Context(), title)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			now := clock.New().Now()
			for _, item := range items {
				fmt.Fprintf(out, "%s\t%s\thighest %s\tnext %s\t%s\n",
					item.ID, item.Title, item.HighestBid, item.MinimumNextBid(), lifecycle.FormatRemaining(item.EndTime.Sub(now)))
			}
			return nil
		},
	}
}

func newHistoryCmd(a *app) *cobra.Command {
	var (
		page   int
		before int64
	)
	cmd := &cobra.Command{
		Use:   "history <auction-id>",
		Short: "Print a page of accepted bids, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cursor := models.HistoryCursor{Page: page, BeforeSequence: before}
			bids, err := a.client.FetchHistory(cmd.Context(), args[0], cursor, a.cfg.HistoryPageSize)
			if err != nil {
				return err
			}

			resolver := names.New(a.client, a.cfg.NameCacheMB, a.cfg.NameCacheTTL)
			for _, b := range bids {
				printBid(cmd.OutOrStdout(), b, resolver.DisplayName(cmd.Context(), b.Bidder))
			}
			if len(bids) < a.cfg.HistoryPageSize {
				fmt.Fprintln(cmd.OutOrStdout(), "(end of history)")
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "page number, starting at 1")
	cmd.Flags().Int64Var(&before, "before", 0, "only bids below this sequence; overrides --page")
	return cmd
}

func newBidCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "bid <auction-id> <amount>",
		Short: "Place a bid",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireUser(); err != nil {
				return err
			}
			item, err := a.client.GetItem(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			gate := lifecycle.New(clock.New(), item.EndTime, a.cfg.TickInterval)
			res, err := validator.New(a.client).Submit(cmd.Context(), args[1], item, gate)
			if err != nil {
				return err
			}
			if res.Rejected != nil {
				return fmt.Errorf("bid rejected: %s", res.Rejected.Reason)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "accepted: sequence %d, %s on %s\n",
				res.Accepted.Bid.Sequence, res.Accepted.Bid.Amount, item.Title)
			return nil
		},
	}
}

func newPinCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "pin <auction-id>",
		Short: "Toggle your pin on an auction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireUser(); err != nil {
				return err
			}
			item, err := a.client.GetItem(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			registry := pins.New(a.client, a.cfg.UserID)
			registry.Apply(item)
			pinned, err := registry.Toggle(cmd.Context(), item.ID)
			if err != nil {
				return err
			}
			if pinned {
				fmt.Fprintf(cmd.OutOrStdout(), "pinned %s\n", item.Title)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "unpinned %s\n", item.Title)
			}
			return nil
		},
	}
}

func newInboxCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "inbox",
		Short: "Show your notifications",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireUser(); err != nil {
				return err
			}
			msgs, err := a.client.Inbox(cmd.Context())
			if err != nil {
				return err
			}
			for _, m := range msgs {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", m.CreatedAt.Format("2006-01-02 15:04"), m.Content, m.Redirect)
			}
			return nil
		},
	}
}

func printBid(w io.Writer, b models.Bid, bidder string) {
	fmt.Fprintf(w, "#%d\t%s\t%s\t%s\n", b.Sequence, b.Amount, bidder, b.CreatedAt.Format("2006-01-02 15:04:05"))
}
