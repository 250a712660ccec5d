package main

import (
	"errors"
	"fmt"
	"time"

	"auction-sync/internal/auctionview"
	"auction-sync/internal/lifecycle"
	"auction-sync/internal/names"

	"github.com/spf13/cobra"
)

func newWatchCmd(a *app) *cobra.Command {
	var (
		older int
		once  bool
	)
	cmd := &cobra.Command{
		Use:   "watch <auction-id>",
		Short: "Follow an auction live until interrupted",
		Long: `Follow an auction live until interrupted or closed.

New bids are printed oldest first as they arrive. Bids that land below ones
already printed, from --older pages or after a reconnect, are printed when
they arrive with an "earlier" prefix.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			resolver := names.New(a.client, a.cfg.NameCacheMB, a.cfg.NameCacheTTL)

			view, err := auctionview.Open(ctx, a.client, a.cfg.UserID, args[0], auctionview.Options{
				PageSize:            a.cfg.HistoryPageSize,
				TickInterval:        a.cfg.TickInterval,
				PendingWindow:       a.cfg.PendingWindow,
				DisableReconnect:    !a.cfg.Reconnect,
				ReconnectMaxElapsed: a.cfg.ReconnectMaxElapsed,
				Names:               resolver,
			})
			if err != nil {
				return err
			}
			defer view.Close()

			item := view.Item()
			fmt.Fprintf(out, "%s (%s)\n", item.Title, item.ID)

			for i := 0; i < older; i++ {
				if err := view.LoadMore(ctx); err != nil {
					return err
				}
			}

			// bids merged below the newest printed one (older pages, resync gaps)
			// are printed when they land, marked as earlier
			printed := make(map[string]struct{})
			var newest int64
			printNew := func() error {
				st, err := view.Snapshot(ctx)
				if err != nil {
					return err
				}
				for i := len(st.Bids) - 1; i >= 0; i-- {
					b := st.Bids[i]
					if _, ok := printed[b.ID]; ok {
						continue
					}
					printed[b.ID] = struct{}{}
					if b.Sequence < newest {
						fmt.Fprint(out, "earlier ")
					}
					printBid(out, b, st.Names[b.Bidder])
				}
				if len(st.Bids) > 0 && st.Bids[0].Sequence > newest {
					newest = st.Bids[0].Sequence
				}
				return nil
			}

			if once {
				deadline := time.After(5 * time.Second)
				for {
					st, err := view.Snapshot(ctx)
					if err != nil {
						return err
					}
					if st.Loaded {
						return printNew()
					}
					select {
					case <-deadline:
						return errors.New("timed out waiting for history")
					case <-time.After(20 * time.Millisecond):
					}
				}
			}

			for {
				select {
				case <-ctx.Done():
					return nil
				case <-view.Updates():
					if err := printNew(); err != nil {
						return err
					}
				case tick := <-view.Ticks():
					if tick.State == lifecycle.Closed {
						fmt.Fprintln(out, "auction closed")
						return nil
					}
					if tick.Remaining%time.Minute < time.Second {
						fmt.Fprintf(out, "%s left\n", lifecycle.FormatRemaining(tick.Remaining))
					}
				case err := <-view.Errors():
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
				}
			}
		},
	}
	cmd.Flags().IntVar(&older, "older", 0, "load this many older pages before following")
	cmd.Flags().BoolVar(&once, "once", false, "print the current history and exit")
	return cmd
}

