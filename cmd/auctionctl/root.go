package main

import (
	"fmt"

	"auction-sync/internal/client"
	"auction-sync/internal/config"
	"auction-sync/utils"

	"github.com/spf13/cobra"
)

// app carries what every subcommand needs once flags and config are resolved
type app struct {
	cfg    config.Config
	client *client.HTTPClient
}

// NewRootCmd builds the auctionctl command tree
func NewRootCmd() *cobra.Command {
	a := &app{}
	v := config.New()
	var configFile string

	root := &cobra.Command{
		Use:           "auctionctl",
		Short:         "Follow and bid on auctions served by an auction-sync ledger",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configFile != "" {
				v.SetConfigFile(configFile)
				v.SetConfigType("yaml")
				if err := v.ReadInConfig(); err != nil {
					return fmt.Errorf("failed to read config %s: %w", configFile, err)
				}
			}
			cfg, err := config.FromViper(v)
			if err != nil {
				return err
			}
			if err := utils.SetLevel(cfg.LogLevel); err != nil {
				return err
			}
			utils.SetOutput(cmd.ErrOrStderr())

			c, err := client.New(cfg.ServerURL, cfg.UserID)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.client = c
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "YAML config file")
	flags.String("server", "http://localhost:8080", "ledger server URL")
	flags.String("user", "", "act as this user id")
	flags.String("log-level", "warn", "log level")
	_ = v.BindPFlag("server_url", flags.Lookup("server"))
	_ = v.BindPFlag("user_id", flags.Lookup("user"))
	_ = v.BindPFlag("log_level", flags.Lookup("log-level"))

	root.AddCommand(
		newItemsCmd(a),
		newHistoryCmd(a),
		newBidCmd(a),
		newPinCmd(a),
		newInboxCmd(a),
		newWatchCmd(a),
	)
	return root
}

func (a *app) requireUser() error {
	if a.cfg.UserID == "" {
		return fmt.Errorf("a user id is required: pass --user or set AUCTION_USER_ID")
	}
	return nil
}
