package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/sudo-init-do/agrihub/internal/config"
	"github.com/sudo-init-do/agrihub/internal/logger"
)

var (
	RootCmd = &cobra.Command{
		Use:   "agrihub",
		Short: "Negotiation and escrow service for farm labour and machine rentals",

		// All child commands will use this
		PersistentPreRunE: func(cmd *cobra.Command, args []string) (err error) {
			// Cancelled upon SIGINT or SIGTERM
			ctx, cancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

			conf, err = config.Load(cfgFile)
			if err != nil {
				return
			}
			return logger.Init(conf)
		},

		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			cancel()
		},
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	// Configuration
	conf    *config.Config
	cfgFile string

	// Context setup
	ctx    context.Context
	cancel context.CancelFunc = func() {}
)

func init() {
	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "configuration file path")
}
