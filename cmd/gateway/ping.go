package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(pingCmd)
}

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check connectivity to the counter store",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := loadEnvFiles(); err != nil {
			return err
		}
		cfg, err := readConfig()
		if err != nil {
			return fmt.Errorf("config error: %w", err)
		}
		setupLogging(cfg.logLevel)

		be, err := openBackend(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = be.close() }()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := be.ping(ctx); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "ok (%s)\n", cfg.store)
		return nil
	},
}
