package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"field-sync-service/internal/mirror"
	"field-sync-service/internal/queue"
	"field-sync-service/internal/store"
)

func newPendingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "Print the operations waiting to be synced",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			kv, err := store.Open(ctx, cfg.Storage)
			if err != nil {
				return fmt.Errorf("failed to open local storage: %w", err)
			}
			defer kv.Close()

			ops := queue.Load(ctx, kv, cfg.Storage.Keys.Queue).List()

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(ops)
		},
	}
}

func newPurgeCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Drop queued operations without syncing them",
		Long: `Drop every queued operation. With --all the local client mirror and
the last sync time are dropped as well.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			kv, err := store.Open(ctx, cfg.Storage)
			if err != nil {
				return fmt.Errorf("failed to open local storage: %w", err)
			}
			defer kv.Close()

			q := queue.Load(ctx, kv, cfg.Storage.Keys.Queue)
			dropped := q.Len()
			if err := q.Clear(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Dropped %d pending operations\n", dropped)

			if !all {
				return nil
			}

			if err := mirror.Load(ctx, kv, cfg.Storage.Keys.Mirror).Clear(ctx); err != nil {
				return err
			}
			if err := kv.Remove(ctx, cfg.Storage.Keys.LastSync); err != nil {
				return fmt.Errorf("failed to clear last sync time: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Cleared local clients and last sync time")
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "also clear local clients and last sync time")
	return cmd
}
