package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/fieldsync/agent/internal/models"
	"github.com/fieldsync/agent/internal/services"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync pass and exit",
	Long: `Probe connectivity, push every pending record to the remote target and
send queued deletions. Exits with status 1 when the device is offline.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logCloser, err := loadConfig()
		if err != nil {
			return err
		}
		defer logCloser.Close()

		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		media, err := newMediaStorage(cfg.MediaStorage)
		if err != nil {
			return err
		}
		network := newNetworkMonitor(cfg.Network)
		network.Refresh(ctx)

		engine, err := newSyncEngine(ctx, cfg, st, network, media)
		if err != nil {
			return err
		}

		result, err := engine.ForceSync(ctx)
		if errors.Is(err, models.ErrOffline) {
			fmt.Fprintln(os.Stderr, "Device is offline, nothing was sent")
			os.Exit(1)
		}
		if err != nil {
			return err
		}
		if result.Skipped {
			fmt.Printf("Sync skipped: %s\n", result.SkipReason)
			return nil
		}

		fmt.Printf("Pending: %d  Synced: %d  Failed: %d  Deleted: %d  Requeued: %d\n",
			result.TotalPending, result.Synced, result.Failed, result.Deleted, result.Requeued)
		if result.Error != "" {
			return errors.New(result.Error)
		}
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print record counts per sync status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logCloser, err := loadConfig()
		if err != nil {
			return err
		}
		defer logCloser.Close()

		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		ctx := context.Background()
		repair, _ := cmd.Flags().GetBool("repair")
		asJSON, _ := cmd.Flags().GetBool("json")

		stats, err := st.records.GetStats(ctx)
		if repair {
			stats, err = st.records.RecountStats(ctx)
		}
		if err != nil {
			return err
		}

		if asJSON {
			return json.NewEncoder(os.Stdout).Encode(stats)
		}
		printStats(stats)
		return nil
	},
}

var requeueCmd = &cobra.Command{
	Use:   "requeue-failed",
	Short: "Move every failed record back to pending",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logCloser, err := loadConfig()
		if err != nil {
			return err
		}
		defer logCloser.Close()

		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		// requeueing never talks to the remote target
		engine := services.NewSyncEngine(st.records, nil, newNetworkMonitor(cfg.Network), cfg.Sync, nil)

		n, err := engine.RequeueFailed(context.Background())
		if err != nil {
			return err
		}
		fmt.Printf("Requeued %d failed records\n", n)
		return nil
	},
}

func init() {
	statsCmd.Flags().Bool("json", false, "Print the stats as JSON")
}
