package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/matheus3301/fieldsync/internal/profile"
	"github.com/matheus3301/fieldsync/internal/store"
	intsync "github.com/matheus3301/fieldsync/internal/sync"
	"github.com/matheus3301/fieldsync/internal/tui/client"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show sync and network status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *client.Client) error {
			st, err := c.SyncStatus(ctx)
			if err != nil {
				return err
			}
			ns, err := c.NetworkStatus(ctx)
			if err != nil {
				return err
			}
			if jsonFlag {
				return outputJSON(map[string]any{"sync": st, "daemon": ns})
			}
			fmt.Printf("Profile:   %s\n", ns.Profile)
			fmt.Printf("Device:    %s\n", ns.DeviceID)
			fmt.Printf("State:     %s (since %s)\n", ns.State, ns.StateSince.Local().Format(time.DateTime))
			fmt.Printf("Online:    %v\n", st.IsOnline)
			fmt.Printf("Running:   %v\n", st.IsRunning)
			fmt.Printf("Queue:     %d total, %d pending, %d synced, %d failed\n", st.Total, st.Pending, st.Synced, st.Failed)
			if !st.LastSyncAt.IsZero() {
				fmt.Printf("Last sync: %s\n", st.LastSyncAt.Local().Format(time.DateTime))
			}
			if st.LastError != "" {
				fmt.Printf("Error:     %s\n", st.LastError)
			}
			return nil
		})
	},
}

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Drive the sync engine",
}

var syncNowCmd = &cobra.Command{
	Use:   "now",
	Short: "Drain the queue immediately",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *client.Client) error {
			res, err := c.ForceSync(ctx)
			if intsync.IsOffline(err) {
				return fmt.Errorf("device is offline; queued changes will sync when connectivity returns")
			}
			if err != nil {
				return err
			}
			if jsonFlag {
				return outputJSON(res)
			}
			fmt.Printf("Attempted %d: %d synced, %d retrying, %d failed, %d skipped (%s)\n",
				res.Attempted, res.Synced, res.Retried, res.Failed, res.Skipped, res.Duration.Round(time.Millisecond))
			if res.Interrupted {
				fmt.Println("Drain interrupted by connectivity loss")
			}
			return nil
		})
	},
}

var syncClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove synced items from the queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *client.Client) error {
			n, err := c.ClearSynced(ctx)
			if err != nil {
				return err
			}
			if jsonFlag {
				return outputJSON(map[string]int64{"removed": n})
			}
			fmt.Printf("Removed %d synced items\n", n)
			return nil
		})
	},
}

var syncRequeueCmd = &cobra.Command{
	Use:   "requeue [item-id...]",
	Short: "Reset failed items for another attempt (all when no ids given)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *client.Client) error {
			n, err := c.Requeue(ctx, args...)
			if err != nil {
				return err
			}
			if jsonFlag {
				return outputJSON(map[string]int64{"requeued": n})
			}
			fmt.Printf("Requeued %d items\n", n)
			return nil
		})
	},
}

var syncWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream status changes until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		name := profileName()
		c, err := client.New(profile.SocketPath(name))
		if err != nil {
			return err
		}
		defer func() { _ = c.Close() }()

		ch, err := c.WatchSyncStatus(cmd.Context())
		if err != nil {
			return err
		}
		for st := range ch {
			if jsonFlag {
				if err := outputJSON(st); err != nil {
					return err
				}
				continue
			}
			fmt.Printf("%s online=%v running=%v pending=%d failed=%d\n",
				time.Now().Format(time.TimeOnly), st.IsOnline, st.IsRunning, st.Pending, st.Failed)
		}
		return nil
	},
}

var (
	queueStatusFlag     []string
	queueCollectionFlag string
	queueRecordFlag     string
	queueLimitFlag      int
)

var queueCmd = &cobra.Command{
	Use:     "queue",
	GroupID: "sync",
	Short:   "List sync queue items, oldest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		f := store.QueueFilter{
			Collection: queueCollectionFlag,
			RecordID:   queueRecordFlag,
			Limit:      queueLimitFlag,
		}
		for _, s := range queueStatusFlag {
			st := store.SyncStatus(s)
			if s == "failed" {
				st = store.StatusError
			}
			if !st.Valid() {
				return fmt.Errorf("unknown status %q", s)
			}
			f.Statuses = append(f.Statuses, st)
		}
		return withClient(cmd, func(ctx context.Context, c *client.Client) error {
			items, err := c.ListQueue(ctx, f)
			if err != nil {
				return err
			}
			if jsonFlag {
				return outputJSON(items)
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATUS\tOP\tCOLLECTION\tRECORD\tRETRIES\tERROR")
			for _, it := range items {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
					it.ID, it.SyncStatus, it.Operation, it.ObjectStore, it.RecordID, it.RetryCount, it.ErrorMessage)
			}
			return w.Flush()
		})
	},
}

func init() {
	queueCmd.Flags().StringSliceVar(&queueStatusFlag, "status", nil, "filter by status (pending, synced, error)")
	queueCmd.Flags().StringVar(&queueCollectionFlag, "collection", "", "filter by collection")
	queueCmd.Flags().StringVar(&queueRecordFlag, "record", "", "filter by record id")
	queueCmd.Flags().IntVar(&queueLimitFlag, "limit", 0, "maximum items to list")

	syncCmd.AddCommand(syncNowCmd, syncClearCmd, syncRequeueCmd, syncWatchCmd)
	rootCmd.AddCommand(statusCmd, syncCmd, queueCmd)
}
