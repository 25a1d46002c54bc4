package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func (c *cli) statusCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show connectivity, offline storage and sync queue state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			st, err := rt.Status(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(c.out)
				enc.SetIndent("", "  ")
				return enc.Encode(st)
			}

			state := "offline"
			if st.Online {
				state = "online"
			}
			c.printf("server:   %s (%s)\n", c.cfg.Remote.BaseURL, state)
			storage := "memory only"
			if st.Persistent {
				storage = c.cfg.Offline.Path
				if st.Persisted {
					storage += " (durable)"
				}
			}
			c.printf("storage:  %s\n", storage)
			if st.Quota.Supported {
				c.printf("usage:    %d of %d bytes (%.1f%%)\n", st.Quota.Usage, st.Quota.Quota, st.Quota.PercentUsed)
			}
			c.printf("queue:    %d pending, %d retrying, %d stalled\n", st.Queue.Pending, st.Queue.Failed, st.Queue.Stalled)
			if !st.Queue.Oldest.IsZero() {
				c.printf("oldest:   %s\n", st.Queue.Oldest.Local().Format(time.RFC1123))
			}
			c.printf("health:   %s\n", st.Health.Status)

			if len(st.Collections) > 0 {
				c.printf("\n")
				tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "COLLECTION\tRECORDS\tBYTES\tCACHED")
				for _, info := range st.Collections {
					fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", info.Entity, info.Records, info.Bytes, info.CachedAt.Local().Format(time.Kitchen))
				}
				if err := tw.Flush(); err != nil {
					return err
				}
			}
			for _, e := range st.Stalled {
				c.printf("stalled:  #%d %s %s/%s: %s\n", e.ID, e.Type, e.Entity, e.EntityID, e.Error)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the status as JSON")
	return cmd
}

func (c *cli) syncCmd() *cobra.Command {
	var (
		force bool
		retry []uint
	)
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Replay queued changes against the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			for _, id := range retry {
				if err := rt.Queue.Retry(cmd.Context(), id); err != nil {
					return fmt.Errorf("retry #%d: %w", id, err)
				}
			}
			res, err := rt.Sync(cmd.Context(), force)
			if err != nil {
				return err
			}
			if res.Offline {
				c.printf("server unreachable, nothing sent (use --force to try anyway)\n")
				return nil
			}
			c.printf("applied %d, failed %d, conflicts %d\n", res.Success, res.Failed, len(res.Conflicts))
			for _, conflict := range res.Conflicts {
				c.printf("conflict: %s %s resolved as %s\n", conflict.Entity, conflict.EntityID, conflict.Resolution)
			}
			if len(res.Stalled) > 0 {
				c.printf("%d change(s) stopped retrying; see `hearth status` and `hearth sync --retry ID`\n", len(res.Stalled))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "attempt delivery even when the server looked unreachable")
	cmd.Flags().UintSliceVar(&retry, "retry", nil, "reset the retry count of stalled queue entries before syncing")
	return cmd
}

func (c *cli) pullCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pull",
		Short: "Refresh every collection from the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			results, err := rt.Pull(cmd.Context())
			entities := make([]string, 0, len(results))
			for entity := range results {
				entities = append(entities, entity)
			}
			sort.Strings(entities)
			for _, entity := range entities {
				res := results[entity]
				source := "server"
				if res.FromCache {
					source = "offline cache"
				}
				c.printf("%-9s %3d from %s\n", entity, res.Count, source)
			}
			return err
		},
	}
}

func (c *cli) clearCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all offline data, including changes not yet synced",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errors.New("refusing to drop unsynced changes without --yes")
			}
			rt, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			if err := rt.Clear(cmd.Context()); err != nil {
				return err
			}
			c.printf("offline data cleared\n")
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm dropping queued changes")
	return cmd
}

func (c *cli) watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stay running: replay on reconnect, follow server changes and refresh stale data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			rt, err := c.open(ctx)
			if err != nil {
				return err
			}
			if err := rt.Start(ctx); err != nil {
				return err
			}
			c.printf("watching %s, press Ctrl+C to stop\n", c.cfg.Remote.BaseURL)
			<-ctx.Done()
			return nil
		},
	}
}
