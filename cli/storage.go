package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/htreeio/hashtree/internal/colors"
)

var storageCmd = &cobra.Command{
	Use:   "storage",
	Short: "Inspect and manage local storage usage",
}

var storageStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show tracked bytes per priority tier",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openEngine()
		if err != nil {
			return err
		}
		defer h.Close()

		totals, err := h.StorageStats(context.Background())
		if err != nil {
			return err
		}
		var grandTotal uint64
		for prio, bytes := range totals {
			fmt.Printf("%-10s %d bytes\n", colors.PriorityTag(prio.String()), bytes)
			grandTotal += bytes
		}
		fmt.Printf("%-10s %d bytes\n", colors.SectionHeader("total"), grandTotal)
		if h.Priority.MaxSizeBytes > 0 {
			fmt.Printf("%-10s %d bytes\n", colors.SectionHeader("quota"), h.Priority.MaxSizeBytes)
		}
		return nil
	},
}

var storageTreesCmd = &cobra.Command{
	Use:   "trees",
	Short: "List every indexed tree",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openEngine()
		if err != nil {
			return err
		}
		defer h.Close()

		trees, err := h.Index.ListIndexedTrees(context.Background())
		if err != nil {
			return err
		}
		for hash, rec := range trees {
			fmt.Printf("%s  %-8s  %-20s  %d bytes  %s\n",
				hash, colors.PriorityTag(rec.Priority.String()), rec.RefKey, rec.TotalSize, colors.Dim(fmt.Sprintf("synced_at=%d", rec.SyncedAt)))
		}
		return nil
	},
}

var storageEvictCmd = &cobra.Command{
	Use:   "evict",
	Short: "Run eviction now, releasing lowest-priority trees until tracked size is under quota",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openEngine()
		if err != nil {
			return err
		}
		defer h.Close()

		res, err := h.Priority.EvictIfNeeded(context.Background())
		if err != nil {
			return err
		}
		fmt.Printf("%s %d trees, %d bytes freed\n", colors.SuccessText("evicted"), res.TreesEvicted, res.BytesFreed)
		return nil
	},
}
