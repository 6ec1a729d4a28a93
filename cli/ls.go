package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var lsCmd = &cobra.Command{
	Use:   "ls <permalink> [path]",
	Short: "List a directory's immediate entries, optionally resolving a sub-path first",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openEngine()
		if err != nil {
			return err
		}
		defer h.Close()
		ctx := context.Background()

		cid, err := h.ParsePermalink(args[0])
		if err != nil {
			return err
		}
		if len(args) == 2 {
			cid, err = h.ResolvePath(ctx, cid, args[1])
			if err != nil {
				return err
			}
		}

		entries, err := h.ListDir(ctx, cid)
		if err != nil {
			return err
		}
		for _, e := range entries {
			kind := "file"
			if e.LinkType.String() == "dir" {
				kind = "dir"
			}
			fmt.Printf("%-5s %10d  %s\n", kind, e.Size, e.Name)
		}
		return nil
	},
}
