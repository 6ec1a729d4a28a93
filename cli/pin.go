package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/htreeio/hashtree/internal/colors"
)

var pinCmd = &cobra.Command{
	Use:   "pin <permalink>",
	Short: "Pin a tree, protecting its closure from eviction and GC",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openEngine()
		if err != nil {
			return err
		}
		defer h.Close()

		cid, err := h.ParsePermalink(args[0])
		if err != nil {
			return err
		}
		if err := h.Pin(context.Background(), cid); err != nil {
			return err
		}
		fmt.Printf("%s %s\n", colors.SuccessText("pinned"), cid.Hash)
		return nil
	},
}

var unpinCmd = &cobra.Command{
	Use:   "unpin <permalink>",
	Short: "Remove a pin",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openEngine()
		if err != nil {
			return err
		}
		defer h.Close()

		cid, err := h.ParsePermalink(args[0])
		if err != nil {
			return err
		}
		if err := h.Unpin(context.Background(), cid); err != nil {
			return err
		}
		fmt.Printf("%s %s\n", colors.SuccessText("unpinned"), cid.Hash)
		return nil
	},
}

var pinsCmd = &cobra.Command{
	Use:   "pins",
	Short: "List every pinned hash",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openEngine()
		if err != nil {
			return err
		}
		defer h.Close()

		pins, err := h.Pins(context.Background())
		if err != nil {
			return err
		}
		for _, p := range pins {
			fmt.Println(p.String())
		}
		return nil
	},
}
