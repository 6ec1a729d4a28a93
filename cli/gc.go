package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/htreeio/hashtree/internal/colors"
)

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Delete every blob unreachable from a pinned root",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openEngine()
		if err != nil {
			return err
		}
		defer h.Close()

		res, err := h.GC(context.Background())
		if err != nil {
			return err
		}
		fmt.Printf("%s %d dags, %d bytes freed\n", colors.SuccessText("collected"), res.DeletedDags, res.FreedBytes)
		return nil
	},
}
