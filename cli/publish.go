package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/htreeio/hashtree/internal/colors"
	"github.com/htreeio/hashtree/internal/htypes"
)

var publishShareSecret string

var publishCmd = &cobra.Command{
	Use:   "publish <owner/name> <permalink>",
	Short: "Record a permalink as the current root for owner/name",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openEngine()
		if err != nil {
			return err
		}
		defer h.Close()

		cid, err := h.ParsePermalink(args[1])
		if err != nil {
			return err
		}

		ctx := context.Background()
		if publishShareSecret != "" {
			secret, err := htypes.HashFromHex(publishShareSecret)
			if err != nil {
				return err
			}
			if err := h.PublishShared(ctx, args[0], cid, secret); err != nil {
				return err
			}
			fmt.Printf("%s %s (shared)\n", colors.SuccessText("published"), colors.Bold(args[0]))
			return nil
		}

		if err := h.Publish(ctx, args[0], cid); err != nil {
			return err
		}
		fmt.Printf("%s %s\n", colors.SuccessText("published"), colors.Bold(args[0]))
		return nil
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <owner/name>",
	Short: "Print the permalink currently published for owner/name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openEngine()
		if err != nil {
			return err
		}
		defer h.Close()

		cid, err := h.Resolve(context.Background(), args[0])
		if err != nil {
			return err
		}
		permalink, err := h.Permalink(cid)
		if err != nil {
			return err
		}
		fmt.Println(permalink)
		return nil
	},
}

var publishedCmd = &cobra.Command{
	Use:   "published <owner>",
	Short: "List every key currently published under owner",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openEngine()
		if err != nil {
			return err
		}
		defer h.Close()

		entries, err := h.ListPublished(context.Background(), args[0])
		if err != nil {
			return err
		}
		for _, e := range entries {
			permalink, err := h.Permalink(e.Cid)
			if err != nil {
				return err
			}
			fmt.Printf("%-30s %s\n", e.Key, permalink)
		}
		return nil
	},
}

func init() {
	publishCmd.Flags().StringVar(&publishShareSecret, "share-with", "",
		"hex-encoded recipient secret; publish a derived shared key instead of the plain root key")
}
