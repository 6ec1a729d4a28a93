package cli

import (
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var getOutput string

var getCmd = &cobra.Command{
	Use:   "get <permalink>",
	Short: "Reassemble stored content to a file",
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
		stream, err := h.GetStream(context.Background(), cid)
		if err != nil {
			return err
		}

		out := os.Stdout
		if getOutput != "" && getOutput != "-" {
			f, err := os.Create(getOutput)
			if err != nil {
				return err
			}
			defer f.Close()
			out = f
		}
		_, err = io.Copy(out, stream)
		return err
	},
}

var catCmd = &cobra.Command{
	Use:   "cat <permalink>",
	Short: "Print stored content to stdout",
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
		stream, err := h.GetStream(context.Background(), cid)
		if err != nil {
			return err
		}
		_, err = io.Copy(os.Stdout, stream)
		return err
	},
}

func init() {
	getCmd.Flags().StringVarP(&getOutput, "output", "o", "-", "output file path, or - for stdout")
}
