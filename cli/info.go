package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/htreeio/hashtree/internal/colors"
	"github.com/htreeio/hashtree/internal/hcrypto"
	"github.com/htreeio/hashtree/internal/treereader"
)

var infoRecursive bool

var infoCmd = &cobra.Command{
	Use:   "info <permalink>",
	Short: "Show size and directory/file kind of stored content",
	Args:  cobra.ExactArgs(1),
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

		isDir, err := h.Reader.IsDirectory(ctx, cid)
		if err != nil {
			return err
		}
		size, err := h.Reader.GetSize(ctx, cid)
		if err != nil {
			return err
		}

		kind := "file"
		if isDir {
			kind = "directory"
		}
		fmt.Printf("%s %s\n", colors.SectionHeader("hash:"), cid.Hash)
		fmt.Printf("%s %s\n", colors.SectionHeader("kind:"), kind)
		fmt.Printf("%s %d\n", colors.SectionHeader("size:"), size)
		fmt.Printf("%s %v\n", colors.SectionHeader("encrypted:"), cid.Key != nil)
		if cid.Key == nil {
			// No key to test decryption with; could_be_encrypted is a
			// cheap, non-authoritative guess at whether this root's raw
			// bytes are ciphertext that arrived without its key, purely
			// to flag to the operator, never to decide access.
			if raw, err := h.Index.Get(ctx, cid.Hash); err == nil && hcrypto.CouldBeEncrypted(raw) {
				fmt.Printf("%s %v\n", colors.WarningText("possibly_encrypted:"), true)
			}
		}

		if infoRecursive {
			fmt.Println(colors.SectionHeader("tree:"))
			return h.Reader.Walk(ctx, cid, func(e treereader.WalkEntry) error {
				path := e.Path
				if path == "" {
					path = "."
				}
				indent := strings.Count(path, "/")
				fmt.Printf("%s%s  %d bytes\n", strings.Repeat("  ", indent), path, e.Size)
				return nil
			})
		}
		return nil
	},
}

func init() {
	infoCmd.Flags().BoolVar(&infoRecursive, "recursive", false, "dump every node in the tree, not just the root")
}

var verifyCmd = &cobra.Command{
	Use:   "verify <permalink>",
	Short: "Walk every node reachable from a permalink, confirming hash integrity",
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

		res := h.Verify(context.Background(), cid)
		if res.Valid {
			fmt.Printf("%s %d nodes, %d bytes\n", colors.SuccessText("valid"), res.NodesVisited, res.BytesVisited)
			return nil
		}
		fmt.Printf("%s %v\n", colors.ErrorText("invalid:"), res.Err)
		return res.Err
	},
}
