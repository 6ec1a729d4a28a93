package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/htreeio/hashtree/internal/colors"
	"github.com/htreeio/hashtree/internal/engine"
	"github.com/htreeio/hashtree/internal/htypes"
)

var (
	addOwner    string
	addName     string
	addPriority string
)

var addCmd = &cobra.Command{
	Use:   "add <file>",
	Short: "Chunk, store, and index a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]

		h, err := openEngine()
		if err != nil {
			return err
		}
		defer h.Close()

		prio, err := parsePriority(addPriority)
		if err != nil {
			return err
		}
		name := addName
		if name == "" {
			name = path
		}

		info, err := os.Stat(path)
		if err != nil {
			return err
		}

		ctx := context.Background()
		var cid htypes.Cid
		if info.IsDir() {
			cid, _, err = addDir(ctx, h, path)
		} else {
			var f *os.File
			f, err = os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			cid, err = h.PutStreaming(ctx, addOwner, name, prio, f)
		}
		if err != nil {
			return err
		}

		link, err := h.Permalink(cid)
		if err != nil {
			return err
		}
		fmt.Printf("%s %s\n", colors.SuccessText("stored"), link)
		return nil
	},
}

// addDir recursively stores every file under path, bottom-up, building one
// htypes.DirEntry per child before calling PutDir on the parent — files are
// always stored under PriorityOwn since a directory tree has no single
// owner/name to track in indexed_trees the way a single file does. It
// returns the directory's own Cid plus its total recursive size, so a
// parent call can carry a non-zero Size for a subdirectory link the same
// way it does for a file link.
func addDir(ctx context.Context, h *engine.HashTree, path string) (htypes.Cid, uint64, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return htypes.Cid{}, 0, err
	}

	var dirEntries []htypes.DirEntry
	var total uint64
	for _, entry := range entries {
		childPath := filepath.Join(path, entry.Name())
		if entry.IsDir() {
			cid, size, err := addDir(ctx, h, childPath)
			if err != nil {
				return htypes.Cid{}, 0, err
			}
			dirEntries = append(dirEntries, htypes.DirEntry{
				Name: entry.Name(), Cid: cid, Size: size, LinkType: htypes.LinkDir,
			})
			total += size
			continue
		}

		f, err := os.Open(childPath)
		if err != nil {
			return htypes.Cid{}, 0, err
		}
		cid, err := h.PutStreaming(ctx, addOwner, childPath, htypes.PriorityOwn, f)
		f.Close()
		if err != nil {
			return htypes.Cid{}, 0, err
		}
		info, err := os.Stat(childPath)
		if err != nil {
			return htypes.Cid{}, 0, err
		}
		size := uint64(info.Size())
		dirEntries = append(dirEntries, htypes.DirEntry{
			Name: entry.Name(), Cid: cid, Size: size, LinkType: htypes.LinkFile,
		})
		total += size
	}
	cid, err := h.PutDir(ctx, dirEntries)
	return cid, total, err
}

func init() {
	addCmd.Flags().StringVar(&addOwner, "owner", "local", "owner namespace to index this tree under")
	addCmd.Flags().StringVar(&addName, "name", "", "name to index this tree under (default: the file path)")
	addCmd.Flags().StringVar(&addPriority, "priority", "own", "priority tier: own|followed|other")
}
