// Package cli implements htree's command-line surface: a cobra command
// tree opening one engine.HashTree per invocation and delegating to it.
//
// The root-command-plus-init()-wiring shape is carried directly from the
// teacher's cli/cli.go: a package-level rootCmd, one var per subcommand
// defined in its own file, and a single init() that assembles the tree.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const htreeVersion = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "htree",
	Short: "htree is a content-addressed storage and sync engine",
	Long:  `htree builds, stores, and serves content-addressed, optionally encrypted trees of data.`,
	Run: func(cmd *cobra.Command, args []string) {
		if version {
			fmt.Printf("htree version %s\n", htreeVersion)
			os.Exit(0)
		}
		cmd.Help()
	},
}

var version bool

// Execute runs the root command; callers should os.Exit with its result.
// Errors are printed here rather than by cobra itself (SilenceErrors is
// set below), so the exit code can reflect the error's herrors.Kind.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		printErr(err)
		return exitCodeFor(err)
	}
	return 0
}

func init() {
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
	rootCmd.Flags().BoolVar(&version, "version", false, "print the htree version")

	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(catCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(pinCmd)
	rootCmd.AddCommand(unpinCmd)
	rootCmd.AddCommand(pinsCmd)
	rootCmd.AddCommand(gcCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(publishedCmd)
	rootCmd.AddCommand(lsCmd)

	rootCmd.AddCommand(storageCmd)
	storageCmd.AddCommand(storageStatsCmd, storageTreesCmd, storageEvictCmd)
}
