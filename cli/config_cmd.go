package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/htreeio/hashtree/internal/colors"
	"github.com/htreeio/hashtree/internal/hconfig"
)

var configGlobal bool

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Get and set htree configuration options",
	Long: `Get and set htree configuration options.

Configuration can be set at two levels:
- Global (~/.htreeconfig) - applies to every repository
- Repository (.htree/config) - applies to the current repository only

Examples:
  htree config                              # list all settings
  htree config store.max_size_bytes
  htree config store.max_size_bytes 5000000000
  htree config --global chunk.chunk_size 262144`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		switch len(args) {
		case 0:
			return listConfig()
		case 1:
			return getConfigValue(args[0])
		default:
			return setConfigValue(args[0], args[1], configGlobal)
		}
	},
}

func init() {
	configCmd.Flags().BoolVar(&configGlobal, "global", false, "write to the global config file")
}

func listConfig() error {
	cfg, err := hconfig.Load()
	if err != nil {
		return err
	}
	fmt.Println(colors.SectionHeader("store:"))
	fmt.Printf("  store.index_path = %s\n", colors.InfoText(cfg.Store.IndexPath))
	fmt.Printf("  store.max_size_bytes = %s\n", colors.InfoText(fmt.Sprintf("%d", cfg.Store.MaxSizeBytes)))
	fmt.Println(colors.SectionHeader("chunk:"))
	fmt.Printf("  chunk.chunk_size = %s\n", colors.InfoText(fmt.Sprintf("%d", cfg.Chunk.ChunkSize)))
	fmt.Printf("  chunk.max_links = %s\n", colors.InfoText(fmt.Sprintf("%d", cfg.Chunk.MaxLinks)))
	fmt.Println(colors.SectionHeader("crypto:"))
	fmt.Printf("  crypto.encrypt_by_default = %s\n", colors.InfoText(fmt.Sprintf("%t", cfg.Crypto.EncryptByDefault)))
	return nil
}

func getConfigValue(key string) error {
	cfg, err := hconfig.Load()
	if err != nil {
		return err
	}
	value, err := cfg.GetValue(key)
	if err != nil {
		return err
	}
	fmt.Println(value)
	return nil
}

func setConfigValue(key, value string, global bool) error {
	cfg, err := hconfig.Load()
	if err != nil {
		return err
	}
	if err := cfg.SetValue(key, value, global); err != nil {
		return err
	}
	scope := "repository"
	if global {
		scope = "global"
	}
	fmt.Printf("%s %s config: %s = %s\n", colors.SuccessText("set"), scope, colors.Bold(key), colors.InfoText(value))
	return nil
}
