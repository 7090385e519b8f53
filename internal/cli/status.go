package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/CorpClaw/CorpClaw/internal/config"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("🏷️ CorpClaw Version")
		fmt.Printf("Version: %s\n", version)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show system status",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("📊 CorpClaw Status")
		fmt.Printf("Version: %s\n", version)

		configPath, err := config.ConfigPath()
		if err == nil {
			if _, statErr := os.Stat(configPath); statErr == nil {
				fmt.Println("Config:  ✓ Found (" + configPath + ")")
			} else {
				fmt.Println("Config:  ✗ Not found (defaults in effect)")
			}
		}

		cfg, err := config.Load()
		if err != nil {
			fmt.Println("API Key: ? Unable to load config")
			return
		}
		if cfg.Providers.Anthropic.APIKey != "" || cfg.Providers.OpenAI.APIKey != "" || cfg.Providers.OpenRouter.APIKey != "" {
			fmt.Println("API Key: ✓ Found")
		} else {
			fmt.Println("API Key: ✗ Not found (demo mode only)")
		}
		fmt.Printf("Model:   %s\n", cfg.Model.Name)
		fmt.Printf("Store:   %s\n", cfg.Store.Path)
		if _, err := os.Stat(cfg.Store.Path); err == nil {
			fmt.Println("Records: ✓ Database present")
		} else {
			fmt.Println("Records: ✗ No database yet")
		}
	},
}
