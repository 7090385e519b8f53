// Package cli implements the corpclaw command tree.
package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// version can be overridden at build time via:
	// go build -ldflags "-X github.com/CorpClaw/CorpClaw/internal/cli.version=1.2.3"
	version = "0.3.0"
	logo    = "\n" +
		"   ____                   ____ _\n" +
		"  / ___|___  _ __ _ __   / ___| | __ ___      __\n" +
		" | |   / _ \\| '__| '_ \\ | |   | |/ _` \\ \\ /\\ / /\n" +
		" | |__| (_) | |  | |_) || |___| | (_| |\\ V  V /\n" +
		"  \\____\\___/|_|  | .__/  \\____|_|\\__,_| \\_/\\_/\n" +
		"                 |_|\n"
)

var rootCmd = &cobra.Command{
	Use:   "corpclaw",
	Short: "CorpClaw - simulated AI organization runtime",
	Long:  color.CyanString(logo) + "\nAn actor-communication and task-orchestration core for LLM-backed organizations.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(demoCmd)
}

func printHeader(title string) {
	fmt.Println(color.CyanString(logo))
	if title != "" {
		fmt.Println(title)
		fmt.Println("─────────────────────")
	}
}
