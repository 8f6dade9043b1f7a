// Package main provides the entry point for the lingfang CLI tool.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/Torimasen-tech/lingfang/cmd/lingfang/commands"
	"github.com/Torimasen-tech/lingfang/pkg/version"
)

var (
	verbose bool
	quiet   bool
)

func main() {
	// API keys are commonly kept in a local .env file.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "lingfang",
		Short: "Batch translation toolkit for Qt Linguist TS documents",
		Long: `Lingfang synchronizes Qt Linguist .ts documents with an out-of-process
translation pipeline: export untranslated units as chat-completion request
records, apply result records back onto the document, or translate in place
against a live endpoint. Identifier assignment is deterministic, so results
produced out of order, partially, or after a crash land on the exact unit
that produced them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress progress output")
	rootCmd.PersistentFlags().String("config", "", "config file path (default: lingfang.yaml discovery)")

	rootCmd.AddCommand(commands.NewExportCommand())
	rootCmd.AddCommand(commands.NewApplyCommand())
	rootCmd.AddCommand(commands.NewTranslateCommand())
	rootCmd.AddCommand(commands.NewRelayCommand())
	rootCmd.AddCommand(commands.NewStatsCommand())
	rootCmd.AddCommand(commands.NewValidateCommand())
	rootCmd.AddCommand(versionCmd())

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("lingfang %s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		},
	}
}
