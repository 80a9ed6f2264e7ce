// Package cmd provides the ledgerd commands.
package cmd

import (
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	envFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "ledgerd",
	Short: "Multi-account ledger service",
	Long: `ledgerd keeps CHECKING and SAVINGS accounts in memory, applies their
withdrawal rules, records every attempted operation and runs the monthly
fee and interest pass.

Example:
  ledgerd serve
  ledgerd serve --config ledger.yaml --debug`,
	SilenceUsage: true,
}

// Execute runs the root command. It is called once by main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml if present)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "env file (default is ./.env if present)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(serveCmd)
}
