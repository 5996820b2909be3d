// Command vaultd runs the epoch vault daemon and its maintenance commands.
package main

import (
	"fmt"
	"os"

	"epoch_vault/internal/infra"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "vaultd",
	Short:         "Epoch-based pooled capital vault",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", infra.DefaultConfigPath, "path to config.yaml")
	rootCmd.AddCommand(runCmd, migrateCmd, statusCmd, signDepositCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
