package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var configFile string

var rootCmd = &cobra.Command{
	Use:   "rxledger",
	Short: "Prescription authorization and lifecycle ledger",
	Long: "rxledger keeps the role registry, patient access grants, prescriptions " +
		"and their non-transferable fulfillment tokens, and serves them over HTTP.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to a YAML config file")
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
