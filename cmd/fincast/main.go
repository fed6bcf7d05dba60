package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	serverURL  string
	outFormat  string
)

// rootCmd is the base command for the FinCast CLI.
var rootCmd = &cobra.Command{
	Use:   "fincast",
	Short: "Multi-instrument price forecasting",
	Long: `fincast forecasts the next trading day of bars for every instrument in a
source, picking the best of several candidate models per instrument.

Examples:
  fincast run                         # forecast every symbol in the source
  fincast run AAPL MSFT --format json # forecast two symbols, print JSON
  fincast trigger --server http://localhost:8080
  fincast latest AAPL`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/config.yaml", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Base URL of a running fincast service")
	rootCmd.PersistentFlags().StringVar(&outFormat, "format", "table", "Output format (table|json)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
