package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var flagConfig string

var rootCmd = &cobra.Command{
	Use:   "smartclimate",
	Short: "Humidity monitoring and AC offset learning for Home Assistant",
	Long: `smartclimate polls humidity and temperature sensors from a Home Assistant
instance, derives comfort metrics (heat index, dew point, absolute humidity),
fires threshold-based alerts, aggregates daily statistics and learns the
offset between the AC's internal sensor and the room temperature.

State is persisted across restarts and exposed over a small HTTP API.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "config.yaml", "Config file path")
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(checkConfigCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("smartclimate %s\n", rootCmd.Version)
	},
}

// Execute runs the root command.
func Execute(version string) {
	// A local .env file may carry HA_URL and HA_TOKEN; absence is fine.
	_ = godotenv.Load()

	rootCmd.Version = version
	rootCmd.SetVersionTemplate(fmt.Sprintf("smartclimate %s\n", version))
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
