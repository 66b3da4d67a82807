package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/inferd/inferd/pkg/client"
)

var (
	daemonURL    string
	outputFormat string
	cfgFile      string
	apiKey       string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "inferctl",
	Short: "CLI for the inferd AI workload daemon",
	Long:  `inferctl manages AI inference workloads, accelerator devices and reports on an inferd host.`,
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.inferctl/config)")
	rootCmd.PersistentFlags().StringVar(&daemonURL, "daemon", "", "daemon API URL (default from config or http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "output", "table", "output format: table or json")
}

// initConfig reads in config file and ENV variables if set
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			os.Exit(1)
		}
		viper.AddConfigPath(filepath.Join(home, ".inferctl"))
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.AutomaticEnv()
	viper.BindEnv("api_key", "INFERD_API_KEY")
	viper.BindEnv("daemon_url", "INFERD_URL")

	if err := viper.ReadInConfig(); err == nil {
		if viper.GetString("daemon_url") != "" && daemonURL == "" {
			daemonURL = viper.GetString("daemon_url")
		}
		if viper.GetString("api_key") != "" && apiKey == "" {
			apiKey = viper.GetString("api_key")
		}
	}

	if daemonURL == "" {
		daemonURL = viper.GetString("daemon_url")
	}
	if daemonURL == "" {
		daemonURL = "http://localhost:8080"
	}
	if apiKey == "" {
		apiKey = viper.GetString("api_key")
	}
}

// apiClient returns a client for the configured daemon
func apiClient() *client.Client {
	return client.New(daemonURL, apiKey)
}
