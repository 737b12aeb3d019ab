package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	profile    string
)

var rootCmd = &cobra.Command{
	Use:   "flatfs",
	Short: "serve a flat directory of files over HTTP",
	Long: "flatfs exposes one flat directory for GET, POST (no overwrite) and DELETE,\n" +
		"plus a static index page from a separate public directory.",
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "TOML or YAML config file")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", "", "configuration profile: default or test (env FLATFS_ENV)")
	rootCmd.AddCommand(serveCmd, configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
