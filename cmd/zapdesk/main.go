package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/foxzi/zapdesk/internal/app"
	"github.com/foxzi/zapdesk/internal/config"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "zapdesk",
	Short: "zapdesk - WhatsApp campaign console",
	Long: `zapdesk drives WhatsApp template campaigns on a multi-tenant messaging backend:
it builds recipient lists from CSV/XLSX uploads, tracks campaign progress in
real time and serves a local dashboard.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("zapdesk %s (built %s)\n", version, buildTime)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (env overrides apply either way)")
	rootCmd.AddCommand(versionCmd)
}

// openApp loads the configuration and opens the local stores
func openApp(cmd *cobra.Command) (*app.App, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return app.New(cmd.Context(), cfg, app.Options{Version: version})
}

// withApp runs fn with an open App and closes it afterwards
func withApp(fn func(cmd *cobra.Command, args []string, a *app.App) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(cmd, args, a)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
