package main

import (
	"github.com/spf13/cobra"

	"github.com/foxzi/zapdesk/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dashboard server with live campaign tracking",
	RunE:  withApp(runServe),
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string, a *app.App) error {
	return a.Serve(cmd.Context())
}
