package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"

	"github.com/foxzi/zapdesk/internal/app"
	"github.com/foxzi/zapdesk/internal/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run local database migrations",
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		if err := a.Migrate(); err != nil {
			return err
		}
		fmt.Println("Migrations completed successfully")
		return nil
	}),
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Clean up old local data (drafts, audit log)",
	RunE:  withApp(runCleanup),
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE:  runConfigValidate,
}

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Dashboard commands",
}

var dashboardHashPasswordCmd = &cobra.Command{
	Use:   "hash-password",
	Short: "Print a bcrypt hash for server.auth.password_hash",
	RunE:  runHashPassword,
}

var (
	cleanupDraftsDays int
	cleanupAuditDays  int
	cleanupDryRun     bool
)

func init() {
	cleanupCmd.Flags().IntVar(&cleanupDraftsDays, "drafts-days", 30, "Delete drafts not updated for N days")
	cleanupCmd.Flags().IntVar(&cleanupAuditDays, "audit-days", 180, "Delete audit log entries older than N days")
	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "Show what would be deleted without actually deleting")

	configCmd.AddCommand(configValidateCmd)
	dashboardCmd.AddCommand(dashboardHashPasswordCmd)
	rootCmd.AddCommand(migrateCmd, cleanupCmd, configCmd, dashboardCmd)
}

func runCleanup(cmd *cobra.Command, args []string, a *app.App) error {
	ctx := cmd.Context()
	now := time.Now()

	if cleanupDryRun {
		fmt.Println("Dry run mode - no data will be deleted")
		fmt.Println()
	}

	draftsCutoff := now.AddDate(0, 0, -cleanupDraftsDays)
	count, err := a.Drafts().CountOlderThan(ctx, draftsCutoff)
	if err != nil {
		return fmt.Errorf("failed to cleanup drafts: %w", err)
	}
	fmt.Printf("Drafts older than %d days: %d\n", cleanupDraftsDays, count)
	if !cleanupDryRun && count > 0 {
		deleted, err := a.Drafts().DeleteOlderThan(ctx, draftsCutoff)
		if err != nil {
			return fmt.Errorf("failed to cleanup drafts: %w", err)
		}
		fmt.Printf("  Deleted: %d\n", deleted)
	}

	auditCutoff := now.AddDate(0, 0, -cleanupAuditDays)
	count, err = a.Audit().CountOlderThan(ctx, auditCutoff)
	if err != nil {
		return fmt.Errorf("failed to cleanup audit logs: %w", err)
	}
	fmt.Printf("Audit log entries older than %d days: %d\n", cleanupAuditDays, count)
	if !cleanupDryRun && count > 0 {
		deleted, err := a.Audit().DeleteOlderThan(ctx, auditCutoff)
		if err != nil {
			return fmt.Errorf("failed to cleanup audit logs: %w", err)
		}
		fmt.Printf("  Deleted: %d\n", deleted)
	}

	if !cleanupDryRun {
		fmt.Println("\nCleanup completed")
	}
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	fmt.Println("Configuration is valid")
	fmt.Printf("  Backend: %s (timeout %s)\n", cfg.Backend.BaseURL, cfg.Backend.Timeout)
	fmt.Printf("  Socket: %s\n", cfg.Socket.URL)
	fmt.Printf("  Session path: %s\n", cfg.Session.Path)
	fmt.Printf("  Database path: %s\n", cfg.Database.Path)
	fmt.Printf("  Dashboard: %s (auth %v)\n", cfg.Server.ListenAddr, cfg.Server.Auth.PasswordHash != "")
	fmt.Printf("  Metrics: %v\n", cfg.Metrics.Enabled)
	fmt.Printf("  Tracing: %v\n", cfg.Tracing.Enabled)
	return nil
}

func runHashPassword(cmd *cobra.Command, args []string) error {
	fmt.Fprint(os.Stderr, "Enter password: ")
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}
	fmt.Fprintln(os.Stderr)

	fmt.Fprint(os.Stderr, "Confirm password: ")
	pw2, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}
	fmt.Fprintln(os.Stderr)

	if string(pw) != string(pw2) {
		return fmt.Errorf("passwords do not match")
	}
	if len(pw) < 10 {
		return fmt.Errorf("password must be at least 10 characters")
	}

	hash, err := bcrypt.GenerateFromPassword(pw, bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	fmt.Println(string(hash))
	return nil
}
