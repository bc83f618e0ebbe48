package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/foxzi/zapdesk/internal/app"
	"github.com/foxzi/zapdesk/internal/session"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in to the backend and store the session",
	RunE:  withApp(runLogin),
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session",
	RunE:  withApp(runLogout),
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the logged in user",
	RunE:  withApp(runWhoami),
}

var (
	loginEmail    string
	loginPassword string
)

func init() {
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "Account email (will prompt if not provided)")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "Account password (will prompt if not provided)")

	rootCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd)
}

func runLogin(cmd *cobra.Command, args []string, a *app.App) error {
	email := loginEmail
	if email == "" {
		fmt.Print("Email: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read email: %w", err)
		}
		email = strings.TrimSpace(line)
	}

	password := loginPassword
	if password == "" {
		fmt.Print("Password: ")
		pw, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Println()
		password = string(pw)
	}

	resp, err := a.Client().Login(cmd.Context(), email, password)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	sess, err := session.FromLogin(resp, time.Now())
	if err != nil {
		return err
	}
	if err := a.Sessions().Save(sess); err != nil {
		return err
	}

	fmt.Printf("Logged in as %s (tenant %s)\n", displayUser(sess), sess.User.TenantID)
	return nil
}

func runLogout(cmd *cobra.Command, args []string, a *app.App) error {
	if err := a.Sessions().Clear(); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	fmt.Println("Logged out")
	return nil
}

func runWhoami(cmd *cobra.Command, args []string, a *app.App) error {
	sess, err := a.RequireSession()
	if err != nil {
		return err
	}

	fmt.Printf("User:   %s\n", displayUser(sess))
	fmt.Printf("Tenant: %s\n", sess.User.TenantID)
	if sess.User.Role != "" {
		fmt.Printf("Role:   %s\n", sess.User.Role)
	}
	if sess.ExpiresAt != nil {
		fmt.Printf("Expires: %s\n", sess.ExpiresAt.Local().Format(time.RFC1123))
	}
	return nil
}

func displayUser(s *session.Session) string {
	switch {
	case s.User.Name != "" && s.User.Email != "":
		return fmt.Sprintf("%s <%s>", s.User.Name, s.User.Email)
	case s.User.Email != "":
		return s.User.Email
	case s.User.Name != "":
		return s.User.Name
	default:
		return s.User.ID.String()
	}
}
