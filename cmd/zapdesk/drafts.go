package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/foxzi/zapdesk/internal/app"
	"github.com/foxzi/zapdesk/internal/store"
	"github.com/foxzi/zapdesk/internal/wizard"
)

var draftsCmd = &cobra.Command{
	Use:     "drafts",
	Aliases: []string{"draft"},
	Short:   "Local campaign draft commands",
}

var draftsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved drafts",
	RunE:  withApp(runDraftsList),
}

var draftsDeleteCmd = &cobra.Command{
	Use:   "delete <draft_id>",
	Short: "Delete a draft",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(runDraftsDelete),
}

var draftsSubmitCmd = &cobra.Command{
	Use:   "submit <draft_id>",
	Short: "Validate a draft and submit it as a campaign",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(runDraftsSubmit),
}

var draftsKeep bool

func init() {
	draftsSubmitCmd.Flags().BoolVar(&draftsKeep, "keep", false, "Keep the draft after a successful submit")

	draftsCmd.AddCommand(draftsListCmd, draftsDeleteCmd, draftsSubmitCmd)
	rootCmd.AddCommand(draftsCmd)
}

func runDraftsList(cmd *cobra.Command, args []string, a *app.App) error {
	drafts, err := a.Drafts().List(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list drafts: %w", err)
	}
	if len(drafts) == 0 {
		fmt.Println("No drafts")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tUPDATED")
	for _, d := range drafts {
		fmt.Fprintf(w, "%s\t%s\t%s\n", d.ID, d.Name, d.UpdatedAt.Local().Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func runDraftsDelete(cmd *cobra.Command, args []string, a *app.App) error {
	if err := a.Drafts().Delete(cmd.Context(), args[0]); err != nil {
		if errors.Is(err, store.ErrDraftNotFound) {
			return fmt.Errorf("draft %s not found", args[0])
		}
		return err
	}
	fmt.Printf("Draft %s deleted\n", args[0])
	return nil
}

func runDraftsSubmit(cmd *cobra.Command, args []string, a *app.App) error {
	if _, err := a.RequireSession(); err != nil {
		return err
	}
	ctx := cmd.Context()

	d, err := a.Drafts().Get(ctx, args[0])
	if err != nil {
		if errors.Is(err, store.ErrDraftNotFound) {
			return fmt.Errorf("draft %s not found", args[0])
		}
		return err
	}

	inv, err := a.Client().Inventory(ctx)
	if err != nil {
		return err
	}
	wz := wizard.New(inv)
	if err := wz.Restore(d.Payload); err != nil {
		return err
	}
	if err := wz.ValidateAll(); err != nil {
		return fmt.Errorf("draft is incomplete: %w", err)
	}

	resp, err := wz.Submit(ctx, a.Client())
	if err != nil {
		return err
	}
	fmt.Printf("Campaign %s submitted from draft %s\n", resp.ID, d.ID)

	if !draftsKeep {
		if err := a.Drafts().Delete(ctx, d.ID); err != nil {
			a.Logger().Warn("failed to delete submitted draft", "draft_id", d.ID, "error", err)
		}
	}
	return nil
}
