package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/foxzi/zapdesk/internal/app"
	"github.com/foxzi/zapdesk/internal/backend"
	"github.com/foxzi/zapdesk/internal/campaign"
	"github.com/foxzi/zapdesk/internal/ident"
	"github.com/foxzi/zapdesk/internal/phone"
	"github.com/foxzi/zapdesk/internal/recipient"
	"github.com/foxzi/zapdesk/internal/store"
	"github.com/foxzi/zapdesk/internal/wizard"
)

var campaignsCmd = &cobra.Command{
	Use:     "campaigns",
	Aliases: []string{"campaign"},
	Short:   "Campaign commands",
}

var campaignsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List campaigns",
	RunE:  withApp(runCampaignsList),
}

var campaignsPauseCmd = &cobra.Command{
	Use:   "pause <campaign_id>",
	Short: "Pause a processing campaign",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		return campaignAction(cmd.Context(), a, args[0], "paused", (*campaign.Reconciler).Pause)
	}),
}

var campaignsResumeCmd = &cobra.Command{
	Use:   "resume <campaign_id>",
	Short: "Resume a paused campaign",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		return campaignAction(cmd.Context(), a, args[0], "resumed", (*campaign.Reconciler).Resume)
	}),
}

var campaignsDeleteCmd = &cobra.Command{
	Use:   "delete <campaign_id>",
	Short: "Delete a campaign",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		return campaignAction(cmd.Context(), a, args[0], "deleted", (*campaign.Reconciler).Delete)
	}),
}

var campaignsRescheduleCmd = &cobra.Command{
	Use:   "reschedule <campaign_id>",
	Short: "Reschedule a campaign and requeue its pending messages",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(runCampaignsReschedule),
}

var campaignsRecipientsCmd = &cobra.Command{
	Use:   "recipients <campaign_id>",
	Short: "List the recipients of a campaign",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(runCampaignsRecipients),
}

var campaignsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a campaign from a contact file or typed-in contacts",
	RunE:  withApp(runCampaignsCreate),
}

var campaignsDuplicateCmd = &cobra.Command{
	Use:   "duplicate <campaign_id>",
	Short: "Create a copy of a campaign with the same recipients",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(runCampaignsDuplicate),
}

var (
	rescheduleAt string

	createName        string
	createChannel     string
	createTemplate    string
	createFile        string
	createPhoneColumn string
	createMaps        []string
	createContacts    []string
	createAt          string
	createRepeat      recurrenceFlags
	createPipeline    string
	createStage       string
	createDraft       bool
)

func init() {
	campaignsRescheduleCmd.Flags().StringVar(&rescheduleAt, "at", "now", "New start time (RFC 3339, YYYY-MM-DD HH:MM or now)")

	for _, c := range []*cobra.Command{campaignsCreateCmd, campaignsDuplicateCmd} {
		c.Flags().StringVar(&createName, "name", "", "Campaign name")
		c.Flags().StringVar(&createAt, "at", "", "Start time (RFC 3339, YYYY-MM-DD HH:MM); empty sends now")
		c.Flags().StringVar(&createRepeat.Repeat, "repeat", "", "Repeat cadence: daily, weekly or monthly")
		c.Flags().IntVar(&createRepeat.Every, "every", 1, "Repeat interval")
		c.Flags().IntVar(&createRepeat.Day, "day", -1, "Day of week (0-6) or month (1-31) for weekly and monthly rules")
		c.Flags().StringVar(&createRepeat.Time, "time", "", "Time of day HH:MM for repeating campaigns")
		c.Flags().StringVar(&createPipeline, "pipeline", "", "CRM pipeline to move replying contacts into")
		c.Flags().StringVar(&createStage, "stage", "", "CRM stage within --pipeline")
		c.Flags().BoolVar(&createDraft, "draft", false, "Save as a local draft instead of submitting")
	}
	campaignsCreateCmd.Flags().StringVar(&createChannel, "channel", "", "Channel ID")
	campaignsCreateCmd.Flags().StringVar(&createTemplate, "template", "", "Template ID or name")
	campaignsCreateCmd.Flags().StringVarP(&createFile, "file", "f", "", "CSV or XLSX contact file")
	campaignsCreateCmd.Flags().StringVar(&createPhoneColumn, "phone-column", "", "Phone column (auto-detected when empty)")
	campaignsCreateCmd.Flags().StringArrayVar(&createMaps, "map", nil, "Variable mapping var=text:value, var=column:name or var=name (repeatable)")
	campaignsCreateCmd.Flags().StringArrayVar(&createContacts, "contact", nil, `Typed-in contact "phone,name,var1;var2" (repeatable)`)
	campaignsCreateCmd.MarkFlagRequired("name")
	campaignsCreateCmd.MarkFlagRequired("channel")
	campaignsCreateCmd.MarkFlagRequired("template")

	campaignsCmd.AddCommand(
		campaignsListCmd,
		campaignsPauseCmd,
		campaignsResumeCmd,
		campaignsRescheduleCmd,
		campaignsDeleteCmd,
		campaignsRecipientsCmd,
		campaignsCreateCmd,
		campaignsDuplicateCmd,
	)
	rootCmd.AddCommand(campaignsCmd)
}

func runCampaignsList(cmd *cobra.Command, args []string, a *app.App) error {
	if _, err := a.RequireSession(); err != nil {
		return err
	}

	list, err := a.Client().ListCampaigns(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list campaigns: %w", err)
	}
	if len(list) == 0 {
		fmt.Println("No campaigns")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATUS\tPROGRESS\tSCHEDULED\tREPEAT")
	for i := range list {
		c := &list[i]
		scheduled := "-"
		if c.ScheduledAt != nil {
			scheduled = c.ScheduledAt.Local().Format("2006-01-02 15:04")
		}
		repeat := "-"
		if c.Recurrence != nil && c.Recurrence.Repeats() {
			repeat = string(c.Recurrence.Type)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d (%.0f%%)\t%s\t%s\n",
			c.ID, c.Name, c.Status, c.Sent, c.Total, c.Progress(), scheduled, repeat)
	}
	return w.Flush()
}

// campaignAction runs one reconciler action so it is validated against the
// current status and recorded in the audit log
func campaignAction(ctx context.Context, a *app.App, id, done string, action func(*campaign.Reconciler, context.Context, ident.ID) error) error {
	if _, err := a.RequireSession(); err != nil {
		return err
	}

	rec := a.NewReconciler()
	if err := rec.Refresh(ctx); err != nil {
		return fmt.Errorf("failed to load campaigns: %w", err)
	}
	if err := action(rec, ctx, ident.ID(id)); err != nil {
		return err
	}

	fmt.Printf("Campaign %s %s\n", id, done)
	return nil
}

func runCampaignsReschedule(cmd *cobra.Command, args []string, a *app.App) error {
	at, err := parseSchedule(rescheduleAt, time.Local)
	if err != nil {
		return err
	}
	if _, err := a.RequireSession(); err != nil {
		return err
	}

	ctx := cmd.Context()
	rec := a.NewReconciler()
	if err := rec.Refresh(ctx); err != nil {
		return fmt.Errorf("failed to load campaigns: %w", err)
	}
	res, err := rec.Reschedule(ctx, ident.ID(args[0]), at)
	if err != nil {
		return err
	}

	when := "now"
	if at != nil {
		when = at.Local().Format(time.RFC1123)
	}
	fmt.Printf("Campaign %s rescheduled for %s\n", args[0], when)
	if res != nil {
		fmt.Printf("  Requeued: %d\n", res.RequeuedCount)
	}
	return nil
}

func runCampaignsRecipients(cmd *cobra.Command, args []string, a *app.App) error {
	if _, err := a.RequireSession(); err != nil {
		return err
	}

	list, err := a.Client().CampaignRecipients(cmd.Context(), ident.ID(args[0]))
	if err != nil {
		return fmt.Errorf("failed to list recipients: %w", err)
	}
	if len(list) == 0 {
		fmt.Println("No recipients")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PHONE\tNAME\tSTATUS\tVARIABLES")
	for _, r := range list {
		status := r.Status
		if status == "" {
			status = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%v\n", r.Phone, r.Name, status, r.Variables)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\nTotal: %d\n", len(list))
	return nil
}

func runCampaignsCreate(cmd *cobra.Command, args []string, a *app.App) error {
	if _, err := a.RequireSession(); err != nil {
		return err
	}
	ctx := cmd.Context()

	inv, err := a.Client().Inventory(ctx)
	if err != nil {
		return err
	}

	wz := wizard.New(inv)
	wz.SetName(createName)
	if err := wz.SelectChannel(ident.ID(createChannel)); err != nil {
		return err
	}
	if err := wz.SelectTemplate(createTemplate); err != nil {
		return err
	}

	if createFile != "" {
		if err := loadContactFile(wz, createFile, createPhoneColumn); err != nil {
			return err
		}
	} else {
		wz.SetMode(recipient.ModeManual)
	}

	mappings, err := parseMappings(createMaps)
	if err != nil {
		return err
	}
	if err := applyMappings(wz, mappings); err != nil {
		return err
	}

	for _, c := range createContacts {
		entry, err := parseContact(c)
		if err != nil {
			return err
		}
		if err := wz.AddManual(entry); err != nil {
			return fmt.Errorf("contact %s: %w", phone.Mask(phone.Digits(entry.Phone)), err)
		}
	}

	if err := applySchedule(wz); err != nil {
		return err
	}
	return finishWizard(ctx, a, wz)
}

func runCampaignsDuplicate(cmd *cobra.Command, args []string, a *app.App) error {
	if _, err := a.RequireSession(); err != nil {
		return err
	}
	ctx := cmd.Context()

	inv, err := a.Client().Inventory(ctx)
	if err != nil {
		return err
	}

	wz := wizard.New(inv)
	if err := wz.LoadExisting(ctx, a.Client(), ident.ID(args[0]), true); err != nil {
		return err
	}
	if createName != "" {
		wz.SetName(createName)
	}
	if err := applySchedule(wz); err != nil {
		return err
	}
	return finishWizard(ctx, a, wz)
}

// applySchedule copies the shared schedule, recurrence and CRM flags
func applySchedule(wz *wizard.Wizard) error {
	at, err := parseSchedule(createAt, time.Local)
	if err != nil {
		return err
	}
	wz.SetSchedule(at)

	rec, err := createRepeat.build()
	if err != nil {
		return err
	}
	wz.SetRecurrence(rec)

	if createPipeline != "" || createStage != "" {
		wz.SetAutomation(&backend.AutomationRule{
			PipelineID: ident.ID(createPipeline),
			StageID:    ident.ID(createStage),
		})
	}
	return nil
}

// finishWizard saves the wizard as a draft or submits it
func finishWizard(ctx context.Context, a *app.App, wz *wizard.Wizard) error {
	stats := wz.Stats()
	if stats.Rows > 0 {
		fmt.Printf("Contacts: %d rows, %d resolved, %d without a valid phone\n",
			stats.Rows, stats.Resolved, stats.Rows-stats.Resolved)
	}

	if createDraft {
		payload, err := wz.Snapshot()
		if err != nil {
			return err
		}
		d := &store.Draft{Name: wz.Name(), Payload: payload}
		if err := a.Drafts().Save(ctx, d); err != nil {
			return fmt.Errorf("failed to save draft: %w", err)
		}
		fmt.Printf("Draft %s saved\n", d.ID)
		return nil
	}

	if err := wz.ValidateAll(); err != nil {
		return err
	}
	resp, err := wz.Submit(ctx, a.Client())
	if err != nil {
		var apiErr *backend.APIError
		if errors.As(err, &apiErr) {
			return fmt.Errorf("backend rejected the campaign: %s", apiErr.Message)
		}
		return err
	}

	fmt.Printf("Campaign %s created with %d recipients\n", resp.ID, len(wz.Recipients()))
	if resp.Message != "" {
		fmt.Printf("  %s\n", resp.Message)
	}
	return nil
}

// loadContactFile decodes an upload into the wizard
func loadContactFile(wz *wizard.Wizard, path, phoneColumn string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open contact file: %w", err)
	}
	defer f.Close()

	sheet, err := recipient.Decode(f, path)
	if err != nil {
		return err
	}
	wz.LoadSheet(sheet)

	if phoneColumn != "" {
		return wz.SetPhoneColumn(phoneColumn)
	}
	if wz.PhoneColumn() == "" {
		return fmt.Errorf("no phone column detected in %s, use --phone-column", path)
	}
	return nil
}
