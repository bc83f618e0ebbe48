package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/foxzi/zapdesk/internal/app"
	"github.com/foxzi/zapdesk/internal/backend"
	"github.com/foxzi/zapdesk/internal/ident"
	"github.com/foxzi/zapdesk/internal/phone"
	"github.com/foxzi/zapdesk/internal/recipient"
)

var contactsCmd = &cobra.Command{
	Use:   "contacts",
	Short: "Chat contact commands",
}

var contactsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List contacts",
	RunE:  withApp(runContactsList),
}

var contactsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a contact",
	RunE:  withApp(runContactsCreate),
}

var contactsDeleteCmd = &cobra.Command{
	Use:   "delete <contact_id>",
	Short: "Delete a contact",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(runContactsDelete),
}

var contactsImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import contacts from a CSV or XLSX file",
	RunE:  withApp(runContactsImport),
}

var tagsCmd = &cobra.Command{
	Use:   "tags",
	Short: "Contact tag commands",
}

var tagsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tags",
	RunE:  withApp(runTagsList),
}

var tagsCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a tag",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(runTagsCreate),
}

var pipelinesCmd = &cobra.Command{
	Use:   "pipelines",
	Short: "CRM pipeline commands",
}

var pipelinesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pipelines and their stages",
	RunE:  withApp(runPipelinesList),
}

var pipelinesCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a pipeline",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(runPipelinesCreate),
}

var dealsCmd = &cobra.Command{
	Use:   "deals",
	Short: "CRM deal commands",
}

var dealsCreateCmd = &cobra.Command{
	Use:   "create <title>",
	Short: "Create a deal",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(runDealsCreate),
}

var dealsMoveCmd = &cobra.Command{
	Use:   "move <deal_id>",
	Short: "Move a deal to another stage",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(runDealsMove),
}

var (
	contactsSearch string
	contactsTag    string
	contactsLimit  int
	contactsOffset int

	contactName  string
	contactPhone string
	contactEmail string
	contactTags  []string

	importFile        string
	importPhoneColumn string

	tagColor string

	pipelineStages []string

	dealPipeline string
	dealStage    string
	dealContact  string
	dealValue    float64
)

func init() {
	contactsListCmd.Flags().StringVar(&contactsSearch, "search", "", "Search by name or phone")
	contactsListCmd.Flags().StringVar(&contactsTag, "tag", "", "Filter by tag ID")
	contactsListCmd.Flags().IntVar(&contactsLimit, "limit", 50, "Maximum number of contacts to show")
	contactsListCmd.Flags().IntVar(&contactsOffset, "offset", 0, "Skip the first N contacts")

	contactsCreateCmd.Flags().StringVar(&contactName, "name", "", "Contact name")
	contactsCreateCmd.Flags().StringVar(&contactPhone, "phone", "", "Phone number")
	contactsCreateCmd.Flags().StringVar(&contactEmail, "email", "", "Email address")
	contactsCreateCmd.MarkFlagRequired("phone")

	for _, c := range []*cobra.Command{contactsCreateCmd, contactsImportCmd} {
		c.Flags().StringSliceVar(&contactTags, "tags", nil, "Tag IDs to apply")
	}
	contactsImportCmd.Flags().StringVarP(&importFile, "file", "f", "", "CSV or XLSX contact file")
	contactsImportCmd.Flags().StringVar(&importPhoneColumn, "phone-column", "", "Phone column (auto-detected when empty)")
	contactsImportCmd.MarkFlagRequired("file")

	tagsCreateCmd.Flags().StringVar(&tagColor, "color", "", "Tag color (#rrggbb)")

	pipelinesCreateCmd.Flags().StringSliceVar(&pipelineStages, "stages", []string{"New", "In progress", "Won", "Lost"}, "Stage names in order")

	for _, c := range []*cobra.Command{dealsCreateCmd, dealsMoveCmd} {
		c.Flags().StringVar(&dealPipeline, "pipeline", "", "Pipeline ID")
		c.Flags().StringVar(&dealStage, "stage", "", "Stage ID")
	}
	dealsCreateCmd.Flags().StringVar(&dealContact, "contact", "", "Contact ID")
	dealsCreateCmd.Flags().Float64Var(&dealValue, "value", 0, "Deal value")
	dealsCreateCmd.MarkFlagRequired("pipeline")
	dealsCreateCmd.MarkFlagRequired("stage")
	dealsMoveCmd.MarkFlagRequired("stage")

	contactsCmd.AddCommand(contactsListCmd, contactsCreateCmd, contactsDeleteCmd, contactsImportCmd)
	tagsCmd.AddCommand(tagsListCmd, tagsCreateCmd)
	pipelinesCmd.AddCommand(pipelinesListCmd, pipelinesCreateCmd)
	dealsCmd.AddCommand(dealsCreateCmd, dealsMoveCmd)
	rootCmd.AddCommand(contactsCmd, tagsCmd, pipelinesCmd, dealsCmd)
}

func runContactsList(cmd *cobra.Command, args []string, a *app.App) error {
	if _, err := a.RequireSession(); err != nil {
		return err
	}

	contacts, err := a.Client().ListContacts(cmd.Context(), backend.ContactFilter{
		Search: contactsSearch,
		Tag:    contactsTag,
		Limit:  contactsLimit,
		Offset: contactsOffset,
	})
	if err != nil {
		return fmt.Errorf("failed to list contacts: %w", err)
	}
	if len(contacts) == 0 {
		fmt.Println("No contacts")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tPHONE\tEMAIL\tTAGS")
	for _, c := range contacts {
		names := make([]string, 0, len(c.Tags))
		for _, t := range c.Tags {
			names = append(names, t.Name)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", c.ID, c.Name, c.Phone, c.Email, strings.Join(names, ","))
	}
	return w.Flush()
}

func runContactsCreate(cmd *cobra.Command, args []string, a *app.App) error {
	if _, err := a.RequireSession(); err != nil {
		return err
	}

	normalized := phone.Normalize(contactPhone)
	if !phone.Valid(normalized) {
		return recipient.ErrInvalidPhone
	}

	c, err := a.Client().CreateContact(cmd.Context(), &backend.ContactRequest{
		Name:   contactName,
		Phone:  normalized,
		Email:  contactEmail,
		TagIDs: tagIDs(contactTags),
	})
	if err != nil {
		return fmt.Errorf("failed to create contact: %w", err)
	}
	fmt.Printf("Contact %s created (%s)\n", c.ID, c.Phone)
	return nil
}

func runContactsDelete(cmd *cobra.Command, args []string, a *app.App) error {
	if _, err := a.RequireSession(); err != nil {
		return err
	}
	if err := a.Client().DeleteContact(cmd.Context(), ident.ID(args[0])); err != nil {
		return fmt.Errorf("failed to delete contact: %w", err)
	}
	fmt.Printf("Contact %s deleted\n", args[0])
	return nil
}

func runContactsImport(cmd *cobra.Command, args []string, a *app.App) error {
	if _, err := a.RequireSession(); err != nil {
		return err
	}

	f, err := os.Open(importFile)
	if err != nil {
		return fmt.Errorf("failed to open contact file: %w", err)
	}
	defer f.Close()

	sheet, err := recipient.Decode(f, importFile)
	if err != nil {
		return err
	}
	req, skipped, err := importRequest(sheet, importPhoneColumn)
	if err != nil {
		return err
	}
	req.TagIDs = tagIDs(contactTags)

	res, err := a.Client().ImportContacts(cmd.Context(), req)
	if err != nil {
		return fmt.Errorf("failed to import contacts: %w", err)
	}

	fmt.Printf("Imported: %d\n", res.Imported)
	fmt.Printf("Skipped: %d\n", res.Skipped+skipped)
	for _, e := range res.Errors {
		fmt.Printf("  %s\n", e)
	}
	return nil
}

// importRequest turns sheet rows into contacts, dropping rows without a
// dialable phone the same way campaign uploads do
func importRequest(sheet *recipient.Sheet, phoneColumn string) (*backend.ImportRequest, int, error) {
	if phoneColumn == "" {
		phoneColumn = sheet.PhoneColumn()
	}
	if phoneColumn == "" {
		return nil, 0, fmt.Errorf("no phone column detected, use --phone-column")
	}

	req := &backend.ImportRequest{}
	skipped := 0
	for _, row := range sheet.Rows {
		normalized := phone.Normalize(row[phoneColumn])
		if !phone.Valid(normalized) {
			skipped++
			continue
		}
		name := row["name"]
		if name == "" {
			name = row["nome"]
		}
		req.Contacts = append(req.Contacts, backend.ContactRequest{
			Name:  name,
			Phone: normalized,
			Email: row["email"],
		})
	}
	return req, skipped, nil
}

func runTagsList(cmd *cobra.Command, args []string, a *app.App) error {
	if _, err := a.RequireSession(); err != nil {
		return err
	}

	tags, err := a.Client().ListTags(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list tags: %w", err)
	}
	if len(tags) == 0 {
		fmt.Println("No tags")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCOLOR")
	for _, t := range tags {
		fmt.Fprintf(w, "%s\t%s\t%s\n", t.ID, t.Name, t.Color)
	}
	return w.Flush()
}

func runTagsCreate(cmd *cobra.Command, args []string, a *app.App) error {
	if _, err := a.RequireSession(); err != nil {
		return err
	}
	t, err := a.Client().CreateTag(cmd.Context(), args[0], tagColor)
	if err != nil {
		return fmt.Errorf("failed to create tag: %w", err)
	}
	fmt.Printf("Tag %s created (%s)\n", t.Name, t.ID)
	return nil
}

func runPipelinesList(cmd *cobra.Command, args []string, a *app.App) error {
	if _, err := a.RequireSession(); err != nil {
		return err
	}

	pipelines, err := a.Client().ListPipelines(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list pipelines: %w", err)
	}
	if len(pipelines) == 0 {
		fmt.Println("No pipelines")
		return nil
	}

	for _, p := range pipelines {
		fmt.Printf("%s  %s\n", p.ID, p.Name)
		for _, s := range p.Stages {
			fmt.Printf("    %d. %s (%s)\n", s.Position, s.Name, s.ID)
		}
	}
	return nil
}

func runPipelinesCreate(cmd *cobra.Command, args []string, a *app.App) error {
	if _, err := a.RequireSession(); err != nil {
		return err
	}
	p, err := a.Client().CreatePipeline(cmd.Context(), &backend.PipelineRequest{
		Name:   args[0],
		Stages: pipelineStages,
	})
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}
	fmt.Printf("Pipeline %s created (%s) with %d stages\n", p.Name, p.ID, len(p.Stages))
	return nil
}

func runDealsCreate(cmd *cobra.Command, args []string, a *app.App) error {
	if _, err := a.RequireSession(); err != nil {
		return err
	}

	req := &backend.DealRequest{
		Title:      args[0],
		PipelineID: ident.ID(dealPipeline),
		StageID:    ident.ID(dealStage),
		ContactID:  ident.ID(dealContact),
	}
	if cmd.Flags().Changed("value") {
		v := dealValue
		req.Value = &v
	}

	d, err := a.Client().CreateDeal(cmd.Context(), req)
	if err != nil {
		return fmt.Errorf("failed to create deal: %w", err)
	}
	fmt.Printf("Deal %s created (%s)\n", d.Title, d.ID)
	return nil
}

func runDealsMove(cmd *cobra.Command, args []string, a *app.App) error {
	if _, err := a.RequireSession(); err != nil {
		return err
	}

	d, err := a.Client().UpdateDeal(cmd.Context(), ident.ID(args[0]), &backend.DealRequest{
		PipelineID: ident.ID(dealPipeline),
		StageID:    ident.ID(dealStage),
	})
	if err != nil {
		return fmt.Errorf("failed to move deal: %w", err)
	}
	fmt.Printf("Deal %s moved to stage %s\n", d.ID, d.StageID)
	return nil
}

func tagIDs(ids []string) []ident.ID {
	if len(ids) == 0 {
		return nil
	}
	out := make([]ident.ID, len(ids))
	for i, id := range ids {
		out[i] = ident.ID(strings.TrimSpace(id))
	}
	return out
}
