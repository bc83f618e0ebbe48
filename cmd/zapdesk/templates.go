package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/foxzi/zapdesk/internal/app"
	"github.com/foxzi/zapdesk/internal/ident"
	"github.com/foxzi/zapdesk/internal/template"
	"github.com/foxzi/zapdesk/internal/wizard"
)

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "Message template commands",
}

var templatesAvailableCmd = &cobra.Command{
	Use:   "available",
	Short: "List approved templates usable from a channel",
	RunE:  withApp(runTemplatesAvailable),
}

var recipientsCmd = &cobra.Command{
	Use:   "recipients",
	Short: "Recipient list commands",
}

var recipientsPreviewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Resolve a contact file against a template without sending",
	RunE:  withApp(runRecipientsPreview),
}

var (
	templatesChannel string

	previewFile        string
	previewChannel     string
	previewTemplate    string
	previewPhoneColumn string
	previewMaps        []string
	previewLimit       int
)

func init() {
	templatesAvailableCmd.Flags().StringVar(&templatesChannel, "channel", "", "Channel ID")
	templatesAvailableCmd.MarkFlagRequired("channel")
	templatesCmd.AddCommand(templatesAvailableCmd)

	recipientsPreviewCmd.Flags().StringVarP(&previewFile, "file", "f", "", "CSV or XLSX contact file")
	recipientsPreviewCmd.Flags().StringVar(&previewChannel, "channel", "", "Channel ID")
	recipientsPreviewCmd.Flags().StringVar(&previewTemplate, "template", "", "Template ID or name")
	recipientsPreviewCmd.Flags().StringVar(&previewPhoneColumn, "phone-column", "", "Phone column (auto-detected when empty)")
	recipientsPreviewCmd.Flags().StringArrayVar(&previewMaps, "map", nil, "Variable mapping var=text:value, var=column:name or var=name (repeatable)")
	recipientsPreviewCmd.Flags().IntVar(&previewLimit, "limit", 20, "Maximum number of recipients to print")
	recipientsPreviewCmd.MarkFlagRequired("file")
	recipientsPreviewCmd.MarkFlagRequired("channel")
	recipientsPreviewCmd.MarkFlagRequired("template")
	recipientsCmd.AddCommand(recipientsPreviewCmd)

	rootCmd.AddCommand(templatesCmd, recipientsCmd)
}

func runTemplatesAvailable(cmd *cobra.Command, args []string, a *app.App) error {
	if _, err := a.RequireSession(); err != nil {
		return err
	}

	inv, err := a.Client().Inventory(cmd.Context())
	if err != nil {
		return err
	}
	ch, ok := inv.Channel(ident.ID(templatesChannel))
	if !ok {
		return fmt.Errorf("channel %s not found", templatesChannel)
	}

	templates := template.Available(inv.Templates, ch)
	if len(templates) == 0 {
		fmt.Printf("No approved templates for channel %s\n", ch.Name)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tLANGUAGE\tCATEGORY\tVARIABLES")
	for i := range templates {
		t := &templates[i]
		vars := template.ExtractVariables(t.Components)
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t.ID, t.Name, t.Language, t.Category, strings.Join(vars, ","))
	}
	return w.Flush()
}

func runRecipientsPreview(cmd *cobra.Command, args []string, a *app.App) error {
	if _, err := a.RequireSession(); err != nil {
		return err
	}

	inv, err := a.Client().Inventory(cmd.Context())
	if err != nil {
		return err
	}

	wz := wizard.New(inv)
	if err := wz.SelectChannel(ident.ID(previewChannel)); err != nil {
		return err
	}
	if err := wz.SelectTemplate(previewTemplate); err != nil {
		return err
	}
	if err := loadContactFile(wz, previewFile, previewPhoneColumn); err != nil {
		return err
	}
	mappings, err := parseMappings(previewMaps)
	if err != nil {
		return err
	}
	if err := applyMappings(wz, mappings); err != nil {
		return err
	}

	fmt.Printf("Phone column: %s\n", wz.PhoneColumn())
	fmt.Println("Mappings:")
	current := wz.Mappings()
	for _, v := range wz.Variables() {
		m, ok := current[v]
		if !ok {
			fmt.Printf("  {{%s}} -> (unmapped)\n", v)
			continue
		}
		fmt.Printf("  {{%s}} -> %s\n", v, m)
	}

	stats := wz.Stats()
	fmt.Printf("Rows: %d, resolved: %d, dropped: %d\n\n", stats.Rows, stats.Resolved, stats.Rows-stats.Resolved)

	recipients := wz.Recipients()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PHONE\tNAME\tVARIABLES")
	for i, r := range recipients {
		if i == previewLimit {
			break
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", r.Phone, r.Name, strings.Join(r.Variables, " | "))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if len(recipients) > previewLimit {
		fmt.Printf("... and %d more\n", len(recipients)-previewLimit)
	}

	if p, ok := wz.Preview(0); ok {
		fmt.Println("\nFirst message:")
		if p.Header != "" {
			fmt.Printf("  %s\n", p.Header)
		}
		fmt.Printf("  %s\n", p.Body)
		if p.Footer != "" {
			fmt.Printf("  %s\n", p.Footer)
		}
	}

	if missing := current.Missing(wz.Variables()); len(missing) > 0 {
		return fmt.Errorf("%w: %s", wizard.ErrUnmappedVariables, strings.Join(missing, ", "))
	}
	return nil
}
