package cmd

import (
	"encoding/json"
	"strconv"

	"github.com/spf13/cobra"

	"postraft-facade/internal/domain"
)

var templatesCmd = &cobra.Command{
	Use:     "templates",
	Aliases: []string{"template"},
	Short:   "List and manage poster templates",
	Long: `List poster templates, or manage one with a subcommand.

Examples:
  postraft-facade templates                  # All templates
  postraft-facade templates --format story   # Only story-sized templates
  postraft-facade templates duplicate 3      # Copy a template into your library`,
	Args: cobra.NoArgs,
	RunE: runTemplatesList,
}

var templatesDuplicateCmd = &cobra.Command{
	Use:   "duplicate <id>",
	Short: "Duplicate a template",
	Args:  cobra.ExactArgs(1),
	RunE:  runTemplatesDuplicate,
}

var templatesDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete one of your templates",
	Args:  cobra.ExactArgs(1),
	RunE:  runTemplatesDelete,
}

func init() {
	rootCmd.AddCommand(templatesCmd)
	templatesCmd.AddCommand(templatesDuplicateCmd, templatesDeleteCmd)

	templatesCmd.Flags().String("format", "", "square, story or a4")
	templatesCmd.Flags().Bool("json", false, "output as JSON")
}

func runTemplatesList(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	switch domain.TemplateFormat(format) {
	case "", domain.FormatSquare, domain.FormatStory, domain.FormatA4:
	default:
		return usageError("invalid format %q: must be square, story or a4", format)
	}

	a, err := cliApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := commandContext(cmd)
	if err := a.requireSession(ctx); err != nil {
		return err
	}
	templates, err := a.resources.Templates.List(ctx, domain.TemplateFormat(format))
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(printer.Out())
		enc.SetIndent("", "  ")
		return enc.Encode(domain.TemplateList{Templates: templates})
	}

	printer.Header("Templates")
	table := printer.NewTable([]string{"ID", "NAME", "FORMAT", "OWNER"})
	for _, t := range templates {
		owner := "you"
		if t.IsSystem {
			owner = printer.Dim("system")
		}
		table.AddRow(strconv.FormatInt(t.ID, 10), printer.Bold(t.Name), string(t.Format), owner)
	}
	return table.Render()
}

func runTemplatesDuplicate(cmd *cobra.Command, args []string) error {
	templateID, err := parseID(args[0])
	if err != nil {
		return err
	}

	a, err := cliApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := commandContext(cmd)
	if err := a.requireSession(ctx); err != nil {
		return err
	}
	tmpl, err := a.resources.Templates.Duplicate(ctx, templateID)
	if err != nil {
		return err
	}
	printer.Print("%d", tmpl.ID)
	return nil
}

func runTemplatesDelete(cmd *cobra.Command, args []string) error {
	templateID, err := parseID(args[0])
	if err != nil {
		return err
	}

	a, err := cliApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := commandContext(cmd)
	if err := a.requireSession(ctx); err != nil {
		return err
	}
	return a.resources.Templates.Delete(ctx, templateID)
}
