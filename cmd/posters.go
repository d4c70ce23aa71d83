package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"postraft-facade/internal/domain"
	"postraft-facade/internal/resource"
)

var postersCmd = &cobra.Command{
	Use:     "posters",
	Aliases: []string{"poster"},
	Short:   "List generated posters and queue new ones",
	Long: `List generated posters, or queue a generation with a subcommand.

Examples:
  postraft-facade posters                          # Most recent posters
  postraft-facade posters --status failed          # Only failed generations
  postraft-facade posters stats                    # Monthly generation quota
  postraft-facade posters generate --template 3 --product 1 --product 2
  postraft-facade posters job 9f1c2d`,
	Args: cobra.NoArgs,
	RunE: runPostersList,
}

var postersStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show this month's generation quota",
	Args:  cobra.NoArgs,
	RunE:  runPostersStats,
}

var postersGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Queue poster generation for products with one template",
	Args:  cobra.NoArgs,
	RunE:  runPostersGenerate,
}

var postersJobCmd = &cobra.Command{
	Use:   "job <job-id>",
	Short: "Show the status of a generation job",
	Args:  cobra.ExactArgs(1),
	RunE:  runPostersJob,
}

func init() {
	rootCmd.AddCommand(postersCmd)
	postersCmd.AddCommand(postersStatsCmd, postersGenerateCmd, postersJobCmd)

	postersCmd.Flags().String("status", "", "generating, generated or failed")
	postersCmd.Flags().Int64("product", 0, "only posters of this product")
	postersCmd.Flags().Int64("template", 0, "only posters made with this template")
	postersCmd.Flags().Int("page", 1, "page number")

	postersGenerateCmd.Flags().Int64("template", 0, "template id")
	postersGenerateCmd.Flags().Int64Slice("product", nil, "product id (repeatable)")
}

func runPostersList(cmd *cobra.Command, args []string) error {
	var f resource.PosterFilter
	status, _ := cmd.Flags().GetString("status")
	f.ProductID, _ = cmd.Flags().GetInt64("product")
	f.TemplateID, _ = cmd.Flags().GetInt64("template")
	f.Page, _ = cmd.Flags().GetInt("page")
	switch domain.PosterStatus(status) {
	case "", domain.PosterGenerating, domain.PosterGenerated, domain.PosterFailed:
		f.Status = domain.PosterStatus(status)
	default:
		return usageError("invalid status %q: must be generating, generated or failed", status)
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
	page, err := a.resources.Posters.List(ctx, f)
	if err != nil {
		return err
	}

	table := printer.NewTable([]string{"ID", "PRODUCT", "TEMPLATE", "FORMAT", "STATUS", "CREATED"})
	for _, p := range page.Posters {
		table.AddRow(
			strconv.FormatInt(p.ID, 10),
			strconv.FormatInt(p.ProductID, 10),
			strconv.FormatInt(p.TemplateID, 10),
			p.Format,
			printer.StatusBadge(p.Status),
			p.CreatedAt,
		)
	}
	if table.Len() == 0 {
		printer.Info("No posters found")
		return nil
	}
	printer.Header("Posters")
	return table.Render()
}

func runPostersStats(cmd *cobra.Command, args []string) error {
	a, err := cliApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := commandContext(cmd)
	if err := a.requireSession(ctx); err != nil {
		return err
	}
	stats, err := a.resources.Posters.Stats(ctx)
	if err != nil {
		return err
	}

	printer.Header("Generation quota")
	table := printer.NewTable([]string{"USED", "LIMIT", "REMAINING", "TOTAL POSTERS"})
	table.AddRow(
		strconv.Itoa(stats.Used),
		strconv.Itoa(stats.Limit),
		strconv.Itoa(stats.Remaining),
		strconv.Itoa(stats.TotalPosters),
	)
	if err := table.Render(); err != nil {
		return err
	}
	if stats.Remaining <= 0 {
		printer.Warning("Monthly generation limit reached")
	}
	return nil
}

func runPostersGenerate(cmd *cobra.Command, args []string) error {
	var req domain.GenerationRequest
	req.TemplateID, _ = cmd.Flags().GetInt64("template")
	req.ProductIDs, _ = cmd.Flags().GetInt64Slice("product")

	a, err := cliApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := commandContext(cmd)
	if err := a.requireSession(ctx); err != nil {
		return err
	}
	job, err := a.resources.Posters.Generate(ctx, req)
	if err != nil {
		return err
	}

	// scripts running with --quiet still need the job id
	if printer.IsQuiet() {
		fmt.Fprintln(printer.Out(), job.JobID)
		return nil
	}
	printer.Info("Job %s queued; follow it with 'postraft-facade posters job %s'", job.JobID, job.JobID)
	return nil
}

func runPostersJob(cmd *cobra.Command, args []string) error {
	a, err := cliApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := commandContext(cmd)
	if err := a.requireSession(ctx); err != nil {
		return err
	}
	status, err := a.resources.Posters.JobStatus(ctx, args[0])
	if err != nil {
		return err
	}

	printer.Print("%s", printer.StatusBadge(domain.PosterStatus(status.Status)))
	if len(status.Result) > 0 {
		printer.Print("%s", printer.Dim(string(status.Result)))
	}
	return nil
}
