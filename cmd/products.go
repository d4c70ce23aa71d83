package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"postraft-facade/internal/domain"
	"postraft-facade/internal/resource"
)

var productsCmd = &cobra.Command{
	Use:     "products",
	Aliases: []string{"product"},
	Short:   "List and manage products",
	Long: `List products, or manage one with a subcommand.

Examples:
  postraft-facade products                       # First page of products
  postraft-facade products --category kitchen    # Filter by category
  postraft-facade products --json                # Output as JSON
  postraft-facade products create --name Mug --price 12.5
  postraft-facade products delete 42`,
	Args: cobra.NoArgs,
	RunE: runProductsList,
}

var productsCategoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "List product categories",
	Args:  cobra.NoArgs,
	RunE:  runProductsCategories,
}

var productsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a product",
	Args:  cobra.NoArgs,
	RunE:  runProductsCreate,
}

var productsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a product",
	Args:  cobra.ExactArgs(1),
	RunE:  runProductsDelete,
}

var productsUploadCmd = &cobra.Command{
	Use:   "upload <id> <image>",
	Short: "Attach an image to a product",
	Args:  cobra.ExactArgs(2),
	RunE:  runProductsUpload,
}

func init() {
	rootCmd.AddCommand(productsCmd)
	productsCmd.AddCommand(productsCategoriesCmd, productsCreateCmd, productsDeleteCmd, productsUploadCmd)

	productsCmd.Flags().String("category", "", "only products in this category")
	productsCmd.Flags().String("search", "", "search by name or SKU")
	productsCmd.Flags().Int("page", 1, "page number")
	productsCmd.Flags().Int("per-page", 0, "page size (API default when 0)")
	productsCmd.Flags().Bool("json", false, "output as JSON")

	productsCreateCmd.Flags().String("name", "", "product name")
	productsCreateCmd.Flags().Float64("price", 0, "product price")
	productsCreateCmd.Flags().String("category", "", "product category")
	productsCreateCmd.Flags().String("sku", "", "stock keeping unit")
	productsCreateCmd.Flags().String("description", "", "product description")
}

func runProductsList(cmd *cobra.Command, args []string) error {
	var f resource.ProductFilter
	f.Category, _ = cmd.Flags().GetString("category")
	f.Search, _ = cmd.Flags().GetString("search")
	f.Page, _ = cmd.Flags().GetInt("page")
	f.PerPage, _ = cmd.Flags().GetInt("per-page")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	a, err := cliApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := commandContext(cmd)
	if err := a.requireSession(ctx); err != nil {
		return err
	}
	page, err := a.resources.Products.List(ctx, f)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(printer.Out())
		enc.SetIndent("", "  ")
		return enc.Encode(page)
	}

	printer.Header("Products")
	table := printer.NewTable([]string{"ID", "NAME", "PRICE", "CATEGORY", "SKU"})
	for _, p := range page.Products {
		table.AddRow(
			strconv.FormatInt(p.ID, 10),
			printer.Bold(p.Name),
			strconv.FormatFloat(p.Price, 'f', 2, 64),
			p.Category,
			p.SKU,
		)
	}
	if err := table.Render(); err != nil {
		return err
	}
	printer.Print("%s", printer.Dim("page "+strconv.Itoa(page.Page)+" of "+strconv.Itoa(page.Pages)+", "+strconv.Itoa(page.Total)+" products"))
	return nil
}

func runProductsCategories(cmd *cobra.Command, args []string) error {
	a, err := cliApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := commandContext(cmd)
	if err := a.requireSession(ctx); err != nil {
		return err
	}
	categories, err := a.resources.Products.Categories(ctx)
	if err != nil {
		return err
	}
	for _, c := range categories {
		printer.Print("%s", c)
	}
	return nil
}

func runProductsCreate(cmd *cobra.Command, args []string) error {
	var in domain.ProductInput
	in.Name, _ = cmd.Flags().GetString("name")
	in.Price, _ = cmd.Flags().GetFloat64("price")
	in.Category, _ = cmd.Flags().GetString("category")
	in.SKU, _ = cmd.Flags().GetString("sku")
	in.Description, _ = cmd.Flags().GetString("description")

	a, err := cliApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := commandContext(cmd)
	if err := a.requireSession(ctx); err != nil {
		return err
	}
	product, err := a.resources.Products.Create(ctx, in)
	if err != nil {
		return err
	}
	printer.Print("%d", product.ID)
	return nil
}

func runProductsDelete(cmd *cobra.Command, args []string) error {
	productID, err := parseID(args[0])
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
	return a.resources.Products.Delete(ctx, productID)
}

func runProductsUpload(cmd *cobra.Command, args []string) error {
	productID, err := parseID(args[0])
	if err != nil {
		return err
	}
	f, err := os.Open(args[1])
	if err != nil {
		return usageError("cannot open image: %v", err)
	}
	defer f.Close()

	a, err := cliApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := commandContext(cmd)
	if err := a.requireSession(ctx); err != nil {
		return err
	}
	uploaded, err := a.resources.Products.UploadImage(ctx, productID, filepath.Base(args[1]), f)
	if err != nil {
		return err
	}
	printer.Print("%s", uploaded.ImageURL)
	return nil
}

func parseID(raw string) (int64, error) {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 {
		return 0, usageError("invalid id %q", raw)
	}
	return n, nil
}
