package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"shopping-assistant-pipeline/internal/models"
	"shopping-assistant-pipeline/internal/scoring"
)

var (
	flagMaxPrice     float64
	flagRequirements string
	flagSort         string
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Run one query through the pipeline and print the result as JSON",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().Float64Var(&flagMaxPrice, "max-price", 0, "maximum price in euros (0 means no limit)")
	searchCmd.Flags().StringVar(&flagRequirements, "requirements", "", "additional requirements, e.g. \"16GB RAM, gaming\"")
	searchCmd.Flags().StringVar(&flagSort, "sort", scoring.SortRelevance, "result order: relevance, price_asc or price_desc")
}

func runSearch(cmd *cobra.Command, args []string) error {
	switch flagSort {
	case scoring.SortRelevance, scoring.SortPriceAsc, scoring.SortPriceDesc:
	default:
		return fmt.Errorf("invalid --sort %q", flagSort)
	}
	if flagMaxPrice < 0 {
		return fmt.Errorf("--max-price must not be negative")
	}

	cfg, log, err := loadConfigAndLogger(true)
	if err != nil {
		return err
	}

	application, err := newApp(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialise services: %w", err)
	}
	defer application.Close()

	req := models.SearchRequest{
		Query:                  strings.Join(args, " "),
		AdditionalRequirements: flagRequirements,
		Sort:                   flagSort,
	}
	if flagMaxPrice > 0 {
		maxPrice := flagMaxPrice
		req.MaxPrice = &maxPrice
	}

	state := application.orchestrator.Process(cmd.Context(), req)

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)
	return encoder.Encode(state)
}
