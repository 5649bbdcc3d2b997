package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Ashish-dwi99/FadeMem/internal/engine"
)

var (
	flagOwner    string
	addDepth     string
	addCategory  string
	searchLimit  int
	searchMinStr float64
	searchCat    string
)

func init() {
	addCmd.Flags().StringVarP(&flagOwner, "owner", "o", "default", "Owner the memory belongs to")
	addCmd.Flags().StringVarP(&addDepth, "depth", "d", "", "Force echo depth: shallow, medium, or deep")
	addCmd.Flags().StringVarP(&addCategory, "category", "c", "", "Category name for a newly created category")

	searchCmd.Flags().StringVarP(&flagOwner, "owner", "o", "default", "Owner to search")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "Maximum number of results")
	searchCmd.Flags().Float64Var(&searchMinStr, "min-strength", 0, "Minimum strength (0 uses the default)")
	searchCmd.Flags().StringVarP(&searchCat, "category", "c", "", "Filter by category id")
}

var addCmd = &cobra.Command{
	Use:   "add [content]",
	Short: "Add a memory",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAdd,
}

func runAdd(cmd *cobra.Command, args []string) error {
	rt, cleanup, err := buildRuntime()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	res, err := rt.eng.Add(ctx, flagOwner, strings.Join(args, " "), engine.AddOptions{
		Depth:    addDepth,
		Category: addCategory,
	})
	if err != nil {
		return fmt.Errorf("add: %w", err)
	}

	if res.Discarded {
		fmt.Printf("already covered by %s (%s)\n", res.Record.ID, res.Record.Content)
		return nil
	}
	fmt.Printf("added %s [%s, strength %.2f]\n", res.Record.ID, res.Record.Depth, res.Record.Strength)
	if res.SupersededID != "" {
		fmt.Printf("  superseded %s (%s)\n", res.SupersededID, res.Relation)
	}
	return nil
}

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search memories",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

func runSearch(cmd *cobra.Command, args []string) error {
	rt, cleanup, err := buildRuntime()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	results, err := rt.eng.Search(ctx, flagOwner, strings.Join(args, " "), engine.SearchOptions{
		Limit:       searchLimit,
		CategoryID:  searchCat,
		MinStrength: searchMinStr,
	})
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	if len(results) == 0 {
		fmt.Println("No results found.")
		return nil
	}
	for i, r := range results {
		fmt.Printf("%d. [%.3f] %s\n", i+1, r.Score, r.Record.Content)
		fmt.Printf("   %s/%s strength %.2f, accessed %d times\n",
			r.Record.Layer, r.Record.Depth, r.Record.Strength, r.Record.AccessCount)
	}
	return nil
}
