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
	catSummaries bool
	catMembers   string
	catLimit     int
)

func init() {
	decayCmd.Flags().StringVarP(&flagOwner, "owner", "o", "", "Owner to sweep (default: all owners)")
	fuseCmd.Flags().StringVarP(&flagOwner, "owner", "o", "", "Owner to fuse (default: all owners)")
	statsCmd.Flags().StringVarP(&flagOwner, "owner", "o", "default", "Owner to report on")
	categoriesCmd.Flags().StringVarP(&flagOwner, "owner", "o", "default", "Owner whose hierarchy to show")
	categoriesCmd.Flags().BoolVar(&catSummaries, "summaries", false, "Print every category with its summary")
	categoriesCmd.Flags().StringVar(&catMembers, "members", "", "List the memories of the given category id")
	categoriesCmd.Flags().IntVar(&catLimit, "limit", 10, "Maximum memories to list with --members")
}

func sweepOwners(rt *runtime) ([]string, error) {
	if flagOwner != "" {
		return []string{flagOwner}, nil
	}
	return rt.db.ListOwners()
}

var decayCmd = &cobra.Command{
	Use:   "decay",
	Short: "Run a decay sweep",
	Long:  "Age memory strengths, promote frequently used memories, forget weak ones, and maintain the category hierarchy.",
	RunE:  runDecay,
}

func runDecay(cmd *cobra.Command, args []string) error {
	rt, cleanup, err := buildRuntime()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	owners, err := sweepOwners(rt)
	if err != nil {
		return err
	}
	for _, owner := range owners {
		report, err := rt.eng.ApplyDecay(ctx, owner)
		if err != nil {
			return fmt.Errorf("decay %s: %w", owner, err)
		}
		cats, err := rt.eng.ApplyCategoryMaintenance(ctx, owner)
		if err != nil {
			return fmt.Errorf("category maintenance %s: %w", owner, err)
		}
		fmt.Printf("%s: %d processed, %d promoted, %d forgotten; categories: %d merged, %d deleted\n",
			owner, report.Processed, report.Promoted, report.Forgotten, cats.Merged, cats.Deleted)
	}
	return nil
}

var fuseCmd = &cobra.Command{
	Use:   "fuse",
	Short: "Merge clusters of near-duplicate memories",
	RunE:  runFuse,
}

func runFuse(cmd *cobra.Command, args []string) error {
	rt, cleanup, err := buildRuntime()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	owners, err := sweepOwners(rt)
	if err != nil {
		return err
	}
	for _, owner := range owners {
		report, err := rt.eng.RunFusion(ctx, owner)
		if err != nil {
			return fmt.Errorf("fuse %s: %w", owner, err)
		}
		fmt.Printf("%s: %d clusters, %d memories fused, %d skipped\n",
			owner, report.Clusters, report.Fused, report.Skipped)
	}
	return nil
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show memory statistics for an owner",
	RunE:  runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	rt, cleanup, err := buildRuntime()
	if err != nil {
		return err
	}
	defer cleanup()

	stats, err := rt.eng.Stats(flagOwner)
	if err != nil {
		return fmt.Errorf("stats: %w", err)
	}

	fmt.Printf("owner %s\n", flagOwner)
	fmt.Printf("  total:        %d (%d active)\n", stats.Total, stats.Active)
	fmt.Printf("  layers:       %d sml, %d lml\n", stats.SMLCount, stats.LMLCount)
	fmt.Printf("  avg strength: %.3f\n", stats.AvgStrength)
	for _, depth := range []string{"shallow", "medium", "deep"} {
		if n := stats.DepthCounts[depth]; n > 0 {
			fmt.Printf("  %-8s %d\n", depth+":", n)
		}
	}
	return nil
}

var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "Show the category hierarchy for an owner",
	RunE:  runCategories,
}

func runCategories(cmd *cobra.Command, args []string) error {
	rt, cleanup, err := buildRuntime()
	if err != nil {
		return err
	}
	defer cleanup()

	if catMembers != "" {
		recs, err := rt.eng.SearchByCategory(catMembers, catLimit)
		if err != nil {
			return fmt.Errorf("category members: %w", err)
		}
		if len(recs) == 0 {
			fmt.Println("No memories in this category.")
			return nil
		}
		for i, r := range recs {
			fmt.Printf("%d. %s\n", i+1, r.Content)
			fmt.Printf("   %s/%s strength %.2f, accessed %d times\n",
				r.Layer, r.Depth, r.Strength, r.AccessCount)
		}
		return nil
	}

	if catSummaries {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		summaries, err := rt.eng.AllSummaries(ctx, flagOwner)
		if err != nil {
			return fmt.Errorf("category summaries: %w", err)
		}
		if len(summaries) == 0 {
			fmt.Println("No categories yet.")
			return nil
		}
		for _, s := range summaries {
			fmt.Printf("%s (%s)\n", s.Name, s.CategoryID)
			if s.Summary != "" {
				fmt.Printf("  %s\n", s.Summary)
			}
		}
		return nil
	}

	tree, err := rt.eng.CategoryTree(flagOwner)
	if err != nil {
		return fmt.Errorf("categories: %w", err)
	}
	if len(tree) == 0 {
		fmt.Println("No categories yet.")
		return nil
	}
	printTree(tree, 0)
	return nil
}

func printTree(nodes []*engine.TreeNode, indent int) {
	for _, n := range nodes {
		fmt.Printf("%s%s (%d members, strength %.2f)\n",
			strings.Repeat("  ", indent), n.Name, n.MemberCount, n.Strength)
		if n.Summary != "" {
			fmt.Printf("%s  %s\n", strings.Repeat("  ", indent), n.Summary)
		}
		printTree(n.Children, indent+1)
	}
}
