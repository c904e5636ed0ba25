package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/cv-screener/internal/taxonomy"
)

var taxonomyCmd = &cobra.Command{
	Use:   "taxonomy",
	Short: "Print the loaded taxonomy version and table sizes",
	Run: func(cmd *cobra.Command, _ []string) {
		printTaxonomy(cmd)
	},
}

func init() {
	rootCmd.AddCommand(taxonomyCmd)

	taxonomyCmd.Flags().Bool("dump", false, "print the full tables as json")
}

func printTaxonomy(cmd *cobra.Command) {
	logger := newLogger("")

	tax, err := taxonomy.Load(viper.GetString("taxonomy"))
	if err != nil {
		logger.Fatal("loading taxonomy", zap.Error(err))
	}

	if dump, _ := cmd.Flags().GetBool("dump"); dump {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(tax.Tables()); err != nil {
			logger.Fatal("encoding taxonomy", zap.Error(err))
		}
		return
	}

	fmt.Printf("source: %s\nversion: %s\n\n", tax.Source, tax.Version)

	perTier := make(map[int]int)
	for _, k := range tax.Keywords {
		perTier[k.Level]++
	}
	for _, tier := range tax.Tiers() {
		fmt.Printf("tier %d %-14s %-15s score %3.0f  keywords %d\n", tier.Level, tier.Label, tier.Tag, tier.Score, perTier[tier.Level])
	}

	edu := tax.Education
	fmt.Printf("\nschool tiers: %d, degree levels: %d, major tiers: %d, thesis categories: %d\n",
		len(edu.Schools), len(edu.Degrees), len(edu.Majors), len(edu.ThesisCategories))
	fmt.Printf("skill ecosystems: %d, framework families: %d\n", len(tax.Skills.Ecosystems), len(tax.Skills.Families))
	fmt.Printf("engineering maturity cap: %.2f\n", tax.Engineering.Cap)
}
