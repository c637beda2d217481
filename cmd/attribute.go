package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/crimemap/internal/pipeline"
)

var attributeYear int

var attributeCmd = &cobra.Command{
	Use:   "attribute",
	Short: "Build one year's snapshot and print per-region bucket counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		if attributeYear == 0 {
			return eris.New("--year is required")
		}

		env, err := initEnv(cmd.Context(), "attribute")
		if err != nil {
			return err
		}
		defer env.Close()

		// When a store is configured the pipeline persists the snapshot,
		// so a later serve run restores it instead of re-attributing.
		snap, err := env.Pipeline.Year(cmd.Context(), attributeYear)
		if err != nil {
			return err
		}

		fmt.Printf("Year %d: %d incidents (%d skipped), %d categories\n",
			snap.Year, len(snap.Incidents), snap.Skipped, len(snap.Categories))
		for _, s := range pipeline.Summarize(snap) {
			fmt.Printf("  %-40s %6d", s.Region, s.Total)
			for b, n := range s.Counts {
				fmt.Printf("  %s=%d", b, n)
			}
			fmt.Println()
		}

		return nil
	},
}

func init() {
	attributeCmd.Flags().IntVar(&attributeYear, "year", 0, "incident year to process")
	rootCmd.AddCommand(attributeCmd)
}
