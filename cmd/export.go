package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/crimemap/internal/export"
	"github.com/sells-group/crimemap/internal/pipeline"
)

var (
	exportYear int
	exportOut  string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export one year's snapshot as an XLSX workbook",
	RunE: func(cmd *cobra.Command, args []string) error {
		if exportYear == 0 {
			return eris.New("--year is required")
		}

		env, err := initEnv(cmd.Context(), "export")
		if err != nil {
			return err
		}
		defer env.Close()

		snap, err := env.Pipeline.Year(cmd.Context(), exportYear)
		if err != nil {
			return err
		}

		out := exportOut
		if out == "" {
			out = export.Filename(exportYear)
		}
		if err := export.WriteFile(out, snap, pipeline.Summarize(snap)); err != nil {
			return err
		}

		zap.L().Info("workbook written",
			zap.Int("year", exportYear),
			zap.Int("incidents", len(snap.Incidents)),
			zap.String("path", out),
		)
		return nil
	},
}

func init() {
	exportCmd.Flags().IntVar(&exportYear, "year", 0, "incident year to export")
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output path (default crime-summary-<year>.xlsx)")
	rootCmd.AddCommand(exportCmd)
}
