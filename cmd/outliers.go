package cmd

import (
	"github.com/spf13/cobra"

	"github.com/KaramelBytes/tabaudit-cli/internal/loader"
	"github.com/KaramelBytes/tabaudit-cli/internal/outlier"
	"github.com/KaramelBytes/tabaudit-cli/internal/report"
)

var (
	outSource  sourceFlags
	outColumns []string
	outZ       float64
	outIQR     float64
	outFormat  string
	outOutput  string
)

var outliersCmd = &cobra.Command{
	Use:   "outliers [file]",
	Short: "Report z-score and IQR outliers side by side without cleaning",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) == 1 {
			path = args[0]
		}
		src, err := outSource.source(path)
		if err != nil {
			return err
		}
		src = withSettings(src)
		ds, err := loader.Load(cmd.Context(), src, logger())
		if err != nil {
			return err
		}

		opt := outlier.Options{
			Columns:       outColumns,
			ZThreshold:    settings().ZThreshold,
			IQRMultiplier: settings().IQRMultiplier,
		}
		if cmd.Flags().Changed("z") {
			opt.ZThreshold = outZ
		}
		if cmd.Flags().Changed("iqr") {
			opt.IQRMultiplier = outIQR
		}
		rep, err := outlier.Detect(ds, opt)
		if err != nil {
			return err
		}

		format := settings().OutputFormat
		if cmd.Flags().Changed("format") {
			format = outFormat
		}
		body, err := report.RenderOutliers(format, src.Name(), rep)
		if err != nil {
			return err
		}
		return emit(cmd, outOutput, body, "outlier report")
	},
}

func init() {
	rootCmd.AddCommand(outliersCmd)
	outSource.register(outliersCmd)
	f := outliersCmd.Flags()
	f.StringSliceVar(&outColumns, "columns", nil, "numeric columns to analyze (default: all numeric)")
	f.Float64Var(&outZ, "z", 3.0, "z-score threshold (overrides config)")
	f.Float64Var(&outIQR, "iqr", 1.5, "IQR fence multiplier (overrides config)")
	f.StringVar(&outFormat, "format", "md", "report format: md|json|yaml")
	f.StringVarP(&outOutput, "output", "o", "", "optional path to write the report")
}
