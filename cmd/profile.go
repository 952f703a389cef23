package cmd

import (
	"github.com/spf13/cobra"

	"github.com/KaramelBytes/tabaudit-cli/internal/analysis"
	"github.com/KaramelBytes/tabaudit-cli/internal/loader"
	"github.com/KaramelBytes/tabaudit-cli/internal/report"
)

var (
	profSource     sourceFlags
	profOutput     string
	profFormat     string
	profSampleRows int
	profTopValues  int
	profCorr       bool
	profOutliers   bool
	profOutlierThr float64
)

var profileCmd = &cobra.Command{
	Use:   "profile [file]",
	Short: "Describe a dataset: shape, column kinds, missing counts and summary statistics",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) == 1 {
			path = args[0]
		}
		src, err := profSource.source(path)
		if err != nil {
			return err
		}
		src = withSettings(src)
		ds, err := loader.Load(cmd.Context(), src, logger())
		if err != nil {
			return err
		}

		opt := analysis.DefaultOptions()
		if profSampleRows >= 0 {
			opt.SampleRows = profSampleRows
		}
		if profTopValues > 0 {
			opt.TopValues = profTopValues
		}
		opt.Correlations = profCorr
		if cmd.Flags().Changed("outliers") {
			opt.Outliers = profOutliers
		}
		if profOutlierThr > 0 {
			opt.OutlierThreshold = profOutlierThr
		}
		p := analysis.Describe(src.Name(), ds, opt)

		format := settings().OutputFormat
		if cmd.Flags().Changed("format") {
			format = profFormat
		}
		body, err := report.RenderProfile(format, p)
		if err != nil {
			return err
		}
		return emit(cmd, profOutput, body, "profile")
	},
}

func init() {
	rootCmd.AddCommand(profileCmd)
	profSource.register(profileCmd)
	f := profileCmd.Flags()
	f.StringVarP(&profOutput, "output", "o", "", "optional path to write the profile")
	f.StringVar(&profFormat, "format", "md", "profile format: md|json|yaml")
	f.IntVar(&profSampleRows, "sample-rows", 5, "number of sample rows to include")
	f.IntVar(&profTopValues, "top", 8, "most frequent values listed per text column")
	f.BoolVar(&profCorr, "correlations", false, "compute Pearson correlations among numeric columns")
	f.BoolVar(&profOutliers, "outliers", true, "compute robust outlier counts (MAD)")
	f.Float64Var(&profOutlierThr, "outlier-threshold", 3.5, "robust |z| threshold for outliers (MAD-based)")
}
