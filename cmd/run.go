package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/tabaudit-cli/internal/pipeline"
	"github.com/KaramelBytes/tabaudit-cli/internal/presets"
	"github.com/KaramelBytes/tabaudit-cli/internal/report"
)

var (
	runSource         sourceFlags
	runPreset         string
	runJobFile        string
	runFormat         string
	runOutput         string
	runExport         string
	runZ              float64
	runIQR            float64
	runRequired       []string
	runDedupeOn       []string
	runOutlierColumns []string
	runKeepDups       bool
	runSkipOutliers   bool
)

var runCmd = &cobra.Command{
	Use:   "run [file]",
	Short: "Clean a dataset and report missing values, duplicates, coercions, rule drops and outliers",
	Example: `  tabaudit run parkinsons_updrs.data --preset telemonitoring
  tabaudit run nyc.db --table service_requests_311 --preset nyc-311 -o 311.md --export 311_clean.csv
  tabaudit run --dsn postgres://localhost/nyc --preset nyc-population --format json
  tabaudit run --job jobs/violations.yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		job, err := buildRunJob(cmd, args)
		if err != nil {
			return err
		}
		if err := presets.Apply(&job); err != nil {
			return err
		}
		job.Source = withSettings(job.Source)

		res, err := pipeline.RunJob(cmd.Context(), job, logger())
		if err != nil {
			return err
		}
		format := settings().OutputFormat
		if job.Format != "" {
			format = job.Format
		}
		if cmd.Flags().Changed("format") {
			format = runFormat
		}
		body, err := report.Render(format, res)
		if err != nil {
			return err
		}
		if err := emit(cmd, job.Output, body, "report"); err != nil {
			return err
		}
		if job.Export != "" {
			return exportCSV(cmd, job.Export, res.Output)
		}
		return nil
	},
}

// buildRunJob reads the job file or assembles a job from the file argument, then layers flags on top.
func buildRunJob(cmd *cobra.Command, args []string) (pipeline.Job, error) {
	var job pipeline.Job
	if runJobFile != "" {
		if len(args) > 0 {
			return job, fmt.Errorf("pass either a file or --job, not both")
		}
		jobs, err := pipeline.LoadJobFile(runJobFile)
		if err != nil {
			return job, err
		}
		if len(jobs) != 1 {
			return job, fmt.Errorf("%s defines %d jobs; use `tabaudit batch` for multi-job files", runJobFile, len(jobs))
		}
		job = jobs[0]
		if err := runSource.apply(&job.Source); err != nil {
			return job, err
		}
	} else {
		path := ""
		if len(args) == 1 {
			path = args[0]
		}
		src, err := runSource.source(path)
		if err != nil {
			return job, err
		}
		job.Source = src
		job.Name = src.Name()
	}

	f := cmd.Flags()
	if f.Changed("preset") {
		job.Preset = runPreset
	}
	if runOutput != "" {
		job.Output = runOutput
	}
	if runExport != "" {
		job.Export = runExport
	}
	applyPipelineFlags(cmd, &job.Pipeline)
	return job, nil
}

func applyPipelineFlags(cmd *cobra.Command, c *pipeline.Config) {
	f := cmd.Flags()
	if len(runRequired) > 0 {
		c.RequiredColumns = runRequired
	}
	if len(runDedupeOn) > 0 {
		c.DuplicateColumns = runDedupeOn
	}
	if len(runOutlierColumns) > 0 {
		c.OutlierColumns = runOutlierColumns
	}
	if runKeepDups {
		c.KeepDuplicates = true
	}
	if runSkipOutliers {
		c.SkipOutliers = true
	}
	if f.Changed("z") {
		c.ZScoreThreshold = pipeline.Float(runZ)
	} else if c.ZScoreThreshold == nil {
		c.ZScoreThreshold = pipeline.Float(settings().ZThreshold)
	}
	if f.Changed("iqr") {
		c.IQRMultiplier = pipeline.Float(runIQR)
	} else if c.IQRMultiplier == nil {
		c.IQRMultiplier = pipeline.Float(settings().IQRMultiplier)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	runSource.register(runCmd)
	f := runCmd.Flags()
	f.StringVar(&runPreset, "preset", "", "built-in cleaning preset (see `tabaudit presets`)")
	f.StringVar(&runJobFile, "job", "", "YAML job file with source and pipeline settings")
	f.StringVar(&runFormat, "format", "md", "report format: md|json|yaml")
	f.StringVarP(&runOutput, "output", "o", "", "write the report to this path instead of stdout")
	f.StringVar(&runExport, "export", "", "write the cleaned dataset as CSV to this path")
	f.Float64Var(&runZ, "z", 3.0, "z-score threshold")
	f.Float64Var(&runIQR, "iqr", 1.5, "IQR fence multiplier")
	f.StringSliceVar(&runRequired, "required", nil, "drop rows missing any of these columns")
	f.StringSliceVar(&runDedupeOn, "dedupe-on", nil, "columns identifying duplicate rows (default: all)")
	f.StringSliceVar(&runOutlierColumns, "outlier-columns", nil, "numeric columns for outlier detection (default: all numeric)")
	f.BoolVar(&runKeepDups, "keep-duplicates", false, "count duplicate rows without dropping them")
	f.BoolVar(&runSkipOutliers, "skip-outliers", false, "skip the outlier stage")
}
