package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/KaramelBytes/tabaudit-cli/internal/pipeline"
	"github.com/KaramelBytes/tabaudit-cli/internal/presets"
	"github.com/KaramelBytes/tabaudit-cli/internal/report"
	"github.com/KaramelBytes/tabaudit-cli/internal/utils"
)

var (
	batchWorkers int
	batchOutDir  string
	batchFormat  string
	batchQuiet   bool
)

var batchCmd = &cobra.Command{
	Use:   "batch <job.yaml...>",
	Short: "Run every job from one or more job files concurrently, one report per job",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var files []string
		seen := map[string]struct{}{}
		for _, arg := range args {
			matches, _ := filepath.Glob(arg)
			if len(matches) == 0 {
				// treat as literal path if exists
				if _, err := os.Stat(arg); err == nil {
					matches = []string{arg}
				}
			}
			for _, m := range matches {
				if _, ok := seen[m]; ok {
					continue
				}
				seen[m] = struct{}{}
				files = append(files, m)
			}
		}
		if len(files) == 0 {
			return fmt.Errorf("no job files matched")
		}
		sort.Strings(files)

		var jobs []pipeline.Job
		for _, path := range files {
			js, err := pipeline.LoadJobFile(path)
			if err != nil {
				return err
			}
			jobs = append(jobs, js...)
		}
		if err := presets.ApplyAll(jobs); err != nil {
			return err
		}
		for i := range jobs {
			jobs[i].Source = withSettings(jobs[i].Source)
			applyBatchDefaults(&jobs[i].Pipeline)
		}

		workers := settings().Workers
		if cmd.Flags().Changed("workers") {
			workers = batchWorkers
		}
		out := cmd.OutOrStdout()
		if !batchQuiet {
			fmt.Fprintf(out, "Running %d jobs with %d workers...\n", len(jobs), workers)
		}
		results := pipeline.RunBatch(cmd.Context(), jobs, workers, logger())

		used := map[string]int{}
		for i, br := range results {
			label := br.Job.Label()
			if br.Err != nil {
				fmt.Fprintf(out, "[%d/%d] ✗ %s: %v\n", i+1, len(results), label, br.Err)
				continue
			}
			path, format := batchTarget(br.Job, used)
			body, err := report.Render(format, br.Result)
			if err != nil {
				return err
			}
			if err := utils.SafeWriteFile(path, body); err != nil {
				return fmt.Errorf("write report for %s: %w", label, err)
			}
			if br.Job.Export != "" {
				if err := exportCSV(cmd, br.Job.Export, br.Result.Output); err != nil {
					return err
				}
			}
			if !batchQuiet {
				fmt.Fprintf(out, "[%d/%d] ✓ %s: %d → %d rows (%s) → %s\n",
					i+1, len(results), label, br.Result.RowsIn, br.Result.RowsOut, br.Took.Round(time.Millisecond), path)
			}
		}
		if n := pipeline.Failed(results); n > 0 {
			logger().Warn("batch finished with failures", zap.Int("failed", n), zap.Int("jobs", len(results)))
			return fmt.Errorf("%d of %d jobs failed", n, len(results))
		}
		return nil
	},
}

func applyBatchDefaults(c *pipeline.Config) {
	s := settings()
	if c.ZScoreThreshold == nil {
		c.ZScoreThreshold = pipeline.Float(s.ZThreshold)
	}
	if c.IQRMultiplier == nil {
		c.IQRMultiplier = pipeline.Float(s.IQRMultiplier)
	}
}

// batchTarget picks the report path and format for a job. Jobs without an output path write
// <out-dir>/<slug>.<ext>, with a numeric suffix when two jobs share a name.
func batchTarget(job pipeline.Job, used map[string]int) (string, string) {
	format := settings().OutputFormat
	if job.Format != "" {
		format = job.Format
	}
	if batchFormat != "" {
		format = batchFormat
	}
	if job.Output != "" {
		return job.Output, format
	}
	f, err := report.ParseFormat(format)
	if err != nil {
		f = report.FormatMarkdown
	}
	stem := utils.Slug(job.Label())
	used[stem]++
	if n := used[stem]; n > 1 {
		stem = fmt.Sprintf("%s__%d", stem, n)
	}
	return filepath.Join(batchOutDir, stem+f.Ext()), string(f)
}

func init() {
	rootCmd.AddCommand(batchCmd)
	batchCmd.Flags().IntVar(&batchWorkers, "workers", 4, "maximum jobs running at once (overrides config)")
	batchCmd.Flags().StringVar(&batchOutDir, "out-dir", "reports", "directory for reports of jobs without an output path")
	batchCmd.Flags().StringVar(&batchFormat, "format", "", "report format for every job: md|json|yaml")
	batchCmd.Flags().BoolVar(&batchQuiet, "quiet", false, "suppress progress output")
}
