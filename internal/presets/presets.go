// Package presets holds the built-in cleaning configurations for the NYC open-data tables and the
// Parkinson's telemonitoring dataset.
package presets

import (
	"fmt"
	"sort"
	"strings"

	"github.com/KaramelBytes/tabaudit-cli/internal/coerce"
	"github.com/KaramelBytes/tabaudit-cli/internal/loader"
	"github.com/KaramelBytes/tabaudit-cli/internal/pipeline"
	"github.com/KaramelBytes/tabaudit-cli/internal/validate"
)

// Preset is a named pipeline configuration. Table is the default table when the source is a
// database.
type Preset struct {
	Name        string
	Description string
	Table       string
	Config      pipeline.Config
}

var names = []string{"nyc-violations", "nyc-311", "nyc-population", "telemonitoring"}

// Names returns the preset names in sorted order.
func Names() []string {
	out := append([]string(nil), names...)
	sort.Strings(out)
	return out
}

// Pipeline returns the preset registered under name.
func Pipeline(name string) (Preset, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "nyc-violations":
		// Violations are counted but not deduplicated; repeated inspections are real records.
		return Preset{
			Name:        "nyc-violations",
			Description: "NYC housing maintenance code violations",
			Table:       "housing_violations",
			Config: withDefaults(pipeline.Config{
				RequiredColumns: []string{"postcode"},
				KeepDuplicates:  true,
				Coercions: []coerce.Spec{
					{Column: "inspection_date", Target: coerce.TargetDate, Format: "%d-%m-%Y"},
					{Column: "postcode", Target: coerce.TargetText},
				},
				Rules: []validate.Rule{
					{Name: "inspection_window", Type: validate.RuleDateRange, Column: "inspection_date", MinDate: "2010-01-01", MaxDate: "2025-12-31"},
				},
				SkipOutliers: true,
			}),
		}, true
	case "nyc-311":
		return Preset{
			Name:        "nyc-311",
			Description: "NYC 311 service requests",
			Table:       "service_requests_311",
			Config: withDefaults(pipeline.Config{
				RequiredColumns: []string{"incident_zip", "latitude", "longitude", "resolution"},
				Coercions: []coerce.Spec{
					{Column: "created_date", Target: coerce.TargetDate, Format: "%d-%m-%Y %H:%M"},
					{Column: "incident_zip", Target: coerce.TargetText},
				},
				Rules: []validate.Rule{
					{
						Name:      "nyc_bounds",
						Type:      validate.RuleGeoBox,
						LatColumn: "latitude",
						LonColumn: "longitude",
						Box:       &validate.Box{MinLat: 40.4, MaxLat: 41.0, MinLon: -74.3, MaxLon: -73.6},
					},
				},
				OutlierColumns: []string{"latitude", "longitude"},
			}),
		}, true
	case "nyc-population":
		pop := []string{"population_2020", "population_2030", "population_2040"}
		specs := make([]coerce.Spec, 0, len(pop))
		for _, c := range pop {
			specs = append(specs, coerce.Spec{Column: c, Target: coerce.TargetInteger})
		}
		return Preset{
			Name:        "nyc-population",
			Description: "NYC population forecast by borough",
			Table:       "population_forecast",
			Config: withDefaults(pipeline.Config{
				Coercions: specs,
				Rules: []validate.Rule{
					{Name: "population_2020_range", Type: validate.RuleNumericRange, Column: "population_2020", Min: validate.Float(500000), Max: validate.Float(10000000)},
				},
				OutlierColumns: pop,
			}),
		}, true
	case "telemonitoring":
		return Preset{
			Name:        "telemonitoring",
			Description: "Parkinson's disease telemonitoring voice measurements",
			Config: withDefaults(pipeline.Config{
				RequiredColumns: []string{"subject#", "age", "sex", "test_time", "motor_UPDRS", "total_UPDRS"},
				Coercions: []coerce.Spec{
					{Column: "age", Target: coerce.TargetInteger},
					{Column: "motor_UPDRS", Target: coerce.TargetFloat},
					{Column: "total_UPDRS", Target: coerce.TargetFloat},
				},
				Rules: []validate.Rule{
					{Name: "age_range", Type: validate.RuleNumericRange, Column: "age", Min: validate.Float(0), Max: validate.Float(120)},
					{Name: "sex_code", Type: validate.RuleAllowed, Column: "sex", Allowed: []string{"0", "1"}},
					{Name: "motor_updrs_nonnegative", Type: validate.RuleNumericRange, Column: "motor_UPDRS", Min: validate.Float(0)},
					{Name: "total_updrs_nonnegative", Type: validate.RuleNumericRange, Column: "total_UPDRS", Min: validate.Float(0)},
				},
				OutlierColumns: []string{"motor_UPDRS", "total_UPDRS"},
			}),
		}, true
	}
	return Preset{}, false
}

func withDefaults(c pipeline.Config) pipeline.Config {
	return pipeline.DefaultConfig().Merge(c)
}

// Apply resolves job.Preset into job.Pipeline. Settings already present in the job win over the
// preset, and database sources without a table or query pick up the preset's table.
func Apply(job *pipeline.Job) error {
	if job.Preset == "" {
		return nil
	}
	p, ok := Pipeline(job.Preset)
	if !ok {
		return fmt.Errorf("unknown preset %q (available: %s)", job.Preset, strings.Join(Names(), ", "))
	}
	job.Pipeline = p.Config.Merge(job.Pipeline)
	switch job.Source.Kind {
	case loader.SourcePostgres, loader.SourceSQLite:
		if job.Source.Table == "" && job.Source.Query == "" {
			job.Source.Table = p.Table
		}
	}
	return nil
}

// ApplyAll resolves the preset of every job.
func ApplyAll(jobs []pipeline.Job) error {
	for i := range jobs {
		if err := Apply(&jobs[i]); err != nil {
			return fmt.Errorf("job %s: %w", jobs[i].Label(), err)
		}
	}
	return nil
}
