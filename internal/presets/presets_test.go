package presets

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/tabaudit-cli/internal/loader"
	"github.com/KaramelBytes/tabaudit-cli/internal/pipeline"
)

func TestCatalogIsValid(t *testing.T) {
	require.Equal(t, []string{"nyc-311", "nyc-population", "nyc-violations", "telemonitoring"}, Names())
	for _, name := range Names() {
		p, ok := Pipeline(name)
		require.True(t, ok, name)
		assert.Equal(t, name, p.Name)
		assert.NotEmpty(t, p.Description)
		assert.NoError(t, p.Config.Validate(), name)
		require.NotNil(t, p.Config.ZScoreThreshold, name)
		assert.Greater(t, p.Config.ZScore(), 0.0, name)
	}
	_, ok := Pipeline("nyc-taxi")
	assert.False(t, ok)
	p, ok := Pipeline(" NYC-311 ")
	assert.True(t, ok)
	assert.Equal(t, "service_requests_311", p.Table)
}

func TestViolationsKeepDuplicates(t *testing.T) {
	p, _ := Pipeline("nyc-violations")
	assert.True(t, p.Config.KeepDuplicates)
	assert.True(t, p.Config.SkipOutliers)
}

func TestApply(t *testing.T) {
	job := pipeline.Job{
		Source: loader.Source{Kind: loader.SourceSQLite, Path: "nyc.db"},
		Preset: "nyc-population",
		Pipeline: pipeline.Config{
			ZScoreThreshold: pipeline.Float(2.5),
		},
	}
	require.NoError(t, Apply(&job))
	assert.Equal(t, "population_forecast", job.Source.Table)
	assert.Equal(t, 2.5, job.Pipeline.ZScore())
	assert.Len(t, job.Pipeline.Coercions, 3)
	assert.Equal(t, []string{"population_2020", "population_2030", "population_2040"}, job.Pipeline.OutlierColumns)

	withQuery := pipeline.Job{Source: loader.Source{Kind: loader.SourcePostgres, Query: "SELECT 1"}, Preset: "nyc-311"}
	require.NoError(t, Apply(&withQuery))
	assert.Empty(t, withQuery.Source.Table)

	bad := []pipeline.Job{{Name: "x", Preset: "missing"}}
	err := ApplyAll(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "job x")
	assert.Contains(t, err.Error(), "telemonitoring")
}

const updrs = `subject#,age,sex,test_time,motor_UPDRS,total_UPDRS,Jitter(%)
1,72,0,5.6431,28.199,34.398,0.00662
1,72,0,12.666,28.447,34.894,0.003
2,58,1,19.681,20.1,25.5,0.00481
3,140,1,25.647,21.3,30.2,0.00528
4,61,2,33.642,18.9,22.7,0.00335
5,66,1,40.652,-1,27.1,0.00353
6,,0,47.649,17.5,21.0,0.00422
`

func TestTelemonitoringPreset(t *testing.T) {
	ds, err := loader.ReadCSV(strings.NewReader(updrs), loader.CSVOptions{})
	require.NoError(t, err)
	p, _ := Pipeline("telemonitoring")

	res, err := pipeline.Run(context.Background(), "updrs", ds, p.Config, nil)
	require.NoError(t, err)
	assert.Equal(t, 7, res.RowsIn)
	assert.Equal(t, 1, res.Quality.MissingDropped)
	assert.Equal(t, 0, res.Quality.DuplicateCount)
	assert.Equal(t, 3, res.Validation.Dropped(), "age 140, sex 2 and a negative score")
	assert.Equal(t, 3, res.RowsOut)

	require.NotNil(t, res.Outliers)
	_, ok := res.Outliers.Column("motor_UPDRS")
	assert.True(t, ok)
	_, ok = res.Outliers.Column("Jitter(%)")
	assert.False(t, ok)
}
