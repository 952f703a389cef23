package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/KaramelBytes/tabaudit-cli/internal/loader"
)

// Job pairs a source with its cleaning configuration.
type Job struct {
	Name     string        `yaml:"name" json:"name"`
	Source   loader.Source `yaml:"source" json:"source"`
	Preset   string        `yaml:"preset,omitempty" json:"preset,omitempty"`
	Pipeline Config        `yaml:"pipeline,omitempty" json:"pipeline"`
	// Output is the report path; Format picks md, json or yaml.
	Output string `yaml:"output,omitempty" json:"output,omitempty"`
	Format string `yaml:"format,omitempty" json:"format,omitempty"`
	// Export writes the cleaned dataset as CSV.
	Export string `yaml:"export,omitempty" json:"export,omitempty"`
}

// Label returns the job name, falling back to the source name.
func (j Job) Label() string {
	if j.Name != "" {
		return j.Name
	}
	return j.Source.Name()
}

type jobFile struct {
	Jobs []Job `yaml:"jobs"`
}

// LoadJobFile reads one job, or a `jobs:` list, from a YAML file. Relative paths inside the file
// resolve against the file's directory.
func LoadJobFile(path string) ([]Job, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read job file: %w", err)
	}
	jobs, err := decodeJobs(b)
	if err != nil {
		return nil, fmt.Errorf("parse job file %s: %w", filepath.Base(path), err)
	}
	dir := filepath.Dir(path)
	for i := range jobs {
		j := &jobs[i]
		j.Source.Path = resolve(dir, j.Source.Path)
		j.Output = resolve(dir, j.Output)
		j.Export = resolve(dir, j.Export)
		if j.Source.Kind == "" && j.Source.Path != "" {
			j.Source.Kind = loader.FileSource(j.Source.Path).Kind
		}
	}
	return jobs, nil
}

func decodeJobs(b []byte) ([]Job, error) {
	var top map[string]yaml.Node
	if err := yaml.Unmarshal(b, &top); err != nil {
		return nil, err
	}
	if len(top) == 0 {
		return nil, errors.New("empty job file")
	}
	strict := func(v any) error {
		dec := yaml.NewDecoder(bytes.NewReader(b))
		dec.KnownFields(true)
		return dec.Decode(v)
	}
	if _, ok := top["jobs"]; ok {
		var many jobFile
		if err := strict(&many); err != nil {
			return nil, err
		}
		if len(many.Jobs) == 0 {
			return nil, errors.New("jobs list is empty")
		}
		return many.Jobs, nil
	}
	var one Job
	if err := strict(&one); err != nil {
		return nil, err
	}
	return []Job{one}, nil
}

func resolve(dir, p string) string {
	if p == "" || p == ":memory:" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

// RunJob loads the job's source and runs its pipeline.
func RunJob(ctx context.Context, job Job, log *zap.Logger) (*Result, error) {
	if log == nil {
		log = zap.NewNop()
	}
	ds, err := loader.Load(ctx, job.Source, log)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig().Merge(job.Pipeline)
	return Run(ctx, job.Label(), ds, cfg, log)
}
