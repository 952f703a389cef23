package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/KaramelBytes/tabaudit-cli/internal/presets"
)

var presetsShow string

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "List built-in cleaning presets",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if presetsShow != "" {
			p, ok := presets.Pipeline(presetsShow)
			if !ok {
				return fmt.Errorf("unknown preset %q (available: %s)", presetsShow, strings.Join(presets.Names(), ", "))
			}
			b, err := yaml.Marshal(p.Config)
			if err != nil {
				return fmt.Errorf("marshal yaml: %w", err)
			}
			fmt.Fprintf(out, "# %s: %s\n", p.Name, p.Description)
			_, err = out.Write(b)
			return err
		}
		for _, name := range presets.Names() {
			p, _ := presets.Pipeline(name)
			table := p.Table
			if table == "" {
				table = "-"
			}
			fmt.Fprintf(out, "%-16s %-22s %s\n", p.Name, table, p.Description)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(presetsCmd)
	presetsCmd.Flags().StringVar(&presetsShow, "show", "", "print the pipeline configuration of one preset as YAML")
}
