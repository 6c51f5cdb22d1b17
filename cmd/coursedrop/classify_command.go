package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"coursedrop/internal/failure"
	"coursedrop/internal/logging"
	"coursedrop/internal/placer"
)

type classifyOutput struct {
	Filename    string `json:"filename"`
	Year        string `json:"year,omitempty"`
	Category    string `json:"category,omitempty"`
	Destination string `json:"destination,omitempty"`
	Error       string `json:"error,omitempty"`
}

// newClassifyCommand only reads configuration; a dry run never creates the
// inbox, staging area or placement roots.
func newClassifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:         "classify <name>...",
		Short:       "Show where files would be placed without moving anything",
		Args:        cobra.MinimumNArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.loadConfig()
			if err != nil {
				return err
			}
			p := placer.New(cfg, logging.NewNop())

			outputs := make([]classifyOutput, 0, len(args))
			for _, name := range args {
				match, dest, err := p.Resolve(name)
				o := classifyOutput{Filename: name}
				if err != nil {
					o.Error = failure.UserMessage(err)
				} else {
					o.Year = string(match.Year)
					o.Category = string(match.Category)
					o.Destination = dest
				}
				outputs = append(outputs, o)
			}

			if ctx.JSONMode() {
				return writeJSON(cmd, outputs)
			}
			rows := make([][]string, 0, len(outputs))
			for _, o := range outputs {
				if o.Error != "" {
					rows = append(rows, []string{o.Filename, "-", "-", o.Error})
					continue
				}
				rows = append(rows, []string{o.Filename, o.Year, o.Category, o.Destination})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"File", "Year", "Category", "Destination"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}
}
