package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"coursedrop/internal/history"
	"coursedrop/internal/receiver"
)

type placeOutput struct {
	Source      string `json:"source"`
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	Destination string `json:"destination,omitempty"`
	RequestID   string `json:"request_id"`
}

func newPlaceCommand(ctx *commandContext) *cobra.Command {
	var removeSource bool

	cmd := &cobra.Command{
		Use:   "place <file>...",
		Short: "Place local files as if they had been uploaded",
		Long: `Run local files through the same staging and placement pipeline the
upload server uses. Each file is copied into staging, classified by its name,
and moved into <root>/<year>/. Outcomes are recorded in the upload history.

The source file is left untouched unless --remove-source is set.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.commandLogger(cfg)
			if err != nil {
				return err
			}
			return ctx.withHistory(func(store *history.Store) error {
				recv, err := receiver.NewFromConfig(cfg, store, logger)
				if err != nil {
					return err
				}

				outputs := make([]placeOutput, 0, len(args))
				failed := 0
				for _, source := range args {
					result := recv.ReceiveFile(cmd.Context(), source)
					if result.Success() && removeSource {
						if err := os.Remove(source); err != nil {
							fmt.Fprintf(cmd.ErrOrStderr(), "warning: remove %s: %v\n", source, err)
						}
					}
					if !result.Success() {
						failed++
					}
					outputs = append(outputs, placeOutput{
						Source:      source,
						Success:     result.Success(),
						Message:     result.Message(),
						Destination: result.Destination,
						RequestID:   result.RequestID,
					})
				}

				if ctx.JSONMode() {
					if err := writeJSON(cmd, outputs); err != nil {
						return err
					}
				} else {
					out := cmd.OutOrStdout()
					for _, o := range outputs {
						fmt.Fprintf(out, "%s: %s\n", o.Source, o.Message)
					}
				}
				if failed > 0 {
					return fmt.Errorf("%d of %d files could not be placed", failed, len(args))
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&removeSource, "remove-source", false, "Delete each source file after it is placed")
	return cmd
}
