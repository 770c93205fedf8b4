package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"formlo/internal/app"
	"formlo/internal/client"
)

func newJobCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "job <id>",
		Short: "Show the current state of a conversion job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(a *app.App) error {
				id := strings.TrimSpace(args[0])
				job, err := a.Client.Job(cmd.Context(), id)
				if err != nil {
					if client.IsNotFound(err) {
						return fmt.Errorf("job %s not found", id)
					}
					return fmt.Errorf("fetch job: %w", err)
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd.OutOrStdout(), job)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Job:      %s\n", job.ID)
				fmt.Fprintf(out, "File:     %s\n", job.Filename)
				fmt.Fprintf(out, "Status:   %s\n", job.Status)
				fmt.Fprintf(out, "Progress: %d%%\n", job.Progress)
				if job.ErrorMessage != "" {
					fmt.Fprintf(out, "Error:    %s\n", job.ErrorMessage)
				}
				if job.FormID != "" {
					fmt.Fprintf(out, "Form ID:  %s\n", job.FormID)
				}
				return nil
			})
		},
	}
}
