package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"formlo/internal/api"
	"formlo/internal/app"
	"formlo/internal/forms"
	"formlo/internal/session"
)

func newFormsCommand(ctx *commandContext) *cobra.Command {
	formsCmd := &cobra.Command{
		Use:   "forms",
		Short: "Manage the form collection",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFormsList(ctx, cmd)
		},
	}

	formsCmd.AddCommand(newFormsListCommand(ctx))
	formsCmd.AddCommand(newFormsDeleteCommand(ctx))
	formsCmd.AddCommand(newFormsOpenCommand(ctx))

	return formsCmd
}

func newFormsListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List converted forms, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFormsList(ctx, cmd)
		},
	}
}

func runFormsList(ctx *commandContext, cmd *cobra.Command) error {
	return ctx.withApp(func(a *app.App) error {
		if a.Startup(cmd.Context()) != session.StateAuthenticated {
			return fmt.Errorf("not signed in; run `formlo login`")
		}

		records := a.Forms.List()
		stale := false
		if err := a.Forms.Refresh(cmd.Context()); err != nil {
			stale = len(records) > 0
			if !stale {
				return fmt.Errorf("fetch forms: %w", err)
			}
		} else {
			records = a.Forms.List()
		}

		if ctx.jsonOutput() {
			return writeJSON(cmd.OutOrStdout(), records)
		}

		out := cmd.OutOrStdout()
		if stale {
			fmt.Fprintln(out, "Backend unreachable; showing the last known collection.")
		}
		if len(records) == 0 {
			fmt.Fprintln(out, "No forms yet. Convert a document with `formlo upload <file>`.")
			return nil
		}
		fmt.Fprintln(out, formsTable(records))
		return nil
	})
}

func newFormsDeleteCommand(ctx *commandContext) *cobra.Command {
	var assumeYes bool

	cmd := &cobra.Command{
		Use:   "delete <form-id>",
		Short: "Delete a form from the collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(a *app.App) error {
				if a.Startup(cmd.Context()) != session.StateAuthenticated {
					return fmt.Errorf("not signed in; run `formlo login`")
				}
				if err := a.Forms.Refresh(cmd.Context()); err != nil {
					return fmt.Errorf("fetch forms: %w", err)
				}

				formID := strings.TrimSpace(args[0])
				confirm := func(record api.FormRecord) bool {
					if assumeYes {
						return true
					}
					return promptYesNo(cmd, fmt.Sprintf("Delete %q (%s)? [y/N] ", displayTitle(record), record.FormID))
				}

				err := a.Forms.Delete(cmd.Context(), formID, confirm)
				switch {
				case errors.Is(err, forms.ErrDeleteDeclined):
					fmt.Fprintln(cmd.OutOrStdout(), "Aborted")
					return nil
				case errors.Is(err, forms.ErrUnknownForm):
					return fmt.Errorf("form %s not found", formID)
				case err != nil:
					return fmt.Errorf("delete form: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted form %s\n", formID)
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

func newFormsOpenCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "open <form-id>",
		Short: "Open a form in the browser",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(a *app.App) error {
				if a.Startup(cmd.Context()) != session.StateAuthenticated {
					return fmt.Errorf("not signed in; run `formlo login`")
				}
				record, err := a.Forms.Lookup(strings.TrimSpace(args[0]))
				if err != nil {
					return fmt.Errorf("form %s not found", args[0])
				}
				if err := openBrowser(record.FormURL); err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "Open this URL yourself:\n\n  %s\n", record.FormURL)
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Opened %s\n", record.FormURL)
				return nil
			})
		},
	}
}

func promptYesNo(cmd *cobra.Command, prompt string) bool {
	fmt.Fprint(cmd.OutOrStdout(), prompt)
	reader := bufio.NewReader(cmd.InOrStdin())
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
