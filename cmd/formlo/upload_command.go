package main

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"formlo/internal/app"
	"formlo/internal/session"
	"formlo/internal/tracker"
)

func newUploadCommand(ctx *commandContext) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a document and convert it into a form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(a *app.App) error {
				if a.Startup(cmd.Context()) != session.StateAuthenticated {
					return fmt.Errorf("not signed in; run `formlo login`")
				}

				if !watch {
					job, err := a.Tracker.Submit(cmd.Context(), args[0])
					if err != nil {
						return uploadError(err)
					}
					a.Tracker.Cancel()
					if ctx.jsonOutput() {
						return writeJSON(cmd.OutOrStdout(), job)
					}
					out := cmd.OutOrStdout()
					fmt.Fprintf(out, "Upload accepted: job %s\n", job.ID)
					fmt.Fprintf(out, "Check progress with `formlo job %s`\n", job.ID)
					return nil
				}

				runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer stop()

				bar := progressbar.NewOptions(100,
					progressbar.OptionSetWriter(cmd.ErrOrStderr()),
					progressbar.OptionSetDescription("uploading"),
					progressbar.OptionShowCount(),
					progressbar.OptionClearOnFinish(),
				)
				progress := func(snap tracker.Snapshot) {
					if snap.Job == nil {
						return
					}
					bar.Describe(string(snap.Job.Status))
					_ = bar.Set(snap.Job.Progress)
				}

				event, err := a.SubmitAndWait(runCtx, args[0], progress)
				if err != nil {
					return uploadError(err)
				}
				_ = bar.Finish()

				if ctx.jsonOutput() {
					return writeJSON(cmd.OutOrStdout(), event.Job)
				}
				return reportOutcome(cmd, a, event)
			})
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", true, "Track the conversion until it finishes")
	return cmd
}

func reportOutcome(cmd *cobra.Command, a *app.App, event tracker.Event) error {
	out := cmd.OutOrStdout()
	switch event.Kind {
	case tracker.EventCompleted:
		fmt.Fprintf(out, "Conversion complete: %s\n", event.Job.Filename)
		if event.Job.FormID != "" {
			if record, err := a.Forms.Lookup(event.Job.FormID); err == nil {
				fmt.Fprintf(out, "Form: %s\n", displayTitle(record))
				fmt.Fprintf(out, "URL:  %s\n", record.FormURL)
			} else {
				fmt.Fprintf(out, "Form ID: %s\n", event.Job.FormID)
			}
		}
		return nil
	case tracker.EventFailed:
		msg := event.Job.ErrorMessage
		if msg == "" {
			msg = "conversion failed"
		}
		return errors.New(msg)
	case tracker.EventTimedOut:
		return fmt.Errorf("timed out waiting for job %s; check again with `formlo job %s`", event.Job.ID, event.Job.ID)
	case tracker.EventStalled:
		return fmt.Errorf("lost contact with the backend while tracking job %s; check again with `formlo job %s`", event.Job.ID, event.Job.ID)
	default:
		return fmt.Errorf("tracking stopped unexpectedly (%s)", event.Kind)
	}
}

func uploadError(err error) error {
	if errors.Is(err, tracker.ErrUploadInProgress) {
		return fmt.Errorf("another upload is already being tracked; wait for it to finish")
	}
	return err
}
