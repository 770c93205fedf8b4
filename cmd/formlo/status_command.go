package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"formlo/internal/app"
	"formlo/internal/session"
)

type statusReport struct {
	Backend       string `json:"backend"`
	Session       string `json:"session"`
	Email         string `json:"email,omitempty"`
	TrackerPhase  string `json:"tracker_phase"`
	TrackedFile   string `json:"tracked_file,omitempty"`
	FormsCached   int    `json:"forms_cached"`
	FormsFresh    bool   `json:"forms_fresh"`
	ResolvedView  string `json:"resolved_view"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show session, tracking, and collection state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(a *app.App) error {
				state := a.Startup(cmd.Context())

				report := statusReport{
					Backend:      a.Config.Backend.URL,
					Session:      string(state),
					TrackerPhase: string(a.Tracker.Snapshot().Phase),
					FormsCached:  a.Forms.Len(),
					FormsFresh:   state == session.StateAuthenticated,
				}
				if state == session.StateAuthenticated {
					if sess, err := a.Guard.Session(); err == nil {
						report.Email = sess.Email
					}
				}
				snap := a.Tracker.Snapshot()
				report.TrackedFile = snap.Filename
				report.ResolvedView = string(a.Router.Resolve(state == session.StateAuthenticated, snap.Phase))

				if ctx.jsonOutput() {
					return writeJSON(cmd.OutOrStdout(), report)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Backend:  %s\n", report.Backend)
				fmt.Fprintf(out, "Session:  %s", report.Session)
				if report.Email != "" {
					fmt.Fprintf(out, " (%s)", report.Email)
				}
				fmt.Fprintln(out)
				fmt.Fprintf(out, "Tracking: %s", report.TrackerPhase)
				if report.TrackedFile != "" {
					fmt.Fprintf(out, " (%s)", report.TrackedFile)
				}
				fmt.Fprintln(out)
				fmt.Fprintf(out, "Forms:    %d known\n", report.FormsCached)
				fmt.Fprintf(out, "View:     %s\n", report.ResolvedView)
				return nil
			})
		},
	}
}
