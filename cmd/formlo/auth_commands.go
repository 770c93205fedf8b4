package main

import (
	"bufio"
	"fmt"

	"github.com/spf13/cobra"

	"formlo/internal/app"
	"formlo/internal/session"
)

func newLoginCommand(ctx *commandContext) *cobra.Command {
	var noBrowser bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in through the browser",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(a *app.App) error {
				out := cmd.OutOrStdout()
				if a.Guard.Check(cmd.Context()) == session.StateAuthenticated {
					sess, err := a.Guard.Session()
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Already signed in as %s\n", sess.Email)
					return nil
				}

				// Backends running local auth complete the redirect flow for
				// the API client directly; try that before involving a browser.
				if err := a.Client.Login(cmd.Context()); err == nil {
					if a.Guard.Check(cmd.Context()) == session.StateAuthenticated {
						sess, err := a.Guard.Session()
						if err != nil {
							return err
						}
						fmt.Fprintf(out, "Signed in as %s\n", sess.Email)
						return nil
					}
				}

				url := a.Guard.LoginURL()
				fmt.Fprintf(out, "Open this URL to sign in:\n\n  %s\n\n", url)
				if !noBrowser {
					if err := openBrowser(url); err != nil {
						fmt.Fprintf(out, "Could not launch a browser automatically (%v); open the URL yourself.\n", err)
					}
				}

				fmt.Fprint(out, "Press Enter once the browser flow completes... ")
				reader := bufio.NewReader(cmd.InOrStdin())
				if _, err := reader.ReadString('\n'); err != nil {
					return fmt.Errorf("wait for confirmation: %w", err)
				}

				if a.Guard.Check(cmd.Context()) != session.StateAuthenticated {
					return fmt.Errorf("no session was established; run `formlo login` again after signing in")
				}
				sess, err := a.Guard.Session()
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Signed in as %s\n", sess.Email)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "Print the login URL instead of launching a browser")
	return cmd
}

func newLogoutCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the current session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(a *app.App) error {
				if a.Guard.Check(cmd.Context()) != session.StateAuthenticated {
					fmt.Fprintln(cmd.OutOrStdout(), "Not signed in")
					return nil
				}
				if err := a.Logout(cmd.Context()); err != nil {
					return fmt.Errorf("logout: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
				return nil
			})
		},
	}
}

func newWhoamiCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(a *app.App) error {
				if a.Guard.Check(cmd.Context()) != session.StateAuthenticated {
					return fmt.Errorf("not signed in; run `formlo login`")
				}
				sess, err := a.Guard.Session()
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd.OutOrStdout(), sess)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Email: %s\n", sess.Email)
				if sess.Name != "" {
					fmt.Fprintf(out, "Name:  %s\n", sess.Name)
				}
				return nil
			})
		},
	}
}
