package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newLoginCmd(a *app) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if email == "" {
				if email, err = a.prompt("Email"); err != nil {
					return err
				}
			}
			pw, err := a.promptPassword()
			if err != nil {
				return err
			}
			u, err := a.session.Login(cmd.Context(), email, pw)
			if err != nil {
				return fmt.Errorf("login failed: %w", err)
			}
			fmt.Fprintf(a.out, "Signed in as @%s (profile %s)\n", u.Handle, a.session.Active())
			return nil
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "Account email")
	return cmd
}

func newRegisterCmd(a *app) *cobra.Command {
	var email, handle string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if email == "" {
				if email, err = a.prompt("Email"); err != nil {
					return err
				}
			}
			if handle == "" {
				if handle, err = a.prompt("Handle"); err != nil {
					return err
				}
			}
			pw, err := a.promptPassword()
			if err != nil {
				return err
			}
			u, err := a.session.Register(cmd.Context(), email, handle, pw)
			if err != nil {
				return fmt.Errorf("registration failed: %w", err)
			}
			fmt.Fprintf(a.out, "Welcome, @%s! You are signed in (profile %s)\n", u.Handle, a.session.Active())
			return nil
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "Account email")
	cmd.Flags().StringVar(&handle, "handle", "", "Public handle")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out of the active profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.session.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "Signed out.")
			return nil
		},
	}
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "whoami",
		Aliases: []string{"status"},
		Short:   "Show the signed-in user",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			u, ok := a.session.CurrentUser()
			if !ok {
				fmt.Fprintf(a.out, "Not signed in (profile %s, %s)\n", a.session.Active(), a.cfg.APIURL)
				return nil
			}
			fmt.Fprintf(a.out, "@%s <%s>\n", u.Handle, u.Email)
			fmt.Fprintf(a.out, "  Wisdom level: %d\n", u.WisdomLevel)
			fmt.Fprintf(a.out, "  Predictions:  %d\n", u.PredictionCount)
			fmt.Fprintf(a.out, "  Backings:     %d\n", u.BackingCount)
			fmt.Fprintf(a.out, "  Profile:      %s (%s)\n", a.session.Active(), a.cfg.APIURL)
			return nil
		},
	}
}

func newProfilesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List stored profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			profiles, err := a.session.Profiles(cmd.Context())
			if err != nil {
				return err
			}
			if len(profiles) == 0 {
				fmt.Fprintln(a.out, "No profiles yet. Run `callit login` or `callit register`.")
				return nil
			}
			for _, p := range profiles {
				marker := " "
				if p.Name == a.session.Active() {
					marker = "*"
				}
				who := "(signed out)"
				if len(p.SealedToken) > 0 && p.User != nil {
					who = "@" + p.User.Handle
				}
				fmt.Fprintf(a.out, "%s %-16s %-20s %s\n", marker, p.Name, who, p.APIURL)
			}
			return nil
		},
	}
}

func newUseCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "use <profile>",
		Aliases: []string{"switch"},
		Short:   "Switch the active profile",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.TrimSpace(args[0])
			if err := a.session.Use(cmd.Context(), name); err != nil {
				return err
			}
			if u, ok := a.session.CurrentUser(); ok {
				fmt.Fprintf(a.out, "Switched to %s (@%s)\n", name, u.Handle)
			} else {
				fmt.Fprintf(a.out, "Switched to %s (signed out)\n", name)
			}
			return nil
		},
	}
}
