package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/callingitnow/callit/internal/store"
)

func newSettingsCmd(a *app) *cobra.Command {
	var showProfanity bool
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change display settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("show-profanity") {
				if err := a.store.SetSetting(cmd.Context(), store.SettingShowProfanity, strconv.FormatBool(showProfanity)); err != nil {
					return err
				}
				a.filter.ShowProfanity = showProfanity
				fmt.Fprintln(a.out, "Settings saved.")
			}
			fmt.Fprintf(a.out, "show-profanity: %t\n", a.filter.ShowProfanity)
			fmt.Fprintf(a.out, "api-url:        %s\n", a.cfg.APIURL)
			fmt.Fprintf(a.out, "profile:        %s\n", a.session.Active())
			fmt.Fprintf(a.out, "state:          %s\n", a.home)
			return nil
		},
	}
	cmd.Flags().BoolVar(&showProfanity, "show-profanity", false, "Show profanity instead of censoring it")
	return cmd
}
