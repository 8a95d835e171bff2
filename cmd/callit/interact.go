package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/callingitnow/callit/internal/client"
	"github.com/callingitnow/callit/internal/optimistic"
	"github.com/callingitnow/callit/internal/receipt"
)

// actionError prefers the message the user sees in the app.
func actionError(err error) error {
	var ae *optimistic.ActionError
	if errors.As(err, &ae) {
		if ae.Kind == optimistic.NetworkUnavailable {
			return fmt.Errorf("%s (network unavailable)", ae.Message)
		}
		return fmt.Errorf("%s", client.DetailOr(ae.Err, ae.Message))
	}
	return err
}

func newVoteCmd(a *app) *cobra.Command {
	var up, down bool
	cmd := &cobra.Command{
		Use:   "vote <prediction-id>",
		Short: "Vote a prediction up or down; repeating your vote retracts it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			value, err := voteValue(up, down)
			if err != nil {
				return err
			}
			if err := a.requireSignIn(); err != nil {
				return err
			}
			p, err := a.api.GetPrediction(cmd.Context(), id)
			if err != nil {
				return viewError(err, "prediction")
			}
			card := optimistic.NewCard(p)
			a.engine.Track(card)
			defer card.Close()

			if err := a.engine.ApplyVote(cmd.Context(), card, value); err != nil {
				return actionError(err)
			}
			after := card.Snapshot()
			fmt.Fprintf(a.out, "#%d score %+d%s\n", after.ID, after.VoteScore, voteMark(after.UserVote))
			return nil
		},
	}
	cmd.Flags().BoolVar(&up, "up", false, "Upvote")
	cmd.Flags().BoolVar(&down, "down", false, "Downvote")
	return cmd
}

func voteValue(up, down bool) (int, error) {
	switch {
	case up && !down:
		return 1, nil
	case down && !up:
		return -1, nil
	}
	return 0, errors.New("specify exactly one of --up or --down")
}

func newBackCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "back <prediction-id>",
		Short: "Back a prediction; backing cannot be undone from the feed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := a.requireSignIn(); err != nil {
				return err
			}
			p, err := a.api.GetPrediction(cmd.Context(), id)
			if err != nil {
				return viewError(err, "prediction")
			}
			card := optimistic.NewCard(p)
			a.engine.Track(card)
			defer card.Close()

			err = a.engine.ApplyBacking(cmd.Context(), card)
			switch {
			case errors.Is(err, optimistic.ErrAlreadyBacked):
				fmt.Fprintf(a.out, "You already back #%d (%d backers)\n", id, card.Snapshot().BackingCount)
				return nil
			case errors.Is(err, optimistic.ErrBackingDisabled):
				return fmt.Errorf("backing is disabled for #%d", id)
			case err != nil:
				return actionError(err)
			}
			fmt.Fprintf(a.out, "Backed #%d (%d backers)\n", id, card.Snapshot().BackingCount)
			return nil
		},
	}
}

func newUnbackCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "unback <prediction-id>",
		Short: "Withdraw your backing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := a.requireSignIn(); err != nil {
				return err
			}
			if err := a.api.UnbackPrediction(cmd.Context(), id); err != nil {
				if client.IsNotFound(err) {
					return fmt.Errorf("%s", client.DetailOr(err, "not backed"))
				}
				return err
			}
			p, err := a.api.GetPrediction(cmd.Context(), id)
			if err != nil {
				return viewError(err, "prediction")
			}
			fmt.Fprintf(a.out, "Withdrew backing from #%d (%d backers)\n", id, p.BackingCount)
			return nil
		},
	}
}

func newReceiptCmd(a *app) *cobra.Command {
	var (
		pngDir string
		verify bool
		noQR   bool
		utc    bool
	)
	cmd := &cobra.Command{
		Use:   "receipt <prediction-id>",
		Short: "Show the proof that you called it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			r, err := receipt.Fetch(ctx, a.api, id)
			if err != nil {
				return viewError(err, "receipt")
			}
			if base := strings.TrimSuffix(a.cfg.VerifyBaseURL, "/"); base != "" {
				r.VerificationURL = fmt.Sprintf("%s/predictions/%d", base, id)
			}
			opts := receipt.Options{NoQR: noQR}
			if utc {
				opts.Location = time.UTC
			}
			if err := receipt.Render(a.out, r, opts); err != nil {
				return err
			}
			if pngDir != "" {
				path, err := receipt.WritePNG(pngDir, r)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "Saved %s\n", path)
			}
			if verify {
				p, err := a.api.GetPrediction(ctx, id)
				if err != nil {
					return viewError(err, "prediction")
				}
				if err := receipt.Verify(p); err != nil {
					return fmt.Errorf("verification failed: %w", err)
				}
				fmt.Fprintln(a.out, "Hash verified: content, author and time are unchanged.")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&pngDir, "png", "", "Write a QR code PNG into this directory")
	cmd.Flags().BoolVar(&verify, "verify", false, "Recompute the hash locally")
	cmd.Flags().BoolVar(&noQR, "no-qr", false, "Skip the terminal QR code")
	cmd.Flags().BoolVar(&utc, "utc", false, "Show the timestamp in UTC")
	return cmd
}
