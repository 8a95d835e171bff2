package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/callingitnow/callit/internal/model"
	"github.com/callingitnow/callit/internal/store"
	"github.com/callingitnow/callit/internal/thread"
)

func newCommentCmd(a *app) *cobra.Command {
	var (
		parent  int64
		content string
	)
	cmd := &cobra.Command{
		Use:   "comment <prediction-id>",
		Short: "Comment on a prediction or reply to a comment",
		Long:  "Posts a comment. Without --content the text is read from stdin; if that is empty a saved draft is used.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := a.requireSignIn(); err != nil {
				return err
			}
			if content == "" {
				if content, err = a.readAll(); err != nil {
					return err
				}
			}
			if content == "" {
				d, err := a.store.GetDraft(ctx, id, parent)
				switch {
				case err == nil:
					content = d.Content
					fmt.Fprintln(a.out, "Posting saved draft.")
				case !errors.Is(err, store.ErrNotFound):
					return err
				}
			}

			view := a.threadView(id, model.SortTop)
			if err := view.Reply(ctx, parent, content); err != nil {
				if errors.Is(err, thread.ErrEmptyContent) {
					return err
				}
				if f := view.Form(parent); f.Err != "" {
					return fmt.Errorf("%s (draft saved)", f.Err)
				}
				return err
			}
			if parent > 0 {
				fmt.Fprintf(a.out, "Replied to comment #%d\n", parent)
			} else {
				fmt.Fprintf(a.out, "Commented on prediction #%d\n", id)
			}
			return thread.Render(a.out, view.Lines(a.cfg.MaxDepth), thread.RenderOptions{
				Filter: a.filter, Now: a.now(), PredictionID: id,
			})
		},
	}
	cmd.Flags().Int64Var(&parent, "parent", 0, "Reply to this comment id")
	cmd.Flags().StringVar(&content, "content", "", "Comment text")
	return cmd
}

func newCommentVoteCmd(a *app) *cobra.Command {
	var (
		predictionID int64
		up, down     bool
	)
	cmd := &cobra.Command{
		Use:   "comment-vote <comment-id>",
		Short: "Vote on a comment; repeating your vote retracts it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			value, err := voteValue(up, down)
			if err != nil {
				return err
			}
			if predictionID <= 0 {
				return fmt.Errorf("--prediction is required")
			}
			view := a.threadView(predictionID, model.SortTop)
			if err := view.Load(ctx); err != nil {
				return fmt.Errorf("%s", view.Err())
			}
			if err := view.Vote(ctx, id, value); err != nil {
				if errors.Is(err, thread.ErrUnknownComment) || errors.Is(err, thread.ErrNotSignedIn) {
					return err
				}
				if view.State() == thread.Failed {
					fmt.Fprintf(a.out, "Vote recorded on comment #%d.\n", id)
					return fmt.Errorf("%s", thread.MsgLoadFailed)
				}
				return fmt.Errorf("%s", thread.MsgVoteFailed)
			}
			c, _ := thread.Find(view.Tree(), id)
			fmt.Fprintf(a.out, "comment #%d score %+d%s\n", id, c.VoteScore, voteMark(c.UserVote))
			return nil
		},
	}
	cmd.Flags().Int64Var(&predictionID, "prediction", 0, "Prediction the comment belongs to")
	cmd.Flags().BoolVar(&up, "up", false, "Upvote")
	cmd.Flags().BoolVar(&down, "down", false, "Downvote")
	return cmd
}

func newCommentDeleteCmd(a *app) *cobra.Command {
	var (
		predictionID int64
		yes          bool
	)
	cmd := &cobra.Command{
		Use:   "comment-delete <comment-id>",
		Short: "Delete one of your comments and its replies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if predictionID <= 0 {
				return fmt.Errorf("--prediction is required")
			}
			view := a.threadView(predictionID, model.SortTop)
			if err := view.Load(ctx); err != nil {
				return fmt.Errorf("%s", view.Err())
			}
			confirm := thread.ConfirmFunc(a.confirm)
			if yes {
				confirm = func(string) bool { return true }
			}
			switch err := view.Delete(ctx, id, confirm); {
			case errors.Is(err, thread.ErrNotConfirmed):
				fmt.Fprintln(a.out, "Cancelled.")
				return nil
			case errors.Is(err, thread.ErrNotAuthor), errors.Is(err, thread.ErrUnknownComment), errors.Is(err, thread.ErrNotSignedIn):
				return err
			case err != nil:
				return fmt.Errorf("%s", thread.MsgDeleteFailed)
			}
			fmt.Fprintf(a.out, "Deleted comment #%d\n", id)
			return nil
		},
	}
	cmd.Flags().Int64Var(&predictionID, "prediction", 0, "Prediction the comment belongs to")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip confirmation")
	return cmd
}
