package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/callingitnow/callit/internal/client"
	"github.com/callingitnow/callit/internal/model"
	"github.com/callingitnow/callit/internal/thread"
)

type feedFlags struct {
	category string
	sort     string
	page     int
	perPage  int
	user     int64
	mine     bool
	group    int64
	safe     bool
}

func newFeedCmd(a *app) *cobra.Command {
	var flags feedFlags
	cmd := &cobra.Command{
		Use:     "feed",
		Aliases: []string{"list"},
		Short:   "List predictions",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			var (
				list model.PredictionList
				err  error
			)
			switch {
			case flags.mine:
				if err := a.requireSignIn(); err != nil {
					return err
				}
				list, err = a.api.ListMyPredictions(ctx)
			case flags.group > 0:
				list, err = a.api.ListGroupPredictions(ctx, flags.group)
			default:
				sort := model.PredictionSort(flags.sort)
				if !sort.Valid() {
					return fmt.Errorf("invalid sort %q (recent, popular, controversial)", flags.sort)
				}
				params := model.ListPredictionsParams{
					Category: model.NormalizeCategory(flags.category),
					Sort:     sort,
					Page:     flags.page,
					PerPage:  flags.perPage,
					UserID:   flags.user,
				}
				if flags.perPage <= 0 {
					params.PerPage = a.cfg.PageSize
				}
				if cmd.Flags().Changed("safe-search") {
					params.SafeSearch = &flags.safe
				}
				list, err = a.api.ListPredictions(ctx, params)
			}
			if err != nil {
				return viewError(err, "feed")
			}
			a.printList(a.out, list)
			return nil
		},
	}
	cmd.Flags().StringVarP(&flags.category, "category", "c", "", "Filter by category ("+strings.Join(model.Categories, ", ")+")")
	cmd.Flags().StringVarP(&flags.sort, "sort", "s", string(model.SortRecent), "Sort: recent, popular, controversial")
	cmd.Flags().IntVarP(&flags.page, "page", "p", 1, "Page number")
	cmd.Flags().IntVar(&flags.perPage, "per-page", 0, "Predictions per page")
	cmd.Flags().Int64Var(&flags.user, "user", 0, "Only predictions by this user id")
	cmd.Flags().BoolVar(&flags.mine, "mine", false, "Only your own predictions")
	cmd.Flags().Int64Var(&flags.group, "group", 0, "Predictions posted to a group")
	cmd.Flags().BoolVar(&flags.safe, "safe-search", false, "Ask the server to hide profane predictions")
	return cmd
}

func newShowCmd(a *app) *cobra.Command {
	var sort string
	cmd := &cobra.Command{
		Use:   "show <prediction-id>",
		Short: "Show a prediction and its discussion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			mode := model.CommentSort(sort)
			if !mode.Valid() {
				return fmt.Errorf("invalid sort %q (top, new)", sort)
			}

			view := a.threadView(id, mode)
			var p model.Prediction
			g, gctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error {
				var err error
				p, err = a.api.GetPrediction(gctx, id)
				return err
			})
			g.Go(func() error {
				_ = view.Load(gctx)
				return nil
			})
			if err := g.Wait(); err != nil {
				return viewError(err, "prediction")
			}

			a.printDetail(a.out, p)
			fmt.Fprintf(a.out, "\nDiscussion (%s)\n\n", view.SortMode())
			if view.State() == thread.Failed {
				fmt.Fprintln(a.out, view.Err())
				return nil
			}
			return thread.Render(a.out, view.Lines(a.cfg.MaxDepth), thread.RenderOptions{
				Filter:       a.filter,
				Now:          a.now(),
				PredictionID: id,
			})
		},
	}
	cmd.Flags().StringVarP(&sort, "sort", "s", string(model.SortTop), "Comment order: top, new")
	return cmd
}

func newThreadCmd(a *app) *cobra.Command {
	var (
		predictionID int64
		sort         string
	)
	cmd := &cobra.Command{
		Use:   "thread <comment-id>",
		Short: "Continue a deep comment thread from one comment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if predictionID <= 0 {
				return fmt.Errorf("--prediction is required")
			}
			view := a.threadView(predictionID, model.CommentSort(sort))
			if err := view.Load(cmd.Context()); err != nil {
				return fmt.Errorf("%s: %w", view.Err(), viewError(err, "prediction"))
			}
			root, ok := thread.Find(view.Tree(), id)
			if !ok {
				return fmt.Errorf("comment %d not found", id)
			}
			fmt.Fprintf(a.out, "Thread from comment #%d on prediction #%d\n\n", id, predictionID)
			lines := thread.Walk([]model.Comment{root}, a.cfg.MaxDepth, a.viewerID())
			return thread.Render(a.out, lines, thread.RenderOptions{Filter: a.filter, Now: a.now(), PredictionID: predictionID})
		},
	}
	cmd.Flags().Int64Var(&predictionID, "prediction", 0, "Prediction the comment belongs to")
	cmd.Flags().StringVarP(&sort, "sort", "s", string(model.SortTop), "Comment order: top, new")
	return cmd
}

func newPostCmd(a *app) *cobra.Command {
	var in model.CreatePredictionInput
	var visibility string
	var group int64
	cmd := &cobra.Command{
		Use:   "post",
		Short: "Make a prediction",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.requireSignIn(); err != nil {
				return err
			}
			if in.Content == "" {
				content, err := a.readAll()
				if err != nil {
					return err
				}
				in.Content = content
			}
			in.Category = model.NormalizeCategory(in.Category)
			in.Visibility = model.Visibility(visibility)
			if group > 0 {
				in.GroupID = &group
			}
			p, err := a.api.CreatePrediction(cmd.Context(), in)
			if err != nil {
				return fmt.Errorf("posting prediction: %w", err)
			}
			fmt.Fprintf(a.out, "Called it! Prediction #%d recorded.\n", p.ID)
			fmt.Fprintf(a.out, "Hash: %s\n", p.Hash)
			fmt.Fprintf(a.out, "Get your receipt with `callit receipt %d`\n", p.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&in.Title, "title", "t", "", "Short title (max 120 chars)")
	cmd.Flags().StringVar(&in.Content, "content", "", "Full prediction text (default: read stdin)")
	cmd.Flags().StringVarP(&in.Category, "category", "c", "Other", "Category")
	cmd.Flags().StringVar(&visibility, "visibility", string(model.VisibilityPublic), "public or private")
	cmd.Flags().BoolVar(&in.AllowBacking, "allow-backing", true, "Let others back this call")
	cmd.Flags().Int64Var(&group, "group", 0, "Post into a group")
	return cmd
}

func newDeleteCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:     "delete <prediction-id>",
		Aliases: []string{"rm"},
		Short:   "Delete one of your predictions",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := a.requireSignIn(); err != nil {
				return err
			}
			if !yes && !a.confirm("Are you sure you want to delete this prediction?") {
				fmt.Fprintln(a.out, "Cancelled.")
				return nil
			}
			if err := a.api.DeletePrediction(cmd.Context(), id); err != nil {
				if client.IsForbidden(err) {
					return fmt.Errorf("you can only delete your own predictions")
				}
				return viewError(err, "prediction")
			}
			fmt.Fprintf(a.out, "Deleted prediction #%d\n", id)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip confirmation")
	return cmd
}
