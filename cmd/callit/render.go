package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/callingitnow/callit/internal/client"
	"github.com/callingitnow/callit/internal/display"
	"github.com/callingitnow/callit/internal/model"
)

func voteMark(v *int) string {
	if v == nil {
		return ""
	}
	switch *v {
	case 1:
		return " ▲"
	case -1:
		return " ▼"
	}
	return ""
}

func (a *app) printSummary(w io.Writer, p model.Prediction) {
	backed := ""
	if p.UserBacked {
		backed = " (you backed)"
	}
	fmt.Fprintf(w, "#%-5d %+4d%s  %s\n", p.ID, p.VoteScore, voteMark(p.UserVote), a.filter.Content(p.Title))
	fmt.Fprintf(w, "       @%s · %s · %s · %d backers%s · %d comments\n",
		p.AuthorHandle(), p.Category, display.TimeAgo(p.CreatedAt(), a.now()),
		p.BackingCount, backed, p.CommentCount)
}

func (a *app) printDetail(w io.Writer, p model.Prediction) {
	fmt.Fprintf(w, "%s\n", a.filter.Content(p.Title))
	fmt.Fprintln(w, strings.Repeat("=", 60))
	fmt.Fprintf(w, "@%s · %s · %s · %s\n", p.AuthorHandle(), p.Category, p.Visibility, display.TimeAgo(p.CreatedAt(), a.now()))
	fmt.Fprintf(w, "\n%s\n\n", a.filter.Content(p.Content))
	fmt.Fprintf(w, "Score: %+d%s   Backers: %d", p.VoteScore, voteMark(p.UserVote), p.BackingCount)
	switch {
	case p.UserBacked:
		fmt.Fprint(w, " (you backed this call)")
	case !p.AllowBacking:
		fmt.Fprint(w, " (backing disabled)")
	}
	fmt.Fprintf(w, "\nHash: %s\n", p.Hash)
}

func (a *app) printList(w io.Writer, list model.PredictionList) {
	if len(list.Predictions) == 0 {
		fmt.Fprintln(w, "No predictions found.")
		return
	}
	for _, p := range list.Predictions {
		a.printSummary(w, p)
	}
	if list.PerPage > 0 {
		pages := (list.Total + list.PerPage - 1) / list.PerPage
		fmt.Fprintf(w, "\npage %d of %d (%d total)\n", list.Page, max(pages, 1), list.Total)
	}
}

// viewError turns a failed detail load into the message shown in place of
// the view.
func viewError(err error, what string) error {
	switch {
	case client.IsNotFound(err):
		return fmt.Errorf("%s not found", what)
	case client.IsForbidden(err):
		return fmt.Errorf("%s is private", what)
	case errors.Is(err, client.ErrNetwork):
		return fmt.Errorf("could not reach the server: %w", err)
	}
	return err
}
