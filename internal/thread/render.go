package thread

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/callingitnow/callit/internal/display"
	"github.com/callingitnow/callit/internal/model"
)

// DefaultMaxDepth is how deep replies nest before the walk stops recursing
// and points to the permalink view instead.
const DefaultMaxDepth = 5

type LineKind int

const (
	LineComment LineKind = iota
	LineContinue
)

// Line is one row of a rendered thread. For LineContinue, Comment is the
// node whose replies were cut off.
type Line struct {
	Kind      LineKind
	Depth     int
	Comment   model.Comment
	CanDelete bool
}

// Walk flattens roots in display order. Nodes deeper than maxDepth are not
// visited; a node at maxDepth with replies yields a LineContinue. viewerID 0
// means signed out.
func Walk(roots []model.Comment, maxDepth int, viewerID int64) []Line {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	type frame struct {
		c     *model.Comment
		depth int
	}
	var lines []Line
	stack := make([]frame, 0, len(roots))
	for i := len(roots) - 1; i >= 0; i-- {
		stack = append(stack, frame{c: &roots[i]})
	}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		lines = append(lines, Line{
			Kind:      LineComment,
			Depth:     f.depth,
			Comment:   *f.c,
			CanDelete: viewerID != 0 && viewerID == f.c.AuthorID(),
		})
		if len(f.c.Replies) == 0 {
			continue
		}
		if f.depth >= maxDepth {
			lines = append(lines, Line{Kind: LineContinue, Depth: f.depth + 1, Comment: *f.c})
			continue
		}
		for i := len(f.c.Replies) - 1; i >= 0; i-- {
			stack = append(stack, frame{c: &f.c.Replies[i], depth: f.depth + 1})
		}
	}
	return lines
}

type RenderOptions struct {
	Filter       display.Filter
	Now          time.Time
	PredictionID int64
}

// Render writes lines as an indented plain-text thread.
func Render(w io.Writer, lines []Line, opts RenderOptions) error {
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	if len(lines) == 0 {
		_, err := fmt.Fprintln(w, "No comments yet. Be the first to share your thoughts!")
		return err
	}
	for _, l := range lines {
		var b strings.Builder
		c := l.Comment
		switch l.Kind {
		case LineContinue:
			fmt.Fprintf(&b, "↳ continue thread: callit thread %d --prediction %d", c.ID, predictionOf(c, opts))
		default:
			fmt.Fprintf(&b, "#%d @%s · %s · %s\n", c.ID, c.AuthorHandle(), display.TimeAgo(c.CreatedAt(), opts.Now), voteLabel(c))
			b.WriteString(opts.Filter.Content(c.Content))
			if l.CanDelete {
				b.WriteString("\n[delete]")
			}
		}
		if _, err := fmt.Fprintln(w, display.Indent(b.String(), l.Depth)); err != nil {
			return err
		}
	}
	return nil
}

func predictionOf(c model.Comment, opts RenderOptions) int64 {
	if c.PredictionID != 0 {
		return c.PredictionID
	}
	return opts.PredictionID
}

func voteLabel(c model.Comment) string {
	mark := ""
	switch c.VoteState().UserVote {
	case 1:
		mark = " ▲"
	case -1:
		mark = " ▼"
	}
	return fmt.Sprintf("%+d%s", c.VoteScore, mark)
}

// Find returns the comment with id anywhere in roots.
func Find(roots []model.Comment, id int64) (model.Comment, bool) {
	c := model.FindComment(roots, id)
	if c == nil {
		return model.Comment{}, false
	}
	return *c, true
}
