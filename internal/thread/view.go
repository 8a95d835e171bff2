// Package thread holds one prediction's comment tree: loading and sorting
// it, posting replies, voting, deleting, and flattening it for display.
package thread

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/callingitnow/callit/internal/client"
	"github.com/callingitnow/callit/internal/model"
	"github.com/callingitnow/callit/internal/store"
)

var (
	ErrEmptyContent   = errors.New("comment cannot be empty")
	ErrNotSignedIn    = errors.New("sign in to comment")
	ErrNotAuthor      = errors.New("only the author can delete this comment")
	ErrNotConfirmed   = errors.New("deletion not confirmed")
	ErrUnknownComment = errors.New("comment not in thread")
	ErrReplyInFlight  = errors.New("reply already being posted")
)

const (
	MsgLoadFailed   = "Failed to load comments."
	MsgPostFailed   = "Failed to post comment."
	MsgVoteFailed   = "Failed to cast vote."
	MsgDeleteFailed = "Failed to delete comment."

	ConfirmDelete = "Are you sure you want to delete this comment?"
)

type State int

const (
	Idle State = iota
	Loading
	Loaded
	Failed
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Failed:
		return "failed"
	}
	return "idle"
}

type API interface {
	ListComments(ctx context.Context, predictionID int64, sort model.CommentSort) ([]model.Comment, error)
	PostComment(ctx context.Context, predictionID int64, content string, parentID int64) (model.Comment, error)
	DeleteComment(ctx context.Context, commentID int64) error
}

// Voter sends comment votes. apply, when called, receives predicted state.
type Voter interface {
	VoteComment(ctx context.Context, c model.Comment, requested int, apply func(model.VoteState)) error
}

type Viewer interface {
	CurrentUser() (*model.UserProfile, bool)
}

type Confirmer interface {
	Confirm(prompt string) bool
}

type ConfirmFunc func(prompt string) bool

func (f ConfirmFunc) Confirm(prompt string) bool { return f(prompt) }

// Form is the compose box for a top-level comment (ParentID 0) or a reply.
type Form struct {
	ParentID int64
	Content  string
	Open     bool
	Busy     bool
	Err      string
}

type View struct {
	predictionID int64
	api          API
	voter        Voter
	viewer       Viewer
	drafts       store.DraftStore
	logger       *slog.Logger

	mu     sync.Mutex
	sort   model.CommentSort
	state  State
	roots  []model.Comment
	errMsg string
	gen    uint64
	forms  map[int64]*Form
}

type Option func(*View)

func WithDrafts(d store.DraftStore) Option { return func(v *View) { v.drafts = d } }

func WithLogger(l *slog.Logger) Option { return func(v *View) { v.logger = l } }

func WithSort(s model.CommentSort) Option { return func(v *View) { v.sort = s } }

func New(predictionID int64, api API, voter Voter, viewer Viewer, opts ...Option) *View {
	v := &View{
		predictionID: predictionID,
		api:          api,
		voter:        voter,
		viewer:       viewer,
		sort:         model.SortTop,
		forms:        make(map[int64]*Form),
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.logger == nil {
		v.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return v
}

func (v *View) PredictionID() int64 { return v.predictionID }

func (v *View) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

func (v *View) Err() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.errMsg
}

func (v *View) SortMode() model.CommentSort {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.sort
}

// Tree returns a copy of the loaded comments.
func (v *View) Tree() []model.Comment {
	v.mu.Lock()
	defer v.mu.Unlock()
	return model.CloneTree(v.roots)
}

// Lines flattens the loaded tree for display.
func (v *View) Lines(maxDepth int) []Line {
	return Walk(v.Tree(), maxDepth, v.viewerID())
}

// Load fetches the whole tree under the current sort and replaces what is
// held. A load superseded by a newer one is discarded.
func (v *View) Load(ctx context.Context) error {
	v.mu.Lock()
	v.gen++
	gen := v.gen
	mode := v.sort
	v.state = Loading
	v.mu.Unlock()

	roots, err := v.api.ListComments(ctx, v.predictionID, mode)

	v.mu.Lock()
	defer v.mu.Unlock()
	if gen != v.gen {
		return nil
	}
	if err != nil {
		v.state = Failed
		v.errMsg = MsgLoadFailed
		v.logger.Warn("load comments failed", "prediction_id", v.predictionID, "err", err)
		return err
	}
	Sort(roots, mode)
	v.roots = roots
	v.state = Loaded
	v.errMsg = ""
	return nil
}

// SetSort switches the order and reloads.
func (v *View) SetSort(ctx context.Context, mode model.CommentSort) error {
	if !mode.Valid() {
		return model.ErrInvalidInput
	}
	v.mu.Lock()
	v.sort = mode
	v.mu.Unlock()
	return v.Load(ctx)
}

// Form returns the compose state for parentID.
func (v *View) Form(parentID int64) Form {
	v.mu.Lock()
	defer v.mu.Unlock()
	if f, ok := v.forms[parentID]; ok {
		return *f
	}
	return Form{ParentID: parentID}
}

// OpenReply shows the reply box under parentID.
func (v *View) OpenReply(parentID int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.formLocked(parentID).Open = true
}

// CancelReply collapses the reply box and forgets its draft.
func (v *View) CancelReply(ctx context.Context, parentID int64) error {
	v.mu.Lock()
	delete(v.forms, parentID)
	v.mu.Unlock()
	if v.drafts == nil {
		return nil
	}
	return v.drafts.DeleteDraft(ctx, v.predictionID, parentID)
}

// RestoreDrafts reopens the forms that have a saved draft.
func (v *View) RestoreDrafts(ctx context.Context) error {
	if v.drafts == nil {
		return nil
	}
	drafts, err := v.drafts.ListDrafts(ctx, v.predictionID)
	if err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, d := range drafts {
		f := v.formLocked(d.ParentID)
		f.Content = d.Content
		f.Open = true
	}
	return nil
}

// Post adds a top-level comment.
func (v *View) Post(ctx context.Context, content string) error {
	return v.Reply(ctx, 0, content)
}

// Reply posts content under parentID (0 for top level). On success the form
// is cleared and collapsed and the thread reloads; on failure the content is
// kept as a draft and the form carries the error.
func (v *View) Reply(ctx context.Context, parentID int64, content string) error {
	if strings.TrimSpace(content) == "" {
		return ErrEmptyContent
	}
	if v.viewerID() == 0 {
		return ErrNotSignedIn
	}

	v.mu.Lock()
	f := v.formLocked(parentID)
	if f.Busy {
		v.mu.Unlock()
		return ErrReplyInFlight
	}
	f.Busy = true
	f.Content = content
	f.Err = ""
	v.mu.Unlock()

	_, err := v.api.PostComment(ctx, v.predictionID, content, parentID)

	v.mu.Lock()
	f = v.formLocked(parentID)
	f.Busy = false
	if err != nil {
		f.Err = client.DetailOr(err, MsgPostFailed)
		f.Open = true
		v.mu.Unlock()
		v.logger.Warn("post comment failed", "prediction_id", v.predictionID, "parent_id", parentID, "err", err)
		if v.drafts != nil {
			if derr := v.drafts.SaveDraft(ctx, store.Draft{PredictionID: v.predictionID, ParentID: parentID, Content: content}); derr != nil {
				v.logger.Debug("save draft failed", "err", derr)
			}
		}
		return err
	}
	delete(v.forms, parentID)
	v.mu.Unlock()

	if v.drafts != nil {
		if derr := v.drafts.DeleteDraft(ctx, v.predictionID, parentID); derr != nil {
			v.logger.Debug("delete draft failed", "err", derr)
		}
	}
	return v.Load(ctx)
}

// Vote casts the viewer's vote on a comment, then reloads.
func (v *View) Vote(ctx context.Context, commentID int64, value int) error {
	if v.viewerID() == 0 {
		return ErrNotSignedIn
	}
	c, ok := v.find(commentID)
	if !ok {
		return ErrUnknownComment
	}
	err := v.voter.VoteComment(ctx, c, value, func(s model.VoteState) {
		v.mu.Lock()
		defer v.mu.Unlock()
		if n := model.FindComment(v.roots, commentID); n != nil {
			n.VoteScore = s.Score
			n.UserVote = model.NewVote(s.UserVote)
		}
	})
	if err != nil {
		v.logger.Warn("comment vote failed", "comment_id", commentID, "err", err)
		return err
	}
	return v.Load(ctx)
}

// Delete removes the viewer's own comment after confirm agrees. The tree is
// untouched until the reload after the server confirms.
func (v *View) Delete(ctx context.Context, commentID int64, confirm Confirmer) error {
	viewer := v.viewerID()
	if viewer == 0 {
		return ErrNotSignedIn
	}
	c, ok := v.find(commentID)
	if !ok {
		return ErrUnknownComment
	}
	if c.AuthorID() != viewer {
		return ErrNotAuthor
	}
	if confirm == nil || !confirm.Confirm(ConfirmDelete) {
		return ErrNotConfirmed
	}
	if err := v.api.DeleteComment(ctx, commentID); err != nil {
		v.logger.Warn("delete comment failed", "comment_id", commentID, "err", err)
		return err
	}
	return v.Load(ctx)
}

func (v *View) find(id int64) (model.Comment, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return Find(v.roots, id)
}

func (v *View) viewerID() int64 {
	if v.viewer == nil {
		return 0
	}
	u, ok := v.viewer.CurrentUser()
	if !ok || u == nil {
		return 0
	}
	return u.ID
}

func (v *View) formLocked(parentID int64) *Form {
	f, ok := v.forms[parentID]
	if !ok {
		f = &Form{ParentID: parentID}
		v.forms[parentID] = f
	}
	return f
}
