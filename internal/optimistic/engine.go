// Package optimistic applies votes and backings to local state before the
// backend confirms them and restores the exact prior state when it refuses.
package optimistic

import (
	"context"
	"io"
	"log/slog"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/callingitnow/callit/internal/entity"
	"github.com/callingitnow/callit/internal/model"
)

// API is the part of the gateway the engine calls.
type API interface {
	VotePrediction(ctx context.Context, id int64, value int) error
	BackPrediction(ctx context.Context, id int64) error
	VoteComment(ctx context.Context, commentID int64, value int) error
	GetPrediction(ctx context.Context, id int64) (model.Prediction, error)
}

// Viewer reports whether a user is signed in.
type Viewer interface {
	SignedIn() bool
}

// ViewerFunc adapts a function to Viewer.
type ViewerFunc func() bool

func (f ViewerFunc) SignedIn() bool { return f() }

type Engine struct {
	api      API
	viewer   Viewer
	policy   Policy
	entities *entity.Store[model.Prediction]
	inflight *xsync.MapOf[model.Key, struct{}]
	refetch  bool
	logger   *slog.Logger
}

type Option func(*Engine)

func WithPolicy(p Policy) Option { return func(e *Engine) { e.policy = p } }

func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithEntities shares writes through s so every tracked card sees them.
func WithEntities(s *entity.Store[model.Prediction]) Option {
	return func(e *Engine) { e.entities = s }
}

// WithRefetch re-reads the prediction after a successful action.
func WithRefetch(on bool) Option { return func(e *Engine) { e.refetch = on } }

func New(api API, viewer Viewer, opts ...Option) *Engine {
	e := &Engine{
		api:      api,
		viewer:   viewer,
		policy:   DefaultPolicy(),
		inflight: xsync.NewMapOf[model.Key, struct{}](),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return e
}

func (e *Engine) Policy() Policy { return e.policy }

// InFlight reports whether any view has a request pending for key.
func (e *Engine) InFlight(key model.Key) bool {
	_, ok := e.inflight.Load(key)
	return ok
}

// Track subscribes card to writes other views make to the same prediction.
// The card carries the latest fetch, so it replaces what the shared store
// holds unless a request on the entity is still pending; then the card
// takes the pending optimistic state instead.
func (e *Engine) Track(card *Card) {
	if e.entities == nil {
		return
	}
	p := card.Snapshot()
	key := p.EntityKey()
	unsub := e.entities.Subscribe(key, card.adopt)
	card.mu.Lock()
	prev := card.unsub
	card.unsub = unsub
	card.mu.Unlock()
	if prev != nil {
		prev()
	}
	if e.InFlight(key) {
		if cur, ok := e.entities.Get(key); ok {
			card.adopt(cur)
			return
		}
	}
	e.entities.Put(key, p)
}

// NextVote computes the state after the viewer presses requested. Pressing
// the current vote again retracts it.
func NextVote(prev model.VoteState, requested int) model.VoteState {
	effective := requested
	if requested == prev.UserVote {
		effective = 0
	}
	return model.VoteState{
		Score:    prev.Score - prev.UserVote + effective,
		UserVote: effective,
	}
}

// ApplyVote records an up (1) or down (-1) vote on the card's prediction.
func (e *Engine) ApplyVote(ctx context.Context, card *Card, requested int) error {
	if requested != 1 && requested != -1 {
		return ErrInvalidVote
	}
	if e.viewer == nil || !e.viewer.SignedIn() {
		return ErrNotAuthenticated
	}
	key := card.Key()
	release, ok := e.acquire(key)
	if !ok {
		return ErrRequestInFlight
	}
	defer release()

	prev, ok := card.begin()
	if !ok {
		return ErrRequestInFlight
	}
	next := NextVote(prev.VoteState(), requested)
	optimistic := e.policy.IsOptimistic(ActionPredictionVote)
	log := e.logger.With("entity", key.String(), "action", string(ActionPredictionVote))

	if optimistic {
		e.publish(card.set(func(p *model.Prediction) bool {
			p.VoteScore = next.Score
			p.UserVote = model.NewVote(next.UserVote)
			return true
		}))
	}

	if err := e.api.VotePrediction(ctx, prev.ID, next.UserVote); err != nil {
		if optimistic {
			e.publish(card.set(func(p *model.Prediction) bool {
				p.VoteScore = prev.VoteScore
				p.UserVote = prev.Clone().UserVote
				return true
			}))
		}
		card.finish(MsgVoteFailed)
		log.Warn("vote failed", "err", err)
		return newActionError(ActionPredictionVote, MsgVoteFailed, err)
	}

	if !optimistic {
		e.publish(card.set(func(p *model.Prediction) bool {
			p.VoteScore = next.Score
			p.UserVote = model.NewVote(next.UserVote)
			return true
		}))
	}
	e.afterSuccess(ctx, card, log)
	card.finish("")
	return nil
}

// ApplyBacking backs the card's prediction. Backing is one-way: a card that
// is already backed is left untouched and no request is made.
func (e *Engine) ApplyBacking(ctx context.Context, card *Card) error {
	if e.viewer == nil || !e.viewer.SignedIn() {
		return ErrNotAuthenticated
	}
	snap := card.Snapshot()
	if snap.UserBacked {
		return ErrAlreadyBacked
	}
	if !snap.AllowBacking {
		return ErrBackingDisabled
	}
	key := snap.EntityKey()
	release, ok := e.acquire(key)
	if !ok {
		return ErrRequestInFlight
	}
	defer release()

	prev, ok := card.begin()
	if !ok {
		return ErrRequestInFlight
	}
	if prev.UserBacked {
		card.finish("")
		return ErrAlreadyBacked
	}
	optimistic := e.policy.IsOptimistic(ActionPredictionBack)
	log := e.logger.With("entity", key.String(), "action", string(ActionPredictionBack))

	back := func(p *model.Prediction) bool {
		p.UserBacked = true
		p.BackingCount = prev.BackingCount + 1
		return true
	}
	if optimistic {
		e.publish(card.set(back))
	}

	if err := e.api.BackPrediction(ctx, prev.ID); err != nil {
		if optimistic {
			e.publish(card.set(func(p *model.Prediction) bool {
				p.UserBacked = prev.UserBacked
				p.BackingCount = prev.BackingCount
				return true
			}))
		}
		card.finish(MsgBackFailed)
		log.Warn("backing failed", "err", err)
		return newActionError(ActionPredictionBack, MsgBackFailed, err)
	}

	if !optimistic {
		e.publish(card.set(back))
	}
	e.afterSuccess(ctx, card, log)
	card.finish("")
	return nil
}

// VoteComment sends the viewer's vote on c. When the policy marks comment
// votes optimistic, apply receives the predicted state before the request
// and the prior state again on failure; otherwise apply is not called and
// the caller reloads.
func (e *Engine) VoteComment(ctx context.Context, c model.Comment, requested int, apply func(model.VoteState)) error {
	if requested != 1 && requested != -1 {
		return ErrInvalidVote
	}
	if e.viewer == nil || !e.viewer.SignedIn() {
		return ErrNotAuthenticated
	}
	key := c.EntityKey()
	release, ok := e.acquire(key)
	if !ok {
		return ErrRequestInFlight
	}
	defer release()

	prev := c.VoteState()
	next := NextVote(prev, requested)
	optimistic := e.policy.IsOptimistic(ActionCommentVote) && apply != nil
	if optimistic {
		apply(next)
	}
	if err := e.api.VoteComment(ctx, c.ID, next.UserVote); err != nil {
		if optimistic {
			apply(prev)
		}
		e.logger.Warn("comment vote failed", "entity", key.String(), "err", err)
		return newActionError(ActionCommentVote, MsgCommentVoteFailed, err)
	}
	return nil
}

// acquire claims key in the engine-wide registry.
func (e *Engine) acquire(key model.Key) (release func(), ok bool) {
	if _, loaded := e.inflight.LoadOrStore(key, struct{}{}); loaded {
		return nil, false
	}
	return func() { e.inflight.Delete(key) }, true
}

func (e *Engine) publish(p model.Prediction) {
	if e.entities == nil {
		return
	}
	e.entities.Put(p.EntityKey(), p)
}

func (e *Engine) afterSuccess(ctx context.Context, card *Card, log *slog.Logger) {
	if !e.refetch {
		return
	}
	fresh, err := e.api.GetPrediction(ctx, card.Key().ID)
	if err != nil {
		log.Debug("refetch failed", "err", err)
		return
	}
	card.Replace(fresh)
	e.publish(fresh)
}
