package optimistic

import (
	"sync"

	"github.com/callingitnow/callit/internal/model"
)

// Card is one view's local copy of a prediction together with its pending
// flag and last error message.
type Card struct {
	mu       sync.Mutex
	p        model.Prediction
	loading  bool
	errMsg   string
	onChange func(model.Prediction)
	unsub    func()
}

func NewCard(p model.Prediction) *Card {
	return &Card{p: p.Clone()}
}

func (c *Card) Key() model.Key {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.p.EntityKey()
}

func (c *Card) Snapshot() model.Prediction {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.p.Clone()
}

func (c *Card) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

// Err is the message of the last failed action, cleared when the next one
// starts.
func (c *Card) Err() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errMsg
}

// OnChange registers fn to run after every state change.
func (c *Card) OnChange(fn func(model.Prediction)) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// Replace installs server truth, e.g. after a refetch.
func (c *Card) Replace(p model.Prediction) {
	c.set(func(cur *model.Prediction) bool {
		*cur = p.Clone()
		return true
	})
}

// Close detaches the card from the shared entity store.
func (c *Card) Close() {
	c.mu.Lock()
	unsub := c.unsub
	c.unsub = nil
	c.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

// begin marks the card pending. It fails when the card already is.
func (c *Card) begin() (model.Prediction, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loading {
		return model.Prediction{}, false
	}
	c.loading = true
	c.errMsg = ""
	return c.p.Clone(), true
}

func (c *Card) finish(errMsg string) {
	c.mu.Lock()
	c.loading = false
	c.errMsg = errMsg
	fn := c.onChange
	p := c.p.Clone()
	c.mu.Unlock()
	if fn != nil {
		fn(p)
	}
}

// set applies fn under the lock and notifies when fn reports a change.
func (c *Card) set(fn func(*model.Prediction) bool) model.Prediction {
	c.mu.Lock()
	changed := fn(&c.p)
	p := c.p.Clone()
	notify := c.onChange
	c.mu.Unlock()
	if changed && notify != nil {
		notify(p)
	}
	return p
}

// adopt takes a write published by another view of the same entity.
func (c *Card) adopt(p model.Prediction) {
	c.set(func(cur *model.Prediction) bool {
		if sameInteractionState(*cur, p) {
			return false
		}
		cur.VoteScore = p.VoteScore
		cur.UserVote = p.Clone().UserVote
		cur.UserBacked = p.UserBacked
		cur.BackingCount = p.BackingCount
		cur.CommentCount = p.CommentCount
		return true
	})
}

func sameInteractionState(a, b model.Prediction) bool {
	if a.VoteScore != b.VoteScore || a.UserBacked != b.UserBacked ||
		a.BackingCount != b.BackingCount || a.CommentCount != b.CommentCount {
		return false
	}
	if (a.UserVote == nil) != (b.UserVote == nil) {
		return false
	}
	return a.UserVote == nil || *a.UserVote == *b.UserVote
}
