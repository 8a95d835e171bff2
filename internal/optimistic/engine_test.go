package optimistic

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/callingitnow/callit/internal/apitest"
	"github.com/callingitnow/callit/internal/client"
	"github.com/callingitnow/callit/internal/entity"
	"github.com/callingitnow/callit/internal/model"
)

type call struct {
	op    string
	id    int64
	value int
}

type fakeAPI struct {
	mu      sync.Mutex
	calls   []call
	err     error
	gate    chan struct{}
	entered chan struct{}
	fresh   *model.Prediction
}

func (f *fakeAPI) record(op string, id int64, value int) error {
	f.mu.Lock()
	f.calls = append(f.calls, call{op: op, id: id, value: value})
	gate, entered, err := f.gate, f.entered, f.err
	f.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	return err
}

func (f *fakeAPI) VotePrediction(_ context.Context, id int64, value int) error {
	return f.record("vote", id, value)
}

func (f *fakeAPI) BackPrediction(_ context.Context, id int64) error {
	return f.record("back", id, 0)
}

func (f *fakeAPI) VoteComment(_ context.Context, id int64, value int) error {
	return f.record("comment-vote", id, value)
}

func (f *fakeAPI) GetPrediction(_ context.Context, id int64) (model.Prediction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fresh == nil {
		return model.Prediction{}, errors.New("no fresh copy")
	}
	return f.fresh.Clone(), nil
}

func (f *fakeAPI) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeAPI) block() (release func()) {
	f.mu.Lock()
	f.gate = make(chan struct{})
	f.entered = make(chan struct{}, 4)
	gate := f.gate
	f.mu.Unlock()
	return func() { close(gate) }
}

var signedIn = ViewerFunc(func() bool { return true })

func prediction(score int, vote *int) model.Prediction {
	return model.Prediction{ID: 42, Title: "t", VoteScore: score, UserVote: vote, AllowBacking: true, BackingCount: 3}
}

func TestRollbackRestoresExactPriorState(t *testing.T) {
	api := &fakeAPI{err: errors.New("boom")}
	release := api.block()
	eng := New(api, signedIn)
	card := NewCard(prediction(10, nil))

	done := make(chan error, 1)
	go func() { done <- eng.ApplyVote(context.Background(), card, 1) }()

	<-api.entered
	mid := card.Snapshot()
	assert.Equal(t, 11, mid.VoteScore)
	require.NotNil(t, mid.UserVote)
	assert.Equal(t, 1, *mid.UserVote)
	assert.True(t, card.Loading())

	release()
	err := <-done
	var actionErr *ActionError
	require.ErrorAs(t, err, &actionErr)
	assert.Equal(t, BackendRejected, actionErr.Kind)
	assert.Equal(t, MsgVoteFailed, actionErr.Message)

	after := card.Snapshot()
	assert.Equal(t, 10, after.VoteScore)
	assert.Nil(t, after.UserVote)
	assert.False(t, card.Loading())
	assert.Equal(t, MsgVoteFailed, card.Err())
}

func TestNetworkFailureRollsBack(t *testing.T) {
	srv := apitest.New(t)
	author, _ := srv.CreateUser("a@example.com", "alice", "pw")
	_, token := srv.CreateUser("b@example.com", "bob", "pw")
	p := srv.SeedPrediction(author.ID, model.CreatePredictionInput{
		Title: "t", Content: "c", Category: "Other", Visibility: model.VisibilityPublic, AllowBacking: true,
	})
	c := client.New(srv.URL)
	c.Tokens.(*client.MemoryToken).SetToken(token)
	eng := New(c, signedIn)

	srv.Drop(apitest.RouteBackPrediction)
	card := NewCard(p)
	err := eng.ApplyBacking(context.Background(), card)
	var actionErr *ActionError
	require.ErrorAs(t, err, &actionErr)
	assert.Equal(t, NetworkUnavailable, actionErr.Kind)
	assert.Equal(t, p.BackState(), card.Snapshot().BackState())
	assert.Equal(t, MsgBackFailed, card.Err())

	srv.Clear(apitest.RouteBackPrediction)
	require.NoError(t, eng.ApplyBacking(context.Background(), card))
	assert.Equal(t, model.BackState{Backed: true, Count: 1}, card.Snapshot().BackState())
	assert.Empty(t, card.Err())

	srv.Fail(apitest.RouteVotePrediction, http.StatusBadRequest, "Invalid vote")
	err = eng.ApplyVote(context.Background(), card, -1)
	require.ErrorAs(t, err, &actionErr)
	assert.Equal(t, BackendRejected, actionErr.Kind)
	assert.Equal(t, 0, card.Snapshot().VoteScore)
}

func TestVoteToggleIdempotence(t *testing.T) {
	for _, v := range []int{1, -1} {
		api := &fakeAPI{}
		eng := New(api, signedIn)
		card := NewCard(prediction(7, model.NewVote(v)))

		require.NoError(t, eng.ApplyVote(context.Background(), card, v))
		assert.Equal(t, model.VoteState{Score: 7 - v, UserVote: 0}, card.Snapshot().VoteState())

		require.NoError(t, eng.ApplyVote(context.Background(), card, v))
		assert.Equal(t, model.VoteState{Score: 7, UserVote: v}, card.Snapshot().VoteState())

		assert.Equal(t, []call{{"vote", 42, 0}, {"vote", 42, v}}, api.calls)
	}
}

func TestScoreNeverDoubleCounts(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	api := &fakeAPI{}
	eng := New(api, signedIn)
	card := NewCard(prediction(100, model.NewVote(-1)))
	base := 100 - (-1)

	for i := 0; i < 200; i++ {
		req := 1
		if rng.Intn(2) == 0 {
			req = -1
		}
		require.NoError(t, eng.ApplyVote(context.Background(), card, req))
		st := card.Snapshot().VoteState()
		assert.Contains(t, []int{-1, 0, 1}, st.UserVote)
		assert.Equal(t, base+st.UserVote, st.Score, "step %d", i)
	}
}

func TestBackingIsMonotonic(t *testing.T) {
	api := &fakeAPI{}
	eng := New(api, signedIn)
	p := prediction(0, nil)
	p.UserBacked = true
	card := NewCard(p)

	assert.ErrorIs(t, eng.ApplyBacking(context.Background(), card), ErrAlreadyBacked)
	assert.Equal(t, 0, api.count())
	assert.Equal(t, model.BackState{Backed: true, Count: 3}, card.Snapshot().BackState())

	p = prediction(0, nil)
	p.AllowBacking = false
	assert.ErrorIs(t, eng.ApplyBacking(context.Background(), NewCard(p)), ErrBackingDisabled)
	assert.Equal(t, 0, api.count())
}

func TestBackingRollback(t *testing.T) {
	api := &fakeAPI{err: errors.New("nope")}
	release := api.block()
	eng := New(api, signedIn)
	card := NewCard(prediction(0, nil))

	done := make(chan error, 1)
	go func() { done <- eng.ApplyBacking(context.Background(), card) }()
	<-api.entered
	assert.Equal(t, model.BackState{Backed: true, Count: 4}, card.Snapshot().BackState())
	release()
	require.Error(t, <-done)
	assert.Equal(t, model.BackState{Backed: false, Count: 3}, card.Snapshot().BackState())
}

func TestSingleFlight(t *testing.T) {
	api := &fakeAPI{}
	release := api.block()
	eng := New(api, signedIn)
	card := NewCard(prediction(10, nil))
	other := NewCard(prediction(10, nil))

	done := make(chan error, 1)
	go func() { done <- eng.ApplyVote(context.Background(), card, 1) }()
	<-api.entered

	assert.True(t, eng.InFlight(model.PredictionKey(42)))
	assert.ErrorIs(t, eng.ApplyVote(context.Background(), card, 1), ErrRequestInFlight)
	assert.ErrorIs(t, eng.ApplyVote(context.Background(), other, -1), ErrRequestInFlight)
	assert.ErrorIs(t, eng.ApplyBacking(context.Background(), card), ErrRequestInFlight)

	release()
	require.NoError(t, <-done)
	assert.Equal(t, 1, api.count())
	assert.False(t, eng.InFlight(model.PredictionKey(42)))
	assert.Equal(t, 11, card.Snapshot().VoteScore)
}

func TestSignedOutActionsAreSuppressed(t *testing.T) {
	api := &fakeAPI{}
	eng := New(api, ViewerFunc(func() bool { return false }))
	card := NewCard(prediction(10, nil))

	assert.ErrorIs(t, eng.ApplyVote(context.Background(), card, 1), ErrNotAuthenticated)
	assert.ErrorIs(t, eng.ApplyBacking(context.Background(), card), ErrNotAuthenticated)
	assert.ErrorIs(t, eng.ApplyVote(context.Background(), card, 0), ErrInvalidVote)
	assert.Equal(t, 0, api.count())
	assert.Equal(t, 10, card.Snapshot().VoteScore)
}

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	tests := []struct {
		kind ActionKind
		want Mode
	}{
		{ActionPredictionVote, Optimistic},
		{ActionPredictionBack, Optimistic},
		{ActionCommentVote, Confirmed},
		{ActionCommentPost, Confirmed},
		{ActionCommentDelete, Confirmed},
		{ActionGroupJoin, Confirmed},
		{ActionGroupLeave, Confirmed},
		{ActionKind("unknown"), Confirmed},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.want, p.Mode(tt.kind))
		})
	}
}

func TestConfirmedPolicyWaitsForServer(t *testing.T) {
	api := &fakeAPI{}
	release := api.block()
	eng := New(api, signedIn, WithPolicy(Policy{ActionPredictionVote: Confirmed}))
	card := NewCard(prediction(10, nil))

	done := make(chan error, 1)
	go func() { done <- eng.ApplyVote(context.Background(), card, 1) }()
	<-api.entered
	assert.Equal(t, 10, card.Snapshot().VoteScore)
	release()
	require.NoError(t, <-done)
	assert.Equal(t, 11, card.Snapshot().VoteScore)
}

func TestTrackedCardsShareWrites(t *testing.T) {
	store, err := entity.New[model.Prediction](16)
	require.NoError(t, err)
	api := &fakeAPI{err: errors.New("down")}
	release := api.block()
	eng := New(api, signedIn, WithEntities(store))

	feed := NewCard(prediction(10, nil))
	detail := NewCard(prediction(10, nil))
	eng.Track(feed)
	eng.Track(detail)
	defer feed.Close()
	defer detail.Close()

	var seen []int
	detail.OnChange(func(p model.Prediction) { seen = append(seen, p.VoteScore) })

	done := make(chan error, 1)
	go func() { done <- eng.ApplyVote(context.Background(), feed, 1) }()
	<-api.entered
	assert.Equal(t, 11, detail.Snapshot().VoteScore)
	release()
	require.Error(t, <-done)
	assert.Equal(t, 10, detail.Snapshot().VoteScore)
	assert.Nil(t, detail.Snapshot().UserVote)
	assert.Equal(t, []int{11, 10}, seen)
}

func TestTrackedFreshCardWins(t *testing.T) {
	store, err := entity.New[model.Prediction](16)
	require.NoError(t, err)
	api := &fakeAPI{}
	eng := New(api, signedIn, WithEntities(store))

	stale := NewCard(prediction(10, nil))
	eng.Track(stale)
	defer stale.Close()
	fresh := NewCard(prediction(15, model.NewVote(1)))
	eng.Track(fresh)
	defer fresh.Close()

	got := fresh.Snapshot()
	assert.Equal(t, 15, got.VoteScore)
	require.NotNil(t, got.UserVote)
	assert.Equal(t, 1, *got.UserVote)
	assert.Equal(t, 15, stale.Snapshot().VoteScore, "older view picks up the fresh fetch")

	require.NoError(t, eng.ApplyVote(context.Background(), fresh, 1))
	require.Len(t, api.calls, 1)
	assert.Equal(t, 0, api.calls[0].value, "pressing the held vote retracts it")
	assert.Equal(t, model.VoteState{Score: 14, UserVote: 0}, fresh.Snapshot().VoteState())
}

func TestTrackDuringPendingWriteKeepsOptimisticState(t *testing.T) {
	store, err := entity.New[model.Prediction](16)
	require.NoError(t, err)
	api := &fakeAPI{}
	release := api.block()
	eng := New(api, signedIn, WithEntities(store))

	feed := NewCard(prediction(10, nil))
	eng.Track(feed)
	defer feed.Close()

	done := make(chan error, 1)
	go func() { done <- eng.ApplyVote(context.Background(), feed, 1) }()
	<-api.entered

	late := NewCard(prediction(10, nil))
	eng.Track(late)
	defer late.Close()
	assert.Equal(t, 11, late.Snapshot().VoteScore)
	assert.Equal(t, 11, feed.Snapshot().VoteScore)

	release()
	require.NoError(t, <-done)
	assert.Equal(t, 11, late.Snapshot().VoteScore)
}

func TestRefetchReplacesCard(t *testing.T) {
	fresh := prediction(50, model.NewVote(1))
	api := &fakeAPI{fresh: &fresh}
	eng := New(api, signedIn, WithRefetch(true))
	card := NewCard(prediction(10, nil))

	require.NoError(t, eng.ApplyVote(context.Background(), card, 1))
	assert.Equal(t, 50, card.Snapshot().VoteScore)
}

func TestVoteCommentModes(t *testing.T) {
	c := model.Comment{ID: 9, VoteScore: 2, UserVote: model.NewVote(1)}

	api := &fakeAPI{}
	eng := New(api, signedIn)
	applied := 0
	require.NoError(t, eng.VoteComment(context.Background(), c, 1, func(model.VoteState) { applied++ }))
	assert.Equal(t, 0, applied, "confirmed comment votes leave state to the reload")
	assert.Equal(t, []call{{"comment-vote", 9, 0}}, api.calls)

	api = &fakeAPI{err: errors.New("x")}
	eng = New(api, signedIn, WithPolicy(Policy{ActionCommentVote: Optimistic}))
	var states []model.VoteState
	err := eng.VoteComment(context.Background(), c, -1, func(s model.VoteState) { states = append(states, s) })
	var actionErr *ActionError
	require.ErrorAs(t, err, &actionErr)
	assert.Equal(t, MsgCommentVoteFailed, actionErr.Message)
	assert.Equal(t, []model.VoteState{{Score: 0, UserVote: -1}, {Score: 2, UserVote: 1}}, states)
}

func TestNextVote(t *testing.T) {
	tests := []struct {
		prev model.VoteState
		req  int
		want model.VoteState
	}{
		{model.VoteState{Score: 10}, 1, model.VoteState{Score: 11, UserVote: 1}},
		{model.VoteState{Score: 11, UserVote: 1}, 1, model.VoteState{Score: 10}},
		{model.VoteState{Score: 11, UserVote: 1}, -1, model.VoteState{Score: 9, UserVote: -1}},
		{model.VoteState{Score: -3, UserVote: -1}, -1, model.VoteState{Score: -2}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NextVote(tt.prev, tt.req))
	}
}
