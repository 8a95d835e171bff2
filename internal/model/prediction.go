package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrInvalidInput = errors.New("invalid input")

// Prediction is a "call": a user-authored claim about a future event.
type Prediction struct {
	ID           int64      `json:"prediction_id"`
	UserID       int64      `json:"user_id"`
	Title        string     `json:"title"`
	Content      string     `json:"content"`
	Category     string     `json:"category"`
	Visibility   Visibility `json:"visibility"`
	AllowBacking bool       `json:"allow_backing"`
	Timestamp    Timestamp  `json:"timestamp"`
	Hash         string     `json:"hash"`
	User         User       `json:"user"`
	VoteScore    int        `json:"vote_score"`
	BackingCount int        `json:"backing_count"`
	CommentCount int        `json:"comment_count"`
	UserVote     *int       `json:"user_vote,omitempty"`
	UserBacked   bool       `json:"user_backed"`
	GroupID      *int64     `json:"group_id,omitempty"`
}

func (p Prediction) EntityKey() Key { return PredictionKey(p.ID) }

func (p Prediction) VoteState() VoteState {
	return VoteState{Score: p.VoteScore, UserVote: voteValue(p.UserVote)}
}

func (p Prediction) BackState() BackState {
	return BackState{Backed: p.UserBacked, Count: p.BackingCount}
}

func (p Prediction) AuthorHandle() string { return p.User.Handle }

func (p Prediction) CreatedAt() time.Time { return p.Timestamp.Time }

// Clone returns a copy that shares no pointers with p.
func (p Prediction) Clone() Prediction {
	p.UserVote = cloneVote(p.UserVote)
	if p.GroupID != nil {
		g := *p.GroupID
		p.GroupID = &g
	}
	return p
}

type PredictionList struct {
	Predictions []Prediction `json:"predictions"`
	Total       int          `json:"total"`
	Page        int          `json:"page"`
	PerPage     int          `json:"per_page"`
}

type ListPredictionsParams struct {
	Category   string
	Sort       PredictionSort
	Page       int
	PerPage    int
	UserID     int64
	SafeSearch *bool
}

type CreatePredictionInput struct {
	Title        string     `json:"title"`
	Content      string     `json:"content"`
	Category     string     `json:"category"`
	Visibility   Visibility `json:"visibility"`
	AllowBacking bool       `json:"allow_backing"`
	GroupID      *int64     `json:"group_id,omitempty"`
}

func (in CreatePredictionInput) Validate() error {
	title := strings.TrimSpace(in.Title)
	if title == "" || len([]rune(title)) > 120 {
		return fmt.Errorf("%w: title must be 1-120 chars", ErrInvalidInput)
	}
	if strings.TrimSpace(in.Content) == "" {
		return fmt.Errorf("%w: content required", ErrInvalidInput)
	}
	category := strings.TrimSpace(in.Category)
	if category == "" || len(category) > 50 {
		return fmt.Errorf("%w: category must be 1-50 chars", ErrInvalidInput)
	}
	if !in.Visibility.Valid() {
		return fmt.Errorf("%w: visibility must be public or private", ErrInvalidInput)
	}
	return nil
}

// NewVote returns a pointer suitable for the UserVote fields.
func NewVote(v int) *int {
	return &v
}

func voteValue(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

func cloneVote(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
