package model

import "time"

type Comment struct {
	ID              int64     `json:"comment_id"`
	PredictionID    int64     `json:"prediction_id"`
	User            User      `json:"user"`
	ParentCommentID *int64    `json:"parent_comment_id"`
	Content         string    `json:"content"`
	Timestamp       Timestamp `json:"timestamp"`
	VoteScore       int       `json:"vote_score"`
	UserVote        *int      `json:"user_vote"`
	Replies         []Comment `json:"replies"`
}

func (c Comment) EntityKey() Key { return CommentKey(c.ID) }

func (c Comment) VoteState() VoteState {
	return VoteState{Score: c.VoteScore, UserVote: voteValue(c.UserVote)}
}

func (c Comment) AuthorID() int64 { return c.User.ID }

func (c Comment) AuthorHandle() string { return c.User.Handle }

func (c Comment) CreatedAt() time.Time { return c.Timestamp.Time }

// CloneTree deep-copies a comment forest.
func CloneTree(roots []Comment) []Comment {
	if roots == nil {
		return nil
	}
	out := make([]Comment, len(roots))
	for i, c := range roots {
		c.UserVote = cloneVote(c.UserVote)
		if c.ParentCommentID != nil {
			p := *c.ParentCommentID
			c.ParentCommentID = &p
		}
		c.Replies = CloneTree(c.Replies)
		out[i] = c
	}
	return out
}

// CountTree returns the number of comments in the forest.
func CountTree(roots []Comment) int {
	n := 0
	stack := make([]Comment, 0, len(roots))
	stack = append(stack, roots...)
	for len(stack) > 0 {
		c := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n++
		stack = append(stack, c.Replies...)
	}
	return n
}

// FindComment returns a pointer into roots for the comment with the given id.
func FindComment(roots []Comment, id int64) *Comment {
	stack := make([]*Comment, 0, len(roots))
	for i := range roots {
		stack = append(stack, &roots[i])
	}
	for len(stack) > 0 {
		c := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if c.ID == id {
			return c
		}
		for i := range c.Replies {
			stack = append(stack, &c.Replies[i])
		}
	}
	return nil
}
