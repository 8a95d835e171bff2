package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/callingitnow/callit/internal/model"
)

// ListComments returns the full comment tree of a prediction.
func (c *Client) ListComments(ctx context.Context, predictionID int64, sort model.CommentSort) ([]model.Comment, error) {
	q := url.Values{}
	if sort != "" {
		q.Set("sort", string(sort))
	}
	var tree []model.Comment
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/predictions/%d/comments", predictionID), q, nil, &tree)
	return tree, err
}

// PostComment creates a comment; parentID 0 posts at the top level.
func (c *Client) PostComment(ctx context.Context, predictionID int64, content string, parentID int64) (model.Comment, error) {
	if strings.TrimSpace(content) == "" {
		return model.Comment{}, fmt.Errorf("%w: comment content required", model.ErrInvalidInput)
	}
	body := struct {
		Content         string `json:"content"`
		ParentCommentID *int64 `json:"parent_comment_id"`
	}{Content: content}
	if parentID > 0 {
		body.ParentCommentID = &parentID
	}
	var cm model.Comment
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/predictions/%d/comments", predictionID), nil, body, &cm)
	return cm, err
}

func (c *Client) VoteComment(ctx context.Context, commentID int64, value int) error {
	if err := checkVote(value); err != nil {
		return err
	}
	body := map[string]int{"value": value}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/comments/%d/vote", commentID), nil, body, nil)
}

func (c *Client) DeleteComment(ctx context.Context, commentID int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/comments/%d", commentID), nil, nil, nil)
}
