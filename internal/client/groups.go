package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/callingitnow/callit/internal/model"
)

func (c *Client) ListGroups(ctx context.Context) ([]model.Group, error) {
	var groups []model.Group
	err := c.do(ctx, http.MethodGet, "/groups", nil, nil, &groups)
	return groups, err
}

func (c *Client) GetGroup(ctx context.Context, id int64) (model.Group, error) {
	if err := checkID(id); err != nil {
		return model.Group{}, err
	}
	var g model.Group
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/groups/%d", id), nil, nil, &g)
	return g, err
}

func (c *Client) CreateGroup(ctx context.Context, in model.CreateGroupInput) (model.Group, error) {
	if err := in.Validate(); err != nil {
		return model.Group{}, err
	}
	var g model.Group
	err := c.do(ctx, http.MethodPost, "/groups", nil, in, &g)
	return g, err
}

// DeleteGroup is owner-only.
func (c *Client) DeleteGroup(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/groups/%d", id), nil, nil, nil)
}

func (c *Client) JoinGroup(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/groups/%d/join", id), nil, nil, nil)
}

func (c *Client) LeaveGroup(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/groups/%d/leave", id), nil, nil, nil)
}

func (c *Client) ListGroupPredictions(ctx context.Context, id int64) (model.PredictionList, error) {
	var list model.PredictionList
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/groups/%d/predictions", id), nil, nil, &list)
	return list, err
}
