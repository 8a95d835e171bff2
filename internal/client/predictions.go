package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/callingitnow/callit/internal/model"
)

func (c *Client) ListPredictions(ctx context.Context, params model.ListPredictionsParams) (model.PredictionList, error) {
	q := url.Values{}
	if params.Category != "" {
		q.Set("category", params.Category)
	}
	if params.Sort != "" {
		q.Set("sort", string(params.Sort))
	}
	if params.Page > 0 {
		q.Set("page", strconv.Itoa(params.Page))
	}
	if params.PerPage > 0 {
		q.Set("per_page", strconv.Itoa(params.PerPage))
	}
	if params.UserID > 0 {
		q.Set("user_id", strconv.FormatInt(params.UserID, 10))
	}
	if params.SafeSearch != nil {
		q.Set("safe_search", strconv.FormatBool(*params.SafeSearch))
	}
	var list model.PredictionList
	err := c.do(ctx, http.MethodGet, "/predictions", q, nil, &list)
	return list, err
}

// ListMyPredictions lists the signed-in user's predictions, private ones included.
func (c *Client) ListMyPredictions(ctx context.Context) (model.PredictionList, error) {
	var list model.PredictionList
	err := c.do(ctx, http.MethodGet, "/predictions/my", nil, nil, &list)
	return list, err
}

func (c *Client) GetPrediction(ctx context.Context, id int64) (model.Prediction, error) {
	if err := checkID(id); err != nil {
		return model.Prediction{}, err
	}
	var p model.Prediction
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/predictions/%d", id), nil, nil, &p)
	return p, err
}

func (c *Client) CreatePrediction(ctx context.Context, in model.CreatePredictionInput) (model.Prediction, error) {
	if err := in.Validate(); err != nil {
		return model.Prediction{}, err
	}
	var p model.Prediction
	err := c.do(ctx, http.MethodPost, "/predictions", nil, in, &p)
	return p, err
}

// DeletePrediction deletes a prediction you authored.
func (c *Client) DeletePrediction(ctx context.Context, id int64) error {
	if err := checkID(id); err != nil {
		return err
	}
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/predictions/%d", id), nil, nil, nil)
}

// VotePrediction records value in {-1, 0, 1}; 0 retracts.
func (c *Client) VotePrediction(ctx context.Context, id int64, value int) error {
	if err := checkVote(value); err != nil {
		return err
	}
	body := map[string]int{"value": value}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/predictions/%d/vote", id), nil, body, nil)
}

func (c *Client) BackPrediction(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/predictions/%d/back", id), nil, nil, nil)
}

func (c *Client) UnbackPrediction(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/predictions/%d/back", id), nil, nil, nil)
}

func (c *Client) GetReceipt(ctx context.Context, id int64) (model.Receipt, error) {
	if err := checkID(id); err != nil {
		return model.Receipt{}, err
	}
	var r model.Receipt
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/predictions/%d/receipt", id), nil, nil, &r)
	return r, err
}

func checkVote(value int) error {
	if value < -1 || value > 1 {
		return fmt.Errorf("%w: vote value %d", model.ErrInvalidInput, value)
	}
	return nil
}
