package model

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeHashMatchesBackend(t *testing.T) {
	tests := []struct {
		name    string
		userID  int64
		title   string
		content string
		ts      string
		want    string
	}{
		{
			name:    "latin1 and quotes",
			userID:  7,
			title:   "Rain tomorrow",
			content: `It will rain in Zürich "soon"`,
			ts:      "2024-03-01T12:30:45.123456",
			want:    "33343830afefa8a2a672cbd1d5dd30eb5f8418b0b4eac74a4962a7914cca3e74",
		},
		{
			name:    "astral plane",
			userID:  1,
			title:   "t",
			content: "emoji 😀",
			ts:      "2024-01-01T00:00:00",
			want:    "57e55bf51bea2991d1964bd49f2786377eaa1c1eb00da789a2695fd06f084ed4",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComputeHash(tt.userID, tt.title, tt.content, tt.ts))
		})
	}
}

func TestVerifyHashUsesRawTimestamp(t *testing.T) {
	var p Prediction
	body := `{"prediction_id":3,"user_id":7,"title":"Rain tomorrow",
		"content":"It will rain in Zürich \"soon\"","timestamp":"2024-03-01T12:30:45.123456",
		"hash":"33343830afefa8a2a672cbd1d5dd30eb5f8418b0b4eac74a4962a7914cca3e74"}`
	require.NoError(t, json.Unmarshal([]byte(body), &p))
	assert.True(t, VerifyHash(p))

	p.Content = "edited"
	assert.False(t, VerifyHash(p))
}

func TestTimestampRoundTripKeepsRaw(t *testing.T) {
	var ts Timestamp
	require.NoError(t, json.Unmarshal([]byte(`"2024-03-01T12:30:45.123456"`), &ts))
	assert.Equal(t, 2024, ts.Year())
	assert.Equal(t, 123456000, ts.Nanosecond())

	out, err := json.Marshal(ts)
	require.NoError(t, err)
	assert.Equal(t, `"2024-03-01T12:30:45.123456"`, string(out))

	require.NoError(t, json.Unmarshal([]byte(`null`), &ts))
	assert.True(t, ts.IsZero())

	assert.Error(t, json.Unmarshal([]byte(`"yesterday"`), &ts))
}

func TestNewTimestampFormat(t *testing.T) {
	ts := NewTimestamp(time.Date(2024, 5, 6, 7, 8, 9, 10_000, time.UTC))
	assert.Equal(t, "2024-05-06T07:08:09.000010", ts.Raw)

	ts = NewTimestamp(time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC))
	assert.Equal(t, "2024-05-06T07:08:09", ts.Raw)
}

func TestVoteStateNormalisesMissingVote(t *testing.T) {
	p := Prediction{ID: 1, VoteScore: 10}
	assert.Equal(t, VoteState{Score: 10, UserVote: 0}, p.VoteState())

	p.UserVote = NewVote(-1)
	assert.Equal(t, VoteState{Score: 10, UserVote: -1}, p.VoteState())
	assert.Equal(t, "prediction:1", p.EntityKey().String())
}

func TestCreatePredictionInputValidate(t *testing.T) {
	valid := CreatePredictionInput{Title: "t", Content: "c", Category: "Sports", Visibility: VisibilityPublic}
	require.NoError(t, valid.Validate())

	long := make([]rune, 121)
	for i := range long {
		long[i] = 'x'
	}
	cases := map[string]CreatePredictionInput{
		"empty title":  {Content: "c", Category: "x", Visibility: VisibilityPublic},
		"long title":   {Title: string(long), Content: "c", Category: "x", Visibility: VisibilityPublic},
		"no content":   {Title: "t", Category: "x", Visibility: VisibilityPublic},
		"no category":  {Title: "t", Content: "c", Visibility: VisibilityPublic},
		"bad visiblty": {Title: "t", Content: "c", Category: "x", Visibility: "secret"},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			assert.True(t, errors.Is(in.Validate(), ErrInvalidInput))
		})
	}
}

func TestCommentTreeHelpers(t *testing.T) {
	parent := int64(1)
	roots := []Comment{{
		ID: 1,
		Replies: []Comment{
			{ID: 2, ParentCommentID: &parent, UserVote: NewVote(1)},
			{ID: 3, ParentCommentID: &parent, Replies: []Comment{{ID: 4}}},
		},
	}}
	assert.Equal(t, 4, CountTree(roots))
	require.NotNil(t, FindComment(roots, 4))
	assert.Nil(t, FindComment(roots, 9))

	clone := CloneTree(roots)
	*clone[0].Replies[0].UserVote = -1
	*clone[0].Replies[0].ParentCommentID = 99
	assert.Equal(t, 1, *roots[0].Replies[0].UserVote)
	assert.Equal(t, int64(1), *roots[0].Replies[0].ParentCommentID)
}

func TestNormalizeCategory(t *testing.T) {
	assert.Equal(t, "Technology", NormalizeCategory(" technology "))
	assert.Equal(t, "Gardening", NormalizeCategory("Gardening"))
}
