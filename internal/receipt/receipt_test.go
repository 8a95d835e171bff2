package receipt

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/callingitnow/callit/internal/apitest"
	"github.com/callingitnow/callit/internal/client"
	"github.com/callingitnow/callit/internal/model"
)

func TestSlug(t *testing.T) {
	tests := []struct {
		title, want string
	}{
		{"Rain tomorrow", "rain-tomorrow"},
		{"  BTC hits $100k!! ", "btc-hits-100k"},
		{"a -- b", "a-b"},
		{"Zürich wins", "zrich-wins"},
		{"???", ""},
		{"snake_case stays", "snake_case-stays"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Slug(tt.title), tt.title)
	}
	assert.Equal(t, "rain-tomorrow-receipt.png", FileName("Rain tomorrow"))
	assert.Equal(t, "prediction-receipt.png", FileName("!!!"))
}

func TestFetchAndRender(t *testing.T) {
	srv := apitest.New(t)
	srv.SetClock(func() time.Time { return time.Date(2024, 3, 1, 12, 30, 45, 0, time.UTC) })
	user, token := srv.CreateUser("a@example.com", "alice", "pw")
	p := srv.SeedPrediction(user.ID, model.CreatePredictionInput{
		Title: "Rain tomorrow", Content: "It will rain", Category: "Weather", Visibility: model.VisibilityPublic,
	})
	c := client.New(srv.URL)
	c.Tokens.(*client.MemoryToken).SetToken(token)

	r, err := Fetch(context.Background(), c, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://callingitnow.com/predictions/"+jsonID(p.ID), r.VerificationURL)

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, r, Options{Location: time.UTC}))
	out := buf.String()
	assert.Contains(t, out, "Rain tomorrow")
	assert.Contains(t, out, "Timestamp: March 1, 2024 at 12:30:45 PM UTC")
	assert.Contains(t, out, "User: @alice")
	assert.Contains(t, out, "Hash (SHA-256): "+p.Hash)
	assert.Contains(t, out, "█")

	buf.Reset()
	require.NoError(t, Render(&buf, r, Options{Location: time.UTC, NoQR: true}))
	assert.NotContains(t, buf.String(), "█")

	srv.Fail(apitest.RouteReceipt, http.StatusNotFound, "Prediction not found")
	_, err = Fetch(context.Background(), c, p.ID)
	assert.True(t, client.IsNotFound(err))
}

func jsonID(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}

func TestWritePNG(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	path, err := WritePNG(dir, model.Receipt{Title: "Rain tomorrow", VerificationURL: "https://callingitnow.com/predictions/1"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "rain-tomorrow-receipt.png"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("\x89PNG")))

	_, err = WritePNG(dir, model.Receipt{Title: "x"})
	assert.Error(t, err)
}

func TestVerify(t *testing.T) {
	const raw = `{"prediction_id":1,"user_id":7,"title":"Rain tomorrow",` +
		`"content":"It will rain in Zürich \"soon\"","timestamp":"2024-03-01T12:30:45.123456",` +
		`"hash":"33343830afefa8a2a672cbd1d5dd30eb5f8418b0b4eac74a4962a7914cca3e74"}`
	var p model.Prediction
	require.NoError(t, json.Unmarshal([]byte(raw), &p))
	require.NoError(t, Verify(p))

	p.Content += "!"
	assert.ErrorIs(t, Verify(p), ErrHashMismatch)

	p.Hash = ""
	assert.Error(t, Verify(p))
}
