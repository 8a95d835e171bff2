package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/callingitnow/callit/internal/apitest"
	"github.com/callingitnow/callit/internal/model"
)

type cli struct {
	t   *testing.T
	srv *apitest.Server
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	srv := apitest.New(t)
	t.Setenv("CALLIT_HOME", t.TempDir())
	t.Setenv("CALLIT_API_URL", srv.URL)
	return &cli{t: t, srv: srv}
}

func (c *cli) run(stdin string, args ...string) (string, error) {
	c.t.Helper()
	var out, errOut bytes.Buffer
	err := run(context.Background(), args, &out, &errOut, strings.NewReader(stdin))
	return out.String(), err
}

func (c *cli) must(stdin string, args ...string) string {
	c.t.Helper()
	out, err := c.run(stdin, args...)
	require.NoError(c.t, err, "callit %s", strings.Join(args, " "))
	return out
}

func TestAccountFlow(t *testing.T) {
	c := newCLI(t)

	out := c.must("", "whoami")
	assert.Contains(t, out, "Not signed in")

	out = c.must("pw\n", "register", "--email", "a@example.com", "--handle", "alice")
	assert.Contains(t, out, "Welcome, @alice!")

	out = c.must("", "whoami")
	assert.Contains(t, out, "@alice <a@example.com>")

	out = c.must("", "logout")
	assert.Contains(t, out, "Signed out.")
	assert.Contains(t, c.must("", "whoami"), "Not signed in")

	_, err := c.run("wrong\n", "login", "--email", "a@example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "login failed")

	out = c.must("a@example.com\npw\n", "login")
	assert.Contains(t, out, "Signed in as @alice (profile default)")

	out = c.must("", "use", "work")
	assert.Contains(t, out, "Switched to work (signed out)")
	out = c.must("", "profiles")
	assert.Contains(t, out, "  default")
	assert.Contains(t, out, "@alice")
}

func TestPredictionFlow(t *testing.T) {
	c := newCLI(t)
	c.must("pw\n", "register", "--email", "a@example.com", "--handle", "alice")

	out := c.must("It will rain in Zürich\n", "post", "--title", "Rain tomorrow", "--category", "weather")
	assert.Contains(t, out, "Called it! Prediction #")

	p, _ := c.srv.Prediction(firstPredictionID(t, c), 0)
	assert.Equal(t, "Weather", p.Category)
	id := itoa(p.ID)

	out = c.must("", "feed")
	assert.Contains(t, out, "Rain tomorrow")
	assert.Contains(t, out, "@alice")

	out = c.must("", "vote", id, "--up")
	assert.Contains(t, out, "score +1 ▲")
	out = c.must("", "vote", id, "--up")
	assert.Contains(t, out, "score +0")

	_, err := c.run("", "vote", id)
	assert.Error(t, err)

	_, err = c.run("", "back", id)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Cannot back your own prediction")

	dir := t.TempDir()
	out = c.must("", "receipt", id, "--utc", "--verify", "--png", dir)
	assert.Contains(t, out, "User: @alice")
	assert.Contains(t, out, "Hash verified")
	_, err = os.Stat(filepath.Join(dir, "rain-tomorrow-receipt.png"))
	assert.NoError(t, err)

	out = c.must("", "show", id)
	assert.Contains(t, out, "It will rain in Zürich")
	assert.Contains(t, out, "No comments yet")

	_, err = c.run("", "show", "999")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prediction not found")

	out = c.must("", "delete", id, "--yes")
	assert.Contains(t, out, "Deleted prediction")
}

func TestBackingFlow(t *testing.T) {
	c := newCLI(t)
	author, _ := c.srv.CreateUser("b@example.com", "bob", "pw")
	p := c.srv.SeedPrediction(author.ID, model.CreatePredictionInput{
		Title: "t", Content: "c", Category: "Other", Visibility: model.VisibilityPublic, AllowBacking: true,
	})
	c.must("pw\n", "register", "--email", "a@example.com", "--handle", "alice")
	id := itoa(p.ID)

	assert.Contains(t, c.must("", "back", id), "Backed #"+id+" (1 backers)")
	assert.Contains(t, c.must("", "back", id), "You already back")
	assert.Equal(t, 1, c.srv.Calls(apitest.RouteBackPrediction))
	assert.Contains(t, c.must("", "unback", id), "(0 backers)")
}

func TestCommentFlow(t *testing.T) {
	c := newCLI(t)
	c.must("pw\n", "register", "--email", "a@example.com", "--handle", "alice")
	c.must("", "post", "--title", "t", "--content", "c")
	id := itoa(firstPredictionID(t, c))

	out := c.must("", "comment", id, "--content", "first!")
	assert.Contains(t, out, "Commented on prediction")
	assert.Contains(t, out, "first!")

	out = c.must("", "show", id)
	assert.Contains(t, out, "[delete]")

	cid := commentID(t, c, firstPredictionID(t, c))
	out = c.must("", "comment", id, "--parent", cid, "--content", "reply")
	assert.Contains(t, out, "Replied to comment #"+cid)

	out = c.must("", "comment-vote", cid, "--prediction", id, "--down")
	assert.Contains(t, out, "score -1 ▼")

	entered, release := c.srv.Block(apitest.RouteVoteComment)
	type result struct {
		out string
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := c.run("", "comment-vote", cid, "--prediction", id, "--up")
		done <- result{out, err}
	}()
	<-entered
	c.srv.Fail(apitest.RouteListComments, 500, "")
	release()
	res := <-done
	require.Error(t, res.err)
	assert.Contains(t, res.out, "Vote recorded on comment #"+cid)
	assert.Equal(t, "Failed to load comments.", res.err.Error())
	c.srv.Clear(apitest.RouteListComments)

	c.srv.Fail(apitest.RoutePostComment, 500, "")
	_, err := c.run("", "comment", id, "--content", "lost?")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Failed to post comment. (draft saved)")
	c.srv.Clear(apitest.RoutePostComment)
	out = c.must("", "comment", id)
	assert.Contains(t, out, "Posting saved draft.")
	assert.Contains(t, out, "lost?")

	out = c.must("n\n", "comment-delete", cid, "--prediction", id)
	assert.Contains(t, out, "Cancelled.")
	out = c.must("y\n", "comment-delete", cid, "--prediction", id)
	assert.Contains(t, out, "Deleted comment #"+cid)
}

func TestGroupsFlow(t *testing.T) {
	c := newCLI(t)
	owner, _ := c.srv.CreateUser("b@example.com", "bob", "pw")
	g := c.srv.SeedGroup(owner.ID, model.CreateGroupInput{Name: "Forecasters", Description: "d", Visibility: model.GroupPublic})
	c.must("pw\n", "register", "--email", "a@example.com", "--handle", "alice")
	gid := itoa(g.ID)

	assert.Contains(t, c.must("", "groups", "list"), "Forecasters")
	out := c.must("", "groups", "join", gid)
	assert.Contains(t, out, "Forecasters (member)")
	assert.Contains(t, out, "2 members")
	assert.Contains(t, c.must("", "groups", "show", gid), "No predictions found.")
	out = c.must("", "groups", "leave", gid)
	assert.Contains(t, out, "1 members")

	_, err := c.run("", "groups", "delete", gid, "--yes")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only the owner")

	out = c.must("", "groups", "create", "--name", "Mine", "--description", "x", "--visibility", "secret")
	assert.Contains(t, out, "Created group #")
}

func TestSettings(t *testing.T) {
	c := newCLI(t)
	assert.Contains(t, c.must("", "settings"), "show-profanity: false")
	assert.Contains(t, c.must("", "settings", "--show-profanity"), "Settings saved.")
	assert.Contains(t, c.must("", "settings"), "show-profanity: true")
}

func firstPredictionID(t *testing.T, c *cli) int64 {
	t.Helper()
	for id := int64(1); id < 100; id++ {
		if _, ok := c.srv.Prediction(id, 0); ok {
			return id
		}
	}
	t.Fatal("no prediction stored")
	return 0
}

func commentID(t *testing.T, c *cli, predictionID int64) string {
	t.Helper()
	out := c.must("", "show", itoa(predictionID))
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "#") && strings.Contains(line, "@") {
			return strings.TrimPrefix(strings.Fields(line)[0], "#")
		}
	}
	t.Fatal("no comment rendered")
	return ""
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
