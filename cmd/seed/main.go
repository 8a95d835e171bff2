package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"github.com/callingitnow/callit/internal/client"
	"github.com/callingitnow/callit/internal/model"
	"github.com/callingitnow/callit/internal/rate"
)

var users = []struct {
	email  string
	handle string
}{
	{"oracle@example.com", "oracle"},
	{"cassandra@example.com", "cassandra"},
	{"nostradamus@example.com", "nostradamus"},
	{"pythia@example.com", "pythia"},
	{"sibyl@example.com", "sibyl"},
}

var predictions = []struct {
	title    string
	content  string
	category string
}{
	{"Fusion power on the grid by 2035", "At least one commercial fusion plant will deliver power to a national grid before 2035.", "Science"},
	{"Rain in London on Saturday", "Light rain all afternoon, clearing by nightfall.", "Weather"},
	{"Underdog takes the cup final", "The team nobody rates wins in extra time.", "Sports"},
	{"Rates cut before summer", "The central bank cuts by a quarter point at the next meeting.", "Economics"},
	{"Smart glasses outsell smartwatches", "Within five years glasses ship more units than watches.", "Technology"},
	{"The sequel beats the original", "Opening weekend box office of the sequel tops the first film.", "Entertainment"},
	{"Remote work stays above 25%", "A quarter of office jobs remain fully remote through the decade.", "Business"},
	{"Turnout breaks the record", "Voter turnout in the next general election exceeds every previous one.", "Politics"},
}

var comments = []string{
	"Bold call. I'll back it if the pilot plant hits its targets.",
	"No chance. The timelines always slip.",
	"Screenshotting this for later.",
	"What's your source on this?",
	"I called this last year, glad someone agrees.",
	"The hash doesn't lie. We'll see who was right.",
	"Interesting reasoning, but I think you're early.",
	"Backed. This one feels inevitable.",
}

type options struct {
	baseURL  string
	password string
	rate     rate.Rule
	seed     int64
}

type summary struct {
	Users       int
	Predictions int
	Comments    int
	Votes       int
	Backings    int
	Groups      int
}

func main() {
	opts := options{}
	flag.StringVar(&opts.baseURL, "url", "http://localhost:8000", "API base URL")
	flag.StringVar(&opts.password, "password", "callit-seed", "Password for every seeded user")
	flag.IntVar(&opts.rate.Limit, "rate", 20, "Max requests per second (0 disables)")
	flag.Int64Var(&opts.seed, "seed", time.Now().UnixNano(), "Random seed")
	flag.Parse()
	opts.rate.Window = time.Second

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	logger.Info("seeding", "url", opts.baseURL)

	sum, err := seed(context.Background(), opts, logger)
	if err != nil {
		logger.Error("seed failed", "err", err)
		os.Exit(1)
	}
	printSummary(os.Stdout, sum, opts.baseURL)
}

func seed(ctx context.Context, opts options, logger *slog.Logger) (summary, error) {
	var sum summary
	rng := rand.New(rand.NewSource(opts.seed))
	limiter := rate.NewMemory()

	var clients []*client.Client
	for _, u := range users {
		c := client.New(opts.baseURL)
		c.Logger = logger
		if opts.rate.Limit > 0 {
			c.Limiter = limiter
			c.LimitRule = opts.rate
		}
		tok, err := c.Register(ctx, u.email, u.handle, opts.password)
		if client.IsConflict(err) || isAlreadyRegistered(err) {
			tok, err = c.Login(ctx, u.email, opts.password)
		}
		if err != nil {
			return sum, fmt.Errorf("register %s: %w", u.handle, err)
		}
		c.Tokens.(*client.MemoryToken).SetToken(tok.AccessToken)
		logger.Info("registered user", "handle", u.handle)
		clients = append(clients, c)
		sum.Users++
	}

	owner := clients[0]
	group, err := owner.CreateGroup(ctx, model.CreateGroupInput{
		Name:        "Forecasters",
		Description: "People who like to be right in public",
		Visibility:  model.GroupPublic,
	})
	if err != nil {
		logger.Warn("create group failed", "err", err)
	} else {
		sum.Groups++
		for _, c := range clients[1:] {
			if rng.Float32() < 0.6 {
				if err := c.JoinGroup(ctx, group.ID); err != nil {
					logger.Warn("join group failed", "err", err)
				}
			}
		}
	}

	type posted struct {
		id     int64
		author int
	}
	var ids []posted
	for i, p := range predictions {
		author := rng.Intn(len(clients))
		in := model.CreatePredictionInput{
			Title:        p.title,
			Content:      p.content,
			Category:     p.category,
			Visibility:   model.VisibilityPublic,
			AllowBacking: i%4 != 3,
		}
		if group.ID != 0 && author == 0 && rng.Float32() < 0.5 {
			in.GroupID = &group.ID
		}
		created, err := clients[author].CreatePrediction(ctx, in)
		if err != nil {
			logger.Warn("post prediction failed", "title", p.title, "err", err)
			continue
		}
		ids = append(ids, posted{id: created.ID, author: author})
		sum.Predictions++
		logger.Info("posted prediction", "id", created.ID, "by", users[author].handle)
	}

	for _, p := range ids {
		n := rng.Intn(4) + 1
		for i := 0; i < n; i++ {
			who := rng.Intn(len(clients))
			c, err := clients[who].PostComment(ctx, p.id, comments[rng.Intn(len(comments))], 0)
			if err != nil {
				logger.Warn("comment failed", "prediction_id", p.id, "err", err)
				continue
			}
			sum.Comments++
			if rng.Float32() < 0.3 {
				replier := rng.Intn(len(clients))
				if _, err := clients[replier].PostComment(ctx, p.id, comments[rng.Intn(len(comments))], c.ID); err != nil {
					logger.Warn("reply failed", "comment_id", c.ID, "err", err)
					continue
				}
				sum.Comments++
			}
			if rng.Float32() < 0.5 {
				if err := clients[rng.Intn(len(clients))].VoteComment(ctx, c.ID, 1); err == nil {
					sum.Votes++
				}
			}
		}
	}

	for i, c := range clients {
		for _, p := range ids {
			if rng.Float32() < 0.5 {
				value := 1
				if rng.Float32() < 0.2 {
					value = -1
				}
				if err := c.VotePrediction(ctx, p.id, value); err == nil {
					sum.Votes++
				}
			}
			if p.author != i && rng.Float32() < 0.3 {
				if err := c.BackPrediction(ctx, p.id); err == nil {
					sum.Backings++
				}
			}
		}
	}
	logger.Info("added votes and backings", "votes", sum.Votes, "backings", sum.Backings)
	return sum, nil
}

func isAlreadyRegistered(err error) bool {
	var apiErr *client.APIError
	return errors.As(err, &apiErr) && apiErr.Status == 400 && apiErr.Detail == "Email already registered"
}

func printSummary(w io.Writer, sum summary, baseURL string) {
	fmt.Fprintln(w, "\n=== Seed Complete ===")
	fmt.Fprintf(w, "Users:       %d\n", sum.Users)
	fmt.Fprintf(w, "Predictions: %d\n", sum.Predictions)
	fmt.Fprintf(w, "Comments:    %d\n", sum.Comments)
	fmt.Fprintf(w, "Votes:       %d\n", sum.Votes)
	fmt.Fprintf(w, "Backings:    %d\n", sum.Backings)
	fmt.Fprintf(w, "Groups:      %d\n", sum.Groups)
	fmt.Fprintln(w, "\nAPI:", baseURL)
}
