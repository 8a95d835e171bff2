// Package apitest runs an in-process fake of the calling-it-now backend for
// package tests. It keeps state in memory and lets tests inject failures,
// hold requests in flight and count calls per route.
package apitest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/callingitnow/callit/internal/model"
	"github.com/callingitnow/callit/internal/rate"
)

// Route names, "METHOD pattern".
const (
	RouteLogin              = "POST /auth/login"
	RouteRegister           = "POST /auth/register"
	RouteMe                 = "GET /auth/me"
	RouteListPredictions    = "GET /predictions"
	RouteMyPredictions      = "GET /predictions/my"
	RouteGetPrediction      = "GET /predictions/{id}"
	RouteCreatePrediction   = "POST /predictions"
	RouteDeletePrediction   = "DELETE /predictions/{id}"
	RouteVotePrediction     = "POST /predictions/{id}/vote"
	RouteBackPrediction     = "POST /predictions/{id}/back"
	RouteUnbackPrediction   = "DELETE /predictions/{id}/back"
	RouteReceipt            = "GET /predictions/{id}/receipt"
	RouteListComments       = "GET /predictions/{id}/comments"
	RoutePostComment        = "POST /predictions/{id}/comments"
	RouteVoteComment        = "POST /comments/{id}/vote"
	RouteDeleteComment      = "DELETE /comments/{id}"
	RouteListGroups         = "GET /groups"
	RouteCreateGroup        = "POST /groups"
	RouteGetGroup           = "GET /groups/{id}"
	RouteDeleteGroup        = "DELETE /groups/{id}"
	RouteJoinGroup          = "POST /groups/{id}/join"
	RouteLeaveGroup         = "POST /groups/{id}/leave"
	RouteGroupPredictions   = "GET /groups/{id}/predictions"
	DefaultVerifyURLPattern = "https://callingitnow.com/predictions/%d"
)

type fakeUser struct {
	model.User
	password string
}

type voteKey struct {
	kind   model.EntityKind
	id     int64
	userID int64
}

type fault struct {
	status int
	detail string
	drop   bool
}

type gate struct {
	release chan struct{}
	entered chan struct{}
}

type Server struct {
	*httptest.Server

	// VerifyURLPattern formats a prediction id into its public URL.
	VerifyURLPattern string

	mu          sync.Mutex
	now         func() time.Time
	nextID      int64
	users       map[int64]*fakeUser
	tokens      map[string]int64
	predictions map[int64]*model.Prediction
	comments    map[int64]*model.Comment
	commentSeq  []int64
	groups      map[int64]*model.Group
	members     map[[2]int64]bool
	votes       map[voteKey]int
	backings    map[[2]int64]bool
	faults      map[string]fault
	gates       map[string]*gate
	calls       map[string]int
	limiter     rate.Limiter
	limitRule   rate.Rule
}

// New starts a fake backend that is closed when t finishes.
func New(t testing.TB) *Server {
	t.Helper()
	s := NewUnstarted()
	s.Start()
	t.Cleanup(s.Close)
	return s
}

// NewUnstarted builds the fake without listening; call Start.
func NewUnstarted() *Server {
	s := &Server{
		VerifyURLPattern: DefaultVerifyURLPattern,
		now:              time.Now,
		users:            make(map[int64]*fakeUser),
		tokens:           make(map[string]int64),
		predictions:      make(map[int64]*model.Prediction),
		comments:         make(map[int64]*model.Comment),
		groups:           make(map[int64]*model.Group),
		members:          make(map[[2]int64]bool),
		votes:            make(map[voteKey]int),
		backings:         make(map[[2]int64]bool),
		faults:           make(map[string]fault),
		gates:            make(map[string]*gate),
		calls:            make(map[string]int),
		limiter:          rate.NewMemory(),
	}
	s.Server = httptest.NewUnstartedServer(s.routes())
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/auth/login", s.handle(RouteLogin, s.handleLogin))
	r.Post("/auth/register", s.handle(RouteRegister, s.handleRegister))
	r.Get("/auth/me", s.handle(RouteMe, s.handleMe))

	r.Get("/predictions", s.handle(RouteListPredictions, s.handleListPredictions))
	r.Post("/predictions", s.handle(RouteCreatePrediction, s.handleCreatePrediction))
	r.Get("/predictions/my", s.handle(RouteMyPredictions, s.handleMyPredictions))
	r.Get("/predictions/{id}", s.handle(RouteGetPrediction, s.handleGetPrediction))
	r.Delete("/predictions/{id}", s.handle(RouteDeletePrediction, s.handleDeletePrediction))
	r.Post("/predictions/{id}/vote", s.handle(RouteVotePrediction, s.handleVotePrediction))
	r.Post("/predictions/{id}/back", s.handle(RouteBackPrediction, s.handleBack))
	r.Delete("/predictions/{id}/back", s.handle(RouteUnbackPrediction, s.handleUnback))
	r.Get("/predictions/{id}/receipt", s.handle(RouteReceipt, s.handleReceipt))
	r.Get("/predictions/{id}/comments", s.handle(RouteListComments, s.handleListComments))
	r.Post("/predictions/{id}/comments", s.handle(RoutePostComment, s.handlePostComment))

	r.Post("/comments/{id}/vote", s.handle(RouteVoteComment, s.handleVoteComment))
	r.Delete("/comments/{id}", s.handle(RouteDeleteComment, s.handleDeleteComment))

	r.Get("/groups", s.handle(RouteListGroups, s.handleListGroups))
	r.Post("/groups", s.handle(RouteCreateGroup, s.handleCreateGroup))
	r.Get("/groups/{id}", s.handle(RouteGetGroup, s.handleGetGroup))
	r.Delete("/groups/{id}", s.handle(RouteDeleteGroup, s.handleDeleteGroup))
	r.Post("/groups/{id}/join", s.handle(RouteJoinGroup, s.handleJoinGroup))
	r.Post("/groups/{id}/leave", s.handle(RouteLeaveGroup, s.handleLeaveGroup))
	r.Get("/groups/{id}/predictions", s.handle(RouteGroupPredictions, s.handleGroupPredictions))
	return r
}

// handle wraps h with call counting, request gates, fault injection and the
// write rate limit.
func (s *Server) handle(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls[route]++
		g := s.gates[route]
		s.mu.Unlock()

		if g != nil {
			select {
			case g.entered <- struct{}{}:
			default:
			}
			select {
			case <-g.release:
			case <-r.Context().Done():
				return
			}
		}

		s.mu.Lock()
		f, failing := s.faults[route]
		s.mu.Unlock()
		if failing {
			if f.drop {
				dropConnection(w)
				return
			}
			writeError(w, f.status, f.detail)
			return
		}

		if r.Method != http.MethodGet && !s.allowRateLimit(w, r) {
			return
		}
		h(w, r)
	}
}

// Fail makes every request to route answer status with detail until Clear.
func (s *Server) Fail(route string, status int, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[route] = fault{status: status, detail: detail}
}

// Drop makes every request to route lose its connection until Clear.
func (s *Server) Drop(route string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[route] = fault{drop: true}
}

func (s *Server) Clear(route string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.faults, route)
}

// Block holds requests to route until release is called. entered receives
// once per request that reached the gate.
func (s *Server) Block(route string) (entered <-chan struct{}, release func()) {
	g := &gate{release: make(chan struct{}), entered: make(chan struct{}, 16)}
	s.mu.Lock()
	s.gates[route] = g
	s.mu.Unlock()
	var once sync.Once
	return g.entered, func() {
		once.Do(func() {
			s.mu.Lock()
			if s.gates[route] == g {
				delete(s.gates, route)
			}
			s.mu.Unlock()
			close(g.release)
		})
	}
}

func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

// Limit applies a per-token budget to every non-GET request.
func (s *Server) Limit(rule rate.Rule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limitRule = rule
}

func (s *Server) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// ExpireToken invalidates a bearer token so the next use answers 401.
func (s *Server) ExpireToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
}

// CreateUser registers a password user and returns a live token for it.
func (s *Server) CreateUser(email, handle, password string) (model.User, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.addUserLocked(email, handle, password)
	token := uuid.NewString()
	s.tokens[token] = u.ID
	return u.User, token
}

// SeedPrediction stores a prediction authored by userID.
func (s *Server) SeedPrediction(userID int64, in model.CreatePredictionInput) model.Prediction {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.addPredictionLocked(userID, in)
	return s.viewPredictionLocked(p, userID)
}

// SeedComment stores a comment with a fixed score and creation time.
// parentID 0 is a top-level comment.
func (s *Server) SeedComment(predictionID, userID, parentID int64, content string, score int, at time.Time) model.Comment {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.addCommentLocked(predictionID, userID, parentID, content, at)
	c.VoteScore = score
	return *c
}

// SeedGroup stores a group owned by ownerID.
func (s *Server) SeedGroup(ownerID int64, in model.CreateGroupInput) model.Group {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.addGroupLocked(ownerID, in)
	return s.viewGroupLocked(g, ownerID)
}

// SetVote records a vote as if userID had cast it.
func (s *Server) SetVote(kind model.EntityKind, id, userID int64, value int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setVoteLocked(kind, id, userID, value)
}

// Prediction returns the stored prediction as userID would see it.
func (s *Server) Prediction(id, viewerID int64) (model.Prediction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.predictions[id]
	if !ok {
		return model.Prediction{}, false
	}
	return s.viewPredictionLocked(p, viewerID), true
}

// ----------------------------------------------------------------------------
// auth

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, req.Email) && u.password == req.Password {
			writeJSON(w, http.StatusOK, s.issueTokenLocked(u.ID))
			return
		}
	}
	writeError(w, http.StatusUnauthorized, "Incorrect email or password")
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email     string `json:"email"`
		Handle    string `json:"handle"`
		Password  string `json:"password"`
		LoginType string `json:"login_type"`
	}
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if n := len(req.Handle); n < 3 || n > 50 {
		writeValidation(w, "handle", "String should have at least 3 characters")
		return
	}
	if !strings.Contains(req.Email, "@") {
		writeValidation(w, "email", "value is not a valid email address")
		return
	}
	if req.Password == "" {
		writeError(w, http.StatusBadRequest, "Password required for password login")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, req.Email) {
			writeError(w, http.StatusBadRequest, "Email already registered")
			return
		}
		if strings.EqualFold(u.Handle, req.Handle) {
			writeError(w, http.StatusBadRequest, "Handle already taken")
			return
		}
	}
	u := s.addUserLocked(req.Email, req.Handle, req.Password)
	writeJSON(w, http.StatusOK, s.issueTokenLocked(u.ID))
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.requireAuthLocked(w, r)
	if !ok {
		return
	}
	profile := model.UserProfile{User: u.User}
	for _, p := range s.predictions {
		if p.UserID == u.ID {
			profile.PredictionCount++
		}
	}
	for k := range s.backings {
		if k[1] == u.ID {
			profile.BackingCount++
		}
	}
	writeJSON(w, http.StatusOK, profile)
}

// ----------------------------------------------------------------------------
// predictions

func (s *Server) handleListPredictions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sortMode := model.PredictionSort(q.Get("sort"))
	if sortMode == "" {
		sortMode = model.SortRecent
	}
	if !sortMode.Valid() {
		writeValidation(w, "sort", "Input should be 'recent', 'popular' or 'controversial'")
		return
	}
	category := q.Get("category")
	userID := parseInt64Default(q.Get("user_id"), 0)

	s.mu.Lock()
	defer s.mu.Unlock()
	viewer := s.viewerIDLocked(r)
	var out []model.Prediction
	for _, p := range s.predictions {
		if p.Visibility != model.VisibilityPublic {
			continue
		}
		if category != "" && !strings.EqualFold(p.Category, category) {
			continue
		}
		if userID > 0 && p.UserID != userID {
			continue
		}
		out = append(out, s.viewPredictionLocked(p, viewer))
	}
	writeJSON(w, http.StatusOK, s.pageLocked(out, sortMode, q.Get("page"), q.Get("per_page")))
}

func (s *Server) handleMyPredictions(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.requireAuthLocked(w, r)
	if !ok {
		return
	}
	var out []model.Prediction
	for _, p := range s.predictions {
		if p.UserID == u.ID {
			out = append(out, s.viewPredictionLocked(p, u.ID))
		}
	}
	writeJSON(w, http.StatusOK, s.pageLocked(out, model.SortRecent, "1", "100"))
}

func (s *Server) handleGetPrediction(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, viewer, ok := s.visiblePredictionLocked(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.viewPredictionLocked(p, viewer))
}

func (s *Server) handleCreatePrediction(w http.ResponseWriter, r *http.Request) {
	var in model.CreatePredictionInput
	if err := readJSON(r.Body, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := in.Validate(); err != nil {
		writeValidation(w, "body", strings.TrimPrefix(err.Error(), model.ErrInvalidInput.Error()+": "))
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.requireAuthLocked(w, r)
	if !ok {
		return
	}
	if in.GroupID != nil {
		g, found := s.groups[*in.GroupID]
		if !found {
			writeError(w, http.StatusNotFound, "Group not found")
			return
		}
		if !s.members[[2]int64{g.ID, u.ID}] {
			writeError(w, http.StatusForbidden, "Not a member of this group")
			return
		}
	}
	p := s.addPredictionLocked(u.ID, in)
	writeJSON(w, http.StatusCreated, s.viewPredictionLocked(p, u.ID))
}

func (s *Server) handleDeletePrediction(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.requireAuthLocked(w, r)
	if !ok {
		return
	}
	p, found := s.predictions[pathID(r)]
	if !found {
		writeError(w, http.StatusNotFound, "Prediction not found")
		return
	}
	if p.UserID != u.ID {
		writeError(w, http.StatusForbidden, "Not authorized to delete this prediction")
		return
	}
	delete(s.predictions, p.ID)
	for k := range s.votes {
		if k.kind == model.KindPrediction && k.id == p.ID {
			delete(s.votes, k)
		}
	}
	for k := range s.backings {
		if k[0] == p.ID {
			delete(s.backings, k)
		}
	}
	for id, c := range s.comments {
		if c.PredictionID == p.ID {
			delete(s.comments, id)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleVotePrediction(w http.ResponseWriter, r *http.Request) {
	value, ok := readVote(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.requireAuthLocked(w, r)
	if !ok {
		return
	}
	p, found := s.predictions[pathID(r)]
	if !found || !s.canSeeLocked(p, u.ID) {
		writeError(w, http.StatusNotFound, "Prediction not found")
		return
	}
	s.setVoteLocked(model.KindPrediction, p.ID, u.ID, value)
	writeJSON(w, http.StatusOK, map[string]any{"prediction_id": p.ID, "user_id": u.ID, "value": value})
}

func (s *Server) handleBack(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.requireAuthLocked(w, r)
	if !ok {
		return
	}
	p, found := s.predictions[pathID(r)]
	if !found || !s.canSeeLocked(p, u.ID) {
		writeError(w, http.StatusNotFound, "Prediction not found")
		return
	}
	switch {
	case !p.AllowBacking:
		writeError(w, http.StatusBadRequest, "Backing not allowed for this prediction")
		return
	case p.UserID == u.ID:
		writeError(w, http.StatusBadRequest, "Cannot back your own prediction")
		return
	case s.backings[[2]int64{p.ID, u.ID}]:
		writeError(w, http.StatusBadRequest, "Already backed")
		return
	}
	s.backings[[2]int64{p.ID, u.ID}] = true
	if author, ok := s.users[p.UserID]; ok {
		author.WisdomLevel++
	}
	writeJSON(w, http.StatusOK, map[string]any{"prediction_id": p.ID, "backer_user_id": u.ID})
}

func (s *Server) handleUnback(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.requireAuthLocked(w, r)
	if !ok {
		return
	}
	key := [2]int64{pathID(r), u.ID}
	if !s.backings[key] {
		writeError(w, http.StatusNotFound, "Not backed")
		return
	}
	delete(s.backings, key)
	if p, ok := s.predictions[key[0]]; ok {
		if author, ok := s.users[p.UserID]; ok && author.WisdomLevel > 0 {
			author.WisdomLevel--
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReceipt(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, _, ok := s.visiblePredictionLocked(w, r)
	if !ok {
		return
	}
	handle := ""
	if u, ok := s.users[p.UserID]; ok {
		handle = u.Handle
	}
	writeJSON(w, http.StatusOK, model.Receipt{
		PredictionID:    p.ID,
		Title:           p.Title,
		Content:         p.Content,
		UserHandle:      handle,
		Timestamp:       p.Timestamp,
		Hash:            p.Hash,
		VerificationURL: fmt.Sprintf(s.VerifyURLPattern, p.ID),
	})
}

// ----------------------------------------------------------------------------
// comments

func (s *Server) handleListComments(w http.ResponseWriter, r *http.Request) {
	sortMode := model.CommentSort(r.URL.Query().Get("sort"))
	if sortMode == "" {
		sortMode = model.SortTop
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, viewer, ok := s.visiblePredictionLocked(w, r)
	if !ok {
		return
	}
	var flat []model.Comment
	for _, id := range s.commentSeq {
		c, ok := s.comments[id]
		if !ok || c.PredictionID != p.ID {
			continue
		}
		flat = append(flat, s.viewCommentLocked(c, viewer))
	}
	tree := buildCommentTree(flat)
	sortTree(tree, sortMode)
	writeJSON(w, http.StatusOK, tree)
}

func (s *Server) handlePostComment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content         string `json:"content"`
		ParentCommentID *int64 `json:"parent_comment_id"`
	}
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeValidation(w, "content", "String should have at least 1 character")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.requireAuthLocked(w, r)
	if !ok {
		return
	}
	p, found := s.predictions[pathID(r)]
	if !found || !s.canSeeLocked(p, u.ID) {
		writeError(w, http.StatusNotFound, "Prediction not found")
		return
	}
	var parentID int64
	if req.ParentCommentID != nil {
		parent, ok := s.comments[*req.ParentCommentID]
		if !ok || parent.PredictionID != p.ID {
			writeError(w, http.StatusBadRequest, "Parent comment not found")
			return
		}
		parentID = parent.ID
	}
	c := s.addCommentLocked(p.ID, u.ID, parentID, req.Content, s.now())
	writeJSON(w, http.StatusCreated, s.viewCommentLocked(c, u.ID))
}

func (s *Server) handleVoteComment(w http.ResponseWriter, r *http.Request) {
	value, ok := readVote(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.requireAuthLocked(w, r)
	if !ok {
		return
	}
	c, found := s.comments[pathID(r)]
	if !found {
		writeError(w, http.StatusNotFound, "Comment not found")
		return
	}
	s.setVoteLocked(model.KindComment, c.ID, u.ID, value)
	writeJSON(w, http.StatusOK, map[string]any{"comment_id": c.ID, "value": value})
}

func (s *Server) handleDeleteComment(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.requireAuthLocked(w, r)
	if !ok {
		return
	}
	c, found := s.comments[pathID(r)]
	if !found {
		writeError(w, http.StatusNotFound, "Comment not found")
		return
	}
	if c.User.ID != u.ID {
		writeError(w, http.StatusForbidden, "Not authorized to delete this comment")
		return
	}
	s.deleteCommentLocked(c.ID)
	w.WriteHeader(http.StatusNoContent)
}

// ----------------------------------------------------------------------------
// groups

func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	viewer := s.viewerIDLocked(r)
	out := make([]model.Group, 0, len(s.groups))
	for _, g := range s.groups {
		if g.Visibility == model.GroupSecret && !s.members[[2]int64{g.ID, viewer}] {
			continue
		}
		out = append(out, s.viewGroupLocked(g, viewer))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var in model.CreateGroupInput
	if err := readJSON(r.Body, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := in.Validate(); err != nil {
		writeValidation(w, "body", strings.TrimPrefix(err.Error(), model.ErrInvalidInput.Error()+": "))
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.requireAuthLocked(w, r)
	if !ok {
		return
	}
	for _, g := range s.groups {
		if strings.EqualFold(g.Name, in.Name) {
			writeError(w, http.StatusBadRequest, "Group name already exists")
			return
		}
	}
	g := s.addGroupLocked(u.ID, in)
	writeJSON(w, http.StatusCreated, s.viewGroupLocked(g, u.ID))
}

func (s *Server) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, viewer, ok := s.visibleGroupLocked(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.viewGroupLocked(g, viewer))
}

func (s *Server) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.requireAuthLocked(w, r)
	if !ok {
		return
	}
	g, found := s.groups[pathID(r)]
	if !found {
		writeError(w, http.StatusNotFound, "Group not found")
		return
	}
	if g.Creator.ID != u.ID {
		writeError(w, http.StatusForbidden, "Only the owner can delete this group")
		return
	}
	delete(s.groups, g.ID)
	for k := range s.members {
		if k[0] == g.ID {
			delete(s.members, k)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleJoinGroup(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.requireAuthLocked(w, r)
	if !ok {
		return
	}
	g, found := s.groups[pathID(r)]
	if !found || g.Visibility == model.GroupSecret && !s.members[[2]int64{g.ID, u.ID}] {
		writeError(w, http.StatusNotFound, "Group not found")
		return
	}
	key := [2]int64{g.ID, u.ID}
	if s.members[key] {
		writeError(w, http.StatusBadRequest, "Already a member")
		return
	}
	s.members[key] = true
	writeJSON(w, http.StatusOK, map[string]any{"group_id": g.ID, "joined": true})
}

func (s *Server) handleLeaveGroup(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.requireAuthLocked(w, r)
	if !ok {
		return
	}
	g, found := s.groups[pathID(r)]
	if !found {
		writeError(w, http.StatusNotFound, "Group not found")
		return
	}
	key := [2]int64{g.ID, u.ID}
	switch {
	case g.Creator.ID == u.ID:
		writeError(w, http.StatusBadRequest, "Owner cannot leave the group")
		return
	case !s.members[key]:
		writeError(w, http.StatusBadRequest, "Not a member")
		return
	}
	delete(s.members, key)
	writeJSON(w, http.StatusOK, map[string]any{"group_id": g.ID, "joined": false})
}

func (s *Server) handleGroupPredictions(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, viewer, ok := s.visibleGroupLocked(w, r)
	if !ok {
		return
	}
	if g.Visibility != model.GroupPublic && !s.members[[2]int64{g.ID, viewer}] {
		writeError(w, http.StatusForbidden, "Members only")
		return
	}
	var out []model.Prediction
	for _, p := range s.predictions {
		if p.GroupID != nil && *p.GroupID == g.ID {
			out = append(out, s.viewPredictionLocked(p, viewer))
		}
	}
	writeJSON(w, http.StatusOK, s.pageLocked(out, model.SortRecent, "1", "100"))
}

// ----------------------------------------------------------------------------
// state helpers; callers hold s.mu

func (s *Server) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *Server) addUserLocked(email, handle, password string) *fakeUser {
	u := &fakeUser{
		User: model.User{
			ID:        s.id(),
			Email:     email,
			Handle:    handle,
			LoginType: model.LoginPassword,
			CreatedAt: model.NewTimestamp(s.now()),
		},
		password: password,
	}
	s.users[u.ID] = u
	return u
}

func (s *Server) issueTokenLocked(userID int64) model.AuthToken {
	token := uuid.NewString()
	s.tokens[token] = userID
	return model.AuthToken{AccessToken: token, TokenType: "bearer"}
}

func (s *Server) addPredictionLocked(userID int64, in model.CreatePredictionInput) *model.Prediction {
	ts := model.NewTimestamp(s.now())
	p := &model.Prediction{
		ID:           s.id(),
		UserID:       userID,
		Title:        in.Title,
		Content:      in.Content,
		Category:     in.Category,
		Visibility:   in.Visibility,
		AllowBacking: in.AllowBacking,
		Timestamp:    ts,
		Hash:         model.ComputeHash(userID, in.Title, in.Content, ts.Raw),
		GroupID:      in.GroupID,
	}
	s.predictions[p.ID] = p
	return p
}

func (s *Server) addCommentLocked(predictionID, userID, parentID int64, content string, at time.Time) *model.Comment {
	c := &model.Comment{
		ID:           s.id(),
		PredictionID: predictionID,
		Content:      content,
		Timestamp:    model.NewTimestamp(at),
	}
	if u, ok := s.users[userID]; ok {
		c.User = u.User
	} else {
		c.User.ID = userID
	}
	if parentID > 0 {
		c.ParentCommentID = &parentID
	}
	s.comments[c.ID] = c
	s.commentSeq = append(s.commentSeq, c.ID)
	return c
}

func (s *Server) addGroupLocked(ownerID int64, in model.CreateGroupInput) *model.Group {
	g := &model.Group{
		ID:          s.id(),
		Name:        in.Name,
		Description: in.Description,
		Visibility:  in.Visibility,
		Creator:     model.GroupCreator{ID: ownerID},
		CreatedAt:   model.NewTimestamp(s.now()),
	}
	if u, ok := s.users[ownerID]; ok {
		g.Creator.Handle = u.Handle
	}
	s.groups[g.ID] = g
	s.members[[2]int64{g.ID, ownerID}] = true
	return g
}

func (s *Server) deleteCommentLocked(id int64) {
	delete(s.comments, id)
	for childID, c := range s.comments {
		if c.ParentCommentID != nil && *c.ParentCommentID == id {
			s.deleteCommentLocked(childID)
		}
	}
}

// setVoteLocked replaces userID's vote; 0 removes it. Comment scores seeded
// through SeedComment carry a base that votes adjust.
func (s *Server) setVoteLocked(kind model.EntityKind, id, userID int64, value int) {
	key := voteKey{kind: kind, id: id, userID: userID}
	prev := s.votes[key]
	if value == 0 {
		delete(s.votes, key)
	} else {
		s.votes[key] = value
	}
	if kind == model.KindComment {
		if c, ok := s.comments[id]; ok {
			c.VoteScore += value - prev
		}
	}
}

func (s *Server) viewPredictionLocked(p *model.Prediction, viewer int64) model.Prediction {
	out := p.Clone()
	if u, ok := s.users[p.UserID]; ok {
		out.User = u.User
	}
	out.VoteScore = 0
	for k, v := range s.votes {
		if k.kind == model.KindPrediction && k.id == p.ID {
			out.VoteScore += v
		}
	}
	if v, ok := s.votes[voteKey{kind: model.KindPrediction, id: p.ID, userID: viewer}]; ok && viewer > 0 {
		out.UserVote = model.NewVote(v)
	} else {
		out.UserVote = nil
	}
	out.BackingCount = 0
	for k := range s.backings {
		if k[0] == p.ID {
			out.BackingCount++
		}
	}
	out.UserBacked = viewer > 0 && s.backings[[2]int64{p.ID, viewer}]
	out.CommentCount = 0
	for _, c := range s.comments {
		if c.PredictionID == p.ID {
			out.CommentCount++
		}
	}
	return out
}

func (s *Server) viewCommentLocked(c *model.Comment, viewer int64) model.Comment {
	out := *c
	out.Replies = nil
	if c.ParentCommentID != nil {
		p := *c.ParentCommentID
		out.ParentCommentID = &p
	}
	if v, ok := s.votes[voteKey{kind: model.KindComment, id: c.ID, userID: viewer}]; ok && viewer > 0 {
		out.UserVote = model.NewVote(v)
	} else {
		out.UserVote = nil
	}
	return out
}

func (s *Server) viewGroupLocked(g *model.Group, viewer int64) model.Group {
	out := *g
	out.MemberCount = 0
	for k := range s.members {
		if k[0] == g.ID {
			out.MemberCount++
		}
	}
	out.IsMember = viewer > 0 && s.members[[2]int64{g.ID, viewer}]
	out.IsOwner = viewer > 0 && g.Creator.ID == viewer
	return out
}

func (s *Server) canSeeLocked(p *model.Prediction, viewer int64) bool {
	return p.Visibility == model.VisibilityPublic || p.UserID == viewer
}

func (s *Server) visiblePredictionLocked(w http.ResponseWriter, r *http.Request) (*model.Prediction, int64, bool) {
	viewer := s.viewerIDLocked(r)
	p, ok := s.predictions[pathID(r)]
	if !ok || !s.canSeeLocked(p, viewer) {
		writeError(w, http.StatusNotFound, "Prediction not found")
		return nil, 0, false
	}
	return p, viewer, true
}

func (s *Server) visibleGroupLocked(w http.ResponseWriter, r *http.Request) (*model.Group, int64, bool) {
	viewer := s.viewerIDLocked(r)
	g, ok := s.groups[pathID(r)]
	if !ok || g.Visibility == model.GroupSecret && !s.members[[2]int64{g.ID, viewer}] {
		writeError(w, http.StatusNotFound, "Group not found")
		return nil, 0, false
	}
	return g, viewer, true
}

func (s *Server) pageLocked(items []model.Prediction, mode model.PredictionSort, pageStr, perPageStr string) model.PredictionList {
	sortPredictions(items, mode, s.controversyLocked())
	page := parseIntDefault(pageStr, 1)
	if page < 1 {
		page = 1
	}
	perPage := clamp(parseIntDefault(perPageStr, 20), 1, 100)
	total := len(items)
	start := (page - 1) * perPage
	if start > total {
		start = total
	}
	end := start + perPage
	if end > total {
		end = total
	}
	list := model.PredictionList{Predictions: items[start:end], Total: total, Page: page, PerPage: perPage}
	if list.Predictions == nil {
		list.Predictions = []model.Prediction{}
	}
	return list
}

// controversyLocked counts votes cast per prediction.
func (s *Server) controversyLocked() map[int64]int {
	out := make(map[int64]int)
	for k := range s.votes {
		if k.kind == model.KindPrediction {
			out[k.id]++
		}
	}
	return out
}

func (s *Server) viewerIDLocked(r *http.Request) int64 {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return 0
	}
	return s.tokens[strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))]
}

func (s *Server) requireAuthLocked(w http.ResponseWriter, r *http.Request) (*fakeUser, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return nil, false
	}
	id, ok := s.tokens[strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))]
	if !ok {
		writeError(w, http.StatusUnauthorized, "Could not validate credentials")
		return nil, false
	}
	u, ok := s.users[id]
	if !ok {
		writeError(w, http.StatusUnauthorized, "Could not validate credentials")
		return nil, false
	}
	return u, true
}

func (s *Server) allowRateLimit(w http.ResponseWriter, r *http.Request) bool {
	s.mu.Lock()
	rule := s.limitRule
	s.mu.Unlock()
	if rule.Limit <= 0 {
		return true
	}
	key := "write:" + r.Header.Get("Authorization")
	if ok, retry := s.limiter.Allow(key, rule.Limit, rule.Window); !ok {
		w.Header().Set("Retry-After", strconv.Itoa(int(retry.Seconds())))
		writeError(w, http.StatusTooManyRequests, "Rate limit exceeded")
		return false
	}
	return true
}

// ----------------------------------------------------------------------------
// wire helpers

func buildCommentTree(comments []model.Comment) []model.Comment {
	byParent := make(map[int64][]model.Comment)
	roots := make([]model.Comment, 0)
	for _, c := range comments {
		if c.ParentCommentID == nil {
			roots = append(roots, c)
			continue
		}
		byParent[*c.ParentCommentID] = append(byParent[*c.ParentCommentID], c)
	}
	var build func(parent model.Comment) model.Comment
	build = func(parent model.Comment) model.Comment {
		parent.Replies = []model.Comment{}
		for _, child := range byParent[parent.ID] {
			parent.Replies = append(parent.Replies, build(child))
		}
		return parent
	}
	nodes := make([]model.Comment, 0, len(roots))
	for _, root := range roots {
		nodes = append(nodes, build(root))
	}
	return nodes
}

func sortTree(nodes []model.Comment, mode model.CommentSort) {
	sort.SliceStable(nodes, func(i, j int) bool {
		if mode == model.SortNew {
			return nodes[i].Timestamp.After(nodes[j].Timestamp.Time)
		}
		return nodes[i].VoteScore > nodes[j].VoteScore
	})
	for i := range nodes {
		sortTree(nodes[i].Replies, mode)
	}
}

func sortPredictions(items []model.Prediction, mode model.PredictionSort, votesCast map[int64]int) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		switch mode {
		case model.SortPopular:
			if a.VoteScore != b.VoteScore {
				return a.VoteScore > b.VoteScore
			}
		case model.SortControversial:
			if votesCast[a.ID] != votesCast[b.ID] {
				return votesCast[a.ID] > votesCast[b.ID]
			}
			if abs(a.VoteScore) != abs(b.VoteScore) {
				return abs(a.VoteScore) < abs(b.VoteScore)
			}
		}
		if !a.Timestamp.Equal(b.Timestamp.Time) {
			return a.Timestamp.After(b.Timestamp.Time)
		}
		return a.ID > b.ID
	})
}

func readVote(w http.ResponseWriter, r *http.Request) (int, bool) {
	var req struct {
		Value *int `json:"value"`
	}
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return 0, false
	}
	if req.Value == nil || *req.Value < -1 || *req.Value > 1 {
		writeValidation(w, "value", "Input should be greater than or equal to -1 and less than or equal to 1")
		return 0, false
	}
	return *req.Value, true
}

func readJSON(body io.ReadCloser, dest any) error {
	defer body.Close()
	if err := json.NewDecoder(body).Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body required")
		}
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]any{"detail": detail})
}

// writeValidation answers 422 in the list-of-errors shape.
func writeValidation(w http.ResponseWriter, field, msg string) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
		"detail": []map[string]any{{"loc": []string{"body", field}, "msg": msg, "type": "value_error"}},
	})
}

func dropConnection(w http.ResponseWriter) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		panic("apitest: response writer cannot hijack")
	}
	conn, _, err := hj.Hijack()
	if err == nil {
		_ = conn.Close()
	}
}

func pathID(r *http.Request) int64 {
	return parseInt64Default(chi.URLParam(r, "id"), 0)
}

func parseIntDefault(value string, def int) int {
	if value == "" {
		return def
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return n
}

func parseInt64Default(value string, def int64) int64 {
	if value == "" {
		return def
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
