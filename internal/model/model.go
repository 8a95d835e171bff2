package model

import (
	"fmt"
	"strings"
)

type EntityKind string

const (
	KindPrediction EntityKind = "prediction"
	KindComment    EntityKind = "comment"
	KindGroup      EntityKind = "group"
)

// Key identifies one entity across views.
type Key struct {
	Kind EntityKind
	ID   int64
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%d", k.Kind, k.ID)
}

func PredictionKey(id int64) Key { return Key{Kind: KindPrediction, ID: id} }
func CommentKey(id int64) Key    { return Key{Kind: KindComment, ID: id} }

// VoteState is the score of an entity together with the viewer's own
// contribution to it. UserVote is always one of -1, 0, 1.
type VoteState struct {
	Score    int
	UserVote int
}

type BackState struct {
	Backed bool
	Count  int
}

// Votable is anything carrying a score and a per-viewer vote.
type Votable interface {
	EntityKey() Key
	VoteState() VoteState
}

type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

func (v Visibility) Valid() bool {
	return v == VisibilityPublic || v == VisibilityPrivate
}

type GroupVisibility string

const (
	GroupPublic  GroupVisibility = "public"
	GroupPrivate GroupVisibility = "private"
	GroupSecret  GroupVisibility = "secret"
)

func (v GroupVisibility) Valid() bool {
	switch v {
	case GroupPublic, GroupPrivate, GroupSecret:
		return true
	}
	return false
}

type PredictionSort string

const (
	SortRecent        PredictionSort = "recent"
	SortPopular       PredictionSort = "popular"
	SortControversial PredictionSort = "controversial"
)

func (s PredictionSort) Valid() bool {
	switch s {
	case SortRecent, SortPopular, SortControversial:
		return true
	}
	return false
}

type CommentSort string

const (
	SortTop CommentSort = "top"
	SortNew CommentSort = "new"
)

func (s CommentSort) Valid() bool {
	return s == SortTop || s == SortNew
}

// Categories offered by the feed filters.
var Categories = []string{
	"Technology",
	"Politics",
	"Sports",
	"Entertainment",
	"Business",
	"Science",
	"Weather",
	"Economics",
	"Social",
	"Other",
}

// NormalizeCategory returns the canonical spelling of a known category, or
// the trimmed input when it is not one of Categories.
func NormalizeCategory(c string) string {
	c = strings.TrimSpace(c)
	for _, known := range Categories {
		if strings.EqualFold(known, c) {
			return known
		}
	}
	return c
}

type LoginType string

const (
	LoginPassword LoginType = "password"
	LoginGoogle   LoginType = "google"
)

type User struct {
	ID          int64     `json:"user_id"`
	Email       string    `json:"email"`
	Handle      string    `json:"handle"`
	LoginType   LoginType `json:"login_type"`
	WisdomLevel int       `json:"wisdom_level"`
	CreatedAt   Timestamp `json:"created_at"`
}

type UserProfile struct {
	User
	PredictionCount int `json:"prediction_count"`
	BackingCount    int `json:"backing_count"`
}

type AuthToken struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type Receipt struct {
	PredictionID    int64     `json:"prediction_id"`
	Title           string    `json:"title"`
	Content         string    `json:"content"`
	UserHandle      string    `json:"user_handle"`
	Timestamp       Timestamp `json:"timestamp"`
	Hash            string    `json:"hash"`
	VerificationURL string    `json:"verification_url"`
}

type GroupCreator struct {
	ID     int64  `json:"user_id"`
	Handle string `json:"handle"`
}

type Group struct {
	ID          int64           `json:"group_id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Visibility  GroupVisibility `json:"visibility"`
	Creator     GroupCreator    `json:"creator"`
	CreatedAt   Timestamp       `json:"created_at"`
	MemberCount int             `json:"member_count"`
	IsMember    bool            `json:"is_member"`
	IsOwner     bool            `json:"is_owner"`
}

func (g Group) EntityKey() Key { return Key{Kind: KindGroup, ID: g.ID} }

type CreateGroupInput struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Visibility  GroupVisibility `json:"visibility"`
}

func (in CreateGroupInput) Validate() error {
	name := strings.TrimSpace(in.Name)
	if name == "" || len(name) > 120 {
		return fmt.Errorf("%w: name must be 1-120 chars", ErrInvalidInput)
	}
	if strings.TrimSpace(in.Description) == "" {
		return fmt.Errorf("%w: description required", ErrInvalidInput)
	}
	if !in.Visibility.Valid() {
		return fmt.Errorf("%w: visibility must be public, private or secret", ErrInvalidInput)
	}
	return nil
}
