package store

import (
	"context"
	"errors"
	"time"

	"github.com/callingitnow/callit/internal/model"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidName  = errors.New("invalid profile name")
	ErrEmptyContent = errors.New("empty draft")
)

// Setting keys.
const (
	SettingShowProfanity = "show_profanity"
	SettingActiveProfile = "active_profile"
)

// Profile is one signed-in identity against one backend. Token is sealed;
// see auth.Sealer.
type Profile struct {
	Name        string
	APIURL      string
	SealedToken []byte
	User        *model.UserProfile
	UpdatedAt   time.Time
}

// Draft is unsent compose-field text. ParentID 0 is the top-level form.
type Draft struct {
	PredictionID int64
	ParentID     int64
	Content      string
	UpdatedAt    time.Time
}

type Store interface {
	SessionStore
	SettingsStore
	DraftStore
	Close() error
}

type SessionStore interface {
	SaveProfile(ctx context.Context, p Profile) error
	GetProfile(ctx context.Context, name string) (Profile, error)
	ListProfiles(ctx context.Context) ([]Profile, error)
	DeleteProfile(ctx context.Context, name string) error
	ClearToken(ctx context.Context, name string) error
	SetActiveProfile(ctx context.Context, name string) error
	ActiveProfile(ctx context.Context) (string, error)
}

type SettingsStore interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
}

type DraftStore interface {
	SaveDraft(ctx context.Context, d Draft) error
	GetDraft(ctx context.Context, predictionID, parentID int64) (Draft, error)
	ListDrafts(ctx context.Context, predictionID int64) ([]Draft, error)
	DeleteDraft(ctx context.Context, predictionID, parentID int64) error
}
