package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/callingitnow/callit/internal/model"
	"github.com/callingitnow/callit/internal/store"

	_ "modernc.org/sqlite"
)

var _ store.Store = (*Store)(nil)

var profileName = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,64}$`)

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := applySchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// migrations is an ordered list of SQL migrations.
// Each migration runs exactly once, tracked by schema_version table.
var migrations = []string{
	// Migration 1: profiles and settings
	`
CREATE TABLE IF NOT EXISTS profiles (
	name TEXT PRIMARY KEY,
	api_url TEXT NOT NULL,
	sealed_token BLOB,
	user_json TEXT,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`,
	// Migration 2: reply drafts
	`
CREATE TABLE IF NOT EXISTS drafts (
	prediction_id INTEGER NOT NULL,
	parent_id INTEGER NOT NULL DEFAULT 0,
	content TEXT NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (prediction_id, parent_id)
);
`,
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		)
	`); err != nil {
		return err
	}

	var currentVersion int
	row := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`)
	if err := row.Scan(&currentVersion); err != nil {
		return err
	}

	for i := currentVersion; i < len(migrations); i++ {
		if _, err := db.Exec(migrations[i]); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
		if _, err := db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, i+1); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", i+1, err)
		}
	}

	return nil
}

func (s *Store) SaveProfile(ctx context.Context, p store.Profile) error {
	if !profileName.MatchString(p.Name) {
		return fmt.Errorf("%w: %q", store.ErrInvalidName, p.Name)
	}
	var userJSON any
	if p.User != nil {
		data, err := json.Marshal(p.User)
		if err != nil {
			return err
		}
		userJSON = string(data)
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO profiles (name, api_url, sealed_token, user_json, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(name) DO UPDATE SET
	api_url = excluded.api_url,
	sealed_token = excluded.sealed_token,
	user_json = excluded.user_json,
	updated_at = excluded.updated_at
`, p.Name, p.APIURL, nullIfEmpty(p.SealedToken), userJSON, time.Now().Unix())
	return err
}

func (s *Store) GetProfile(ctx context.Context, name string) (store.Profile, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT name, api_url, sealed_token, user_json, updated_at
FROM profiles
WHERE name = ?
`, name)
	return scanProfile(row)
}

func (s *Store) ListProfiles(ctx context.Context) ([]store.Profile, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT name, api_url, sealed_token, user_json, updated_at
FROM profiles
ORDER BY name
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) DeleteProfile(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM profiles WHERE name = ?`, name)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *Store) ClearToken(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE profiles SET sealed_token = NULL, user_json = NULL, updated_at = ?
WHERE name = ?
`, time.Now().Unix(), name)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *Store) SetActiveProfile(ctx context.Context, name string) error {
	if !profileName.MatchString(name) {
		return fmt.Errorf("%w: %q", store.ErrInvalidName, name)
	}
	return s.SetSetting(ctx, store.SettingActiveProfile, name)
}

func (s *Store) ActiveProfile(ctx context.Context) (string, error) {
	return s.GetSetting(ctx, store.SettingActiveProfile)
}

func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	row := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key)
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", store.ErrNotFound
		}
		return "", err
	}
	return value, nil
}

func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO settings (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value
`, key, value)
	return err
}

func (s *Store) SaveDraft(ctx context.Context, d store.Draft) error {
	if strings.TrimSpace(d.Content) == "" {
		return store.ErrEmptyContent
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO drafts (prediction_id, parent_id, content, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(prediction_id, parent_id) DO UPDATE SET
	content = excluded.content,
	updated_at = excluded.updated_at
`, d.PredictionID, d.ParentID, d.Content, time.Now().Unix())
	return err
}

func (s *Store) GetDraft(ctx context.Context, predictionID, parentID int64) (store.Draft, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT prediction_id, parent_id, content, updated_at
FROM drafts
WHERE prediction_id = ? AND parent_id = ?
`, predictionID, parentID)
	return scanDraft(row)
}

func (s *Store) ListDrafts(ctx context.Context, predictionID int64) ([]store.Draft, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT prediction_id, parent_id, content, updated_at
FROM drafts
WHERE prediction_id = ?
ORDER BY parent_id
`, predictionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Draft
	for rows.Next() {
		d, err := scanDraft(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) DeleteDraft(ctx context.Context, predictionID, parentID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM drafts WHERE prediction_id = ? AND parent_id = ?`, predictionID, parentID)
	return err
}

type scanner interface{ Scan(dest ...any) error }

func scanProfile(sc scanner) (store.Profile, error) {
	var p store.Profile
	var userJSON sql.NullString
	var updated int64
	if err := sc.Scan(&p.Name, &p.APIURL, &p.SealedToken, &userJSON, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Profile{}, store.ErrNotFound
		}
		return store.Profile{}, err
	}
	if userJSON.Valid && userJSON.String != "" {
		var u model.UserProfile
		if err := json.Unmarshal([]byte(userJSON.String), &u); err == nil {
			p.User = &u
		}
	}
	p.UpdatedAt = time.Unix(updated, 0)
	return p, nil
}

func scanDraft(sc scanner) (store.Draft, error) {
	var d store.Draft
	var updated int64
	if err := sc.Scan(&d.PredictionID, &d.ParentID, &d.Content, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Draft{}, store.ErrNotFound
		}
		return store.Draft{}, err
	}
	d.UpdatedAt = time.Unix(updated, 0)
	return d, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func nullIfEmpty(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
