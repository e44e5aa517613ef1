// Package sqlitestore is the SQLite-backed reference implementation of the
// profile store contract.
package sqlitestore

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	apperrors "github.com/saporia/saporia/internal/errors"
	"github.com/saporia/saporia/internal/profile"
)

// Store provides CRUD operations for tenant profiles backed by SQLite.
type Store struct {
	db       *sql.DB
	notifier profile.ChangeNotifier
	nowFn    func() time.Time
}

// New opens (or creates) the profile database in dir.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create profile store dir: %w", err)
	}

	dbPath := filepath.Join(dir, "profiles.db")
	dsn := dbPath + "?" + url.Values{
		"_pragma": []string{
			"busy_timeout(30000)",
			"journal_mode(WAL)",
			"synchronous(NORMAL)",
		},
	}.Encode()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open profile db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db, nowFn: time.Now}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	// allowed_department lives in its own column, not only inside the
	// settings blob, so the write-once guard can be expressed as a
	// conditional UPDATE.
	schema := `
	CREATE TABLE IF NOT EXISTS profiles (
		id                  TEXT PRIMARY KEY,
		email               TEXT NOT NULL UNIQUE COLLATE NOCASE,
		subscription_status TEXT NOT NULL DEFAULT '',
		allowed_department  TEXT NOT NULL DEFAULT '',
		settings            TEXT NOT NULL DEFAULT '{}',
		created_at          INTEGER NOT NULL,
		updated_at          INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_profiles_status ON profiles(subscription_status);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("init profile schema: %w", err)
	}
	return nil
}

// Ping checks database connectivity (used for readiness probes).
func (s *Store) Ping() error {
	return s.db.Ping()
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Subscribe registers a change listener invoked after every committed
// profile write.
func (s *Store) Subscribe(fn func(*profile.TenantProfile)) func() {
	return s.notifier.Subscribe(fn)
}

const profileColumns = "id, email, subscription_status, allowed_department, settings, created_at, updated_at"

// GetProfile fetches a profile by id.
func (s *Store) GetProfile(ctx context.Context, id string) (*profile.TenantProfile, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+profileColumns+" FROM profiles WHERE id = ?", id)
	return s.scanProfile(row, "get_profile", id)
}

// GetProfileByEmail fetches a profile by owner email.
func (s *Store) GetProfileByEmail(ctx context.Context, email string) (*profile.TenantProfile, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+profileColumns+" FROM profiles WHERE email = ?", strings.TrimSpace(email))
	return s.scanProfile(row, "get_profile_by_email", email)
}

// CreateProfile inserts a new tenant profile with the given settings.
func (s *Store) CreateProfile(ctx context.Context, email string, settings profile.TenantSettings) (*profile.TenantProfile, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, fmt.Errorf("%w: email required", apperrors.ErrInvalidInput)
	}

	id := ulid.Make().String()
	now := s.nowFn()

	blob, err := profile.EncodeSettings(settings)
	if err != nil {
		return nil, fmt.Errorf("encode settings: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO profiles (id, email, subscription_status, allowed_department, settings, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, email, string(profile.StatusActive),
		string(settings.RestaurantProfile.AllowedDepartment),
		string(blob), now.Unix(), now.Unix())
	if err != nil {
		return nil, apperrors.WrapConnectionError("create_profile", id, err)
	}

	return s.reload(ctx, "create_profile", id)
}

// UpdateSettings replaces the settings blob. The allowed department is
// governed by SetAllowedDepartment only and cannot be changed this way.
func (s *Store) UpdateSettings(ctx context.Context, id string, settings profile.TenantSettings) (*profile.TenantProfile, error) {
	current, err := s.GetProfile(ctx, id)
	if err != nil {
		return nil, err
	}

	// The column stays authoritative for the lock.
	settings.RestaurantProfile.AllowedDepartment = current.Settings.RestaurantProfile.AllowedDepartment

	blob, err := profile.EncodeSettings(settings)
	if err != nil {
		return nil, fmt.Errorf("encode settings: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"UPDATE profiles SET settings = ?, updated_at = ? WHERE id = ?",
		string(blob), s.nowFn().Unix(), id)
	if err != nil {
		return nil, apperrors.WrapConnectionError("update_settings", id, err)
	}

	return s.reload(ctx, "update_settings", id)
}

// SetPreferences updates the welcome-gate preferences inside the settings
// blob.
func (s *Store) SetPreferences(ctx context.Context, id string, prefs profile.UserPreferences) (*profile.TenantProfile, error) {
	current, err := s.GetProfile(ctx, id)
	if err != nil {
		return nil, err
	}

	settings := current.Settings
	settings.RestaurantProfile.UserPreferences = prefs
	return s.UpdateSettings(ctx, id, settings)
}

// SetAllowedDepartment persists the write-once department lock. The UPDATE
// is guarded on the stored value being unset; if another writer got there
// first with a different department, ErrDepartmentLocked is returned.
func (s *Store) SetAllowedDepartment(ctx context.Context, id string, dept profile.Department) (*profile.TenantProfile, error) {
	if !profile.LockableDepartments[dept] {
		return nil, fmt.Errorf("%w: department %q cannot be locked", apperrors.ErrInvalidInput, dept)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE profiles SET allowed_department = ?, updated_at = ?
		WHERE id = ? AND allowed_department = ''`,
		string(dept), s.nowFn().Unix(), id)
	if err != nil {
		return nil, apperrors.WrapConnectionError("set_department", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, apperrors.WrapConnectionError("set_department", id, err)
	}
	if affected == 0 {
		current, err := s.GetProfile(ctx, id)
		if err != nil {
			return nil, err
		}
		stored := current.Settings.RestaurantProfile.AllowedDepartment
		if stored == dept {
			// Idempotent: another device confirmed the same department.
			return current, nil
		}
		return nil, apperrors.WrapConflict("set_department", id,
			fmt.Errorf("%w to %q", apperrors.ErrDepartmentLocked, stored))
	}

	return s.reload(ctx, "set_department", id)
}

// SetSubscription mutates the administrative status, plan and end date.
func (s *Store) SetSubscription(ctx context.Context, id string, status profile.SubscriptionStatus, planType string, endDate *profile.DateOnly) (*profile.TenantProfile, error) {
	current, err := s.GetProfile(ctx, id)
	if err != nil {
		return nil, err
	}

	settings := current.Settings
	settings.RestaurantProfile.PlanType = planType
	settings.RestaurantProfile.SubscriptionEndDate = endDate

	blob, err := profile.EncodeSettings(settings)
	if err != nil {
		return nil, fmt.Errorf("encode settings: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"UPDATE profiles SET subscription_status = ?, settings = ?, updated_at = ? WHERE id = ?",
		string(status), string(blob), s.nowFn().Unix(), id)
	if err != nil {
		return nil, apperrors.WrapConnectionError("set_subscription", id, err)
	}

	return s.reload(ctx, "set_subscription", id)
}

// reload fetches the committed row and fans the change out to subscribers.
func (s *Store) reload(ctx context.Context, op, id string) (*profile.TenantProfile, error) {
	p, err := s.GetProfile(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s readback: %w", op, err)
	}
	s.notifier.Notify(p)
	return p, nil
}

func (s *Store) scanProfile(row *sql.Row, op, key string) (*profile.TenantProfile, error) {
	var (
		p                profile.TenantProfile
		status           string
		dept             string
		blob             string
		created, updated int64
	)
	err := row.Scan(&p.ID, &p.Email, &status, &dept, &blob, &created, &updated)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.WrapNotFound(op, key)
	}
	if err != nil {
		return nil, apperrors.WrapConnectionError(op, key, err)
	}

	p.SubscriptionStatus = profile.SubscriptionStatus(status)
	p.Settings = profile.DecodeSettings([]byte(blob))
	p.Settings.RestaurantProfile.AllowedDepartment = profile.ParseDepartment(dept)
	p.CreatedAt = time.Unix(created, 0)
	p.UpdatedAt = time.Unix(updated, 0)
	return &p, nil
}
