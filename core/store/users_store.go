package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"mdip/core/utils"
)

// User is a persisted account. The hash is opaque to this package.
type User struct {
	ID             int64      `json:"id"`
	Username       string     `json:"username"`
	PasswordHash   string     `json:"-"`
	Role           string     `json:"role"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      *time.Time `json:"updated_at,omitempty"`
	FailedAttempts int        `json:"failed_attempts"`
	LockedUntil    *time.Time `json:"locked_until,omitempty"`
	LastLoginAt    *time.Time `json:"last_login_at,omitempty"`
	TOTPSecret     string     `json:"-"`
	TOTPEnabled    bool       `json:"totp_enabled"`
	// TOTPLastStep is the latest accepted TOTP time step; codes at or before it are spent.
	TOTPLastStep   int64      `json:"-"`
}

// IsLocked reports whether a lockout is in effect at now.
func (u *User) IsLocked(now time.Time) bool {
	return u != nil && u.LockedUntil != nil && u.LockedUntil.After(now)
}

type UsersStore interface {
	Create(ctx context.Context, username, passwordHash, role string) (int64, error)
	Get(ctx context.Context, id int64) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
	UpdatePasswordHash(ctx context.Context, id int64, passwordHash string) error
	UpdateRole(ctx context.Context, id int64, role string) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context) ([]User, error)
	CountByRole(ctx context.Context, role string) (int, error)

	RecordLoginFailure(ctx context.Context, id int64, restart bool, lockAfter int, lockUntil time.Time) (int, error)
	RecordLoginSuccess(ctx context.Context, id int64) error
	Unlock(ctx context.Context, id int64) error
	SetTOTP(ctx context.Context, id int64, secret string, enabled bool) error
	AdvanceTOTPStep(ctx context.Context, id int64, step int64) (bool, error)
}

type usersStore struct {
	db *sql.DB
	b  binder
}

func NewUsersStore(db *sql.DB) UsersStore {
	return &usersStore{db: db, b: newBinder(db)}
}

const userColumns = `id, username, password_hash, role, created_at, updated_at, failed_attempts, locked_until, last_login_at, totp_secret, totp_enabled, totp_last_step`

func (s *usersStore) Create(ctx context.Context, username, passwordHash, role string) (int64, error) {
	now := utils.NowUTC()
	var id int64
	err := s.db.QueryRowContext(ctx, s.b.q(`
		INSERT INTO users(username, password_hash, role, created_at, updated_at)
		VALUES(?,?,?,?,?) RETURNING id`),
		utils.NormalizeUsername(username), passwordHash, role, now, now).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrDuplicateUsername
		}
		return 0, err
	}
	return id, nil
}

func (s *usersStore) Get(ctx context.Context, id int64) (*User, error) {
	row := s.db.QueryRowContext(ctx, s.b.q(`SELECT `+userColumns+` FROM users WHERE id=?`), id)
	return scanUser(row)
}

func (s *usersStore) FindByUsername(ctx context.Context, username string) (*User, error) {
	name := utils.NormalizeUsername(username)
	if name == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, s.b.q(`SELECT `+userColumns+` FROM users WHERE username=?`), name)
	return scanUser(row)
}

func (s *usersStore) UpdatePasswordHash(ctx context.Context, id int64, passwordHash string) error {
	return s.execOne(ctx, `UPDATE users SET password_hash=?, updated_at=? WHERE id=?`, passwordHash, utils.NowUTC(), id)
}

func (s *usersStore) UpdateRole(ctx context.Context, id int64, role string) error {
	return s.execOne(ctx, `UPDATE users SET role=?, updated_at=? WHERE id=?`, role, utils.NowUTC(), id)
}

func (s *usersStore) Delete(ctx context.Context, id int64) error {
	return s.execOne(ctx, `DELETE FROM users WHERE id=?`, id)
}

func (s *usersStore) List(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *u)
	}
	return res, rows.Err()
}

func (s *usersStore) CountByRole(ctx context.Context, role string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.b.q(`SELECT COUNT(*) FROM users WHERE role=?`), role).Scan(&n)
	return n, err
}

// RecordLoginFailure bumps the failure counter atomically and returns the new value.
// restart begins a fresh count (the previous lock expired). When lockAfter is positive and
// the counter reaches it, the account is locked until lockUntil.
func (s *usersStore) RecordLoginFailure(ctx context.Context, id int64, restart bool, lockAfter int, lockUntil time.Time) (int, error) {
	var attempts int
	err := s.db.QueryRowContext(ctx, s.b.q(`
		UPDATE users SET
			failed_attempts = CASE WHEN ? THEN 1 ELSE failed_attempts + 1 END,
			locked_until = NULL,
			updated_at = ?
		WHERE id=? RETURNING failed_attempts`),
		restart, utils.NowUTC(), id).Scan(&attempts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	if lockAfter > 0 && attempts >= lockAfter {
		if err := s.execOne(ctx, `UPDATE users SET locked_until=? WHERE id=?`, lockUntil.UTC(), id); err != nil {
			return attempts, err
		}
	}
	return attempts, nil
}

func (s *usersStore) RecordLoginSuccess(ctx context.Context, id int64) error {
	now := utils.NowUTC()
	return s.execOne(ctx, `UPDATE users SET failed_attempts=0, locked_until=NULL, last_login_at=? WHERE id=?`, now, id)
}

func (s *usersStore) Unlock(ctx context.Context, id int64) error {
	return s.execOne(ctx, `UPDATE users SET failed_attempts=0, locked_until=NULL, updated_at=? WHERE id=?`, utils.NowUTC(), id)
}

// SetTOTP stores the secret and its state. Replacing the secret forgets the spent step.
func (s *usersStore) SetTOTP(ctx context.Context, id int64, secret string, enabled bool) error {
	return s.execOne(ctx, `
		UPDATE users SET
			totp_last_step = CASE WHEN totp_secret = ? THEN totp_last_step ELSE 0 END,
			totp_secret=?, totp_enabled=?, updated_at=?
		WHERE id=?`, secret, secret, enabled, utils.NowUTC(), id)
}

// AdvanceTOTPStep claims step for the user. It reports false when an equal or later step was
// already accepted, so a code is good for one login only.
func (s *usersStore) AdvanceTOTPStep(ctx context.Context, id int64, step int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.b.q(`UPDATE users SET totp_last_step=? WHERE id=? AND totp_last_step < ?`), step, id, step)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (s *usersStore) execOne(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, s.b.q(query), args...)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	var u User
	var role sql.NullString
	var created, updated, locked, lastLogin sql.NullTime
	var failed sql.NullInt64
	var totpSecret sql.NullString
	var totpEnabled sql.NullBool
	var totpStep sql.NullInt64
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &role, &created, &updated, &failed, &locked, &lastLogin, &totpSecret, &totpEnabled, &totpStep); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	// An empty or unknown role is kept as stored; role checks reject it.
	u.Role = role.String
	if created.Valid {
		u.CreatedAt = created.Time
	}
	if updated.Valid {
		u.UpdatedAt = &updated.Time
	}
	if locked.Valid {
		u.LockedUntil = &locked.Time
	}
	if lastLogin.Valid {
		u.LastLoginAt = &lastLogin.Time
	}
	u.FailedAttempts = int(failed.Int64)
	u.TOTPSecret = totpSecret.String
	u.TOTPEnabled = totpEnabled.Valid && totpEnabled.Bool
	u.TOTPLastStep = totpStep.Int64
	return &u, nil
}
