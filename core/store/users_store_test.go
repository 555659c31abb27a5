package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"mdip/config"
	"mdip/core/utils"

	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	cfg := &config.AppConfig{DBDriver: "sqlite", DBPath: filepath.Join(t.TempDir(), "store.db")}
	logger := utils.NewNopLogger()
	db, err := NewDB(cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, ApplyMigrations(context.Background(), db, logger))
	return db
}

func TestUsersCreateAndFind(t *testing.T) {
	users := NewUsersStore(setupTestDB(t))
	ctx := context.Background()

	id, err := users.Create(ctx, "Alice", "hash-1", "user")
	require.NoError(t, err)
	require.Equal(t, int64(1), id)

	u, err := users.FindByUsername(ctx, "  ALICE ")
	require.NoError(t, err)
	require.NotNil(t, u)
	require.Equal(t, "alice", u.Username)
	require.Equal(t, "hash-1", u.PasswordHash)
	require.Equal(t, "user", u.Role)
	require.False(t, u.CreatedAt.IsZero())

	byID, err := users.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, u.Username, byID.Username)

	missing, err := users.FindByUsername(ctx, "bob")
	require.NoError(t, err)
	require.Nil(t, missing)
	missing, err = users.Get(ctx, 999)
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestUsersDuplicateKeepsFirstHash(t *testing.T) {
	users := NewUsersStore(setupTestDB(t))
	ctx := context.Background()

	_, err := users.Create(ctx, "alice", "first", "user")
	require.NoError(t, err)
	_, err = users.Create(ctx, "Alice", "second", "admin")
	require.ErrorIs(t, err, ErrDuplicateUsername)

	u, err := users.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, "first", u.PasswordHash)
	require.Equal(t, "user", u.Role)
}

func TestUsersRoleCheckConstraint(t *testing.T) {
	users := NewUsersStore(setupTestDB(t))
	_, err := users.Create(context.Background(), "mallory", "h", "root")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrDuplicateUsername)
}

func TestUsersIDsNotReusedAfterDelete(t *testing.T) {
	users := NewUsersStore(setupTestDB(t))
	ctx := context.Background()

	first, err := users.Create(ctx, "alice", "h", "user")
	require.NoError(t, err)
	require.NoError(t, users.Delete(ctx, first))
	require.ErrorIs(t, users.Delete(ctx, first), ErrNotFound)

	second, err := users.Create(ctx, "alice", "h2", "user")
	require.NoError(t, err)
	require.Greater(t, second, first)
}

func TestUsersUpdatesReportMissingRows(t *testing.T) {
	users := NewUsersStore(setupTestDB(t))
	ctx := context.Background()

	require.ErrorIs(t, users.UpdatePasswordHash(ctx, 42, "h"), ErrNotFound)
	require.ErrorIs(t, users.UpdateRole(ctx, 42, "admin"), ErrNotFound)

	id, err := users.Create(ctx, "alice", "h", "user")
	require.NoError(t, err)
	require.NoError(t, users.UpdatePasswordHash(ctx, id, "h2"))
	require.NoError(t, users.UpdateRole(ctx, id, "editor"))
	u, err := users.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "h2", u.PasswordHash)
	require.Equal(t, "editor", u.Role)
	require.NotNil(t, u.UpdatedAt)
}

func TestUsersListNewestFirst(t *testing.T) {
	users := NewUsersStore(setupTestDB(t))
	ctx := context.Background()
	for _, name := range []string{"alice", "bob", "carol"} {
		_, err := users.Create(ctx, name, "h", "user")
		require.NoError(t, err)
	}
	list, err := users.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	require.Equal(t, "carol", list[0].Username)
	require.Equal(t, "alice", list[2].Username)

	n, err := users.CountByRole(ctx, "user")
	require.NoError(t, err)
	require.Equal(t, 3, n)
}

func TestUsersLoginFailureLocks(t *testing.T) {
	users := NewUsersStore(setupTestDB(t))
	ctx := context.Background()
	id, err := users.Create(ctx, "alice", "h", "user")
	require.NoError(t, err)

	until := time.Now().Add(time.Hour)
	for i := 1; i <= 2; i++ {
		n, err := users.RecordLoginFailure(ctx, id, false, 3, until)
		require.NoError(t, err)
		require.Equal(t, i, n)
	}
	u, _ := users.Get(ctx, id)
	require.False(t, u.IsLocked(time.Now()))

	n, err := users.RecordLoginFailure(ctx, id, false, 3, until)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	u, _ = users.Get(ctx, id)
	require.True(t, u.IsLocked(time.Now()))

	n, err = users.RecordLoginFailure(ctx, id, true, 3, until)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	u, _ = users.Get(ctx, id)
	require.False(t, u.IsLocked(time.Now()))

	require.NoError(t, users.RecordLoginSuccess(ctx, id))
	u, _ = users.Get(ctx, id)
	require.Zero(t, u.FailedAttempts)
	require.NotNil(t, u.LastLoginAt)

	_, err = users.RecordLoginFailure(ctx, 999, false, 3, until)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUsersUnlockAndTOTP(t *testing.T) {
	users := NewUsersStore(setupTestDB(t))
	ctx := context.Background()
	id, err := users.Create(ctx, "alice", "h", "user")
	require.NoError(t, err)

	_, err = users.RecordLoginFailure(ctx, id, false, 1, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.NoError(t, users.Unlock(ctx, id))
	u, _ := users.Get(ctx, id)
	require.False(t, u.IsLocked(time.Now()))
	require.Zero(t, u.FailedAttempts)

	require.NoError(t, users.SetTOTP(ctx, id, "SECRET", true))
	u, _ = users.Get(ctx, id)
	require.Equal(t, "SECRET", u.TOTPSecret)
	require.True(t, u.TOTPEnabled)
}

func TestUsersTOTPStepOnlyMovesForward(t *testing.T) {
	users := NewUsersStore(setupTestDB(t))
	ctx := context.Background()
	id, err := users.Create(ctx, "alice", "h", "user")
	require.NoError(t, err)
	require.NoError(t, users.SetTOTP(ctx, id, "SECRETA", true))

	ok, err := users.AdvanceTOTPStep(ctx, id, 100)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = users.AdvanceTOTPStep(ctx, id, 100)
	require.NoError(t, err)
	require.False(t, ok)
	ok, err = users.AdvanceTOTPStep(ctx, id, 99)
	require.NoError(t, err)
	require.False(t, ok)

	// Same secret keeps the spent step, a new one clears it.
	require.NoError(t, users.SetTOTP(ctx, id, "SECRETA", true))
	u, err := users.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, int64(100), u.TOTPLastStep)
	require.NoError(t, users.SetTOTP(ctx, id, "SECRETB", false))
	u, err = users.Get(ctx, id)
	require.NoError(t, err)
	require.Zero(t, u.TOTPLastStep)

	ok, err = users.AdvanceTOTPStep(ctx, 999, 5)
	require.NoError(t, err)
	require.False(t, ok)
}
