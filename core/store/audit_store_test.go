package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAuditLogAndList(t *testing.T) {
	audits := NewAuditStore(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, audits.Log(ctx, "Alice", "auth.login_success", ""))
	require.NoError(t, audits.Log(ctx, "", "auth.login_failed", "unknown user"))
	require.NoError(t, audits.LogEntity(ctx, "alice", "incident.created", "incident", 7, "Phishing"))

	all, err := audits.List(ctx, AuditFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "incident.created", all[0].Action)
	require.NotNil(t, all[0].EntityID)
	require.Equal(t, int64(7), *all[0].EntityID)
	require.Equal(t, "anonymous", all[1].Username)

	authOnly, err := audits.List(ctx, AuditFilter{ActionPrefix: "auth."})
	require.NoError(t, err)
	require.Len(t, authOnly, 2)

	mine, err := audits.List(ctx, AuditFilter{Username: "ALICE"})
	require.NoError(t, err)
	require.Len(t, mine, 2)

	limited, err := audits.List(ctx, AuditFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
}

func TestAuditPrune(t *testing.T) {
	db := setupTestDB(t)
	audits := NewAuditStore(db)
	ctx := context.Background()

	old := time.Now().UTC().Add(-100 * 24 * time.Hour)
	_, err := db.ExecContext(ctx, `INSERT INTO activity_log(username, action, details, created_at) VALUES(?,?,?,?)`, "system", "old.event", "", old)
	require.NoError(t, err)
	require.NoError(t, audits.Log(ctx, "system", "new.event", ""))

	n, err := audits.Prune(ctx, time.Now().Add(-90*24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	left, err := audits.List(ctx, AuditFilter{})
	require.NoError(t, err)
	require.Len(t, left, 1)
	require.Equal(t, "new.event", left[0].Action)
}
