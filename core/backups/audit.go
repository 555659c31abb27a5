package backups

import (
	"context"

	"mdip/core/store"
)

const (
	AuditCreateSuccess    = "backup.created"
	AuditCreateFailed     = "backup.failed"
	AuditRetentionDeleted = "backup.retention_deleted"
)

func Log(ctx context.Context, audits store.AuditStore, username, action, result, details string) {
	if audits == nil {
		return
	}
	payload := "result=" + result
	if details != "" {
		payload = payload + " " + details
	}
	_ = audits.Log(ctx, username, action, payload)
}
