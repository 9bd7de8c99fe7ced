package shared

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agrawalpuran/uds-refresh-sub018/internal/workflow"
)

// AuditWriter is implemented by anything that can persist a transition audit
// entry. Services take the interface so tests can capture entries in memory.
type AuditWriter interface {
	Record(ctx context.Context, entry workflow.AuditEntry) error
}

// AuditLogger writes accepted status transitions into status_audit_logs.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// Record persists the audit entry.
func (l *AuditLogger) Record(ctx context.Context, entry workflow.AuditEntry) error {
	if l == nil {
		return errors.New("audit logger not initialised")
	}
	if entry.EntityType == "" || entry.EntityID == "" {
		return errors.New("audit entry requires entity type and id")
	}
	metaJSON, err := json.Marshal(entry.Metadata)
	if err != nil {
		return err
	}
	_, err = l.pool.Exec(ctx, `INSERT INTO status_audit_logs
(entity_type, entity_id, prev_legacy, prev_unified, new_legacy, new_unified, updated_by, reason, source, meta, transitioned_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, COALESCE($11, NOW()))`,
		string(entry.EntityType), entry.EntityID,
		entry.PrevLegacy, entry.PrevUnified,
		entry.NewLegacy, entry.NewUnified,
		entry.UpdatedBy, entry.Reason, entry.Source,
		metaJSON, entry.TransitionedAt)
	return err
}
