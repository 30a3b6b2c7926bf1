// Copyright (c) 2026 Keymaster Team
// Keymaster CA - SSH certificate authority console
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"fmt"
	"time"

	"github.com/toeirei/keymaster-ca/internal/model"
	"github.com/uptrace/bun"
)

// logAction records an audit row on idb, which is the surrounding
// transaction for mutations.
func logAction(ctx context.Context, idb bun.IDB, action, details string) error {
	row := &AuditLogModel{At: time.Now().UnixNano(), Action: action, Details: details}
	if _, err := idb.NewInsert().Model(row).Exec(ctx); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

// LogAction records an audit row outside of any mutation.
func (s *Store) LogAction(ctx context.Context, action, details string) error {
	return logAction(ctx, s.bun, action, details)
}

// ListAudit returns the newest audit entries first. A limit of zero or less
// returns everything.
func (s *Store) ListAudit(ctx context.Context, limit int) ([]model.AuditEntry, error) {
	var rows []AuditLogModel
	q := s.bun.NewSelect().Model(&rows).Order("at DESC", "id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, MapDBError(err)
	}
	out := make([]model.AuditEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.AuditEntry{
			ID:        r.ID,
			Timestamp: time.Unix(0, r.At),
			Action:    r.Action,
			Details:   r.Details,
		})
	}
	return out, nil
}
