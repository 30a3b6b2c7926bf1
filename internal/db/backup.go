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

// ExportBackup collects every authority, including its signing key, and
// every node.
func (s *Store) ExportBackup(ctx context.Context) (model.Backup, error) {
	var rows []AuthorityModel
	if err := s.bun.NewSelect().Model(&rows).Order("created_at ASC", "id ASC").Scan(ctx); err != nil {
		return model.Backup{}, MapDBError(err)
	}
	nodes, err := s.ListNodes(ctx)
	if err != nil {
		return model.Backup{}, err
	}

	b := model.Backup{
		Version:     model.BackupVersion,
		CreatedAt:   time.Now().UTC(),
		Authorities: make([]model.Authority, 0, len(rows)),
		PrivateKeys: make(map[string]string, len(rows)),
		Nodes:       nodes,
	}
	for _, r := range rows {
		b.Authorities = append(b.Authorities, r.toModel())
		b.PrivateKeys[r.ID] = r.PrivateKey
	}
	return b, nil
}

// ImportBackup loads b into the database. A full import replaces all
// existing authorities and nodes; otherwise records whose ID already exists
// are left alone and only new ones are added.
func (s *Store) ImportBackup(ctx context.Context, b model.Backup, full bool) error {
	if b.Version != model.BackupVersion {
		return fmt.Errorf("%w: unsupported backup version %d", ErrInvalid, b.Version)
	}
	for _, a := range b.Authorities {
		if b.PrivateKeys[a.ID] == "" {
			return fmt.Errorf("%w: backup has no signing key for authority %s", ErrInvalid, a.ID)
		}
	}

	return s.bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if full {
			if _, err := tx.NewDelete().Model((*NodeModel)(nil)).Where("1 = 1").Exec(ctx); err != nil {
				return MapDBError(err)
			}
			if _, err := tx.NewDelete().Model((*AuthorityModel)(nil)).Where("1 = 1").Exec(ctx); err != nil {
				return MapDBError(err)
			}
		}

		base := time.Now().UnixNano()
		added := 0
		for i, a := range b.Authorities {
			exists, err := tx.NewSelect().Model((*AuthorityModel)(nil)).Where("id = ?", a.ID).Exists(ctx)
			if err != nil {
				return MapDBError(err)
			}
			if exists {
				continue
			}
			row := &AuthorityModel{
				ID:                 a.ID,
				Name:               a.Name,
				PublicKey:          a.PublicKey,
				PrivateKey:         b.PrivateKeys[a.ID],
				KeyAlg:             a.Info.KeyAlg,
				HostCertificates:   a.HostCertificates,
				StrictHostChecking: a.StrictHostChecking,
				HostDomain:         a.HostDomain,
				HostProxy:          a.HostProxy,
				Expire:             int(a.Expire),
				HostExpire:         int(a.HostExpire),
				MatchRoles:         a.MatchRoles,
				Roles:              encodeList(NormalizeRoles(a.Roles)),
				HostTokens:         encodeList(a.HostTokens),
				CreatedAt:          base + int64(i),
			}
			if _, err := tx.NewInsert().Model(row).Exec(ctx); err != nil {
				return MapDBError(err)
			}
			added++
		}

		for i, n := range b.Nodes {
			exists, err := tx.NewSelect().Model((*NodeModel)(nil)).Where("id = ?", n.ID).Exists(ctx)
			if err != nil {
				return MapDBError(err)
			}
			if exists {
				continue
			}
			row := &NodeModel{ID: n.ID, CreatedAt: base + int64(i)}
			if err := applyNode(ctx, tx, row, n); err != nil {
				return fmt.Errorf("node %s: %w", n.ID, err)
			}
			if _, err := tx.NewInsert().Model(row).Exec(ctx); err != nil {
				return MapDBError(err)
			}
			added++
		}

		mode := "integrate"
		if full {
			mode = "full"
		}
		return logAction(ctx, tx, "IMPORT_BACKUP", fmt.Sprintf("mode: %s, records: %d", mode, added))
	})
}
