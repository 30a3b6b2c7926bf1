// Copyright (c) 2026 Keymaster Team
// Keymaster CA - SSH certificate authority console
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/toeirei/keymaster-ca/internal/model"
	"github.com/uptrace/bun"
)

func validNodeType(t model.NodeType) bool {
	switch t {
	case model.NodeManagement, model.NodeUser, model.NodeProxy:
		return true
	}
	return false
}

// applyNode validates n and copies it onto row. Referenced authorities must
// exist.
func applyNode(ctx context.Context, idb bun.IDB, row *NodeModel, n model.Node) error {
	name := strings.TrimSpace(n.Name)
	if name == "" {
		return fmt.Errorf("%w: node name is required", ErrInvalid)
	}
	if n.Type == "" {
		n.Type = model.NodeUser
	}
	if !validNodeType(n.Type) {
		return fmt.Errorf("%w: unknown node type %q", ErrInvalid, n.Type)
	}
	ids := slices.Clone(n.Authorities)
	slices.Sort(ids)
	ids = slices.Compact(ids)
	if len(ids) > 0 {
		count, err := idb.NewSelect().Model((*AuthorityModel)(nil)).Where("id IN (?)", bun.In(ids)).Count(ctx)
		if err != nil {
			return MapDBError(err)
		}
		if count != len(ids) {
			return fmt.Errorf("%w: node references unknown authorities", ErrInvalid)
		}
	}
	row.Name = name
	row.Type = string(n.Type)
	row.Authorities = encodeList(ids)
	return nil
}

// ListNodes returns every node in creation order.
func (s *Store) ListNodes(ctx context.Context) ([]model.Node, error) {
	var rows []NodeModel
	if err := s.bun.NewSelect().Model(&rows).Order("created_at ASC", "id ASC").Scan(ctx); err != nil {
		return nil, MapDBError(err)
	}
	out := make([]model.Node, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

// GetNode returns one node.
func (s *Store) GetNode(ctx context.Context, id string) (model.Node, error) {
	row := new(NodeModel)
	if err := s.bun.NewSelect().Model(row).Where("id = ?", id).Limit(1).Scan(ctx); err != nil {
		return model.Node{}, MapDBError(err)
	}
	return row.toModel(), nil
}

// CreateNode stores a new node. Names are unique.
func (s *Store) CreateNode(ctx context.Context, n model.Node) (model.Node, error) {
	row := &NodeModel{ID: uuid.NewString(), CreatedAt: time.Now().UnixNano()}
	err := s.bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := applyNode(ctx, tx, row, n); err != nil {
			return err
		}
		if _, err := tx.NewInsert().Model(row).Exec(ctx); err != nil {
			return MapDBError(err)
		}
		return logAction(ctx, tx, "CREATE_NODE", fmt.Sprintf("id: %s, name: %s, type: %s", row.ID, row.Name, row.Type))
	})
	if err != nil {
		return model.Node{}, err
	}
	return row.toModel(), nil
}

// UpdateNode replaces name, type and deployed authorities of a node.
func (s *Store) UpdateNode(ctx context.Context, n model.Node) (model.Node, error) {
	var out model.Node
	err := s.bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		row := new(NodeModel)
		if err := tx.NewSelect().Model(row).Where("id = ?", n.ID).Limit(1).Scan(ctx); err != nil {
			return MapDBError(err)
		}
		if err := applyNode(ctx, tx, row, n); err != nil {
			return err
		}
		if _, err := tx.NewUpdate().Model(row).Column("name", "type", "authorities").WherePK().Exec(ctx); err != nil {
			return MapDBError(err)
		}
		out = row.toModel()
		return logAction(ctx, tx, "UPDATE_NODE", fmt.Sprintf("id: %s, authorities: %s", row.ID, strings.Join(out.Authorities, ",")))
	})
	return out, err
}

// DeleteNode removes a node.
func (s *Store) DeleteNode(ctx context.Context, id string) error {
	return s.bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewDelete().Model((*NodeModel)(nil)).Where("id = ?", id).Exec(ctx)
		if err != nil {
			return MapDBError(err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return ErrNotFound
		}
		return logAction(ctx, tx, "DELETE_NODE", "id: "+id)
	})
}
