// Copyright (c) 2026 Keymaster Team
// Keymaster CA - SSH certificate authority console
// This source code is licensed under the MIT license found in the LICENSE file.

// Package actions is the single write path of the console. Every mutation
// goes to the Remote and, on success, the affected snapshots are refreshed
// so subscribed views re-render from authoritative data.
package actions

import (
	"context"
	"fmt"
	"slices"

	"github.com/toeirei/keymaster-ca/internal/logging"
	"github.com/toeirei/keymaster-ca/internal/model"
	"github.com/toeirei/keymaster-ca/internal/store"
	"golang.org/x/sync/errgroup"
)

// Remote is the authoritative store. Every method may fail independently.
type Remote interface {
	ListAuthorities(ctx context.Context) ([]model.Authority, error)
	CreateAuthority(ctx context.Context, initial *model.Authority) (model.Authority, error)
	UpdateAuthority(ctx context.Context, a model.Authority) (model.Authority, error)
	DeleteAuthority(ctx context.Context, id string) error
	CreateHostToken(ctx context.Context, authorityID string) (string, error)
	DeleteHostToken(ctx context.Context, authorityID, token string) error

	ListNodes(ctx context.Context) ([]model.Node, error)
	CreateNode(ctx context.Context, n model.Node) (model.Node, error)
	UpdateNode(ctx context.Context, n model.Node) (model.Node, error)
	DeleteNode(ctx context.Context, id string) error
}

// Dispatcher runs mutations against a Remote and keeps the snapshots in
// sync. One Dispatcher is created per session and shared by every view.
type Dispatcher struct {
	remote      Remote
	Authorities *store.Snapshot[model.Authority]
	Nodes       *store.Snapshot[model.Node]
}

// NewDispatcher returns a dispatcher with empty snapshots.
func NewDispatcher(r Remote) *Dispatcher {
	return &Dispatcher{
		remote:      r,
		Authorities: store.New[model.Authority](nil),
		Nodes:       store.New[model.Node](nil),
	}
}

// SyncAuthorities reloads the authority snapshot.
func (d *Dispatcher) SyncAuthorities(ctx context.Context) error {
	list, err := d.remote.ListAuthorities(ctx)
	if err != nil {
		logging.Errorf("actions: failed to list authorities: %v", err)
		return err
	}
	d.Authorities.Publish(list)
	return nil
}

// SyncNodes reloads the node snapshot.
func (d *Dispatcher) SyncNodes(ctx context.Context) error {
	list, err := d.remote.ListNodes(ctx)
	if err != nil {
		logging.Errorf("actions: failed to list nodes: %v", err)
		return err
	}
	d.Nodes.Publish(list)
	return nil
}

// SyncAll reloads both snapshots concurrently. The two loads are
// independent: one failing does not stop the other from publishing. The
// first error is returned.
func (d *Dispatcher) SyncAll(ctx context.Context) error {
	var g errgroup.Group
	g.Go(func() error { return d.SyncAuthorities(ctx) })
	g.Go(func() error { return d.SyncNodes(ctx) })
	return g.Wait()
}

// refresh runs after a successful mutation. A failed reload is logged only;
// the mutation itself already succeeded.
func (d *Dispatcher) refresh(ctx context.Context, authorities, nodes bool) {
	switch {
	case authorities && nodes:
		_ = d.SyncAll(ctx)
	case authorities:
		_ = d.SyncAuthorities(ctx)
	case nodes:
		_ = d.SyncNodes(ctx)
	}
}

// Create adds an authority. initial may be nil to take every default.
func (d *Dispatcher) Create(ctx context.Context, initial *model.Authority) (model.Authority, error) {
	a, err := d.remote.CreateAuthority(ctx, initial)
	if err != nil {
		logging.Errorf("actions: failed to create authority: %v", err)
		return model.Authority{}, err
	}
	logging.Infof("actions: created authority %s", a.ID)
	d.refresh(ctx, true, false)
	return a, nil
}

// Commit upserts a: an authority without ID is created, otherwise updated.
func (d *Dispatcher) Commit(ctx context.Context, a model.Authority) (model.Authority, error) {
	if a.ID == "" {
		return d.Create(ctx, &a)
	}
	saved, err := d.remote.UpdateAuthority(ctx, a)
	if err != nil {
		logging.Errorf("actions: failed to save authority %s: %v", a.ID, err)
		return model.Authority{}, err
	}
	d.refresh(ctx, true, false)
	return saved, nil
}

// Remove deletes an authority. Nodes are refreshed too since the authority
// is detached from them.
func (d *Dispatcher) Remove(ctx context.Context, id string) error {
	if err := d.remote.DeleteAuthority(ctx, id); err != nil {
		logging.Errorf("actions: failed to delete authority %s: %v", id, err)
		return err
	}
	logging.Infof("actions: deleted authority %s", id)
	d.refresh(ctx, true, true)
	return nil
}

// CreateToken adds a host token to an authority and returns it.
func (d *Dispatcher) CreateToken(ctx context.Context, authorityID string) (string, error) {
	token, err := d.remote.CreateHostToken(ctx, authorityID)
	if err != nil {
		logging.Errorf("actions: failed to create host token for %s: %v", authorityID, err)
		return "", err
	}
	d.refresh(ctx, true, false)
	return token, nil
}

// DeleteToken removes a host token from an authority.
func (d *Dispatcher) DeleteToken(ctx context.Context, authorityID, token string) error {
	if err := d.remote.DeleteHostToken(ctx, authorityID, token); err != nil {
		logging.Errorf("actions: failed to delete host token of %s: %v", authorityID, err)
		return err
	}
	d.refresh(ctx, true, false)
	return nil
}

// CommitNode upserts a node: a node without ID is created.
func (d *Dispatcher) CommitNode(ctx context.Context, n model.Node) (model.Node, error) {
	var (
		saved model.Node
		err   error
	)
	if n.ID == "" {
		saved, err = d.remote.CreateNode(ctx, n)
	} else {
		saved, err = d.remote.UpdateNode(ctx, n)
	}
	if err != nil {
		logging.Errorf("actions: failed to save node %q: %v", n.Name, err)
		return model.Node{}, err
	}
	d.refresh(ctx, false, true)
	return saved, nil
}

// RemoveNode deletes a node.
func (d *Dispatcher) RemoveNode(ctx context.Context, id string) error {
	if err := d.remote.DeleteNode(ctx, id); err != nil {
		logging.Errorf("actions: failed to delete node %s: %v", id, err)
		return err
	}
	d.refresh(ctx, false, true)
	return nil
}

// Deploy adds (on) or removes (!on) an authority on a node.
func (d *Dispatcher) Deploy(ctx context.Context, nodeID, authorityID string, on bool) error {
	nodes := d.Nodes.Get()
	i := slices.IndexFunc(nodes, func(n model.Node) bool { return n.ID == nodeID })
	if i < 0 {
		fresh, err := d.remote.ListNodes(ctx)
		if err != nil {
			logging.Errorf("actions: failed to list nodes: %v", err)
			return err
		}
		nodes = fresh
		if i = slices.IndexFunc(nodes, func(n model.Node) bool { return n.ID == nodeID }); i < 0 {
			err := fmt.Errorf("node %s not found", nodeID)
			logging.Errorf("actions: %v", err)
			return err
		}
	}

	n := nodes[i].Clone()
	if n.Deployed(authorityID) == on {
		return nil
	}
	if on {
		n.Authorities = append(n.Authorities, authorityID)
	} else {
		n.Authorities = slices.DeleteFunc(n.Authorities, func(id string) bool { return id == authorityID })
	}
	_, err := d.CommitNode(ctx, n)
	return err
}
