// Copyright (c) 2026 Keymaster Team
// Keymaster CA - SSH certificate authority console
// This source code is licensed under the MIT license found in the LICENSE file.

package remote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/toeirei/keymaster-ca/internal/actions"
	"github.com/toeirei/keymaster-ca/internal/api"
	"github.com/toeirei/keymaster-ca/internal/db"
	"github.com/toeirei/keymaster-ca/internal/model"
)

var (
	_ actions.Remote = (*Client)(nil)
	_ api.Backend    = (*Client)(nil)
	_ api.Backend    = (*db.Store)(nil)
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	gin.SetMode(gin.TestMode)
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	s, err := db.NewStoreFromDSN("sqlite", "file:remote_"+name+"?mode=memory&cache=shared", db.DefaultOptions())
	require.NoError(t, err)
	srv := httptest.NewServer(api.NewRouter(s))
	t.Cleanup(func() {
		srv.Close()
		_ = s.Close()
	})
	return New(srv.URL+"/", nil)
}

func TestClient_AuthorityRoundTrip(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	a, err := c.CreateAuthority(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, db.DefaultAuthorityName, a.Name)
	assert.NotEmpty(t, a.PublicKey)

	named, err := c.CreateAuthority(ctx, &model.Authority{Name: "named", Roles: []string{"b", "a"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, named.Roles)

	edit := a.Clone()
	edit.Name = "edited"
	edit.MatchRoles = true
	saved, err := c.UpdateAuthority(ctx, edit)
	require.NoError(t, err)
	assert.Equal(t, "edited", saved.Name)
	assert.True(t, saved.MatchRoles)

	list, err := c.ListAuthorities(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.True(t, saved.Equal(list[0]))

	keys, err := c.PublicKeys(ctx, []string{named.ID, a.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{named.PublicKey, a.PublicKey}, keys)

	require.NoError(t, c.DeleteAuthority(ctx, a.ID))
	assert.ErrorIs(t, c.DeleteAuthority(ctx, a.ID), db.ErrNotFound)
}

func TestClient_MapsStatusToSentinels(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	_, err := c.UpdateAuthority(ctx, model.Authority{ID: "missing", Name: "x", Expire: 10})
	assert.ErrorIs(t, err, db.ErrNotFound)

	a, err := c.CreateAuthority(ctx, nil)
	require.NoError(t, err)
	bad := a.Clone()
	bad.Expire = model.NaN
	_, err = c.UpdateAuthority(ctx, bad)
	assert.ErrorIs(t, err, db.ErrInvalid)

	_, err = c.CreateNode(ctx, model.Node{Name: "dup"})
	require.NoError(t, err)
	_, err = c.CreateNode(ctx, model.Node{Name: "dup"})
	assert.ErrorIs(t, err, db.ErrDuplicate)
}

func TestClient_TokensAndNodes(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	a, err := c.CreateAuthority(ctx, nil)
	require.NoError(t, err)

	token, err := c.CreateHostToken(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, token, 64)
	require.NoError(t, c.DeleteHostToken(ctx, a.ID, token))
	assert.ErrorIs(t, c.DeleteHostToken(ctx, a.ID, token), db.ErrNotFound)

	n, err := c.CreateNode(ctx, model.Node{Name: "web"})
	require.NoError(t, err)
	n.Authorities = []string{a.ID}
	n, err = c.UpdateNode(ctx, n)
	require.NoError(t, err)
	assert.True(t, n.Deployed(a.ID))

	nodes, err := c.ListNodes(ctx)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	require.NoError(t, c.DeleteNode(ctx, n.ID))
}

func TestClient_DrivesDispatcher(t *testing.T) {
	c := newTestClient(t)
	d := actions.NewDispatcher(c)
	ctx := context.Background()

	a, err := d.Create(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, 1, d.Authorities.Len())

	n, err := d.CommitNode(ctx, model.Node{Name: "web"})
	require.NoError(t, err)
	require.NoError(t, d.Deploy(ctx, n.ID, a.ID, true))
	assert.True(t, d.Nodes.Get()[0].Deployed(a.ID))

	require.NoError(t, d.Remove(ctx, a.ID))
	assert.Equal(t, 0, d.Authorities.Len())
	assert.False(t, d.Nodes.Get()[0].Deployed(a.ID))
}

func TestClient_ServerErrorIsNotASentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "database on fire", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := New(srv.URL, nil).ListAuthorities(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, db.ErrNotFound)
	assert.Contains(t, err.Error(), "database on fire")
}
