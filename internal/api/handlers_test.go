// Copyright (c) 2026 Keymaster Team
// Keymaster CA - SSH certificate authority console
// This source code is licensed under the MIT license found in the LICENSE file.

package api

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/toeirei/keymaster-ca/internal/db"
	"github.com/toeirei/keymaster-ca/internal/model"
	"golang.org/x/crypto/ssh"
)

func newTestRouter(t *testing.T) (*gin.Engine, *db.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	s, err := db.NewStoreFromDSN("sqlite", "file:api_"+name+"?mode=memory&cache=shared", db.DefaultOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return NewRouter(s), s
}

func do(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		req, _ = http.NewRequest(method, path, bytes.NewReader(data))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req, _ = http.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealthCheck(t *testing.T) {
	r, _ := newTestRouter(t)
	w := do(t, r, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}

func TestAuthorityRoutes(t *testing.T) {
	r, _ := newTestRouter(t)

	w := do(t, r, http.MethodPost, "/authority", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var created model.Authority
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, db.DefaultAuthorityName, created.Name)

	w = do(t, r, http.MethodPost, "/authority", model.Authority{Name: "second"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = do(t, r, http.MethodGet, "/authority", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []model.Authority
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 2)
	assert.Equal(t, "second", list[1].Name)

	edit := created.Clone()
	edit.Name = "renamed"
	w = do(t, r, http.MethodPut, "/authority/"+created.ID, edit)
	require.Equal(t, http.StatusOK, w.Code)
	var saved model.Authority
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &saved))
	assert.Equal(t, "renamed", saved.Name)

	edit.Expire = model.NaN
	w = do(t, r, http.MethodPut, "/authority/"+created.ID, edit)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodPut, "/authority/missing", saved)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, r, http.MethodDelete, "/authority/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, r, http.MethodDelete, "/authority/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHostTokenRoutes(t *testing.T) {
	r, s := newTestRouter(t)
	a, err := s.CreateAuthority(context.Background(), nil)
	require.NoError(t, err)

	w := do(t, r, http.MethodPost, "/authority/"+a.ID+"/token", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	token := resp["token"]
	require.NotEmpty(t, token)

	w = do(t, r, http.MethodDelete, "/authority/"+a.ID+"/token/"+token, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, r, http.MethodDelete, "/authority/"+a.ID+"/token/"+token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestNodeRoutes(t *testing.T) {
	r, _ := newTestRouter(t)

	w := do(t, r, http.MethodPost, "/node", model.Node{Name: "web", Type: model.NodeUser})
	require.Equal(t, http.StatusCreated, w.Code)
	var n model.Node
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &n))

	w = do(t, r, http.MethodPost, "/node", model.Node{Name: "web"})
	assert.Equal(t, http.StatusConflict, w.Code)

	n.Type = model.NodeProxy
	w = do(t, r, http.MethodPut, "/node/"+n.ID, n)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, r, http.MethodGet, "/node", nil)
	var list []model.Node
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, model.NodeProxy, list[0].Type)

	w = do(t, r, http.MethodDelete, "/node/"+n.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestPublicKeys(t *testing.T) {
	r, s := newTestRouter(t)
	ctx := context.Background()
	a, err := s.CreateAuthority(ctx, nil)
	require.NoError(t, err)
	b, err := s.CreateAuthority(ctx, nil)
	require.NoError(t, err)

	w := do(t, r, http.MethodGet, fmt.Sprintf("/ssh_public_key/%s,%s", a.ID, b.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, a.PublicKey+"\n"+b.PublicKey+"\n", w.Body.String())

	w = do(t, r, http.MethodGet, "/ssh_public_key/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSignHostCertificate(t *testing.T) {
	r, s := newTestRouter(t)
	ctx := context.Background()
	a, err := s.CreateAuthority(ctx, &model.Authority{HostCertificates: true, HostExpire: 60})
	require.NoError(t, err)
	token, err := s.CreateHostToken(ctx, a.ID)
	require.NoError(t, err)

	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	sshPub, err := ssh.NewPublicKey(pub)
	require.NoError(t, err)
	hostKey := string(ssh.MarshalAuthorizedKey(sshPub))

	w := do(t, r, http.MethodPost, "/ssh_host_certificate", HostCertificateRequest{
		Token: token, PublicKey: hostKey, Hostnames: []string{"web.example.com"},
	})
	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp["certificate"], "-cert-v01@openssh.com")

	w = do(t, r, http.MethodPost, "/ssh_host_certificate", HostCertificateRequest{
		Token: "bogus", PublicKey: hostKey, Hostnames: []string{"web.example.com"},
	})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, r, http.MethodPost, "/ssh_host_certificate", map[string]any{"token": token})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, StatusFor(fmt.Errorf("x: %w", db.ErrNotFound)))
	assert.Equal(t, http.StatusConflict, StatusFor(db.ErrDuplicate))
	assert.Equal(t, http.StatusBadRequest, StatusFor(db.ErrInvalid))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(errors.New("boom")))
}
