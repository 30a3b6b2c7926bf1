// Copyright (c) 2026 Keymaster Team
// Keymaster CA - SSH certificate authority console
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/toeirei/keymaster-ca/internal/model"
	"github.com/toeirei/keymaster-ca/internal/sshca"
	"github.com/uptrace/bun"
)

// DefaultAuthorityName is given to authorities created without a name.
const DefaultAuthorityName = "New Authority"

// Expiry bounds in minutes.
const (
	MinExpire     = 1
	MinHostExpire = 15
	MaxExpire     = 1440
)

// NormalizeRoles trims, de-duplicates and sorts roles.
func NormalizeRoles(roles []string) []string {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// applyEditable copies the operator-editable fields of a onto row,
// rejecting values the store cannot hold.
func applyEditable(row *AuthorityModel, a model.Authority) error {
	name := strings.TrimSpace(a.Name)
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalid)
	}
	if !a.Expire.Valid() || a.Expire < MinExpire || a.Expire > MaxExpire {
		return fmt.Errorf("%w: expire must be between %d and %d minutes, got %s", ErrInvalid, MinExpire, MaxExpire, a.Expire)
	}
	hostExpireOK := a.HostExpire.Valid() && a.HostExpire >= MinHostExpire && a.HostExpire <= MaxExpire
	if a.HostCertificates && !hostExpireOK {
		return fmt.Errorf("%w: host expire must be between %d and %d minutes, got %s", ErrInvalid, MinHostExpire, MaxExpire, a.HostExpire)
	}

	row.Name = name
	row.HostCertificates = a.HostCertificates
	row.StrictHostChecking = a.StrictHostChecking
	row.HostDomain = strings.TrimSpace(a.HostDomain)
	row.HostProxy = strings.TrimSpace(a.HostProxy)
	row.Expire = int(a.Expire)
	// A disabled host section keeps its last good value.
	if hostExpireOK {
		row.HostExpire = int(a.HostExpire)
	}
	row.MatchRoles = a.MatchRoles
	row.Roles = encodeList(NormalizeRoles(a.Roles))
	return nil
}

var editableColumns = []string{
	"name", "host_certificates", "strict_host_checking", "host_domain", "host_proxy",
	"expire", "host_expire", "match_roles", "roles",
}

func (s *Store) loadAuthority(ctx context.Context, idb bun.IDB, id string) (*AuthorityModel, error) {
	row := new(AuthorityModel)
	if err := idb.NewSelect().Model(row).Where("id = ?", id).Limit(1).Scan(ctx); err != nil {
		return nil, MapDBError(err)
	}
	return row, nil
}

// ListAuthorities returns every authority in creation order.
func (s *Store) ListAuthorities(ctx context.Context) ([]model.Authority, error) {
	var rows []AuthorityModel
	if err := s.bun.NewSelect().Model(&rows).Order("created_at ASC", "id ASC").Scan(ctx); err != nil {
		return nil, MapDBError(err)
	}
	out := make([]model.Authority, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

// GetAuthority returns one authority.
func (s *Store) GetAuthority(ctx context.Context, id string) (model.Authority, error) {
	row, err := s.loadAuthority(ctx, s.bun, id)
	if err != nil {
		return model.Authority{}, err
	}
	return row.toModel(), nil
}

// CreateAuthority stores a new authority with a fresh signing key. Fields set
// on initial override the configured defaults; initial may be nil.
func (s *Store) CreateAuthority(ctx context.Context, initial *model.Authority) (model.Authority, error) {
	a := model.Authority{
		Name:       DefaultAuthorityName,
		Expire:     model.Minutes(s.opts.Expire),
		HostExpire: model.Minutes(s.opts.HostExpire),
	}
	if initial != nil {
		if strings.TrimSpace(initial.Name) != "" {
			a.Name = initial.Name
		}
		if initial.Expire.Valid() && initial.Expire != 0 {
			a.Expire = initial.Expire
		}
		if initial.HostExpire.Valid() && initial.HostExpire != 0 {
			a.HostExpire = initial.HostExpire
		}
		a.HostCertificates = initial.HostCertificates
		a.StrictHostChecking = initial.StrictHostChecking
		a.HostDomain = initial.HostDomain
		a.HostProxy = initial.HostProxy
		a.MatchRoles = initial.MatchRoles
		a.Roles = initial.Roles
	}

	row := &AuthorityModel{
		ID:         uuid.NewString(),
		HostTokens: encodeList(nil),
		CreatedAt:  time.Now().UnixNano(),
		HostExpire: s.opts.HostExpire,
	}
	if err := applyEditable(row, a); err != nil {
		return model.Authority{}, err
	}

	kp, err := sshca.GenerateKey(s.opts.KeyType, row.Name)
	if err != nil {
		return model.Authority{}, fmt.Errorf("failed to generate authority key: %w", err)
	}
	row.PublicKey = kp.PublicKey
	row.PrivateKey = kp.PrivateKey
	row.KeyAlg = kp.Algorithm

	err = s.bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(row).Exec(ctx); err != nil {
			return MapDBError(err)
		}
		return logAction(ctx, tx, "CREATE_AUTHORITY", fmt.Sprintf("id: %s, name: %s, alg: %s", row.ID, row.Name, row.KeyAlg))
	})
	if err != nil {
		return model.Authority{}, err
	}
	return row.toModel(), nil
}

// UpdateAuthority writes the editable fields of a. The public key, info and
// host tokens are owned by the store and ignored here.
func (s *Store) UpdateAuthority(ctx context.Context, a model.Authority) (model.Authority, error) {
	if a.ID == "" {
		return model.Authority{}, fmt.Errorf("%w: authority id is required", ErrInvalid)
	}
	var out model.Authority
	err := s.bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		row, err := s.loadAuthority(ctx, tx, a.ID)
		if err != nil {
			return err
		}
		if err := applyEditable(row, a); err != nil {
			return err
		}
		if _, err := tx.NewUpdate().Model(row).Column(editableColumns...).WherePK().Exec(ctx); err != nil {
			return MapDBError(err)
		}
		out = row.toModel()
		return logAction(ctx, tx, "UPDATE_AUTHORITY", fmt.Sprintf("id: %s, name: %s", row.ID, row.Name))
	})
	return out, err
}

// DeleteAuthority removes an authority and detaches it from every node.
func (s *Store) DeleteAuthority(ctx context.Context, id string) error {
	return s.bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewDelete().Model((*AuthorityModel)(nil)).Where("id = ?", id).Exec(ctx)
		if err != nil {
			return MapDBError(err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return ErrNotFound
		}

		var nodes []NodeModel
		if err := tx.NewSelect().Model(&nodes).Scan(ctx); err != nil {
			return MapDBError(err)
		}
		for i := range nodes {
			ids := decodeList(nodes[i].Authorities)
			before := len(ids)
			kept := slices.DeleteFunc(ids, func(v string) bool { return v == id })
			if len(kept) == before {
				continue
			}
			nodes[i].Authorities = encodeList(kept)
			if _, err := tx.NewUpdate().Model(&nodes[i]).Column("authorities").WherePK().Exec(ctx); err != nil {
				return MapDBError(err)
			}
		}
		return logAction(ctx, tx, "DELETE_AUTHORITY", "id: "+id)
	})
}

// newHostToken returns 32 random bytes, hex encoded.
func newHostToken() (string, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}

func tokenHint(token string) string {
	if len(token) > 8 {
		return token[:8] + "..."
	}
	return token
}

// CreateHostToken appends a new host registration token to the authority
// and returns it.
func (s *Store) CreateHostToken(ctx context.Context, authorityID string) (string, error) {
	token, err := newHostToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate host token: %w", err)
	}
	err = s.bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		row, err := s.loadAuthority(ctx, tx, authorityID)
		if err != nil {
			return err
		}
		row.HostTokens = encodeList(append(decodeList(row.HostTokens), token))
		if _, err := tx.NewUpdate().Model(row).Column("host_tokens").WherePK().Exec(ctx); err != nil {
			return MapDBError(err)
		}
		return logAction(ctx, tx, "CREATE_HOST_TOKEN", fmt.Sprintf("authority: %s, token: %s", authorityID, tokenHint(token)))
	})
	if err != nil {
		return "", err
	}
	return token, nil
}

// DeleteHostToken removes exactly token from the authority.
func (s *Store) DeleteHostToken(ctx context.Context, authorityID, token string) error {
	return s.bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		row, err := s.loadAuthority(ctx, tx, authorityID)
		if err != nil {
			return err
		}
		tokens := decodeList(row.HostTokens)
		i := slices.Index(tokens, token)
		if i < 0 {
			return ErrNotFound
		}
		row.HostTokens = encodeList(slices.Delete(tokens, i, i+1))
		if _, err := tx.NewUpdate().Model(row).Column("host_tokens").WherePK().Exec(ctx); err != nil {
			return MapDBError(err)
		}
		return logAction(ctx, tx, "DELETE_HOST_TOKEN", fmt.Sprintf("authority: %s, token: %s", authorityID, tokenHint(token)))
	})
}

// AuthorityByToken finds the authority holding token.
func (s *Store) AuthorityByToken(ctx context.Context, token string) (model.Authority, error) {
	if token == "" {
		return model.Authority{}, ErrNotFound
	}
	all, err := s.ListAuthorities(ctx)
	if err != nil {
		return model.Authority{}, err
	}
	for _, a := range all {
		if a.HasToken(token) {
			return a, nil
		}
	}
	return model.Authority{}, ErrNotFound
}

// PrivateKey returns the PEM signing key of an authority.
func (s *Store) PrivateKey(ctx context.Context, authorityID string) (string, error) {
	row, err := s.loadAuthority(ctx, s.bun, authorityID)
	if err != nil {
		return "", err
	}
	return row.PrivateKey, nil
}

// PublicKeys returns the public keys of ids in the given order.
func (s *Store) PublicKeys(ctx context.Context, ids []string) ([]string, error) {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		a, err := s.GetAuthority(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("authority %s: %w", id, err)
		}
		out = append(out, a.PublicKey)
	}
	return out, nil
}

// SignHostCertificate certifies a host key for the holder of token.
func (s *Store) SignHostCertificate(ctx context.Context, token, hostPublicKey string, hostnames []string) (string, error) {
	a, err := s.AuthorityByToken(ctx, token)
	if err != nil {
		return "", err
	}
	if !a.HostCertificates {
		return "", fmt.Errorf("%w: authority %s does not issue host certificates", ErrInvalid, a.ID)
	}
	key, err := s.PrivateKey(ctx, a.ID)
	if err != nil {
		return "", err
	}
	cert, err := sshca.SignHostKey(key, sshca.HostRequest{
		PublicKey: hostPublicKey,
		Hostnames: hostnames,
		Domain:    a.HostDomain,
		Validity:  time.Duration(a.HostExpire) * time.Minute,
	})
	if err != nil {
		// Everything SignHostKey rejects comes from the request.
		return "", fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := s.LogAction(ctx, "SIGN_HOST_CERTIFICATE", fmt.Sprintf("authority: %s, hosts: %s", a.ID, strings.Join(hostnames, ","))); err != nil {
		dbLogf("db: %v", err)
	}
	return cert, nil
}
