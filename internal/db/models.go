// Copyright (c) 2026 Keymaster Team
// Keymaster CA - SSH certificate authority console
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"encoding/json"

	"github.com/toeirei/keymaster-ca/internal/model"
	"github.com/uptrace/bun"
)

// AuthorityModel is the bun row of the authorities table. The private key
// column never leaves this package except through Store.PrivateKey and backups.
type AuthorityModel struct {
	bun.BaseModel `bun:"table:authorities"`

	ID                 string `bun:"id,pk"`
	Name               string `bun:"name"`
	PublicKey          string `bun:"public_key"`
	PrivateKey         string `bun:"private_key"`
	KeyAlg             string `bun:"key_alg"`
	HostCertificates   bool   `bun:"host_certificates"`
	StrictHostChecking bool   `bun:"strict_host_checking"`
	HostDomain         string `bun:"host_domain"`
	HostProxy          string `bun:"host_proxy"`
	Expire             int    `bun:"expire"`
	HostExpire         int    `bun:"host_expire"`
	MatchRoles         bool   `bun:"match_roles"`
	Roles              string `bun:"roles"`
	HostTokens         string `bun:"host_tokens"`
	CreatedAt          int64  `bun:"created_at"`
}

// NodeModel is the bun row of the nodes table.
type NodeModel struct {
	bun.BaseModel `bun:"table:nodes"`

	ID          string `bun:"id,pk"`
	Name        string `bun:"name"`
	Type        string `bun:"type"`
	Authorities string `bun:"authorities"`
	CreatedAt   int64  `bun:"created_at"`
}

// AuditLogModel is the bun row of the audit_log table.
type AuditLogModel struct {
	bun.BaseModel `bun:"table:audit_log"`

	ID      int    `bun:"id,pk,autoincrement"`
	At      int64  `bun:"at"`
	Action  string `bun:"action"`
	Details string `bun:"details"`
}

func encodeList(v []string) string {
	if v == nil {
		v = []string{}
	}
	data, _ := json.Marshal(v)
	return string(data)
}

func decodeList(s string) []string {
	out := []string{}
	if s == "" {
		return out
	}
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		dbLogf("db: ignoring malformed list column %q: %v", s, err)
		return []string{}
	}
	return out
}

func (m AuthorityModel) toModel() model.Authority {
	return model.Authority{
		ID:                 m.ID,
		Name:               m.Name,
		PublicKey:          m.PublicKey,
		HostCertificates:   m.HostCertificates,
		StrictHostChecking: m.StrictHostChecking,
		HostDomain:         m.HostDomain,
		HostProxy:          m.HostProxy,
		Expire:             model.Minutes(m.Expire),
		HostExpire:         model.Minutes(m.HostExpire),
		MatchRoles:         m.MatchRoles,
		Roles:              decodeList(m.Roles),
		HostTokens:         decodeList(m.HostTokens),
		Info:               model.AuthorityInfo{KeyAlg: m.KeyAlg},
	}
}

func (m NodeModel) toModel() model.Node {
	return model.Node{
		ID:          m.ID,
		Name:        m.Name,
		Type:        model.NodeType(m.Type),
		Authorities: decodeList(m.Authorities),
	}
}
